package hospital

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// RESTDirectory is a Directory backed by the external capacity feed's REST
// API. Transient failures are retried by the client; anything that still
// fails maps to ErrSourceUnavailable so callers can take their fallback path.
type RESTDirectory struct {
	client *resty.Client
}

// NewRESTDirectory builds a client for the capacity feed API. apiKey may be
// empty for unauthenticated deployments.
func NewRESTDirectory(baseURL, apiKey string, timeout time.Duration) *RESTDirectory {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &RESTDirectory{client: client}
}

func (d *RESTDirectory) FetchNearby(ctx context.Context, lat, lng, radiusKm float64, filters NearbyFilters) ([]*Candidate, error) {
	params := map[string]string{
		"lat":       strconv.FormatFloat(lat, 'f', -1, 64),
		"lng":       strconv.FormatFloat(lng, 'f', -1, 64),
		"radius_km": strconv.FormatFloat(radiusKm, 'f', -1, 64),
	}
	if filters.Specialization != "" {
		params["specialization"] = filters.Specialization
	}
	if filters.MinTraumaLevel > 0 {
		params["min_trauma_level"] = strconv.Itoa(filters.MinTraumaLevel)
	}
	if filters.MinAvailableBeds > 0 {
		params["min_available_beds"] = strconv.Itoa(filters.MinAvailableBeds)
	}
	if filters.MaxOccupancy > 0 {
		params["max_occupancy"] = strconv.FormatFloat(filters.MaxOccupancy, 'f', -1, 64)
	}

	var out []*Candidate
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/hospitals/nearby")
	if err := restError("fetch nearby", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *RESTDirectory) FetchCapacity(ctx context.Context, id string) (*Capacity, error) {
	var out Capacity
	resp, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/hospitals/{id}/capacity")
	if resp != nil && resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := restError("fetch capacity "+id, resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *RESTDirectory) FetchCapacities(ctx context.Context, ids []string) ([]*Capacity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*Capacity
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(map[string][]string{"hospital_ids": ids}).
		SetResult(&out).
		Post("/hospitals/capacities")
	if err := restError("fetch capacities", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func restError(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: status %d", ErrSourceUnavailable, op, resp.StatusCode())
	}
	return nil
}
