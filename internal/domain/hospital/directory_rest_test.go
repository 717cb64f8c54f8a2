package hospital

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRESTDirectoryFetchNearby(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hospitals/nearby" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "37.7749" || q.Get("specialization") != "trauma" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]*Candidate{
			{Hospital: &Hospital{ID: "h1", Name: "City General"}},
		})
	}))
	defer srv.Close()

	dir := NewRESTDirectory(srv.URL, "", 5*time.Second)
	got, err := dir.FetchNearby(context.Background(), 37.7749, -122.4194, 25, NearbyFilters{Specialization: "trauma"})
	if err != nil {
		t.Fatalf("FetchNearby: %v", err)
	}
	if len(got) != 1 || got[0].Hospital.ID != "h1" {
		t.Fatalf("got %v", got)
	}
}

func TestRESTDirectoryFetchCapacity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hospitals/h1/capacity":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(&Capacity{HospitalID: "h1", TotalBeds: 100, AvailableBeds: 30})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dir := NewRESTDirectory(srv.URL, "", 5*time.Second)

	c, err := dir.FetchCapacity(context.Background(), "h1")
	if err != nil {
		t.Fatalf("FetchCapacity: %v", err)
	}
	if c.AvailableBeds != 30 {
		t.Fatalf("AvailableBeds = %d", c.AvailableBeds)
	}

	if _, err := dir.FetchCapacity(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id err = %v, want ErrNotFound", err)
	}
}

func TestRESTDirectoryAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sekrit" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]*Capacity{})
	}))
	defer srv.Close()

	dir := NewRESTDirectory(srv.URL, "sekrit", 5*time.Second)
	if _, err := dir.FetchCapacities(context.Background(), []string{"h1"}); err != nil {
		t.Fatalf("FetchCapacities: %v", err)
	}
}

func TestRESTDirectorySourceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	dir := NewRESTDirectory(srv.URL, "", 2*time.Second)
	if _, err := dir.FetchNearby(context.Background(), 0, 0, 10, NearbyFilters{}); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}

	srv.Close()
	if _, err := dir.FetchCapacity(context.Background(), "h1"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("dead server err = %v, want ErrSourceUnavailable", err)
	}
}
