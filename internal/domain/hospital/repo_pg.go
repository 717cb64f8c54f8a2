package hospital

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGDirectory is a Directory backed by a Postgres hospital registry. It
// stands in for the managed document store the surrounding application uses.
type PGDirectory struct {
	pool *pgxpool.Pool
}

// NewPGDirectory connects a pool to the given database URL and verifies it
// with a ping.
func NewPGDirectory(ctx context.Context, databaseURL string, maxConns, minConns int32) (*PGDirectory, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PGDirectory{pool: pool}, nil
}

// NewPGDirectoryFromPool wraps an existing pool, for callers that manage
// their own pool lifecycle.
func NewPGDirectoryFromPool(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

// Close releases the underlying pool.
func (d *PGDirectory) Close() {
	d.pool.Close()
}

const hospitalCols = `h.id, h.name, h.address, h.latitude, h.longitude, h.phone,
	h.trauma_level, h.specializations, h.certifications,
	h.avg_wait_minutes, h.patient_satisfaction, h.treatment_success_rate, h.monthly_volume`

const capacityCols = `hospital_id, total_beds, available_beds, icu_beds, icu_available,
	emergency_beds, emergency_available, staff_on_duty, patients_in_queue,
	avg_wait_minutes, data_source, is_real_time, last_updated`

// haversineSQL computes great-circle distance in km from ($1,$2) to the
// hospital row. Kept in SQL so the radius cut happens server-side.
const haversineSQL = `6371 * 2 * asin(sqrt(
	power(sin(radians((h.latitude - $1) / 2)), 2) +
	cos(radians($1)) * cos(radians(h.latitude)) *
	power(sin(radians((h.longitude - $2) / 2)), 2)))`

func scanCapacity(row pgx.Row) (*Capacity, error) {
	var c Capacity
	err := row.Scan(&c.HospitalID, &c.TotalBeds, &c.AvailableBeds, &c.ICUBeds, &c.ICUAvailable,
		&c.EmergencyBeds, &c.EmergencyAvailable, &c.StaffOnDuty, &c.PatientsInQueue,
		&c.AvgWaitMinutes, &c.DataSource, &c.IsRealTime, &c.LastUpdated)
	return &c, err
}

func (d *PGDirectory) FetchNearby(ctx context.Context, lat, lng, radiusKm float64, filters NearbyFilters) ([]*Candidate, error) {
	query := `SELECT ` + hospitalCols + `,
		c.hospital_id, c.total_beds, c.available_beds, c.icu_beds, c.icu_available,
		c.emergency_beds, c.emergency_available, c.staff_on_duty, c.patients_in_queue,
		c.avg_wait_minutes, c.data_source, c.is_real_time, c.last_updated
	FROM hospital h
	LEFT JOIN hospital_capacity c ON c.hospital_id = h.id
	WHERE ` + haversineSQL + ` <= $3`
	args := []interface{}{lat, lng, radiusKm}

	if filters.Specialization != "" {
		args = append(args, filters.Specialization)
		query += fmt.Sprintf(" AND $%d = ANY(h.specializations)", len(args))
	}
	if filters.MinTraumaLevel > 0 {
		args = append(args, filters.MinTraumaLevel)
		query += fmt.Sprintf(" AND h.trauma_level <= $%d", len(args))
	}
	if filters.MinAvailableBeds > 0 {
		args = append(args, filters.MinAvailableBeds)
		query += fmt.Sprintf(" AND c.available_beds >= $%d", len(args))
	}
	if filters.MaxOccupancy > 0 {
		args = append(args, filters.MaxOccupancy)
		query += fmt.Sprintf(` AND (c.total_beds = 0 OR
			(c.total_beds - c.available_beds)::float / c.total_beds <= $%d)`, len(args))
	}
	query += " ORDER BY " + haversineSQL

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch nearby: %v", ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var out []*Candidate
	for rows.Next() {
		var h Hospital
		var capID *string
		var totalBeds, availableBeds, icuBeds, icuAvailable *int
		var emergencyBeds, emergencyAvailable, staffOnDuty, patientsInQueue *int
		var avgWait *float64
		var dataSource *string
		var isRealTime *bool
		var lastUpdated *time.Time

		err := rows.Scan(&h.ID, &h.Name, &h.Address, &h.Latitude, &h.Longitude, &h.Phone,
			&h.TraumaLevel, &h.Specializations, &h.Certifications,
			&h.AvgWaitMinutes, &h.PatientSatisfaction, &h.TreatmentSuccessRate, &h.MonthlyVolume,
			&capID, &totalBeds, &availableBeds, &icuBeds, &icuAvailable,
			&emergencyBeds, &emergencyAvailable, &staffOnDuty, &patientsInQueue,
			&avgWait, &dataSource, &isRealTime, &lastUpdated)
		if err != nil {
			return nil, fmt.Errorf("scan nearby row: %w", err)
		}

		cand := &Candidate{Hospital: &h}
		if capID != nil {
			cand.Capacity = &Capacity{
				HospitalID:         *capID,
				TotalBeds:          deref(totalBeds),
				AvailableBeds:      deref(availableBeds),
				ICUBeds:            deref(icuBeds),
				ICUAvailable:       deref(icuAvailable),
				EmergencyBeds:      deref(emergencyBeds),
				EmergencyAvailable: deref(emergencyAvailable),
				StaffOnDuty:        deref(staffOnDuty),
				PatientsInQueue:    deref(patientsInQueue),
			}
			if avgWait != nil {
				cand.Capacity.AvgWaitMinutes = *avgWait
			}
			if dataSource != nil {
				cand.Capacity.DataSource = *dataSource
			}
			if isRealTime != nil {
				cand.Capacity.IsRealTime = *isRealTime
			}
			if lastUpdated != nil {
				cand.Capacity.LastUpdated = *lastUpdated
			}
		}
		out = append(out, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: fetch nearby: %v", ErrSourceUnavailable, err)
	}
	return out, nil
}

func (d *PGDirectory) FetchCapacity(ctx context.Context, id string) (*Capacity, error) {
	c, err := scanCapacity(d.pool.QueryRow(ctx,
		`SELECT `+capacityCols+` FROM hospital_capacity WHERE hospital_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch capacity %s: %v", ErrSourceUnavailable, id, err)
	}
	return c, nil
}

func (d *PGDirectory) FetchCapacities(ctx context.Context, ids []string) ([]*Capacity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := d.pool.Query(ctx,
		`SELECT `+capacityCols+` FROM hospital_capacity WHERE hospital_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch capacities: %v", ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var out []*Capacity
	for rows.Next() {
		c, err := scanCapacity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan capacity row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: fetch capacities: %v", ErrSourceUnavailable, err)
	}
	return out, nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
