package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// DriverRow is the durable-store shape of a driver presence record
// (spec §3). It is a projection of the RAMEN in-memory record, not the
// record itself — RAMEN is authoritative at runtime.
type DriverRow struct {
	DriverID      string
	UserID        string
	Name          string
	Phone         string
	VehicleNumber string
	VehicleModel  string
	VehicleType   string
	Rating        float64
	IsOnline      bool
	IsActive      bool
	IsVerified    bool
	Onboarding    string
	Lat           *float64
	Lng           *float64
	H3Index       *string
	Heading       *float64
	Speed         *float64
	LastActiveAt  time.Time
}

// DriversRepo persists driver rows to the durable relational store.
type DriversRepo struct {
	pool *Pool
}

// NewDriversRepo constructs a DriversRepo over pool.
func NewDriversRepo(pool *Pool) *DriversRepo {
	return &DriversRepo{pool: pool}
}

// Upsert writes a full driver row, used for OpCreate writes.
func (r *DriversRepo) Upsert(ctx context.Context, row DriverRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO drivers (
			driver_id, user_id, name, phone, vehicle_number, vehicle_model,
			vehicle_type, rating, is_online, is_active, is_verified,
			onboarding_status, lat, lng, h3_index, heading, speed, last_active_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (driver_id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			vehicle_number = EXCLUDED.vehicle_number,
			vehicle_model = EXCLUDED.vehicle_model,
			vehicle_type = EXCLUDED.vehicle_type,
			rating = EXCLUDED.rating,
			is_online = EXCLUDED.is_online,
			is_active = EXCLUDED.is_active,
			is_verified = EXCLUDED.is_verified,
			onboarding_status = EXCLUDED.onboarding_status,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			h3_index = EXCLUDED.h3_index,
			heading = EXCLUDED.heading,
			speed = EXCLUDED.speed,
			last_active_at = EXCLUDED.last_active_at
	`,
		row.DriverID, row.UserID, row.Name, row.Phone, row.VehicleNumber, row.VehicleModel,
		row.VehicleType, row.Rating, row.IsOnline, row.IsActive, row.IsVerified,
		row.Onboarding, row.Lat, row.Lng, row.H3Index, row.Heading, row.Speed, row.LastActiveAt,
	)
	return err
}

// UpdateStatus applies an OpStatusChange write: the online flag and last-active timestamp only.
func (r *DriversRepo) UpdateStatus(ctx context.Context, driverID string, online bool, lastActiveAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE drivers SET is_online = $2, last_active_at = $3 WHERE driver_id = $1
	`, driverID, online, lastActiveAt)
	return err
}

// UpdateLocation applies a coalesced OpLocationUpdate write.
func (r *DriversRepo) UpdateLocation(ctx context.Context, driverID string, lat, lng float64, h3Index string, heading, speed *float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE drivers SET lat = $2, lng = $3, h3_index = $4, heading = $5, speed = $6
		WHERE driver_id = $1
	`, driverID, lat, lng, h3Index, heading, speed)
	return err
}

// LoadActive returns every driver row with is_active = true, for startup
// hydration (spec §4.6 step 1).
func (r *DriversRepo) LoadActive(ctx context.Context) ([]DriverRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT driver_id, user_id, name, phone, vehicle_number, vehicle_model,
			vehicle_type, rating, is_online, is_active, is_verified,
			onboarding_status, lat, lng, h3_index, heading, speed, last_active_at
		FROM drivers WHERE is_active = true
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DriverRow, error) {
		var d DriverRow
		err := row.Scan(
			&d.DriverID, &d.UserID, &d.Name, &d.Phone, &d.VehicleNumber, &d.VehicleModel,
			&d.VehicleType, &d.Rating, &d.IsOnline, &d.IsActive, &d.IsVerified,
			&d.Onboarding, &d.Lat, &d.Lng, &d.H3Index, &d.Heading, &d.Speed, &d.LastActiveAt,
		)
		return d, err
	})
}

// ResolveByUserID looks up a driverId by userId, used by
// DriverStateStore.resolveDriverId on a cache miss (spec §4.4).
func (r *DriversRepo) ResolveByUserID(ctx context.Context, userID string) (string, error) {
	var driverID string
	err := r.pool.QueryRow(ctx, `SELECT driver_id FROM drivers WHERE user_id = $1`, userID).Scan(&driverID)
	return driverID, err
}
