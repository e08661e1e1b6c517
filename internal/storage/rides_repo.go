package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// RideRow is the durable-store shape of a ride record (spec §3). Live
// tracking fields (driverLat/Lng/etc) are deliberately absent — per-update
// location writes are never persisted (spec §4.5).
type RideRow struct {
	RideID      string
	PassengerID string
	DriverID    *string

	PickupLat     float64
	PickupLng     float64
	PickupAddress string
	DropLat       float64
	DropLng       float64
	DropAddress   string
	PickupH3      string

	FareBase     float64
	FareDistance float64
	FareTime     float64
	FareSurge    float64
	FareTotal    float64
	Distance     float64
	Duration     float64

	RideOtp       string
	PaymentMethod string
	VehicleType   string
	Status        string

	CreatedAt   time.Time
	AssignedAt  *time.Time
	ConfirmedAt *time.Time
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	CancelledBy        *string
	CancellationReason *string

	DriverName    *string
	DriverVehicle *string
	DriverRating  *float64
	PassengerName *string
}

// RidesRepo persists ride rows to the durable relational store.
type RidesRepo struct {
	pool *Pool
}

// NewRidesRepo constructs a RidesRepo over pool.
func NewRidesRepo(pool *Pool) *RidesRepo {
	return &RidesRepo{pool: pool}
}

// Upsert writes a full ride row for an OpCreate write. The durable store
// must use upsert semantics here because a create is not naturally
// idempotent (spec §9 design note).
func (r *RidesRepo) Upsert(ctx context.Context, row RideRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rides (
			ride_id, passenger_id, driver_id, pickup_lat, pickup_lng, pickup_address,
			drop_lat, drop_lng, drop_address, pickup_h3, fare_base, fare_distance,
			fare_time, fare_surge, fare_total, distance, duration, ride_otp,
			payment_method, vehicle_type, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (ride_id) DO UPDATE SET status = EXCLUDED.status
	`,
		row.RideID, row.PassengerID, row.DriverID, row.PickupLat, row.PickupLng, row.PickupAddress,
		row.DropLat, row.DropLng, row.DropAddress, row.PickupH3, row.FareBase, row.FareDistance,
		row.FareTime, row.FareSurge, row.FareTotal, row.Distance, row.Duration, row.RideOtp,
		row.PaymentMethod, row.VehicleType, row.Status, row.CreatedAt,
	)
	return err
}

// UpdateStatusChange applies an OpStatusChange write: only the delta columns
// a transition touches (spec §4.5 "enqueues status_change DB write
// containing only the delta"). A status_change is naturally idempotent
// because it encodes the target state, not a diff (spec §9).
func (r *RidesRepo) UpdateStatusChange(ctx context.Context, row RideRow) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE rides SET
			status = $2, driver_id = $3,
			assigned_at = $4, confirmed_at = $5, arrived_at = $6,
			started_at = $7, completed_at = $8, cancelled_at = $9,
			cancelled_by = $10, cancellation_reason = $11
		WHERE ride_id = $1
	`,
		row.RideID, row.Status, row.DriverID,
		row.AssignedAt, row.ConfirmedAt, row.ArrivedAt,
		row.StartedAt, row.CompletedAt, row.CancelledAt,
		row.CancelledBy, row.CancellationReason,
	)
	return err
}

// LoadActive returns ride rows not yet in a terminal state, for startup
// hydration (spec §4.6 step 2).
func (r *RidesRepo) LoadActive(ctx context.Context) ([]RideRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ride_id, passenger_id, driver_id, pickup_lat, pickup_lng, pickup_address,
			drop_lat, drop_lng, drop_address, pickup_h3, fare_base, fare_distance,
			fare_time, fare_surge, fare_total, distance, duration, ride_otp,
			payment_method, vehicle_type, status, created_at,
			assigned_at, confirmed_at, arrived_at, started_at, completed_at, cancelled_at,
			cancelled_by, cancellation_reason,
			driver_name, driver_vehicle, driver_rating, passenger_name
		FROM rides
		WHERE status IN ('PENDING','DRIVER_ASSIGNED','CONFIRMED','DRIVER_ARRIVED','RIDE_STARTED')
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RideRow, error) {
		var r RideRow
		err := row.Scan(
			&r.RideID, &r.PassengerID, &r.DriverID, &r.PickupLat, &r.PickupLng, &r.PickupAddress,
			&r.DropLat, &r.DropLng, &r.DropAddress, &r.PickupH3, &r.FareBase, &r.FareDistance,
			&r.FareTime, &r.FareSurge, &r.FareTotal, &r.Distance, &r.Duration, &r.RideOtp,
			&r.PaymentMethod, &r.VehicleType, &r.Status, &r.CreatedAt,
			&r.AssignedAt, &r.ConfirmedAt, &r.ArrivedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt,
			&r.CancelledBy, &r.CancellationReason,
			&r.DriverName, &r.DriverVehicle, &r.DriverRating, &r.PassengerName,
		)
		return r, err
	})
}
