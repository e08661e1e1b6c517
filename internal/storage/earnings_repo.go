package storage

import (
	"context"
	"time"
)

// EarningsRow is the durable earnings record written on ride completion
// (spec §4.8 "the durable earnings record is written by an external
// earnings collaborator receiving the status-change DB write").
type EarningsRow struct {
	RideID     string
	DriverID   string
	TotalFare  float64
	Commission float64
	NetAmount  float64
	CreatedAt  time.Time
}

// EarningsRepo inserts earnings rows on ride completion.
type EarningsRepo struct {
	pool *Pool
}

// NewEarningsRepo constructs an EarningsRepo over pool.
func NewEarningsRepo(pool *Pool) *EarningsRepo {
	return &EarningsRepo{pool: pool}
}

// Insert records one ride's completed earnings split. The dispatcher's
// complete-ride flow must not mark completion until this write has been
// enqueued (spec §4.8) — Insert itself runs on StateSync's flush loop, not
// inline with the HTTP request.
func (r *EarningsRepo) Insert(ctx context.Context, row EarningsRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO earnings (ride_id, driver_id, total_fare, commission, net_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ride_id) DO NOTHING
	`, row.RideID, row.DriverID, row.TotalFare, row.Commission, row.NetAmount, row.CreatedAt)
	return err
}
