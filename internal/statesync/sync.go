// Package statesync implements StateSync (component C6, spec §4.6): DB
// hydration at startup, batched flush of dirty driver/ride state, and a
// retry policy guarded by a circuit breaker, grounded on the teacher's
// pkg/resilience retry/breaker stack.
package statesync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/driverstore"
	"github.com/raahi/dispatch-core/internal/ridestore"
	"github.com/raahi/dispatch-core/internal/storage"
	"github.com/raahi/dispatch-core/pkg/logger"
	"github.com/raahi/dispatch-core/pkg/resilience"
)

// Config tunes the two flush loops (spec §4.6).
type Config struct {
	RideFlushInterval   time.Duration // ~500ms
	DriverFlushInterval time.Duration // ~2s
	MaxRetries          int           // 3
	CommissionRate      float64       // platform cut applied on ride completion
}

// Sync owns the ride and driver write queues' flush loops, startup
// hydration, and graceful shutdown drain.
type Sync struct {
	cfg Config

	driverStore *driverstore.Store
	rideStore   *ridestore.Store

	driverQueue *storage.Queue
	rideQueue   *storage.Queue

	driversRepo  *storage.DriversRepo
	ridesRepo    *storage.RidesRepo
	earningsRepo *storage.EarningsRepo

	breaker *resilience.CircuitBreaker

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Sync wired to both stores' write queues and the durable
// repositories.
func New(cfg Config, driverStore *driverstore.Store, rideStore *ridestore.Store,
	driverQueue, rideQueue *storage.Queue,
	driversRepo *storage.DriversRepo, ridesRepo *storage.RidesRepo, earningsRepo *storage.EarningsRepo,
) *Sync {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	breaker := resilience.NewCircuitBreaker(resilience.Settings{
		Name:             "statesync-db-flush",
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}, nil)

	return &Sync{
		cfg:          cfg,
		driverStore:  driverStore,
		rideStore:    rideStore,
		driverQueue:  driverQueue,
		rideQueue:    rideQueue,
		driversRepo:  driversRepo,
		ridesRepo:    ridesRepo,
		earningsRepo: earningsRepo,
		breaker:      breaker,
		stopCh:       make(chan struct{}),
	}
}

// Hydrate loads drivers and active rides from the durable store at process
// start (spec §4.6 "Startup hydration"). A failure here is fatal — a
// partial hydration is never accepted (spec §7).
func (s *Sync) Hydrate(ctx context.Context) error {
	drivers, err := s.driversRepo.LoadActive(ctx)
	if err != nil {
		return err
	}
	for _, d := range drivers {
		rec := driverRecordFromRow(d)
		s.driverStore.RegisterDriver(rec)
		if d.IsOnline {
			_ = s.driverStore.SetOnlineStatus(d.DriverID, true)
		}
	}

	// Hydration itself must not mark anything dirty (spec §8 round-trip
	// property: "hydration followed by immediate shutdown produces an
	// empty write queue"). RegisterDriver/SetOnlineStatus above enqueue
	// writes like any other mutation, so hydration drains its own queue
	// once done instead of flushing it to the DB.
	s.driverQueue.DrainAll()

	rides, err := s.ridesRepo.LoadActive(ctx)
	if err != nil {
		return err
	}
	for _, r := range rides {
		s.rideStore.HydrateRide(rideRecordFromRow(r))
	}
	s.rideQueue.DrainAll()

	logger.Info("state hydration complete", zap.Int("drivers", len(drivers)), zap.Int("rides", len(rides)))
	return nil
}

// Start launches the ride and driver flush loops.
func (s *Sync) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.rideFlushLoop(ctx)
	go s.driverFlushLoop(ctx)
}

// Shutdown stops accepting new flush cycles, drains both queues
// synchronously one last time, and waits for the loops to exit (spec §4.6
// "Graceful shutdown").
func (s *Sync) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.flushRideBatch(ctx, s.rideQueue.DrainAll())
	s.flushDriverBatch(ctx, s.driverQueue.DrainAll())
}

func (s *Sync) rideFlushLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.RideFlushInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.flushRideBatch(ctx, s.rideQueue.DrainAll())
		}
	}
}

func (s *Sync) driverFlushLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.DriverFlushInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.flushDriverBatch(ctx, s.driverQueue.DrainAll())
		}
	}
}

// flushRideBatch applies each pending ride write with the minimal delta,
// re-enqueueing failures below MaxRetries with exponential backoff and
// logging P0 plus dropping the write once the retry budget is exhausted
// (spec §4.6, §7(c)).
func (s *Sync) flushRideBatch(ctx context.Context, writes []storage.PendingWrite) {
	for _, w := range writes {
		err := s.applyRideWrite(ctx, w)
		if err == nil {
			if rec, ok := w.Payload.(ridestore.Record); ok {
				s.rideStore.MarkSynced(w.EntityID, rec.Version)
			}
			continue
		}
		s.retryOrDrop(w, err, s.rideQueue)
	}
}

func (s *Sync) applyRideWrite(ctx context.Context, w storage.PendingWrite) error {
	_, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		rec, ok := w.Payload.(ridestore.Record)
		if !ok {
			return nil, nil
		}
		row := rideRowFromRecord(rec)
		switch w.Operation {
		case storage.OpCreate:
			return nil, s.ridesRepo.Upsert(ctx, row)
		case storage.OpStatusChange:
			if err := s.ridesRepo.UpdateStatusChange(ctx, row); err != nil {
				return nil, err
			}
			if rec.Status == ridestore.StatusRideCompleted {
				return nil, s.earningsRepo.Insert(ctx, earningsFromRecord(rec, s.cfg.CommissionRate))
			}
			return nil, nil
		default:
			return nil, nil
		}
	})
	return err
}

// coalesceDriverWrites collapses repeated location_update writes for the
// same driverId down to the latest one, leaving every other operation in
// its original relative order (spec §4.6).
func coalesceDriverWrites(writes []storage.PendingWrite) []storage.PendingWrite {
	latestLocation := make(map[string]storage.PendingWrite)
	var ordered []storage.PendingWrite

	for _, w := range writes {
		if w.Operation == storage.OpLocationUpdate {
			latestLocation[w.EntityID] = w
			continue
		}
		ordered = append(ordered, w)
	}
	for _, w := range latestLocation {
		ordered = append(ordered, w)
	}
	return ordered
}

// flushDriverBatch coalesces repeated location_update writes for the same
// driverId into the latest before applying (spec §4.6).
func (s *Sync) flushDriverBatch(ctx context.Context, writes []storage.PendingWrite) {
	for _, w := range coalesceDriverWrites(writes) {
		if err := s.applyDriverWrite(ctx, w); err != nil {
			s.retryOrDrop(w, err, s.driverQueue)
		}
	}
}

func (s *Sync) applyDriverWrite(ctx context.Context, w storage.PendingWrite) error {
	_, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		switch w.Operation {
		case storage.OpCreate:
			rec, ok := w.Payload.(driverstore.Record)
			if !ok {
				return nil, nil
			}
			return nil, s.driversRepo.Upsert(ctx, driverRowFromRecord(rec))
		case storage.OpStatusChange:
			payload, ok := w.Payload.(struct {
				Online       bool
				LastActiveAt time.Time
			})
			if !ok {
				return nil, nil
			}
			return nil, s.driversRepo.UpdateStatus(ctx, w.EntityID, payload.Online, payload.LastActiveAt)
		case storage.OpLocationUpdate:
			payload, ok := w.Payload.(struct {
				Lat, Lng       float64
				H3Index        string
				Heading, Speed *float64
			})
			if !ok {
				return nil, nil
			}
			return nil, s.driversRepo.UpdateLocation(ctx, w.EntityID, payload.Lat, payload.Lng, payload.H3Index, payload.Heading, payload.Speed)
		default:
			return nil, nil
		}
	})
	return err
}

func (s *Sync) retryOrDrop(w storage.PendingWrite, err error, queue *storage.Queue) {
	w.RetryCount++
	if w.RetryCount >= s.cfg.MaxRetries {
		logger.P0("db write exhausted retries and was dropped",
			zap.String("entityId", w.EntityID), zap.String("operation", string(w.Operation)), zap.Error(err))
		return
	}

	backoff := time.Duration(1<<(w.RetryCount-1)) * 200 * time.Millisecond
	logger.Warn("db write failed, will retry",
		zap.String("entityId", w.EntityID), zap.Int("retryCount", w.RetryCount), zap.Duration("backoff", backoff), zap.Error(err))

	go func(write storage.PendingWrite) {
		time.Sleep(backoff)
		queue.Enqueue(write)
	}(w)
}
