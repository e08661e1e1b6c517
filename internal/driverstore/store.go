package driverstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/storage"
	"github.com/raahi/dispatch-core/pkg/logger"
)

// entry pairs a driver record with the per-driver lock guarding it (spec §5
// "fine-grained locking keyed by entity id").
type entry struct {
	mu     sync.Mutex
	record Record
}

// Resolver looks a driverId up by userId in the durable store, used on a
// resolveDriverId cache miss.
type Resolver interface {
	ResolveByUserID(ctx context.Context, userID string) (string, error)
}

// Store is RAMEN: the authoritative, in-memory driver presence store.
type Store struct {
	mu      sync.RWMutex
	drivers map[string]*entry
	byUser  map[string]string // userId -> driverId

	cellMu      sync.RWMutex
	h3CellIndex map[string]map[string]struct{} // h3Index -> set<driverId>

	geoIndex *geo.Index
	queue    *storage.Queue
	resolver Resolver
	maxK     int
}

// New constructs an empty RAMEN store. geoIndex and queue are shared with
// the rest of the process; resolver is the durable-store fallback for
// resolveDriverId (spec §4.4).
func New(geoIndex *geo.Index, queue *storage.Queue, resolver Resolver, maxKRingExpansion int) *Store {
	return &Store{
		drivers:     make(map[string]*entry),
		byUser:      make(map[string]string),
		h3CellIndex: make(map[string]map[string]struct{}),
		geoIndex:    geoIndex,
		queue:       queue,
		resolver:    resolver,
		maxK:        maxKRingExpansion,
	}
}

func (s *Store) getOrCreateEntry(driverID string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.drivers[driverID]
	if !ok {
		return nil, false
	}
	return e, true
}

// RegisterDriver inserts or merges a driver's identity fields. It never sets
// isOnline itself — that is an explicit application-layer decision (spec
// §4.4). If lat/lng are present, the driver is placed into the cell index.
func (s *Store) RegisterDriver(rec Record) {
	if rec.ConnectedTransports == nil {
		rec.ConnectedTransports = make(map[string]struct{})
	}
	if rec.Lat != nil && rec.Lng != nil {
		h3 := s.geoIndex.Encode(*rec.Lat, *rec.Lng)
		rec.H3Index = &h3
	}

	s.mu.Lock()
	e, exists := s.drivers[rec.DriverID]
	if !exists {
		e = &entry{record: rec}
		s.drivers[rec.DriverID] = e
		s.byUser[rec.UserID] = rec.DriverID
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		e.mu.Lock()
		merged := e.record
		merged.Name, merged.Phone = rec.Name, rec.Phone
		merged.VehicleNumber, merged.VehicleModel, merged.VehicleType = rec.VehicleNumber, rec.VehicleModel, rec.VehicleType
		merged.Rating = rec.Rating
		merged.IsActive, merged.IsVerified, merged.OnboardingStatus = rec.IsActive, rec.IsVerified, rec.OnboardingStatus
		if rec.Lat != nil {
			merged.Lat, merged.Lng, merged.H3Index = rec.Lat, rec.Lng, rec.H3Index
		}
		e.record = merged
		e.mu.Unlock()
	}

	if rec.H3Index != nil {
		s.addToCell(*rec.H3Index, rec.DriverID)
	}

	s.queue.Enqueue(storage.PendingWrite{EntityID: rec.DriverID, Operation: storage.OpCreate, Payload: rec})
}

// SetOnlineStatus toggles the online flag and enqueues a status_change
// write. Going offline never removes the driver from the cell index — the
// last known location is retained for analytics (spec §4.4).
func (s *Store) SetOnlineStatus(driverID string, online bool) error {
	e, ok := s.getOrCreateEntry(driverID)
	if !ok {
		return apperrors.NotFound("driver not registered: " + driverID)
	}

	e.mu.Lock()
	e.record.IsOnline = online
	e.record.LastActiveAt = time.Now()
	lastActiveAt := e.record.LastActiveAt
	e.mu.Unlock()

	s.queue.Enqueue(storage.PendingWrite{
		EntityID:  driverID,
		Operation: storage.OpStatusChange,
		Payload:   struct {
			Online       bool
			LastActiveAt time.Time
		}{online, lastActiveAt},
	})
	return nil
}

// LocationUpdate is the result of a successful UpdateLocation call.
type LocationUpdate struct {
	NewH3     string
	H3Changed bool
}

// UpdateLocation writes new coordinates, recomputes h3Index, and if the cell
// changed, atomically moves the driver between cells (spec §4.4). A location
// update for an unknown driver returns NotFound without creating state.
func (s *Store) UpdateLocation(driverID string, lat, lng float64, heading, speed *float64) (LocationUpdate, error) {
	e, ok := s.getOrCreateEntry(driverID)
	if !ok {
		return LocationUpdate{}, apperrors.NotFound("driver not registered: " + driverID)
	}

	newH3 := s.geoIndex.Encode(lat, lng)

	e.mu.Lock()
	oldH3 := e.record.H3Index
	e.record.Lat, e.record.Lng = &lat, &lng
	e.record.H3Index = &newH3
	e.record.Heading, e.record.Speed = heading, speed
	e.record.LastActiveAt = time.Now()

	changed := oldH3 == nil || *oldH3 != newH3
	if changed {
		if oldH3 != nil {
			s.removeFromCell(*oldH3, driverID)
		}
		s.addToCell(newH3, driverID)
	}
	e.mu.Unlock()

	s.queue.Enqueue(storage.PendingWrite{
		EntityID:  driverID,
		Operation: storage.OpLocationUpdate,
		Payload: struct {
			Lat, Lng         float64
			H3Index          string
			Heading, Speed   *float64
		}{lat, lng, newH3, heading, speed},
	})

	return LocationUpdate{NewH3: newH3, H3Changed: changed}, nil
}

func (s *Store) addToCell(h3Index, driverID string) {
	s.cellMu.Lock()
	defer s.cellMu.Unlock()
	set, ok := s.h3CellIndex[h3Index]
	if !ok {
		set = make(map[string]struct{})
		s.h3CellIndex[h3Index] = set
	}
	set[driverID] = struct{}{}
}

func (s *Store) removeFromCell(h3Index, driverID string) {
	s.cellMu.Lock()
	defer s.cellMu.Unlock()
	set, ok := s.h3CellIndex[h3Index]
	if !ok {
		return
	}
	delete(set, driverID)
	if len(set) == 0 {
		delete(s.h3CellIndex, h3Index)
	}
}

func (s *Store) driversInCell(h3Index string) []string {
	s.cellMu.RLock()
	defer s.cellMu.RUnlock()
	set, ok := s.h3CellIndex[h3Index]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// FindNearbyDrivers expands k-rings around (lat,lng) until a non-empty
// candidate set is found (spec §4.4), filtering on dispatchability and an
// optional vehicle type, sorted by distance then driverId.
func (s *Store) FindNearbyDrivers(lat, lng, radiusKm float64, vehicleType string) []NearbyResult {
	results := s.geoIndex.FindExpanding(lat, lng, s.maxK, func(cells []string) []geo.Candidate {
		var candidates []geo.Candidate
		seen := make(map[string]struct{})
		for _, cell := range cells {
			for _, driverID := range s.driversInCell(cell) {
				if _, dup := seen[driverID]; dup {
					continue
				}
				seen[driverID] = struct{}{}

				e, ok := s.getOrCreateEntry(driverID)
				if !ok {
					continue
				}
				e.mu.Lock()
				rec := e.record.clone()
				e.mu.Unlock()

				if !rec.Dispatchable() {
					continue
				}
				if vehicleType != "" && rec.VehicleType != vehicleType {
					continue
				}
				if rec.Lat == nil || rec.Lng == nil {
					continue
				}
				dist := geo.HaversineKm(lat, lng, *rec.Lat, *rec.Lng)
				if dist > radiusKm {
					continue
				}
				candidates = append(candidates, geo.Candidate{ID: driverID, Distance: dist})
			}
		}
		return candidates
	})

	out := make([]NearbyResult, 0, len(results))
	for _, c := range results {
		e, ok := s.getOrCreateEntry(c.ID)
		if !ok {
			continue
		}
		e.mu.Lock()
		rec := e.record.clone()
		e.mu.Unlock()
		out = append(out, NearbyResult{Record: rec, DistanceKm: c.Distance})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Record.DriverID < out[j].Record.DriverID
	})
	return out
}

// ResolveDriverID accepts either a driverId or a userId and returns the
// driverId, consulting the in-memory bidirectional map before falling
// through to the durable store and caching the result (spec §4.4).
func (s *Store) ResolveDriverID(ctx context.Context, inputID string) (string, error) {
	s.mu.RLock()
	if _, ok := s.drivers[inputID]; ok {
		s.mu.RUnlock()
		return inputID, nil
	}
	if driverID, ok := s.byUser[inputID]; ok {
		s.mu.RUnlock()
		return driverID, nil
	}
	s.mu.RUnlock()

	if s.resolver == nil {
		return "", apperrors.NotFound("driver not found: " + inputID)
	}
	driverID, err := s.resolver.ResolveByUserID(ctx, inputID)
	if err != nil {
		return "", apperrors.NotFound("driver not found: " + inputID)
	}

	s.mu.Lock()
	s.byUser[inputID] = driverID
	s.mu.Unlock()
	return driverID, nil
}

// AddTransport records that driverID now has an open connection on
// transportName.
func (s *Store) AddTransport(driverID, transportName string) error {
	e, ok := s.getOrCreateEntry(driverID)
	if !ok {
		return apperrors.NotFound("driver not registered: " + driverID)
	}
	e.mu.Lock()
	e.record.ConnectedTransports[transportName] = struct{}{}
	e.mu.Unlock()
	return nil
}

// RemoveTransport drops transportName from driverID's connected set.
// Removing the last transport does NOT toggle isOnline (spec §4.4) — see
// the decision recorded in SPEC_FULL.md §13 for the online-on-shutdown open
// question.
func (s *Store) RemoveTransport(driverID, transportName string) error {
	e, ok := s.getOrCreateEntry(driverID)
	if !ok {
		return apperrors.NotFound("driver not registered: " + driverID)
	}
	e.mu.Lock()
	delete(e.record.ConnectedTransports, transportName)
	e.mu.Unlock()
	return nil
}

// Get returns a snapshot of one driver's record.
func (s *Store) Get(driverID string) (Record, bool) {
	e, ok := s.getOrCreateEntry(driverID)
	if !ok {
		return Record{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.clone(), true
}

// CheckIndexConsistency walks every registered driver and verifies
// driver.h3Index matches its membership in h3CellIndex (spec §8 invariant
// 4), logging a P0 for any mismatch (spec §7(d)). Intended to run on the
// same periodic sweep as ride TTL cleanup.
func (s *Store) CheckIndexConsistency() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.drivers))
	for id := range s.drivers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		e, ok := s.getOrCreateEntry(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		h3 := e.record.H3Index
		e.mu.Unlock()
		if h3 == nil {
			continue
		}
		s.cellMu.RLock()
		_, inCell := s.h3CellIndex[*h3][id]
		s.cellMu.RUnlock()
		if !inCell {
			logger.P0("driver missing from its own h3 cell index",
				zap.String("driverId", id), zap.String("h3Index", *h3))
		}
	}

	type membership struct{ cell, driverID string }
	var members []membership
	s.cellMu.RLock()
	for cell, set := range s.h3CellIndex {
		for id := range set {
			members = append(members, membership{cell, id})
		}
	}
	s.cellMu.RUnlock()
	for _, m := range members {
		rec, ok := s.Get(m.driverID)
		if !ok || rec.H3Index == nil || *rec.H3Index != m.cell {
			logger.P0("driver listed in an h3 cell that is not its own",
				zap.String("driverId", m.driverID), zap.String("h3Index", m.cell))
		}
	}
}
