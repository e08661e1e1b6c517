package ridestore

import "time"

// DefaultTTL is how long a terminal ride is retained after completion
// before a sweep is eligible to remove it (spec §4.5 "TTL cleanup").
const DefaultTTL = 5 * time.Minute

// SweepExpired removes terminal ride records older than ttl, provided
// dirty=false (spec §8 invariant 7: nothing is ever dropped before it has
// been persisted). Removal deletes the record from every secondary index.
// Each candidate's eligibility is read under the same per-ride lock
// transitions use (spec §5), so a sweep never observes a partially mutated
// record; the index deletions that follow take only the store lock.
func (s *Store) SweepExpired(ttl time.Duration) int {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rides))
	for id := range s.rides {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	now := time.Now()
	removed := 0
	for _, id := range ids {
		s.mu.RLock()
		entry, ok := s.rides[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		entry.mu.Lock()
		eligible := entry.record.Status.IsTerminal() && !entry.record.Dirty && s.terminalAt(entry.record).Before(now.Add(-ttl))
		passengerID := entry.record.PassengerID
		driverID := entry.record.DriverID
		entry.mu.Unlock()

		if !eligible {
			continue
		}

		s.mu.Lock()
		delete(s.rides, id)
		if s.passengerRides[passengerID] == id {
			delete(s.passengerRides, passengerID)
		}
		if driverID != "" && s.driverRides[driverID] == id {
			delete(s.driverRides, driverID)
		}
		delete(s.pendingRides, id)
		s.mu.Unlock()
		removed++
	}
	return removed
}

// terminalAt returns the timestamp the record entered its terminal state.
func (s *Store) terminalAt(rec Record) time.Time {
	if rec.CompletedAt != nil {
		return *rec.CompletedAt
	}
	if rec.CancelledAt != nil {
		return *rec.CancelledAt
	}
	return rec.CreatedAt
}
