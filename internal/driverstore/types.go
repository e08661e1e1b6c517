// Package driverstore implements RAMEN, the dispatch core's DriverStateStore
// (component C4, spec §4.4): authoritative driver presence, location, and
// the H3-cell-to-driver secondary index, with async persistence handed off
// to StateSync via a shared write queue.
package driverstore

import (
	"time"
)

// Record is one driver's presence record (spec §3). Identity fields are
// mutable only via a full sync from the onboarding collaborator; presence
// and location fields are mutated by the operations below.
type Record struct {
	DriverID string
	UserID   string

	Name          string
	Phone         string
	VehicleNumber string
	VehicleModel  string
	VehicleType   string
	Rating        float64

	IsOnline         bool
	IsActive         bool
	IsVerified       bool
	OnboardingStatus string

	Lat     *float64
	Lng     *float64
	H3Index *string
	Heading *float64
	Speed   *float64

	LastActiveAt        time.Time
	ConnectedTransports map[string]struct{}
}

// Dispatchable reports whether the driver satisfies the dispatch
// eligibility predicate (spec glossary): online, active, verified, and
// fully onboarded.
func (r Record) Dispatchable() bool {
	return r.IsOnline && r.IsActive && r.IsVerified && r.OnboardingStatus == "COMPLETED"
}

// clone returns a value copy safe to hand to callers without exposing the
// store's internal pointers to mutable fields.
func (r Record) clone() Record {
	out := r
	if r.Lat != nil {
		lat := *r.Lat
		out.Lat = &lat
	}
	if r.Lng != nil {
		lng := *r.Lng
		out.Lng = &lng
	}
	if r.H3Index != nil {
		h3 := *r.H3Index
		out.H3Index = &h3
	}
	if r.Heading != nil {
		h := *r.Heading
		out.Heading = &h
	}
	if r.Speed != nil {
		s := *r.Speed
		out.Speed = &s
	}
	out.ConnectedTransports = make(map[string]struct{}, len(r.ConnectedTransports))
	for k := range r.ConnectedTransports {
		out.ConnectedTransports[k] = struct{}{}
	}
	return out
}

// NearbyResult is one entry in a FindNearbyDrivers result.
type NearbyResult struct {
	Record     Record
	DistanceKm float64
}
