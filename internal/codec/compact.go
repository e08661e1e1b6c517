package codec

import (
	"encoding/json"
	"math"
)

// CompactLocation is the single-letter-key JSON variant of Location, used
// when a client negotiates application/x-raahi-compact. Coordinates are
// rounded to 6 decimal places.
type CompactLocation struct {
	Lat      float64 `json:"a"`
	Lng      float64 `json:"o"`
	Heading  float64 `json:"h"`
	Speed    float64 `json:"s"`
	Sec      uint32  `json:"t"`
	H3       string  `json:"x,omitempty"`
	DriverID string  `json:"d,omitempty"`
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

// ToCompact converts a Location to its compact-JSON representation.
func ToCompact(loc Location, h3Index, driverID string) CompactLocation {
	return CompactLocation{
		Lat:      round6(loc.Lat),
		Lng:      round6(loc.Lng),
		Heading:  clampHeading(loc.Heading),
		Speed:    clampSpeed(loc.Speed),
		Sec:      loc.TimestampSec,
		H3:       h3Index,
		DriverID: driverID,
	}
}

// FromCompact converts a compact-JSON representation back to a Location.
// The H3 index and driverId strings are carried separately since Location
// stores only their binary fingerprints.
func (c CompactLocation) FromCompact() (loc Location, h3Index, driverID string) {
	return Location{
		Lat:          c.Lat,
		Lng:          c.Lng,
		Heading:      clampHeading(c.Heading),
		Speed:        clampSpeed(c.Speed),
		TimestampSec: c.Sec,
	}, c.H3, c.DriverID
}

// MarshalCompact encodes a CompactLocation to JSON bytes.
func MarshalCompact(loc Location, h3Index, driverID string) ([]byte, error) {
	return json.Marshal(ToCompact(loc, h3Index, driverID))
}

// UnmarshalCompact decodes compact-JSON bytes into a Location plus its
// string identifiers.
func UnmarshalCompact(data []byte) (loc Location, h3Index, driverID string, err error) {
	var c CompactLocation
	if err = json.Unmarshal(data, &c); err != nil {
		return Location{}, "", "", err
	}
	loc, h3Index, driverID = c.FromCompact()
	return loc, h3Index, driverID, nil
}
