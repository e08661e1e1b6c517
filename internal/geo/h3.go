package geo

import (
	"math"
	"sort"

	"github.com/uber/h3-go/v4"
)

// H3ResolutionMatching is the hex resolution the dispatch core runs its
// driver-rider matching at (~175m edge, ~0.11 km²). See:
// https://h3geo.org/docs/core-library/restable
const H3ResolutionMatching = 9

// LatLngToCell converts latitude/longitude to an H3 cell index at the given resolution.
// Returns the zero cell on invalid input (latitude/longitude out of range), which should be validated upstream.
func LatLngToCell(lat, lng float64, resolution int) h3.Cell {
	latLng := h3.NewLatLng(lat, lng)
	cell, err := h3.LatLngToCell(latLng, resolution)
	if err != nil {
		return 0
	}
	return cell
}

// CellToString converts an H3 cell to its hex string representation.
func CellToString(cell h3.Cell) string {
	return cell.String()
}

// StringToCell parses an H3 cell hex string back to a Cell.
func StringToCell(s string) h3.Cell {
	return h3.CellFromString(s)
}

// Index is the dispatch core's GeoIndex (component C1): a hexagonal cell
// encoder fixed to one resolution for the lifetime of the process, plus the
// k-ring and haversine primitives the driver and ride stores build on.
type Index struct {
	resolution int
}

// NewIndex returns a GeoIndex at the given H3 resolution (spec §6
// "Environment" names this as a configured value; H3ResolutionMatching is
// the production default).
func NewIndex(resolution int) *Index {
	return &Index{resolution: resolution}
}

// Encode converts a coordinate to its H3 cell string at the index's
// resolution. Pure and stable: the same input always yields the same cell.
func (idx *Index) Encode(lat, lng float64) string {
	return CellToString(LatLngToCell(lat, lng, idx.resolution))
}

// KRing returns the set of H3 cell strings within k rings of center,
// including center itself.
func (idx *Index) KRing(center string, k int) []string {
	cell := StringToCell(center)
	ring, err := cell.GridDisk(k)
	if err != nil {
		return []string{center}
	}
	out := make([]string, len(ring))
	for i, c := range ring {
		out[i] = CellToString(c)
	}
	return out
}

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers, used as the post-filter after a coarse k-ring match.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Candidate is one probe result considered by FindExpanding: an entity id
// together with its distance from the search center, used for tie-breaking.
type Candidate struct {
	ID       string
	Distance float64
}

// FindExpanding implements the expanding k-ring search from spec §4.1:
// starting at k=1, it asks probe for candidates in the current ring set and
// stops at the first k that yields any result, never searching beyond maxK.
// Results are sorted by distance, ties broken by ascending ID so fan-out is
// deterministic across runs.
func (idx *Index) FindExpanding(lat, lng float64, maxK int, probe func(cells []string) []Candidate) []Candidate {
	center := idx.Encode(lat, lng)
	for k := 1; k <= maxK; k++ {
		cells := idx.KRing(center, k)
		candidates := probe(cells)
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].Distance != candidates[j].Distance {
				return candidates[i].Distance < candidates[j].Distance
			}
			return candidates[i].ID < candidates[j].ID
		})
		return candidates
	}
	return nil
}
