package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Encode_StableAndPure(t *testing.T) {
	idx := NewIndex(H3ResolutionMatching)

	a := idx.Encode(28.6139, 77.2090)
	b := idx.Encode(28.6139, 77.2090)

	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
}

func TestIndex_KRing_IncludesCenter(t *testing.T) {
	idx := NewIndex(H3ResolutionMatching)
	center := idx.Encode(28.6139, 77.2090)

	ring := idx.KRing(center, 2)

	assert.Contains(t, ring, center)
	assert.True(t, len(ring) > 1)
}

func TestHaversineKm_ZeroForSamePoint(t *testing.T) {
	d := HaversineKm(28.6139, 77.2090, 28.6139, 77.2090)
	assert.InDelta(t, 0, d, 0.0001)
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Connaught Place to IGI Airport, Delhi: roughly 15km apart.
	d := HaversineKm(28.6315, 77.2167, 28.5562, 77.1000)
	assert.InDelta(t, 15, d, 3)
}

func TestIndex_FindExpanding_StopsAtFirstNonEmptyRing(t *testing.T) {
	idx := NewIndex(H3ResolutionMatching)
	calls := 0

	result := idx.FindExpanding(28.6139, 77.2090, 6, func(cells []string) []Candidate {
		calls++
		if calls < 3 {
			return nil
		}
		return []Candidate{
			{ID: "driver-b", Distance: 1.2},
			{ID: "driver-a", Distance: 1.2},
		}
	})

	require.Len(t, result, 2)
	assert.Equal(t, 3, calls)
	// Tie-break on distance: lower driverId first.
	assert.Equal(t, "driver-a", result[0].ID)
	assert.Equal(t, "driver-b", result[1].ID)
}

func TestIndex_FindExpanding_NeverExceedsMaxK(t *testing.T) {
	idx := NewIndex(H3ResolutionMatching)
	calls := 0

	result := idx.FindExpanding(28.6139, 77.2090, 4, func(cells []string) []Candidate {
		calls++
		return nil
	})

	assert.Nil(t, result)
	assert.Equal(t, 4, calls)
}
