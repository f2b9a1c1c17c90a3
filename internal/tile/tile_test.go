package tile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiplier_PastAndPresentInvalid(t *testing.T) {
	assert.Equal(t, 0.0, Multiplier(5, 5))
	assert.Equal(t, 0.0, Multiplier(4, 5))
	assert.Equal(t, 0.0, Multiplier(0, 10))
}

func TestMultiplier_Tiers(t *testing.T) {
	tests := []struct {
		distance int
		want     float64
	}{
		{1, 1.2},
		{2, 1.3},
		{3, 1.4},
		{4, 1.7},
		{5, 1.9},
		{8, 2.5},
		{9, 2.8},
		{10, 3.1},
		{15, 4.6},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Multiplier(tt.distance, 0), 1e-9, "distance %d", tt.distance)
	}
}

func TestMultiplier_MonotonicNonDecreasing(t *testing.T) {
	prev := 0.0
	for col := 1; col <= 40; col++ {
		m := Multiplier(col, 0)
		assert.GreaterOrEqual(t, m, prev, "col %d", col)
		prev = m
	}
}

func TestMultiplier_StrictIncreaseAtTierBoundaries(t *testing.T) {
	// Last column of each tier vs first column of the next.
	assert.Greater(t, Multiplier(4, 0), Multiplier(3, 0))
	assert.Greater(t, Multiplier(9, 0), Multiplier(8, 0))
}

func TestMultiplierBps(t *testing.T) {
	assert.Equal(t, int64(120), MultiplierBps(1, 0))
	assert.Equal(t, int64(140), MultiplierBps(3, 0))
	assert.Equal(t, int64(250), MultiplierBps(8, 0))
	assert.Equal(t, int64(310), MultiplierBps(10, 0))
	assert.Equal(t, int64(0), MultiplierBps(0, 0))
}

func TestWinProfit_Truncates(t *testing.T) {
	assert.Equal(t, int64(120), WinProfit(100, 120))
	// 33 * 130 / 100 = 42.9 -> 42
	assert.Equal(t, int64(42), WinProfit(33, 130))
	assert.Equal(t, int64(0), WinProfit(0, 250))
}

func TestTargetPrice(t *testing.T) {
	assert.Equal(t, 68000.0, TargetPrice(0, 68000))
	assert.Equal(t, 68075.0, TargetPrice(3, 68000))
	assert.Equal(t, 67925.0, TargetPrice(-3, 68000))
}

func TestInRange_RoundTrip(t *testing.T) {
	base := 68000.0
	for row := -5; row <= 5; row++ {
		assert.True(t, InRange(TargetPrice(row, base), row, base), "row %d lower bound", row)
	}
}

func TestInRange_HalfOpenBoundary(t *testing.T) {
	base := 68000.0
	upper := TargetPrice(3, base) // boundary between row 2 and row 3

	// The boundary price belongs to the upper row only.
	assert.True(t, InRange(upper, 3, base))
	assert.False(t, InRange(upper, 2, base))

	// Just below the boundary belongs to the lower row only.
	assert.True(t, InRange(upper-0.01, 2, base))
	assert.False(t, InRange(upper-0.01, 3, base))
}

func TestInRange_NoDoubleCounting(t *testing.T) {
	base := 68000.0
	prices := []float64{67900, 67925, 67999.99, 68000, 68012.5, 68025, 68100}
	for _, p := range prices {
		hits := 0
		for row := -10; row <= 10; row++ {
			if InRange(p, row, base) {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "price %v must land in exactly one row", p)
	}
}
