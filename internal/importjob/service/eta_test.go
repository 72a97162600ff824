package service

import (
	"testing"
	"time"

	"github.com/smallbiznis/wealthdesk/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestETATracker_PerRowMean(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker := newETATracker(clk)

	_, ok := tracker.Remaining(150)
	assert.False(t, ok, "no estimate before the first chunk finishes")

	// Three chunks of 50 rows at 2s each: 0.04s per row.
	for i := 0; i < 3; i++ {
		tracker.StartChunk()
		clk.Advance(2 * time.Second)
		tracker.FinishChunk(50)
	}

	remaining, ok := tracker.Remaining(100)
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, remaining)

	_, ok = tracker.Remaining(0)
	assert.False(t, ok, "no estimate when nothing is left")
}

func TestETATracker_BlendsChunkRates(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker := newETATracker(clk)

	tracker.StartChunk()
	clk.Advance(10 * time.Second)
	tracker.FinishChunk(50) // 0.2s per row

	tracker.StartChunk()
	clk.Advance(2 * time.Second)
	tracker.FinishChunk(50) // 0.04s per row

	// Mean rate 0.12s per row.
	remaining, ok := tracker.Remaining(50)
	assert.True(t, ok)
	assert.Equal(t, 6*time.Second, remaining)
}

func TestETATracker_PartialChunkWeighsByRows(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker := newETATracker(clk)

	tracker.StartChunk()
	clk.Advance(5 * time.Second)
	tracker.FinishChunk(50) // 0.1s per row

	// A 10-row tail at the same per-row rate must not change the mean.
	tracker.StartChunk()
	clk.Advance(time.Second)
	tracker.FinishChunk(10)

	remaining, ok := tracker.Remaining(40)
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, remaining)
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "0s", FormatETA(-time.Second))
	assert.Equal(t, "45s", FormatETA(45*time.Second))
	assert.Equal(t, "1m30s", FormatETA(90*time.Second))
	assert.Equal(t, "2m0s", FormatETA(2*time.Minute))
}
