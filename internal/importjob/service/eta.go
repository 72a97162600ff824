package service

import (
	"fmt"
	"math"
	"time"

	"github.com/smallbiznis/wealthdesk/internal/clock"
)

// etaTracker keeps an incremental mean of seconds-per-row across every
// finished chunk. Remaining time is that rate times the rows left, so a
// short final chunk never skews the estimate.
type etaTracker struct {
	clock      clock.Clock
	chunkStart time.Time
	chunks     int64
	perRow     float64
}

func newETATracker(clk clock.Clock) *etaTracker {
	return &etaTracker{clock: clk}
}

func (t *etaTracker) StartChunk() {
	t.chunkStart = t.clock.Now()
}

func (t *etaTracker) FinishChunk(rows int) {
	if rows <= 0 {
		return
	}
	rate := t.clock.Now().Sub(t.chunkStart).Seconds() / float64(rows)
	t.chunks++
	t.perRow += (rate - t.perRow) / float64(t.chunks)
}

// Remaining returns the estimate for rowsLeft more rows, or false
// before the first chunk has finished or once nothing is left.
func (t *etaTracker) Remaining(rowsLeft int64) (time.Duration, bool) {
	if t.chunks == 0 || rowsLeft <= 0 {
		return 0, false
	}
	return time.Duration(math.Round(t.perRow * float64(rowsLeft) * float64(time.Second))), true
}

// FormatETA renders a duration the way operators read it: seconds under
// a minute, minutes and seconds beyond.
func FormatETA(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
