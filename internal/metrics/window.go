package metrics

import (
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"horde-monitor/internal/horde"
)

const msPerHour = int64(time.Hour / time.Millisecond)

var half = decimal.New(5, -1)

// DataPoint is one retained window entry. KudosChange is invalid (absent) for
// the oldest retained point because it has no predecessor in the window.
type DataPoint struct {
	Timestamp     time.Time
	Kudos         decimal.Decimal
	KudosChange   decimal.NullDecimal
	ImageRequests int
	TextRequests  int
}

// TimestampMs returns the point time in milliseconds since the epoch.
func (p DataPoint) TimestampMs() int64 {
	return p.Timestamp.UnixMilli()
}

// Requests is the total number of in-flight jobs at sample time.
func (p DataPoint) Requests() int {
	return p.ImageRequests + p.TextRequests
}

// Stats are derived from the whole window after each append.
type Stats struct {
	KudosPerHour    int64 `json:"kudos_per_hour"`
	RequestsPerHour int64 `json:"requests_per_hour"`
}

// Window is an ordered FIFO of DataPoints bounded by a point count.
// It is safe for concurrent use.
type Window struct {
	mu     sync.RWMutex
	limit  int
	points []DataPoint
	stats  Stats
}

// NewWindow returns an empty window retaining at most limit points.
// Limits below one are raised to one.
func NewWindow(limit int) *Window {
	return &Window{limit: max(limit, 1)}
}

// Append derives a DataPoint from sample, pushes it to the back, evicts from
// the front past the bound and recomputes Stats. It returns the stored point.
//
// A sample stamped earlier than the newest retained point is clamped to that
// point's timestamp so the window stays non-decreasing.
func (w *Window) Append(sample horde.Sample) DataPoint {
	w.mu.Lock()
	defer w.mu.Unlock()

	point := DataPoint{
		Timestamp:     sample.Timestamp,
		Kudos:         sample.Kudos,
		ImageRequests: len(sample.ImageIDs),
		TextRequests:  len(sample.TextIDs),
	}
	if n := len(w.points); n > 0 {
		last := w.points[n-1]
		if point.Timestamp.Before(last.Timestamp) {
			point.Timestamp = last.Timestamp
		}
		point.KudosChange = decimal.NewNullDecimal(point.Kudos.Sub(last.Kudos))
	}

	w.points = append(w.points, point)
	w.trimLocked(w.limit)
	w.recomputeLocked()

	return w.points[len(w.points)-1]
}

// Points returns a copy of the window, oldest first.
func (w *Window) Points() []DataPoint {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]DataPoint, len(w.points))
	copy(out, w.points)
	return out
}

// Stats returns the aggregate computed by the last append.
func (w *Window) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// Len reports the number of retained points.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.points)
}

// Limit reports the active retention bound.
func (w *Window) Limit() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.limit
}

// Retain sets the retention bound to n and drops all but the newest n points
// immediately. Stats are left as they are until the next append.
func (w *Window) Retain(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.limit = max(n, 1)
	w.trimLocked(w.limit)
}

// Clear drops every point and zeroes Stats. The bound is kept.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.points = nil
	w.stats = Stats{}
}

func (w *Window) trimLocked(limit int) {
	excess := len(w.points) - limit
	if excess <= 0 {
		return
	}

	kept := copy(w.points, w.points[excess:])
	clear(w.points[kept:])
	w.points = w.points[:kept]
	w.points[0].KudosChange = decimal.NullDecimal{}
}

// recomputeLocked rebuilds Stats from the full window. With fewer than two
// points nothing is derived; with a zero time span the previous kudos rate is
// kept rather than dividing by zero.
func (w *Window) recomputeLocked() {
	n := len(w.points)
	if n < 2 {
		return
	}

	total := lo.SumBy(w.points, func(p DataPoint) int64 { return int64(p.Requests()) })
	mean := decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(n)))
	w.stats.RequestsPerHour = roundHalfUp(mean)

	first, last := w.points[0], w.points[n-1]
	span := last.TimestampMs() - first.TimestampMs()
	if span <= 0 {
		return
	}

	rate := last.Kudos.Sub(first.Kudos).
		Mul(decimal.NewFromInt(msPerHour)).
		Div(decimal.NewFromInt(span))
	w.stats.KudosPerHour = roundHalfUp(rate)
}

// roundHalfUp rounds ties toward positive infinity.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Add(half).Floor().IntPart()
}
