package analytics

import (
	"math"
	"time"
)

// durationStats accumulates conversation duration samples in
// minutes.
type durationStats struct {
	n   int
	sum float64
	min float64
	max float64
}

func (d *durationStats) add(mins float64) {
	if d.n == 0 || mins < d.min {
		d.min = mins
	}
	if d.n == 0 || mins > d.max {
		d.max = mins
	}
	d.n++
	d.sum += mins
}

// addSpan samples the span of sorted timestamps when there is
// more than one of them.
func (d *durationStats) addSpan(times []time.Time) {
	if len(times) < 2 {
		return
	}
	d.add(times[len(times)-1].Sub(times[0]).Minutes())
}

func (d durationStats) merge(o durationStats) durationStats {
	if o.n == 0 {
		return d
	}
	if d.n == 0 {
		return o
	}
	return durationStats{
		n:   d.n + o.n,
		sum: d.sum + o.sum,
		min: math.Min(d.min, o.min),
		max: math.Max(d.max, o.max),
	}
}

func (d durationStats) mean() *float64 {
	if d.n == 0 {
		return nil
	}
	return roundPtr(d.sum / float64(d.n))
}

func (d durationStats) minPtr() *float64 {
	if d.n == 0 {
		return nil
	}
	return roundPtr(d.min)
}

func (d durationStats) maxPtr() *float64 {
	if d.n == 0 {
		return nil
	}
	return roundPtr(d.max)
}

// legacyAverage folds two per-agent mean durations as (a + b) / 2.
// A nil side contributes nothing.
func legacyAverage(a, b *float64) *float64 {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return roundPtr((*a + *b) / 2)
}

// ratio returns num/den, or nil when den is zero.
func ratio(num, den int) *float64 {
	if den == 0 {
		return nil
	}
	return roundPtr(float64(num) / float64(den))
}

// roundPtr rounds to two decimals.
func roundPtr(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

// unionInto adds every key of src to dst.
func unionInto(dst, src map[string]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}
