package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLegacyAverage(t *testing.T) {
	tests := []struct {
		name string
		a, b *float64
		want *float64
	}{
		{"both", Ptr(10.0), Ptr(20.0), Ptr(15.0)},
		{"left nil", nil, Ptr(20.0), Ptr(20.0)},
		{"right nil", Ptr(10.0), nil, Ptr(10.0)},
		{"both nil", nil, nil, nil},
		{"rounded", Ptr(1.0), Ptr(2.34), Ptr(1.67)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, legacyAverage(tt.a, tt.b))
		})
	}
}

func TestDurationStats(t *testing.T) {
	var d durationStats
	assert.Nil(t, d.mean())
	assert.Nil(t, d.minPtr())
	assert.Nil(t, d.maxPtr())

	base := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	d.addSpan([]time.Time{base})
	assert.Zero(t, d.n, "single timestamp is not a sample")
	d.addSpan([]time.Time{base, base.Add(90 * time.Second)})
	d.addSpan([]time.Time{base, base.Add(time.Minute), base.Add(10 * time.Minute)})
	assert.Equal(t, Ptr(5.75), d.mean())
	assert.Equal(t, Ptr(1.5), d.minPtr())
	assert.Equal(t, Ptr(10.0), d.maxPtr())

	var o durationStats
	o.add(30)
	m := d.merge(o)
	assert.Equal(t, 3, m.n)
	assert.Equal(t, Ptr(30.0), m.maxPtr())
	assert.Equal(t, d, d.merge(durationStats{}))
	assert.Equal(t, o, durationStats{}.merge(o))
}

func TestRatio(t *testing.T) {
	assert.Nil(t, ratio(5, 0))
	assert.Equal(t, Ptr(2.5), ratio(5, 2))
	assert.Equal(t, Ptr(0.33), ratio(1, 3))
}

func TestMergeDay(t *testing.T) {
	mk := func(msgs int, leads []string, samples ...float64) dayAcc {
		a := dayAcc{date: "2024-03-04", messages: msgs, conversations: len(samples), leadIDs: map[string]struct{}{}}
		for _, l := range leads {
			a.leadIDs[l] = struct{}{}
		}
		for _, s := range samples {
			a.dur.add(s)
		}
		a.leadCount = len(a.leadIDs)
		a.avg = a.dur.mean()
		return a
	}
	a := mk(4, []string{"U1", "U2"}, 10, 20)
	b := mk(2, []string{"U1"}, 60)

	legacy := mergeDay(a, b, MergeLegacy)
	assert.Equal(t, 6, legacy.messages)
	assert.Equal(t, 3, legacy.conversations)
	assert.Equal(t, 3, legacy.leadCount)
	assert.Equal(t, Ptr(37.5), legacy.avg)

	accurate := mergeDay(a, b, MergeAccurate)
	assert.Equal(t, 2, accurate.leadCount)
	assert.Equal(t, Ptr(30.0), accurate.avg)
	assert.Equal(t, "2024-03-04", accurate.date)

	// Folding more than two agents stays pairwise left to right in
	// legacy mode, so the last agent carries half the weight.
	c := mk(2, []string{"U3"}, 90)
	legacyFold := func(x, y dayAcc) dayAcc { return mergeDay(x, y, MergeLegacy) }
	abc := fold([]dayAcc{a, b, c}, dayAcc{}, legacyFold)
	assert.Equal(t, Ptr(63.75), abc.avg)
	assert.Equal(t, 10, abc.messages)
	assert.Equal(t, 4, abc.leadCount)
	cab := fold([]dayAcc{c, a, b}, dayAcc{}, legacyFold)
	assert.Equal(t, Ptr(56.25), cab.avg)

	accurateFold := func(x, y dayAcc) dayAcc { return mergeDay(x, y, MergeAccurate) }
	assert.Equal(t, Ptr(45.0), fold([]dayAcc{a, b, c}, dayAcc{}, accurateFold).avg)
	assert.Equal(t, Ptr(45.0), fold([]dayAcc{c, a, b}, dayAcc{}, accurateFold).avg)
}

func TestFoldEmpty(t *testing.T) {
	got := fold(nil, 7, func(a, b int) int { return a + b })
	assert.Equal(t, 7, got)
}

func TestFanOut(t *testing.T) {
	boom := errors.New("boom")
	keys := []string{"a", "b", "c"}
	res := fanOut(context.Background(), 2, keys,
		func(_ context.Context, k string) (string, error) {
			if k == "b" {
				return "", boom
			}
			return k + k, nil
		})
	assert.Len(t, res, 3)
	assert.Equal(t, "aa", res[0].val)
	assert.ErrorIs(t, res[1].err, boom)
	assert.Equal(t, "cc", res[2].val)
	assert.Equal(t, "c", res[2].key)
}
