package analytics

import (
	"context"
	"time"
)

// DayBucket holds one calendar day of activity. Durations are in
// minutes; nullable fields are nil when their denominator is zero.
//
// TotalLeads and NewLeads carry the same value: the distinct leads
// counted on that day, not a first-ever test.
type DayBucket struct {
	Date                       string   `json:"date"`
	MessageCount               int      `json:"message_count"`
	ConversationCount          int      `json:"conversation_count"`
	TotalLeads                 int      `json:"total_leads"`
	NewLeads                   int      `json:"new_leads"`
	MinConversationDuration    *float64 `json:"min_conversation_duration"`
	MaxConversationDuration    *float64 `json:"max_conversation_duration"`
	AvgConversationDuration    *float64 `json:"avg_conversation_duration"`
	AvgMessagesPerConversation *float64 `json:"avg_messages_per_conversation"`
	AvgMessagesPerLead         *float64 `json:"avg_messages_per_lead"`
}

// dayAcc is the mergeable form of a DayBucket.
type dayAcc struct {
	date          string
	messages      int
	conversations int
	leadIDs       map[string]struct{}
	leadCount     int
	dur           durationStats
	avg           *float64
}

func (a dayAcc) bucket() DayBucket {
	return DayBucket{
		Date:                       a.date,
		MessageCount:               a.messages,
		ConversationCount:          a.conversations,
		TotalLeads:                 a.leadCount,
		NewLeads:                   a.leadCount,
		MinConversationDuration:    a.dur.minPtr(),
		MaxConversationDuration:    a.dur.maxPtr(),
		AvgConversationDuration:    a.avg,
		AvgMessagesPerConversation: ratio(a.messages, a.conversations),
		AvgMessagesPerLead:         ratio(a.messages, a.leadCount),
	}
}

// GetDaySeries returns one bucket per calendar day in the range,
// ascending, with zero-filled buckets for idle days. A malformed
// range yields an empty series.
func (e *Engine) GetDaySeries(ctx context.Context, q Query) []DayBucket {
	w, ok := q.window()
	if !ok {
		return []DayBucket{}
	}
	accs, err := e.daySeries(ctx, q, w)
	if err != nil {
		e.degraded("day_series", q, err)
		accs = emptyDays(w)
	}
	out := make([]DayBucket, len(accs))
	for i, a := range accs {
		out[i] = a.bucket()
	}
	return out
}

func (e *Engine) daySeries(
	ctx context.Context, q Query, w window,
) ([]dayAcc, error) {
	if !q.IsAllAgents() {
		return e.agentDays(ctx, q.TenantID, q.AgentID, w)
	}
	series, err := perAgent(ctx, e, "day_series", q,
		func(ctx context.Context, agentID string) ([]dayAcc, error) {
			return e.agentDays(ctx, q.TenantID, agentID, w)
		})
	if err != nil {
		return nil, err
	}
	merged := emptyDays(w)
	for i, s := range series {
		for d := range merged {
			if i == 0 {
				merged[d] = s[d]
				continue
			}
			merged[d] = mergeDay(merged[d], s[d], e.opts.MergeMode)
		}
	}
	return merged, nil
}

func emptyDays(w window) []dayAcc {
	dates := w.dates()
	out := make([]dayAcc, len(dates))
	for i, d := range dates {
		out[i] = dayAcc{date: d, leadIDs: map[string]struct{}{}}
	}
	return out
}

// agentDays buckets one agent's in-window user messages by local
// calendar day. A conversation that spans midnight is measured
// separately on each day it touches.
func (e *Engine) agentDays(
	ctx context.Context, tenantID, agentID string, w window,
) ([]dayAcc, error) {
	s, err := e.resolveStarted(ctx, tenantID, agentID, w)
	if err != nil {
		return nil, err
	}

	days := emptyDays(w)
	index := make(map[string]int, len(days))
	for i, d := range days {
		index[d.date] = i
	}

	for _, convID := range s.ids() {
		// Split this conversation's user messages by day. Times
		// are sorted, so each day's slice is sorted too.
		perDay := make(map[int][]time.Time)
		for _, ts := range s.userTimes[convID] {
			i, ok := index[w.localDate(ts)]
			if !ok {
				continue
			}
			perDay[i] = append(perDay[i], ts)
		}
		for i, times := range perDay {
			d := &days[i]
			d.messages += len(times)
			d.conversations++
			d.dur.addSpan(times)
			if c, ok := s.convs[convID]; ok && c.EndUserID != nil {
				d.leadIDs[*c.EndUserID] = struct{}{}
			}
		}
	}

	for i := range days {
		days[i].leadCount = len(days[i].leadIDs)
		days[i].avg = days[i].dur.mean()
	}
	return days, nil
}
