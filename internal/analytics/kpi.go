package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/chatpulse/internal/db"
	"github.com/wesm/chatpulse/internal/timeutil"
)

// PeriodKPI holds whole-period totals. AvgConversationDuration is
// in minutes and nil when no started conversation has more than
// one message.
type PeriodKPI struct {
	TotalMessages           int      `json:"total_messages"`
	TotalConversations      int      `json:"total_conversations"`
	TotalLeads              int      `json:"total_leads"`
	AvgConversationDuration *float64 `json:"avg_conversation_duration"`
}

// KPIDelta is current minus previous for each KPI.
type KPIDelta struct {
	TotalMessages           int      `json:"total_messages"`
	TotalConversations      int      `json:"total_conversations"`
	TotalLeads              int      `json:"total_leads"`
	AvgConversationDuration *float64 `json:"avg_conversation_duration"`
}

// KPITrend pairs a period's KPIs with the equal-length period
// immediately before it.
type KPITrend struct {
	Current      PeriodKPI `json:"current"`
	Previous     PeriodKPI `json:"previous"`
	PreviousFrom string    `json:"previous_from"`
	PreviousTo   string    `json:"previous_to"`
	Trend        KPIDelta  `json:"trend"`
}

type kpiAcc struct {
	messages      int
	conversations int
	leadIDs       map[string]struct{}
	leadCount     int
	dur           durationStats
	avg           *float64
}

func (a kpiAcc) kpi() PeriodKPI {
	return PeriodKPI{
		TotalMessages:           a.messages,
		TotalConversations:      a.conversations,
		TotalLeads:              a.leadCount,
		AvgConversationDuration: a.avg,
	}
}

// GetPeriodKPIs returns the period totals for the query.
func (e *Engine) GetPeriodKPIs(ctx context.Context, q Query) PeriodKPI {
	w, ok := q.window()
	if !ok {
		return PeriodKPI{}
	}
	acc, err := e.periodKPIs(ctx, q, w)
	if err != nil {
		e.degraded("period_kpis", q, err)
		return PeriodKPI{}
	}
	return acc.kpi()
}

// GetKPITrend computes the query's KPIs and those of the
// preceding period of the same day count, and their difference.
func (e *Engine) GetKPITrend(ctx context.Context, q Query) KPITrend {
	w, ok := q.window()
	if !ok {
		return KPITrend{}
	}
	prevFrom, prevTo := timeutil.PreviousPeriod(w.from, w.to)
	prev := q
	prev.From = prevFrom.Format(timeutil.DateLayout)
	prev.To = prevTo.Format(timeutil.DateLayout)

	var t KPITrend
	var g errgroup.Group
	g.Go(func() error {
		t.Current = e.GetPeriodKPIs(ctx, q)
		return nil
	})
	g.Go(func() error {
		t.Previous = e.GetPeriodKPIs(ctx, prev)
		return nil
	})
	_ = g.Wait()

	t.PreviousFrom = prev.From
	t.PreviousTo = prev.To
	t.Trend = KPIDelta{
		TotalMessages:      t.Current.TotalMessages - t.Previous.TotalMessages,
		TotalConversations: t.Current.TotalConversations - t.Previous.TotalConversations,
		TotalLeads:         t.Current.TotalLeads - t.Previous.TotalLeads,
	}
	if c, p := t.Current.AvgConversationDuration, t.Previous.AvgConversationDuration; c != nil && p != nil {
		t.Trend.AvgConversationDuration = roundPtr(*c - *p)
	}
	return t
}

func (e *Engine) periodKPIs(
	ctx context.Context, q Query, w window,
) (kpiAcc, error) {
	if !q.IsAllAgents() {
		return e.agentKPIs(ctx, q.TenantID, q.AgentID, w)
	}
	accs, err := perAgent(ctx, e, "period_kpis", q,
		func(ctx context.Context, agentID string) (kpiAcc, error) {
			return e.agentKPIs(ctx, q.TenantID, agentID, w)
		})
	if err != nil {
		return kpiAcc{}, err
	}
	return fold(accs, kpiAcc{}, func(a, b kpiAcc) kpiAcc {
		return mergeKPI(a, b, e.opts.MergeMode)
	}), nil
}

// agentKPIs measures one agent's started conversations over
// their full history: messages of either sender, dated inside
// the window or not, all count.
func (e *Engine) agentKPIs(
	ctx context.Context, tenantID, agentID string, w window,
) (kpiAcc, error) {
	s, err := e.resolveStarted(ctx, tenantID, agentID, w)
	if err != nil {
		return kpiAcc{}, err
	}
	ids := s.ids()
	acc := kpiAcc{
		conversations: len(ids),
		leadIDs:       s.leads(ids),
	}
	acc.leadCount = len(acc.leadIDs)
	if len(ids) == 0 {
		return acc, nil
	}

	msgs, err := e.store.QueryMessages(ctx, db.MessageQuery{
		TenantID:        tenantID,
		ConversationIDs: ids,
	})
	if err != nil {
		return kpiAcc{}, fmt.Errorf("fetching conversation history: %w", err)
	}
	acc.messages = len(msgs)
	for _, times := range groupTimes(msgs) {
		acc.dur.addSpan(times)
	}
	acc.avg = acc.dur.mean()
	return acc, nil
}

// groupTimes groups message timestamps by conversation, each
// group sorted ascending. Unparsable timestamps are dropped.
func groupTimes(msgs []db.Message) map[string][]time.Time {
	out := make(map[string][]time.Time)
	for _, m := range msgs {
		ts, ok := timeutil.Parse(m.Timestamp)
		if !ok {
			continue
		}
		out[m.ConversationID] = append(out[m.ConversationID], ts)
	}
	for _, times := range out {
		sort.Slice(times, func(i, j int) bool {
			return times[i].Before(times[j])
		})
	}
	return out
}
