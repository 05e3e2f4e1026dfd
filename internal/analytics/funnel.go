package analytics

import "context"

// Funnel is the started / engaged / lead conversion funnel.
// EngagedCount never exceeds StartedCount. LeadsCount is an
// identity count and is not bounded by EngagedCount.
type Funnel struct {
	StartedCount int `json:"started_count"`
	EngagedCount int `json:"engaged_count"`
	LeadsCount   int `json:"leads_count"`
}

type funnelAcc struct {
	started   int
	engaged   int
	leadIDs   map[string]struct{}
	leadCount int
}

func (a funnelAcc) funnel() Funnel {
	return Funnel{
		StartedCount: a.started,
		EngagedCount: a.engaged,
		LeadsCount:   a.leadCount,
	}
}

// GetFunnel returns the conversion funnel for the query.
func (e *Engine) GetFunnel(ctx context.Context, q Query) Funnel {
	w, ok := q.window()
	if !ok {
		return Funnel{}
	}
	acc, err := e.funnel(ctx, q, w)
	if err != nil {
		e.degraded("funnel", q, err)
		return Funnel{}
	}
	return acc.funnel()
}

func (e *Engine) funnel(
	ctx context.Context, q Query, w window,
) (funnelAcc, error) {
	if !q.IsAllAgents() {
		return e.agentFunnel(ctx, q.TenantID, q.AgentID, w)
	}
	accs, err := perAgent(ctx, e, "funnel", q,
		func(ctx context.Context, agentID string) (funnelAcc, error) {
			return e.agentFunnel(ctx, q.TenantID, agentID, w)
		})
	if err != nil {
		return funnelAcc{}, err
	}
	return fold(accs, funnelAcc{}, func(a, b funnelAcc) funnelAcc {
		return mergeFunnel(a, b, e.opts.MergeMode)
	}), nil
}

// agentFunnel counts engagement from in-window user messages
// only, unlike agentKPIs which measures full history.
func (e *Engine) agentFunnel(
	ctx context.Context, tenantID, agentID string, w window,
) (funnelAcc, error) {
	s, err := e.resolveStarted(ctx, tenantID, agentID, w)
	if err != nil {
		return funnelAcc{}, err
	}
	ids := s.ids()
	acc := funnelAcc{
		started: len(ids),
		leadIDs: s.leads(ids),
	}
	acc.leadCount = len(acc.leadIDs)
	for _, id := range ids {
		if len(s.userTimes[id]) > 1 {
			acc.engaged++
		}
	}
	return acc, nil
}
