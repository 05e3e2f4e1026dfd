package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wesm/chatpulse/internal/db"
	"github.com/wesm/chatpulse/internal/timeutil"
)

// Segments splits the period's leads by whether their first-ever
// user message falls inside the period.
type Segments struct {
	NewUsers       int `json:"new_users"`
	ReturningUsers int `json:"returning_users"`
}

// errNoHistory marks a lead whose history lookup found no user
// message. Such leads are excluded from both counts.
var errNoHistory = errors.New("no user messages in history")

// GetSegments classifies the leads active in the period as new or
// returning. Each lead's history is looked up independently with
// at most LookupConcurrency lookups in flight; leads whose lookup
// fails are excluded.
func (e *Engine) GetSegments(ctx context.Context, q Query) Segments {
	w, ok := q.window()
	if !ok {
		return Segments{}
	}
	seg, err := e.segments(ctx, q, w)
	if err != nil {
		e.degraded("segments", q, err)
		return Segments{}
	}
	return seg
}

func (e *Engine) segments(
	ctx context.Context, q Query, w window,
) (Segments, error) {
	agentID := q.AgentID
	if q.IsAllAgents() {
		agentID = ""
	}
	s, err := e.resolveStarted(ctx, q.TenantID, agentID, w)
	if err != nil {
		return Segments{}, err
	}
	leadSet := s.leads(s.ids())
	leads := make([]string, 0, len(leadSet))
	for id := range leadSet {
		leads = append(leads, id)
	}
	sort.Strings(leads)

	historyAgent := ""
	if e.opts.HistoryScope == HistoryAgent {
		historyAgent = agentID
	}

	var seg Segments
	results := fanOut(ctx, e.opts.LookupConcurrency, leads,
		func(ctx context.Context, lead string) (time.Time, error) {
			return e.firstUserMessage(ctx, q.TenantID, historyAgent, lead)
		})
	if err := ctx.Err(); err != nil {
		return Segments{}, err
	}
	for _, r := range results {
		switch {
		case errors.Is(r.err, errNoHistory):
			continue
		case r.err != nil:
			e.degraded("segments", q, fmt.Errorf("lead %s: %w", r.key, r.err))
			continue
		case r.val.Before(w.start):
			seg.ReturningUsers++
		case r.val.Before(w.end):
			seg.NewUsers++
		}
	}
	return seg, nil
}

// firstUserMessage returns the lead's earliest user message time
// across every conversation it has had in the tenant, or with
// agentID set, with that agent only.
func (e *Engine) firstUserMessage(
	ctx context.Context, tenantID, agentID, lead string,
) (time.Time, error) {
	convs, err := e.store.QueryConversations(ctx, db.ConversationQuery{
		TenantID:  tenantID,
		EndUserID: lead,
		AgentID:   agentID,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("listing lead conversations: %w", err)
	}
	if len(convs) == 0 {
		return time.Time{}, errNoHistory
	}
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	msgs, err := e.store.QueryMessages(ctx, db.MessageQuery{
		TenantID:        tenantID,
		Sender:          db.SenderUser,
		ConversationIDs: ids,
		Limit:           1,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("fetching first message: %w", err)
	}
	if len(msgs) == 0 {
		return time.Time{}, errNoHistory
	}
	ts, ok := timeutil.Parse(msgs[0].Timestamp)
	if !ok {
		return time.Time{}, errNoHistory
	}
	return ts, nil
}
