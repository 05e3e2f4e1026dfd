package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wesm/chatpulse/internal/db"
)

// startedSet is the population every period view is built on:
// conversations with at least one user message in the window.
type startedSet struct {
	// userTimes holds each started conversation's in-window user
	// message timestamps, ascending.
	userTimes map[string][]time.Time
	convs     map[string]db.Conversation
}

// ids returns the started conversation ids in sorted order.
func (s *startedSet) ids() []string {
	ids := make([]string, 0, len(s.userTimes))
	for id := range s.userTimes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// leads returns the distinct non-null end users among the given
// conversation ids.
func (s *startedSet) leads(ids []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, id := range ids {
		c, ok := s.convs[id]
		if !ok || c.EndUserID == nil {
			continue
		}
		out[*c.EndUserID] = struct{}{}
	}
	return out
}

// resolveStarted fetches user messages in the window for the
// tenant (and agent, when non-empty), groups them by
// conversation and joins the conversation rows for lead ids.
func (e *Engine) resolveStarted(
	ctx context.Context, tenantID, agentID string, w window,
) (*startedSet, error) {
	msgs, err := e.store.QueryMessages(ctx, db.MessageQuery{
		TenantID: tenantID,
		AgentID:  agentID,
		Sender:   db.SenderUser,
		From:     w.start,
		To:       w.end,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching user messages: %w", err)
	}

	s := &startedSet{
		userTimes: groupTimes(msgs),
		convs:     make(map[string]db.Conversation),
	}
	if len(s.userTimes) == 0 {
		return s, nil
	}

	convs, err := e.store.QueryConversations(ctx, db.ConversationQuery{
		TenantID: tenantID,
		IDs:      s.ids(),
	})
	if err != nil {
		return nil, fmt.Errorf("joining conversations: %w", err)
	}
	for _, c := range convs {
		s.convs[c.ID] = c
	}
	return s, nil
}
