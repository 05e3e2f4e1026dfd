package analytics

import (
	"context"
	"sort"

	"github.com/wesm/chatpulse/internal/db"
)

// LeaderboardRow ranks one agent. Counts are copied from
// GetPeriodKPIs for that agent and period.
type LeaderboardRow struct {
	Rank              int    `json:"rank"`
	AgentID           string `json:"agent_id"`
	AgentName         string `json:"agent_name"`
	MessageCount      int    `json:"message_count"`
	ConversationCount int    `json:"conversation_count"`
	LeadCount         int    `json:"lead_count"`
}

// GetLeaderboard returns one row per agent for the query's tenant
// and period, ranked by message count, then conversation count,
// then name. The query's agent selector is ignored. A nil agents
// slice lists the tenant's agents from the store.
func (e *Engine) GetLeaderboard(
	ctx context.Context, q Query, agents []db.Agent,
) []LeaderboardRow {
	if _, ok := q.window(); !ok {
		return []LeaderboardRow{}
	}
	if agents == nil {
		var err error
		agents, err = e.store.ListAgents(ctx, q.TenantID)
		if err != nil {
			e.degraded("leaderboard", q, err)
			return []LeaderboardRow{}
		}
	}

	keys := make([]string, len(agents))
	for i, a := range agents {
		keys[i] = a.ID
	}
	results := fanOut(ctx, e.opts.AgentConcurrency, keys,
		func(ctx context.Context, agentID string) (PeriodKPI, error) {
			return e.GetPeriodKPIs(ctx, q.forAgent(agentID)), nil
		})

	rows := make([]LeaderboardRow, len(agents))
	for i, a := range agents {
		k := results[i].val
		rows[i] = LeaderboardRow{
			AgentID:           a.ID,
			AgentName:         a.Name,
			MessageCount:      k.TotalMessages,
			ConversationCount: k.TotalConversations,
			LeadCount:         k.TotalLeads,
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.MessageCount != b.MessageCount {
			return a.MessageCount > b.MessageCount
		}
		if a.ConversationCount != b.ConversationCount {
			return a.ConversationCount > b.ConversationCount
		}
		return a.AgentName < b.AgentName
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
