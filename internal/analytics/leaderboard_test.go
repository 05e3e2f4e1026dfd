package analytics

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/chatpulse/internal/db"
)

func TestLeaderboard(t *testing.T) {
	f := newFixture(t)
	seedMultiAgent(f)
	f.agent(tenantT, "delta", "Bystander")
	e := f.engine()
	q := Query{TenantID: tenantT, AgentID: "ignored", From: "2024-03-04", To: "2024-03-04"}

	got := e.GetLeaderboard(context.Background(), q, nil)
	want := []LeaderboardRow{
		{Rank: 1, AgentID: "alpha", AgentName: "Alpha", MessageCount: 4, ConversationCount: 2, LeadCount: 2},
		{Rank: 2, AgentID: "bravo", AgentName: "Bravo", MessageCount: 2, ConversationCount: 1, LeadCount: 1},
		{Rank: 3, AgentID: "delta", AgentName: "Bystander"},
		{Rank: 4, AgentID: "charlie", AgentName: "Charlie"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("leaderboard mismatch (-want +got):\n%s", diff)
	}
}

func TestLeaderboardExplicitAgents(t *testing.T) {
	f := newFixture(t)
	seedMultiAgent(f)
	e := f.engine()
	q := Query{TenantID: tenantT, From: "2024-03-04", To: "2024-03-04"}

	got := e.GetLeaderboard(context.Background(), q, []db.Agent{
		{ID: "bravo", Name: "Bravo"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, 2, got[0].MessageCount)

	assert.Empty(t, e.GetLeaderboard(context.Background(), q, []db.Agent{}))
}

func TestLeaderboardDegraded(t *testing.T) {
	f := newFixture(t)
	seedMultiAgent(f)
	q := Query{TenantID: tenantT, From: "2024-03-04", To: "2024-03-04"}

	t.Run("listing fails", func(t *testing.T) {
		e := New(&faultyReader{EventReader: f.d, failAgents: true}, DefaultOptions())
		got := e.GetLeaderboard(context.Background(), q, nil)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("one agent fails", func(t *testing.T) {
		e := New(&faultyReader{
			EventReader: f.d,
			failMessages: func(q db.MessageQuery) bool {
				return q.AgentID == "alpha"
			},
		}, DefaultOptions())
		got := e.GetLeaderboard(context.Background(), q, nil)
		require.Len(t, got, 3)
		assert.Equal(t, "bravo", got[0].AgentID)
		assert.Equal(t, "alpha", got[1].AgentID)
		assert.Zero(t, got[1].MessageCount)
	})

	t.Run("malformed", func(t *testing.T) {
		e := f.engine()
		bad := q
		bad.From = "2024-03-05"
		assert.Empty(t, e.GetLeaderboard(context.Background(), bad, nil))
	})
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	seedScenario(f)
	e := f.engine()
	q := scenarioQuery("A")

	d := e.GetDashboard(context.Background(), q)
	assert.Equal(t, q, d.Query)
	assert.Equal(t, e.GetDaySeries(context.Background(), q), d.Days)
	assert.Equal(t, e.GetKPITrend(context.Background(), q), d.KPIs)
	assert.Equal(t, e.GetFunnel(context.Background(), q), d.Funnel)
	assert.Equal(t, e.GetSegments(context.Background(), q), d.Segments)
	assert.Equal(t, e.GetLeaderboard(context.Background(), q, nil), d.Leaderboard)
}
