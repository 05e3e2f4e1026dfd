// Package analytics turns the raw messages and conversations of
// the event store into dashboard metrics: day series, period KPIs
// with trends, a conversion funnel, new-vs-returning segments and
// per-agent leaderboards.
//
// Every call is a fresh, stateless computation. Public methods
// never return errors: a store failure degrades the affected
// metric to its zero value and is logged.
package analytics

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wesm/chatpulse/internal/db"
)

// AllAgents is the agent sentinel selecting every agent the
// tenant owns. An empty agent id means the same.
const AllAgents = "__all__"

// EventReader is the read-only view of the event store the
// engine consumes. *db.DB implements it.
type EventReader interface {
	QueryMessages(ctx context.Context, q db.MessageQuery) ([]db.Message, error)
	QueryConversations(ctx context.Context, q db.ConversationQuery) ([]db.Conversation, error)
	ListAgents(ctx context.Context, tenantID string) ([]db.Agent, error)
}

var _ EventReader = (*db.DB)(nil)

// MergeMode selects how per-agent results are folded in
// all-agents mode.
type MergeMode string

const (
	// MergeLegacy averages per-agent mean durations pairwise,
	// (a + b) / 2, and sums per-agent unique lead counts without
	// deduplicating visitors who talked to several agents.
	MergeLegacy MergeMode = "legacy"
	// MergeAccurate weights duration means by sample count and
	// deduplicates leads across agents.
	MergeAccurate MergeMode = "accurate"
)

// Valid reports whether m is a known merge mode.
func (m MergeMode) Valid() bool {
	return m == MergeLegacy || m == MergeAccurate
}

// HistoryScope selects which conversations count toward a lead's
// first-ever activity in segment classification.
type HistoryScope string

const (
	// HistoryTenant looks at every conversation of the lead in
	// the tenant, across agents.
	HistoryTenant HistoryScope = "tenant"
	// HistoryAgent restricts the lookup to the queried agent
	// when a single agent is selected.
	HistoryAgent HistoryScope = "agent"
)

// Valid reports whether s is a known history scope.
func (s HistoryScope) Valid() bool {
	return s == HistoryTenant || s == HistoryAgent
}

const (
	defaultLookupConcurrency = 8
	defaultAgentConcurrency  = 4
)

// Options configures an Engine.
type Options struct {
	MergeMode         MergeMode
	HistoryScope      HistoryScope
	LookupConcurrency int // per-lead history lookups in flight
	AgentConcurrency  int // per-agent sub-queries in flight
	Logger            zerolog.Logger
}

// DefaultOptions returns legacy merging, tenant-wide history and
// default concurrency limits with logging disabled.
func DefaultOptions() Options {
	return Options{
		MergeMode:         MergeLegacy,
		HistoryScope:      HistoryTenant,
		LookupConcurrency: defaultLookupConcurrency,
		AgentConcurrency:  defaultAgentConcurrency,
		Logger:            zerolog.Nop(),
	}
}

func (o Options) normalized() Options {
	if !o.MergeMode.Valid() {
		o.MergeMode = MergeLegacy
	}
	if !o.HistoryScope.Valid() {
		o.HistoryScope = HistoryTenant
	}
	if o.LookupConcurrency <= 0 {
		o.LookupConcurrency = defaultLookupConcurrency
	}
	if o.AgentConcurrency <= 0 {
		o.AgentConcurrency = defaultAgentConcurrency
	}
	return o
}

// Engine computes analytics against an EventReader. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	store EventReader
	opts  Options
	log   zerolog.Logger
}

// New creates an Engine. Invalid or zero options fall back to
// their defaults.
func New(store EventReader, opts Options) *Engine {
	opts = opts.normalized()
	return &Engine{
		store: store,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "analytics").Logger(),
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// degraded logs a failure that was replaced by a default result.
func (e *Engine) degraded(op string, q Query, err error) {
	e.log.Warn().
		Err(err).
		Str("op", op).
		Str("tenant", q.TenantID).
		Str("agent", q.AgentID).
		Str("from", q.From).
		Str("to", q.To).
		Msg("analytics query degraded to default result")
}

// agentIDs expands the query's agent selector into the list of
// agents to compute per-agent results for.
func (e *Engine) agentIDs(
	ctx context.Context, q Query,
) ([]string, error) {
	if !q.IsAllAgents() {
		return []string{q.AgentID}, nil
	}
	agents, err := e.store.ListAgents(ctx, q.TenantID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return ids, nil
}
