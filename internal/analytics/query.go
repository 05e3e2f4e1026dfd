package analytics

import (
	"time"

	"github.com/wesm/chatpulse/internal/timeutil"
)

// Query selects the tenant, agent and calendar date range of an
// analytics call. From and To are inclusive YYYY-MM-DD dates in
// Timezone (IANA name, UTC when empty).
type Query struct {
	TenantID string `json:"tenant_id"`
	AgentID  string `json:"agent_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Timezone string `json:"timezone,omitempty"`
}

// IsAllAgents reports whether the query selects every agent.
func (q Query) IsAllAgents() bool {
	return q.AgentID == "" || q.AgentID == AllAgents
}

// forAgent returns a copy of q narrowed to one agent.
func (q Query) forAgent(agentID string) Query {
	q.AgentID = agentID
	return q
}

// window is a resolved query range: calendar dates plus the UTC
// instants of local midnight at From and the day after To.
type window struct {
	from, to   time.Time // calendar dates, midnight UTC
	loc        *time.Location
	start, end time.Time // [start, end) in UTC
}

// window resolves the query's dates. It returns false for an
// empty tenant, unparsable dates, an unknown timezone, or From
// after To.
func (q Query) window() (window, bool) {
	if q.TenantID == "" {
		return window{}, false
	}
	from, ok := timeutil.ParseDate(q.From)
	if !ok {
		return window{}, false
	}
	to, ok := timeutil.ParseDate(q.To)
	if !ok || to.Before(from) {
		return window{}, false
	}
	loc := time.UTC
	if q.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(q.Timezone); err != nil {
			return window{}, false
		}
	}
	return window{
		from:  from,
		to:    to,
		loc:   loc,
		start: timeutil.StartOfDay(from, loc).UTC(),
		end:   timeutil.StartOfDay(to.AddDate(0, 0, 1), loc).UTC(),
	}, true
}

// dates lists every calendar date in the window.
func (w window) dates() []string {
	return timeutil.Days(w.from, w.to)
}

// localDate returns the window-local calendar date of t.
func (w window) localDate(t time.Time) string {
	return t.In(w.loc).Format(timeutil.DateLayout)
}
