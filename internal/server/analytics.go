package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wesm/chatpulse/internal/analytics"
	"github.com/wesm/chatpulse/internal/db"
	"github.com/wesm/chatpulse/internal/timeutil"
)

const (
	defaultRangeDays = 30
	maxLeaderboard   = 1000
)

// isValidDate checks that s is a well-formed YYYY-MM-DD string.
func isValidDate(s string) bool {
	_, ok := timeutil.ParseDate(s)
	return ok
}

// defaultDateRange returns (from, to) defaulting to the last
// 30 days if not provided.
func defaultDateRange(
	from, to string, now time.Time,
) (string, string) {
	if to == "" {
		to = now.Format(timeutil.DateLayout)
	}
	if from == "" {
		t, ok := timeutil.ParseDate(to)
		if !ok {
			t = now
		}
		from = t.AddDate(0, 0, -defaultRangeDays).Format(timeutil.DateLayout)
	}
	return from, to
}

// parseQuery extracts the tenant, agent, range and timezone of an
// analytics request. Only syntax is checked here; a reversed range
// reaches the engine and yields an empty result.
func (s *Server) parseQuery(
	w http.ResponseWriter, r *http.Request,
) (analytics.Query, *analytics.Engine, bool) {
	engine, defaultTZ := s.snapshot()
	q := r.URL.Query()

	tz := q.Get("timezone")
	if tz == "" {
		tz = defaultTZ
	}
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			"invalid timezone: "+tz)
		return analytics.Query{}, nil, false
	}

	from, to := defaultDateRange(
		q.Get("from"), q.Get("to"), time.Now().In(loc),
	)
	if !isValidDate(from) || !isValidDate(to) {
		writeError(w, http.StatusBadRequest,
			"invalid date format: use YYYY-MM-DD")
		return analytics.Query{}, nil, false
	}

	agent := q.Get("agent")
	if agent == "" {
		agent = analytics.AllAgents
	}

	return analytics.Query{
		TenantID: r.PathValue("tenant"),
		AgentID:  agent,
		From:     from,
		To:       to,
		Timezone: tz,
	}, engine, true
}

// parseIntParam parses an optional integer query parameter,
// writing a 400 when it is present but malformed.
func parseIntParam(
	w http.ResponseWriter, r *http.Request, name string,
) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, true
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			name+" must be an integer")
		return 0, false
	}
	return v, true
}

// clampLimit returns def for non-positive limits and caps the
// rest at hi.
func clampLimit(limit, def, hi int) int {
	if limit <= 0 {
		return def
	}
	if limit > hi {
		return hi
	}
	return limit
}

func (s *Server) handleListAgents(
	w http.ResponseWriter, r *http.Request,
) {
	agents, err := s.store.ListAgents(r.Context(), r.PathValue("tenant"))
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		s.log.Error().Err(err).
			Str("request_id", RequestID(r.Context())).
			Msg("listing agents")
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	if agents == nil {
		agents = []db.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleDays(
	w http.ResponseWriter, r *http.Request,
) {
	q, e, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.GetDaySeries(r.Context(), q))
}

func (s *Server) handleKPIs(
	w http.ResponseWriter, r *http.Request,
) {
	q, e, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.GetKPITrend(r.Context(), q))
}

func (s *Server) handleFunnel(
	w http.ResponseWriter, r *http.Request,
) {
	q, e, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.GetFunnel(r.Context(), q))
}

func (s *Server) handleSegments(
	w http.ResponseWriter, r *http.Request,
) {
	q, e, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.GetSegments(r.Context(), q))
}

func (s *Server) handleLeaderboard(
	w http.ResponseWriter, r *http.Request,
) {
	q, e, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	limit, ok := parseIntParam(w, r, "limit")
	if !ok {
		return
	}
	rows := e.GetLeaderboard(r.Context(), q, nil)
	if n := clampLimit(limit, maxLeaderboard, maxLeaderboard); len(rows) > n {
		rows = rows[:n]
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleDashboard(
	w http.ResponseWriter, r *http.Request,
) {
	q, e, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.GetDashboard(r.Context(), q))
}
