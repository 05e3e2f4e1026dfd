package ingest

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/wesm/chatpulse/internal/db"
	"github.com/wesm/chatpulse/internal/timeutil"
)

// Accepted field names, hosted schema first.
var (
	tenantFields    = []string{"client_id", "tenant_id"}
	agentFields     = []string{"ai_id", "agent_id"}
	endUserFields   = []string{"end_user_id", "lead_id", "user_id"}
	senderFields    = []string{"sender", "role"}
	timestampFields = []string{"created_at", "timestamp"}
	startedFields   = []string{"started_at", "created_at"}
)

// messageNS namespaces ids derived for messages exported without one.
var messageNS = uuid.MustParse("0b9f3c1e-5c1a-4d35-9a8e-4c1f4f3f6a21")

// field returns the first non-empty string or number among names.
func field(row gjson.Result, names ...string) string {
	for _, n := range names {
		v := row.Get(n)
		switch v.Type {
		case gjson.String:
			if s := strings.TrimSpace(v.Str); s != "" {
				return s
			}
		case gjson.Number:
			return v.Raw
		}
	}
	return ""
}

func (imp *importer) agent(row gjson.Result) (db.Agent, error) {
	id := field(row, "id")
	if id == "" {
		return db.Agent{}, skip("agent without id")
	}
	tenant, err := imp.tenant(row)
	if err != nil {
		return db.Agent{}, err
	}
	a := db.Agent{ID: id, TenantID: tenant, Name: field(row, "name")}
	if ts, ok := timestamp(row.Get("created_at")); ok {
		a.CreatedAt = timeutil.Format(ts)
	}
	return a, nil
}

func (imp *importer) conversation(row gjson.Result) (db.Conversation, error) {
	id := field(row, "id")
	if id == "" {
		return db.Conversation{}, skip("conversation without id")
	}
	agent := field(row, agentFields...)
	tenant, err := imp.tenant(row)
	if errors.Is(err, errFiltered) {
		// Remember the owner so this conversation's messages are
		// filtered too.
		imp.convs[id] = owner{tenant: field(row, tenantFields...), agent: agent}
	}
	if err != nil {
		return db.Conversation{}, err
	}
	if agent == "" {
		return db.Conversation{}, skip("conversation %s without agent", id)
	}
	c := db.Conversation{ID: id, TenantID: tenant, AgentID: agent}
	if u := field(row, endUserFields...); u != "" {
		c.EndUserID = &u
	}
	for _, n := range startedFields {
		if ts, ok := timestamp(row.Get(n)); ok {
			c.StartedAt = timeutil.Format(ts)
			break
		}
	}
	switch fb := strings.ToLower(field(row, "feedback")); fb {
	case "up", "down":
		c.Feedback = &fb
	case "":
	default:
		imp.log.Debug().Str("conversation", id).Str("feedback", fb).
			Msg("ignoring unknown feedback value")
	}
	imp.convs[id] = owner{tenant: tenant, agent: agent}
	return c, nil
}

// message builds a message row. Tenant and agent default to the
// owning conversation's when it appeared earlier in the export.
func (imp *importer) message(row gjson.Result, line string) (db.Message, error) {
	convID := field(row, "conversation_id")
	if convID == "" {
		return db.Message{}, skip("message without conversation_id")
	}
	own := imp.convs[convID]

	tenant := field(row, tenantFields...)
	if tenant == "" {
		tenant = own.tenant
	}
	switch {
	case tenant == "" && imp.opts.TenantID == "":
		return db.Message{}, skip("message without tenant")
	case tenant == "":
		tenant = imp.opts.TenantID
	case imp.opts.TenantID != "" && tenant != imp.opts.TenantID:
		return db.Message{}, errFiltered
	}

	agent := field(row, agentFields...)
	if agent == "" {
		agent = own.agent
	}
	if agent == "" {
		return db.Message{}, skip("message without agent")
	}

	sender, ok := normalizeSender(field(row, senderFields...))
	if !ok {
		return db.Message{}, skip("message with unknown sender")
	}

	var ts time.Time
	for _, n := range timestampFields {
		if ts, ok = timestamp(row.Get(n)); ok {
			break
		}
	}
	if !ok {
		return db.Message{}, skip("message without valid timestamp")
	}

	id := field(row, "id")
	if id == "" {
		id = uuid.NewSHA1(messageNS, []byte(line)).String()
	}
	return db.Message{
		ID:             id,
		ConversationID: convID,
		TenantID:       tenant,
		AgentID:        agent,
		Sender:         sender,
		Timestamp:      timeutil.Format(ts),
		Content:        row.Get("content").String(),
	}, nil
}

func normalizeSender(s string) (string, bool) {
	switch strings.ToLower(s) {
	case "user", "human", "customer", "visitor":
		return db.SenderUser, true
	case "bot", "assistant", "ai", "agent":
		return db.SenderBot, true
	}
	return "", false
}

// Postgres text renderings of timestamptz.
var pgLayouts = []string{
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
}

// timestamp reads a string timestamp or a Unix epoch in seconds or
// milliseconds.
func timestamp(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return time.Time{}, false
		}
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return time.Time{}, false
		}
		if t, ok := timeutil.Parse(s); ok {
			return t, true
		}
		for _, layout := range pgLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
