package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wesm/chatpulse/internal/timeutil"
)

// maxSQLVars is the maximum bind variables per IN clause to stay
// within SQLite's default SQLITE_MAX_VARIABLE_NUMBER (999).
const maxSQLVars = 500

const (
	selectMessageCols = `id, conversation_id, tenant_id, agent_id,
		sender, timestamp, content`

	selectConversationCols = `id, tenant_id, agent_id, end_user_id,
		started_at, feedback`
)

// inPlaceholders returns a "(?,?,...)" string and []any args for
// a slice of string IDs.
func inPlaceholders(ids []string) (string, []any) {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(ph, ",") + ")", args
}

// queryChunked executes a callback for each chunk of IDs,
// splitting at maxSQLVars to avoid SQLite bind-variable limits.
func queryChunked(
	ids []string,
	fn func(chunk []string) error,
) error {
	for i := 0; i < len(ids); i += maxSQLVars {
		end := min(i+maxSQLVars, len(ids))
		if err := fn(ids[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// MessageQuery filters messages. Zero values mean "no filter",
// except ConversationIDs: a non-nil empty slice matches nothing.
type MessageQuery struct {
	TenantID        string
	AgentID         string
	Sender          string
	ConversationIDs []string
	From            time.Time // inclusive, UTC
	To              time.Time // exclusive, UTC
	Limit           int
}

func (q MessageQuery) where() (string, []any) {
	preds := []string{"tenant_id = ?"}
	args := []any{q.TenantID}
	if q.AgentID != "" {
		preds = append(preds, "agent_id = ?")
		args = append(args, q.AgentID)
	}
	if q.Sender != "" {
		preds = append(preds, "sender = ?")
		args = append(args, q.Sender)
	}
	if !q.From.IsZero() {
		preds = append(preds, "timestamp >= ?")
		args = append(args, timeutil.Format(q.From))
	}
	if !q.To.IsZero() {
		preds = append(preds, "timestamp < ?")
		args = append(args, timeutil.Format(q.To))
	}
	return strings.Join(preds, " AND "), args
}

// QueryMessages returns messages matching q ordered by timestamp
// ascending.
func (db *DB) QueryMessages(
	ctx context.Context, q MessageQuery,
) ([]Message, error) {
	if q.ConversationIDs != nil && len(q.ConversationIDs) == 0 {
		return []Message{}, nil
	}

	where, args := q.where()
	limit := ""
	if q.Limit > 0 {
		limit = fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	if q.ConversationIDs == nil {
		query := `SELECT ` + selectMessageCols + `
			FROM messages WHERE ` + where + `
			ORDER BY timestamp ASC, id ASC` + limit
		return db.scanMessageQuery(ctx, query, args)
	}

	var out []Message
	err := queryChunked(q.ConversationIDs,
		func(chunk []string) error {
			ph, idArgs := inPlaceholders(chunk)
			query := `SELECT ` + selectMessageCols + `
				FROM messages WHERE ` + where +
				` AND conversation_id IN ` + ph + `
				ORDER BY timestamp ASC, id ASC` + limit
			msgs, err := db.scanMessageQuery(
				ctx, query, append(append([]any{}, args...), idArgs...),
			)
			if err != nil {
				return err
			}
			out = append(out, msgs...)
			return nil
		})
	if err != nil {
		return nil, err
	}

	// Chunks are each ordered; restore a global order.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (db *DB) scanMessageQuery(
	ctx context.Context, query string, args []any,
) ([]Message, error) {
	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.TenantID, &m.AgentID,
			&m.Sender, &m.Timestamp, &m.Content,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// ConversationQuery filters conversations within a tenant.
// A non-nil empty IDs slice matches nothing.
type ConversationQuery struct {
	TenantID  string
	IDs       []string
	EndUserID string
	AgentID   string
}

// QueryConversations returns conversations matching q ordered
// by id.
func (db *DB) QueryConversations(
	ctx context.Context, q ConversationQuery,
) ([]Conversation, error) {
	if q.IDs != nil && len(q.IDs) == 0 {
		return []Conversation{}, nil
	}

	preds := []string{"tenant_id = ?"}
	args := []any{q.TenantID}
	if q.EndUserID != "" {
		preds = append(preds, "end_user_id = ?")
		args = append(args, q.EndUserID)
	}
	if q.AgentID != "" {
		preds = append(preds, "agent_id = ?")
		args = append(args, q.AgentID)
	}
	where := strings.Join(preds, " AND ")

	if q.IDs == nil {
		return db.scanConversationQuery(ctx,
			`SELECT `+selectConversationCols+`
			FROM conversations WHERE `+where+` ORDER BY id`,
			args)
	}

	var out []Conversation
	err := queryChunked(q.IDs, func(chunk []string) error {
		ph, idArgs := inPlaceholders(chunk)
		convs, err := db.scanConversationQuery(ctx,
			`SELECT `+selectConversationCols+`
			FROM conversations WHERE `+where+
				` AND id IN `+ph+` ORDER BY id`,
			append(append([]any{}, args...), idArgs...))
		if err != nil {
			return err
		}
		out = append(out, convs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (db *DB) scanConversationQuery(
	ctx context.Context, query string, args []any,
) ([]Conversation, error) {
	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		var endUser, feedback sql.NullString
		if err := rows.Scan(
			&c.ID, &c.TenantID, &c.AgentID, &endUser,
			&c.StartedAt, &feedback,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if endUser.Valid && endUser.String != "" {
			c.EndUserID = &endUser.String
		}
		if feedback.Valid {
			c.Feedback = &feedback.String
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// ListAgents returns a tenant's agents ordered by name.
func (db *DB) ListAgents(
	ctx context.Context, tenantID string,
) ([]Agent, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, tenant_id, name, created_at
		FROM agents WHERE tenant_id = ?
		ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.Name, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return agents, nil
}
