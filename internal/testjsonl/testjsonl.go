// Package testjsonl provides NDJSON fixture builders for hosted
// table exports. Used by the ingest and command test packages.
package testjsonl

import (
	"encoding/json"
	"strings"
)

// AgentJSON returns an agents-table export row.
func AgentJSON(tenant, id, name string) string {
	return mustMarshal(map[string]any{
		"table":     "agents",
		"id":        id,
		"client_id": tenant,
		"name":      name,
	})
}

// ConversationJSON returns a conversations-table export row. An
// empty endUser is exported as null.
func ConversationJSON(tenant, agent, id, endUser string) string {
	m := map[string]any{
		"table":       "conversations",
		"id":          id,
		"client_id":   tenant,
		"ai_id":       agent,
		"end_user_id": nil,
	}
	if endUser != "" {
		m["end_user_id"] = endUser
	}
	return mustMarshal(m)
}

// MessageJSON returns a messages-table export row using the hosted
// column names (role, created_at). Tenant and agent are left for
// the importer to inherit from the conversation.
func MessageJSON(id, conversation, role, createdAt, content string) string {
	return mustMarshal(map[string]any{
		"table":           "messages",
		"id":              id,
		"conversation_id": conversation,
		"role":            role,
		"created_at":      createdAt,
		"content":         content,
	})
}

// ExportBuilder accumulates export rows.
type ExportBuilder struct {
	lines []string
}

// NewExportBuilder returns a new empty ExportBuilder.
func NewExportBuilder() *ExportBuilder {
	return &ExportBuilder{}
}

// AddAgent appends an agents row.
func (b *ExportBuilder) AddAgent(tenant, id, name string) *ExportBuilder {
	b.lines = append(b.lines, AgentJSON(tenant, id, name))
	return b
}

// AddConversation appends a conversations row.
func (b *ExportBuilder) AddConversation(
	tenant, agent, id, endUser string,
) *ExportBuilder {
	b.lines = append(b.lines, ConversationJSON(tenant, agent, id, endUser))
	return b
}

// AddUser appends a user message row.
func (b *ExportBuilder) AddUser(
	id, conversation, createdAt, content string,
) *ExportBuilder {
	b.lines = append(b.lines,
		MessageJSON(id, conversation, "user", createdAt, content))
	return b
}

// AddBot appends an assistant message row.
func (b *ExportBuilder) AddBot(
	id, conversation, createdAt, content string,
) *ExportBuilder {
	b.lines = append(b.lines,
		MessageJSON(id, conversation, "assistant", createdAt, content))
	return b
}

// AddRaw appends a raw line, such as a malformed one.
func (b *ExportBuilder) AddRaw(line string) *ExportBuilder {
	b.lines = append(b.lines, line)
	return b
}

// String returns the export as newline-terminated NDJSON.
func (b *ExportBuilder) String() string {
	if len(b.lines) == 0 {
		return ""
	}
	return strings.Join(b.lines, "\n") + "\n"
}

// Len returns the number of lines added.
func (b *ExportBuilder) Len() int { return len(b.lines) }

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
