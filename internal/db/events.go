package db

import (
	"database/sql"
	"fmt"
)

// Sender values for Message.Sender.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Agent is one configured assistant belonging to a tenant.
type Agent struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Conversation is a row in the conversations table. EndUserID
// is nil for anonymous sessions that never captured a lead.
type Conversation struct {
	ID        string  `json:"id"`
	TenantID  string  `json:"tenant_id"`
	AgentID   string  `json:"agent_id"`
	EndUserID *string `json:"end_user_id"`
	StartedAt string  `json:"started_at"`
	Feedback  *string `json:"feedback"`
}

// Message is a row in the messages table.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`
	AgentID        string `json:"agent_id"`
	Sender         string `json:"sender"`
	Timestamp      string `json:"timestamp"`
	Content        string `json:"content"`
}

// UpsertAgent inserts or updates an agent.
func (db *DB) UpsertAgent(a Agent) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return upsertAgentTx(db.writer, a)
}

// UpsertConversation inserts or updates a conversation.
func (db *DB) UpsertConversation(c Conversation) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return upsertConversationTx(db.writer, c)
}

// InsertMessages inserts messages in a single transaction.
// Messages whose id already exists are left untouched, so
// re-importing the same export is idempotent.
func (db *DB) InsertMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.writer.Begin()
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertMessagesTx(tx, msgs); err != nil {
		return err
	}
	return tx.Commit()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertAgentTx(ex execer, a Agent) error {
	_, err := ex.Exec(`
		INSERT INTO agents (id, tenant_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			name = excluded.name,
			created_at = excluded.created_at`,
		a.ID, a.TenantID, a.Name, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting agent %s: %w", a.ID, err)
	}
	return nil
}

func upsertConversationTx(ex execer, c Conversation) error {
	_, err := ex.Exec(`
		INSERT INTO conversations (
			id, tenant_id, agent_id, end_user_id,
			started_at, feedback
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			agent_id = excluded.agent_id,
			end_user_id = excluded.end_user_id,
			started_at = excluded.started_at,
			feedback = excluded.feedback`,
		c.ID, c.TenantID, c.AgentID, c.EndUserID,
		c.StartedAt, c.Feedback)
	if err != nil {
		return fmt.Errorf("upserting conversation %s: %w", c.ID, err)
	}
	return nil
}

func insertMessagesTx(tx *sql.Tx, msgs []Message) error {
	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO messages (
			id, conversation_id, tenant_id, agent_id,
			sender, timestamp, content
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.Exec(
			m.ID, m.ConversationID, m.TenantID, m.AgentID,
			m.Sender, m.Timestamp, m.Content,
		); err != nil {
			return fmt.Errorf("inserting message %s: %w", m.ID, err)
		}
	}
	return nil
}

// Batch holds rows written together by WriteBatch.
type Batch struct {
	Agents        []Agent
	Conversations []Conversation
	Messages      []Message
}

// Len returns the total number of rows in the batch.
func (b Batch) Len() int {
	return len(b.Agents) + len(b.Conversations) + len(b.Messages)
}

// WriteBatch writes agents, conversations and messages in one
// transaction.
func (db *DB) WriteBatch(b Batch) error {
	return db.Update(func(tx *sql.Tx) error {
		for _, a := range b.Agents {
			if err := upsertAgentTx(tx, a); err != nil {
				return err
			}
		}
		for _, c := range b.Conversations {
			if err := upsertConversationTx(tx, c); err != nil {
				return err
			}
		}
		if len(b.Messages) == 0 {
			return nil
		}
		return insertMessagesTx(tx, b.Messages)
	})
}
