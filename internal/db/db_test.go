package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func insertConversation(
	t *testing.T, d *DB, id, tenant, agent string,
	opts ...func(*Conversation),
) {
	t.Helper()
	c := Conversation{
		ID:        id,
		TenantID:  tenant,
		AgentID:   agent,
		StartedAt: "2024-01-01T00:00:00.000Z",
	}
	for _, opt := range opts {
		opt(&c)
	}
	if err := d.UpsertConversation(c); err != nil {
		t.Fatalf("insertConversation %s: %v", id, err)
	}
}

func insertMessages(t *testing.T, d *DB, msgs ...Message) {
	t.Helper()
	if err := d.InsertMessages(msgs); err != nil {
		t.Fatalf("insertMessages: %v", err)
	}
}

func msg(id, conv, tenant, agent, sender, ts string) Message {
	return Message{
		ID:             id,
		ConversationID: conv,
		TenantID:       tenant,
		AgentID:        agent,
		Sender:         sender,
		Timestamp:      ts,
		Content:        "hi",
	}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func seedMessages(t *testing.T, d *DB) {
	t.Helper()
	insertConversation(t, d, "c1", tenantA, "bot-1",
		func(c *Conversation) { c.EndUserID = Ptr("u1") })
	insertConversation(t, d, "c2", tenantA, "bot-2")
	insertConversation(t, d, "c3", tenantB, "bot-3",
		func(c *Conversation) { c.EndUserID = Ptr("u1") })

	// Written out of timestamp order on purpose.
	insertMessages(t, d,
		msg("m3", "c1", tenantA, "bot-1", SenderUser, "2024-01-02T09:00:00.000Z"),
		msg("m1", "c1", tenantA, "bot-1", SenderUser, "2024-01-01T09:00:00.000Z"),
		msg("m2", "c1", tenantA, "bot-1", SenderBot, "2024-01-01T09:00:05.000Z"),
		msg("m4", "c2", tenantA, "bot-2", SenderUser, "2024-01-01T12:00:00.000Z"),
		msg("m5", "c3", tenantB, "bot-3", SenderUser, "2024-01-01T08:00:00.000Z"),
	)
}

func TestOpenCreatesSchema(t *testing.T) {
	d := testDB(t)
	for _, table := range []string{"agents", "conversations", "messages"} {
		var n int
		err := d.Reader().QueryRow(
			"SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&n)
		if err != nil {
			t.Fatalf("checking %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestQueryMessages(t *testing.T) {
	d := testDB(t)
	seedMessages(t, d)
	ctx := context.Background()

	tests := []struct {
		name string
		q    MessageQuery
		want []string
	}{
		{
			name: "TenantOrderedByTimestamp",
			q:    MessageQuery{TenantID: tenantA},
			want: []string{"m1", "m2", "m4", "m3"},
		},
		{
			name: "SenderFilter",
			q:    MessageQuery{TenantID: tenantA, Sender: SenderUser},
			want: []string{"m1", "m4", "m3"},
		},
		{
			name: "AgentFilter",
			q:    MessageQuery{TenantID: tenantA, AgentID: "bot-2"},
			want: []string{"m4"},
		},
		{
			name: "HalfOpenRange",
			q: MessageQuery{
				TenantID: tenantA,
				From:     mustTime(t, "2024-01-01T09:00:00Z"),
				To:       mustTime(t, "2024-01-02T09:00:00Z"),
			},
			want: []string{"m1", "m2", "m4"},
		},
		{
			name: "ConversationIDs",
			q: MessageQuery{
				TenantID:        tenantA,
				ConversationIDs: []string{"c1"},
			},
			want: []string{"m1", "m2", "m3"},
		},
		{
			name: "EmptyConversationIDsMatchNothing",
			q: MessageQuery{
				TenantID:        tenantA,
				ConversationIDs: []string{},
			},
			want: []string{},
		},
		{
			name: "Limit",
			q:    MessageQuery{TenantID: tenantA, Sender: SenderUser, Limit: 1},
			want: []string{"m1"},
		},
		{
			name: "OtherTenantIsolated",
			q:    MessageQuery{TenantID: tenantB},
			want: []string{"m5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := d.QueryMessages(ctx, tt.q)
			if err != nil {
				t.Fatalf("QueryMessages: %v", err)
			}
			got := ids(msgs)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryMessagesChunked(t *testing.T) {
	d := testDB(t)
	n := maxSQLVars + 25
	var convIDs []string
	var msgs []Message
	for i := range n {
		cid := fmt.Sprintf("conv-%04d", i)
		convIDs = append(convIDs, cid)
		// Descending timestamps so chunk order differs from
		// global order.
		ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).
			Add(time.Duration(n-i) * time.Minute).
			Format("2006-01-02T15:04:05.000Z")
		msgs = append(msgs, msg(
			fmt.Sprintf("m-%04d", i), cid, tenantA, "bot-1",
			SenderUser, ts,
		))
	}
	insertMessages(t, d, msgs...)

	got, err := d.QueryMessages(context.Background(), MessageQuery{
		TenantID:        tenantA,
		ConversationIDs: convIDs,
	})
	if err != nil {
		t.Fatalf("QueryMessages: %v", err)
	}
	if len(got) != n {
		t.Fatalf("got %d messages, want %d", len(got), n)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Timestamp > got[i].Timestamp {
			t.Fatalf("messages not sorted at %d: %s > %s",
				i, got[i-1].Timestamp, got[i].Timestamp)
		}
	}
}

func TestInsertMessagesIdempotent(t *testing.T) {
	d := testDB(t)
	m := msg("m1", "c1", tenantA, "bot-1", SenderUser, "2024-01-01T09:00:00.000Z")
	insertMessages(t, d, m)
	insertMessages(t, d, m)

	got, err := d.QueryMessages(context.Background(),
		MessageQuery{TenantID: tenantA})
	if err != nil {
		t.Fatalf("QueryMessages: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d messages, want 1", len(got))
	}
}

func TestQueryConversations(t *testing.T) {
	d := testDB(t)
	seedMessages(t, d)
	ctx := context.Background()

	t.Run("ByIDs", func(t *testing.T) {
		convs, err := d.QueryConversations(ctx, ConversationQuery{
			TenantID: tenantA,
			IDs:      []string{"c2", "c1", "c3"},
		})
		if err != nil {
			t.Fatalf("QueryConversations: %v", err)
		}
		if len(convs) != 2 {
			t.Fatalf("got %d conversations, want 2", len(convs))
		}
		if convs[0].ID != "c1" || convs[0].EndUserID == nil ||
			*convs[0].EndUserID != "u1" {
			t.Errorf("c1 = %+v, want end user u1", convs[0])
		}
		if convs[1].EndUserID != nil {
			t.Errorf("c2 end user = %v, want nil", *convs[1].EndUserID)
		}
	})

	t.Run("ByEndUser", func(t *testing.T) {
		convs, err := d.QueryConversations(ctx, ConversationQuery{
			TenantID:  tenantA,
			EndUserID: "u1",
		})
		if err != nil {
			t.Fatalf("QueryConversations: %v", err)
		}
		if len(convs) != 1 || convs[0].ID != "c1" {
			t.Errorf("got %+v, want only c1", convs)
		}
	})

	t.Run("EmptyIDs", func(t *testing.T) {
		convs, err := d.QueryConversations(ctx, ConversationQuery{
			TenantID: tenantA,
			IDs:      []string{},
		})
		if err != nil {
			t.Fatalf("QueryConversations: %v", err)
		}
		if len(convs) != 0 {
			t.Errorf("got %d conversations, want 0", len(convs))
		}
	})
}

func TestListAgents(t *testing.T) {
	d := testDB(t)
	if err := d.WriteBatch(Batch{Agents: []Agent{
		{ID: "b", TenantID: tenantA, Name: "Support"},
		{ID: "a", TenantID: tenantA, Name: "Sales"},
		{ID: "c", TenantID: tenantB, Name: "Other"},
	}}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	agents, err := d.ListAgents(context.Background(), tenantA)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	if agents[0].Name != "Sales" || agents[1].Name != "Support" {
		t.Errorf("agents not ordered by name: %+v", agents)
	}
}

func TestIsRemote(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{"libsql://db.example.turso.io", true},
		{"https://db.example.turso.io", true},
		{"/var/lib/chatpulse/events.db", false},
		{"events.db", false},
	}
	for _, tt := range tests {
		if got := IsRemote(tt.dsn); got != tt.want {
			t.Errorf("IsRemote(%q) = %v, want %v", tt.dsn, got, tt.want)
		}
	}
}

func TestRemoteDSN(t *testing.T) {
	if got := remoteDSN("libsql://x.turso.io", "tok"); got != "libsql://x.turso.io?authToken=tok" {
		t.Errorf("remoteDSN = %q", got)
	}
	if got := remoteDSN("libsql://x.turso.io?a=1", "tok"); got != "libsql://x.turso.io?a=1&authToken=tok" {
		t.Errorf("remoteDSN with query = %q", got)
	}
	if got := remoteDSN("libsql://x.turso.io?authToken=a", "b"); got != "libsql://x.turso.io?authToken=a" {
		t.Errorf("remoteDSN kept token = %q", got)
	}
}
