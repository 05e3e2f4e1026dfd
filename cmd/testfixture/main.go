package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/wesm/chatpulse/internal/db"
	"github.com/wesm/chatpulse/internal/timeutil"
)

type agentSpec struct {
	tenant string
	id     string
	name   string
	// convsPerDay is the number of conversations started each day.
	convsPerDay int
	// turns is the number of user messages per conversation.
	turns int
}

var specs = []agentSpec{
	{"acme", "acme-sales", "Sales Assistant", 4, 3},
	{"acme", "acme-support", "Support Bot", 2, 5},
	{"globex", "globex-concierge", "Concierge", 3, 2},
}

const (
	fixtureDays = 7
	// leadPool is the number of distinct end users per tenant, so
	// later days see returning leads.
	leadPool = 6
)

func main() {
	out := flag.String("out", "", "output database path")
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: testfixture -out <path>")
		os.Exit(1)
	}

	if err := os.Remove(*out); err != nil &&
		!errors.Is(err, os.ErrNotExist) {
		log.Fatalf("removing existing db: %v", err)
	}

	database, err := db.Open(*out)
	if err != nil {
		log.Fatalf("opening db: %v", err)
	}
	defer database.Close()

	base := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)

	for _, spec := range specs {
		b := buildAgent(spec, base)
		if err := database.WriteBatch(b); err != nil {
			log.Fatalf("writing fixture %s: %v", spec.id, err)
		}
		fmt.Printf(
			"  %s/%s: %d conversations, %d messages\n",
			spec.tenant, spec.id,
			len(b.Conversations), len(b.Messages),
		)
	}

	fmt.Printf("Fixture DB written to %s\n", *out)
}

func ptr[T any](v T) *T { return &v }

// buildAgent generates a week of conversations for one agent. Every
// third conversation is anonymous; the rest rotate through the
// tenant's lead pool. Conversations alternate user and bot turns
// two minutes apart.
func buildAgent(spec agentSpec, base time.Time) db.Batch {
	b := db.Batch{
		Agents: []db.Agent{{
			ID:        spec.id,
			TenantID:  spec.tenant,
			Name:      spec.name,
			CreatedAt: timeutil.Format(base.AddDate(0, 0, -30)),
		}},
	}

	n := 0
	for day := range fixtureDays {
		for c := range spec.convsPerDay {
			n++
			convID := fmt.Sprintf("%s-c%03d", spec.id, n)
			start := base.AddDate(0, 0, day).
				Add(time.Duration(c) * 90 * time.Minute)

			conv := db.Conversation{
				ID:        convID,
				TenantID:  spec.tenant,
				AgentID:   spec.id,
				StartedAt: timeutil.Format(start),
			}
			if n%3 != 0 {
				conv.EndUserID = ptr(fmt.Sprintf(
					"%s-lead-%d", spec.tenant, n%leadPool,
				))
			}
			switch n % 5 {
			case 1:
				conv.Feedback = ptr("up")
			case 4:
				conv.Feedback = ptr("down")
			}
			b.Conversations = append(b.Conversations, conv)

			// Short conversations on odd days test the
			// single-message duration rule.
			turns := spec.turns
			if day%2 == 1 && c == 0 {
				turns = 1
			}
			ts := start
			for i := range turns {
				b.Messages = append(b.Messages,
					message(spec, convID, i, "u", db.SenderUser, ts,
						fmt.Sprintf("question %d", i+1)),
					message(spec, convID, i, "b", db.SenderBot,
						ts.Add(20*time.Second),
						fmt.Sprintf("answer %d", i+1)),
				)
				ts = ts.Add(2 * time.Minute)
			}
		}
	}
	return b
}

func message(
	spec agentSpec, convID string, turn int, kind, sender string,
	ts time.Time, content string,
) db.Message {
	return db.Message{
		ID:             fmt.Sprintf("%s-%s%d", convID, kind, turn),
		ConversationID: convID,
		TenantID:       spec.tenant,
		AgentID:        spec.id,
		Sender:         sender,
		Timestamp:      timeutil.Format(ts),
		Content:        content,
	}
}
