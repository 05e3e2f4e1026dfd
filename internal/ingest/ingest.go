// Package ingest loads NDJSON exports of the hosted chat tables
// into the event store.
//
// Each line is one row tagged with its table:
//
//	{"table":"agents","id":"a1","client_id":"t1","name":"Sales"}
//	{"table":"conversations","id":"c1","client_id":"t1","ai_id":"a1","end_user_id":"u1"}
//	{"table":"messages","id":"m1","conversation_id":"c1","role":"user","created_at":"2024-03-04T10:00:00Z"}
//
// Field names from the hosted schema and the local one are both
// accepted. The row may also be nested under a "row" key.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/wesm/chatpulse/internal/db"
)

const (
	defaultBatchSize  = 500
	defaultMaxLineLen = 8 * 1024 * 1024
)

// Writer persists rows. *db.DB satisfies it.
type Writer interface {
	WriteBatch(b db.Batch) error
}

// Options controls an import.
type Options struct {
	// TenantID fills rows that carry no tenant. When set, rows
	// belonging to another tenant are filtered out.
	TenantID string
	// BatchSize is the number of rows written per transaction.
	BatchSize int
	// MaxLineLen is the longest accepted line in bytes.
	MaxLineLen int
	Logger     zerolog.Logger
}

// Result counts what an import did.
type Result struct {
	Agents        int `json:"agents"`
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	// Skipped lines were malformed or incomplete.
	Skipped int `json:"skipped"`
	// Filtered lines belonged to another tenant.
	Filtered int `json:"filtered"`
}

// Rows returns the number of rows written.
func (r Result) Rows() int {
	return r.Agents + r.Conversations + r.Messages
}

// errSkip marks a row that cannot be imported.
type errSkip struct{ reason string }

func (e errSkip) Error() string { return e.reason }

func skip(format string, args ...any) error {
	return errSkip{reason: fmt.Sprintf(format, args...)}
}

var errFiltered = errors.New("row belongs to another tenant")

// importer carries the state of one import.
type importer struct {
	opts  Options
	w     Writer
	log   zerolog.Logger
	batch db.Batch
	res   Result
	// convs maps conversation ids seen so far to their owner, so
	// messages without tenant or agent fields can inherit them.
	convs map[string]owner
}

type owner struct{ tenant, agent string }

// Import reads NDJSON rows from r and writes them through w in
// batches. Malformed lines are logged, counted and skipped; an
// error is returned only for read failures, write failures or
// cancellation. Import may be re-run on the same export: rows are
// upserted and messages are keyed by id.
func Import(
	ctx context.Context, r io.Reader, w Writer, opts Options,
) (Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxLineLen <= 0 {
		opts.MaxLineLen = defaultMaxLineLen
	}
	imp := &importer{
		opts:  opts,
		w:     w,
		log:   opts.Logger,
		convs: make(map[string]owner),
	}

	lr := newLineReader(r, opts.MaxLineLen)
	for {
		if err := ctx.Err(); err != nil {
			return imp.res, err
		}
		line, err := lr.next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, errLineTooLong) {
			imp.skipped(lr.line(), err)
			continue
		}
		if err != nil {
			return imp.res, fmt.Errorf("reading line %d: %w", lr.line()+1, err)
		}
		if err := imp.add(line); err != nil {
			if errors.Is(err, errFiltered) {
				imp.res.Filtered++
				continue
			}
			imp.skipped(lr.line(), err)
			continue
		}
		if imp.batch.Len() >= opts.BatchSize {
			if err := imp.flush(); err != nil {
				return imp.res, err
			}
		}
	}
	if err := imp.flush(); err != nil {
		return imp.res, err
	}
	imp.log.Info().
		Int("agents", imp.res.Agents).
		Int("conversations", imp.res.Conversations).
		Int("messages", imp.res.Messages).
		Int("skipped", imp.res.Skipped).
		Int("filtered", imp.res.Filtered).
		Msg("import finished")
	return imp.res, nil
}

func (imp *importer) skipped(line int, err error) {
	imp.res.Skipped++
	imp.log.Warn().Int("line", line).Err(err).Msg("skipping line")
}

func (imp *importer) flush() error {
	if imp.batch.Len() == 0 {
		return nil
	}
	if err := imp.w.WriteBatch(imp.batch); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	imp.res.Agents += len(imp.batch.Agents)
	imp.res.Conversations += len(imp.batch.Conversations)
	imp.res.Messages += len(imp.batch.Messages)
	imp.log.Debug().Int("rows", imp.batch.Len()).Msg("batch written")
	imp.batch = db.Batch{}
	return nil
}

// add parses one line and appends the row to the pending batch.
func (imp *importer) add(line string) error {
	if !gjson.Valid(line) {
		return skip("invalid JSON")
	}
	root := gjson.Parse(line)
	if !root.IsObject() {
		return skip("not a JSON object")
	}
	row := root
	if nested := root.Get("row"); nested.IsObject() {
		row = nested
	}

	switch table := root.Get("table").Str; table {
	case "agents":
		a, err := imp.agent(row)
		if err != nil {
			return err
		}
		imp.batch.Agents = append(imp.batch.Agents, a)
	case "conversations":
		c, err := imp.conversation(row)
		if err != nil {
			return err
		}
		imp.batch.Conversations = append(imp.batch.Conversations, c)
	case "messages":
		m, err := imp.message(row, line)
		if err != nil {
			return err
		}
		imp.batch.Messages = append(imp.batch.Messages, m)
	case "":
		return skip("missing table")
	default:
		return skip("unknown table %q", table)
	}
	return nil
}

// tenant resolves a row's tenant against the import options.
func (imp *importer) tenant(row gjson.Result) (string, error) {
	t := field(row, tenantFields...)
	switch {
	case t == "" && imp.opts.TenantID == "":
		return "", skip("missing tenant")
	case t == "":
		return imp.opts.TenantID, nil
	case imp.opts.TenantID != "" && t != imp.opts.TenantID:
		return "", errFiltered
	}
	return t, nil
}
