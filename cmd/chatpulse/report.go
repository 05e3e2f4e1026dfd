package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesm/chatpulse/internal/analytics"
	"github.com/wesm/chatpulse/internal/config"
	"github.com/wesm/chatpulse/internal/timeutil"
)

const reportRangeDays = 30

func runReport(args []string, out io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	config.RegisterStoreFlags(fs)
	config.RegisterAnalyticsFlags(fs)
	tenant := fs.String("tenant", "", "Tenant to report on (required)")
	agent := fs.String("agent", analytics.AllAgents, "Agent id")
	from := fs.String("from", "", "First day, YYYY-MM-DD (default: 30 days before -to)")
	to := fs.String("to", "", "Last day, YYYY-MM-DD (default: today)")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *tenant == "" {
		return errors.New("-tenant is required")
	}

	q := analytics.Query{
		TenantID: *tenant,
		AgentID:  *agent,
		Timezone: cfg.Timezone,
	}
	q.From, q.To, err = reportRange(*from, *to, time.Now().In(timeutil.Location(cfg.Timezone)))
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	defer store.Close()

	ctx, stop := notifyContext()
	defer stop()

	engine := analytics.New(store, cfg.AnalyticsOptions(logger))
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(engine.GetDashboard(ctx, q))
}

// reportRange fills in missing dates and rejects malformed ones.
func reportRange(from, to string, now time.Time) (string, string, error) {
	if to == "" {
		to = now.Format(timeutil.DateLayout)
	}
	end, ok := timeutil.ParseDate(to)
	if !ok {
		return "", "", fmt.Errorf("invalid -to %q: use YYYY-MM-DD", to)
	}
	if from == "" {
		from = end.AddDate(0, 0, -reportRangeDays).Format(timeutil.DateLayout)
	}
	start, ok := timeutil.ParseDate(from)
	if !ok {
		return "", "", fmt.Errorf("invalid -from %q: use YYYY-MM-DD", from)
	}
	if start.After(end) {
		return "", "", fmt.Errorf("-from %s is after -to %s", from, to)
	}
	return from, to, nil
}

// notifyContext returns a context canceled on interrupt.
func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
}
