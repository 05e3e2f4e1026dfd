package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/wesm/chatpulse/internal/config"
	"github.com/wesm/chatpulse/internal/ingest"
)

// importSummary is printed after an import.
type importSummary struct {
	File string `json:"file"`
	ingest.Result
}

func runImport(args []string, out io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	config.RegisterStoreFlags(fs)
	tenant := fs.String("tenant", "",
		"Tenant for rows without one; rows of other tenants are skipped")
	batchSize := fs.Int("batch-size", 0, "Rows per transaction (default 500)")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		return errors.New("usage: chatpulse import [flags] FILE... (use - for stdin)")
	}

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	defer store.Close()

	ctx, stop := notifyContext()
	defer stop()

	enc := json.NewEncoder(out)
	for _, name := range files {
		res, err := importFile(ctx, name, store, ingest.Options{
			TenantID:  *tenant,
			BatchSize: *batchSize,
			Logger:    logger.With().Str("file", name).Logger(),
		})
		if err != nil {
			return fmt.Errorf("importing %s: %w", name, err)
		}
		if err := enc.Encode(importSummary{File: name, Result: res}); err != nil {
			return err
		}
	}
	return nil
}

func importFile(
	ctx context.Context, name string, w ingest.Writer, opts ingest.Options,
) (ingest.Result, error) {
	if name == "-" {
		return ingest.Import(ctx, os.Stdin, w, opts)
	}
	f, err := os.Open(name)
	if err != nil {
		return ingest.Result{}, err
	}
	defer f.Close()
	return ingest.Import(ctx, f, w, opts)
}
