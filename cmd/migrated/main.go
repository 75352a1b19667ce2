// Command migrated runs the migration pipeline's Scheduler Loop: it polls
// the Work Store, claims pending Migrations/Posts/Articles/Profiles, and
// dispatches them to the Blob Client, Event Signer, Relay Publisher, and
// Cache Importer until the process receives an interrupt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nostrmigrate/corepipe/internal/blobclient"
	"github.com/nostrmigrate/corepipe/internal/cacheimport"
	"github.com/nostrmigrate/corepipe/internal/config"
	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/nostrsign"
	"github.com/nostrmigrate/corepipe/internal/process"
	"github.com/nostrmigrate/corepipe/internal/relay"
	"github.com/nostrmigrate/corepipe/internal/scheduler"
	"github.com/nostrmigrate/corepipe/internal/store/sqlite"
)

var flagEnv = flag.String("env", "development", "environment: development or production (controls log encoding)")

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "migrated:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Environment = *flagEnv
	log, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	st, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open work store at %q: %w", cfg.DatabasePath, err)
	}
	defer st.Close()

	signer := nostrsign.NewSigner()
	blobs := blobclient.New(cfg.BlossomServer, signer)
	publisher := relay.New(log)
	importer := cacheimport.New(cfg.PrimalCacheURL, log)
	keys := process.NewKeySourceResolver(signer)

	postProc := process.NewPostProcessor(st, blobs, keys, publisher, importer, cfg.Relays, cfg.MaxRetries, log)
	articleProc := process.NewArticleProcessor(st, blobs, keys, publisher, importer, cfg.Relays, cfg.MaxUploadAttempts, log)
	profileProc := process.NewProfileProcessor(st, blobs, keys, publisher, importer, cfg.Relays, log)

	schedCfg := scheduler.Config{
		Concurrency:     cfg.Concurrency,
		PollInterval:    cfg.PollInterval,
		CleanupInterval: cfg.CleanupInterval,
		RetentionWindow: cfg.RetentionWindow,
		DatabasePath:    cfg.DatabasePath,
	}
	sched := scheduler.New(st, postProc, articleProc, profileProc, schedCfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("migrated starting",
		zap.String("database_path", cfg.DatabasePath),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Strings("relays", cfg.Relays),
	)
	return sched.Run(ctx)
}
