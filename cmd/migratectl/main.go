// Command migratectl is the operator CLI for the migration pipeline's
// Work Store: inspect queue depth, look up or requeue a Migration, and
// garbage-collect terminal Migrations past the retention window.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nostrmigrate/corepipe/internal/config"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/store"
	"github.com/nostrmigrate/corepipe/internal/store/sqlite"
)

// command is one migratectl subcommand, grounded on the teacher's
// cmdmain command-table pattern (name -> handler), simplified to this
// tool's much smaller surface.
type command struct {
	usage string
	run   func(ctx context.Context, st store.Queries, args []string) error
}

var commands = map[string]command{
	"status":  {usage: "status", run: runStatus},
	"show":    {usage: "show <migration-id>", run: runShow},
	"enqueue": {usage: "enqueue <handle> <public-key> <secret-key>", run: runEnqueue},
	"requeue": {usage: "requeue <migration-id>", run: runRequeue},
	"gc":      {usage: "gc <retention-hours>", run: runGC},
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "migratectl: unknown command %q\n", args[0])
		printUsage()
		os.Exit(2)
	}

	if err := run(cmd, args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migratectl:", err)
		os.Exit(1)
	}
}

func run(cmd command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open work store at %q: %w", cfg.DatabasePath, err)
	}
	defer st.Close()

	return cmd.run(context.Background(), st, args)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: migratectl <command> [args]")
	for _, cmd := range commands {
		fmt.Fprintln(os.Stderr, "  "+cmd.usage)
	}
}

func runStatus(ctx context.Context, st store.Queries, args []string) error {
	depth, err := st.QueueDepth(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("migrations=%d posts=%d articles=%d profiles=%d\n",
		depth.Migrations, depth.Posts, depth.Articles, depth.Profiles)
	return nil
}

func runShow(ctx context.Context, st store.Queries, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: migratectl show <migration-id>")
	}
	m, err := st.GetMigration(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("id=%s handle=%s status=%s public_key=%s created_at=%s updated_at=%s\n",
		m.ID, m.Handle, m.Status, m.PublicKey, m.CreatedAt.Format(time.RFC3339), m.UpdatedAt.Format(time.RFC3339))
	return nil
}

// runEnqueue manually inserts a pending Migration, for support cases where
// an operator needs to re-run a handle that the platform fetcher never
// enqueued (or enqueued with a bad key) without waiting on that upstream
// system.
func runEnqueue(ctx context.Context, st store.Queries, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: migratectl enqueue <handle> <public-key> <secret-key>")
	}
	now := time.Now()
	mig := model.Migration{
		ID:        uuid.New().String(),
		Handle:    args[0],
		PublicKey: args[1],
		SecretKey: args[2],
		KeySource: model.StoredKey,
		Status:    model.MigrationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.CreateMigration(ctx, mig); err != nil {
		return err
	}
	fmt.Println(mig.ID)
	return nil
}

func runRequeue(ctx context.Context, st store.Queries, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: migratectl requeue <migration-id>")
	}
	if err := st.RequeueMigration(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("requeued %s\n", args[0])
	return nil
}

func runGC(ctx context.Context, st store.Queries, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: migratectl gc <retention-hours>")
	}
	var hours float64
	if _, err := fmt.Sscanf(args[0], "%f", &hours); err != nil {
		return fmt.Errorf("invalid retention hours %q: %w", args[0], err)
	}
	cutoff := time.Now().Add(-time.Duration(hours * float64(time.Hour)))

	ids, err := st.ListTerminalMigrationsOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := st.DeleteMigration(ctx, id); err != nil {
			return fmt.Errorf("delete migration %s: %w", id, err)
		}
	}
	fmt.Printf("deleted %d terminal migration(s)\n", len(ids))
	return nil
}
