// Package scheduler implements the Scheduler Loop (C11): the single
// process-wide loop that polls the Work Store, claims pending work, and
// dispatches it to the Post/Article/Profile processors.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/process"
	"github.com/nostrmigrate/corepipe/internal/store"
)

// errDiskUsageUnsupported is returned by the default diskUsage stub on a
// platform with no diskusage_*.go build-tagged implementation wired in.
var errDiskUsageUnsupported = errors.New("scheduler: disk usage check not supported on this platform")

// depthLogInterval is the minimum gap between queue-depth log lines
// (spec.md §4.11 step 1).
const depthLogInterval = 60 * time.Second

// diskUsageWarnFraction is the disk-usage threshold above which the
// cleanup pass logs a warning (spec.md §4.11 step 2).
const diskUsageWarnFraction = 0.80

// diskUsage reports the fraction of disk space in use at path. It is
// replaced per-OS (diskusage_unix.go / diskusage_windows.go), mirroring
// the teacher's per-platform build-tag split for filesystem stat calls.
var diskUsage func(path string) (float64, error) = defaultDiskUsage

func defaultDiskUsage(path string) (float64, error) { return 0, errDiskUsageUnsupported }

// Config controls the Scheduler's timing and concurrency.
type Config struct {
	Concurrency     int
	PollInterval    time.Duration
	CleanupInterval time.Duration
	RetentionWindow time.Duration
	DatabasePath    string
}

// Scheduler runs the single poll/claim/dispatch loop.
type Scheduler struct {
	store       store.Queries
	posts       *process.PostProcessor
	articles    *process.ArticleProcessor
	profiles    *process.ProfileProcessor
	cfg         Config
	log         logging.Logger
	lastDepth   time.Time
	lastCleanup time.Time
}

// New builds a Scheduler.
func New(st store.Queries, posts *process.PostProcessor, articles *process.ArticleProcessor, profiles *process.ProfileProcessor, cfg Config, log logging.Logger) *Scheduler {
	return &Scheduler{store: st, posts: posts, articles: articles, profiles: profiles, cfg: cfg, log: log}
}

// Run executes the loop until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		dispatched, err := s.tick(ctx)
		if err != nil {
			s.log.Error("scheduler tick failed", zap.Error(err))
		}

		if !dispatched {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.PollInterval):
			}
		}
	}
}

// tick runs one iteration of the 5-step loop (spec.md §4.11) and reports
// whether any work was dispatched.
func (s *Scheduler) tick(ctx context.Context) (bool, error) {
	now := time.Now()

	if now.Sub(s.lastDepth) >= depthLogInterval {
		s.logQueueDepth(ctx)
		s.lastDepth = now
	}

	if s.cfg.CleanupInterval > 0 && now.Sub(s.lastCleanup) >= s.cfg.CleanupInterval {
		s.runCleanup(ctx)
		s.lastCleanup = now
	}

	dispatched := false

	if s.dispatchProfile(ctx) {
		dispatched = true
	}
	if s.dispatchMigrationCoordinator(ctx) {
		dispatched = true
	}
	if s.dispatchPosts(ctx) {
		dispatched = true
	}
	if s.dispatchArticles(ctx) {
		dispatched = true
	}

	return dispatched, nil
}

func (s *Scheduler) logQueueDepth(ctx context.Context) {
	depth, err := s.store.QueueDepth(ctx)
	if err != nil {
		s.log.Warn("queue depth check failed", zap.Error(err))
		return
	}
	s.log.Info("queue depth",
		zap.Int("migrations", depth.Migrations),
		zap.Int("posts", depth.Posts),
		zap.Int("articles", depth.Articles),
		zap.Int("profiles", depth.Profiles),
	)
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if n, err := s.store.ResetStaleMigrations(ctx, store.MigrationStaleTimeout); err != nil {
		s.log.Warn("reset stale migrations failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("reset stale migrations", zap.Int("count", n))
	}
	if n, err := s.store.ResetStalePosts(ctx, store.MigrationStaleTimeout); err != nil {
		s.log.Warn("reset stale posts failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("reset stale posts", zap.Int("count", n))
	}
	if n, err := s.store.ResetStaleArticles(ctx, store.MigrationStaleTimeout); err != nil {
		s.log.Warn("reset stale articles failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("reset stale articles", zap.Int("count", n))
	}
	if n, err := s.store.ResetStaleProfiles(ctx, store.ProfileStaleTimeout); err != nil {
		s.log.Warn("reset stale profiles failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("reset stale profiles", zap.Int("count", n))
	}

	cutoff := time.Now().Add(-s.cfg.RetentionWindow)
	ids, err := s.store.ListTerminalMigrationsOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Warn("list terminal migrations failed", zap.Error(err))
	} else {
		for _, id := range ids {
			if err := s.store.DeleteMigration(ctx, id); err != nil {
				s.log.Warn("delete terminal migration failed", zap.String("migration_id", id), zap.Error(err))
			}
		}
		if len(ids) > 0 {
			s.log.Info("garbage collected terminal migrations", zap.Int("count", len(ids)))
		}
	}

	if s.cfg.DatabasePath != "" {
		used, err := diskUsage(s.cfg.DatabasePath)
		if err != nil {
			s.log.Debug("disk usage check unavailable", zap.Error(err))
		} else if used >= diskUsageWarnFraction {
			s.log.Warn("disk usage above threshold", zap.Float64("used_fraction", used))
		}
	}
}

func (s *Scheduler) dispatchProfile(ctx context.Context) bool {
	prof, ok, err := s.store.ClaimPendingProfile(ctx)
	if err != nil {
		s.log.Warn("claim pending profile failed", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	mig, err := s.store.GetMigration(ctx, prof.MigrationID)
	if err != nil {
		s.log.Error("load migration for claimed profile failed", zap.String("profile_id", prof.ID), zap.Error(err))
		return true
	}
	if err := s.profiles.Process(ctx, prof, mig); err != nil {
		s.log.Error("profile processing failed", zap.String("profile_id", prof.ID), zap.Error(err))
	}
	return true
}

// dispatchMigrationCoordinator claims one pending Migration and either
// completes it (all owned Posts/Articles terminal) or requeues it for a
// later tick, per the coordinator-pass decision in DESIGN.md.
func (s *Scheduler) dispatchMigrationCoordinator(ctx context.Context) bool {
	mig, ok, err := s.store.ClaimPendingMigration(ctx)
	if err != nil {
		s.log.Warn("claim pending migration failed", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}

	terminal, err := s.store.MigrationChildrenTerminal(ctx, mig.ID)
	if err != nil {
		s.log.Error("check migration children terminal failed", zap.String("migration_id", mig.ID), zap.Error(err))
		return true
	}
	if terminal {
		if err := s.store.CompleteMigration(ctx, mig.ID); err != nil {
			s.log.Error("complete migration failed", zap.String("migration_id", mig.ID), zap.Error(err))
		} else {
			s.log.Info("migration complete", zap.String("migration_id", mig.ID))
		}
		return true
	}
	if err := s.store.RequeueMigration(ctx, mig.ID); err != nil {
		s.log.Error("requeue migration failed", zap.String("migration_id", mig.ID), zap.Error(err))
	}
	return true
}

func (s *Scheduler) dispatchPosts(ctx context.Context) bool {
	posts, err := s.store.ClaimPendingPosts(ctx, s.cfg.Concurrency)
	if err != nil {
		s.log.Warn("claim pending posts failed", zap.Error(err))
		return false
	}
	if len(posts) == 0 {
		return false
	}

	var wg sync.WaitGroup
	for _, p := range posts {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			mig, err := s.store.GetMigration(ctx, p.MigrationID)
			if err != nil {
				s.log.Error("load migration for claimed post failed", zap.String("post_id", p.ID), zap.Error(err))
				return
			}
			if err := s.posts.Process(ctx, p, mig); err != nil {
				s.log.Error("post processing failed", zap.String("post_id", p.ID), zap.Error(err))
			}
		}()
	}
	wg.Wait()
	return true
}

func (s *Scheduler) dispatchArticles(ctx context.Context) bool {
	articles, err := s.store.ClaimPendingArticles(ctx, s.cfg.Concurrency)
	if err != nil {
		s.log.Warn("claim pending articles failed", zap.Error(err))
		return false
	}
	if len(articles) == 0 {
		return false
	}

	var wg sync.WaitGroup
	for _, a := range articles {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			mig, err := s.store.GetMigration(ctx, a.MigrationID)
			if err != nil {
				s.log.Error("load migration for claimed article failed", zap.String("article_id", a.ID), zap.Error(err))
				return
			}
			if err := s.articles.Process(ctx, a, mig); err != nil {
				s.log.Error("article processing failed", zap.String("article_id", a.ID), zap.Error(err))
			}
		}()
	}
	wg.Wait()
	return true
}
