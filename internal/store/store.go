// Package store defines the Work Store contract (C6): the durable queue of
// Migrations and their owned Posts/Articles/Profile, plus the atomic claim
// primitive (C7) that grants a worker exclusive ownership of one row.
//
// internal/store/sqlite is the production implementation, built on
// database/sql + modernc.org/sqlite with WAL journaling, foreign keys, and
// a busy timeout, per spec.md §4.6/§6. internal/store/memstore is an
// in-memory test double with the same claim semantics.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nostrmigrate/corepipe/internal/model"
)

// ErrNotFound is returned by Queries lookups for an id that does not exist.
var ErrNotFound = errors.New("store: not found")

// Queries is the full set of operations the pipeline needs from the Work
// Store. It is implemented by internal/store/sqlite (production) and
// internal/store/memstore (tests).
type Queries interface {
	// Migrations.
	CreateMigration(ctx context.Context, m model.Migration) error
	GetMigration(ctx context.Context, id string) (model.Migration, error)
	GetMigrationByCorrelationID(ctx context.Context, correlationID string) (model.Migration, bool, error)
	// ClaimPendingMigration atomically transitions the oldest pending
	// Migration to processing and returns it. ok is false when there is
	// no pending Migration to claim.
	ClaimPendingMigration(ctx context.Context) (m model.Migration, ok bool, err error)
	// RequeueMigration returns a processing Migration to pending so the
	// coordinator can re-examine it next tick.
	RequeueMigration(ctx context.Context, id string) error
	// CompleteMigration marks a Migration complete and scrubs its secret
	// key, per spec.md §3's terminal-state invariant.
	CompleteMigration(ctx context.Context, id string) error
	// MigrationChildrenTerminal reports whether every Post and Article
	// owned by id is in a terminal state and every Profile it owns is
	// published.
	MigrationChildrenTerminal(ctx context.Context, id string) (bool, error)
	// ListTerminalMigrationsOlderThan returns ids of complete/error
	// Migrations whose updated_at is older than cutoff, for retention GC.
	ListTerminalMigrationsOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
	// DeleteMigration cascades to all owned Posts, Articles and the Profile.
	DeleteMigration(ctx context.Context, id string) error
	// ResetStaleMigrations resets any Migration stuck in processing for
	// longer than olderThan back to pending, and returns how many were
	// reset. It does not touch the Migration's child rows; those are reset
	// only by ResetStalePosts, ResetStaleArticles and ResetStaleProfiles,
	// each judged by the child row's own updated_at.
	ResetStaleMigrations(ctx context.Context, olderThan time.Duration) (int, error)

	// Posts.
	CreatePost(ctx context.Context, p model.Post) error
	GetPost(ctx context.Context, id string) (model.Post, error)
	// ClaimPendingPosts atomically claims up to limit pending Posts
	// (oldest first) across all Migrations and transitions them to
	// uploading.
	ClaimPendingPosts(ctx context.Context, limit int) ([]model.Post, error)
	SetPostUploadResult(ctx context.Context, id string, blossomURLs []string) error
	UpdatePostStatus(ctx context.Context, id string, status model.PostStatus) error
	CompletePost(ctx context.Context, id string, nostrEventID string) error
	// FailPost marks a Post error with detail, or (if retries remain)
	// increments retry_count and returns it to pending.
	FailPost(ctx context.Context, id string, detail string, maxRetries int) (retried bool, err error)
	ResetStalePosts(ctx context.Context, olderThan time.Duration) (int, error)

	// Articles.
	CreateArticle(ctx context.Context, a model.Article) error
	GetArticle(ctx context.Context, id string) (model.Article, error)
	ClaimPendingArticles(ctx context.Context, limit int) ([]model.Article, error)
	// UpdateArticleProgress persists the outcome of one upload attempt:
	// header/inline image results, the (possibly rewritten) Markdown, and
	// the resulting status (pending if retrying, ready if all images
	// succeeded or retries are exhausted, error if fatal).
	UpdateArticleProgress(ctx context.Context, a model.Article) error
	CompleteArticle(ctx context.Context, id string, nostrEventID string) error
	ResetStaleArticles(ctx context.Context, olderThan time.Duration) (int, error)

	// Profile.
	CreateProfile(ctx context.Context, p model.Profile) error
	// ClaimPendingProfile atomically claims the oldest unpublished Profile
	// and transitions it to processing.
	ClaimPendingProfile(ctx context.Context) (p model.Profile, ok bool, err error)
	CompleteProfile(ctx context.Context, id string, blobURL string) error
	ResetStaleProfiles(ctx context.Context, olderThan time.Duration) (int, error)

	// QueueDepth reports the number of pending+processing rows per kind,
	// for the scheduler's periodic depth log (spec.md §4.11 step 1).
	QueueDepth(ctx context.Context) (QueueDepth, error)

	Close() error
}

// QueueDepth is a point-in-time snapshot of outstanding work.
type QueueDepth struct {
	Migrations int
	Posts      int
	Articles   int
	Profiles   int
}

// Stale-recovery timeouts, per spec.md §4.7.
const (
	MigrationStaleTimeout = 30 * time.Minute
	ProfileStaleTimeout   = 10 * time.Minute
)
