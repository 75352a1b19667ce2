// Package memstore is an in-memory store.Queries implementation for unit
// tests of processors and the scheduler, grounded on the teacher's
// pkg/sorted mem.go pattern: a mutex-guarded map standing in for a real
// database, with the same claim semantics as internal/store/sqlite.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/store"
)

type postRow struct {
	post   model.Post
	seq    int
}

type articleRow struct {
	article model.Article
	seq     int
}

// Store is a mutex-guarded, process-local store.Queries.
type Store struct {
	mu sync.Mutex

	seq int

	migrations map[string]model.Migration
	posts      map[string]postRow
	articles   map[string]articleRow
	profiles   map[string]model.Profile

	updatedAt map[string]time.Time // id -> last transition time, for stale recovery
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		migrations: map[string]model.Migration{},
		posts:      map[string]postRow{},
		articles:   map[string]articleRow{},
		profiles:   map[string]model.Profile{},
		updatedAt:  map[string]time.Time{},
	}
}

func (s *Store) nextSeq() int {
	s.seq++
	return s.seq
}

func (s *Store) Close() error { return nil }

// --- Migrations ---------------------------------------------------------

func (s *Store) CreateMigration(ctx context.Context, m model.Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.migrations[m.ID] = m
	s.updatedAt[m.ID] = now
	return nil
}

func (s *Store) GetMigration(ctx context.Context, id string) (model.Migration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.migrations[id]
	if !ok {
		return model.Migration{}, store.ErrNotFound
	}
	return m, nil
}

func (s *Store) GetMigrationByCorrelationID(ctx context.Context, correlationID string) (model.Migration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.migrations {
		if m.CorrelationID == correlationID {
			return m, true, nil
		}
	}
	return model.Migration{}, false, nil
}

func (s *Store) ClaimPendingMigration(ctx context.Context) (model.Migration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.oldestMigrationWithStatus(model.MigrationPending)
	if !ok {
		return model.Migration{}, false, nil
	}
	m := s.migrations[id]
	m.Status = model.MigrationProcessing
	m.UpdatedAt = time.Now()
	s.migrations[id] = m
	return m, true, nil
}

func (s *Store) oldestMigrationWithStatus(status model.MigrationStatus) (string, bool) {
	var ids []string
	for id, m := range s.migrations {
		if m.Status == status {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Slice(ids, func(i, j int) bool { return s.migrations[ids[i]].CreatedAt.Before(s.migrations[ids[j]].CreatedAt) })
	return ids[0], true
}

func (s *Store) RequeueMigration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.migrations[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Status = model.MigrationPending
	m.UpdatedAt = time.Now()
	s.migrations[id] = m
	return nil
}

func (s *Store) CompleteMigration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.migrations[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Status = model.MigrationComplete
	m.SecretKey = model.ScrubbedSecretKey
	m.UpdatedAt = time.Now()
	s.migrations[id] = m
	return nil
}

func (s *Store) MigrationChildrenTerminal(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.posts {
		if r.post.MigrationID != id {
			continue
		}
		if r.post.Status != model.PostComplete && r.post.Status != model.PostError {
			return false, nil
		}
	}
	for _, r := range s.articles {
		if r.article.MigrationID != id {
			continue
		}
		if r.article.Status != model.ArticleReady && r.article.Status != model.ArticleError {
			return false, nil
		}
	}
	for _, p := range s.profiles {
		if p.MigrationID == id && p.Published != model.ProfilePublished {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) ListTerminalMigrationsOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, m := range s.migrations {
		if m.IsTerminal() && m.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) DeleteMigration(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.migrations, id)
	for pid, r := range s.posts {
		if r.post.MigrationID == id {
			delete(s.posts, pid)
		}
	}
	for aid, r := range s.articles {
		if r.article.MigrationID == id {
			delete(s.articles, aid)
		}
	}
	for pid, p := range s.profiles {
		if p.MigrationID == id {
			delete(s.profiles, pid)
		}
	}
	return nil
}

func (s *Store) ResetStaleMigrations(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for id, m := range s.migrations {
		if m.Status == model.MigrationProcessing && m.UpdatedAt.Before(cutoff) {
			m.Status = model.MigrationPending
			m.UpdatedAt = time.Now()
			s.migrations[id] = m
			n++
		}
	}
	return n, nil
}

// --- Posts ---------------------------------------------------------------

func (s *Store) CreatePost(ctx context.Context, p model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := append([]model.MediaItem(nil), p.MediaItems...)
	p.MediaItems = items
	s.posts[p.ID] = postRow{post: p, seq: s.nextSeq()}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.posts[id]
	if !ok {
		return model.Post{}, store.ErrNotFound
	}
	return r.post, nil
}

func (s *Store) ClaimPendingPosts(ctx context.Context, limit int) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, r := range s.posts {
		if r.post.Status == model.PostPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.posts[ids[i]].seq < s.posts[ids[j]].seq })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	var claimed []model.Post
	for _, id := range ids {
		r := s.posts[id]
		r.post.Status = model.PostUploading
		s.posts[id] = r
		claimed = append(claimed, r.post)
	}
	return claimed, nil
}

func (s *Store) SetPostUploadResult(ctx context.Context, id string, blossomURLs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	r.post.BlossomURLs = blossomURLs
	r.post.Status = model.PostReady
	s.posts[id] = r
	return nil
}

func (s *Store) UpdatePostStatus(ctx context.Context, id string, status model.PostStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	r.post.Status = status
	s.posts[id] = r
	return nil
}

func (s *Store) CompletePost(ctx context.Context, id string, nostrEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	r.post.Status = model.PostComplete
	r.post.NostrEventID = nostrEventID
	s.posts[id] = r
	return nil
}

func (s *Store) FailPost(ctx context.Context, id string, detail string, maxRetries int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.posts[id]
	if !ok {
		return false, store.ErrNotFound
	}
	r.post.LastError = detail
	if r.post.RetryCount < maxRetries {
		r.post.RetryCount++
		r.post.Status = model.PostPending
		s.posts[id] = r
		return true, nil
	}
	r.post.Status = model.PostError
	s.posts[id] = r
	return false, nil
}

func (s *Store) ResetStalePosts(ctx context.Context, olderThan time.Duration) (int, error) {
	// The in-memory double has no per-post timestamp; tests that need
	// stale recovery semantics exercise internal/store/sqlite instead.
	return 0, nil
}

// --- Articles --------------------------------------------------------------

func (s *Store) CreateArticle(ctx context.Context, a model.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := append([]string(nil), a.Hashtags...)
	a.Hashtags = tags
	inline := map[string]string{}
	for k, v := range a.InlineImageURLs {
		inline[k] = v
	}
	a.InlineImageURLs = inline
	s.articles[a.ID] = articleRow{article: a, seq: s.nextSeq()}
	return nil
}

func (s *Store) GetArticle(ctx context.Context, id string) (model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.articles[id]
	if !ok {
		return model.Article{}, store.ErrNotFound
	}
	return r.article, nil
}

func (s *Store) ClaimPendingArticles(ctx context.Context, limit int) ([]model.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, r := range s.articles {
		if r.article.Status == model.ArticlePending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.articles[ids[i]].seq < s.articles[ids[j]].seq })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	var claimed []model.Article
	for _, id := range ids {
		claimed = append(claimed, s.articles[id].article)
	}
	return claimed, nil
}

func (s *Store) UpdateArticleProgress(ctx context.Context, a model.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.articles[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	r.article.ContentMarkdown = a.ContentMarkdown
	r.article.BlossomImageURL = a.BlossomImageURL
	r.article.Status = a.Status
	r.article.UploadAttempts = a.UploadAttempts
	r.article.LastError = a.LastError
	r.article.InlineImageURLs = a.InlineImageURLs
	s.articles[a.ID] = r
	return nil
}

func (s *Store) CompleteArticle(ctx context.Context, id string, nostrEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.articles[id]
	if !ok {
		return store.ErrNotFound
	}
	r.article.Status = model.ArticleReady
	r.article.NostrEventID = nostrEventID
	s.articles[id] = r
	return nil
}

func (s *Store) ResetStaleArticles(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

// --- Profile ---------------------------------------------------------------

func (s *Store) CreateProfile(ctx context.Context, p model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) ClaimPendingProfile(ctx context.Context) (model.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.profiles {
		if p.Published == model.ProfileUnpublished {
			p.Published = model.ProfileProcessing
			s.profiles[id] = p
			return p, true, nil
		}
	}
	return model.Profile{}, false, nil
}

func (s *Store) CompleteProfile(ctx context.Context, id string, blobURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Published = model.ProfilePublished
	p.PictureBlobURL = blobURL
	s.profiles[id] = p
	return nil
}

func (s *Store) ResetStaleProfiles(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

// --- Misc --------------------------------------------------------------

func (s *Store) QueueDepth(ctx context.Context) (store.QueueDepth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var d store.QueueDepth
	for _, m := range s.migrations {
		if !m.IsTerminal() {
			d.Migrations++
		}
	}
	for _, r := range s.posts {
		if r.post.Status != model.PostComplete && r.post.Status != model.PostError {
			d.Posts++
		}
	}
	for _, r := range s.articles {
		if r.article.Status == model.ArticlePending {
			d.Articles++
		}
	}
	for _, p := range s.profiles {
		if p.Published != model.ProfilePublished {
			d.Profiles++
		}
	}
	return d, nil
}

var _ store.Queries = (*Store)(nil)
