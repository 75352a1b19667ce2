// Package sqlite is the production Work Store (C6): a database/sql-backed
// implementation of store.Queries using modernc.org/sqlite, with the WAL
// journal, foreign keys, and busy timeout set the way camlistore's
// pkg/sorted/sqlite sets them, and the claim primitive (C7) implemented as a
// conditional UPDATE gated on RowsAffected.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/store"
)

// Store is a store.Queries backed by a single sqlite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema is current.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// modernc.org/sqlite does not support concurrent writers on one
	// connection; serialize access the way camlistore's sqlkv does.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	var have int
	err := s.db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&have)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(`INSERT INTO schema_meta(key, value) VALUES ('version', ?)`, schemaVersion)
		return err
	}
	if err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if have != schemaVersion {
		return fmt.Errorf("sqlite: database schema version is %d; expect %d (needs migration)", have, schemaVersion)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func unixNow() int64 { return time.Now().Unix() }

// --- Migrations ---------------------------------------------------------

func (s *Store) CreateMigration(ctx context.Context, m model.Migration) error {
	now := unixNow()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO migrations (id, handle, public_key, secret_key, key_source,
			profile_name, profile_bio, profile_picture, status, correlation_id,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Handle, m.PublicKey, m.SecretKey, int(m.KeySource),
		m.ProfileData.Name, m.ProfileData.Bio, m.ProfileData.Picture,
		string(model.MigrationPending), m.CorrelationID, now, now)
	if err != nil {
		return fmt.Errorf("sqlite: create migration: %w", err)
	}
	return nil
}

func scanMigration(row interface{ Scan(...any) error }) (model.Migration, error) {
	var m model.Migration
	var keySource int
	var status string
	var createdAt, updatedAt int64
	err := row.Scan(&m.ID, &m.Handle, &m.PublicKey, &m.SecretKey, &keySource,
		&m.ProfileData.Name, &m.ProfileData.Bio, &m.ProfileData.Picture,
		&status, &m.CorrelationID, &createdAt, &updatedAt)
	if err != nil {
		return model.Migration{}, err
	}
	m.KeySource = model.KeySourceKind(keySource)
	m.Status = model.MigrationStatus(status)
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return m, nil
}

const migrationColumns = `id, handle, public_key, secret_key, key_source,
	profile_name, profile_bio, profile_picture, status, correlation_id,
	created_at, updated_at`

func (s *Store) GetMigration(ctx context.Context, id string) (model.Migration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+migrationColumns+` FROM migrations WHERE id = ?`, id)
	m, err := scanMigration(row)
	if err == sql.ErrNoRows {
		return model.Migration{}, fmt.Errorf("sqlite: migration %s: %w", id, store.ErrNotFound)
	}
	return m, err
}

func (s *Store) GetMigrationByCorrelationID(ctx context.Context, correlationID string) (model.Migration, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+migrationColumns+` FROM migrations WHERE correlation_id = ? LIMIT 1`, correlationID)
	m, err := scanMigration(row)
	if err == sql.ErrNoRows {
		return model.Migration{}, false, nil
	}
	if err != nil {
		return model.Migration{}, false, err
	}
	return m, true, nil
}

func (s *Store) ClaimPendingMigration(ctx context.Context) (model.Migration, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Migration{}, false, err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM migrations WHERE status = ? ORDER BY rowid ASC LIMIT 1`,
		string(model.MigrationPending)).Scan(&id)
	if err == sql.ErrNoRows {
		return model.Migration{}, false, nil
	}
	if err != nil {
		return model.Migration{}, false, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE migrations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.MigrationProcessing), unixNow(), id, string(model.MigrationPending))
	if err != nil {
		return model.Migration{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Migration{}, false, err
	}
	if n == 0 {
		// Lost a race with another worker; nothing claimed this round.
		return model.Migration{}, false, nil
	}

	row := tx.QueryRowContext(ctx, `SELECT `+migrationColumns+` FROM migrations WHERE id = ?`, id)
	m, err := scanMigration(row)
	if err != nil {
		return model.Migration{}, false, err
	}
	return m, true, tx.Commit()
}

func (s *Store) RequeueMigration(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE migrations SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.MigrationPending), unixNow(), id)
	return err
}

func (s *Store) CompleteMigration(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE migrations SET status = ?, secret_key = ?, updated_at = ? WHERE id = ?`,
		string(model.MigrationComplete), model.ScrubbedSecretKey, unixNow(), id)
	return err
}

func (s *Store) MigrationChildrenTerminal(ctx context.Context, id string) (bool, error) {
	var pendingPosts, pendingArticles int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE migration_id = ? AND status NOT IN (?, ?)`,
		id, string(model.PostComplete), string(model.PostError)).Scan(&pendingPosts)
	if err != nil {
		return false, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE migration_id = ? AND status NOT IN (?, ?)`,
		id, string(model.ArticleReady), string(model.ArticleError)).Scan(&pendingArticles)
	if err != nil {
		return false, err
	}
	var pendingProfile int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles WHERE migration_id = ? AND published != ?`,
		id, int(model.ProfilePublished)).Scan(&pendingProfile)
	if err != nil {
		return false, err
	}
	return pendingPosts == 0 && pendingArticles == 0 && pendingProfile == 0, nil
}

func (s *Store) ListTerminalMigrationsOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM migrations WHERE status IN (?, ?) AND updated_at < ?`,
		string(model.MigrationComplete), string(model.MigrationError), cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) DeleteMigration(ctx context.Context, id string) error {
	// Cascades to posts/articles/media_items/hashtags/inline_images/profile
	// via the ON DELETE CASCADE foreign keys declared in the schema.
	_, err := s.db.ExecContext(ctx, `DELETE FROM migrations WHERE id = ?`, id)
	return err
}

func (s *Store) ResetStaleMigrations(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, `UPDATE migrations SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(model.MigrationPending), unixNow(), string(model.MigrationProcessing), cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Posts ---------------------------------------------------------------

func (s *Store) CreatePost(ctx context.Context, p model.Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	blossom, _ := json.Marshal(p.BlossomURLs)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (id, migration_id, post_type, caption, original_date,
			status, blossom_urls, nostr_event_id, retry_count, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MigrationID, string(p.PostType), p.Caption, p.OriginalDate.Unix(),
		string(p.Status), string(blossom), p.NostrEventID, p.RetryCount, p.LastError, unixNow())
	if err != nil {
		return fmt.Errorf("sqlite: create post: %w", err)
	}
	for i, mi := range p.MediaItems {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO media_items (post_id, position, source_url, media_type, width, height, duration, thumbnail_url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, i, mi.SourceURL, string(mi.MediaType), mi.Width, mi.Height, mi.Duration, mi.ThumbnailURL)
		if err != nil {
			return fmt.Errorf("sqlite: create post media item %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) loadMediaItems(ctx context.Context, postID string) ([]model.MediaItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_url, media_type, width, height, duration, thumbnail_url
		FROM media_items WHERE post_id = ? ORDER BY position ASC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.MediaItem
	for rows.Next() {
		var mi model.MediaItem
		var mt string
		if err := rows.Scan(&mi.SourceURL, &mt, &mi.Width, &mi.Height, &mi.Duration, &mi.ThumbnailURL); err != nil {
			return nil, err
		}
		mi.MediaType = model.MediaType(mt)
		items = append(items, mi)
	}
	return items, rows.Err()
}

func (s *Store) scanPost(row interface{ Scan(...any) error }) (model.Post, error) {
	var p model.Post
	var postType, status, blossom string
	var originalDate int64
	err := row.Scan(&p.ID, &p.MigrationID, &postType, &p.Caption, &originalDate,
		&status, &blossom, &p.NostrEventID, &p.RetryCount, &p.LastError)
	if err != nil {
		return model.Post{}, err
	}
	p.PostType = model.PostType(postType)
	p.Status = model.PostStatus(status)
	p.OriginalDate = time.Unix(originalDate, 0).UTC()
	_ = json.Unmarshal([]byte(blossom), &p.BlossomURLs)
	return p, nil
}

const postColumns = `id, migration_id, post_type, caption, original_date, status, blossom_urls, nostr_event_id, retry_count, last_error`

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := s.scanPost(row)
	if err == sql.ErrNoRows {
		return model.Post{}, fmt.Errorf("sqlite: post %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.Post{}, err
	}
	p.MediaItems, err = s.loadMediaItems(ctx, id)
	return p, err
}

func (s *Store) ClaimPendingPosts(ctx context.Context, limit int) ([]model.Post, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM posts WHERE status = ? ORDER BY rowid ASC LIMIT ?`,
		string(model.PostPending), limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var claimed []model.Post
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `UPDATE posts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(model.PostUploading), unixNow(), id, string(model.PostPending))
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if n == 0 {
			continue
		}
		row := tx.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
		p, err := s.scanPost(row)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for i := range claimed {
		items, err := s.loadMediaItems(ctx, claimed[i].ID)
		if err != nil {
			return nil, err
		}
		claimed[i].MediaItems = items
	}
	return claimed, nil
}

func (s *Store) SetPostUploadResult(ctx context.Context, id string, blossomURLs []string) error {
	b, _ := json.Marshal(blossomURLs)
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET blossom_urls = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(b), string(model.PostReady), unixNow(), id)
	return err
}

func (s *Store) UpdatePostStatus(ctx context.Context, id string, status model.PostStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET status = ?, updated_at = ? WHERE id = ?`, string(status), unixNow(), id)
	return err
}

func (s *Store) CompletePost(ctx context.Context, id string, nostrEventID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET status = ?, nostr_event_id = ?, updated_at = ? WHERE id = ?`,
		string(model.PostComplete), nostrEventID, unixNow(), id)
	return err
}

func (s *Store) FailPost(ctx context.Context, id string, detail string, maxRetries int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var retryCount int
	if err := tx.QueryRowContext(ctx, `SELECT retry_count FROM posts WHERE id = ?`, id).Scan(&retryCount); err != nil {
		return false, err
	}
	if retryCount < maxRetries {
		_, err = tx.ExecContext(ctx, `UPDATE posts SET status = ?, retry_count = retry_count + 1, last_error = ?, updated_at = ? WHERE id = ?`,
			string(model.PostPending), detail, unixNow(), id)
		if err != nil {
			return false, err
		}
		return true, tx.Commit()
	}
	_, err = tx.ExecContext(ctx, `UPDATE posts SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(model.PostError), detail, unixNow(), id)
	if err != nil {
		return false, err
	}
	return false, tx.Commit()
}

func (s *Store) ResetStalePosts(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET status = ?, updated_at = ? WHERE status IN (?, ?) AND updated_at < ?`,
		string(model.PostPending), unixNow(), string(model.PostUploading), string(model.PostPublishing), cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Articles --------------------------------------------------------------

func (s *Store) CreateArticle(ctx context.Context, a model.Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO articles (id, migration_id, title, summary, content_markdown,
			image_url, blossom_image_url, published_at, link, status, upload_attempts,
			nostr_event_id, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MigrationID, a.Title, a.Summary, a.ContentMarkdown, a.ImageURL,
		a.BlossomImageURL, a.PublishedAt.Unix(), a.Link, string(a.Status), a.UploadAttempts,
		a.NostrEventID, a.LastError, unixNow())
	if err != nil {
		return fmt.Errorf("sqlite: create article: %w", err)
	}
	for i, tag := range a.Hashtags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO article_hashtags (article_id, position, tag) VALUES (?, ?, ?)`, a.ID, i, tag); err != nil {
			return fmt.Errorf("sqlite: create article hashtag %d: %w", i, err)
		}
	}
	for src, dst := range a.InlineImageURLs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO article_inline_images (article_id, source_url, blob_url) VALUES (?, ?, ?)`, a.ID, src, dst); err != nil {
			return fmt.Errorf("sqlite: create article inline image: %w", err)
		}
	}
	return tx.Commit()
}

const articleColumns = `id, migration_id, title, summary, content_markdown, image_url, blossom_image_url, published_at, link, status, upload_attempts, nostr_event_id, last_error`

func (s *Store) scanArticle(row interface{ Scan(...any) error }) (model.Article, error) {
	var a model.Article
	var status string
	var publishedAt int64
	err := row.Scan(&a.ID, &a.MigrationID, &a.Title, &a.Summary, &a.ContentMarkdown,
		&a.ImageURL, &a.BlossomImageURL, &publishedAt, &a.Link, &status, &a.UploadAttempts,
		&a.NostrEventID, &a.LastError)
	if err != nil {
		return model.Article{}, err
	}
	a.Status = model.ArticleStatus(status)
	a.PublishedAt = time.Unix(publishedAt, 0).UTC()
	return a, nil
}

func (s *Store) loadArticleExtras(ctx context.Context, a *model.Article) error {
	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM article_hashtags WHERE article_id = ? ORDER BY position ASC`, a.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			rows.Close()
			return err
		}
		a.Hashtags = append(a.Hashtags, tag)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT source_url, blob_url FROM article_inline_images WHERE article_id = ?`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var src, dst string
		if err := rows.Scan(&src, &dst); err != nil {
			return err
		}
		if a.InlineImageURLs == nil {
			a.InlineImageURLs = map[string]string{}
		}
		a.InlineImageURLs[src] = dst
	}
	return rows.Err()
}

func (s *Store) GetArticle(ctx context.Context, id string) (model.Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := s.scanArticle(row)
	if err == sql.ErrNoRows {
		return model.Article{}, fmt.Errorf("sqlite: article %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.Article{}, err
	}
	return a, s.loadArticleExtras(ctx, &a)
}

func (s *Store) ClaimPendingArticles(ctx context.Context, limit int) ([]model.Article, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM articles WHERE status = ? ORDER BY rowid ASC LIMIT ?`,
		string(model.ArticlePending), limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var claimed []model.Article
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `UPDATE articles SET updated_at = ? WHERE id = ? AND status = ?`,
			unixNow(), id, string(model.ArticlePending))
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if n == 0 {
			continue
		}
		row := tx.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
		a, err := s.scanArticle(row)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, a)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for i := range claimed {
		if err := s.loadArticleExtras(ctx, &claimed[i]); err != nil {
			return nil, err
		}
	}
	return claimed, nil
}

func (s *Store) UpdateArticleProgress(ctx context.Context, a model.Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE articles SET content_markdown = ?, blossom_image_url = ?, status = ?,
			upload_attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		a.ContentMarkdown, a.BlossomImageURL, string(a.Status), a.UploadAttempts, a.LastError, unixNow(), a.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update article progress: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM article_inline_images WHERE article_id = ?`, a.ID); err != nil {
		return err
	}
	for src, dst := range a.InlineImageURLs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO article_inline_images (article_id, source_url, blob_url) VALUES (?, ?, ?)`, a.ID, src, dst); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) CompleteArticle(ctx context.Context, id string, nostrEventID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE articles SET status = ?, nostr_event_id = ?, updated_at = ? WHERE id = ?`,
		string(model.ArticleReady), nostrEventID, unixNow(), id)
	return err
}

func (s *Store) ResetStaleArticles(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	// Articles have only pending/ready/error states; "stale" means stuck
	// mid-retry past the timeout while still pending.
	res, err := s.db.ExecContext(ctx, `UPDATE articles SET updated_at = ? WHERE status = ? AND updated_at < ?`,
		unixNow(), string(model.ArticlePending), cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Profile ---------------------------------------------------------------

func (s *Store) CreateProfile(ctx context.Context, p model.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, migration_id, name, bio, picture_source_url, picture_blob_url, published, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MigrationID, p.Name, p.Bio, p.PictureSourceURL, p.PictureBlobURL, int(p.Published), unixNow())
	if err != nil {
		return fmt.Errorf("sqlite: create profile: %w", err)
	}
	return nil
}

const profileColumns = `id, migration_id, name, bio, picture_source_url, picture_blob_url, published`

func scanProfile(row interface{ Scan(...any) error }) (model.Profile, error) {
	var p model.Profile
	var published int
	err := row.Scan(&p.ID, &p.MigrationID, &p.Name, &p.Bio, &p.PictureSourceURL, &p.PictureBlobURL, &published)
	if err != nil {
		return model.Profile{}, err
	}
	p.Published = model.ProfilePublishState(published)
	return p, nil
}

func (s *Store) ClaimPendingProfile(ctx context.Context) (model.Profile, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Profile{}, false, err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM profiles WHERE published = ? ORDER BY rowid ASC LIMIT 1`,
		int(model.ProfileUnpublished)).Scan(&id)
	if err == sql.ErrNoRows {
		return model.Profile{}, false, nil
	}
	if err != nil {
		return model.Profile{}, false, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE profiles SET published = ?, updated_at = ? WHERE id = ? AND published = ?`,
		int(model.ProfileProcessing), unixNow(), id, int(model.ProfileUnpublished))
	if err != nil {
		return model.Profile{}, false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Profile{}, false, err
	} else if n == 0 {
		return model.Profile{}, false, nil
	}

	row := tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err != nil {
		return model.Profile{}, false, err
	}
	return p, true, tx.Commit()
}

func (s *Store) CompleteProfile(ctx context.Context, id string, blobURL string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET published = ?, picture_blob_url = ?, updated_at = ? WHERE id = ?`,
		int(model.ProfilePublished), blobURL, unixNow(), id)
	return err
}

func (s *Store) ResetStaleProfiles(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET published = ?, updated_at = ? WHERE published = ? AND updated_at < ?`,
		int(model.ProfileUnpublished), unixNow(), int(model.ProfileProcessing), cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Misc --------------------------------------------------------------

func (s *Store) QueueDepth(ctx context.Context) (store.QueueDepth, error) {
	var d store.QueueDepth
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM migrations WHERE status IN (?, ?)`,
		string(model.MigrationPending), string(model.MigrationProcessing)).Scan(&d.Migrations)
	if err != nil {
		return d, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE status NOT IN (?, ?)`,
		string(model.PostComplete), string(model.PostError)).Scan(&d.Posts)
	if err != nil {
		return d, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE status = ?`, string(model.ArticlePending)).Scan(&d.Articles)
	if err != nil {
		return d, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles WHERE published != ?`, int(model.ProfilePublished)).Scan(&d.Profiles)
	return d, err
}

var _ store.Queries = (*Store)(nil)
