package sqlite

// schemaVersion is bumped whenever the DDL below changes incompatibly.
const schemaVersion = 1

// schema creates every table used by the Work Store. Posts and Articles are
// claimed in insertion order via sqlite's implicit rowid, so neither table
// carries an explicit created_at column of its own beyond what Migration
// exposes on its Go struct.
const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS migrations (
	id             TEXT PRIMARY KEY,
	handle         TEXT NOT NULL,
	public_key     TEXT NOT NULL,
	secret_key     TEXT NOT NULL,
	key_source     INTEGER NOT NULL,
	profile_name   TEXT NOT NULL DEFAULT '',
	profile_bio    TEXT NOT NULL DEFAULT '',
	profile_picture TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_migrations_status ON migrations(status);
CREATE INDEX IF NOT EXISTS idx_migrations_correlation ON migrations(correlation_id);

CREATE TABLE IF NOT EXISTS posts (
	id             TEXT PRIMARY KEY,
	migration_id   TEXT NOT NULL REFERENCES migrations(id) ON DELETE CASCADE,
	post_type      TEXT NOT NULL,
	caption        TEXT NOT NULL DEFAULT '',
	original_date  INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	blossom_urls   TEXT NOT NULL DEFAULT '[]',
	nostr_event_id TEXT NOT NULL DEFAULT '',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	last_error     TEXT NOT NULL DEFAULT '',
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_migration ON posts(migration_id);
CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status);

CREATE TABLE IF NOT EXISTS media_items (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id       TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	source_url    TEXT NOT NULL,
	media_type    TEXT NOT NULL,
	width         INTEGER NOT NULL DEFAULT 0,
	height        INTEGER NOT NULL DEFAULT 0,
	duration      REAL NOT NULL DEFAULT 0,
	thumbnail_url TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_media_post ON media_items(post_id, position);

CREATE TABLE IF NOT EXISTS articles (
	id                TEXT PRIMARY KEY,
	migration_id      TEXT NOT NULL REFERENCES migrations(id) ON DELETE CASCADE,
	title             TEXT NOT NULL DEFAULT '',
	summary           TEXT NOT NULL DEFAULT '',
	content_markdown  TEXT NOT NULL DEFAULT '',
	image_url         TEXT NOT NULL DEFAULT '',
	blossom_image_url TEXT NOT NULL DEFAULT '',
	published_at      INTEGER NOT NULL DEFAULT 0,
	link              TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	upload_attempts   INTEGER NOT NULL DEFAULT 0,
	nostr_event_id    TEXT NOT NULL DEFAULT '',
	last_error        TEXT NOT NULL DEFAULT '',
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_migration ON articles(migration_id);
CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);

CREATE TABLE IF NOT EXISTS article_hashtags (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	tag        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hashtags_article ON article_hashtags(article_id, position);

CREATE TABLE IF NOT EXISTS article_inline_images (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	article_id TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	source_url TEXT NOT NULL,
	blob_url   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inline_article ON article_inline_images(article_id);

CREATE TABLE IF NOT EXISTS profiles (
	id                 TEXT PRIMARY KEY,
	migration_id       TEXT NOT NULL UNIQUE REFERENCES migrations(id) ON DELETE CASCADE,
	name               TEXT NOT NULL DEFAULT '',
	bio                TEXT NOT NULL DEFAULT '',
	picture_source_url TEXT NOT NULL DEFAULT '',
	picture_blob_url   TEXT NOT NULL DEFAULT '',
	published          INTEGER NOT NULL DEFAULT 0,
	updated_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_profiles_published ON profiles(published);
`
