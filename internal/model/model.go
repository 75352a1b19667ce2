// Package model defines the persistent and transient record types that
// flow through the migration pipeline: Migrations and the Posts, Articles
// and Profile they own, plus the transient Nostr-style Event.
package model

import "time"

// MigrationStatus is the lifecycle state of a Migration.
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationProcessing MigrationStatus = "processing"
	MigrationReady      MigrationStatus = "ready"
	MigrationComplete    MigrationStatus = "complete"
	MigrationError      MigrationStatus = "error"
)

// ScrubbedSecretKey replaces Migration.SecretKey once a Migration reaches a
// terminal state. It is never a valid 32-byte secp256k1 scalar.
const ScrubbedSecretKey = "scrubbed"

// KeySourceKind distinguishes how a Migration's signing key is obtained, per
// the KeySource capability in spec.md §9 (replacing the source's three
// divergent key-derivation code paths).
type KeySourceKind int

const (
	// StoredKey: the secret key is held in the Migration row.
	StoredKey KeySourceKind = iota
	// EphemeralKey: a key generated for this migration alone, discarded
	// once signing is complete.
	EphemeralKey
	// ExternalSigner: signing is delegated to a caller-supplied function;
	// the Work Store never sees the secret key at all.
	ExternalSigner
)

// ProfileData is the structured profile record carried by a Migration and
// persisted with it. The profile-metadata event (kind 0) is built from a
// claimed Profile row, never from this record.
type ProfileData struct {
	Name    string
	Bio     string
	Picture string
}

// Migration is one user's migration request.
type Migration struct {
	ID          string
	Handle      string
	PublicKey   string // 32-byte x-only pubkey, lowercase hex
	SecretKey   string // 32-byte secret scalar, lowercase hex; scrubbed on completion
	KeySource   KeySourceKind
	ProfileData ProfileData
	Status      MigrationStatus
	// CorrelationID is returned by the platform fetcher when it first
	// inserts this Migration, letting a re-run of the fetcher recognize
	// an already-queued handle instead of double-enqueuing it.
	CorrelationID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTerminal reports whether the Migration is in a terminal lifecycle state.
func (m Migration) IsTerminal() bool {
	switch m.Status {
	case MigrationComplete, MigrationError:
		return true
	default:
		return false
	}
}

// PostType is the kind of short-form post.
type PostType string

const (
	PostReel      PostType = "reel"
	PostImage     PostType = "image"
	PostCarousel  PostType = "carousel"
	PostText      PostType = "text"
)

// PostStatus is the lifecycle state of a Post.
type PostStatus string

const (
	PostPending    PostStatus = "pending"
	PostUploading  PostStatus = "uploading"
	PostReady      PostStatus = "ready"
	PostPublishing PostStatus = "publishing"
	PostComplete   PostStatus = "complete"
	PostError      PostStatus = "error"
)

// MediaType distinguishes image from video MediaItems.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaItem is one binary referenced by a Post.
type MediaItem struct {
	SourceURL    string
	MediaType    MediaType
	Width        int // 0 if unknown
	Height       int // 0 if unknown
	Duration     float64 // seconds; 0 if unknown
	ThumbnailURL string
}

// Post is one short-form post (video, image, or carousel).
type Post struct {
	ID           string
	MigrationID  string
	PostType     PostType
	MediaItems   []MediaItem // ordered
	Caption      string
	OriginalDate time.Time
	Status       PostStatus
	// BlossomURLs are the content-addressed URLs returned by the blob
	// store, in the same order as MediaItems, set after upload.
	BlossomURLs  []string
	NostrEventID string
	RetryCount   int
	// LastError carries actionable per-unit detail (e.g. which
	// MediaItem index failed) rather than a bare generic message.
	LastError string
}

// ArticleStatus is the lifecycle state of an Article.
type ArticleStatus string

const (
	ArticlePending ArticleStatus = "pending"
	ArticleReady   ArticleStatus = "ready"
	ArticleError   ArticleStatus = "error"
)

// Article is one long-form entry.
type Article struct {
	ID                string
	MigrationID       string
	Title             string
	Summary           string
	ContentMarkdown   string
	ImageURL          string // header image source, optional
	BlossomImageURL   string // set once the header is uploaded
	InlineImageURLs   map[string]string // source_url -> blob_url
	Hashtags          []string // ordered
	PublishedAt       time.Time
	Link              string
	Status            ArticleStatus
	UploadAttempts    int
	NostrEventID      string
	LastError         string
}

// ProfilePublishState is the publication state of a Profile.
type ProfilePublishState int

const (
	ProfileUnpublished ProfilePublishState = 0
	ProfileProcessing  ProfilePublishState = -1
	ProfilePublished   ProfilePublishState = 1
)

// Profile is a per-Migration singleton carrying avatar/bio migration state.
type Profile struct {
	ID               string
	MigrationID      string
	Name             string
	Bio              string
	PictureSourceURL string
	PictureBlobURL   string
	Published        ProfilePublishState
}

// Event is a signed, hash-identified record ready for relay publication.
// It is transient: only its id/sig and the post/article/profile fields
// that produced it are persisted.
type Event struct {
	Kind      int
	PubKey    string
	CreatedAt int64
	Tags      [][]string
	Content   string
	ID        string // 32-byte hex, SHA-256 of the canonical serialization
	Sig       string // 64-byte hex Schnorr signature over ID
}
