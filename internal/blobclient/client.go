// Package blobclient implements the Blob Client (C2): content-addressed
// upload to the blob store, authorized by a signed kind-24242 envelope.
package blobclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nostrmigrate/corepipe/internal/magic"
	"github.com/nostrmigrate/corepipe/internal/migrateerrors"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/nostrsign"
)

const (
	// authKind is the Nostr event kind used for the upload authorization
	// envelope (spec.md §4.2/§6).
	authKind = 24242
	// authExpirySeconds is how long the authorization envelope remains
	// valid after it is minted.
	authExpirySeconds = 300
	// uploadTimeout bounds a single blob PUT (spec.md §5).
	uploadTimeout = 300 * time.Second
	// transientRetryBudget bounds how long one Upload call spends retrying
	// transient failures (connection refused, timeout, 5xx) before giving
	// up and letting the Post/Article's own retry_count scheme take over
	// on a later scheduler tick.
	transientRetryBudget = 20 * time.Second
)

// Result is the outcome of a successful upload.
type Result struct {
	URL      string
	Hash     string // lowercase hex SHA-256 of the uploaded bytes
	Size     int64
	MimeType string
}

// Resolver resolves a ytdl:-prefixed source URL to a direct CDN URL
// (spec.md §4.2 "YTDL-prefixed source URLs"); an external collaborator.
type Resolver interface {
	Resolve(ctx context.Context, ytdlURL string) (directURL string, err error)
}

// StreamingUploader delegates upload of large media by fetching the
// source URL while hashing, rather than slurping it into memory first
// (spec.md §4.2 "Streaming variant"); an external collaborator.
type StreamingUploader interface {
	Upload(ctx context.Context, sourceURL string, authHeader string) (Result, error)
}

// EnvelopeSigner is the signing capability the Blob Client needs to mint an
// authorization envelope: a public key and a way to sign under it, without
// the Client ever seeing a secret key. process.KeySource satisfies this
// interface structurally.
type EnvelopeSigner interface {
	PubKey() string
	Sign(ctx context.Context, kind int, createdAt int64, tags [][]string, content string) (model.Event, error)
}

// simpleSigner adapts a bare pubkey/secret pair to EnvelopeSigner, for the
// direct-secret convenience path Upload/UploadFromSource expose.
type simpleSigner struct {
	pubkey, secret string
	signer         *nostrsign.Signer
}

func (s simpleSigner) PubKey() string { return s.pubkey }

func (s simpleSigner) Sign(ctx context.Context, kind int, createdAt int64, tags [][]string, content string) (model.Event, error) {
	return s.signer.Sign(kind, s.pubkey, createdAt, tags, content, s.secret)
}

// Client uploads blobs to a single content-addressed blob server.
type Client struct {
	server   string
	signer   *nostrsign.Signer
	http     *http.Client
	resolver Resolver
	streamer StreamingUploader
}

// Option configures a Client.
type Option func(*Client)

// WithResolver installs the ytdl: URL resolver.
func WithResolver(r Resolver) Option { return func(c *Client) { c.resolver = r } }

// WithStreamingUploader installs the large-media streaming uploader.
func WithStreamingUploader(u StreamingUploader) Option {
	return func(c *Client) { c.streamer = u }
}

// WithHTTPClient overrides the default *http.Client (tests install a
// client pointed at an httptest.Server).
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// New builds a Client targeting server (e.g. https://blossom.example).
func New(server string, signer *nostrsign.Signer, opts ...Option) *Client {
	c := &Client{
		server: strings.TrimRight(server, "/"),
		signer: signer,
		http:   &http.Client{Timeout: uploadTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ServerURL returns the blob server's base URL, so callers can recognize a
// URL that already points at this blob store (e.g. the Article Processor
// skipping inline images that were migrated on a prior attempt).
func (c *Client) ServerURL() string { return c.server }

// Upload uploads mediaBytes under pubkeyHex/secretKeyHex's authorization
// and returns its content address. Re-uploading identical bytes is safe
// and idempotent: the store is addressed by content hash. It is a
// convenience wrapper around UploadWithSigner for callers that hold a
// bare secret key directly (tests, and Migrations whose KeySource is
// StoredKey/EphemeralKey).
func (c *Client) Upload(ctx context.Context, mediaBytes []byte, mimeType, pubkeyHex, secretKeyHex string) (Result, error) {
	return c.UploadWithSigner(ctx, mediaBytes, mimeType, simpleSigner{pubkey: pubkeyHex, secret: secretKeyHex, signer: c.signer})
}

// UploadWithSigner uploads mediaBytes, minting its authorization envelope
// through signer rather than a bare secret key. This is the path every
// KeySource variant (including ExternalSigner, whose secret never enters
// this process) goes through.
func (c *Client) UploadWithSigner(ctx context.Context, mediaBytes []byte, mimeType string, signer EnvelopeSigner) (Result, error) {
	sum := sha256.Sum256(mediaBytes)
	hash := hex.EncodeToString(sum[:])

	envelope, err := c.buildEnvelope(ctx, hash, signer)
	if err != nil {
		return Result{}, err
	}

	var result Result
	doPut := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.server+"/upload", bytes.NewReader(mediaBytes))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("blobclient: build request: %w", err))
		}
		req.Header.Set("Authorization", "Nostr "+envelope)
		req.Header.Set("Content-Type", mimeType)
		req.Header.Set("X-SHA-256", hash)
		req.ContentLength = int64(len(mediaBytes))

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("blobclient: upload: %w: %v", migrateerrors.ErrTransient, err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("blobclient: %w: status %d: %s", migrateerrors.ErrTransient, resp.StatusCode, body)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return backoff.Permanent(fmt.Errorf("blobclient: %w: status %d: %s", migrateerrors.ErrUploadFailed, resp.StatusCode, body))
		}

		result = Result{URL: c.recoverURL(body, hash), Hash: hash, Size: int64(len(mediaBytes)), MimeType: mimeType}
		return nil
	}

	if err := backoff.Retry(doPut, retryPolicy(ctx)); err != nil {
		return Result{}, err
	}
	return result, nil
}

// retryPolicy is the exponential backoff used around transient blob-store
// PUT failures, bounded so a stuck Upload still leaves the Post/Article's
// own retry_count scheme time to take over. The source fetch in
// UploadFromSourceWithSigner is not retried.
func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = transientRetryBudget
	return backoff.WithContext(b, ctx)
}

// UploadFromSource fetches source (resolving a ytdl: URL first if
// present, and delegating to the streaming uploader when one is
// configured) and uploads it.
func (c *Client) UploadFromSource(ctx context.Context, source, mimeType, pubkeyHex, secretKeyHex string) (Result, error) {
	return c.UploadFromSourceWithSigner(ctx, source, mimeType, simpleSigner{pubkey: pubkeyHex, secret: secretKeyHex, signer: c.signer})
}

// UploadFromSourceWithSigner is UploadFromSource's KeySource-capable form.
func (c *Client) UploadFromSourceWithSigner(ctx context.Context, source, mimeType string, signer EnvelopeSigner) (Result, error) {
	if strings.HasPrefix(source, "ytdl:") {
		if c.resolver == nil {
			return Result{}, fmt.Errorf("blobclient: ytdl source %q with no Resolver configured: %w", source, migrateerrors.ErrFatalUnit)
		}
		resolved, err := c.resolver.Resolve(ctx, strings.TrimPrefix(source, "ytdl:"))
		if err != nil {
			return Result{}, fmt.Errorf("blobclient: resolve %q: %w: %v", source, migrateerrors.ErrTransient, err)
		}
		source = resolved
	}

	if c.streamer != nil {
		envelope, err := c.buildEnvelope(ctx, "", signer)
		if err != nil {
			return Result{}, err
		}
		return c.streamer.Upload(ctx, source, "Nostr "+envelope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return Result{}, fmt.Errorf("blobclient: fetch source: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("blobclient: fetch source: %w: %v", migrateerrors.ErrTransient, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("blobclient: read source: %w: %v", migrateerrors.ErrTransient, err)
	}
	if sniffed := magic.MIMEType(data); sniffed != "" {
		mimeType = sniffed
	}
	return c.UploadWithSigner(ctx, data, mimeType, signer)
}

// buildEnvelope mints and signs the kind-24242 authorization event and
// returns it base64-encoded, ready for the Authorization header.
func (c *Client) buildEnvelope(ctx context.Context, hash string, signer EnvelopeSigner) (string, error) {
	now := time.Now().Unix()
	tags := [][]string{
		{"t", "upload"},
		{"x", hash},
		{"expiration", strconv.FormatInt(now+authExpirySeconds, 10)},
	}
	ev, err := signer.Sign(ctx, authKind, now, tags, "Upload blob")
	if err != nil {
		return "", fmt.Errorf("blobclient: sign upload envelope: %w", err)
	}

	raw, err := json.Marshal(struct {
		ID        string     `json:"id"`
		PubKey    string     `json:"pubkey"`
		CreatedAt int64      `json:"created_at"`
		Kind      int        `json:"kind"`
		Tags      [][]string `json:"tags"`
		Content   string     `json:"content"`
		Sig       string     `json:"sig"`
	}{ev.ID, ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content, ev.Sig})
	if err != nil {
		return "", fmt.Errorf("blobclient: marshal envelope: %w", err)
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

// recoverURL parses body for a "url" field; on failure it falls back to
// server/hash, matching spec.md §4.2's URL recovery rule.
func (c *Client) recoverURL(body []byte, hash string) string {
	var parsed struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.URL != "" {
		return parsed.URL
	}
	return c.server + "/" + hash
}

// MimeFromMediaType returns a best-guess MIME type for a MediaItem when
// the caller has no sniffed Content-Type to offer.
func MimeFromMediaType(mt model.MediaType) string {
	switch mt {
	case model.MediaVideo:
		return "video/mp4"
	default:
		return "image/jpeg"
	}
}
