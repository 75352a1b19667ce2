// Package external declares the contracts for collaborators that sit
// outside the migration pipeline's core: the platform-scraping frontend,
// the YTDL resolver and streaming uploader the Blob Client delegates to,
// the HTML-to-Markdown converter that produces an Article's
// content_markdown, and the email transport that notifies a user their
// migration is ready to claim. Concrete implementations (platform API
// clients, a Markdown converter, an SMTP/API email sender) live outside
// this module; only their contracts are specified here, the way the
// teacher's importer package defines a Host contract for importers it
// does not itself implement.
package external

import "context"

// PlatformFetcher feeds the Work Store by inserting Migrations together
// with their Posts and Articles. It runs upstream of the Scheduler Loop
// and is never called by anything in this module.
type PlatformFetcher interface {
	// FetchAndEnqueue scrapes handle's content from its source platform
	// and enqueues a Migration for it, returning a correlation id the
	// caller can use to recognize an already-queued handle on retry.
	FetchAndEnqueue(ctx context.Context, handle string) (correlationID string, err error)
}

// YTDLResolver resolves a ytdl:-prefixed source URL to a direct,
// fetchable CDN URL. blobclient.Resolver is the same contract, declared
// locally there to avoid this package depending on blobclient.
type YTDLResolver interface {
	Resolve(ctx context.Context, ytdlURL string) (directURL string, err error)
}

// StreamResult is the outcome of a streaming upload.
type StreamResult struct {
	URL      string
	Hash     string
	Size     int64
	MimeType string
}

// StreamingUploader fetches a large media source while hashing it, rather
// than buffering it into memory first, then performs the same
// content-addressed PUT the Blob Client does for small media.
// blobclient.StreamingUploader is the same contract, declared locally
// there for the same reason as YTDLResolver.
type StreamingUploader interface {
	Upload(ctx context.Context, sourceURL, authHeader string) (StreamResult, error)
}

// HTMLToMarkdownConverter produces an Article's content_markdown (and the
// ordered list of image URLs referenced within it) from a platform's raw
// HTML feed entry.
type HTMLToMarkdownConverter interface {
	Convert(ctx context.Context, html, baseURL string) (markdown string, imageURLs []string, err error)
}

// EmailNotifier tells a user their migration is ready to claim.
type EmailNotifier interface {
	Notify(ctx context.Context, to, claimURL, handle string, postAndArticleCount int) (bool, error)
}
