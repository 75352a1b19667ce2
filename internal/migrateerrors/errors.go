// Package migrateerrors collects the sentinel errors used to classify
// failures across the migration pipeline, per the error taxonomy in
// spec.md §7. Call sites wrap these with fmt.Errorf("...: %w", err) and
// classify with errors.Is; there is no separate error-code registry.
package migrateerrors

import "errors"

var (
	// ErrTransient marks a failure the caller should retry: network
	// timeout, 5xx from blob store or relay, WebSocket handshake failure.
	ErrTransient = errors.New("transient failure")

	// ErrFatalUnit marks a failure specific to one Post/Article/MediaItem
	// that should not affect its siblings: malformed source URL, blob
	// store 4xx, sign failure.
	ErrFatalUnit = errors.New("fatal unit failure")

	// ErrNoRelayAccepted names the outcome where zero relays accepted an
	// event, which is treated as transient. relay.Publisher reports
	// acceptance as a per-relay map and does not return this error.
	ErrNoRelayAccepted = errors.New("no relay accepted the event")

	// ErrNonceDegenerate is returned by the Event Signer on the
	// (extremely rare) degenerate nonce case; the caller should retry
	// signing with a fresh signature time.
	ErrNonceDegenerate = errors.New("degenerate signing nonce")

	// ErrUploadFailed marks a blob-store response whose status is neither
	// 200/201 nor 5xx (5xx responses are classified ErrTransient).
	ErrUploadFailed = errors.New("blob upload failed")

	// ErrClaimLost names a conditional claim update that affected zero
	// rows: another worker won the race, or the row is gone. The Work
	// Store claim methods report that case as ok=false or an empty result
	// and do not return this error.
	ErrClaimLost = errors.New("claim lost to another worker")

	// ErrMigrationNotFound names a referenced Migration id that does not
	// exist in the Work Store. Work Store lookups return store.ErrNotFound
	// for a missing id, not this error.
	ErrMigrationNotFound = errors.New("migration not found")

	// ErrRetriesExhausted names a Post whose retry_count has reached
	// MAX_RETRIES. FailPost reports that case by returning retried=false
	// and does not return this error.
	ErrRetriesExhausted = errors.New("retries exhausted")
)
