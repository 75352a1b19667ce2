// Package process implements the Post Processor (C8), Article Processor
// (C9), and Profile Processor (C10): the three claimed-work handlers the
// Scheduler Loop (internal/scheduler) dispatches to.
package process

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go4.org/syncutil"

	"go.uber.org/zap"

	"github.com/nostrmigrate/corepipe/internal/blobclient"
	"github.com/nostrmigrate/corepipe/internal/cacheimport"
	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/relay"
	"github.com/nostrmigrate/corepipe/internal/store"
)

// shortNoteKind is the Nostr event kind for a short-form post (spec.md §6).
const shortNoteKind = 1

// maxMediaParallelism caps how many MediaItems of one Post upload at once,
// regardless of how large a carousel is (spec.md §4.8 "typically ≤10").
const maxMediaParallelism = 10

// PostProcessor implements C8: upload every MediaItem of a claimed Post,
// build and sign its short-note event, and publish it.
type PostProcessor struct {
	store      store.Queries
	blobs      *blobclient.Client
	keys       *KeySourceResolver
	publisher  *relay.Publisher
	importer   *cacheimport.Importer
	relays     []string
	maxRetries int
	log        logging.Logger
}

// NewPostProcessor builds a PostProcessor.
func NewPostProcessor(st store.Queries, blobs *blobclient.Client, keys *KeySourceResolver, pub *relay.Publisher, imp *cacheimport.Importer, relays []string, maxRetries int, log logging.Logger) *PostProcessor {
	return &PostProcessor{store: st, blobs: blobs, keys: keys, publisher: pub, importer: imp, relays: relays, maxRetries: maxRetries, log: log}
}

type mediaUpload struct {
	item   model.MediaItem
	result blobclient.Result
	err    error
}

// Process runs the full C8 pipeline for one claimed Post against its
// owning Migration.
func (pp *PostProcessor) Process(ctx context.Context, post model.Post, mig model.Migration) error {
	log := pp.log.With(zap.String("post_id", post.ID), zap.String("migration_id", mig.ID))

	ks, err := pp.keys.Resolve(mig)
	if err != nil {
		return pp.fail(ctx, post, fmt.Sprintf("resolve key source: %v", err))
	}

	uploads := pp.uploadMedia(ctx, post, ks)
	blossomURLs := make([]string, len(uploads))
	for i, u := range uploads {
		if u.err != nil {
			return pp.fail(ctx, post, fmt.Sprintf("media item %d upload failed: %v", i, u.err))
		}
		blossomURLs[i] = u.result.URL
	}

	if err := pp.store.SetPostUploadResult(ctx, post.ID, blossomURLs); err != nil {
		return fmt.Errorf("process: persist post upload result: %w", err)
	}

	createdAt := createdAtFromOriginalDate(post.OriginalDate)
	tags := imetaTags(uploads)
	content := buildPostContent(post.Caption, blossomURLs)

	ev, err := ks.Sign(ctx, shortNoteKind, createdAt, tags, content)
	if err != nil {
		return pp.fail(ctx, post, fmt.Sprintf("sign short-note event: %v", err))
	}

	if err := pp.store.UpdatePostStatus(ctx, post.ID, model.PostPublishing); err != nil {
		return fmt.Errorf("process: mark post publishing: %w", err)
	}

	accepted := pp.publisher.Publish(ctx, ev, pp.relays)
	if !relay.Accepted(accepted) {
		return pp.fail(ctx, post, "no relay accepted the short-note event")
	}
	if pp.importer.Enabled() {
		pp.importer.Import(ctx, []model.Event{ev})
	}

	log.Info("post published", zap.String("event_id", ev.ID), zap.Int("accepted_relays", countAccepted(accepted)))
	return pp.store.CompletePost(ctx, post.ID, ev.ID)
}

// uploadMedia uploads every MediaItem of post in parallel, bounded by
// syncutil.Gate the way cmd/pk-put's Uploader gates concurrent file
// descriptor use, and returns results in MediaItem input order.
func (pp *PostProcessor) uploadMedia(ctx context.Context, post model.Post, ks KeySource) []mediaUpload {
	n := len(post.MediaItems)
	results := make([]mediaUpload, n)
	gate := syncutil.NewGate(maxMediaParallelism)
	var wg sync.WaitGroup
	for i, item := range post.MediaItems {
		i, item := i, item
		gate.Start()
		wg.Add(1)
		go func() {
			defer gate.Done()
			defer wg.Done()
			mime := blobclient.MimeFromMediaType(item.MediaType)
			res, err := pp.blobs.UploadFromSourceWithSigner(ctx, item.SourceURL, mime, ks)
			results[i] = mediaUpload{item: item, result: res, err: err}
		}()
	}
	wg.Wait()
	return results
}

func (pp *PostProcessor) fail(ctx context.Context, post model.Post, detail string) error {
	retried, err := pp.store.FailPost(ctx, post.ID, detail, pp.maxRetries)
	if err != nil {
		return fmt.Errorf("process: record post failure: %w", err)
	}
	pp.log.Warn("post attempt failed", zap.String("post_id", post.ID), zap.String("detail", detail), zap.Bool("will_retry", retried))
	return nil
}

// imetaTags builds one "imeta" tag per successful upload, in MediaItem
// input order, per spec.md §4.8/§6.
func imetaTags(uploads []mediaUpload) [][]string {
	tags := make([][]string, 0, len(uploads))
	for _, u := range uploads {
		fields := []string{
			"imeta",
			"url " + u.result.URL,
			"x " + u.result.Hash,
			"m " + u.result.MimeType,
			"size " + strconv.FormatInt(u.result.Size, 10),
		}
		if u.item.Width > 0 && u.item.Height > 0 {
			fields = append(fields, fmt.Sprintf("dim %dx%d", u.item.Width, u.item.Height))
		}
		tags = append(tags, fields)
	}
	return tags
}

// buildPostContent appends the upload URLs to the caption, one per line
// after a blank line, skipping any URL already present verbatim in the
// caption (spec.md §4.8).
func buildPostContent(caption string, urls []string) string {
	var toAppend []string
	for _, u := range urls {
		if !strings.Contains(caption, u) {
			toAppend = append(toAppend, u)
		}
	}
	if len(toAppend) == 0 {
		return caption
	}
	if caption == "" {
		return strings.Join(toAppend, "\n")
	}
	return caption + "\n\n" + strings.Join(toAppend, "\n")
}

// createdAtFromOriginalDate returns t as a Unix timestamp, or now if t is
// the zero value (original_date unknown or unparseable upstream).
func createdAtFromOriginalDate(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().Unix()
	}
	return t.Unix()
}

func countAccepted(accepted map[string]bool) int {
	n := 0
	for _, ok := range accepted {
		if ok {
			n++
		}
	}
	return n
}
