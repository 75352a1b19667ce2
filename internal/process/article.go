package process

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nostrmigrate/corepipe/internal/blobclient"
	"github.com/nostrmigrate/corepipe/internal/cacheimport"
	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/mdimage"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/relay"
	"github.com/nostrmigrate/corepipe/internal/store"
)

// longFormKind is the Nostr event kind for addressable long-form content.
const longFormKind = 30023

// MaxUploadAttempts is the default cap on Article upload attempts before
// the Article is published with CDN fallback URLs for any image that
// still fails (spec.md §4.9).
const MaxUploadAttempts = 5

// ArticleProcessor implements C9: upload an Article's header and inline
// images, rewrite its Markdown, build and sign its long-form event, and
// publish it.
type ArticleProcessor struct {
	store       store.Queries
	blobs       *blobclient.Client
	keys        *KeySourceResolver
	publisher   *relay.Publisher
	importer    *cacheimport.Importer
	relays      []string
	maxAttempts int
	log         logging.Logger
}

// NewArticleProcessor builds an ArticleProcessor.
func NewArticleProcessor(st store.Queries, blobs *blobclient.Client, keys *KeySourceResolver, pub *relay.Publisher, imp *cacheimport.Importer, relays []string, maxAttempts int, log logging.Logger) *ArticleProcessor {
	if maxAttempts <= 0 {
		maxAttempts = MaxUploadAttempts
	}
	return &ArticleProcessor{store: st, blobs: blobs, keys: keys, publisher: pub, importer: imp, relays: relays, maxAttempts: maxAttempts, log: log}
}

// Process runs the full C9 pipeline for one claimed Article against its
// owning Migration.
func (ap *ArticleProcessor) Process(ctx context.Context, art model.Article, mig model.Migration) error {
	log := ap.log.With(zap.String("article_id", art.ID), zap.String("migration_id", mig.ID))

	ks, err := ap.keys.Resolve(mig)
	if err != nil {
		return ap.failFatal(ctx, art, fmt.Sprintf("resolve key source: %v", err))
	}

	art.UploadAttempts++

	imageFailed := false

	if art.ImageURL != "" && art.BlossomImageURL == "" {
		res, err := ap.blobs.UploadFromSourceWithSigner(ctx, art.ImageURL, "image/jpeg", ks)
		if err != nil {
			log.Warn("header image upload failed", zap.Error(err))
			imageFailed = true
		} else {
			art.BlossomImageURL = res.URL
		}
	}

	inlineURLs := mdimage.Extract(art.ContentMarkdown)
	urlMap := make(map[string]string, len(art.InlineImageURLs))
	for k, v := range art.InlineImageURLs {
		urlMap[k] = v
	}

	var toUpload []string
	for _, u := range inlineURLs {
		if _, already := urlMap[u]; already {
			continue
		}
		if isDataURI(u) || ap.isBlobOrigin(u) {
			continue
		}
		toUpload = append(toUpload, u)
	}

	results := ap.uploadInline(ctx, toUpload, ks)
	for i, u := range toUpload {
		if results[i].err != nil {
			log.Warn("inline image upload failed", zap.String("url", u), zap.Error(results[i].err))
			imageFailed = true
			continue
		}
		urlMap[u] = results[i].result.URL
	}
	art.InlineImageURLs = urlMap
	art.ContentMarkdown = mdimage.Rewrite(art.ContentMarkdown, urlMap)

	if imageFailed && art.UploadAttempts < ap.maxAttempts {
		art.Status = model.ArticlePending
		if err := ap.store.UpdateArticleProgress(ctx, art); err != nil {
			return fmt.Errorf("process: persist article retry: %w", err)
		}
		log.Warn("article returned to pending after image failure", zap.Int("attempt", art.UploadAttempts))
		return nil
	}

	art.Status = model.ArticleReady
	if err := ap.store.UpdateArticleProgress(ctx, art); err != nil {
		return fmt.Errorf("process: persist article progress: %w", err)
	}
	if imageFailed {
		log.Warn("article publishing with CDN fallbacks after exhausting retries", zap.Int("attempt", art.UploadAttempts))
	}

	tags := articleTags(art)
	ev, err := ks.Sign(ctx, longFormKind, createdAtFromOriginalDate(art.PublishedAt), tags, art.ContentMarkdown)
	if err != nil {
		return ap.failFatal(ctx, art, fmt.Sprintf("sign long-form event: %v", err))
	}

	accepted := ap.publisher.Publish(ctx, ev, ap.relays)
	if !relay.Accepted(accepted) {
		if art.UploadAttempts < ap.maxAttempts {
			art.Status = model.ArticlePending
			if err := ap.store.UpdateArticleProgress(ctx, art); err != nil {
				return fmt.Errorf("process: persist article retry: %w", err)
			}
			log.Warn("no relay accepted the long-form event, will retry")
			return nil
		}
		return ap.failFatal(ctx, art, "no relay accepted the long-form event after exhausting retries")
	}
	if ap.importer.Enabled() {
		ap.importer.Import(ctx, []model.Event{ev})
	}

	log.Info("article published", zap.String("event_id", ev.ID), zap.Int("accepted_relays", countAccepted(accepted)))
	return ap.store.CompleteArticle(ctx, art.ID, ev.ID)
}

type inlineUpload struct {
	result blobclient.Result
	err    error
}

func (ap *ArticleProcessor) uploadInline(ctx context.Context, urls []string, ks KeySource) []inlineUpload {
	results := make([]inlineUpload, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		i, u := i, u
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ap.blobs.UploadFromSourceWithSigner(ctx, u, "image/jpeg", ks)
			results[i] = inlineUpload{result: res, err: err}
		}()
	}
	wg.Wait()
	return results
}

func (ap *ArticleProcessor) failFatal(ctx context.Context, art model.Article, detail string) error {
	art.Status = model.ArticleError
	art.LastError = detail
	if err := ap.store.UpdateArticleProgress(ctx, art); err != nil {
		return fmt.Errorf("process: record article failure: %w", err)
	}
	ap.log.Warn("article failed fatally", zap.String("article_id", art.ID), zap.String("detail", detail))
	return nil
}

// isDataURI reports whether u is an inline data: URI, which never needs
// uploading (spec.md §4.9 step 3).
func isDataURI(u string) bool {
	return strings.HasPrefix(u, "data:")
}

// isBlobOrigin reports whether u already points at the configured blob
// server, meaning it was already migrated on a prior attempt.
func (ap *ArticleProcessor) isBlobOrigin(u string) bool {
	return ap.blobs != nil && strings.HasPrefix(u, ap.blobs.ServerURL())
}

// articleTags builds the long-form event's tag list per spec.md §4.9 step 6.
func articleTags(art model.Article) [][]string {
	tags := [][]string{
		{"d", Slug(art.Link)},
		{"title", art.Title},
		{"summary", art.Summary},
	}
	if art.BlossomImageURL != "" {
		tags = append(tags, []string{"image", art.BlossomImageURL})
	}
	if !art.PublishedAt.IsZero() {
		tags = append(tags, []string{"published_at", strconv.FormatInt(art.PublishedAt.Unix(), 10)})
	}
	for _, tag := range art.Hashtags {
		tags = append(tags, []string{"t", tag})
	}
	return tags
}
