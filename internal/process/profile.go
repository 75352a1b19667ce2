package process

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nostrmigrate/corepipe/internal/blobclient"
	"github.com/nostrmigrate/corepipe/internal/cacheimport"
	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/relay"
	"github.com/nostrmigrate/corepipe/internal/store"
)

// profileMetadataKind is the Nostr event kind for profile metadata.
const profileMetadataKind = 0

// ProfileProcessor implements C10: upload a Migration's avatar, build and
// sign its profile-metadata event, and publish it.
type ProfileProcessor struct {
	store     store.Queries
	blobs     *blobclient.Client
	keys      *KeySourceResolver
	publisher *relay.Publisher
	importer  *cacheimport.Importer
	relays    []string
	log       logging.Logger
}

// NewProfileProcessor builds a ProfileProcessor.
func NewProfileProcessor(st store.Queries, blobs *blobclient.Client, keys *KeySourceResolver, pub *relay.Publisher, imp *cacheimport.Importer, relays []string, log logging.Logger) *ProfileProcessor {
	return &ProfileProcessor{store: st, blobs: blobs, keys: keys, publisher: pub, importer: imp, relays: relays, log: log}
}

type profileContent struct {
	Name    string `json:"name"`
	About   string `json:"about,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Process runs the full C10 pipeline for one claimed Profile against its
// owning Migration.
func (pfp *ProfileProcessor) Process(ctx context.Context, prof model.Profile, mig model.Migration) error {
	log := pfp.log.With(zap.String("profile_id", prof.ID), zap.String("migration_id", mig.ID))

	ks, err := pfp.keys.Resolve(mig)
	if err != nil {
		return fmt.Errorf("process: resolve key source for profile %s: %w", prof.ID, err)
	}

	blobURL := prof.PictureBlobURL
	if prof.PictureSourceURL != "" && blobURL == "" {
		res, err := pfp.blobs.UploadFromSourceWithSigner(ctx, prof.PictureSourceURL, "image/jpeg", ks)
		if err != nil {
			log.Warn("avatar upload failed, publishing without a picture", zap.Error(err))
		} else {
			blobURL = res.URL
		}
	}

	content, err := json.Marshal(profileContent{Name: prof.Name, About: prof.Bio, Picture: blobURL})
	if err != nil {
		return fmt.Errorf("process: marshal profile content: %w", err)
	}

	ev, err := ks.Sign(ctx, profileMetadataKind, time.Now().Unix(), nil, string(content))
	if err != nil {
		return fmt.Errorf("process: sign profile-metadata event for %s: %w", prof.ID, err)
	}

	accepted := pfp.publisher.Publish(ctx, ev, pfp.relays)
	if relay.Accepted(accepted) && pfp.importer.Enabled() {
		pfp.importer.Import(ctx, []model.Event{ev})
	}

	log.Info("profile published", zap.String("event_id", ev.ID), zap.Bool("has_picture", blobURL != ""))
	return pfp.store.CompleteProfile(ctx, prof.ID, blobURL)
}
