package process

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nostrmigrate/corepipe/internal/blobclient"
	"github.com/nostrmigrate/corepipe/internal/cacheimport"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/nostrsign"
	"github.com/nostrmigrate/corepipe/internal/relay"
	"github.com/nostrmigrate/corepipe/internal/store/memstore"
)

func TestProfileProcessorHappyPath(t *testing.T) {
	secret, pub := testKeypair(t)
	mig := model.Migration{ID: "mig1", PublicKey: pub, SecretKey: secret, KeySource: model.StoredKey, Status: model.MigrationProcessing}

	srv, blobs := newBlobServer(t)
	defer srv.Close()

	st := memstore.New()
	resolver := NewKeySourceResolver(nostrsign.NewSigner())
	imp := cacheimport.New("", testLogger(t))
	pfp := NewProfileProcessor(st, blobs, resolver, acceptAllRelay(t), imp, []string{"wss://relay.example"}, testLogger(t))

	ctx := context.Background()
	_ = st.CreateMigration(ctx, mig)

	prof := model.Profile{ID: "prof1", MigrationID: mig.ID, Name: "Alice", Bio: "hello", PictureSourceURL: srv.URL + "/avatar.jpg"}
	if err := st.CreateProfile(ctx, prof); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	claimed, ok, err := st.ClaimPendingProfile(ctx)
	if err != nil || !ok {
		t.Fatalf("ClaimPendingProfile: ok=%v err=%v", ok, err)
	}

	if err := pfp.Process(ctx, claimed, mig); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if claimed.PictureBlobURL != "" {
		t.Fatalf("sanity: claimed copy should not itself be mutated")
	}
}

func TestProfileProcessorProceedsWithoutPictureOnUploadFailure(t *testing.T) {
	secret, pub := testKeypair(t)
	mig := model.Migration{ID: "mig1", PublicKey: pub, SecretKey: secret, KeySource: model.StoredKey, Status: model.MigrationProcessing}

	failingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failingSrv.Close()
	blobs := blobclient.New(failingSrv.URL, nostrsign.NewSigner())

	st := memstore.New()
	resolver := NewKeySourceResolver(nostrsign.NewSigner())
	imp := cacheimport.New("", testLogger(t))
	pfp := NewProfileProcessor(st, blobs, resolver, acceptAllRelay(t), imp, []string{"wss://relay.example"}, testLogger(t))

	ctx := context.Background()
	_ = st.CreateMigration(ctx, mig)

	prof := model.Profile{ID: "prof1", MigrationID: mig.ID, Name: "Bob", PictureSourceURL: failingSrv.URL + "/avatar.jpg"}
	_ = st.CreateProfile(ctx, prof)
	claimed, _, err := st.ClaimPendingProfile(ctx)
	if err != nil {
		t.Fatalf("ClaimPendingProfile: %v", err)
	}

	if err := pfp.Process(ctx, claimed, mig); err != nil {
		t.Fatalf("Process should not fail when the avatar upload fails: %v", err)
	}
}

func TestProfileContentMarshalsExpectedFields(t *testing.T) {
	raw, err := json.Marshal(profileContent{Name: "Alice", About: "hi", Picture: "https://blossom.example/x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["name"] != "Alice" || got["about"] != "hi" || got["picture"] != "https://blossom.example/x" {
		t.Errorf("got %v", got)
	}
}

func TestProfileContentOmitsEmptyOptionalFields(t *testing.T) {
	raw, _ := json.Marshal(profileContent{Name: "Alice"})
	var got map[string]json.RawMessage
	_ = json.Unmarshal(raw, &got)
	if _, ok := got["about"]; ok {
		t.Error("expected about to be omitted when empty")
	}
	if _, ok := got["picture"]; ok {
		t.Error("expected picture to be omitted when empty")
	}
}
