package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/nostrmigrate/corepipe/internal/blobclient"
	"github.com/nostrmigrate/corepipe/internal/cacheimport"
	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/nostrsign"
	"github.com/nostrmigrate/corepipe/internal/process"
	"github.com/nostrmigrate/corepipe/internal/relay"
	"github.com/nostrmigrate/corepipe/internal/store/memstore"
)

func testKeypair(t *testing.T) (secretHex, pubHex string) {
	t.Helper()
	seed := sha256.Sum256([]byte("scheduler-test-seed"))
	priv, pub := btcec.PrivKeyFromBytes(seed[:])
	return hex.EncodeToString(priv.Serialize()), hex.EncodeToString(schnorr.SerializePubKey(pub))
}

func testLogger(t *testing.T) logging.Logger {
	t.Helper()
	log, err := logging.NewDefault()
	if err != nil {
		t.Fatalf("logging.NewDefault: %v", err)
	}
	return log
}

type acceptingDialer struct{}

func (acceptingDialer) Dial(ctx context.Context, url string) (relay.Conn, error) {
	return &acceptingConn{}, nil
}

type acceptingConn struct{ written []byte }

func (c *acceptingConn) WriteMessage(messageType int, data []byte) error {
	c.written = data
	return nil
}

func (c *acceptingConn) ReadMessage() (int, []byte, error) {
	var frame []interface{}
	_ = json.Unmarshal(c.written, &frame)
	ev, _ := frame[1].(map[string]interface{})
	id, _ := ev["id"].(string)
	data, _ := json.Marshal([]interface{}{"OK", id, true, ""})
	return 1, data, nil
}

func (c *acceptingConn) SetReadDeadline(t time.Time) error { return nil }
func (c *acceptingConn) Close() error                      { return nil }

func newTestScheduler(t *testing.T) (*Scheduler, *memstore.Store, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://blossom.example/" + r.Header.Get("X-SHA-256")})
	}))
	blobs := blobclient.New(srv.URL, nostrsign.NewSigner())
	st := memstore.New()
	resolver := process.NewKeySourceResolver(nostrsign.NewSigner())
	pub := relay.NewWithDialer(acceptingDialer{}, testLogger(t))
	imp := cacheimport.New("", testLogger(t))
	log := testLogger(t)

	postProc := process.NewPostProcessor(st, blobs, resolver, pub, imp, []string{"wss://relay.example"}, 3, log)
	artProc := process.NewArticleProcessor(st, blobs, resolver, pub, imp, []string{"wss://relay.example"}, 5, log)
	profProc := process.NewProfileProcessor(st, blobs, resolver, pub, imp, []string{"wss://relay.example"}, log)

	cfg := Config{Concurrency: 3, PollInterval: 5 * time.Second, CleanupInterval: time.Hour, RetentionWindow: 7 * 24 * time.Hour}
	s := New(st, postProc, artProc, profProc, cfg, log)
	return s, st, srv
}

func TestTickDispatchesClaimedPost(t *testing.T) {
	s, st, srv := newTestScheduler(t)
	defer srv.Close()
	ctx := context.Background()

	secret, pub := testKeypair(t)
	mig := model.Migration{ID: "mig1", PublicKey: pub, SecretKey: secret, KeySource: model.StoredKey, Status: model.MigrationProcessing}
	_ = st.CreateMigration(ctx, mig)

	post := model.Post{
		ID:          "post1",
		MigrationID: mig.ID,
		PostType:    model.PostImage,
		MediaItems:  []model.MediaItem{{SourceURL: srv.URL + "/media/a.jpg", MediaType: model.MediaImage}},
		Status:      model.PostPending,
	}
	_ = st.CreatePost(ctx, post)

	dispatched, err := s.tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !dispatched {
		t.Fatal("expected tick to report dispatched work")
	}

	got, err := st.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Status != model.PostComplete {
		t.Errorf("status = %v, want complete", got.Status)
	}
}

func TestTickNoWorkReportsNotDispatched(t *testing.T) {
	s, _, srv := newTestScheduler(t)
	defer srv.Close()
	dispatched, err := s.tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if dispatched {
		t.Fatal("expected no work to be dispatched on an empty store")
	}
}

func TestMigrationCoordinatorCompletesWhenChildrenTerminal(t *testing.T) {
	s, st, srv := newTestScheduler(t)
	defer srv.Close()
	ctx := context.Background()

	secret, pub := testKeypair(t)
	mig := model.Migration{ID: "mig1", PublicKey: pub, SecretKey: secret, KeySource: model.StoredKey, Status: model.MigrationPending}
	_ = st.CreateMigration(ctx, mig)

	if dispatched := s.dispatchMigrationCoordinator(ctx); !dispatched {
		t.Fatal("expected migration coordinator to dispatch")
	}

	got, err := st.GetMigration(ctx, mig.ID)
	if err != nil {
		t.Fatalf("GetMigration: %v", err)
	}
	if got.Status != model.MigrationComplete {
		t.Errorf("status = %v, want complete (no children means vacuously terminal)", got.Status)
	}
	if got.SecretKey != model.ScrubbedSecretKey {
		t.Errorf("SecretKey = %q, want scrubbed", got.SecretKey)
	}
}

func TestRunCleanupDeletesTerminalMigrationsPastRetention(t *testing.T) {
	s, st, srv := newTestScheduler(t)
	defer srv.Close()
	ctx := context.Background()

	mig := model.Migration{ID: "old-mig", PublicKey: "pub", SecretKey: model.ScrubbedSecretKey, KeySource: model.StoredKey, Status: model.MigrationComplete}
	_ = st.CreateMigration(ctx, mig)

	s.cfg.RetentionWindow = -time.Hour // treat everything as past retention
	s.runCleanup(ctx)

	if _, err := st.GetMigration(ctx, mig.ID); err == nil {
		t.Fatal("expected terminal migration past retention to be garbage collected")
	}
}
