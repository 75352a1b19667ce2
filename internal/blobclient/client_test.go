package blobclient

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/nostrmigrate/corepipe/internal/nostrsign"
)

func testKeypair() (secretHex, pubHex string) {
	seed := sha256.Sum256([]byte("blobclient-test-seed"))
	priv, pub := btcec.PrivKeyFromBytes(seed[:])
	return hex.EncodeToString(priv.Serialize()), hex.EncodeToString(schnorr.SerializePubKey(pub))
}

func TestUploadSendsAuthEnvelopeAndHash(t *testing.T) {
	secretHex, pubHex := testKeypair()
	body := []byte("hello world")
	sum := sha256.Sum256(body)
	wantHash := hex.EncodeToString(sum[:])

	var gotHeader http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"url":"https://blossom.example/%s"}`, wantHash)
	}))
	defer srv.Close()

	c := New(srv.URL, nostrsign.NewSigner())
	res, err := c.Upload(context.Background(), body, "text/plain", pubHex, secretHex)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Hash != wantHash {
		t.Errorf("Hash = %q, want %q", res.Hash, wantHash)
	}
	if res.URL != "https://blossom.example/"+wantHash {
		t.Errorf("URL = %q", res.URL)
	}
	if string(gotBody) != string(body) {
		t.Errorf("server received body %q, want %q", gotBody, body)
	}
	if gotHeader.Get("X-SHA-256") != wantHash {
		t.Errorf("X-SHA-256 header = %q, want %q", gotHeader.Get("X-SHA-256"), wantHash)
	}

	auth := gotHeader.Get("Authorization")
	if !strings.HasPrefix(auth, "Nostr ") {
		t.Fatalf("Authorization header = %q, want Nostr prefix", auth)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Nostr "))
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var envelope struct {
		Kind int        `json:"kind"`
		Tags [][]string `json:"tags"`
		Sig  string     `json:"sig"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Kind != authKind {
		t.Errorf("envelope kind = %d, want %d", envelope.Kind, authKind)
	}
	foundHashTag := false
	for _, tag := range envelope.Tags {
		if len(tag) == 2 && tag[0] == "x" && tag[1] == wantHash {
			foundHashTag = true
		}
	}
	if !foundHashTag {
		t.Errorf("envelope tags %v missing x=%s", envelope.Tags, wantHash)
	}
}

func TestUploadFallsBackToServerSlashHash(t *testing.T) {
	secretHex, pubHex := testKeypair()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	c := New(srv.URL, nostrsign.NewSigner())
	res, err := c.Upload(context.Background(), []byte("data"), "application/octet-stream", pubHex, secretHex)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.URL != srv.URL+"/"+res.Hash {
		t.Errorf("URL = %q, want %s/%s", res.URL, srv.URL, res.Hash)
	}
}

func TestUploadNon2xxIsFailure(t *testing.T) {
	secretHex, pubHex := testKeypair()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "nope")
	}))
	defer srv.Close()

	c := New(srv.URL, nostrsign.NewSigner())
	if _, err := c.Upload(context.Background(), []byte("data"), "application/octet-stream", pubHex, secretHex); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

type fakeResolver struct{ direct string }

func (f fakeResolver) Resolve(ctx context.Context, ytdlURL string) (string, error) {
	return f.direct, nil
}

func TestUploadFromSourceResolvesYTDL(t *testing.T) {
	secretHex, pubHex := testKeypair()
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "video-bytes")
	}))
	defer cdn.Close()

	var uploaded bool
	blob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploaded = true
		w.WriteHeader(http.StatusOK)
	}))
	defer blob.Close()

	c := New(blob.URL, nostrsign.NewSigner(), WithResolver(fakeResolver{direct: cdn.URL}))
	_, err := c.UploadFromSource(context.Background(), "ytdl:https://tiktok.example/v/1", "video/mp4", pubHex, secretHex)
	if err != nil {
		t.Fatalf("UploadFromSource: %v", err)
	}
	if !uploaded {
		t.Fatal("expected blob server to receive an upload")
	}
}
