// Package cacheimport implements the Cache Importer (C4): a best-effort
// bulk ingest of signed events into a single freshness cache, advisory
// only — failures are logged and never fatal, since the event is already
// durable on at least one relay by the time this runs.
package cacheimport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/relay"
	"github.com/nostrmigrate/corepipe/internal/sieve"
)

// importTimeout bounds the whole import round-trip (spec.md §4.4/§5).
const importTimeout = 15 * time.Second

// seenCacheSize bounds how many already-imported event ids an Importer
// remembers, so a retried Post/Article that already cleared import on a
// prior attempt doesn't re-send it.
const seenCacheSize = 4096

// Importer bulk-imports events into a single cache endpoint.
type Importer struct {
	url    string
	dialer relay.Dialer
	log    logging.Logger
	seen   *sieve.Sieve[string, struct{}]
}

// New builds an Importer targeting url. An empty url disables import;
// callers should check Enabled before calling Import.
func New(url string, log logging.Logger) *Importer {
	return &Importer{url: url, dialer: relay.NewGorillaDialer(), log: log, seen: sieve.New[string, struct{}](seenCacheSize, nil)}
}

// NewWithDialer builds an Importer using a custom Dialer, for tests.
func NewWithDialer(url string, d relay.Dialer, log logging.Logger) *Importer {
	return &Importer{url: url, dialer: d, log: log, seen: sieve.New[string, struct{}](seenCacheSize, nil)}
}

// Enabled reports whether a cache URL was configured.
func (im *Importer) Enabled() bool { return im.url != "" }

// Import sends events to the cache endpoint's import_events command and
// waits for one response. It never returns an error that should affect
// Post/Article/Profile status; the bool result is purely advisory and
// logged at Warn on failure.
func (im *Importer) Import(ctx context.Context, events []model.Event) bool {
	if !im.Enabled() {
		return false
	}

	pending := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if _, ok := im.seen.Get(ev.ID); !ok {
			pending = append(pending, ev)
		}
	}
	if len(pending) == 0 {
		return true
	}
	events = pending

	ctx, cancel := context.WithTimeout(ctx, importTimeout)
	defer cancel()

	conn, err := im.dialer.Dial(ctx, im.url)
	if err != nil {
		im.log.Warn("cache import dial failed", zap.Error(err))
		return false
	}
	defer conn.Close()

	subID := fmt.Sprintf("import-%d", time.Now().UnixNano())
	raw := make([]map[string]interface{}, len(events))
	for i, ev := range events {
		raw[i] = map[string]interface{}{
			"id": ev.ID, "pubkey": ev.PubKey, "created_at": ev.CreatedAt,
			"kind": ev.Kind, "tags": ev.Tags, "content": ev.Content, "sig": ev.Sig,
		}
	}

	req := []interface{}{"REQ", subID, map[string]interface{}{
		"cache": []interface{}{"import_events", map[string]interface{}{"events": raw}},
	}}
	payload, err := json.Marshal(req)
	if err != nil {
		im.log.Warn("cache import marshal failed", zap.Error(err))
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		im.log.Warn("cache import write failed", zap.Error(err))
		return false
	}

	if err := conn.SetReadDeadline(time.Now().Add(importTimeout)); err != nil {
		return false
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		im.log.Warn("cache import read failed or timed out", zap.Error(err))
		return false
	}

	closeMsg, _ := json.Marshal([]interface{}{"CLOSE", subID})
	_ = conn.WriteMessage(websocket.TextMessage, closeMsg)

	for _, ev := range events {
		im.seen.Add(ev.ID, struct{}{})
	}
	return true
}
