// Package relay implements the Relay Publisher (C3): a WebSocket fan-out
// to N relays that collects per-relay OK acknowledgments.
package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/model"
)

// publishTimeout bounds how long one relay is waited on for an OK frame
// (spec.md §4.3/§5).
const publishTimeout = 10 * time.Second

// Dialer opens a WebSocket connection to a relay URL. It exists so tests
// can substitute an in-process dialer instead of a real gorilla/websocket
// dial.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is the minimal WebSocket surface the Publisher needs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, data []byte, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NewGorillaDialer returns the default Dialer, backed by a real
// gorilla/websocket connection. Shared with internal/cacheimport, which
// speaks the same WebSocket transport to a different endpoint.
func NewGorillaDialer() Dialer { return gorillaDialer{} }

// Publisher fans an event out to a static list of relays in parallel.
type Publisher struct {
	dialer Dialer
	log    logging.Logger
}

// New builds a Publisher using real WebSocket connections.
func New(log logging.Logger) *Publisher {
	return &Publisher{dialer: gorillaDialer{}, log: log}
}

// NewWithDialer builds a Publisher using a custom Dialer, for tests.
func NewWithDialer(d Dialer, log logging.Logger) *Publisher {
	return &Publisher{dialer: d, log: log}
}

// Publish sends ev to every relay in parallel and returns the set of
// relays that replied with an accepted OK frame. Any exception, non-OK
// frame, mismatched id, or timeout resolves that relay as not-accepted;
// there is no cross-relay ordering guarantee and at most one event is
// sent per socket per call.
func (p *Publisher) Publish(ctx context.Context, ev model.Event, relays []string) map[string]bool {
	accepted := make(map[string]bool, len(relays))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, r := range relays {
		relay := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := p.publishOne(ctx, ev, relay)
			mu.Lock()
			accepted[relay] = ok
			mu.Unlock()
		}()
	}
	wg.Wait()
	return accepted
}

// Accepted reports whether at least one relay accepted the event.
func Accepted(results map[string]bool) bool {
	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}

func (p *Publisher) publishOne(ctx context.Context, ev model.Event, relayURL string) (accepted bool) {
	dialCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	conn, err := p.dialer.Dial(dialCtx, relayURL)
	if err != nil {
		p.log.Warn("relay dial failed", zap.String("relay", relayURL), zap.Error(err))
		return false
	}
	defer func() {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_ = conn.Close()
	}()

	payload, err := json.Marshal([]interface{}{"EVENT", rawEvent(ev)})
	if err != nil {
		p.log.Error("relay marshal failed", zap.String("relay", relayURL), zap.Error(err))
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		p.log.Warn("relay write failed", zap.String("relay", relayURL), zap.Error(err))
		return false
	}

	if err := conn.SetReadDeadline(time.Now().Add(publishTimeout)); err != nil {
		return false
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		p.log.Warn("relay read failed or timed out", zap.String("relay", relayURL), zap.Error(err))
		return false
	}

	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 3 {
		p.log.Warn("relay sent malformed frame", zap.String("relay", relayURL))
		return false
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil || label != "OK" {
		return false
	}
	var gotID string
	if err := json.Unmarshal(frame[1], &gotID); err != nil || gotID != ev.ID {
		return false
	}
	var ok bool
	if err := json.Unmarshal(frame[2], &ok); err != nil {
		return false
	}
	return ok
}

func rawEvent(ev model.Event) map[string]interface{} {
	return map[string]interface{}{
		"id":         ev.ID,
		"pubkey":     ev.PubKey,
		"created_at": ev.CreatedAt,
		"kind":       ev.Kind,
		"tags":       ev.Tags,
		"content":    ev.Content,
		"sig":        ev.Sig,
	}
}
