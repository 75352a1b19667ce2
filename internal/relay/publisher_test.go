package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/model"
)

type fakeConn struct {
	readFrame []interface{}
	readErr   error
	writeErr  error
	written   []byte
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.written = data
	return c.writeErr
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	if c.readErr != nil {
		return 0, nil, c.readErr
	}
	data, _ := json.Marshal(c.readFrame)
	return 1, data, nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error { return nil }
func (c *fakeConn) Close() error                      { return nil }

type fakeDialer struct {
	conns   map[string]*fakeConn
	dialErr map[string]error
}

func (d fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	if err, ok := d.dialErr[url]; ok {
		return nil, err
	}
	return d.conns[url], nil
}

func noopLogger(t *testing.T) logging.Logger {
	t.Helper()
	log, err := logging.NewDefault()
	if err != nil {
		t.Fatalf("logging.NewDefault: %v", err)
	}
	return log
}

func TestPublishAllAccept(t *testing.T) {
	ev := model.Event{ID: "abc123"}
	d := fakeDialer{conns: map[string]*fakeConn{
		"wss://a": {readFrame: []interface{}{"OK", "abc123", true, ""}},
		"wss://b": {readFrame: []interface{}{"OK", "abc123", true, ""}},
	}}
	p := NewWithDialer(d, noopLogger(t))
	results := p.Publish(context.Background(), ev, []string{"wss://a", "wss://b"})
	if !Accepted(results) {
		t.Fatal("expected at least one relay to accept")
	}
	for relay, ok := range results {
		if !ok {
			t.Errorf("relay %s = false, want true", relay)
		}
	}
}

func TestPublishRejectedFrame(t *testing.T) {
	ev := model.Event{ID: "abc123"}
	d := fakeDialer{conns: map[string]*fakeConn{
		"wss://a": {readFrame: []interface{}{"OK", "abc123", false, "blocked"}},
	}}
	p := NewWithDialer(d, noopLogger(t))
	results := p.Publish(context.Background(), ev, []string{"wss://a"})
	if Accepted(results) {
		t.Fatal("expected relay rejection to not count as accepted")
	}
}

func TestPublishMismatchedIDNotAccepted(t *testing.T) {
	ev := model.Event{ID: "abc123"}
	d := fakeDialer{conns: map[string]*fakeConn{
		"wss://a": {readFrame: []interface{}{"OK", "different-id", true, ""}},
	}}
	p := NewWithDialer(d, noopLogger(t))
	results := p.Publish(context.Background(), ev, []string{"wss://a"})
	if results["wss://a"] {
		t.Fatal("expected mismatched event id to resolve as not accepted")
	}
}

func TestPublishDialFailureNotAccepted(t *testing.T) {
	ev := model.Event{ID: "abc123"}
	d := fakeDialer{dialErr: map[string]error{"wss://a": errors.New("refused")}}
	p := NewWithDialer(d, noopLogger(t))
	results := p.Publish(context.Background(), ev, []string{"wss://a"})
	if results["wss://a"] {
		t.Fatal("expected dial failure to resolve as not accepted")
	}
}

func TestPublishZeroRelaysIsNotAccepted(t *testing.T) {
	ev := model.Event{ID: "abc123"}
	p := NewWithDialer(fakeDialer{}, noopLogger(t))
	results := p.Publish(context.Background(), ev, nil)
	if Accepted(results) {
		t.Fatal("expected no relays to mean not accepted")
	}
}
