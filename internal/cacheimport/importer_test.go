package cacheimport

import (
	"context"
	"testing"
	"time"

	"github.com/nostrmigrate/corepipe/internal/logging"
	"github.com/nostrmigrate/corepipe/internal/model"
	"github.com/nostrmigrate/corepipe/internal/relay"
)

type fakeConn struct{}

func (fakeConn) WriteMessage(messageType int, data []byte) error { return nil }
func (fakeConn) ReadMessage() (int, []byte, error)               { return 1, []byte(`["EOSE","import-1"]`), nil }
func (fakeConn) SetReadDeadline(t time.Time) error               { return nil }
func (fakeConn) Close() error                                    { return nil }

type fakeDialer struct{}

func (fakeDialer) Dial(ctx context.Context, url string) (relay.Conn, error) {
	return fakeConn{}, nil
}

func noopLogger(t *testing.T) logging.Logger {
	t.Helper()
	log, err := logging.NewDefault()
	if err != nil {
		t.Fatalf("logging.NewDefault: %v", err)
	}
	return log
}

func TestDisabledWithEmptyURL(t *testing.T) {
	im := New("", noopLogger(t))
	if im.Enabled() {
		t.Fatal("expected Importer with empty url to be disabled")
	}
	if im.Import(context.Background(), []model.Event{{ID: "a"}}) {
		t.Fatal("expected disabled Importer to return false")
	}
}

func TestImportSuccess(t *testing.T) {
	im := NewWithDialer("wss://cache.example", fakeDialer{}, noopLogger(t))
	if !im.Enabled() {
		t.Fatal("expected Importer with url to be enabled")
	}
	if !im.Import(context.Background(), []model.Event{{ID: "a"}, {ID: "b"}}) {
		t.Fatal("expected Import to succeed against a responsive fake")
	}
}

type errConn struct{ fakeConn }

func (errConn) ReadMessage() (int, []byte, error) { return 0, nil, context.DeadlineExceeded }

type errDialer struct{}

func (errDialer) Dial(ctx context.Context, url string) (relay.Conn, error) {
	return errConn{}, nil
}

func TestImportFailureIsAdvisory(t *testing.T) {
	im := NewWithDialer("wss://cache.example", errDialer{}, noopLogger(t))
	if im.Import(context.Background(), []model.Event{{ID: "a"}}) {
		t.Fatal("expected Import to report failure when read times out")
	}
}

type countingDialer struct{ dials int }

func (d *countingDialer) Dial(ctx context.Context, url string) (relay.Conn, error) {
	d.dials++
	return fakeConn{}, nil
}

func TestImportSkipsAlreadySeenEvents(t *testing.T) {
	dialer := &countingDialer{}
	im := NewWithDialer("wss://cache.example", dialer, noopLogger(t))

	if !im.Import(context.Background(), []model.Event{{ID: "a"}}) {
		t.Fatal("expected first Import to succeed")
	}
	if dialer.dials != 1 {
		t.Fatalf("dials = %d, want 1 after first Import", dialer.dials)
	}

	if !im.Import(context.Background(), []model.Event{{ID: "a"}}) {
		t.Fatal("expected re-import of an already-seen event to report success without dialing")
	}
	if dialer.dials != 1 {
		t.Fatalf("dials = %d, want still 1 after re-importing a seen event", dialer.dials)
	}
}
