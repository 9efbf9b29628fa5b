package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testNotification() Notification {
	return Notification{
		OccurredAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Username:   "alice#1",
		Error:      "horde api error (401): Invalid API Key",
		LastKudos:  decimal.NewNullDecimal(decimal.NewFromInt(1234)),
		Interval:   time.Minute,
		Channels:   []string{"telegram"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	var received sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if received.ChatID != "chat" || !received.DisableWebPagePreview {
		t.Fatalf("unexpected request: %#v", received)
	}
	for _, want := range []string{"monitoring halted", "alice#1", "1234", "Invalid API Key", "2025-01-01T12:00:00Z"} {
		if !strings.Contains(received.Text, want) {
			t.Fatalf("message missing %q:\n%s", want, received.Text)
		}
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("ok=false should fail")
	}
}

func TestTelegramNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), testNotification())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestTelegramNotifierDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"})
	}))
	defer srv.Close()

	err := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger()).Notify(context.Background(), testNotification())
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected description in error, got %v", err)
	}
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, Notification) error {
	c.calls++
	return c.err
}

func TestFanoutJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &countingNotifier{err: boom}, &countingNotifier{}
	err := Fanout{a, b}.Notify(context.Background(), testNotification())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("every notifier should be called: %d %d", a.calls, b.calls)
	}
}

func TestTextOmitsUnknownFields(t *testing.T) {
	note := testNotification()
	note.LastKudos = decimal.NullDecimal{}
	note.Username = ""
	msg := note.Text()
	if strings.Contains(msg, "Last kudos") || strings.Contains(msg, "Account:") {
		t.Fatalf("absent fields should be omitted:\n%s", msg)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
