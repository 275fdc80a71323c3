package audit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHashContent(t *testing.T) {
	t.Parallel()

	if got := HashContent(""); got != "" {
		t.Errorf("HashContent(\"\") = %q, want empty", got)
	}

	// Fixed digest so audit lines stay comparable across versions.
	got := HashContent("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Errorf("HashContent(hello) = %q, want %q", got, want)
	}

	if HashContent("hello") != HashContent("hello") {
		t.Error("HashContent is not deterministic")
	}
	if HashContent("hello") == HashContent("hello!") {
		t.Error("distinct inputs produced the same hash")
	}
}

func TestSign(t *testing.T) {
	t.Parallel()

	// RFC-style reference vector for HMAC-SHA256.
	got := Sign([]byte("The quick brown fox jumps over the lazy dog"), []byte("key"))
	want := "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Errorf("Sign() = %q, want %q", got, want)
	}
}

func TestJSONLSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink, err := NewJSONLSink(&buf)
	if err != nil {
		t.Fatalf("NewJSONLSink() error = %v", err)
	}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	events := []Event{
		{Type: EventMessageHandled, UserID: "u1", Status: "ok", Cost: 7},
		{Type: EventBillingDenied, UserID: "u2", Detail: "balance below minimum"},
	}
	for _, ev := range events {
		if err := sink.Record(context.Background(), ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 is not valid JSON: %v", err)
	}
	if first.Type != EventMessageHandled || first.UserID != "u1" || first.Cost != 7 {
		t.Errorf("decoded event = %+v, want type %q user u1 cost 7", first, EventMessageHandled)
	}
	if !first.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want backfilled %v", first.Timestamp, fixed)
	}

	// Empty optional fields must not appear on the wire.
	if strings.Contains(lines[0], "conversation_id") {
		t.Errorf("line contains empty optional field: %s", lines[0])
	}
}

func TestJSONLSink_KeepsExplicitTimestamp(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink, err := NewJSONLSink(&buf)
	if err != nil {
		t.Fatalf("NewJSONLSink() error = %v", err)
	}

	stamp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := sink.Record(context.Background(), Event{Type: EventSessionEvicted, Timestamp: stamp}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	var got Event
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Timestamp.Equal(stamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, stamp)
	}
}

func TestNewJSONLSink_NilWriter(t *testing.T) {
	t.Parallel()

	if _, err := NewJSONLSink(nil); err == nil {
		t.Fatal("NewJSONLSink(nil) did not return an error")
	}
}

func TestJSONLSink_ConcurrentRecords(t *testing.T) {
	t.Parallel()

	var buf lockedBuffer
	sink, err := NewJSONLSink(&buf)
	if err != nil {
		t.Fatalf("NewJSONLSink() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Record(context.Background(), Event{Type: EventMessageHandled, UserID: "u"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}
	for i, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Fatalf("line %d is not valid JSON: %s", i, line)
		}
	}
}

// lockedBuffer guards a bytes.Buffer for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWebhookSink(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"

	var (
		mu       sync.Mutex
		gotBody  []byte
		gotSig   string
		gotCType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = body
		gotSig = r.Header.Get(SignatureHeader)
		gotCType = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Secret: secret})
	if err != nil {
		t.Fatalf("NewWebhookSink() error = %v", err)
	}

	ev := Event{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Type:      EventBackendFallback,
		UserID:    "u1",
		Detail:    "thread run failed",
	}
	if err := sink.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if gotCType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotCType)
	}

	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded.Type != EventBackendFallback || decoded.UserID != "u1" {
		t.Errorf("decoded event = %+v", decoded)
	}

	// Receiver-side check: recompute the signature over the raw body.
	want := Sign(gotBody, []byte(secret))
	if !hmac.Equal([]byte(gotSig), []byte(want)) {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}
}

func TestWebhookSink_NoSecret(t *testing.T) {
	t.Parallel()

	var gotSig string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotSig = r.Header.Get(SignatureHeader)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookSink() error = %v", err)
	}
	if err := sink.Record(context.Background(), Event{Type: EventMessageHandled}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotSig != "" {
		t.Errorf("signature header = %q, want empty without a secret", gotSig)
	}
}

func TestWebhookSink_RejectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Secret: "s"})
	if err != nil {
		t.Fatalf("NewWebhookSink() error = %v", err)
	}

	err = sink.Record(context.Background(), Event{Type: EventMessageHandled})
	if !errors.Is(err, ErrWebhookStatus) {
		t.Fatalf("Record() error = %v, want ErrWebhookStatus", err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v, want the status code in the message", err)
	}
}

func TestNewWebhookSink_RequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhookSink(WebhookConfig{}); err == nil {
		t.Fatal("NewWebhookSink() without URL did not return an error")
	}
}
