package audit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body.
const SignatureHeader = "X-Signature-256"

// DefaultWebhookTimeout bounds a single delivery attempt.
const DefaultWebhookTimeout = 10 * time.Second

// ErrWebhookStatus is returned when the receiver answers with a
// non-2xx status.
var ErrWebhookStatus = errors.New("audit: webhook delivery rejected")

// WebhookConfig holds settings for a webhook sink.
type WebhookConfig struct {
	// URL is the receiver endpoint. Required.
	URL string

	// Secret signs each payload. When empty the signature header is
	// omitted.
	Secret string

	// Timeout bounds each POST. Zero means DefaultWebhookTimeout.
	Timeout time.Duration

	// Client overrides the HTTP client. Nil builds one from Timeout.
	Client *http.Client
}

// WebhookSink POSTs events as JSON to a remote receiver, signing each
// body with HMAC-SHA256 in the X-Signature-256 header.
type WebhookSink struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("audit: webhook URL is required")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultWebhookTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	s := &WebhookSink{
		url:    cfg.URL,
		client: client,
	}
	if cfg.Secret != "" {
		s.secret = []byte(cfg.Secret)
	}
	return s, nil
}

// Record delivers the event to the receiver. The response body is
// drained and discarded; only the status code matters.
func (s *WebhookSink) Record(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("audit: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(s.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(body, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit: deliver event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrWebhookStatus, resp.StatusCode)
	}
	return nil
}

// Sign computes the signature header value for body: "sha256=" plus
// the hex HMAC-SHA256 digest under secret.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Compile-time interface check.
var _ Sink = (*WebhookSink)(nil)
