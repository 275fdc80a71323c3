package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parleyhq/parley/pkg/chat"
)

func newMessagesGateway(respond func(*chat.Request) *chat.Response) *Gateway {
	g := &Gateway{
		engine:   &fakeEngine{respond: respond},
		counters: &Counters{},
		logger:   testLogger(),
	}
	g.config.defaults()
	return g
}

func postMessage(t *testing.T, g *Gateway, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader([]byte(body)))
	g.handleMessage()(rr, req)
	return rr
}

func TestHandleMessage_OK(t *testing.T) {
	t.Parallel()

	var got *chat.Request
	g := newMessagesGateway(func(req *chat.Request) *chat.Response {
		got = req
		return &chat.Response{ID: req.ID, Success: true, Status: chat.StatusOK, Text: "hi there"}
	})

	rr := postMessage(t, g, `{"user_id":"u1","channel_id":"c1","text":"hello"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got == nil {
		t.Fatal("engine was not called")
	}
	if got.ID == "" {
		t.Error("request ID should be assigned when absent")
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be assigned when absent")
	}

	var resp chat.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("text = %q", resp.Text)
	}

	if snap := g.counters.Snapshot(); snap.Messages != 1 || snap.Completions != 1 {
		t.Errorf("counters = %+v", snap)
	}
}

func TestHandleMessage_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status chat.Status
		code   int
	}{
		{chat.StatusOK, http.StatusOK},
		{chat.StatusInvalid, http.StatusBadRequest},
		{chat.StatusNeedsVerification, http.StatusForbidden},
		{chat.StatusInsufficientCredit, http.StatusPaymentRequired},
		{chat.StatusRateLimited, http.StatusTooManyRequests},
		{chat.StatusUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			g := newMessagesGateway(func(req *chat.Request) *chat.Response {
				return &chat.Response{ID: req.ID, Success: tt.status == chat.StatusOK, Status: tt.status}
			})
			rr := postMessage(t, g, `{"user_id":"u1","channel_id":"c1","text":"x"}`)
			if rr.Code != tt.code {
				t.Errorf("status %q -> %d, want %d", tt.status, rr.Code, tt.code)
			}
		})
	}
}

func TestHandleMessage_InvalidJSON(t *testing.T) {
	t.Parallel()

	g := newMessagesGateway(nil)
	rr := postMessage(t, g, `{"user_id": `)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHandleMessage_BodyTooLarge(t *testing.T) {
	t.Parallel()

	g := newMessagesGateway(nil)
	g.config.MaxBodyBytes = 64

	body := `{"user_id":"u1","channel_id":"c1","text":"` + strings.Repeat("a", 200) + `"}`
	rr := postMessage(t, g, body)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHandleMessage_DeepJSONRejected(t *testing.T) {
	t.Parallel()

	g := newMessagesGateway(nil)
	body := strings.Repeat("[", 40) + strings.Repeat("]", 40)
	rr := postMessage(t, g, body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
