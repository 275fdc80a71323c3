package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrNilWriter is returned when a JSONL sink is built without output.
var ErrNilWriter = errors.New("audit: nil writer")

// JSONLSink appends one JSON object per line to a writer. Lines are
// written under a mutex so concurrent records never interleave.
type JSONLSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewJSONLSink creates a sink writing to w.
func NewJSONLSink(w io.Writer) (*JSONLSink, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	return &JSONLSink{
		enc: json.NewEncoder(w),
		now: time.Now,
	}, nil
}

// Record writes the event as a single JSON line. A zero timestamp is
// filled in at write time.
func (s *JSONLSink) Record(_ context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

// Compile-time interface check.
var _ Sink = (*JSONLSink)(nil)
