package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/frostline/rehydrate/pkg/types"
)

// FileSink appends alerts as JSON lines to a local log. It is the sink of
// choice for development and for tests that need to assert on dispatched
// alerts without a broker.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewFileSink opens path for appending and keeps the handle for the
// lifetime of the sink.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening alert log %s: %w", path, err)
	}
	return &FileSink{f: f, enc: json.NewEncoder(f)}, nil
}

// Name returns the sink identifier.
func (s *FileSink) Name() string { return "file" }

// Send appends one alert as a JSON line.
func (s *FileSink) Send(_ context.Context, alert types.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(alert); err != nil {
		return fmt.Errorf("writing alert log: %w", err)
	}
	return nil
}
