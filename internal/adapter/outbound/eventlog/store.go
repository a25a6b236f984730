// Package eventlog persists telemetry events as JSON Lines to stdout or
// an append-only file.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aisafe-dev/aisafegate/internal/domain/event"
)

// Store implements event.Store over an io.Writer.
type Store struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer // nil for stdout
}

// NewStore creates a store for the given output target.
// Valid targets: "stdout" or "file://<absolute-path>".
func NewStore(output string) (*Store, error) {
	if output == "" || output == "stdout" {
		return &Store{w: os.Stdout}, nil
	}

	path, ok := strings.CutPrefix(output, "file://")
	if !ok {
		return nil, fmt.Errorf("unsupported event output: %q", output)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return &Store{w: f, closer: f}, nil
}

// NewWriterStore creates a store over an arbitrary writer. For tests.
func NewWriterStore(w io.Writer) *Store {
	return &Store{w: w}
}

// Append writes events as JSON Lines.
func (s *Store) Append(_ context.Context, events ...event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	return nil
}

// Close closes the underlying file, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

var _ event.Store = (*Store)(nil)
