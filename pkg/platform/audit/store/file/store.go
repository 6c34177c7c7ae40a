// Package file writes audit records as JSON lines to a rotating file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/natefinch/lumberjack"

	audit "audittrail/pkg/platform/audit"
)

// Rotation mirrors the lumberjack knobs exposed through configuration.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Store appends one JSON envelope per line.
type Store struct {
	mu sync.Mutex
	w  io.Writer
}

// New writes to w. Callers own w's lifecycle.
func New(w io.Writer) *Store {
	return &Store{w: w}
}

// OpenFile writes to a lumberjack-rotated file at path.
func OpenFile(path string, rotation Rotation) *Store {
	return New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
	})
}

func (s *Store) Append(ctx context.Context, record audit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Close closes the underlying writer when it is closable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
