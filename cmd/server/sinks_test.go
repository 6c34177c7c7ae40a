package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/internal/platform/config"
	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/platform/audit/store/file"
	"audittrail/pkg/platform/audit/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenSinks_FallsBackToMemory(t *testing.T) {
	boot := scope.New("startup")
	s, err := openSinks(context.Background(), config.Default(), quietLogger(), boot)
	require.NoError(t, err)
	defer s.close()

	assert.IsType(t, &memory.InMemoryStore{}, s.store)
	assert.Same(t, s.store, s.reader)
	assert.Nil(t, s.outbox)
	assert.Contains(t, boot.String(), "memory sink")
}

func TestOpenSinks_FileOnly(t *testing.T) {
	cfg := config.Default()
	cfg.File.Path = filepath.Join(t.TempDir(), "trails.jsonl")
	boot := scope.New("startup")

	s, err := openSinks(context.Background(), cfg, quietLogger(), boot)
	require.NoError(t, err)

	assert.IsType(t, &file.Store{}, s.store)
	assert.Nil(t, s.reader, "the file sink cannot serve reads")

	record, err := audit.NewRecord(context.Background(), boot)
	require.NoError(t, err)
	require.NoError(t, s.store.Append(context.Background(), record))
	s.close()

	data, err := os.ReadFile(cfg.File.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), record.ID.String())
}

func TestOpenSinks_PostgresUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Postgres.DSN = "postgres://audittrail@127.0.0.1:1/audittrail?sslmode=disable&connect_timeout=1"
	boot := scope.New("startup")

	_, err := openSinks(context.Background(), cfg, quietLogger(), boot)
	assert.ErrorContains(t, err, "ping postgres")
	assert.Contains(t, boot.String(), `"postgres"`, "the failed connection is still a boot segment")
}
