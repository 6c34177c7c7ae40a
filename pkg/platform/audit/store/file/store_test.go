package file

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/scope"
)

func newRecord(t *testing.T, name string) audit.Record {
	t.Helper()
	root := scope.New(name)
	root.LogEvent("start")
	record, err := audit.NewRecord(context.Background(), root)
	require.NoError(t, err)
	return record
}

func readLines(t *testing.T, data []byte) []audit.Record {
	t.Helper()
	var records []audit.Record
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		record, err := audit.ParseRecord(sc.Bytes())
		require.NoError(t, err)
		records = append(records, record)
	}
	require.NoError(t, sc.Err())
	return records
}

func TestStore_WritesOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	store := New(&buf)

	require.NoError(t, store.Append(context.Background(), newRecord(t, "a")))
	require.NoError(t, store.Append(context.Background(), newRecord(t, "b")))

	records := readLines(t, buf.Bytes())
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Name)
	assert.Equal(t, "b", records[1].Name)
	assert.NoError(t, records[1].Verify())
}

func TestStore_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	store := New(&buf)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Append(context.Background(), newRecord(t, "op")))
		}()
	}
	wg.Wait()

	assert.Len(t, readLines(t, buf.Bytes()), 20)
}

func TestStore_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(&buf).Append(ctx, newRecord(t, "op"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestStore_OpenFileRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	store := OpenFile(path, Rotation{MaxSizeMB: 1, MaxBackups: 1})

	require.NoError(t, store.Append(context.Background(), newRecord(t, "persisted")))
	require.NoError(t, store.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records := readLines(t, data)
	require.Len(t, records, 1)
	assert.Equal(t, "persisted", records[0].Name)
}
