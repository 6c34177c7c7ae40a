package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httptransport "audittrail/internal/transport/http"
	audit "audittrail/pkg/platform/audit"
	"audittrail/pkg/platform/audit/scope"
	"audittrail/pkg/platform/audit/store/memory"
)

func sampleRecord(t *testing.T, name string) audit.Record {
	t.Helper()
	root := scope.New(name)
	root.LogEvent("start")
	_ = scope.Segment(root, "sub", func(child *scope.Scope) error {
		child.LogEvent("work done")
		return nil
	})
	record, err := audit.NewRecord(context.Background(), root)
	require.NoError(t, err)
	return record
}

func jsonl(t *testing.T, lines ...any) string {
	t.Helper()
	var buf bytes.Buffer
	for _, l := range lines {
		switch v := l.(type) {
		case string:
			buf.WriteString(v)
		default:
			data, err := json.Marshal(v)
			require.NoError(t, err)
			buf.Write(data)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestView(t *testing.T) {
	record := sampleRecord(t, "create_user")
	bare := scope.New("bare")
	bare.LogEvent("only")
	bareDoc, err := bare.Render()
	require.NoError(t, err)

	out, err := runCmd(t, jsonl(t, record, "", string(bareDoc)), "view", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "# "+record.ID.String())
	assert.Contains(t, out, "create_user")
	assert.Contains(t, out, "└── sub")
	assert.Contains(t, out, "bare")

	out, err = runCmd(t, jsonl(t, record), "view", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "create_user"`)

	_, err = runCmd(t, "{not json}\n", "view")
	assert.ErrorContains(t, err, "line 1")
}

func TestValidate(t *testing.T) {
	good := sampleRecord(t, "ok")
	tampered := sampleRecord(t, "tampered")
	tampered.Payload = json.RawMessage(`{"time":"2025-01-01T00:00:00Z","name":"forged","duration":null,"events":[]}`)

	out, err := runCmd(t, jsonl(t, good), "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "1 checked, 0 invalid")

	out, err = runCmd(t, jsonl(t, good, tampered, `{"time":"x","name":"y"}`), "validate")
	assert.Error(t, err)
	assert.Contains(t, out, "line 2: ")
	assert.Contains(t, out, "digest mismatch")
	assert.Contains(t, out, "line 3: ")
	assert.Contains(t, out, "3 checked, 2 invalid")
}

func TestFetch(t *testing.T) {
	store := memory.NewInMemoryStore()
	record := sampleRecord(t, "grant_consent")
	require.NoError(t, store.Append(context.Background(), record))

	srv := httptest.NewServer(httptransport.NewRouter(httptransport.Deps{
		Trails:     store,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		AdminToken: "tok",
	}))
	defer srv.Close()

	opts := fetchOptions{server: srv.URL, token: "tok"}

	t.Run("tree", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, fetch(context.Background(), srv.Client(), opts, record.ID.String(), &out))
		assert.True(t, strings.HasPrefix(out.String(), "grant_consent"))
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		jsonOpts := opts
		jsonOpts.asJSON = true
		require.NoError(t, fetch(context.Background(), srv.Client(), jsonOpts, record.ID.String(), &out))
		got, err := audit.ParseRecord(out.Bytes())
		require.NoError(t, err)
		assert.NoError(t, got.Verify())
	})

	t.Run("not found", func(t *testing.T) {
		err := fetch(context.Background(), srv.Client(), opts, uuid.NewString(), io.Discard)
		assert.ErrorContains(t, err, "404")
	})

	t.Run("bad token", func(t *testing.T) {
		bad := opts
		bad.token = "nope"
		err := fetch(context.Background(), srv.Client(), bad, record.ID.String(), io.Discard)
		assert.ErrorContains(t, err, "401")
	})

	t.Run("invalid id", func(t *testing.T) {
		err := fetch(context.Background(), srv.Client(), opts, "abc", io.Discard)
		assert.ErrorContains(t, err, "invalid trail id")
	})
}

func TestRoot_RejectsUnknownCommand(t *testing.T) {
	_, err := runCmd(t, "", "explode")
	assert.Error(t, err)
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, io.ErrClosedPipe
}

func TestView_StopsOnWriteError(t *testing.T) {
	record := sampleRecord(t, "create_user")
	out := &failingWriter{}

	err := view(strings.NewReader(jsonl(t, record, record)), out, false)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, 1, out.writes, "the failed header write stops the listing")
}
