package scope

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTree(t *testing.T) {
	freezeClock(t)

	au := New("create_user")
	au.LogEvent("validating")
	persist := New("persist")
	persist.LogEvent("insert row")
	persist.AppendScope(New("index"))
	persist.setDuration(3 * time.Millisecond)
	au.AppendScope(persist)
	au.LogEvent("done")
	au.setDuration(4 * time.Millisecond)

	var b strings.Builder
	require.NoError(t, au.WriteTree(&b))

	want := strings.Join([]string{
		"create_user  2026-10-18T09:12:01.5Z  (4ms)",
		"├── validating",
		"├── persist  (3ms)",
		"│   ├── insert row",
		"│   └── index",
		"└── done",
		"",
	}, "\n")
	assert.Equal(t, want, b.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteTree_ReportsWriteErrors(t *testing.T) {
	au := New("au")
	au.LogEvent("x")
	assert.EqualError(t, au.WriteTree(failingWriter{}), "disk full")
}
