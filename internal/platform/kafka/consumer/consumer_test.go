package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type handlerFunc func(ctx context.Context, msg *Message) error

func (f handlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatch_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	c := New(nil, handlerFunc(func(context.Context, *Message) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}), WithRetry(3, 0), quiet())

	assert.True(t, c.Dispatch(context.Background(), &Message{Topic: "t"}))
	assert.Equal(t, 3, calls)
}

func TestDispatch_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	c := New(nil, handlerFunc(func(context.Context, *Message) error {
		calls++
		return errors.New("permanent")
	}), WithRetry(2, 0), quiet())

	assert.False(t, c.Dispatch(context.Background(), &Message{Topic: "t"}))
	assert.Equal(t, 2, calls)
}

func TestDispatch_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	c := New(nil, handlerFunc(func(context.Context, *Message) error {
		calls++
		cancel()
		return errors.New("fails")
	}), WithRetry(5, 0), quiet())

	assert.False(t, c.Dispatch(ctx, &Message{}))
	assert.Equal(t, 1, calls)
}
