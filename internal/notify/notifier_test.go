package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSender captures deliveries and optionally fails.
type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifyFiltersByEventKind(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{EventOrderFilled}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventSignal, "signal", "ignored"))
	require.NoError(t, n.Notify(ctx, EventOrderFilled, "filled", "delivered"))

	assert.Equal(t, []string{"filled"}, s.titles)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	s := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventSignal, "a", ""))
	require.NoError(t, n.Notify(ctx, EventOrderRejected, "b", ""))
	assert.Len(t, s.titles, 2)
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "telegram", err: errors.New("api down")}
	good := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), EventOrderFilled, "filled", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Len(t, good.titles, 1, "remaining senders still receive the event")
}

func TestNotifyNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.NoError(t, n.Notify(context.Background(), EventSignal, "t", "m"))
}
