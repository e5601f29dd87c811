package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/notify"
)

type fakeSender struct {
	name   string
	titles []string
	err    error
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEventTypes(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := notify.NewNotifier([]notify.Sender{s}, []string{notify.EventWhaleSummary}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), notify.EventWhaleFill, "fill", "ignored"))
	require.NoError(t, n.Notify(context.Background(), notify.EventWhaleSummary, "summary", "delivered"))

	assert.Equal(t, []string{"summary"}, s.titles)
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := notify.NewNotifier([]notify.Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), notify.EventWhaleFill, "fill", "msg"))
	assert.Len(t, s.titles, 1)
}

func TestNotifierFailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), notify.EventWhaleFill, "title", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, []string{"title"}, good.titles)
}
