package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"keyshop/lib/sl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	levels   []slog.Level
}

func (n *recordingNotifier) SendMessageWithLevel(msg string, level slog.Level) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	n.levels = append(n.levels, level)
}

func newTestLogger(n Notifier) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return WithNotifier(base, n, slog.LevelError), &buf
}

func TestTelegramHandlerForwardsOnlyAboveLevel(t *testing.T) {
	n := &recordingNotifier{}
	log, buf := newTestLogger(n)

	log.Info("purchase completed")
	log.Error("purchase failed", sl.Err(errors.New("db down")))

	assert.Contains(t, buf.String(), "purchase completed")
	assert.Contains(t, buf.String(), "purchase failed")
	require.Len(t, n.messages, 1)
	assert.Equal(t, slog.LevelError, n.levels[0])
	assert.Contains(t, n.messages[0], "purchase failed")
	assert.Contains(t, n.messages[0], "db down")
}

func TestTelegramHandlerKeepsAttrsAndGroups(t *testing.T) {
	n := &recordingNotifier{}
	log, _ := newTestLogger(n)

	log.With(sl.Module("purchase")).WithGroup("tx").Error("rollback", slog.Int64("account_id", 7))

	require.Len(t, n.messages, 1)
	msg := n.messages[0]
	assert.Contains(t, msg, "tx.rollback")
	assert.Contains(t, msg, "mod: purchase")
	assert.Contains(t, msg, "account\\_id: 7")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a\\_b\\.c\\!", Sanitize("a_b.c!"))
	assert.Equal(t, "plain", Sanitize("plain"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("INFO"))
	assert.Equal(t, slog.LevelError, ParseLevel("loud"))
}
