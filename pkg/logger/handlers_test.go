package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/attaradev/jetstream-bridge/pkg/logger"
)

func TestRedactHandlerMasksKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewRedactHandler(slog.NewJSONHandler(&buf, nil))
	l := slog.New(h)
	l.Info("user action", "email", "user@example.com", "status", "ok")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "[REDACTED]", decoded["email"])
	require.Equal(t, "ok", decoded["status"])
}

func TestRedactHandlerLeavesCleanValuesAlone(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewRedactHandler(slog.NewJSONHandler(&buf, nil))
	l := slog.New(h)
	l.Info("user action", "user_id", "12345", "action", "view_page")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "12345", decoded["user_id"])
	require.Equal(t, "view_page", decoded["action"])
}

func TestSamplingHandlerAlwaysPassesWarnings(t *testing.T) {
	var buf bytes.Buffer
	h := logger.NewSamplingHandler(slog.NewJSONHandler(&buf, nil), 0)
	l := slog.New(h)
	l.Warn("always logged")

	require.NotEmpty(t, buf.String())
}

func TestAsyncHandlerDeliversRecords(t *testing.T) {
	var mu sync.Mutex
	buf := &syncBuffer{mu: &mu}
	h := logger.NewAsyncHandler(slog.NewJSONHandler(buf, nil), 8, false)
	l := slog.New(h)
	l.InfoContext(context.Background(), "hello")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return buf.buf.Len() > 0
	}, time.Second, time.Millisecond)
}

// syncBuffer guards a bytes.Buffer so the async handler's background
// goroutine and the test's polling goroutine can touch it concurrently.
type syncBuffer struct {
	mu  *sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
