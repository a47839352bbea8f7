package http

import (
	"io"
	"log/slog"
	"testing"
)

// testLogger discards output; handler tests assert on responses only.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
