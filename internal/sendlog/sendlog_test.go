package sendlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecordAppendsFormattedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sent.log")
	l := New(path, zap.NewNop())
	l.now = func() time.Time {
		return time.Date(2026, 2, 12, 19, 30, 0, 0, time.UTC)
	}

	l.Record("a@example.com", "hello", true, "Sent successfully | THEME=ocean")
	l.Record("b@example.com", "hello", false, "smtp connection error: dial tcp: refused")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2026-02-12 19:30:00 ; a@example.com ; hello ; OK ; Sent successfully | THEME=ocean", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2026-02-12 19:30:00 ; b@example.com ; hello ; ERROR ;"))
}

func TestRecordFailureIsSilent(t *testing.T) {
	// Pointing at a directory makes the open fail; Record must not panic.
	dir := t.TempDir()
	l := New(dir, zap.NewNop())
	l.Record("a@example.com", "hello", true, "")
}
