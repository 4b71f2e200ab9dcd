package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallLoggerKeepsOrder(t *testing.T) {
	l := NewInstallLogger()
	l.Info("installation", "Starting MCP server setup...")
	l.Warning("installation", "slow registry")
	l.Error("installation", "Error: spawn failed")

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, LevelWarning, entries[1].Level)
	assert.Equal(t, LevelError, entries[2].Level)
	assert.Equal(t, []string{"Starting MCP server setup...", "slow registry", "Error: spawn failed"}, l.Messages())

	l.Clear()
	assert.Empty(t, l.Entries())
}

func TestInstallLoggerTruncatesOldestEntries(t *testing.T) {
	l := NewInstallLogger()
	l.limit = 1000

	for i := 0; i < 10; i++ {
		l.Info("installation", strings.Repeat("x", 200))
	}
	l.Info("installation", "last line")

	entries := l.Entries()
	require.Greater(t, len(entries), 1)
	assert.Equal(t, "system", entries[0].Stage)
	assert.Equal(t, "last line", entries[len(entries)-1].Message)
	assert.Less(t, len(entries), 11)
}
