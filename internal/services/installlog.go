package services

import (
	"sync"
	"time"

	"github.com/imyashkale/mcpbridge/internal/models"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"

	InstallLogSizeLimit = 64 * 1024
)

// InstallLogger collects the user-facing log of one setup session
type InstallLogger struct {
	mu    sync.Mutex
	logs  []models.InstallLogEntry
	limit int
	now   func() time.Time
}

// NewInstallLogger creates an empty log capped at InstallLogSizeLimit
func NewInstallLogger() *InstallLogger {
	return &InstallLogger{
		logs:  make([]models.InstallLogEntry, 0),
		limit: InstallLogSizeLimit,
		now:   time.Now,
	}
}

func (l *InstallLogger) Info(stage, message string) {
	l.append(stage, LevelInfo, message)
}

func (l *InstallLogger) Warning(stage, message string) {
	l.append(stage, LevelWarning, message)
}

func (l *InstallLogger) Error(stage, message string) {
	l.append(stage, LevelError, message)
}

func (l *InstallLogger) append(stage, level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, models.InstallLogEntry{
		Timestamp: l.now(),
		Stage:     stage,
		Level:     level,
		Message:   message,
	})
}

// Entries returns a copy of the log. When the log is over the size limit the
// newest entries are kept and a truncation notice is put first.
func (l *InstallLogger) Entries() []models.InstallLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	// rough size: timestamp, stage and level plus the message
	total := 0
	start := len(l.logs)
	for start > 0 {
		size := 135 + len(l.logs[start-1].Message)
		if total+size > l.limit {
			break
		}
		total += size
		start--
	}

	out := make([]models.InstallLogEntry, 0, len(l.logs)-start+1)
	if start > 0 {
		out = append(out, models.InstallLogEntry{
			Timestamp: l.now(),
			Stage:     "system",
			Level:     LevelWarning,
			Message:   "Log output exceeded size limit. Older entries truncated.",
		})
	}
	return append(out, l.logs[start:]...)
}

// Messages returns the message text of every entry in order
func (l *InstallLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := make([]string, len(l.logs))
	for i, e := range l.logs {
		msgs[i] = e.Message
	}
	return msgs
}

// Clear empties the log
func (l *InstallLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = make([]models.InstallLogEntry, 0)
}
