package sendlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Logger appends one human-readable line per send attempt to a text
// file. The file is write-only from the system's perspective: nothing
// ever parses it back.
type Logger struct {
	path string
	log  *zap.Logger
	mu   sync.Mutex
	now  func() time.Time
}

func New(path string, log *zap.Logger) *Logger {
	return &Logger{path: path, log: log, now: time.Now}
}

// Record writes "timestamp ; to ; subject ; OK|ERROR ; extra". A log
// write failure is only a warning: the send outcome already happened
// and must not be re-judged by bookkeeping.
func (l *Logger) Record(to, subject string, ok bool, extra string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	status := "OK"
	if !ok {
		status = "ERROR"
	}
	line := fmt.Sprintf("%s ; %s ; %s ; %s ; %s\n",
		l.now().Format("2006-01-02 15:04:05"), to, subject, status, extra)

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.log.Warn("sendlog: cannot create log dir", zap.String("path", l.path), zap.Error(err))
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.log.Warn("sendlog: cannot open log file", zap.String("path", l.path), zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		l.log.Warn("sendlog: cannot write entry", zap.String("path", l.path), zap.Error(err))
	}
}
