package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	file *os.File
	mu   sync.Mutex
)

// New builds a logger writing to w at level
func New(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
}

// ParseLevel maps a flag value onto a level, defaulting to info
func ParseLevel(s string) log.Level {
	level, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Enable opens ~/.config/go-playseq/debug.log and returns a debug level
// logger writing to it. The TUI owns the terminal, so this is where its
// logs go.
func Enable() (*log.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		return New(file, log.DebugLevel), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(homeDir, ".config", "go-playseq")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	file = f

	logger := New(file, log.DebugLevel)
	logger.Debug("debug logging started", "at", time.Now().Format(time.RFC3339))
	return logger, nil
}

// Disable closes the debug log file
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
}

// Every logs only every n calls per key, for high-frequency events
type Every struct {
	mu     sync.Mutex
	counts map[string]int
}

// Debug logs msg at debug level on every nth call with the same msg
func (e *Every) Debug(logger *log.Logger, n int, msg string, keyvals ...any) {
	e.mu.Lock()
	if e.counts == nil {
		e.counts = make(map[string]int)
	}
	e.counts[msg]++
	count := e.counts[msg]
	e.mu.Unlock()

	if n > 0 && count%n == 0 {
		logger.Debug(msg, append(keyvals, "every", n, "count", count)...)
	}
}
