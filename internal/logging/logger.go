// Package logging provides config-driven categorized file-based logging for coffer.
// Logs are written to <data-dir>/logs/ with a separate file per category.
// When logging is disabled in the config, no files are written and every call
// is a cheap no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Bootstrap / initialization
	CategoryConfig    Category = "config"    // Config load and hot-reload
	CategoryAccess    Category = "access"    // Role grants and revocations
	CategoryEmergency Category = "emergency" // Emergency state transitions
	CategoryVault     Category = "vault"     // Deposits, mints, withdrawals, redemptions
	CategorySweep     Category = "sweep"     // Recovery sweeps
	CategoryTimelock  Category = "timelock"  // Delay authority scheduling
	CategoryStore     Category = "store"     // SQLite persistence
)

// Log levels, ordered.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Settings controls logger behavior. It mirrors config.LoggingConfig to avoid
// a circular import with the config package.
type Settings struct {
	Enabled    bool
	Level      string          // debug/info/warn/error
	Categories map[string]bool // per-category enable; empty means all enabled
}

// Logger writes to a single category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	settings Settings
	level    int
)

// Initialize sets up the logging directory and applies settings.
// Should be called once at startup with the data directory path.
func Initialize(dataDir string, s Settings) error {
	if dataDir == "" {
		return fmt.Errorf("data directory required")
	}

	mu.Lock()
	defer mu.Unlock()

	logsDir = filepath.Join(dataDir, "logs")
	settings = s
	level = parseLevel(s.Level)

	if !s.Enabled {
		return nil
	}
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

// Apply replaces the current settings without re-opening files. Used by the
// config hot-reload path.
func Apply(s Settings) {
	mu.Lock()
	defer mu.Unlock()
	settings = s
	level = parseLevel(s.Level)
}

// Shutdown closes all open log files.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

func parseLevel(s string) int {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// enabled reports whether a category should emit. Caller must hold mu.
func enabled(cat Category) bool {
	if !settings.Enabled || logsDir == "" {
		return false
	}
	if len(settings.Categories) == 0 {
		return true
	}
	return settings.Categories[string(cat)]
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}

	l := &Logger{category: cat}
	if enabled(cat) {
		path := filepath.Join(logsDir, string(cat)+".log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			l.file = f
			l.logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
		}
	}
	loggers[cat] = l
	return l
}

func (l *Logger) write(lvl int, tag, format string, args ...interface{}) {
	mu.RLock()
	out := l.logger
	min := level
	on := enabled(l.category)
	mu.RUnlock()
	if out == nil || !on || lvl < min {
		return
	}
	out.Printf("["+tag+"] "+format, args...)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// Convenience helpers for the common categories, info level.

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func ConfigLog(format string, args ...interface{}) { Get(CategoryConfig).Info(format, args...) }
func Access(format string, args ...interface{})    { Get(CategoryAccess).Info(format, args...) }
func Emergency(format string, args ...interface{}) { Get(CategoryEmergency).Info(format, args...) }
func Vault(format string, args ...interface{})     { Get(CategoryVault).Info(format, args...) }
func Sweep(format string, args ...interface{})     { Get(CategorySweep).Info(format, args...) }
func Timelock(format string, args ...interface{})  { Get(CategoryTimelock).Info(format, args...) }
func Store(format string, args ...interface{})     { Get(CategoryStore).Info(format, args...) }
