package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"
)

// LogLevel represents the log level
type LogLevel int

const (
	// DEBUG level
	DEBUG LogLevel = iota
	// INFO level
	INFO
	// WARN level
	WARN
	// ERROR level
	ERROR
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var levelColors = map[LogLevel]string{
	DEBUG: "\033[90m",
	INFO:  "\033[32m",
	WARN:  "\033[33m",
	ERROR: "\033[31m",
}

const resetColor = "\033[0m"

// String returns the upper-case level name
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Logger is a leveled logger writing to the console, a size-rotated file, or both
type Logger struct {
	level       LogLevel
	console     io.Writer
	file        *os.File
	filePath    string
	maxSize     int64 // Unit: bytes
	maxBackups  int
	currentSize int64
	mu          sync.Mutex
}

// LoggerConfig represents the configuration for the logger
type LoggerConfig struct {
	Level LogLevel
	// Log file path, empty disables file output
	FilePath string
	// Maximum log file size in MB
	MaxSize    int
	MaxBackups int
	Console    bool
	// Console writer, defaults to os.Stdout
	Writer io.Writer
}

// DefaultConfig returns default logger configuration
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:      INFO,
		MaxSize:    10,
		MaxBackups: 5,
		Console:    true,
	}
}

// New creates a new logger
func New(config LoggerConfig) (*Logger, error) {
	l := &Logger{
		level:      config.Level,
		filePath:   config.FilePath,
		maxSize:    int64(config.MaxSize) * 1024 * 1024,
		maxBackups: config.MaxBackups,
	}

	if config.Console {
		l.console = config.Writer
		if l.console == nil {
			l.console = os.Stdout
		}
	}

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to get log file info: %w", err)
		}

		l.file = file
		l.currentSize = info.Size()
	}

	return l, nil
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// log writes one entry; depth is the number of frames between the caller and log
func (l *Logger) log(depth int, level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		file = "unknown"
		line = 0
	}
	file = filepath.Base(file)

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	// colors only go to the console, the file stays plain text
	if l.console != nil {
		entry := fmt.Sprintf("%s [%s%s%s] %s:%d: %s\n", timestamp, levelColors[level], level, resetColor, file, line, msg)
		if _, err := io.WriteString(l.console, entry); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write log: %v\n", err)
		}
	}

	if l.file == nil {
		return
	}

	entry := fmt.Sprintf("%s [%s] %s:%d: %s\n", timestamp, level, file, line, msg)
	n, err := l.file.WriteString(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write log file: %v\n", err)
		return
	}

	l.currentSize += int64(n)
	if l.maxSize > 0 && l.currentSize >= l.maxSize {
		l.rotate()
	}
}

// rotate renames the current file with a timestamp suffix and opens a fresh one
func (l *Logger) rotate() {
	l.file.Close()

	timestamp := time.Now().Format("20060102-150405")
	dir, name, ext := splitLogPath(l.filePath)
	backupPath := filepath.Join(dir, fmt.Sprintf("%s.%s%s", name, timestamp, ext))

	if err := os.Rename(l.filePath, backupPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to rename log file: %v\n", err)
	}

	l.cleanOldLogs()

	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create new log file: %v\n", err)
		l.file = nil
		return
	}

	l.file = file
	l.currentSize = 0
}

// cleanOldLogs removes the oldest backups beyond maxBackups
func (l *Logger) cleanOldLogs() {
	dir, name, ext := splitLogPath(l.filePath)
	matches, err := filepath.Glob(filepath.Join(dir, name+".*"+ext))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to find old log files: %v\n", err)
		return
	}

	if len(matches) <= l.maxBackups {
		return
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	backups := make([]backup, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		backups = append(backups, backup{match, info.ModTime()})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.Before(backups[j].modTime)
	})

	for i := 0; i < len(backups)-l.maxBackups; i++ {
		os.Remove(backups[i].path)
	}
}

func splitLogPath(path string) (dir, name, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	return dir, base[:len(base)-len(ext)], ext
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(2, DEBUG, format, args...)
}

// Info logs info level messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(2, INFO, format, args...)
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(2, WARN, format, args...)
}

// Error logs error level messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(2, ERROR, format, args...)
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
