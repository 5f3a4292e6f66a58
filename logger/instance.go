package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	logger, err := New(DefaultConfig())
	if err != nil {
		log.Printf("Failed to initialize default logger: %v, using standard log", err)
		return
	}
	defaultLogger.Store(logger)
}

// InitFromConfig replaces the default logger with one built from configuration
func InitFromConfig(level, filePath string, maxSize, maxBackups int, console bool) error {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	logger, err := New(LoggerConfig{
		Level:      logLevel,
		FilePath:   filePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Console:    console,
	})
	if err != nil {
		return err
	}

	if old := defaultLogger.Swap(logger); old != nil {
		old.Close()
	}
	return nil
}

// SetLevel changes the level of the default logger in place
func SetLevel(level string) error {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	if l := defaultLogger.Load(); l != nil {
		l.SetLevel(logLevel)
	}
	return nil
}

// ParseLogLevel parses log level string
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}

func logf(level LogLevel, format string, args ...interface{}) {
	if l := defaultLogger.Load(); l != nil {
		// logf -> Debug/Info/... -> caller
		l.log(3, level, format, args...)
		return
	}
	log.Printf("["+level.String()+"] "+format, args...)
}

// Debug logs debug level messages
func Debug(format string, args ...interface{}) {
	logf(DEBUG, format, args...)
}

// Info logs info level messages
func Info(format string, args ...interface{}) {
	logf(INFO, format, args...)
}

// Warn logs warning level messages
func Warn(format string, args ...interface{}) {
	logf(WARN, format, args...)
}

// Error logs error level messages
func Error(format string, args ...interface{}) {
	logf(ERROR, format, args...)
}

// Close closes the default logger
func Close() error {
	if l := defaultLogger.Load(); l != nil {
		return l.Close()
	}
	return nil
}

// PahoAdapter exposes the default logger through the Println/Printf pair
// that paho.mqtt.golang expects for its ERROR, CRITICAL, WARN and DEBUG hooks.
type PahoAdapter struct {
	Level LogLevel
}

// Println implements paho's Logger
func (a PahoAdapter) Println(v ...interface{}) {
	a.emit(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Printf implements paho's Logger
func (a PahoAdapter) Printf(format string, v ...interface{}) {
	a.emit(fmt.Sprintf(format, v...))
}

func (a PahoAdapter) emit(msg string) {
	if l := defaultLogger.Load(); l != nil {
		// emit -> Println/Printf -> paho
		l.log(3, a.Level, "[paho] %s", msg)
	}
}
