package internal

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	SUCCESS
	// SILENT drops every entry.
	SILENT
)

var levelNames = map[LogLevel]string{
	DEBUG:   "DEBUG",
	INFO:    "INFO",
	WARNING: "WARNING",
	ERROR:   "ERROR",
	SUCCESS: "SUCCESS",
}

type Logger struct {
	*log.Logger
	out    *output
	prefix string
}

// output is shared by a logger and every child made with With, so a level
// change on any of them applies to all.
type output struct {
	mu     sync.Mutex
	level  LogLevel
	writer io.Writer
}

var (
	defaultLogger *Logger
	once          sync.Once
)

func NewLogger(out io.Writer, level LogLevel) *Logger {
	return &Logger{
		Logger: log.New(out, "", 0),
		out:    &output{level: level, writer: out},
	}
}

// Discard returns a logger that never writes.
func Discard() *Logger {
	return NewLogger(io.Discard, SILENT)
}

func InitDefaultLogger(level LogLevel) {
	once.Do(func() {
		defaultLogger = NewLogger(os.Stdout, level)
	})
}

func GetDefaultLogger() *Logger {
	if defaultLogger == nil {
		InitDefaultLogger(INFO)
	}
	return defaultLogger
}

// With returns a logger sharing the writer and level of l whose entries are
// tagged with the given prefix, e.g. an export id.
func (l *Logger) With(prefix string) *Logger {
	return &Logger{
		Logger: l.Logger,
		out:    l.out,
		prefix: l.prefix + "[" + prefix + "] ",
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.level = level
}

func (l *Logger) logInternal(level LogLevel, format string, v ...any) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if level < l.out.level || l.out.level == SILENT {
		return
	}

	timestamp := time.Now().Format(time.DateTime)
	msg := fmt.Sprintf(format, v...)
	logEntry := fmt.Sprintf("%s [%s] %s%s\n", timestamp, levelNames[level], l.prefix, msg)

	_, _ = l.out.writer.Write([]byte(logEntry))
}

func (l *Logger) Debug(format string, v ...any) {
	l.logInternal(DEBUG, format, v...)
}

func (l *Logger) Info(format string, v ...any) {
	l.logInternal(INFO, format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	l.logInternal(WARNING, format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.logInternal(ERROR, format, v...)
}

func (l *Logger) Success(format string, v ...any) {
	l.logInternal(SUCCESS, format, v...)
}

func DebugLog(format string, v ...any) {
	GetDefaultLogger().Debug(format, v...)
}

func InfoLog(format string, v ...any) {
	GetDefaultLogger().Info(format, v...)
}

func WarningLog(format string, v ...any) {
	GetDefaultLogger().Warn(format, v...)
}

func ErrorLog(format string, v ...any) {
	GetDefaultLogger().Error(format, v...)
}

func SuccessLog(format string, v ...any) {
	GetDefaultLogger().Success(format, v...)
}
