package utils

import (
	"io"
	"log"
	"os"
	"strings"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// ParseLevel разбирает уровень логирования, по умолчанию INFO
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

type Logger struct {
	level  LogLevel
	prefix string
	logger *log.Logger
}

func NewLogger(levelStr string) *Logger {
	return NewLoggerWithWriter(levelStr, os.Stdout)
}

// NewLoggerWithWriter создает логгер, пишущий в w
func NewLoggerWithWriter(levelStr string, w io.Writer) *Logger {
	return &Logger{
		level:  ParseLevel(levelStr),
		logger: log.New(w, "", log.LstdFlags),
	}
}

// With возвращает дочерний логгер с префиксом компонента
func (l *Logger) With(component string) *Logger {
	return &Logger{
		level:  l.level,
		prefix: l.prefix + "[" + component + "] ",
		logger: l.logger,
	}
}

func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.output(DEBUG, "[DEBUG] ", format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.output(INFO, "[INFO] ", format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.output(WARN, "[WARN] ", format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.output(ERROR, "[ERROR] ", format, v...)
}

// Printf пишет на уровне INFO; нужен для cron.PrintfLogger
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Info(format, v...)
}

func (l *Logger) output(level LogLevel, tag, format string, v ...interface{}) {
	if l == nil || l.level > level {
		return
	}
	l.logger.Printf(tag+l.prefix+format, v...)
}

// Discard возвращает логгер, который ничего не пишет
func Discard() *Logger {
	return NewLoggerWithWriter("error", io.Discard)
}
