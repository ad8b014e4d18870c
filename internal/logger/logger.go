// Package logger is a small category logger. Every line carries a
// timestamp and a padded category so batch output from concurrent
// subsets stays readable.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func levelForCategory(category string) Level {
	switch category {
	case "error":
		return LevelError
	case "warning":
		return LevelWarning
	default:
		if strings.HasPrefix(category, "debug") {
			return LevelDebug
		}
		return LevelInfo
	}
}

type Logger struct {
	mu            sync.Mutex
	output        io.Writer
	minLevel      Level
	categoryWidth int
}

var defaultLogger = New(os.Stdout)

// New returns a logger writing to w at INFO level.
func New(w io.Writer) *Logger {
	return &Logger{output: w, minLevel: LevelInfo, categoryWidth: 9}
}

// Default returns the process-wide logger.
func Default() *Logger { return defaultLogger }

func SetOutput(w io.Writer) { defaultLogger.SetOutput(w) }

func SetMinLevel(lvl Level) { defaultLogger.SetMinLevel(lvl) }

func SetVerbose(verbose bool) { defaultLogger.SetVerbose(verbose) }

func Printf(category, format string, v ...interface{}) {
	defaultLogger.Printf(category, format, v...)
}

func Warning(format string, v ...interface{}) { defaultLogger.Printf("warning", format, v...) }

func Error(format string, v ...interface{}) { defaultLogger.Printf("error", format, v...) }

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	l.output = w
}

func (l *Logger) SetMinLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = lvl
}

// SetVerbose toggles debug categories.
func (l *Logger) SetVerbose(verbose bool) {
	if verbose {
		l.SetMinLevel(LevelDebug)
		return
	}
	l.SetMinLevel(LevelInfo)
}

func (l *Logger) Printf(category, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if levelForCategory(category) < l.minLevel {
		return
	}

	var buf bytes.Buffer
	buf.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	buf.WriteString(category)
	for i := len(category); i < l.categoryWidth; i++ {
		buf.WriteByte(' ')
	}
	buf.WriteByte(' ')
	fmt.Fprintf(&buf, format, v...)
	if b := buf.Bytes(); b[len(b)-1] != '\n' {
		buf.WriteByte('\n')
	}
	l.output.Write(buf.Bytes())
}

func (l *Logger) Warning(format string, v ...interface{}) { l.Printf("warning", format, v...) }

func (l *Logger) Error(format string, v ...interface{}) { l.Printf("error", format, v...) }
