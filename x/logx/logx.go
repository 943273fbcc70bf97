// Package logx is a small leveled key/value logger.
//
// Lines look like:
//
//	2025-01-01T00:00:00Z [INFO] qspi ready unit=2 hz=80000000
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	}
	return 1
}

// ParseLevel accepts level names in any case.
func ParseLevel(s string) (Level, bool) {
	switch l := Level(strings.ToUpper(s)); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, true
	}
	return "", false
}

var (
	mu       sync.Mutex
	out      io.Writer = os.Stderr
	minLevel           = LevelInfo
	now                = time.Now
)

func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

// SetOutput redirects log lines; nil restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	out = w
	mu.Unlock()
}

func Debug(msg string, kv ...any) { logWithLevel(LevelDebug, msg, kv...) }
func Info(msg string, kv ...any)  { logWithLevel(LevelInfo, msg, kv...) }
func Warn(msg string, kv ...any)  { logWithLevel(LevelWarn, msg, kv...) }

func Error(msg string, err error, kv ...any) {
	logWithLevel(LevelError, msg, append([]any{"err", err}, kv...)...)
}

// Enabled reports whether l would be written.
func Enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l.rank() >= minLevel.rank()
}

func logWithLevel(level Level, msg string, kv ...any) {
	mu.Lock()
	defer mu.Unlock()
	if level.rank() < minLevel.rank() {
		return
	}
	var b strings.Builder
	b.WriteString(now().Format(time.RFC3339Nano))
	b.WriteString(" [")
	b.WriteString(string(level))
	b.WriteString("] ")
	b.WriteString(msg)
	// kv pairs; a trailing odd value is dropped
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(quote(fmt.Sprint(kv[i+1])))
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(out, b.String())
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
