// Package logging provides structured JSON logging for nestsync.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is the structured context attached to a log line.
type Fields map[string]interface{}

var (
	mu     sync.RWMutex
	global *logrus.Logger
)

// New builds a JSON logger writing to out at the given level name.
// Unknown level names fall back to info.
func New(out io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Init replaces the global logger.
func Init(out io.Writer, level string) {
	l := New(out, level)
	mu.Lock()
	global = l
	mu.Unlock()
}

// Get returns the global logger, creating a stderr logger at info level on first use.
func Get() *logrus.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = New(os.Stderr, "info")
	}
	return global
}

func entry(context []Fields) *logrus.Entry {
	merged := logrus.Fields{}
	for _, c := range context {
		for k, v := range c {
			merged[k] = v
		}
	}
	return Get().WithFields(merged)
}

func Debug(message string, context ...Fields) {
	entry(context).Debug(message)
}

func Info(message string, context ...Fields) {
	entry(context).Info(message)
}

func Warn(message string, context ...Fields) {
	entry(context).Warn(message)
}

// Error logs message at error level with err attached under the "error" key.
func Error(message string, err error, context ...Fields) {
	e := entry(context)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
}
