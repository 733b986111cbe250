// Kunhua Huang 2026

// Package log sets up the leveled module loggers shared by the runtime.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
)

// Module is the go-logging module every runtime logger registers under.
const Module = "rpcbind"

var format = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}`,
)

func init() {
	Setup(os.Stderr, LevelFromEnv(logging.WARNING))
}

// Logger returns the logger for one component, e.g. "pool" or "tcp".
func Logger(component string) *logging.Logger {
	return logging.MustGetLogger(Module + "." + component)
}

// Setup routes all runtime loggers to w at the given level.
func Setup(w io.Writer, level logging.Level) {
	backend := logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), format)
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}

// LevelFromEnv reads RPC_LOG_LEVEL, falling back to def.
func LevelFromEnv(def logging.Level) logging.Level {
	return ParseLevel(os.Getenv("RPC_LOG_LEVEL"), def)
}

// ParseLevel maps a level name to a logging.Level, falling back to def.
func ParseLevel(name string, def logging.Level) logging.Level {
	if name == "" {
		return def
	}
	level, err := logging.LogLevel(strings.ToUpper(name))
	if err != nil {
		return def
	}
	return level
}
