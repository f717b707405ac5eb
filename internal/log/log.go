// Package log holds the process-wide zerolog loggers of ecashkit.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the root logger. Component loggers derive from it.
var Logger zerolog.Logger

// Per-component loggers, rebuilt by Init.
var (
	Chain     zerolog.Logger
	Consensus zerolog.Logger
	Sync      zerolog.Logger
	Provider  zerolog.Logger
	Storage   zerolog.Logger
	Kit       zerolog.Logger
)

const consoleTime = "15:04:05"

func init() {
	setRoot(NewConsoleLogger(os.Stdout, "info"))
}

// Init replaces the root logger. Console output is colored unless jsonOutput
// is set. A non-empty file additionally receives every event as JSON.
func Init(level string, jsonOutput bool, file string) error {
	var console io.Writer = os.Stdout
	if !jsonOutput {
		console = consoleWriter(os.Stdout)
	}
	if file == "" {
		setRoot(newLogger(console, level))
		return nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	setRoot(newLogger(zerolog.MultiLevelWriter(console, f), level))
	return nil
}

// NewConsoleLogger creates a colored, human-readable logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(consoleWriter(w), level)
}

// NewJSONLogger creates a logger emitting one JSON object per event.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTime}
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

// parseLevel falls back to info for empty or unknown names.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func setRoot(l zerolog.Logger) {
	Logger = l
	Chain = WithComponent("chain")
	Consensus = WithComponent("consensus")
	Sync = WithComponent("sync")
	Provider = WithComponent("provider")
	Storage = WithComponent("storage")
	Kit = WithComponent("kit")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithWallet returns a logger scoped to one wallet's sync session.
func WithWallet(network, walletID string) zerolog.Logger {
	return Logger.With().Str("network", network).Str("wallet", walletID).Logger()
}

// Debug starts a debug event on the root logger.
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info starts an info event on the root logger.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn starts a warning event on the root logger.
func Warn() *zerolog.Event {
	return Logger.Warn()
}
