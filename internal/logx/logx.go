package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05.000"

// Config selects level and output format.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

// New returns a logger writing to stderr.
func New(cfg Config) zerolog.Logger {
	return NewWriter(os.Stderr, cfg)
}

// NewWriter returns a logger writing to w.
func NewWriter(w io.Writer, cfg Config) zerolog.Logger {
	zerolog.ErrorFieldName = "err"

	out := w
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger { return zerolog.Nop() }

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
