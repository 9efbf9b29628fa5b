package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes logger runtime configuration. Output is stderr (default),
// stdout or a file path opened for append.
type Config struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	TimeFormat  string `mapstructure:"time_format"`
	Caller      bool   `mapstructure:"caller"`
	PrettyPrint bool   `mapstructure:"pretty"`
}

func (c Config) level() zerolog.Level {
	if c.Level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (c Config) console() bool {
	return c.PrettyPrint || strings.EqualFold(c.Format, "console")
}

// NewLogger builds the process logger. An output file that cannot be opened
// falls back to stderr with a warning.
func NewLogger(cfg Config) zerolog.Logger {
	out, err := openOutput(cfg.Output)
	logger := New(cfg, out)
	if err != nil {
		logger.Warn().Err(err).Msg("log output unavailable; using stderr")
	}
	return logger
}

// New builds a logger that writes to out.
func New(cfg Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}
	if cfg.console() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	}

	ctx := zerolog.New(out).Level(cfg.level()).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// Command output such as probe and show goes to stdout, so logs default to
// stderr.
func openOutput(target string) (io.Writer, error) {
	switch t := strings.TrimSpace(target); strings.ToLower(t) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		f, err := os.OpenFile(t, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stderr, fmt.Errorf("open log file %q: %w", t, err)
		}
		return f, nil
	}
}
