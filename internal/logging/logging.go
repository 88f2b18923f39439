// Package logging builds the process zerolog.Logger from settings.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// Config selects the logger's level, format and sinks.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // console or json
	// Output receives local log lines. Defaults to os.Stderr so stdio MCP
	// traffic on stdout stays clean.
	Output io.Writer
	// GraylogAddress enables a GELF UDP sink when set.
	GraylogAddress string
	Service        string
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger. The returned closer releases the GELF connection.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var local io.Writer = out
	if cfg.Format != "json" {
		local = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stderr && out != os.Stdout,
		}
	}

	writers := []io.Writer{local}
	var closer io.Closer = nopCloser{}
	if cfg.GraylogAddress != "" {
		gw, err := gelf.NewWriter(cfg.GraylogAddress)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to connect to graylog at %s: %w", cfg.GraylogAddress, err)
		}
		writers = append(writers, gw)
		if c, ok := any(gw).(io.Closer); ok {
			closer = c
		}
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}

	return ctx.Logger(), closer, nil
}
