package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger to write to stdout.
func Init(level, format string) {
	InitWithWriter(level, format, os.Stdout)
}

// InitWithWriter configures the global zerolog logger. Unknown levels fall back to
// info, unknown formats to json.
func InitWithWriter(level, format string, out io.Writer) {
	lvl := parseLevel(level)

	var writer io.Writer = out
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(writer).
		With().
		Timestamp().
		Str("service", "query-tools").
		Logger().
		Level(lvl)
}

func parseLevel(raw string) zerolog.Level {
	if strings.TrimSpace(raw) == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
