package observability

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var root zerolog.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// InitLogger configures the process-wide logger. JSON output by default,
// a console writer when pretty is set.
func InitLogger(level string, pretty bool) {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		root = zerolog.New(out).With().Timestamp().Logger()
	} else {
		root = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	log.Logger = root
}

// Logger returns a child logger tagged with the component name.
func Logger(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}
