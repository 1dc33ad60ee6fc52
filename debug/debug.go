package debug

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvDebug    = "SOCKETCLIENT_DEBUG"
	EnvLogLevel = "SOCKETCLIENT_LOG_LEVEL"
)

var (
	enabled atomic.Bool
	output  io.Writer = os.Stderr
)

func init() {
	if val, ok := parseBool(os.Getenv(EnvDebug)); ok {
		enabled.Store(val)
	}
}

// Enable turns on debug level for loggers created afterwards.
func Enable() {
	enabled.Store(true)
}

func Disable() {
	enabled.Store(false)
}

func Enabled() bool {
	return enabled.Load()
}

// SetOutput redirects loggers created afterwards. Tests point it at io.Discard.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	output = w
}

// Logger returns a console logger tagged with the component name.
func Logger(component string) zerolog.Logger {
	w := output
	if f, ok := w.(*os.File); ok {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		Level(Level()).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Level resolves the effective level: SOCKETCLIENT_LOG_LEVEL wins, then the
// debug switch, then info.
func Level() zerolog.Level {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		return lvl
	}
	if Enabled() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
