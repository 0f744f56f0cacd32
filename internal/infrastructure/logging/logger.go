package logging

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/nerrad567/vega-nmos-core/internal/infrastructure/config"
)

// ServiceName is attached to every entry as the "service" field.
const ServiceName = "vega"

const redacted = "[REDACTED]"

// Logger is the structured logger shared by every Vega component.
//
// Components take narrow Debug/Info/Warn/Error interfaces, which the
// embedded *slog.Logger satisfies.
type Logger struct {
	*slog.Logger
}

// New builds a logger writing to the stream named by cfg.Output
// ("stderr", anything else means stdout).
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter builds a logger writing to w. cfg.Output is ignored.
//
// Parameters:
//   - cfg: Level ("debug", "info", "warn", "error") and Format ("json", "text")
//   - version: Recorded in the "version" field of every entry
//   - w: Destination
//
// Returns:
//   - *Logger: Ready for use
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: scrub,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{slog.New(h).With("service", ServiceName, "version", version)}
}

// Default is the logger used before configuration is loaded: JSON on
// stdout at info.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

// With returns a child logger carrying args on every entry.
//
//	log := logger.With("component", "discovery")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// scrub hides credentials: secret-looking keys are blanked and URL
// values lose their userinfo.
func scrub(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	switch {
	case key == "password" || key == "token" || strings.HasSuffix(key, "_token"):
		return slog.String(a.Key, redacted)
	case key == "url" || strings.HasSuffix(key, "_url"):
		if a.Value.Kind() == slog.KindString {
			return slog.String(a.Key, stripUserinfo(a.Value.String()))
		}
	}
	return a
}

func stripUserinfo(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}
