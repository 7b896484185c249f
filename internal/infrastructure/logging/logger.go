package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/solarlog/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "solarlog"

// Logger is the slog logger handed to the poller, the mirrors and the
// journal. Each of those packages declares its own narrow Logger interface,
// which the embedded *slog.Logger satisfies.
type Logger struct {
	*slog.Logger
}

// New builds the process logger from the logging section of config.yaml.
//
// Every entry carries service=solarlog and the build version, so lines
// from several pollers on one host can be told apart.
//
// Parameters:
//   - cfg: level (debug/info/warn/error), format (json/text) and output
//     (stdout/stderr)
//   - version: build version, set through -ldflags
//
// Returns:
//   - *Logger: ready to use; never nil
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, outputFor(cfg.Output))
}

// NewWithWriter is New with the destination given explicitly. The watch
// command logs to the cobra error stream this way.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler.WithAttrs([]slog.Attr{
			slog.String("service", serviceName),
			slog.String("version", version),
		})),
	}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps a config level name to slog. Unknown names log at info.
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

// With returns a child logger that adds args to every entry.
//
// Example:
//
//	jlog := logger.With("component", "journal")
//	jlog.Info("journal pruned", "deleted", n) // component=journal deleted=n
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// StdLogger bridges to libraries that only take a *log.Logger, such as the
// Modbus RTU frame tracer. Lines go out at debug level.
func (l *Logger) StdLogger() *log.Logger {
	return slog.NewLogLogger(l.Handler(), slog.LevelDebug)
}

// Default is the logger used until config.yaml has been read: JSON on
// stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
