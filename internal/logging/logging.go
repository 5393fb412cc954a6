package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

// Init configures the global logger. level is one of debug, info, warn, error;
// unknown levels fall back to info. Debug level switches to the console writer.
func Init(level string) {
	InitWithWriter(level, os.Stderr)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(level string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(normalizeLevel(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	writer := w
	if lvl == zerolog.DebugLevel {
		writer = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(writer).Level(lvl).With().Timestamp()
	if lvl == zerolog.DebugLevel {
		// Skip the Debugf/Infof/... wrapper frame.
		ctx = ctx.CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 1)
	}
	log = ctx.Logger()
}

func init() {
	Init("info")
}

// normalizeLevel accepts the upper-case spellings used in config files.
func normalizeLevel(level string) string {
	switch level {
	case "DEBUG":
		return "debug"
	case "INFO":
		return "info"
	case "WARN", "WARNING", "warning":
		return "warn"
	case "ERROR":
		return "error"
	}
	return level
}

// Debugf logs at debug level.
func Debugf(format string, v ...any) {
	log.Debug().Msgf(format, v...)
}

// Infof logs at info level.
func Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

// Warnf logs at warn level.
func Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

// Errorf logs at error level.
func Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

