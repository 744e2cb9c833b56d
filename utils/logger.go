package utils

import (
	"io"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CustomLogger is a logger type that embeds zap.Logger to provide logging functionalities with additional features.
type CustomLogger struct {
	zap.Logger // Embedding Logger (composition)
}

// defaultLogger is a pre-configured development logger using the zap library for structured logging.
var defaultLogger, _ = zap.NewDevelopment()

// Logger shared logger for the whole program
var Logger = CustomLogger{*defaultLogger}

const (
	// LogTrace is more detailed than DEBUG. DEBUG logs work on the level of a pass and its tables,
	// TRACE logs work on the level of single keys and HTTP requests.
	LogTrace zapcore.Level = -3
)

// LogOptions selects the output format, verbosity and destination of the shared logger.
type LogOptions struct {
	// JSON production JSON-formatted logs, used inside AWS Lambda
	JSON bool
	// Dev development formatting with time stamps and source files
	Dev bool
	// Level one of trace, debug, info, warn, error (info when empty or unknown)
	Level string
	// File when not empty, logs go to this file with rotation instead of the standard streams
	File string
}

// Trace logs a message at trace level with optional structured fields.
func (l *CustomLogger) Trace(msg string, fields ...zap.Field) {
	l.Log(LogTrace, msg, fields...)
}

// With returns a child logger carrying the given fields, still usable as a CustomLogger.
func (l *CustomLogger) With(fields ...zap.Field) *CustomLogger {
	return &CustomLogger{*l.Logger.With(fields...)}
}

// init Clean the logger at the end
func init() {
	setupShutdownHook()
}

// setupShutdownHook ensures that the logger's buffer is flushed and resources are cleaned up
// before the application exits.
func setupShutdownHook() {
	defer func(logger *CustomLogger) {
		err := logger.Sync()
		if err != nil {
			// instead of fatal, we just log the error and continue
			log.Println("Expected error in unit tests while syncing the logger: ", err)
		}
	}(&Logger) // Flushes buffer, if any
}

// ParseLevel converts a log_level setting to a zap level. Unknown values fall back to INFO.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LogTrace
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// InitLogger initializes the global logger with the given options.
func InitLogger(opts LogOptions) {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	writer := logWriter(opts.File)

	var encoder zapcore.Encoder
	var zapOpts []zap.Option
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    TraceLevelEncoder,
			EncodeTime:     zapcore.EpochTimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		})
		zapOpts = []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	} else if opts.Dev {
		encoder = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			// Keys can be anything except the empty string.
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    TraceLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		})
		zapOpts = []zap.Option{zap.AddCaller(), zap.Development(), zap.AddStacktrace(zapcore.WarnLevel)}
	} else {
		// Disable timestamps by setting log flags to 0.
		// We use this logger for console error output.
		log.SetFlags(0)

		// constructs console-friendly output, not meant for development
		encoder = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			MessageKey:     "message",                     // Set the key for the log message
			LevelKey:       "level",                       // Leave blank to omit the log level
			TimeKey:        "",                            // Leave blank to omit the timestamp
			CallerKey:      "caller",                      // Key for caller information (optional)
			EncodeLevel:    IconLevelEncoder,              // instead of zapcore.CapitalLevelEncoder
			EncodeCaller:   zapcore.ShortCallerEncoder,    // Optional: Include short caller info
			EncodeDuration: zapcore.StringDurationEncoder, // Format for durations
		})
		zapOpts = []zap.Option{zap.WithCaller(false), zap.AddStacktrace(zapcore.ErrorLevel)}
	}

	defaultLogger = zap.New(zapcore.NewCore(encoder, zapcore.AddSync(writer), level), zapOpts...)
	Logger = CustomLogger{*defaultLogger}
	setupShutdownHook()
}

// logWriter returns stdout, or a size-rotated file when a path is configured.
func logWriter(file string) io.Writer {
	if file == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// IconLevelEncoder serializes a Level to an icon - only for more important levels.
func IconLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == zapcore.ErrorLevel || l == zapcore.FatalLevel { // Check if it's an error message
		enc.AppendString("❌") // Prepend the symbol to the message
	} else if l == zapcore.WarnLevel {
		enc.AppendString("⚠️") // Prepend the symbol to the message
	} else if l == zapcore.InfoLevel {
		enc.AppendString("ℹ️") // Prepend the symbol to the message
	} else if l == LogTrace {
		enc.AppendString("TRACE")
	}
}

// TraceLevelEncoder adds TRACE level serialization, otherwise it prints LEVEL(-3)
func TraceLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == LogTrace {
		enc.AppendString("TRACE")
	} else {
		enc.AppendString(l.CapitalString())
	}
}
