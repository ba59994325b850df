package gologger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
)

// ZerologConfig configures a zerolog-backed logger.
type ZerologConfig struct {
	Level   string    // "debug", "info", ... defaults to LOG_LEVEL, then info
	Output  io.Writer // defaults to os.Stdout
	Service string    // attached to every entry, defaults to "recaptcha"
}

// ZerologLogger adapts a zerolog.Logger to glog.Logger. Args passed to the
// level methods are read as key/value pairs.
type ZerologLogger struct {
	logger zerolog.Logger
	fatal  func()
}

func NewZerologLogger(cfg ZerologConfig) *ZerologLogger {
	level := zerolog.InfoLevel
	raw := strings.TrimSpace(cfg.Level)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	if raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}
	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = "recaptcha"
	}

	base := zerolog.New(writer).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
	return FromZerolog(base)
}

// FromZerolog wraps an already configured zerolog logger.
func FromZerolog(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger, fatal: func() { os.Exit(1) }}
}

func (l *ZerologLogger) Zerolog() zerolog.Logger {
	return l.logger
}

func (l *ZerologLogger) Trace(msg string, args ...any) {
	l.emit(l.logger.Trace(), msg, args)
}

func (l *ZerologLogger) Debug(msg string, args ...any) {
	l.emit(l.logger.Debug(), msg, args)
}

func (l *ZerologLogger) Info(msg string, args ...any) {
	l.emit(l.logger.Info(), msg, args)
}

func (l *ZerologLogger) Warn(msg string, args ...any) {
	l.emit(l.logger.Warn(), msg, args)
}

func (l *ZerologLogger) Error(msg string, args ...any) {
	l.emit(l.logger.Error(), msg, args)
}

// Fatal logs at fatal level without zerolog's implicit exit, then calls the
// configured exit hook.
func (l *ZerologLogger) Fatal(msg string, args ...any) {
	l.emit(l.logger.WithLevel(zerolog.FatalLevel), msg, args)
	if l.fatal != nil {
		l.fatal()
	}
}

// WithContext returns the logger attached to ctx by zerolog, falling back to
// the receiver.
func (l *ZerologLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	if fromCtx := zerolog.Ctx(ctx); fromCtx != nil && fromCtx.GetLevel() != zerolog.Disabled {
		return &ZerologLogger{logger: *fromCtx, fatal: l.fatal}
	}
	return l
}

func (l *ZerologLogger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	return &ZerologLogger{logger: l.logger.With().Fields(fields).Logger(), fatal: l.fatal}
}

func (l *ZerologLogger) emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			event = event.Interface("extra", args[i])
			break
		}
		switch value := args[i+1].(type) {
		case error:
			event = event.AnErr(key, value)
		case time.Duration:
			event = event.Dur(key, value)
		default:
			event = event.Interface(key, value)
		}
	}
	event.Msg(msg)
}

// ZerologProvider hands out component loggers derived from one base logger.
type ZerologProvider struct {
	base *ZerologLogger
}

func NewZerologProvider(base *ZerologLogger) *ZerologProvider {
	if base == nil {
		base = NewZerologLogger(ZerologConfig{})
	}
	return &ZerologProvider{base: base}
}

func (p *ZerologProvider) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return p.base
	}
	return &ZerologLogger{
		logger: p.base.logger.With().Str("component", name).Logger(),
		fatal:  p.base.fatal,
	}
}

var (
	_ glog.Logger         = (*ZerologLogger)(nil)
	_ glog.FieldsLogger   = (*ZerologLogger)(nil)
	_ glog.LoggerProvider = (*ZerologProvider)(nil)
)
