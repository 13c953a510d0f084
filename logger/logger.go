package logger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	opentracing "github.com/opentracing/opentracing-go"
)

var (
	Plain      *zap.Logger
	Sugar      *WrappedLogger
	undoLogger func()
	Recorded   *observer.ObservedLogs
)

const (
	serviceNameKey = "servicename"
	operationKey   = "operation"
	storeKeyKey    = "key"
	// Repeated here so the logger does not depend on a tracing package.
	TraceIDKey = "x-b3-traceid"
)

// so we dont have to import zap everywhere
type Option = zap.Option

type WrappedLogger struct {
	*zap.SugaredLogger
}

func keyValues(args []any) []any {
	keyVals := make([]any, 0, 2*len(args))
	for i, v := range args {
		keyVals = append(keyVals, fmt.Sprintf("arg%d", i), v)
	}
	return keyVals
}

func (l *WrappedLogger) InfoR(msg string, args ...any) {
	l.WithOptions(zap.AddCallerSkip(1)).Infow(msg, keyValues(args)...)
}

// OnExit should be deferred immediately after calling the
// New() method.
func OnExit() {
	_ = Sugar.Sync()
	_ = Plain.Sync()
	if undoLogger != nil {
		undoLogger()
		undoLogger = nil
	}
	Recorded = nil
}

// Resource holds the output options applied by New.
type Resource struct {
	console  bool
	filename string
}

type ResourceOption func(*Resource)

func WithFile(filename string) ResourceOption {
	return func(r *Resource) {
		r.filename = filename
	}
}

func WithConsole() ResourceOption {
	return func(r *Resource) {
		r.console = true
	}
}

func (r *Resource) apply(cfg *zap.Config) {
	if r.filename != "" {
		cfg.OutputPaths = []string{r.filename}
	}
	if r.console {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zapcore.EncoderConfig{
			MessageKey: "message",
		}
	}
}

// New creates 2 loggers (plain and sugared) as global variables according
// to the desired loglevel ("DEBUG", "NOOP", "TEST", default is "INFO").
// Log output from the standard library logger is redirected to the INFO
// level of these loggers.
// Both ResourceOption and zap.Option types are supported option types. The
// zap.Options are passed on the to zap logger.
func New(level string, opts ...any) {
	r := &Resource{}

	var zopts []zap.Option
	for _, iopt := range opts {
		switch opt := iopt.(type) {
		case ResourceOption:
			opt(r)
		case zap.Option:
			zopts = append(zopts, opt)
		}
	}

	var err error
	switch strings.ToUpper(level) {
	case DebugLevel:
		cfg := zap.NewDevelopmentConfig()
		r.apply(&cfg)
		Plain, err = cfg.Build(zopts...)

	case NoopLevel:
		Plain = zap.NewNop()

	case TestLevel:
		core, recorded := observer.New(zapcore.DebugLevel)
		ram := zap.WrapCore(func(zapcore.Core) zapcore.Core { return core })

		cfg := zap.NewDevelopmentConfig()
		r.apply(&cfg)
		var plain *zap.Logger
		plain, err = cfg.Build(zopts...)
		if err == nil {
			Plain = plain.WithOptions(ram)
			Recorded = recorded
		}

	default:
		cfg := zap.NewProductionConfig()
		r.apply(&cfg)
		Plain, err = cfg.Build(zopts...)
	}
	if err != nil {
		log.Panicf("cannot initialise zap logger: %v", err)
	}

	undoLogger = zap.RedirectStdLog(Plain)
	Sugar = &WrappedLogger{
		Plain.Sugar(),
	}
	Sugar.Debugf("Go version %s GOMAXPROCS %d", runtime.Version(), runtime.GOMAXPROCS(-1))
}

func valueFromCarrier(carrier opentracing.TextMapCarrier, key string) string {
	value, found := carrier[key]
	if !found || value == "" {
		return ""
	}
	return value
}

// FromContext takes the trace ID from the current span and adds it to a child wrapped logger:
//
// returns:
//   - the new wrapped logger with a context metadata value for traceID
//
// This will be called on entry to a method or a function that has a context.Context.
func (wl *WrappedLogger) FromContext(ctx context.Context) *WrappedLogger {

	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		return wl
	}
	carrier := opentracing.TextMapCarrier{}
	err := opentracing.GlobalTracer().Inject(span.Context(), opentracing.TextMap, carrier)
	if err != nil {
		wl.Debugf("FromContext: can't inject span: %v", err)
		return wl
	}

	traceID := valueFromCarrier(carrier, TraceIDKey)
	if traceID == "" {
		return wl
	}

	return &WrappedLogger{
		SugaredLogger: wl.With(zap.String(TraceIDKey, traceID)),
	}
}

func (wl *WrappedLogger) WithServiceName(servicename string) *WrappedLogger {
	return wl.WithIndex(serviceNameKey, servicename)
}

func (wl *WrappedLogger) WithIndex(key, value string) *WrappedLogger {
	return &WrappedLogger{
		SugaredLogger: wl.With(zap.String(key, strings.ToLower(value))),
	}
}

// WithOperation tags entries with a store operation and the key it touches.
// Keys are case sensitive so, unlike WithIndex, the value is kept as is.
func (wl *WrappedLogger) WithOperation(op, key string) *WrappedLogger {
	return &WrappedLogger{
		SugaredLogger: wl.With(zap.String(operationKey, op), zap.String(storeKeyKey, key)),
	}
}

func (wl *WrappedLogger) WithOptions(opts ...Option) *WrappedLogger {
	return &WrappedLogger{
		SugaredLogger: wl.SugaredLogger.WithOptions(opts...),
	}
}

// Close attempts to flush any buffered log entries.
func (wl *WrappedLogger) Close() {
	err := wl.Sync()

	// This is usually 'sync /dev/stderr invalid argument' which is pointless
	if err != nil && !errors.Is(err, syscall.EINVAL) {
		wl.Debugf("Close: Failed to flush log: %v", err)
	}
}
