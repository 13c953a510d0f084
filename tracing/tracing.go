// Package tracing sets up the process wide opentracing tracer and forwards
// span headers on inbound HTTP requests.
package tracing

import (
	"context"
	"io"
	stdlog "log"
	"net/http"
	"os"

	otnethttp "github.com/opentracing-contrib/go-stdlib/nethttp"
	opentracing "github.com/opentracing/opentracing-go"
	zipkinot "github.com/openzipkin-contrib/zipkin-go-opentracing"
	zipkin "github.com/openzipkin/zipkin-go"
	zipkinhttp "github.com/openzipkin/zipkin-go/reporter/http"

	"github.com/tradecore/go-marketstore-common/environment"
	"github.com/tradecore/go-marketstore-common/logger"
)

const (
	prefixTracerState = "x-b3-"
	TraceID           = prefixTracerState + "traceid"

	ZipkinEndpointEnv = "ZIPKIN_ENDPOINT"
	DisableZipkinEnv  = "DISABLE_ZIPKIN"
)

func HTTPMiddleware(h http.Handler) http.Handler {
	return otnethttp.Middleware(
		opentracing.GlobalTracer(),
		h,
		otnethttp.OperationNameFunc(func(r *http.Request) string {
			return "HTTP " + r.Method + ":" + r.URL.EscapedPath() + " >"
		}),
	)
}

// NewFromEnv initialises tracing and returns a closer if tracing is
// configured. If ZIPKIN_ENDPOINT is not set it is Fatal unless
// DISABLE_ZIPKIN is truthy. If tracing is disabled returns nil.
func NewFromEnv(log Logger, service string, host string) io.Closer {
	disabled := environment.GetTruthy(DisableZipkinEnv)
	endpoint, ok := os.LookupEnv(ZipkinEndpointEnv)
	if !ok {
		if !disabled {
			log.Panicf("'%s' has not been provided and is not disabled by '%s'", ZipkinEndpointEnv, DisableZipkinEnv)
		}
		log.Infof("zipkin disabled by '%s'", DisableZipkinEnv)
		return nil
	}
	if disabled {
		log.Infof("'%s' set, zipkin disabled", DisableZipkinEnv)
		return nil
	}
	return New(log, service, host, endpoint)
}

// New installs a zipkin backed tracer as the global tracer. The returned
// closer flushes the span reporter.
func New(log Logger, service string, host string, zipkinEndpoint string) io.Closer {
	localEndpoint, err := zipkin.NewEndpoint(service, host)
	if err != nil {
		log.Panicf("unable to create zipkin local endpoint service '%s' - host '%s': %v", service, host, err)
	}

	zipkinLogger := stdlog.New(os.Stdout, "zipkin", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds|stdlog.Llongfile)
	reporter := zipkinhttp.NewReporter(zipkinEndpoint, zipkinhttp.Logger(zipkinLogger))

	nativeTracer, err := zipkin.NewTracer(
		reporter,
		zipkin.WithLocalEndpoint(localEndpoint),
		zipkin.WithSharedSpans(false),
	)
	if err != nil {
		log.Panicf("unable to create zipkin tracer: %v", err)
	}

	opentracing.SetGlobalTracer(zipkinot.Wrap(nativeTracer))
	return reporter
}

// TraceIDFromContext returns the b3 trace id of the span in ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	span := opentracing.SpanFromContext(ctx)
	if span == nil {
		return ""
	}
	carrier := opentracing.TextMapCarrier{}
	if err := opentracing.GlobalTracer().Inject(span.Context(), opentracing.TextMap, carrier); err != nil {
		return ""
	}
	return carrier[TraceID]
}

type Logger = logger.Logger
