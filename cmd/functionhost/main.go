// Command functionhost is a minimal HTTP dispatcher showing how a host
// wires the request-processing runtime to a real transport: one
// Configuration shared across requests, one LifecycleRunner per request,
// and a small host.Envelope adapter over net/http.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/faasrt/core/pkg/config"
	"github.com/faasrt/core/pkg/host"
	"github.com/faasrt/core/pkg/lifecycle"
	"github.com/faasrt/core/pkg/observability"
	"github.com/faasrt/core/pkg/property"
	"github.com/faasrt/core/pkg/rtcontext"
)

const configDocumentKey = "FUNCTIONHOST_CONFIG_DOCUMENT"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	properties := buildPropertyManager()

	cfg := config.New(properties, false)
	telemetry, err := observability.New()
	if err != nil {
		logger.Warn("observability provider unavailable, continuing without tracing/metrics", "error", err)
		telemetry = nil
	}

	runner := lifecycle.New(cfg, configDocumentKey, logger, telemetry)

	mux := http.NewServeMux()
	mux.HandleFunc("/invoke", func(w http.ResponseWriter, r *http.Request) {
		envelope := newHTTPEnvelope(w, r)
		runner.Run(echoHandler{}, envelope)
	})

	addr := os.Getenv("FUNCTIONHOST_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("functionhost listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func buildPropertyManager() property.PropertyManager {
	appSettings := property.NewAppSettingsPropertyManager()
	if os.Getenv("celastringjs.core.property.deployment.local.development") != "" {
		return appSettings
	}
	if store := os.Getenv("celastrinajs.core.property.appconfig.config"); store != "" {
		_ = store // a real host resolves store/label/identity from this key's own attribute document
	}

	cacheOpts := []property.CacheOption{}
	if raw := os.Getenv("FUNCTIONHOST_CACHE_CONTROL"); raw != "" {
		if cfg, err := property.ParseCacheControlConfig([]byte(raw)); err == nil {
			cacheOpts = append(cacheOpts, property.WithCacheControl(cfg))
		}
	}
	return property.NewCachedPropertyManager(appSettings.Source, 5*time.Minute, cacheOpts...)
}

// echoHandler is a trivial author handler: it implements only
// ProcessHandler, leaving every other lifecycle stage to its framework
// default.
type echoHandler struct{}

func (echoHandler) Process(_ context.Context, rc *rtcontext.Context) error {
	body, _ := rc.Binding("body")
	rc.SetBinding("echo", body)
	rc.Logger().Info("processed invocation", "action", rc.Action())
	return nil
}

var _ lifecycle.ProcessHandler = echoHandler{}

// httpEnvelope adapts one net/http request/response pair to host.Envelope.
type httpEnvelope struct {
	w        http.ResponseWriter
	r        *http.Request
	ctx      context.Context
	cancel   context.CancelFunc
	bindings map[string]any
	logger   *slogEnvelopeLogger
	trace    *httpTraceContext
}

func newHTTPEnvelope(w http.ResponseWriter, r *http.Request) *httpEnvelope {
	var body any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)

	return &httpEnvelope{
		w:        w,
		r:        r,
		ctx:      ctx,
		cancel:   cancel,
		bindings: map[string]any{"body": body},
		logger:   &slogEnvelopeLogger{logger: slog.Default()},
		trace:    &httpTraceContext{traceparent: r.Header.Get("traceparent")},
	}
}

func (e *httpEnvelope) InvocationID() string { return e.r.Header.Get("X-Request-Id") }

func (e *httpEnvelope) Binding(name string) (any, bool) {
	v, ok := e.bindings[name]
	return v, ok
}

func (e *httpEnvelope) SetBinding(name string, value any) { e.bindings[name] = value }

func (e *httpEnvelope) Logger() host.Logger { return e.logger }

func (e *httpEnvelope) Trace() host.TraceContext {
	if e.trace.traceparent == "" {
		return nil
	}
	return e.trace
}

func (e *httpEnvelope) Context() context.Context { return e.ctx }

func (e *httpEnvelope) Done(result any, err error) {
	defer e.cancel()
	e.w.Header().Set("Content-Type", "application/json")
	if err != nil {
		e.w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(e.w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(e.w).Encode(map[string]any{"result": result, "bindings": e.bindings})
}

var _ host.Envelope = (*httpEnvelope)(nil)

type httpTraceContext struct {
	traceparent string
}

func (t *httpTraceContext) TraceParent() string { return t.traceparent }

type slogEnvelopeLogger struct {
	logger *slog.Logger
}

func (l *slogEnvelopeLogger) Log(ctx context.Context, severity host.Severity, msg string, fields map[string]any) {
	level := slog.LevelInfo
	switch severity {
	case host.SeverityTrace, host.SeverityVerbose:
		level = slog.LevelDebug
	case host.SeverityWarn:
		level = slog.LevelWarn
	case host.SeverityError:
		level = slog.LevelError
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	l.logger.Log(ctx, level, msg, args...)
}
