package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/domain"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/catalog"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/mcpserver"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/ws"
)

// MCPServerService is the lifecycle surface the router exposes.
type MCPServerService interface {
	List(ctx context.Context, filters map[string]string, owner *mcpserver.Owner) (json.RawMessage, error)
	Get(ctx context.Context, name string) (*domain.MCPServer, error)
	Exists(ctx context.Context, name string) bool
	Create(ctx context.Context, in mcpserver.CreateInput) (*domain.MCPServer, error)
	Delete(ctx context.Context, name string) error
}

// ReadinessWaiter blocks until a server is ready.
type ReadinessWaiter interface {
	Wait(ctx context.Context, name string) (string, error)
}

// CatalogService manages catalog cards.
type CatalogService interface {
	List(ctx context.Context, limit, offset int) ([]domain.Card, error)
	Get(ctx context.Context, id int64) (*domain.Card, error)
	Import(ctx context.Context, ref string) (*domain.Card, error)
	Create(ctx context.Context, in catalog.CreateCardInput) (*domain.Card, error)
	Launch(ctx context.Context, id int64, in catalog.LaunchInput) (*domain.MCPServer, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(context.Context) error

// Dependencies groups everything the router needs.
type Dependencies struct {
	Logger        *slog.Logger
	Servers       MCPServerService
	Waiter        ReadinessWaiter
	Catalog       CatalogService
	Hub           *ws.Hub
	Limiter       RateLimiter
	JWTSecret     string
	SessionCookie string
	HealthChecks  map[string]HealthCheck
	Registerer    prometheus.Registerer
	Gatherer      prometheus.Gatherer
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux           *http.ServeMux
	logger        *slog.Logger
	servers       MCPServerService
	waiter        ReadinessWaiter
	catalog       CatalogService
	hub           *ws.Hub
	upgrader      websocket.Upgrader
	limiter       RateLimiter
	jwtSecret     string
	sessionCookie string
	healthChecks  map[string]HealthCheck

	registerer         prometheus.Registerer
	gatherer           prometheus.Gatherer
	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	activeStreams      *prometheus.GaugeVec
	waitOutcomes       *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitUserWrite = 30
	rateLimitUserRead  = 120
	rateLimitStreams   = 30
	rateLimitImport    = 10
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
	sseRetry           = 3 * time.Second
	maxBodyBytes       = 1 << 20
	defaultCookieName  = "token"
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Dependencies) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		logger:  deps.Logger,
		servers: deps.Servers,
		waiter:  deps.Waiter,
		catalog: deps.Catalog,
		hub:     deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:       deps.Limiter,
		jwtSecret:     deps.JWTSecret,
		sessionCookie: strings.TrimSpace(deps.SessionCookie),
		healthChecks:  deps.HealthChecks,
		registerer:    deps.Registerer,
		gatherer:      deps.Gatherer,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.hub == nil {
		r.hub = ws.NewHub()
	}
	if r.sessionCookie == "" {
		r.sessionCookie = defaultCookieName
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

var (
	serverRates = ratePolicy{read: rateLimitUserRead, write: rateLimitUserWrite, window: rateWindowDefault}
	streamRates = ratePolicy{read: rateLimitStreams, window: rateWindowRealtime}
	cardRates   = ratePolicy{read: rateLimitUserRead, write: rateLimitUserWrite, window: rateWindowDefault}
	importRates = ratePolicy{write: rateLimitImport, window: rateWindowDefault}
)

func (r *Router) register() {
	r.mux.Handle("/metrics", r.metricsHandler())
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/mcpservers", r.audit("/mcpservers", r.handlerAuthRate("mcpservers", serverRates, r.handleMCPServers)))
	r.mux.HandleFunc("/mcpservers/", r.audit("/mcpservers/:name", r.handlerAuthRate("mcpserver", serverRates, r.handleMCPServerSubroutes)))
	r.mux.HandleFunc("/ws/mcpservers/", r.audit("/ws/mcpservers/:name", r.handlerAuthRate("ws", streamRates, r.handleMCPServerWS)))
	r.mux.HandleFunc("/cards", r.audit("/cards", r.handlerAuthRate("cards", cardRates, r.handleCards)))
	r.mux.HandleFunc("/cards/import", r.audit("/cards/import", r.handlerAuthRate("cards_import", importRates, r.handleCardImport)))
	r.mux.HandleFunc("/cards/", r.audit("/cards/:id", r.handlerAuthRate("card", cardRates, r.handleCardSubroutes)))
}

func (r *Router) metricsHandler() http.Handler {
	if r.gatherer != nil {
		return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	names := make([]string, 0, len(r.healthChecks))
	for name := range r.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		err := r.healthChecks[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
			continue
		}
		components[name] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			if info.Admin {
				actor = "admin"
			}
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

// decodeBody reads a JSON request body. An empty body leaves dst untouched.
func decodeBody(req *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
