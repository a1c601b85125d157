package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/export"
	applog "ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Options configures a Server. Zero values pick defaults.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	ExportCacheSize    int
	ExportCacheTTL     time.Duration
	// Location is the zone export timestamps are shown in.
	Location *time.Location
	Logger   *applog.Logger
	// Checks run on /readyz, keyed by name.
	Checks map[string]ReadinessCheck
}

// exportRenderer renders a ledger as one export format.
type exportRenderer interface {
	Render(ctx context.Context, f export.Format, l core.Ledger) ([]byte, error)
}

type appMetrics struct {
	uptime        time.Time
	expensesAdded int64
	exports       int64
	cacheHits     int64
	cacheMisses   int64
}

// Server is the JSON API over a LedgerStore.
type Server struct {
	http.Server
	store    *services.LedgerStore
	renderer exportRenderer
	logger   *applog.Logger
	events   *applog.StructuredLogger
	checks   map[string]ReadinessCheck

	exportCache  *cache.LRUCache[[]byte]
	exportFlight singleflight.Group
	cacheManager *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	appMetrics   appMetrics
	stopCleanup  context.CancelFunc
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// Call Shutdown to stop its background goroutines.
func NewServer(store *services.LedgerStore, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ExportCacheSize <= 0 {
		opts.ExportCacheSize = 64
	}
	if opts.ExportCacheTTL <= 0 {
		opts.ExportCacheTTL = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Level: slog.LevelInfo, Component: applog.ComponentHTTP})
	}

	s := &Server{
		store:            store,
		renderer:         export.NewRenderer(opts.Location),
		logger:           opts.Logger,
		events:           applog.NewStructuredLogger(opts.Logger),
		checks:           opts.Checks,
		exportCache:      cache.NewLRUCache[[]byte](opts.ExportCacheSize, opts.ExportCacheTTL),
		cacheManager:     cache.NewManager(opts.Logger.Slog()),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
		appMetrics:       appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, opts.Logger.Slog())
	s.cacheManager.Register(s.exportCache)

	ctx, cancel := context.WithCancel(context.Background())
	s.stopCleanup = cancel
	go s.cacheManager.Run(ctx, opts.ExportCacheTTL)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			"client_ip", s.securityDetector.ExtractClientIP(r),
			"method", r.Method,
			"path", r.URL.Path)
		TooManyRequestsError().Write(w)
	})
	// Reads are cheap snapshot lookups; writes and exports are limited.
	write := func(h http.HandlerFunc) http.Handler { return limited(h) }

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /ledgers", s.handleListLedgers)
	mux.Handle("POST /ledgers", write(s.handleCreateLedger))
	mux.HandleFunc("GET /ledgers/{id}", s.handleGetLedger)
	mux.Handle("PUT /ledgers/{id}", write(s.handleUpdateLedger))
	mux.Handle("DELETE /ledgers/{id}", write(s.handleDeleteLedger))

	mux.Handle("POST /ledgers/{id}/expenses", write(s.handleCreateExpense))
	mux.Handle("PUT /ledgers/{id}/expenses/{eid}", write(s.handleUpdateExpense))
	mux.Handle("DELETE /ledgers/{id}/expenses/{eid}", write(s.handleDeleteExpense))

	mux.Handle("GET /ledgers/{id}/export/{format}", write(s.handleExport))

	mux.HandleFunc("GET /selection", s.handleGetSelection)
	mux.Handle("PUT /selection", write(s.handlePutSelection))

	var h http.Handler = jsonFallback(mux)
	h = applog.Middleware(s.logger, trace.FromRequest)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.securityDetector.Middleware(s.logger.Slog())(h)
	h = s.traceMiddleware.Middleware(h)
	return h
}

// jsonFallback serves mux, rewriting the plain-text bodies of the mux's own
// 404 and 405 answers as JSON. Status and Allow header are left as the mux
// set them.
func jsonFallback(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := mux.Handler(r); pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(&fallbackWriter{ResponseWriter: w}, r)
	})
}

type fallbackWriter struct {
	http.ResponseWriter
	replaced bool
}

func (w *fallbackWriter) WriteHeader(code int) {
	switch code {
	case http.StatusNotFound:
		w.replaced = true
		NotFoundError("no such endpoint").Write(w.ResponseWriter)
	case http.StatusMethodNotAllowed:
		w.replaced = true
		ErrorResponse(code, "method not allowed").Write(w.ResponseWriter)
	default:
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *fallbackWriter) Write(b []byte) (int, error) {
	if w.replaced {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.stopCleanup()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) recordCache(hit bool) {
	if hit {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
	} else {
		atomic.AddInt64(&s.appMetrics.cacheMisses, 1)
	}
}
