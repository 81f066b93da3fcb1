package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pythagorean.app/linkchat/internal/metrics"
)

type RouterOptions struct {
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	RateLimitRPS float64 // per client address, 0 disables limiting
}

func NewRouter(apiHandler *APIHandler, opts RouterOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = apiHandler.metrics
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(log.Named("http"), m))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Group(func(r chi.Router) {
		if opts.RateLimitRPS > 0 {
			r.Use(rateLimit(&limiterPool{rps: opts.RateLimitRPS, burst: int(2*opts.RateLimitRPS) + 1}))
		}

		r.Get("/", apiHandler.RootHandler)
		r.Get("/health", apiHandler.HealthHandler)

		// Documents and collections
		r.Post("/collection/create", apiHandler.CreateCollectionHandler)
		r.Get("/collection/{collectionID}", apiHandler.GetCollectionHandler)
		r.Post("/upload", apiHandler.UploadHandler)
		r.Get("/document/{linkID}", apiHandler.GetDocumentHandler)
		r.Get("/document/{linkID}/activity", apiHandler.ActivityHandler)

		r.Post("/query", apiHandler.QueryHandler)

		// Collaboration
		r.Post("/reaction/add", apiHandler.AddReactionHandler)
		r.Get("/reaction/{conversationID}/{messageIndex}", apiHandler.GetReactionsHandler)
		r.Post("/comment/add", apiHandler.AddCommentHandler)
		r.Get("/comment/{conversationID}/{messageIndex}", apiHandler.GetCommentsHandler)
		r.Get("/conversation/{conversationID}", apiHandler.GetConversationHandler)
		r.Get("/conversation/{conversationID}/share", apiHandler.ShareConversationHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}

// requestLogger logs every request through zap and records it in m.
func requestLogger(log *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			m.ObserveRequest(r.Method, route, status, elapsed)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if status >= http.StatusInternalServerError {
				log.Warn("request", fields...)
			} else {
				log.Info("request", fields...)
			}
		})
	}
}

type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

func rateLimit(pool *limiterPool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				key = host
			}
			if !pool.get(key).Allow() {
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
