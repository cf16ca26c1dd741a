package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/couchcryptid/covid-analytics-service/internal/domain"
	"github.com/couchcryptid/covid-analytics-service/internal/observability"
)

// TracingService is the name reported by the tracing middleware.
const TracingService = "covid-analytics-api"

// API is the application behaviour served under /api.
type API interface {
	Timeseries(ctx context.Context, country, region string) (domain.Value, error)
	Forecast(ctx context.Context, country string, horizon int) (domain.Value, error)
	Clusters(ctx context.Context, k int) (domain.Value, error)
	Pattern(ctx context.Context, country string) (domain.Value, error)
	AddComment(ctx context.Context, c domain.Comment) (string, error)
	ListComments(ctx context.Context, f domain.CommentFilter) ([]domain.Comment, error)
}

// Server exposes the /api routes plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server routing /api to api and /readyz to ready.
func NewServer(addr string, api API, ready sharedobs.ReadinessChecker, logger *slog.Logger, metrics *observability.Metrics) *Server {
	router := gin.New()
	router.Use(recovery(logger))
	router.Use(otelgin.Middleware(TracingService))
	router.Use(requestMetrics(metrics, logger))
	router.Use(cors())

	router.GET("/healthz", gin.WrapF(sharedobs.LivenessHandler()))
	router.GET("/readyz", gin.WrapF(sharedobs.ReadinessHandler(ready)))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handlers{api: api, logger: logger}
	h.register(router.Group("/api"))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
