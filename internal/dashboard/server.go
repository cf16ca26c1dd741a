package dashboard

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/couchcryptid/covid-analytics-service/internal/analytics"
)

// TracingService is the name reported by the tracing middleware.
const TracingService = "covid-analytics-dashboard"

// DefaultCountry is shown when the page first loads.
const DefaultCountry = "United States"

//go:embed templates/*.html
var templates embed.FS

// Charts builds the figures served by the dashboard.
type Charts interface {
	TimeseriesFigure(ctx context.Context, country string) Figure
	ForecastFigure(ctx context.Context, country string, horizon int) Figure
}

// Server serves the dashboard page and its figures.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type pageData struct {
	Title   string
	Country string
	Horizon int
}

type figureQuery struct {
	Country string `form:"country,default=United States"`
	Horizon int    `form:"horizon,default=14" binding:"min=1,max=365"`
}

// NewServer creates the dashboard HTTP server. ready reports whether the API
// is reachable.
func NewServer(addr string, charts Charts, ready sharedobs.ReadinessChecker, logger *slog.Logger) (*Server, error) {
	page, err := template.ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(TracingService))
	router.SetHTMLTemplate(page)

	router.GET("/healthz", gin.WrapF(sharedobs.LivenessHandler()))
	router.GET("/readyz", gin.WrapF(sharedobs.ReadinessHandler(ready)))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", pageData{
			Title:   "COVID-19 Dashboard",
			Country: DefaultCountry,
			Horizon: analytics.DefaultHorizon,
		})
	})
	router.GET("/figures/timeseries", func(c *gin.Context) {
		var q figureQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, charts.TimeseriesFigure(c.Request.Context(), q.Country))
	})
	router.GET("/figures/forecast", func(c *gin.Context) {
		var q figureQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, charts.ForecastFigure(c.Request.Context(), q.Country, q.Horizon))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}, nil
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard server starting", "addr", s.httpServer.Addr)
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
