// Package service wires the warehouse, cache, comment store and models into
// one application context with a method per API operation.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/covid-analytics-service/internal/analytics"
	"github.com/couchcryptid/covid-analytics-service/internal/cache"
	"github.com/couchcryptid/covid-analytics-service/internal/domain"
	"github.com/couchcryptid/covid-analytics-service/internal/observability"
)

// Defaults applied to absent query parameters.
const (
	DefaultCountry = "United States"
	DefaultRegion  = "US"
)

// PublishTimeout bounds the comment event publish that follows an insert.
const PublishTimeout = 2 * time.Second

// Cache namespaces.
const namespaceSQL = "sql"

// TableFetcher runs a warehouse query and returns the full result.
type TableFetcher interface {
	FetchTable(ctx context.Context, query string, args ...any) (*domain.Table, error)
}

// ValueCache is the get-or-compute cache in front of the warehouse.
type ValueCache interface {
	GetOrSet(ctx context.Context, namespace string, key any, ttl time.Duration, produce cache.Producer) (domain.Value, error)
}

// CommentStore persists comments.
type CommentStore interface {
	Insert(ctx context.Context, c domain.Comment) (domain.Comment, error)
	List(ctx context.Context, f domain.CommentFilter) ([]domain.Comment, error)
	Ping(ctx context.Context) error
}

// CommentPublisher announces stored comments.
type CommentPublisher interface {
	PublishComment(ctx context.Context, event domain.CommentEvent) error
}

// Deps are the collaborators of an App. Events may be nil.
type Deps struct {
	Warehouse     TableFetcher
	Cache         ValueCache
	Comments      CommentStore
	Events        CommentPublisher
	TimeseriesTTL time.Duration
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// App is the application context shared by every request.
type App struct {
	warehouse     TableFetcher
	cache         ValueCache
	comments      CommentStore
	events        CommentPublisher
	timeseriesTTL  time.Duration
	publishTimeout time.Duration
	logger         *slog.Logger
	metrics        *observability.Metrics
}

// New creates the application context.
func New(d Deps) *App {
	ttl := d.TimeseriesTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	return &App{
		warehouse:     d.Warehouse,
		cache:         d.Cache,
		comments:      d.Comments,
		events:        d.Events,
		timeseriesTTL:  ttl,
		publishTimeout: PublishTimeout,
		logger:         d.Logger,
		metrics:        d.Metrics,
	}
}

// Timeseries returns daily case totals for country as [{DATE, CASES}],
// served from the cache for the configured TTL. region is accepted for
// compatibility and does not affect the result.
func (a *App) Timeseries(ctx context.Context, country, _ string) (domain.Value, error) {
	key := map[string]any{"endpoint": "timeseries", "country": country}
	return a.cache.GetOrSet(ctx, namespaceSQL, key, a.timeseriesTTL, func(ctx context.Context) (domain.Value, error) {
		t, err := a.warehouse.FetchTable(ctx, timeseriesSQL, country)
		if err != nil {
			return domain.Value{}, err
		}
		return t.Records(), nil
	})
}

// Forecast predicts daily cases for country over horizon days.
func (a *App) Forecast(ctx context.Context, country string, horizon int) (domain.Value, error) {
	t, err := a.warehouse.FetchTable(ctx, timeseriesSQL, country)
	if err != nil {
		return domain.Value{}, err
	}
	series, err := domain.TimeSeriesFromTable(t, "DATE", "CASES")
	if err != nil {
		return domain.Value{}, err
	}

	start := time.Now()
	rows, err := analytics.Forecast(series, horizon)
	a.metrics.AnalyticsDuration.WithLabelValues("sarima").Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Value{}, fmt.Errorf("forecast %s: %w", country, err)
	}
	return domain.ForecastRecords(rows), nil
}

// clusterFeatures maps each model feature to the warehouse column it is read from.
var clusterFeatures = []struct{ name, source string }{
	{"cases_per_100k", "TOTAL_CASES"},
	{"deaths_per_100k", "TOTAL_DEATHS"},
	{"growth_rate", "AVG_DAILY_CASES"},
}

// Clusters groups countries into k clusters by case, death and growth
// figures. Each row gains the feature columns and an integer "cluster".
func (a *App) Clusters(ctx context.Context, k int) (domain.Value, error) {
	t, err := a.warehouse.FetchTable(ctx, clustersSQL)
	if err != nil {
		return domain.Value{}, err
	}

	features := make([][]float64, len(t.Rows))
	for i := range features {
		features[i] = make([]float64, len(clusterFeatures))
	}
	for j, f := range clusterFeatures {
		col := t.ColumnIndex(f.source)
		values := make([]domain.Value, len(t.Rows))
		for i := range t.Rows {
			if col >= 0 {
				values[i] = t.Rows[i][col]
			}
			features[i][j] = t.Float(i, col)
		}
		if err := t.AddColumn(f.name, values); err != nil {
			return domain.Value{}, err
		}
	}

	start := time.Now()
	labels, err := analytics.Cluster(features, k, analytics.DefaultSeed)
	a.metrics.AnalyticsDuration.WithLabelValues("kmeans").Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Value{}, fmt.Errorf("cluster regions: %w", err)
	}

	cells := make([]domain.Value, len(labels))
	for i, l := range labels {
		cells[i] = domain.Int(int64(l))
	}
	if err := t.AddColumn("cluster", cells); err != nil {
		return domain.Value{}, err
	}
	return t.Records(), nil
}

// Pattern returns the surge-detection rows for country unchanged.
func (a *App) Pattern(ctx context.Context, country string) (domain.Value, error) {
	t, err := a.warehouse.FetchTable(ctx, patternSQL, country)
	if err != nil {
		return domain.Value{}, err
	}
	return t.Records(), nil
}

// AddComment stores c and returns its id. Publishing the creation event is
// best effort: the comment is already stored when it runs, so the publish
// ignores request cancellation and is bounded by PublishTimeout.
func (a *App) AddComment(ctx context.Context, c domain.Comment) (string, error) {
	stored, err := a.comments.Insert(ctx, c)
	if err != nil {
		return "", err
	}
	a.metrics.CommentsInserted.Inc()

	if a.events != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.publishTimeout)
		defer cancel()
		if err := a.events.PublishComment(pubCtx, domain.NewCommentEvent(stored)); err != nil {
			a.logger.Warn("comment event not published", "id", stored.ID, "error", err)
			a.metrics.EventsPublished.WithLabelValues("error").Inc()
		} else {
			a.metrics.EventsPublished.WithLabelValues("success").Inc()
		}
	}
	return stored.ID, nil
}

// ListComments returns stored comments matching f.
func (a *App) ListComments(ctx context.Context, f domain.CommentFilter) ([]domain.Comment, error) {
	return a.comments.List(ctx, f)
}

// CheckReadiness reports whether the comment store is reachable. Cache and
// warehouse outages degrade individual requests and do not fail readiness.
func (a *App) CheckReadiness(ctx context.Context) error {
	if err := a.comments.Ping(ctx); err != nil {
		return fmt.Errorf("comment store: %w", err)
	}
	return nil
}
