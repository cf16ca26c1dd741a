// Package dashboard renders the API's time series and forecasts as charts.
// Figures are Plotly-shaped JSON built from API responses; a failed fetch
// degrades to an empty figure titled with the error.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/covid-analytics-service/internal/analytics"
)

const (
	previewBytes = 200
	maxBodyBytes = 16 << 20
)

// Figure is a Plotly figure.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one line series.
type Trace struct {
	X    []string   `json:"x"`
	Y    []*float64 `json:"y"`
	Type string     `json:"type"`
	Mode string     `json:"mode"`
	Name string     `json:"name"`
	Line *Line      `json:"line,omitempty"`
}

// Line styles a trace.
type Line struct {
	Dash string `json:"dash"`
}

// Layout carries the figure title.
type Layout struct {
	Title string `json:"title"`
}

// Client polls the analytics API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an API client. baseURL includes the /api prefix.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type timeseriesRow struct {
	Date  string   `json:"DATE"`
	Cases *float64 `json:"CASES"`
}

type forecastRow struct {
	Date     string   `json:"DATE"`
	Forecast *float64 `json:"forecast"`
	Lower    *float64 `json:"lower"`
	Upper    *float64 `json:"upper"`
}

// TimeseriesFigure charts daily cases for country.
func (c *Client) TimeseriesFigure(ctx context.Context, country string) Figure {
	var rows []timeseriesRow
	if err := c.get(ctx, "/timeseries", url.Values{"country": {country}}, &rows); err != nil {
		return c.errorFigure("timeseries", err)
	}

	tr := Trace{Type: "scatter", Mode: "lines", Name: "Cases", X: []string{}, Y: []*float64{}}
	for _, r := range rows {
		tr.X = append(tr.X, r.Date)
		tr.Y = append(tr.Y, r.Cases)
	}
	return Figure{
		Data:   []Trace{tr},
		Layout: Layout{Title: "Daily Cases - " + country},
	}
}

// ForecastFigure charts the forecast and its interval bounds for country.
func (c *Client) ForecastFigure(ctx context.Context, country string, horizon int) Figure {
	if horizon <= 0 {
		horizon = analytics.DefaultHorizon
	}
	params := url.Values{"country": {country}, "horizon": {strconv.Itoa(horizon)}}

	var rows []forecastRow
	if err := c.get(ctx, "/forecast", params, &rows); err != nil {
		return c.errorFigure("forecast", err)
	}

	x := make([]string, len(rows))
	mean := make([]*float64, len(rows))
	lower := make([]*float64, len(rows))
	upper := make([]*float64, len(rows))
	for i, r := range rows {
		x[i], mean[i], lower[i], upper[i] = r.Date, r.Forecast, r.Lower, r.Upper
	}
	dotted := &Line{Dash: "dot"}
	return Figure{
		Data: []Trace{
			{X: x, Y: mean, Type: "scatter", Mode: "lines", Name: "Forecast"},
			{X: x, Y: lower, Type: "scatter", Mode: "lines", Name: "Lower", Line: dotted},
			{X: x, Y: upper, Type: "scatter", Mode: "lines", Name: "Upper", Line: dotted},
		},
		Layout: Layout{Title: "Forecast - " + country},
	}
}

// fetchError carries the start of the response body for display.
type fetchError struct {
	err     error
	preview string
}

func (e *fetchError) Error() string {
	if e.preview == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%v | body: %s", e.err, e.preview)
}

func (e *fetchError) Unwrap() error { return e.err }

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &fetchError{err: fmt.Errorf("read %s: %w", path, err), preview: preview(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &fetchError{err: fmt.Errorf("API error: status %d", resp.StatusCode), preview: preview(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &fetchError{err: fmt.Errorf("decode %s: %w", path, err), preview: preview(body)}
	}
	return nil
}

func (c *Client) errorFigure(chart string, err error) Figure {
	c.logger.Warn("chart unavailable", "chart", chart, "error", err)
	return Figure{
		Data:   []Trace{},
		Layout: Layout{Title: "Error: " + err.Error()},
	}
}

func preview(body []byte) string {
	if len(body) > previewBytes {
		body = body[:previewBytes]
	}
	return string(body)
}

// CheckReadiness reports whether the API answers its health route.
func (c *Client) CheckReadiness(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", url.Values{}, &status); err != nil {
		return err
	}
	if status.Status != "ok" {
		return fmt.Errorf("API status %q", status.Status)
	}
	return nil
}
