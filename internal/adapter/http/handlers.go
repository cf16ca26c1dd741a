package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/couchcryptid/covid-analytics-service/internal/analytics"
	"github.com/couchcryptid/covid-analytics-service/internal/domain"
)

// errInvalidBody marks a comment payload that cannot be accepted.
var errInvalidBody = errors.New("invalid comment body")

const maxCommentBody = 64 << 10

type handlers struct {
	api    API
	logger *slog.Logger
}

type countryQuery struct {
	Country string `form:"country,default=United States"`
	Region  string `form:"region,default=US"`
}

type forecastQuery struct {
	Country string `form:"country,default=United States"`
	Horizon int    `form:"horizon,default=14" binding:"min=1,max=365"`
}

type clustersQuery struct {
	K int `form:"k,default=5" binding:"min=1,max=50"`
}

type commentsQuery struct {
	Country string `form:"country"`
	Region  string `form:"region"`
}

func (h *handlers) register(api *gin.RouterGroup) {
	api.GET("/health", h.health)
	api.GET("/timeseries", h.timeseries)
	api.GET("/forecast", h.forecast)
	api.GET("/clusters", h.clusters)
	api.GET("/pattern", h.pattern)
	api.POST("/comments", h.postComment)
	api.GET("/comments", h.listComments)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) timeseries(c *gin.Context) {
	var q countryQuery
	if !h.bindQuery(c, &q) {
		return
	}
	v, err := h.api.Timeseries(c.Request.Context(), q.Country, q.Region)
	h.respond(c, v, err)
}

func (h *handlers) forecast(c *gin.Context) {
	var q forecastQuery
	if !h.bindQuery(c, &q) {
		return
	}
	v, err := h.api.Forecast(c.Request.Context(), q.Country, q.Horizon)
	h.respond(c, v, err)
}

func (h *handlers) clusters(c *gin.Context) {
	var q clustersQuery
	if !h.bindQuery(c, &q) {
		return
	}
	v, err := h.api.Clusters(c.Request.Context(), q.K)
	h.respond(c, v, err)
}

func (h *handlers) pattern(c *gin.Context) {
	var q countryQuery
	if !h.bindQuery(c, &q) {
		return
	}
	v, err := h.api.Pattern(c.Request.Context(), q.Country)
	h.respond(c, v, err)
}

func (h *handlers) postComment(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommentBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}
	if len(body) > maxCommentBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	comment, err := parseComment(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.api.AddComment(c.Request.Context(), comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inserted_id": id})
}

func (h *handlers) listComments(c *gin.Context) {
	var q commentsQuery
	if !h.bindQuery(c, &q) {
		return
	}
	comments, err := h.api.ListComments(c.Request.Context(), domain.CommentFilter{Country: q.Country, Region: q.Region})
	if err != nil {
		h.fail(c, err)
		return
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	c.JSON(http.StatusOK, comments)
}

// parseComment reads the four comment fields from a JSON object. Absent and
// null fields stay nil; a JSON null body is an empty comment.
func parseComment(body []byte) (domain.Comment, error) {
	var v domain.Value
	if err := v.UnmarshalJSON(body); err != nil {
		return domain.Comment{}, fmt.Errorf("%w: malformed JSON", errInvalidBody)
	}
	if v.IsNull() {
		return domain.Comment{}, nil
	}
	if v.Kind() != domain.KindMap {
		return domain.Comment{}, fmt.Errorf("%w: expected a JSON object", errInvalidBody)
	}

	var c domain.Comment
	for _, f := range []struct {
		name string
		dst  **string
	}{
		{"country", &c.Country},
		{"region", &c.Region},
		{"date", &c.Date},
		{"text", &c.Text},
	} {
		field, ok := v.Get(f.name)
		if !ok || field.IsNull() {
			continue
		}
		s, ok := field.AsString()
		if !ok {
			return domain.Comment{}, fmt.Errorf("%w: %s must be a string or null", errInvalidBody, f.name)
		}
		*f.dst = &s
	}
	return c, nil
}

func (h *handlers) bindQuery(c *gin.Context, q any) bool {
	if err := c.ShouldBindQuery(q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters: " + err.Error()})
		return false
	}
	return true
}

// respond writes v with its own encoder so field order and number text are
// preserved exactly.
func (h *handlers) respond(c *gin.Context, v domain.Value, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	b, err := v.MarshalJSON()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", b)
}

// fail maps input errors to 422 and hides everything else behind an error id.
func (h *handlers) fail(c *gin.Context, err error) {
	if errors.Is(err, analytics.ErrInvalidInput) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	id := uuid.NewString()
	h.logger.Error("request failed",
		"error_id", id,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, internalError(id))
}

func internalError(id string) gin.H {
	return gin.H{"error": "internal server error", "error_id": id}
}
