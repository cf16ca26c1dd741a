// Package warehouse runs SQL against the analytics warehouse with one
// connection per call.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver
	"github.com/snowflakedb/gosnowflake"

	"github.com/couchcryptid/covid-analytics-service/internal/config"
	"github.com/couchcryptid/covid-analytics-service/internal/domain"
	"github.com/couchcryptid/covid-analytics-service/internal/observability"
)

// Opener returns a fresh database handle. The client closes it after every call.
type Opener func() (*sql.DB, error)

// Client executes parameterized statements. It holds no connection between calls.
type Client struct {
	open    Opener
	dollar  bool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a client for the configured driver.
func New(cfg config.WarehouseConfig, logger *slog.Logger, metrics *observability.Metrics) (*Client, error) {
	var (
		driver string
		dsn    string
	)
	switch cfg.Driver {
	case config.DriverSnowflake:
		var err error
		dsn, err = gosnowflake.DSN(&gosnowflake.Config{
			Account:   cfg.Account,
			User:      cfg.User,
			Password:  cfg.Password,
			Role:      cfg.Role,
			Warehouse: cfg.Warehouse,
			Database:  cfg.Database,
			Schema:    cfg.Schema,
		})
		if err != nil {
			return nil, fmt.Errorf("build snowflake dsn: %w", err)
		}
		driver = "snowflake"
	case config.DriverPostgres:
		driver, dsn = "postgres", cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported warehouse driver %q", cfg.Driver)
	}

	open := func() (*sql.DB, error) {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		return db, nil
	}
	return NewWithOpener(open, cfg.Driver == config.DriverPostgres, logger, metrics), nil
}

// NewWithOpener creates a client over a custom opener. dollarPlaceholders
// rewrites "?" placeholders to "$1", "$2", ... before execution.
func NewWithOpener(open Opener, dollarPlaceholders bool, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		open:    open,
		dollar:  dollarPlaceholders,
		logger:  logger,
		metrics: metrics,
	}
}

// FetchTable runs query once and materializes every row. Rows and the
// connection are released before returning, on every path.
func (c *Client) FetchTable(ctx context.Context, query string, args ...any) (_ *domain.Table, err error) {
	start := time.Now()
	defer func() { c.observe("fetch", start, err) }()

	db, err := c.open()
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	defer c.closeDB(db)

	rows, err := db.QueryContext(ctx, c.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("warehouse query: %w", err)
	}
	defer rows.Close()

	table, err := scanTable(rows)
	if err != nil {
		return nil, fmt.Errorf("warehouse read: %w", err)
	}
	return table, nil
}

// Execute runs a statement with no result set.
func (c *Client) Execute(ctx context.Context, query string, args ...any) (err error) {
	start := time.Now()
	defer func() { c.observe("execute", start, err) }()

	db, err := c.open()
	if err != nil {
		return fmt.Errorf("open warehouse: %w", err)
	}
	defer c.closeDB(db)

	if _, err := db.ExecContext(ctx, c.bind(query), args...); err != nil {
		return fmt.Errorf("warehouse exec: %w", err)
	}
	return nil
}

// Ping opens a connection and checks it responds.
func (c *Client) Ping(ctx context.Context) error {
	db, err := c.open()
	if err != nil {
		return fmt.Errorf("open warehouse: %w", err)
	}
	defer c.closeDB(db)
	return db.PingContext(ctx)
}

func (c *Client) closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		c.logger.Warn("warehouse close failed", "error", err)
	}
}

func (c *Client) observe(op string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.WarehouseQueries.WithLabelValues(op, outcome).Inc()
	c.metrics.WarehouseDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (c *Client) bind(query string) string {
	if !c.dollar {
		return query
	}
	return rebind(query)
}

// rebind rewrites "?" placeholders outside quoted literals to "$n".
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func scanTable(rows *sql.Rows) (*domain.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	table := &domain.Table{Columns: cols, Rows: [][]domain.Value{}}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]domain.Value, len(cols))
		for i, cell := range raw {
			row[i] = decodeCell(cell, databaseType(types, i))
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

func databaseType(types []*sql.ColumnType, i int) string {
	if i >= len(types) || types[i] == nil {
		return ""
	}
	return strings.ToUpper(types[i].DatabaseTypeName())
}

// numericTypes are column types whose values drivers may hand back as text.
var numericTypes = map[string]bool{
	"FIXED":   true,
	"NUMBER":  true,
	"NUMERIC": true,
	"DECIMAL": true,
	"REAL":    true,
	"FLOAT":   true,
	"FLOAT4":  true,
	"FLOAT8":  true,
	"DOUBLE":  true,
	"INT":     true,
	"INT2":    true,
	"INT4":    true,
	"INT8":    true,
	"INTEGER": true,
	"BIGINT":  true,
}

func decodeCell(cell any, dbType string) domain.Value {
	switch v := cell.(type) {
	case nil:
		return domain.Null()
	case []byte:
		return decodeText(string(v), dbType)
	case string:
		return decodeText(v, dbType)
	case time.Time:
		return domain.Time(v)
	}
	out, err := domain.FromAny(cell)
	if err != nil {
		return domain.String(fmt.Sprint(cell))
	}
	return out
}

func decodeText(s, dbType string) domain.Value {
	if numericTypes[dbType] {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return domain.Int(i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return domain.Float(f)
		}
	}
	return domain.String(s)
}
