// Command validate runs end-to-end smoke checks against a running analytics
// API: route shapes, forecast interval bounds, cluster labels, cache
// stability and a comment round trip.
//
// Usage:
//
//	go run ./cmd/validate -api-base http://localhost:8000/api -country Italy
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-analytics-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type checker struct {
	base    string
	country string
	horizon int
	k       int
	client  *http.Client
	clock   clockwork.Clock
}

func main() {
	apiBase := flag.String("api-base", "http://localhost:8000/api", "API base URL including the /api prefix")
	country := flag.String("country", "Italy", "country used for per-country routes")
	horizon := flag.Int("horizon", 14, "forecast horizon in days")
	k := flag.Int("k", 5, "number of clusters")
	timeout := flag.Duration("timeout", 60*time.Second, "per-request timeout")
	flag.Parse()

	c := &checker{
		base:    *apiBase,
		country: *country,
		horizon: *horizon,
		k:       *k,
		client:  &http.Client{Timeout: *timeout},
		clock:   clockwork.NewRealClock(),
	}
	if code := c.run(os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func (c *checker) run(out io.Writer) int {
	fmt.Fprintln(out, "=== COVID Analytics API Validation ===")
	fmt.Fprintln(out)

	phases := []*phase{
		c.validateHealth(),
		c.validateTimeseries(),
		c.validateForecast(),
		c.validateClusters(),
		c.validateComments(),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phases ──

func (c *checker) validateHealth() *phase {
	p := &phase{name: "Health"}
	v, _, err := c.get("/health", nil)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if s, _ := field(v, "status").AsString(); s != "ok" {
		p.errorf("status = %q, want ok", s)
	}
	return p
}

func (c *checker) validateTimeseries() *phase {
	p := &phase{name: "Timeseries shape and cache stability"}
	params := url.Values{"country": {c.country}}

	v, first, err := c.get("/timeseries", params)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if v.Kind() != domain.KindList {
		p.errorf("expected an array, got %s", v.Kind())
		return p
	}

	var prev domain.Date
	for i, row := range v.Items() {
		if keys := row.Keys(); len(keys) != 2 || keys[0] != "DATE" || keys[1] != "CASES" {
			p.errorf("row %d: keys %v, want [DATE CASES]", i, keys)
			continue
		}
		raw, _ := field(row, "DATE").AsString()
		d, err := domain.ParseDate(raw)
		if err != nil {
			p.errorf("row %d: %v", i, err)
			continue
		}
		if i > 0 && !prev.Before(d) {
			p.errorf("row %d: date %s not after %s", i, d, prev)
		}
		prev = d
	}

	_, second, err := c.get("/timeseries", params)
	if err != nil {
		p.errorf("second call: %v", err)
		return p
	}
	if !bytes.Equal(first, second) {
		p.errorf("second call within the TTL returned different bytes")
	}
	return p
}

func (c *checker) validateForecast() *phase {
	p := &phase{name: "Forecast rows and interval bounds"}
	v, _, err := c.get("/forecast", url.Values{"country": {c.country}, "horizon": {strconv.Itoa(c.horizon)}})
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if v.Len() != c.horizon {
		p.errorf("rows = %d, want %d", v.Len(), c.horizon)
	}
	for i, row := range v.Items() {
		mean, ok1 := field(row, "forecast").AsFloat()
		lower, ok2 := field(row, "lower").AsFloat()
		upper, ok3 := field(row, "upper").AsFloat()
		if !ok1 || !ok2 || !ok3 {
			p.errorf("row %d: missing forecast/lower/upper", i)
			continue
		}
		if lower > mean || mean > upper {
			p.errorf("row %d: bounds violated: %g <= %g <= %g", i, lower, mean, upper)
		}
	}
	return p
}

func (c *checker) validateClusters() *phase {
	p := &phase{name: "Cluster labels"}
	v, _, err := c.get("/clusters", url.Values{"k": {strconv.Itoa(c.k)}})
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for i, row := range v.Items() {
		label, ok := field(row, "cluster").AsInt()
		if !ok {
			p.errorf("row %d: cluster is not an integer", i)
			continue
		}
		if label < 0 || label >= int64(c.k) {
			p.errorf("row %d: cluster %d outside [0,%d)", i, label, c.k)
		}
	}
	return p
}

func (c *checker) validateComments() *phase {
	p := &phase{name: "Comment round trip"}
	text := "validate " + c.clock.Now().UTC().Format(time.RFC3339Nano)
	body, err := json.Marshal(map[string]string{"country": c.country, "text": text})
	if err != nil {
		p.errorf("encode: %v", err)
		return p
	}

	resp, err := c.client.Post(c.base+"/comments", "application/json", bytes.NewReader(body))
	if err != nil {
		p.errorf("post: %v", err)
		return p
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.errorf("post: status %d: %s", resp.StatusCode, raw)
		return p
	}
	var inserted struct {
		ID string `json:"inserted_id"`
	}
	if err := json.Unmarshal(raw, &inserted); err != nil || inserted.ID == "" {
		p.errorf("post: no inserted_id in %s", raw)
		return p
	}

	v, _, err := c.get("/comments", url.Values{"country": {c.country}})
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	for _, doc := range v.Items() {
		if id, _ := field(doc, "_id").AsString(); id == inserted.ID {
			if got, _ := field(doc, "text").AsString(); got != text {
				p.errorf("text = %q, want %q", got, text)
			}
			return p
		}
	}
	p.errorf("inserted comment %s not listed", inserted.ID)
	return p
}

// ── HTTP helpers ──

func (c *checker) get(path string, params url.Values) (domain.Value, []byte, error) {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	resp, err := c.client.Get(u)
	if err != nil {
		return domain.Value{}, nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Value{}, nil, fmt.Errorf("GET %s: read: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Value{}, body, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}

	var v domain.Value
	if err := v.UnmarshalJSON(body); err != nil {
		return domain.Value{}, body, fmt.Errorf("GET %s: %w", path, err)
	}
	return v, body, nil
}

func field(v domain.Value, key string) domain.Value {
	f, _ := v.Get(key)
	return f
}
