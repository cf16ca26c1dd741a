package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves canned responses for every route the checker visits.
type fakeAPI struct {
	mu         sync.Mutex
	calls      int
	comments   []map[string]string
	badBounds  bool
	unstableTS bool
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("GET /api/timeseries", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.calls++
		n := f.calls
		f.mu.Unlock()
		cases := 3
		if f.unstableTS {
			cases = n
		}
		fmt.Fprintf(w, `[{"DATE":"2020-03-01","CASES":1},{"DATE":"2020-03-02","CASES":%d}]`, cases)
	})
	mux.HandleFunc("GET /api/forecast", func(w http.ResponseWriter, _ *http.Request) {
		lower := 1.0
		if f.badBounds {
			lower = 9
		}
		rows := make([]string, 2)
		for i := range rows {
			rows[i] = fmt.Sprintf(`{"DATE":"2020-05-0%d","forecast":5,"lower":%g,"upper":7}`, i+1, lower)
		}
		_, _ = io.WriteString(w, "["+strings.Join(rows, ",")+"]")
	})
	mux.HandleFunc("GET /api/clusters", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"COUNTRY_REGION":"Italy","cluster":0},{"COUNTRY_REGION":"Spain","cluster":1}]`)
	})
	mux.HandleFunc("POST /api/comments", func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]string
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		doc["_id"] = fmt.Sprintf("%024d", len(f.comments)+1)
		f.comments = append(f.comments, doc)
		f.mu.Unlock()
		fmt.Fprintf(w, `{"inserted_id":%q}`, doc["_id"])
	})
	mux.HandleFunc("GET /api/comments", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(f.comments)
	})
	return mux
}

func newChecker(t *testing.T, api *fakeAPI) *checker {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return &checker{
		base:    srv.URL + "/api",
		country: "Italy",
		horizon: 2,
		k:       2,
		client:  &http.Client{Timeout: 5 * time.Second},
		clock:   clockwork.NewFakeClockAt(time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)),
	}
}

func TestRun_AllPass(t *testing.T) {
	api := &fakeAPI{}
	var out bytes.Buffer

	code := newChecker(t, api).run(&out)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "All validations passed.")
	require.Len(t, api.comments, 1)
	assert.Equal(t, "validate 2024-04-27T06:00:00Z", api.comments[0]["text"])
}

func TestRun_DetectsBoundsViolation(t *testing.T) {
	var out bytes.Buffer
	code := newChecker(t, &fakeAPI{badBounds: true}).run(&out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "bounds violated")
}

func TestRun_DetectsUnstableCache(t *testing.T) {
	var out bytes.Buffer
	code := newChecker(t, &fakeAPI{unstableTS: true}).run(&out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "different bytes")
}

func TestRun_WrongClusterCount(t *testing.T) {
	c := newChecker(t, &fakeAPI{})
	c.k = 1

	p := c.validateClusters()
	assert.False(t, p.passed())
	assert.Contains(t, p.errors[0], "outside [0,1)")
}

func TestRun_APIDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := &checker{base: srv.URL, country: "Italy", horizon: 1, k: 1, client: &http.Client{Timeout: time.Second}, clock: clockwork.NewFakeClock()}
	var out bytes.Buffer
	assert.Equal(t, 1, c.run(&out))
	assert.Contains(t, out.String(), "Validation FAILED.")
}
