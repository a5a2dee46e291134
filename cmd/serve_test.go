//go:build !integration

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-intake/internal/events"
)

func newTestServer(t *testing.T) (*jobServer, http.Handler) {
	t.Helper()
	js := newJobServer(context.Background(), events.NewBus(0), jobDefaults{
		Config:    testConfig(),
		Heartbeat: 50 * time.Millisecond,
	})
	return js, js.Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func submitJob(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/jobs", []byte(body))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["job_id"])
	return resp["job_id"]
}

func waitDone(t *testing.T, h http.Handler, id string) jobView {
	t.Helper()
	var v jobView
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/jobs/"+id, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
			return false
		}
		return v.Status != jobRunning
	}, 5*time.Second, 10*time.Millisecond)
	return v
}

const jobBody = `{"today":"2024-01-10","leads":[
  {"name":"DOE, JANE","primary":["614-555-1212"],"policy_blocks":["Special 120.25"]},
  {"name":"LEE, ANN","policy_blocks":["Special 75"]},
  {}
]}`

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestCreateJob_Validation(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "invalid request body"},
		{"no leads", `{"leads":[]}`, "leads or source_url is required"},
		{"bad rules", `{"leads":[{"name":"a"}],"rules":{"gold":{"enabled":true,"mode":"lapsed"}}}`, "unknown badge"},
		{"bad today", `{"leads":[{"name":"a"}],"today":"01/10/2024"}`, "YYYY-MM-DD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/jobs", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	_, h := newTestServer(t)
	id := submitJob(t, h, jobBody)

	v := waitDone(t, h, id)
	assert.Equal(t, jobDone, v.Status)
	assert.Equal(t, 3, v.Leads)
	assert.Equal(t, 2, v.Processed)
	assert.Equal(t, 1, v.Failed)
	assert.Equal(t, "195.25", v.MonthlyPremiumTotal)
	require.NotNil(t, v.FinishedAt)

	rr := do(t, h, http.MethodGet, "/jobs/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "Leads-"+id+".xlsx")

	f, err := xlsx.OpenBinary(rr.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 2)

	rr = do(t, h, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), id)
}

func TestJobEvents_FinishedJobEnds(t *testing.T) {
	_, h := newTestServer(t)
	id := submitJob(t, h, jobBody)
	waitDone(t, h, id)

	rr := do(t, h, http.MethodGet, "/jobs/"+id+"/events", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	sc := bufio.NewScanner(strings.NewReader(rr.Body.String()))
	var eventsSeen []string
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			eventsSeen = append(eventsSeen, name)
		}
	}
	assert.Equal(t, []string{"end"}, eventsSeen)
	assert.Contains(t, rr.Body.String(), `"status":"done"`)
}

func TestJobEvents_StreamEndsWithJob(t *testing.T) {
	_, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	id := submitJob(t, h, `{"leads":[{"name":"a","primary":["614-555-1212"]}]}`)

	resp, err := http.Get(srv.URL + "/jobs/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	var last string
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			last = name
		}
	}
	assert.Equal(t, "end", last)
}

func TestJobNotFound(t *testing.T) {
	_, h := newTestServer(t)
	for _, path := range []string{"/jobs/not-a-uuid", "/jobs/6f1c2a7e-0000-4000-8000-000000000000", "/jobs/6f1c2a7e-0000-4000-8000-000000000000/report"} {
		rr := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestReport_ConflictWhileRunning(t *testing.T) {
	js, h := newTestServer(t)
	id := submitJob(t, h, jobBody)
	waitDone(t, h, id)

	// Force the job back to running to exercise the guard.
	js.mu.Lock()
	for _, j := range js.jobs {
		j.Status = jobRunning
	}
	js.mu.Unlock()

	rr := do(t, h, http.MethodGet, "/jobs/"+id+"/report", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t)
	id := submitJob(t, h, jobBody)
	waitDone(t, h, id)

	rr := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "intake_runner_leads_total")
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateJob_RequestLimit(t *testing.T) {
	leads := `[
  {"name":"DOE, JANE","primary":["614-555-1212"],"extra":["614-555-4000"],"policy_blocks":["Special 120.25"]},
  {"name":"LEE, ANN","extra":["614-555-3333"],"policy_blocks":["Special 75"]},
  {"name":"ROE, RICHARD","policy_blocks":["Special 10"]}
]`
	tests := []struct {
		limit   int
		skipped int
	}{
		{1, 2},
		{-1, 0},
	}
	for _, tt := range tests {
		_, h := newTestServer(t)
		body := `{"today":"2024-01-10","limit":` + strconv.Itoa(tt.limit) + `,"leads":` + leads + `}`
		v := waitDone(t, h, submitJob(t, h, body))
		assert.Equal(t, jobDone, v.Status)
		assert.Equal(t, tt.skipped, v.Skipped, "limit %d", tt.limit)
	}
}
