package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otaviobraga/registry-harvester/internal/jobqueue"
	"github.com/otaviobraga/registry-harvester/internal/report"
	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

type stubResults struct {
	rows []jobqueue.StoredResult
	err  error
}

func (s *stubResults) Results(_ context.Context, limit int) ([]jobqueue.StoredResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func newTestServer(tracker *report.Tracker, results ResultReader) *httptest.Server {
	srv := httptest.NewServer(NewServer(tracker, results, nil).Handler())
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(report.NewTracker(), &stubResults{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(report.NewTracker(), &stubResults{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCurrentRunNotFoundBeforeStart(t *testing.T) {
	srv := newTestServer(report.NewTracker(), &stubResults{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/runs/current")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCurrentRunSnapshot(t *testing.T) {
	tracker := report.NewTracker()
	tracker.Start(3)
	tracker.Observe(scraper.Outcome{JobID: "11111111111", Success: true})

	srv := newTestServer(tracker, &stubResults{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/runs/current")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Active bool          `json:"active"`
		Report report.Report `json:"report"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Active)
	assert.Equal(t, 3, body.Report.Total)
	assert.Equal(t, 1, body.Report.Processed)
}

func TestRecentResults(t *testing.T) {
	rows := []jobqueue.StoredResult{
		{JobID: "11111111111", Success: true},
		{JobID: "22222222222", Success: false, Message: "malformed page"},
	}
	srv := newTestServer(report.NewTracker(), &stubResults{rows: rows})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/results?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []jobqueue.StoredResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "11111111111", got[0].JobID)
}

func TestRecentResultsInvalidLimit(t *testing.T) {
	srv := newTestServer(report.NewTracker(), &stubResults{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/results?limit=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecentResultsStoreDown(t *testing.T) {
	srv := newTestServer(report.NewTracker(), &stubResults{err: errors.New("connection refused")})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/results")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestRecentResultsEmptyIsJSONArray(t *testing.T) {
	srv := newTestServer(report.NewTracker(), &stubResults{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/results")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []jobqueue.StoredResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
