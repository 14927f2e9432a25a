package jobqueue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Prefer string
	Body   string
}

func newQueueServer(t *testing.T, handler http.HandlerFunc) (*RESTProvider, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Prefer: r.Header.Get("Prefer"),
			Body:   string(body),
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	p := NewREST(RESTConfig{BaseURL: srv.URL, APIKey: "test-key"}, nil)
	return p, &requests
}

func TestRESTFetchPendingDrainsPriorityFirst(t *testing.T) {
	p, requests := newQueueServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/jobs_priority":
			_ = json.NewEncoder(w).Encode([]jobRow{{ID: "99999999999"}})
		case "/jobs":
			_ = json.NewEncoder(w).Encode([]jobRow{{ID: "11111111111"}, {ID: "22222222222"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	jobs, err := p.FetchPending(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.True(t, jobs[0].Priority)
	assert.Equal(t, "99999999999", jobs[0].ID)
	assert.False(t, jobs[1].Priority)

	require.Len(t, *requests, 2)
	assert.Equal(t, "/jobs_priority", (*requests)[0].Path)
	assert.Contains(t, (*requests)[0].Query, "status=eq.pending")
	assert.Contains(t, (*requests)[1].Query, "limit=2")
}

func TestRESTFetchPendingEmpty(t *testing.T) {
	p, _ := newQueueServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})

	_, err := p.FetchPending(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNoPendingJobs)
}

func TestRESTClaimSplitsTables(t *testing.T) {
	p, requests := newQueueServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	jobs := []Job{
		{ID: "99999999999", Priority: true},
		{ID: "11111111111"},
		{ID: "22222222222"},
	}
	require.NoError(t, p.Claim(context.Background(), jobs, "worker-1"))

	require.Len(t, *requests, 2)
	first, second := (*requests)[0], (*requests)[1]
	assert.Equal(t, http.MethodPatch, first.Method)
	assert.Equal(t, "/jobs_priority", first.Path)
	assert.Contains(t, first.Query, "id=in.%2899999999999%29")
	assert.Contains(t, first.Body, `"status":"p"`)
	assert.Contains(t, first.Body, `"processing_by":"worker-1"`)
	assert.Equal(t, "/jobs", second.Path)
	assert.Contains(t, second.Query, "11111111111%2C22222222222")
}

func TestRESTMarkSuccess(t *testing.T) {
	p, requests := newQueueServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, p.MarkSuccess(context.Background(), []Job{{ID: "11111111111"}}))
	require.Len(t, *requests, 1)
	assert.Contains(t, (*requests)[0].Body, `"status":"s"`)
}

func TestRESTMarkErrorServerFailure(t *testing.T) {
	p, _ := newQueueServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := p.MarkError(context.Background(), []Job{{ID: "11111111111"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestRESTUpsertResultsSendsMergeDuplicates(t *testing.T) {
	p, requests := newQueueServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	rec := scraper.Record{CadastralNumber: "11111111111", OwnerName: "MARIA"}
	outcomes := []scraper.Outcome{{JobID: "11111111111", Success: true, Record: &rec}}
	require.NoError(t, p.UpsertResults(context.Background(), outcomes))

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "/results", req.Path)
	assert.Equal(t, "resolution=merge-duplicates", req.Prefer)
	assert.Contains(t, req.Body, `"job_id":"11111111111"`)
	assert.Contains(t, req.Body, `"owner_name":"MARIA"`)
}

func TestRESTUpsertResultsEmptyIsNoop(t *testing.T) {
	p, requests := newQueueServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	require.NoError(t, p.UpsertResults(context.Background(), nil))
	assert.Empty(t, *requests)
}

func TestRESTBatchLifecycle(t *testing.T) {
	p, requests := newQueueServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`[{"id":"batch-42"}]`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	id, err := p.CreateBatch(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, "batch-42", id)

	require.NoError(t, p.UpdateBatchProgress(context.Background(), id, 10, 8, 2))
	require.NoError(t, p.CompleteBatch(context.Background(), id))

	require.Len(t, *requests, 3)
	assert.Equal(t, "return=representation", (*requests)[0].Prefer)
	assert.Contains(t, (*requests)[1].Body, `"processed":10`)
	assert.Contains(t, (*requests)[2].Query, "id=eq.batch-42")
	assert.Contains(t, (*requests)[2].Body, "completed_at")
}

func TestRESTResults(t *testing.T) {
	p, _ := newQueueServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"job_id":"11111111111","success":true,"record":{"owner_name":"MARIA"}}]`))
	})

	results, err := p.Results(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "MARIA", results[0].Record.OwnerName)
}
