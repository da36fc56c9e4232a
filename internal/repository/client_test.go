package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Benny93/minet-go/internal/mine"
)

// fakeMINE is an in-memory MINE JSON-RPC service.
type fakeMINE struct {
	compounds map[string]*mine.Compound
	reactions map[string]*mine.Reaction

	// failures makes the first requests answer 503.
	failures atomic.Int32
	// faulty ids answer with a JSON-RPC error.
	faulty map[string]bool

	calls    atomic.Int32
	mu       sync.Mutex
	requests []rpcRequest
}

func newFakeMINE() *fakeMINE {
	return &fakeMINE{
		compounds: map[string]*mine.Compound{
			"Caaa": {ID: "Caaa", Formula: mine.String("C6H12O6"), DBLinks: map[string][]string{mine.KEGG: {"C00031", "C00267"}}},
			"Cbbb": {ID: "Cbbb", Formula: mine.String("C3H4O3"), DBLinks: map[string][]string{mine.KEGG: {"C00022"}}},
		},
		reactions: map[string]*mine.Reaction{
			"Rccc": {ID: "Rccc", Reactants: []mine.Participant{{Coefficient: 1, ID: "Caaa"}}, Products: []mine.Participant{{Coefficient: 2, ID: "Cbbb"}}},
		},
		faulty: map[string]bool{},
	}
}

func (f *fakeMINE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params"`
		Version string            `json:"version"`
		ID      string            `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Params) != 2 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var db string
	_ = json.Unmarshal(req.Params[0], &db)
	f.mu.Lock()
	f.requests = append(f.requests, rpcRequest{Method: req.Method, Params: []any{db}, Version: req.Version, ID: req.ID})
	f.mu.Unlock()

	var result any
	switch req.Method {
	case "mineDatabaseServices.get_comps", "mineDatabaseServices.get_rxns":
		var ids []string
		_ = json.Unmarshal(req.Params[1], &ids)
		out := make([]any, 0, len(ids))
		for _, id := range ids {
			if f.faulty[id] {
				writeRPCError(w)
				return
			}
			if c, ok := f.compounds[id]; ok && req.Method == "mineDatabaseServices.get_comps" {
				out = append(out, c)
			} else if rxn, ok := f.reactions[id]; ok && req.Method == "mineDatabaseServices.get_rxns" {
				out = append(out, rxn)
			} else {
				out = append(out, nil)
			}
		}
		result = out
	case "mineDatabaseServices.quick_search":
		var query string
		_ = json.Unmarshal(req.Params[1], &query)
		if f.faulty[query] {
			writeRPCError(w)
			return
		}
		hits := []*mine.Compound{}
		for _, c := range f.compounds {
			for _, k := range c.KEGGIDs() {
				if k == query {
					hits = append(hits, &mine.Compound{ID: c.ID})
				}
			}
		}
		result = hits
	default:
		writeRPCError(w)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"version": "1.1", "result": []any{result}})
}

func (f *fakeMINE) recorded() []rpcRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rpcRequest(nil), f.requests...)
}

func writeRPCError(w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"version": "1.1",
		"error":   map[string]any{"name": "JSONRPCError", "code": -32500, "message": "boom"},
	})
}

func testClient(t *testing.T, f *fakeMINE, attempts int, log *zap.Logger) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		URL:      srv.URL,
		Database: "testdb",
		Retry:    RetryPolicy{MaxAttempts: attempts, NotifyEvery: 2},
		Logger:   log,
	})
}

func TestClient_GetCompound(t *testing.T) {
	t.Parallel()

	t.Run("Found", func(t *testing.T) {
		t.Parallel()
		f := newFakeMINE()
		c := testClient(t, f, 3, nil)

		comp, err := c.GetCompound(context.Background(), "Caaa")

		require.NoError(t, err)
		assert.Equal(t, "Caaa", comp.ID)
		assert.Equal(t, []string{"C00031", "C00267"}, comp.KEGGIDs())

		requests := f.recorded()
		require.Len(t, requests, 1)
		assert.Equal(t, "mineDatabaseServices.get_comps", requests[0].Method)
		assert.Equal(t, "1.1", requests[0].Version)
		assert.Equal(t, []any{"testdb"}, requests[0].Params)
		assert.NotEmpty(t, requests[0].ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()
		f := newFakeMINE()
		c := testClient(t, f, 3, nil)

		_, err := c.GetCompound(context.Background(), "Cmissing")

		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int32(1), f.calls.Load())
	})

	t.Run("RetriesTransientFailures", func(t *testing.T) {
		t.Parallel()
		f := newFakeMINE()
		f.failures.Store(3)
		core, logs := observer.New(zap.WarnLevel)
		c := testClient(t, f, 5, zap.New(core))

		comp, err := c.GetCompound(context.Background(), "Cbbb")

		require.NoError(t, err)
		assert.Equal(t, "Cbbb", comp.ID)
		assert.Equal(t, int32(4), f.calls.Load())
		assert.Equal(t, 1, logs.FilterMessage("MINE server not responding, retrying").Len())
	})

	t.Run("GivesUp", func(t *testing.T) {
		t.Parallel()
		f := newFakeMINE()
		f.failures.Store(100)
		c := testClient(t, f, 3, nil)

		_, err := c.GetCompound(context.Background(), "Cbbb")

		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrServer))
		assert.Equal(t, int32(3), f.calls.Load())
	})

	t.Run("ServerErrorIsFinal", func(t *testing.T) {
		t.Parallel()
		f := newFakeMINE()
		f.faulty["Cbad"] = true
		c := testClient(t, f, 5, nil)

		_, err := c.GetCompound(context.Background(), "Cbad")

		require.ErrorIs(t, err, ErrServer)
		assert.Equal(t, int32(1), f.calls.Load())
	})
}

func TestClient_GetReaction(t *testing.T) {
	t.Parallel()

	f := newFakeMINE()
	c := testClient(t, f, 1, nil)

	rxn, err := c.GetReaction(context.Background(), "Rccc")
	require.NoError(t, err)
	assert.Equal(t, []string{"Caaa"}, rxn.ReactantIDs())
	assert.Equal(t, 2, rxn.Products[0].Coefficient)

	_, err = c.GetReaction(context.Background(), "Caaa")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_QuickSearch(t *testing.T) {
	t.Parallel()

	f := newFakeMINE()
	f.faulty["C99999"] = true
	c := testClient(t, f, 1, nil)

	hits, err := c.QuickSearch(context.Background(), "C00022")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Cbbb", hits[0].ID)

	hits, err = c.QuickSearch(context.Background(), "C00001")
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = c.QuickSearch(context.Background(), "C99999")
	assert.ErrorIs(t, err, ErrServer)
}

func TestClient_Cancelled(t *testing.T) {
	t.Parallel()

	f := newFakeMINE()
	f.failures.Store(100)
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		URL:   srv.URL,
		Retry: RetryPolicy{MaxAttempts: 36, ShortDelay: time.Hour, LongDelay: time.Hour, ShortAttempts: 12},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.GetCompound(ctx, "Caaa")

	require.Error(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestSteppedBackOff(t *testing.T) {
	t.Parallel()

	b := &steppedBackOff{short: time.Second, long: time.Minute, shortAttempts: 2}

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, time.Minute, b.NextBackOff())
	assert.Equal(t, time.Minute, b.NextBackOff())

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestDefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	bo := p.newBackOff()

	var waits []time.Duration
	for {
		d := bo.NextBackOff()
		if d < 0 {
			break
		}
		waits = append(waits, d)
	}

	require.Len(t, waits, 35)
	assert.Equal(t, 10*time.Second, waits[11])
	assert.Equal(t, 30*time.Second, waits[12])
}
