package kegg

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newKEGGServer serves r01393, c00168 and a minimal C00266 and C00011, plus
// the compound and reaction lists. failures makes the first requests for
// C00168 answer 503.
func newKEGGServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	var failed atomic.Int32
	entries := map[string]string{
		"/get/rn:R01393":  r01393,
		"/get/cpd:C00168": c00168,
		"/get/cpd:C00266": "ENTRY       C00266                      Compound\nFORMULA     C2H4O2\nREACTION    R01393\n///\n",
		"/get/cpd:C00011": "ENTRY       C00011                      Compound\nFORMULA     CO2\nREACTION    R01393\n///\n",
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch {
		case r.URL.Path == "/list/compound":
			_, _ = w.Write([]byte("cpd:C00168\tHydroxypyruvate\ncpd:C00266\tGlycolaldehyde\ncpd:C00011\tCO2\n"))
		case r.URL.Path == "/list/reaction":
			_, _ = w.Write([]byte("rn:R01393\thydroxypyruvate carboxy-lyase\n"))
		case r.URL.Path == "/get/cpd:C00168" && failed.Load() < failures:
			failed.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		case strings.HasPrefix(r.URL.Path, "/get/"):
			text, ok := entries[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(text))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_GetText(t *testing.T) {
	t.Parallel()

	t.Run("Reaction", func(t *testing.T) {
		t.Parallel()
		srv, _ := newKEGGServer(t, 0)
		c := NewClient(srv.URL, WithRetry(5, 0))

		text, err := c.GetText(context.Background(), "R01393")

		require.NoError(t, err)
		assert.Equal(t, r01393, text)
	})

	t.Run("RetriesServerErrors", func(t *testing.T) {
		t.Parallel()
		srv, calls := newKEGGServer(t, 3)
		c := NewClient(srv.URL, WithRetry(5, 0))

		text, err := c.GetText(context.Background(), "C00168")

		require.NoError(t, err)
		assert.Equal(t, c00168, text)
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("GivesUp", func(t *testing.T) {
		t.Parallel()
		srv, calls := newKEGGServer(t, 10)
		c := NewClient(srv.URL, WithRetry(5, 0))

		_, err := c.GetText(context.Background(), "C00168")

		require.Error(t, err)
		assert.Equal(t, int32(5), calls.Load())
	})

	t.Run("NotFoundIsFinal", func(t *testing.T) {
		t.Parallel()
		srv, calls := newKEGGServer(t, 0)
		c := NewClient(srv.URL, WithRetry(5, 0))

		_, err := c.GetText(context.Background(), "C99999")

		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("InvalidID", func(t *testing.T) {
		t.Parallel()
		srv, calls := newKEGGServer(t, 0)
		c := NewClient(srv.URL)

		_, err := c.GetText(context.Background(), "X12345")

		require.ErrorIs(t, err, ErrInvalidID)
		assert.Equal(t, int32(0), calls.Load())
	})
}

func TestClient_List(t *testing.T) {
	t.Parallel()

	srv, _ := newKEGGServer(t, 0)
	c := NewClient(srv.URL, WithRetry(1, 0))

	ids, err := c.List(context.Background(), "compound")
	require.NoError(t, err)
	assert.Equal(t, []string{"C00168", "C00266", "C00011"}, ids)

	_, err = c.List(context.Background(), "glycan")
	assert.Error(t, err)
}

func TestClient_GetBatches(t *testing.T) {
	t.Parallel()

	srv, _ := newKEGGServer(t, 0)
	c := NewClient(srv.URL, WithRetry(1, 0), WithWorkers(2))

	comps := c.GetCompounds(context.Background(), []string{"C00168", "C99999", "C00266"})
	require.Len(t, comps, 3)
	assert.Equal(t, "C00168", comps[0].ID)
	assert.Nil(t, comps[1])
	assert.Equal(t, "C00266", comps[2].ID)

	rxns := c.GetReactions(context.Background(), []string{"R01393", "R99999"})
	require.Len(t, rxns, 2)
	assert.Equal(t, "R01393", rxns[0].ID)
	assert.Nil(t, rxns[1])
}

func TestClient_Download(t *testing.T) {
	t.Parallel()

	t.Run("Everything", func(t *testing.T) {
		t.Parallel()
		srv, _ := newKEGGServer(t, 0)
		c := NewClient(srv.URL, WithRetry(1, 0))

		records, err := c.Download(context.Background(), DownloadOptions{})
		require.NoError(t, err)

		assert.Len(t, records.Compounds, 3)
		assert.Len(t, records.Reactions, 1)
		assert.Equal(t, []string{"R01393"}, records.Compound("C00168").ReactantIn)
		assert.Equal(t, []string{"R01393"}, records.Compound("C00266").ProductOf)
		assert.Nil(t, records.Compound("C00011").ProductOf, "CO2 reactions are not listed")
	})

	t.Run("Limited", func(t *testing.T) {
		t.Parallel()
		srv, _ := newKEGGServer(t, 0)
		c := NewClient(srv.URL, WithRetry(1, 0))

		records, err := c.Download(context.Background(), DownloadOptions{Limit: 1})
		require.NoError(t, err)

		assert.Len(t, records.Compounds, 1)
		assert.NotNil(t, records.Compound("C00168"))
	})

	t.Run("ListFailure", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)
		c := NewClient(srv.URL, WithRetry(2, 0))

		_, err := c.Download(context.Background(), DownloadOptions{})
		assert.Error(t, err)
	})
}

func TestReadCompoundIDs(t *testing.T) {
	t.Parallel()

	ids, err := ReadCompoundIDs(strings.NewReader("C00001\n\n  C00002  \nC00003\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"C00001", "C00002", "C00003"}, ids)

	_, err = ReadCompoundIDs(strings.NewReader("C00001\nglucose\n"))
	require.ErrorIs(t, err, ErrInvalidID)
	assert.Contains(t, err.Error(), "line 2")
}
