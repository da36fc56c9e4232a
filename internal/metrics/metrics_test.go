package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/minet-go/internal/graph"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch("mine", "get_comps", OutcomeOK, 50*time.Millisecond)
	m.ObserveFetch("mine", "get_comps", OutcomeOK, 20*time.Millisecond)
	m.ObserveFetch("kegg", "get", OutcomeNotFound, time.Second)
	m.Retry("mine")
	m.ExpansionStep()
	m.ExpansionStep()
	m.Excluded("compound")

	assert.InDelta(t, 2, testutil.ToFloat64(m.fetchRequests.WithLabelValues("mine", "get_comps", OutcomeOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.fetchRequests.WithLabelValues("kegg", "get", OutcomeNotFound)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.fetchRetries.WithLabelValues("mine")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.expansionSteps), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.excluded.WithLabelValues("compound")), 0)
}

func TestMetrics_SetNetwork(t *testing.T) {
	t.Parallel()

	n := graph.NewNetwork(nil)
	n.AddNode(&graph.Node{ID: 1, Kind: graph.KindCompound, MineID: "C1"})
	n.AddNode(&graph.Node{ID: 2, Kind: graph.KindCompound, MineID: "C2"})
	for i, kind := range graph.ReactionKinds {
		n.AddNode(&graph.Node{ID: 3 + i, Kind: kind, MineID: "R1"})
	}
	n.AddEdge(3, 4)

	m := New(prometheus.NewRegistry())
	m.SetNetwork(n)

	assert.InDelta(t, 2, testutil.ToFloat64(m.networkNodes.WithLabelValues("c")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.networkNodes.WithLabelValues("rf")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.networkEdges), 0)
}

func TestMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch("mine", "get_rxns", OutcomeError, time.Second)
		m.Retry("mine")
		m.ExpansionStep()
		m.Excluded("reaction")
		m.SetNetwork(graph.NewNetwork(nil))
	})
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ExpansionStep()

	path := filepath.Join(t.TempDir(), "minet.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "minet_expansion_steps_total 1")
}
