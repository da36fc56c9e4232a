package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/minet-go/internal/graph"
	"github.com/Benny93/minet-go/internal/mine"
)

// fixtureNetwork is a two-reaction chain C1 -> C2 -> C3 with cofactors on
// the first reaction. Compounds get nodes 1-5, R1 gets 6-9, R2 gets 10-13.
func fixtureNetwork() *graph.Network {
	compounds := map[string]*mine.Compound{
		"C1": {ID: "C1", Formula: mine.String("C2H6O"), ReactantIn: []string{"R1"}, DBLinks: map[string][]string{mine.KEGG: {"C00469"}}},
		"C2": {ID: "C2", Formula: mine.String("C2H4O"), ProductOf: []string{"R1"}, ReactantIn: []string{"R2"}},
		"C3": {ID: "C3", Formula: mine.String("C2H4O2"), ProductOf: []string{"R2"}},
		"X1": {ID: "X1"},
		"X2": {ID: "X2"},
	}
	reactions := map[string]*mine.Reaction{
		"R1": {
			ID:        "R1",
			Operators: []string{"1.1.1.1"},
			Reactants: []mine.Participant{{Coefficient: 1, ID: "C1"}, {Coefficient: 1, ID: "X1"}},
			Products:  []mine.Participant{{Coefficient: 1, ID: "C2"}, {Coefficient: 1, ID: "X2"}},
		},
		"R2": {
			ID:        "R2",
			Reactants: []mine.Participant{{Coefficient: 1, ID: "C2"}},
			Products:  []mine.Participant{{Coefficient: 1, ID: "C3"}},
		},
	}
	return graph.NewBuilder(nil, nil).Build(compounds, reactions, []string{"C1"}, nil)
}

func fixtureMeta() RunMeta {
	return RunMeta{
		ID:            "run-1",
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Seeds:         []string{"C1"},
		Steps:         2,
		CompoundLimit: 100,
		CarbonLimit:   25,
	}
}

// backends returns an initialized instance of every Backend implementation.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	badgerBackend := NewBadgerBackend()
	require.NoError(t, badgerBackend.Initialize(filepath.Join(t.TempDir(), "network"), false))
	t.Cleanup(func() { _ = badgerBackend.Close() })

	memoryBackend := NewMemoryBackend()
	require.NoError(t, memoryBackend.Initialize("", false))

	return map[string]Backend{
		"Badger": badgerBackend,
		"Memory": memoryBackend,
	}
}

func nodeIDs(nodes []*graph.Node) []int {
	ids := make([]int, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestBackend_EmptyStore(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := b.Meta(ctx)
			assert.ErrorIs(t, err, ErrNoNetwork)

			_, _, err = b.LoadNetwork(ctx)
			assert.ErrorIs(t, err, ErrNoNetwork)

			assert.Zero(t, b.NodeCount())
			assert.Zero(t, b.EdgeCount())
		})
	}
}

func TestBackend_SaveAndQuery(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			net := fixtureNetwork()
			require.NoError(t, b.SaveNetwork(ctx, net, fixtureMeta()))

			assert.Equal(t, net.NodeCount(), b.NodeCount())
			assert.Equal(t, net.EdgeCount(), b.EdgeCount())

			t.Run("GetNode", func(t *testing.T) {
				node, err := b.GetNode(ctx, 6)
				require.NoError(t, err)
				require.NotNil(t, node)
				assert.Equal(t, graph.KindReactantsForward, node.Kind)
				assert.Equal(t, "R1", node.MineID)
				assert.Equal(t, []int{1, 4}, node.Members)

				missing, err := b.GetNode(ctx, 999)
				assert.NoError(t, err)
				assert.Nil(t, missing)
			})

			t.Run("FindCompound", func(t *testing.T) {
				node, err := b.FindCompound(ctx, "C1")
				require.NoError(t, err)
				require.NotNil(t, node)
				assert.Equal(t, 1, node.ID)
				assert.True(t, node.Start)

				missing, err := b.FindCompound(ctx, "C404")
				assert.NoError(t, err)
				assert.Nil(t, missing)
			})

			t.Run("Neighbors", func(t *testing.T) {
				for _, id := range []int{1, 2, 7, 10} {
					out, err := b.Neighbors(ctx, id, Outgoing)
					require.NoError(t, err)
					assert.Equal(t, net.Successors(id), nilIfEmpty(nodeIDs(out)), "successors of %d", id)

					in, err := b.Neighbors(ctx, id, Incoming)
					require.NoError(t, err)
					assert.Equal(t, net.Predecessors(id), nilIfEmpty(nodeIDs(in)), "predecessors of %d", id)
				}

				both, err := b.Neighbors(ctx, 6, Both)
				require.NoError(t, err)
				assert.Equal(t, []int{1, 7}, nodeIDs(both))
			})

			t.Run("NodesByKind", func(t *testing.T) {
				comps, err := b.NodesByKind(ctx, graph.KindCompound)
				require.NoError(t, err)
				assert.Equal(t, []int{1, 2, 3, 4, 5}, nodeIDs(comps))

				pr, err := b.NodesByKind(ctx, graph.KindProductsReverse)
				require.NoError(t, err)
				assert.Equal(t, []int{9, 13}, nodeIDs(pr))
			})

			t.Run("Record", func(t *testing.T) {
				rec, err := b.Record(ctx, "C1")
				require.NoError(t, err)
				require.NotNil(t, rec.Compound)
				assert.Nil(t, rec.Reaction)
				assert.Equal(t, []string{"C00469"}, rec.Compound.KEGGIDs())

				rec, err = b.Record(ctx, "R1")
				require.NoError(t, err)
				require.NotNil(t, rec.Reaction)
				assert.Equal(t, []string{"1.1.1.1"}, rec.Reaction.Operators)

				rec, err = b.Record(ctx, "R404")
				assert.NoError(t, err)
				assert.Nil(t, rec)
			})

			t.Run("Meta", func(t *testing.T) {
				meta, err := b.Meta(ctx)
				require.NoError(t, err)
				assert.Equal(t, "run-1", meta.ID)
				assert.True(t, meta.CreatedAt.Equal(fixtureMeta().CreatedAt))
				assert.Equal(t, net.NodeCount(), meta.Stats["nodes"])
				assert.Equal(t, 5, meta.Stats["compound"])
			})
		})
	}
}

func nilIfEmpty(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func TestBackend_LoadNetwork(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			net := fixtureNetwork()
			require.NoError(t, b.SaveNetwork(ctx, net, fixtureMeta()))

			loaded, meta, err := b.LoadNetwork(ctx)
			require.NoError(t, err)

			assert.Equal(t, "run-1", meta.ID)
			if diff := cmp.Diff(net.Snapshot(), loaded.Snapshot()); diff != "" {
				t.Errorf("loaded network mismatch (-want +got):\n%s", diff)
			}
			id, ok := loaded.CompoundNode("C3")
			assert.True(t, ok)
			assert.Equal(t, 3, id)
		})
	}
}

func TestBackend_SaveReplacesNetwork(t *testing.T) {
	t.Parallel()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.SaveNetwork(ctx, fixtureNetwork(), fixtureMeta()))

			small := graph.NewNetwork(nil)
			small.AddNode(&graph.Node{ID: 1, Kind: graph.KindCompound, MineID: "C9"})
			meta := fixtureMeta()
			meta.ID = "run-2"
			require.NoError(t, b.SaveNetwork(ctx, small, meta))

			assert.Equal(t, 1, b.NodeCount())
			assert.Zero(t, b.EdgeCount())

			gone, err := b.FindCompound(ctx, "C1")
			assert.NoError(t, err)
			assert.Nil(t, gone)

			rec, err := b.Record(ctx, "R1")
			assert.NoError(t, err)
			assert.Nil(t, rec)

			got, err := b.Meta(ctx)
			require.NoError(t, err)
			assert.Equal(t, "run-2", got.ID)
		})
	}
}

func TestBackend_NotInitialized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for name, b := range map[string]Backend{"Badger": NewBadgerBackend(), "Memory": NewMemoryBackend()} {
		t.Run(name, func(t *testing.T) {
			err := b.SaveNetwork(ctx, fixtureNetwork(), fixtureMeta())
			assert.ErrorIs(t, err, ErrNotInitialized)

			_, err = b.GetNode(ctx, 1)
			assert.ErrorIs(t, err, ErrNotInitialized)
		})
	}
}

func TestBadgerBackend_Reopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "network")
	net := fixtureNetwork()

	b := NewBadgerBackend()
	require.NoError(t, b.Initialize(path, false))
	require.NoError(t, b.SaveNetwork(ctx, net, fixtureMeta()))
	require.NoError(t, b.Close())

	t.Run("ReadOnly", func(t *testing.T) {
		ro := NewBadgerBackend()
		require.NoError(t, ro.Initialize(path, true))
		defer ro.Close()

		assert.Equal(t, net.NodeCount(), ro.NodeCount())
		assert.Equal(t, net.EdgeCount(), ro.EdgeCount())

		node, err := ro.FindCompound(ctx, "C2")
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, 2, node.ID)
	})

	t.Run("InvalidPath", func(t *testing.T) {
		err := NewBadgerBackend().Initialize("/nonexistent/path/that/does/not/exist", true)
		assert.Error(t, err)
	})
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"out", Outgoing, false},
		{"successors", Outgoing, false},
		{"in", Incoming, false},
		{"", Both, false},
		{"both", Both, false},
		{"sideways", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
