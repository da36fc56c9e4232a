package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Benny93/minet-go/internal/mine"
)

func participants(ids ...string) []mine.Participant {
	out := make([]mine.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, mine.Participant{Coefficient: 1, ID: id})
	}
	return out
}

func reaction(id string, reactants, products []string) *mine.Reaction {
	return &mine.Reaction{ID: id, Reactants: participants(reactants...), Products: participants(products...)}
}

// quadFixture is C1 + X1 -> C2 + X2 (R1) followed by C2 -> C3 (R2).
func quadFixture() (map[string]*mine.Compound, map[string]*mine.Reaction) {
	compounds := map[string]*mine.Compound{
		"C1": {ID: "C1", ReactantIn: []string{"R1"}},
		"C2": {ID: "C2", ProductOf: []string{"R1"}, ReactantIn: []string{"R2"}},
		"C3": {ID: "C3", ProductOf: []string{"R2"}},
		"X1": {ID: "X1"},
		"X2": {ID: "X2"},
	}
	reactions := map[string]*mine.Reaction{
		"R1": reaction("R1", []string{"C1", "X1"}, []string{"C2", "X2"}),
		"R2": reaction("R2", []string{"C2"}, []string{"C3"}),
	}
	return compounds, reactions
}

// networkFixture has eight compounds and five reactions; compound Ci gets
// node i and the reactions follow in sorted order (R1e, R2f, R99, Rc3, Rcd).
func networkFixture() (map[string]*mine.Compound, map[string]*mine.Reaction) {
	compounds := map[string]*mine.Compound{
		"C1": {ID: "C1", ReactantIn: []string{"R99"}},
		"C2": {ID: "C2", ReactantIn: []string{"R1e"}, ProductOf: []string{"R99"}},
		"C3": {ID: "C3", ReactantIn: []string{"Rcd"}, ProductOf: []string{"R99", "Rc3"}},
		"C4": {ID: "C4", ProductOf: []string{"R1e"}},
		"C5": {ID: "C5", ReactantIn: []string{"Rc3", "R2f"}, ProductOf: []string{"Rcd", "R1e"}},
		"C6": {ID: "C6", ProductOf: []string{"Rcd"}},
		"C7": {ID: "C7", ProductOf: []string{"R2f", "R7f"}},
		"C8": {ID: "C8", ReactantIn: []string{"Rb7"}, ProductOf: []string{"R2f"}},
	}
	reactions := map[string]*mine.Reaction{
		"R1e": reaction("R1e", []string{"C2"}, []string{"C4", "C5"}),
		"R2f": reaction("R2f", []string{"C5"}, []string{"C7", "C8"}),
		"R99": reaction("R99", []string{"C1"}, []string{"C2", "C3"}),
		"Rc3": reaction("Rc3", []string{"C5"}, []string{"C3"}),
		"Rcd": reaction("Rcd", []string{"C3"}, []string{"C5", "C6"}),
	}
	return compounds, reactions
}

func TestBuilder_AddQuadReactionNode(t *testing.T) {
	t.Parallel()

	t.Run("TwoReactions", func(t *testing.T) {
		t.Parallel()
		compounds, reactions := quadFixture()

		n := NewBuilder(nil, nil).Build(compounds, reactions, nil, nil)

		assert.Equal(t, 13, n.NodeCount())
		assert.Equal(t, 12, n.EdgeCount())

		// C1=1 C2=2 C3=3 X1=4 X2=5, R1=6..9, R2=10..13
		expected := []Edge{
			{1, 6}, {2, 8}, {2, 10}, {3, 12},
			{6, 7}, {7, 2}, {8, 9}, {9, 1},
			{10, 11}, {11, 3}, {12, 13}, {13, 2},
		}
		assert.Equal(t, expected, n.Edges())

		rf := n.Node(6)
		require.NotNil(t, rf)
		assert.Equal(t, KindReactantsForward, rf.Kind)
		assert.Equal(t, "R1", rf.MineID)
		assert.Equal(t, []int{1, 4}, rf.Members)
		assert.Equal(t, []int{2, 5}, n.Node(7).Members)
		assert.Equal(t, []int{2, 5}, n.Node(8).Members)
		assert.Equal(t, []int{1, 4}, n.Node(9).Members)
		assert.Equal(t, KindProductsReverse, n.Node(13).Kind)
	})

	t.Run("MissingParticipantAddsNothing", func(t *testing.T) {
		t.Parallel()
		core, logs := observer.New(zap.WarnLevel)
		b := NewBuilder(zap.New(core), nil)
		n := NewNetwork(nil)
		b.AddCompoundNode(n, &mine.Compound{ID: "C1"}, nil)

		ok := b.AddQuadReactionNode(n, reaction("R1", []string{"C1"}, []string{"C9"}))

		assert.False(t, ok)
		assert.Equal(t, 1, n.NodeCount())
		assert.Equal(t, 0, n.EdgeCount())
		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "C9", fields["compound"])
		assert.Equal(t, "R1", fields["reaction"])
	})

	t.Run("MalformedReaction", func(t *testing.T) {
		t.Parallel()
		core, logs := observer.New(zap.WarnLevel)
		b := NewBuilder(zap.New(core), nil)
		n := NewNetwork(nil)

		assert.False(t, b.AddQuadReactionNode(n, nil))
		assert.False(t, b.AddQuadReactionNode(n, &mine.Reaction{ID: "R1", Reactants: participants("C1")}))
		assert.False(t, b.AddQuadReactionNode(n, &mine.Reaction{ID: "R2", Reactants: []mine.Participant{{Coefficient: 1}}, Products: participants("C1")}))

		assert.Equal(t, 0, n.NodeCount())
		assert.Equal(t, 3, logs.Len())
	})

	t.Run("RepeatedParticipant", func(t *testing.T) {
		t.Parallel()
		compounds := map[string]*mine.Compound{
			"C1": {ID: "C1", ReactantIn: []string{"R1"}},
			"C2": {ID: "C2", ProductOf: []string{"R1"}},
		}
		reactions := map[string]*mine.Reaction{
			"R1": reaction("R1", []string{"C1", "C1"}, []string{"C2"}),
		}

		n := NewBuilder(nil, nil).Build(compounds, reactions, nil, nil)

		assert.Equal(t, 6, n.NodeCount())
		assert.Equal(t, []int{1}, n.Node(3).Members)
	})
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	compounds, reactions := networkFixture()
	var phases []string
	progress := func(phase string, fraction float64) {
		if len(phases) == 0 || phases[len(phases)-1] != phase {
			phases = append(phases, phase)
		}
		assert.LessOrEqual(t, fraction, 1.0)
	}

	n := NewBuilder(nil, progress).Build(compounds, reactions, []string{"C1"}, nil)

	assert.Equal(t, 8+4*5, n.NodeCount())
	assert.Equal(t, []string{"Adding compound nodes", "Adding reaction nodes"}, phases)

	expected := []Edge{
		// Role to role.
		{9, 10}, {11, 12}, {13, 14}, {15, 16}, {17, 18}, {19, 20},
		{21, 22}, {23, 24}, {25, 26}, {27, 28},
		// C1
		{1, 17}, {20, 1},
		// C2
		{18, 2}, {2, 19}, {2, 9}, {12, 2},
		// C3
		{18, 3}, {3, 19}, {3, 23}, {22, 3}, {3, 25}, {28, 3},
		// C4
		{10, 4}, {4, 11},
		// C5
		{10, 5}, {5, 11}, {24, 5}, {5, 21}, {26, 5}, {5, 27}, {5, 13}, {16, 5},
		// C6
		{26, 6}, {6, 27},
		// C7
		{14, 7}, {7, 15},
		// C8
		{14, 8}, {8, 15},
	}
	assert.ElementsMatch(t, expected, n.Edges())

	for i := 1; i <= 8; i++ {
		node := n.Node(i)
		require.NotNil(t, node)
		assert.Equal(t, KindCompound, node.Kind)
		assert.Equal(t, i == 1, node.Start, node.MineID)
	}

	rxnOrder := []string{"R1e", "R2f", "R99", "Rc3", "Rcd"}
	for i, id := range rxnOrder {
		nodes := n.ReactionNodes(id)
		require.Len(t, nodes, 4, id)
		for j, kind := range ReactionKinds {
			assert.Equal(t, 9+4*i+j, nodes[j].ID)
			assert.Equal(t, kind, nodes[j].Kind)
		}
	}
}

func TestBuilder_IndexInjective(t *testing.T) {
	t.Parallel()

	compounds, reactions := networkFixture()
	n := NewBuilder(nil, nil).Build(compounds, reactions, nil, nil)

	seen := make(map[int]string)
	for id := range compounds {
		node, ok := n.CompoundNode(id)
		require.True(t, ok, id)
		prev, dup := seen[node]
		assert.False(t, dup, "%s and %s share node %d", id, prev, node)
		seen[node] = id
	}
}

func TestBuilder_AddCompoundNode(t *testing.T) {
	t.Parallel()

	const digest = "f5dc8599a48d0111a3a5f618296752e1b53c8d30"
	starts := map[string]bool{"C1": true, "C" + digest: true}

	tests := []struct {
		name     string
		compound *mine.Compound
		start    bool
	}{
		{"Seed", &mine.Compound{ID: "C1"}, true},
		{"NotSeed", &mine.Compound{ID: "C2", Formula: mine.String("H2O")}, false},
		{"CofactorOfSeed", &mine.Compound{ID: "X" + digest, Formula: mine.String("C21H29N7O17P3")}, true},
		{"InorganicCofactor", &mine.Compound{ID: "Xabc", Formula: mine.String("H2O")}, true},
		{"CofactorWithoutFormula", &mine.Compound{ID: "Xdef"}, true},
		{"OrganicCofactor", &mine.Compound{ID: "Xghi", Formula: mine.String("C6H12O6")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := NewNetwork(nil)

			id, ok := NewBuilder(nil, nil).AddCompoundNode(n, tt.compound, starts)

			require.True(t, ok)
			assert.Equal(t, 1, id)
			assert.Equal(t, tt.start, n.Node(id).Start)
		})
	}

	t.Run("Malformed", func(t *testing.T) {
		t.Parallel()
		core, logs := observer.New(zap.WarnLevel)
		n := NewNetwork(nil)

		_, ok := NewBuilder(zap.New(core), nil).AddCompoundNode(n, &mine.Compound{}, starts)

		assert.False(t, ok)
		assert.Equal(t, 0, n.NodeCount())
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("Duplicate", func(t *testing.T) {
		t.Parallel()
		n := NewNetwork(nil)
		b := NewBuilder(nil, nil)

		first, _ := b.AddCompoundNode(n, &mine.Compound{ID: "C1"}, nil)
		second, ok := b.AddCompoundNode(n, &mine.Compound{ID: "C1"}, nil)

		assert.False(t, ok)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, n.NodeCount())
	})
}

func TestExpandStartIDs(t *testing.T) {
	t.Parallel()

	kegg := func(ids ...string) map[string][]string {
		return map[string][]string{mine.KEGG: ids}
	}
	compounds := map[string]*mine.Compound{
		"S1": {ID: "S1", DBLinks: kegg("C00001")},
		"S2": {ID: "S2", DBLinks: kegg("C00002", "C00003")},
		"S3": {ID: "S3", DBLinks: map[string][]string{}},
		"S4": {ID: "S4"},
		"C1": {ID: "C1", DBLinks: kegg("C00001")},
		"C2": {ID: "C2", DBLinks: map[string][]string{}},
		"C3": {ID: "C3"},
		"C4": {ID: "C4", DBLinks: kegg("C00002")},
		"X1": {ID: "X1", DBLinks: kegg("C00002", "C10284")},
		"X5": {ID: "X5", DBLinks: kegg("C00006", "C00007")},
		"X6": {ID: "X6", DBLinks: kegg("C11111")},
	}
	starts := map[string]bool{"S1": true, "S2": true, "S3": true, "S4": true}

	got := ExpandStartIDs(compounds, starts, []string{"C11111"})

	expected := map[string]bool{
		"S1": true, "S2": true, "S3": true, "S4": true,
		"C1": true, "C4": true, "X1": true, "X6": true,
	}
	assert.Equal(t, expected, got)
	assert.Len(t, starts, 4, "input set is not modified")
}

func TestNetwork_CheckConnection(t *testing.T) {
	t.Parallel()

	compounds := map[string]*mine.Compound{
		"C1": {ID: "C1", ReactantIn: []string{"R1"}},
		"C2": {ID: "C2", ProductOf: []string{"R1"}},
		"C3": {ID: "C3"},
	}
	n := NewNetwork(mine.NewRecords(compounds, nil))
	n.AddNode(compoundNode(1, "C1"))
	n.AddNode(compoundNode(2, "C2"))
	n.AddNode(compoundNode(3, "C3"))
	for i, kind := range ReactionKinds {
		n.AddNode(&Node{ID: 4 + i, Kind: kind, MineID: "R1"})
	}
	rf, pf, rr, pr := 4, 5, 6, 7

	tests := []struct {
		name     string
		compound int
		role     int
		expected bool
	}{
		{"ReactantForward", 1, rf, true},
		{"ReactantReverseProduct", 1, pr, true},
		{"ReactantNotProduct", 1, pf, false},
		{"ReactantNotReverseReactant", 1, rr, false},
		{"ProductForward", 2, pf, true},
		{"ProductReverseReactant", 2, rr, true},
		{"ProductNotReactant", 2, rf, false},
		{"MissingLists", 3, rf, false},
		{"MissingListsProduct", 3, pf, false},
		{"CompoundToCompound", 1, 2, false},
		{"RoleAsCompound", rf, pf, false},
		{"UnknownNode", 99, rf, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, n.CheckConnection(tt.compound, tt.role))
		})
	}
}
