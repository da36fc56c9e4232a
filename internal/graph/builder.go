package graph

import (
	"sort"

	"go.uber.org/zap"

	"github.com/Benny93/minet-go/internal/mine"
)

// ProgressFunc receives the name of the running phase and its completion
// in [0, 1].
type ProgressFunc func(phase string, fraction float64)

// Builder turns compound and reaction records into a Network.
type Builder struct {
	log      *zap.Logger
	progress ProgressFunc
}

// NewBuilder returns a builder that reports warnings on log and progress on
// progress. Both may be nil.
func NewBuilder(log *zap.Logger, progress ProgressFunc) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if progress == nil {
		progress = func(string, float64) {}
	}
	return &Builder{log: log, progress: progress}
}

// Build constructs the network for the given records. Compound nodes come
// first in sorted id order, then one quad reaction node per reaction, also
// in sorted id order. seeds and extraKEGG determine the start nodes, see
// ExpandStartIDs.
func (b *Builder) Build(
	compounds map[string]*mine.Compound,
	reactions map[string]*mine.Reaction,
	seeds []string,
	extraKEGG []string,
) *Network {
	starts := make(map[string]bool, len(seeds))
	for _, id := range seeds {
		starts[id] = true
	}
	starts = ExpandStartIDs(compounds, starts, extraKEGG)

	n := NewNetwork(mine.NewRecords(compounds, reactions))

	compIDs := sortedIDs(compounds)
	for i, id := range compIDs {
		b.AddCompoundNode(n, compounds[id], starts)
		b.progress("Adding compound nodes", float64(i+1)/float64(len(compIDs)))
	}

	rxnIDs := sortedIDs(reactions)
	for i, id := range rxnIDs {
		b.AddQuadReactionNode(n, reactions[id])
		b.progress("Adding reaction nodes", float64(i+1)/float64(len(rxnIDs)))
	}

	b.log.Debug("network built",
		zap.Int("nodes", n.NodeCount()),
		zap.Int("edges", n.EdgeCount()),
		zap.Int("start_nodes", len(n.StartNodes())))
	return n
}

// ExpandStartIDs returns starts extended with every compound that shares a
// KEGG id with a start compound or with one of extraKEGG. The input set is
// not modified.
func ExpandStartIDs(compounds map[string]*mine.Compound, starts map[string]bool, extraKEGG []string) map[string]bool {
	kegg := make(map[string]bool, len(extraKEGG))
	for _, id := range extraKEGG {
		kegg[id] = true
	}
	for id := range starts {
		for _, k := range compounds[id].KEGGIDs() {
			kegg[k] = true
		}
	}

	out := make(map[string]bool, len(starts))
	for id := range starts {
		out[id] = true
	}
	for id, c := range compounds {
		for _, k := range c.KEGGIDs() {
			if kegg[k] {
				out[id] = true
				break
			}
		}
	}
	return out
}

// AddCompoundNode adds a compound node for c and returns its node id. The
// node is a start node if its id or its C-prefixed analogue is in starts,
// or if it is a cofactor entry without carbon.
func (b *Builder) AddCompoundNode(n *Network, c *mine.Compound, starts map[string]bool) (int, bool) {
	if c == nil || c.ID == "" {
		b.log.Warn("compound has no id, skipping")
		return 0, false
	}
	if existing, ok := n.CompoundNode(c.ID); ok {
		b.log.Warn("compound already has a node", zap.String("compound", c.ID), zap.Int("node", existing))
		return existing, false
	}

	start := starts[c.ID] ||
		starts[mine.CompoundAnalogue(c.ID)] ||
		(mine.IsCofactorID(c.ID) && c.Inorganic())

	node := &Node{
		ID:     n.NextNodeID(),
		Kind:   KindCompound,
		MineID: c.ID,
		Start:  start,
	}
	n.AddNode(node)
	return node.ID, true
}

// AddQuadReactionNode adds the four role nodes of rxn and the edges between
// them and their compounds. If any participant has no compound node the
// reaction is skipped with a warning and the network is left unchanged.
// It reports whether the nodes were added.
func (b *Builder) AddQuadReactionNode(n *Network, rxn *mine.Reaction) bool {
	if rxn == nil || rxn.ID == "" {
		b.log.Warn("reaction has no id, skipping")
		return false
	}
	if len(rxn.Reactants) == 0 || len(rxn.Products) == 0 {
		b.log.Warn("reaction does not list both reactants and products, skipping",
			zap.String("reaction", rxn.ID))
		return false
	}

	reactants, ok := b.resolve(n, rxn, rxn.Reactants)
	if !ok {
		return false
	}
	products, ok := b.resolve(n, rxn, rxn.Products)
	if !ok {
		return false
	}

	base := n.NextNodeID()
	rf := &Node{ID: base, Kind: KindReactantsForward, MineID: rxn.ID, Members: reactants}
	pf := &Node{ID: base + 1, Kind: KindProductsForward, MineID: rxn.ID, Members: products}
	rr := &Node{ID: base + 2, Kind: KindReactantsReverse, MineID: rxn.ID, Members: products}
	pr := &Node{ID: base + 3, Kind: KindProductsReverse, MineID: rxn.ID, Members: reactants}

	// Reactant side nodes take incoming compound edges, product side nodes
	// outgoing ones.
	n.AddNode(rf)
	for _, c := range rf.Members {
		if n.CheckConnection(c, rf.ID) {
			n.AddEdge(c, rf.ID)
		}
	}
	n.AddNode(pf)
	for _, c := range pf.Members {
		if n.CheckConnection(c, pf.ID) {
			n.AddEdge(pf.ID, c)
		}
	}
	n.AddEdge(rf.ID, pf.ID)

	n.AddNode(rr)
	for _, c := range rr.Members {
		if n.CheckConnection(c, rr.ID) {
			n.AddEdge(c, rr.ID)
		}
	}
	n.AddNode(pr)
	for _, c := range pr.Members {
		if n.CheckConnection(c, pr.ID) {
			n.AddEdge(pr.ID, c)
		}
	}
	n.AddEdge(rr.ID, pr.ID)

	return true
}

// resolve maps participants to their compound node ids, deduplicated and
// sorted. It warns about the first participant without a node.
func (b *Builder) resolve(n *Network, rxn *mine.Reaction, side []mine.Participant) ([]int, bool) {
	seen := make(map[int]bool, len(side))
	ids := make([]int, 0, len(side))
	for _, p := range side {
		if p.ID == "" {
			b.log.Warn("reaction lists a malformed participant, skipping", zap.String("reaction", rxn.ID))
			return nil, false
		}
		node, ok := n.CompoundNode(p.ID)
		if !ok {
			b.log.Warn("compound in reaction is missing, reaction nodes were not added to the network",
				zap.String("compound", p.ID),
				zap.String("reaction", rxn.ID))
			return nil, false
		}
		if !seen[node] {
			seen[node] = true
			ids = append(ids, node)
		}
	}
	sort.Ints(ids)
	return ids, true
}

// CheckConnection reports whether the compound node is attested as a
// participant of the reaction behind the role node. For the forward
// reactant and reverse product roles the reaction must be listed in the
// compound's Reactant_in; for the forward product and reverse reactant
// roles in its Product_of. Anything else, including a missing list, is
// reported as not connected.
func (n *Network) CheckConnection(compoundNode, roleNode int) bool {
	cn, rn := n.nodes[compoundNode], n.nodes[roleNode]
	if cn == nil || rn == nil || cn.Kind != KindCompound {
		return false
	}
	comp := n.records.Compound(cn.MineID)
	if comp == nil {
		return false
	}

	var list []string
	switch rn.Kind {
	case KindReactantsForward, KindProductsReverse:
		list = comp.ReactantIn
	case KindProductsForward, KindReactantsReverse:
		list = comp.ProductOf
	case KindCompound:
		return false
	default:
		return false
	}
	for _, id := range list {
		if id == rn.MineID {
			return true
		}
	}
	return false
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
