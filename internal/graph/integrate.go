package graph

import (
	"sort"

	"go.uber.org/zap"

	"github.com/Benny93/minet-go/internal/mine"
)

// IntegrationStats summarizes an Integrate run.
type IntegrationStats struct {
	// Candidates is the number of KEGG compound nodes inspected.
	Candidates int `json:"candidates"`

	// Merged is the number of KEGG nodes spliced out of the network.
	Merged int `json:"merged"`

	// Unmatched is the number of KEGG nodes left in place because no MINE
	// compound links to them.
	Unmatched int `json:"unmatched"`

	// EdgesAdded counts the edges transplanted onto MINE compound nodes.
	EdgesAdded int `json:"edges_added"`
}

// Integrate merges KEGG compound nodes into the MINE compound nodes that
// link to the same KEGG id.
//
// For every compound node with a KEGG id (C#####) that at least one MINE
// compound node links to, the node's incoming edges are redirected to each
// linked MINE node that takes part in any reaction, and its outgoing edges
// are redirected from them. The KEGG node is then removed. KEGG nodes
// without a MINE match are left as they are. Role nodes and their member
// lists are not changed, and MINE nodes are never removed.
func Integrate(n *Network, log *zap.Logger, progress ProgressFunc) IntegrationStats {
	if log == nil {
		log = zap.NewNop()
	}
	if progress == nil {
		progress = func(string, float64) {}
	}

	keggToMine := make(map[string][]string)
	var candidates []*Node
	for _, node := range n.NodesByKind(KindCompound) {
		switch {
		case mine.IsMineCompoundID(node.MineID):
			for _, k := range n.records.Compound(node.MineID).KEGGIDs() {
				keggToMine[k] = append(keggToMine[k], node.MineID)
			}
		case mine.IsKEGGCompoundID(node.MineID):
			candidates = append(candidates, node)
		}
	}

	stats := IntegrationStats{Candidates: len(candidates)}
	for i, node := range candidates {
		progress("Integrating KEGG nodes", float64(i+1)/float64(len(candidates)))

		mineIDs := keggToMine[node.MineID]
		if len(mineIDs) == 0 {
			stats.Unmatched++
			continue
		}
		sort.Strings(mineIDs)

		preds := n.Predecessors(node.ID)
		succs := n.Successors(node.ID)
		for _, mid := range mineIDs {
			target, ok := n.CompoundNode(mid)
			if !ok || !n.records.Compound(mid).Connected() {
				continue
			}
			for _, p := range preds {
				if p != node.ID && n.AddEdge(p, target) {
					stats.EdgesAdded++
				}
			}
			for _, s := range succs {
				if s != node.ID && n.AddEdge(target, s) {
					stats.EdgesAdded++
				}
			}
		}

		n.RemoveNode(node.ID)
		stats.Merged++
	}

	log.Debug("KEGG nodes integrated",
		zap.Int("candidates", stats.Candidates),
		zap.Int("merged", stats.Merged),
		zap.Int("unmatched", stats.Unmatched),
		zap.Int("edges_added", stats.EdgesAdded))
	return stats
}
