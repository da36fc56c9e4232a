package graph

import (
	"fmt"
	"sort"

	"github.com/Benny93/minet-go/internal/mine"
)

// Network is a directed reaction network.
//
// Nodes are keyed by consecutive integer ids. Adjacency is held in successor
// and predecessor sets, so edge lookups and removals are O(1). Removing a
// node cascades to every edge touching it.
//
// A Network also carries a compound index (compound id to node id) and the
// reference records the network was built from. The records are read only
// and are consulted for connectivity checks.
//
// A Network is not safe for concurrent mutation.
type Network struct {
	nodes     map[int]*Node
	succ      map[int]map[int]struct{}
	pred      map[int]map[int]struct{}
	edgeCount int

	compounds map[string]int
	records   *mine.Records
	nextID    int
}

// NewNetwork creates an empty network over the given reference records.
func NewNetwork(records *mine.Records) *Network {
	if records == nil {
		records = mine.NewRecords(nil, nil)
	}
	return &Network{
		nodes:     make(map[int]*Node),
		succ:      make(map[int]map[int]struct{}),
		pred:      make(map[int]map[int]struct{}),
		compounds: make(map[string]int),
		records:   records,
		nextID:    1,
	}
}

// Records returns the reference records attached to the network.
func (n *Network) Records() *mine.Records {
	return n.records
}

// NodeCount returns the number of nodes.
func (n *Network) NodeCount() int {
	return len(n.nodes)
}

// EdgeCount returns the number of edges.
func (n *Network) EdgeCount() int {
	return n.edgeCount
}

// CountNodesByKind returns the number of nodes of the given kind.
func (n *Network) CountNodesByKind(kind NodeKind) int {
	count := 0
	for _, node := range n.nodes {
		if node.Kind == kind {
			count++
		}
	}
	return count
}

// NextNodeID returns the id the next added node should take.
func (n *Network) NextNodeID() int {
	return n.nextID
}

// AddNode adds a node, replacing any node with the same id. Compound nodes
// are entered into the compound index.
func (n *Network) AddNode(node *Node) {
	if old, ok := n.nodes[node.ID]; ok && old.Kind == KindCompound {
		if n.compounds[old.MineID] == old.ID {
			delete(n.compounds, old.MineID)
		}
	}

	n.nodes[node.ID] = node
	if node.Kind == KindCompound {
		n.compounds[node.MineID] = node.ID
	}
	if node.ID >= n.nextID {
		n.nextID = node.ID + 1
	}
}

// Node returns the node with the given id, or nil.
func (n *Network) Node(id int) *Node {
	return n.nodes[id]
}

// CompoundNode returns the node id of the compound with the given id.
func (n *Network) CompoundNode(mineID string) (int, bool) {
	id, ok := n.compounds[mineID]
	return id, ok
}

// RemoveNode removes a node and every edge that touches it. It reports
// whether the node existed.
func (n *Network) RemoveNode(id int) bool {
	node, ok := n.nodes[id]
	if !ok {
		return false
	}

	for s := range n.succ[id] {
		delete(n.pred[s], id)
		n.edgeCount--
	}
	for p := range n.pred[id] {
		// Self loops were already counted via succ.
		if p == id {
			continue
		}
		delete(n.succ[p], id)
		n.edgeCount--
	}
	delete(n.succ, id)
	delete(n.pred, id)
	delete(n.nodes, id)

	if node.Kind == KindCompound && n.compounds[node.MineID] == id {
		delete(n.compounds, node.MineID)
	}
	return true
}

// AddEdge adds the directed edge source -> target. Both nodes must exist.
// It reports whether a new edge was added.
func (n *Network) AddEdge(source, target int) bool {
	if n.nodes[source] == nil || n.nodes[target] == nil {
		return false
	}
	if _, ok := n.succ[source][target]; ok {
		return false
	}

	if n.succ[source] == nil {
		n.succ[source] = make(map[int]struct{})
	}
	n.succ[source][target] = struct{}{}

	if n.pred[target] == nil {
		n.pred[target] = make(map[int]struct{})
	}
	n.pred[target][source] = struct{}{}

	n.edgeCount++
	return true
}

// HasEdge reports whether the edge source -> target exists.
func (n *Network) HasEdge(source, target int) bool {
	_, ok := n.succ[source][target]
	return ok
}

// Successors returns the targets of the node's outgoing edges in ascending order.
func (n *Network) Successors(id int) []int {
	return sortedKeys(n.succ[id])
}

// Predecessors returns the sources of the node's incoming edges in ascending order.
func (n *Network) Predecessors(id int) []int {
	return sortedKeys(n.pred[id])
}

// Nodes returns all nodes ordered by id.
func (n *Network) Nodes() []*Node {
	out := make([]*Node, 0, len(n.nodes))
	for _, node := range n.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodesByKind returns the nodes of the given kind ordered by id.
func (n *Network) NodesByKind(kind NodeKind) []*Node {
	var out []*Node
	for _, node := range n.nodes {
		if node.Kind == kind {
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StartNodes returns the compound nodes marked as start points.
func (n *Network) StartNodes() []*Node {
	var out []*Node
	for _, node := range n.NodesByKind(KindCompound) {
		if node.Start {
			out = append(out, node)
		}
	}
	return out
}

// Edges returns all edges ordered by source, then target.
func (n *Network) Edges() []Edge {
	out := make([]Edge, 0, n.edgeCount)
	for source, targets := range n.succ {
		for target := range targets {
			out = append(out, Edge{Source: source, Target: target})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// ReactionNodes returns the role nodes of the reaction, ordered by id.
func (n *Network) ReactionNodes(reactionID string) []*Node {
	var out []*Node
	for _, node := range n.nodes {
		if node.Kind.IsReaction() && node.MineID == reactionID {
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns node counts per kind plus the edge count.
func (n *Network) Stats() map[string]int {
	stats := map[string]int{
		"nodes": len(n.nodes),
		"edges": n.edgeCount,
	}
	for _, node := range n.nodes {
		stats[node.Kind.Description()]++
	}
	return stats
}

// Snapshot is the serializable form of a Network.
type Snapshot struct {
	Nodes   []*Node       `json:"nodes"`
	Edges   []Edge        `json:"edges"`
	Records *mine.Records `json:"records"`
}

// Snapshot returns the network's nodes, edges and records.
func (n *Network) Snapshot() *Snapshot {
	return &Snapshot{
		Nodes:   n.Nodes(),
		Edges:   n.Edges(),
		Records: n.records,
	}
}

// FromSnapshot rebuilds a network from a snapshot.
func FromSnapshot(s *Snapshot) (*Network, error) {
	n := NewNetwork(s.Records)
	for _, node := range s.Nodes {
		if node == nil {
			continue
		}
		if _, dup := n.nodes[node.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %d", node.ID)
		}
		n.AddNode(node)
	}
	for _, e := range s.Edges {
		if !n.AddEdge(e.Source, e.Target) && !n.HasEdge(e.Source, e.Target) {
			return nil, fmt.Errorf("edge %d -> %d references a missing node", e.Source, e.Target)
		}
	}
	return n, nil
}

func sortedKeys(set map[int]struct{}) []int {
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
