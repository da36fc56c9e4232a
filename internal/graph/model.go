// Package graph provides the reaction network data model for minet.
//
// A network is a directed graph with one node per compound and four role
// nodes per reaction (a "quad reaction node"): reactants and products of the
// forward direction, and reactants and products of the reverse direction.
package graph

import (
	"fmt"
)

// NodeKind is the type of a network node.
type NodeKind uint8

const (
	// KindCompound is a compound node.
	KindCompound NodeKind = iota + 1
	// KindReactantsForward groups the reactants of the forward reaction.
	KindReactantsForward
	// KindProductsForward groups the products of the forward reaction.
	KindProductsForward
	// KindReactantsReverse groups the reactants of the reverse reaction,
	// which are the products of the forward one.
	KindReactantsReverse
	// KindProductsReverse groups the products of the reverse reaction.
	KindProductsReverse
)

// ReactionKinds lists the four role kinds in the order they are created.
var ReactionKinds = []NodeKind{
	KindReactantsForward,
	KindProductsForward,
	KindReactantsReverse,
	KindProductsReverse,
}

// String returns the short tag of the kind.
func (k NodeKind) String() string {
	switch k {
	case KindCompound:
		return "c"
	case KindReactantsForward:
		return "rf"
	case KindProductsForward:
		return "pf"
	case KindReactantsReverse:
		return "rr"
	case KindProductsReverse:
		return "pr"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// Description returns a human readable name for the kind.
func (k NodeKind) Description() string {
	switch k {
	case KindCompound:
		return "compound"
	case KindReactantsForward:
		return "reactants (forward)"
	case KindProductsForward:
		return "products (forward)"
	case KindReactantsReverse:
		return "reactants (reverse)"
	case KindProductsReverse:
		return "products (reverse)"
	default:
		return "unknown"
	}
}

// IsReaction reports whether the kind is one of the four reaction roles.
func (k NodeKind) IsReaction() bool {
	switch k {
	case KindReactantsForward, KindProductsForward, KindReactantsReverse, KindProductsReverse:
		return true
	default:
		return false
	}
}

// ParseNodeKind parses a short kind tag.
func ParseNodeKind(s string) (NodeKind, error) {
	switch s {
	case "c":
		return KindCompound, nil
	case "rf":
		return KindReactantsForward, nil
	case "pf":
		return KindProductsForward, nil
	case "rr":
		return KindReactantsReverse, nil
	case "pr":
		return KindProductsReverse, nil
	default:
		return 0, fmt.Errorf("unknown node kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k NodeKind) MarshalText() ([]byte, error) {
	if k != KindCompound && !k.IsReaction() {
		return nil, fmt.Errorf("invalid node kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *NodeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Node is a node of the reaction network.
type Node struct {
	// ID is the integer node id, assigned consecutively from 1.
	ID int `json:"id"`

	// Kind is the node type.
	Kind NodeKind `json:"kind"`

	// MineID is the compound id for compound nodes and the reaction id for
	// role nodes.
	MineID string `json:"mid"`

	// Start marks compound nodes that are network start points (seeds).
	Start bool `json:"start,omitempty"`

	// Members holds the compound node ids on the side of the equation a
	// role node stands for, in ascending order. Empty for compound nodes.
	Members []int `json:"members,omitempty"`
}

// HasMember reports whether the role node lists compound node id.
func (n *Node) HasMember(id int) bool {
	for _, m := range n.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Edge is a directed edge between two nodes.
type Edge struct {
	Source int `json:"source"`
	Target int `json:"target"`
}
