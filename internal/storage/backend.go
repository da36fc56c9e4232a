// Package storage persists built reaction networks and fetched records.
//
// A Backend holds one network at a time together with the metadata of the
// run that produced it. Saving a network replaces the previous one.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Benny93/minet-go/internal/graph"
	"github.com/Benny93/minet-go/internal/mine"
)

var (
	// ErrNotInitialized is returned by backends used before Initialize.
	ErrNotInitialized = errors.New("storage backend is not initialized")

	// ErrNoNetwork is returned when no network has been saved yet.
	ErrNoNetwork = errors.New("no network stored")
)

// Direction selects which edges Neighbors follows.
type Direction uint8

const (
	// Outgoing follows edges away from the node.
	Outgoing Direction = iota
	// Incoming follows edges into the node.
	Incoming
	// Both follows edges in either direction.
	Both
)

// String returns the direction name accepted by ParseDirection.
func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "out"
	case Incoming:
		return "in"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// ParseDirection parses "out", "in" or "both". An empty string means Both.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "out", "outgoing", "successors":
		return Outgoing, nil
	case "in", "incoming", "predecessors":
		return Incoming, nil
	case "", "both":
		return Both, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// RunMeta describes the run that produced a stored network.
type RunMeta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Seeds     []string  `json:"seeds,omitempty"`

	Steps         int `json:"steps"`
	CompoundLimit int `json:"compound_limit"`
	CarbonLimit   int `json:"carbon_limit"`

	// KEGGMerged is set when KEGG records were merged and integrated.
	KEGGMerged bool `json:"kegg_merged,omitempty"`

	Stats map[string]int `json:"stats,omitempty"`
}

// Record is a stored reference record. Exactly one field is set.
type Record struct {
	Compound *mine.Compound `json:"compound,omitempty"`
	Reaction *mine.Reaction `json:"reaction,omitempty"`
}

// Backend defines the interface for network storage.
//
// Implementations must be safe for concurrent use. Lookups of unknown nodes
// or records return nil without an error.
type Backend interface {
	// Initialize opens or creates the store at path.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// SaveNetwork replaces the stored network with n.
	SaveNetwork(ctx context.Context, n *graph.Network, meta RunMeta) error

	// LoadNetwork rebuilds the stored network.
	LoadNetwork(ctx context.Context) (*graph.Network, *RunMeta, error)

	// GetNode returns the node with the given id.
	GetNode(ctx context.Context, id int) (*graph.Node, error)

	// FindCompound returns the compound node of a MINE or KEGG compound id.
	FindCompound(ctx context.Context, mineID string) (*graph.Node, error)

	// Neighbors returns the nodes adjacent to id, ordered by node id.
	Neighbors(ctx context.Context, id int, dir Direction) ([]*graph.Node, error)

	// NodesByKind returns all nodes of a kind, ordered by node id.
	NodesByKind(ctx context.Context, kind graph.NodeKind) ([]*graph.Node, error)

	// Record returns the reference record with the given id.
	Record(ctx context.Context, id string) (*Record, error)

	// SearchCompounds ranks compound nodes by how many query tokens their
	// id, names and formula share. A positive limit caps the result.
	SearchCompounds(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// Meta returns the metadata of the stored network.
	Meta(ctx context.Context) (*RunMeta, error)

	NodeCount() int
	EdgeCount() int
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*BadgerBackend)(nil)
)
