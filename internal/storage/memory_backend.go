package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Benny93/minet-go/internal/graph"
)

// MemoryBackend keeps the network in memory. It backs tests and dry runs.
type MemoryBackend struct {
	mu          sync.RWMutex
	initialized bool
	net         *graph.Network
	meta        *RunMeta
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Initialize implements Backend. The path is ignored.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	m.net = nil
	m.meta = nil
	return nil
}

// SaveNetwork implements Backend. The network is stored by reference and
// must not be mutated afterwards.
func (m *MemoryBackend) SaveNetwork(ctx context.Context, n *graph.Network, meta RunMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return ErrNotInitialized
	}
	if meta.Stats == nil {
		meta.Stats = n.Stats()
	}
	m.net = n
	m.meta = &meta
	return nil
}

// LoadNetwork implements Backend.
func (m *MemoryBackend) LoadNetwork(ctx context.Context) (*graph.Network, *RunMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, nil, err
	}
	meta := *m.meta
	return m.net, &meta, nil
}

func (m *MemoryBackend) ready() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if m.net == nil {
		return ErrNoNetwork
	}
	return nil
}

// GetNode implements Backend.
func (m *MemoryBackend) GetNode(ctx context.Context, id int) (*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.net.Node(id), nil
}

// FindCompound implements Backend.
func (m *MemoryBackend) FindCompound(ctx context.Context, mineID string) (*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, err
	}
	id, ok := m.net.CompoundNode(mineID)
	if !ok {
		return nil, nil
	}
	return m.net.Node(id), nil
}

// Neighbors implements Backend.
func (m *MemoryBackend) Neighbors(ctx context.Context, id int, dir Direction) ([]*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, err
	}
	var ids []int
	if dir != Incoming {
		ids = append(ids, m.net.Successors(id)...)
	}
	if dir != Outgoing {
		ids = append(ids, m.net.Predecessors(id)...)
	}
	return m.resolve(ids), nil
}

func (m *MemoryBackend) resolve(ids []int) []*graph.Node {
	sort.Ints(ids)
	var out []*graph.Node
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		if node := m.net.Node(id); node != nil {
			out = append(out, node)
		}
	}
	return out
}

// NodesByKind implements Backend.
func (m *MemoryBackend) NodesByKind(ctx context.Context, kind graph.NodeKind) ([]*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.net.NodesByKind(kind), nil
}

// Record implements Backend.
func (m *MemoryBackend) Record(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, err
	}
	recs := m.net.Records()
	if c := recs.Compound(id); c != nil {
		return &Record{Compound: c}, nil
	}
	if r := recs.Reaction(id); r != nil {
		return &Record{Reaction: r}, nil
	}
	return nil, nil
}

// Meta implements Backend.
func (m *MemoryBackend) Meta(ctx context.Context) (*RunMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, err
	}
	meta := *m.meta
	return &meta, nil
}

// NodeCount returns the number of stored nodes.
func (m *MemoryBackend) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.net == nil {
		return 0
	}
	return m.net.NodeCount()
}

// EdgeCount returns the number of stored edges.
func (m *MemoryBackend) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.net == nil {
		return 0
	}
	return m.net.EdgeCount()
}

// SearchCompounds implements Backend by scanning every compound node.
func (m *MemoryBackend) SearchCompounds(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ready(); err != nil {
		return nil, err
	}

	queryTokens := tokenize(query)
	recs := m.net.Records()
	var results []SearchResult
	for _, node := range m.net.NodesByKind(graph.KindCompound) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := recs.Compound(node.MineID)
		freq := compoundTokens(node.MineID, c)
		score := 0.0
		for _, tok := range queryTokens {
			score += float64(freq[tok])
		}
		if score > 0 {
			results = append(results, newSearchResult(node, c, score))
		}
	}
	return rankResults(results, limit), nil
}
