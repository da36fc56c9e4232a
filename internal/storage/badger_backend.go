package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/minet-go/internal/graph"
	"github.com/Benny93/minet-go/internal/mine"
)

// Key prefixes for different data types
const (
	prefixNode     = "n:" // node id -> node
	prefixOutgoing = "o:" // source:target -> nil
	prefixIncoming = "i:" // target:source -> nil
	prefixCompound = "x:" // compound id -> node id
	prefixRecord   = "m:" // record id -> Record
	prefixToken    = "t:" // token:node id -> frequency
	keyMeta        = "meta"
)

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db        *badger.DB
	mu        sync.RWMutex
	nodeCount int
	edgeCount int
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	db, err := openBadger(path, readOnly)
	if err != nil {
		return err
	}
	b.db = db
	return b.recount()
}

func openBadger(path string, readOnly bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR)
	if readOnly {
		opts = opts.WithReadOnly(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger DB: %w", err)
	}
	return db, nil
}

// recount restores the node and edge counters from the keys on disk.
func (b *BadgerBackend) recount() error {
	return b.db.View(func(txn *badger.Txn) error {
		b.nodeCount = countKeys(txn, prefixNode)
		b.edgeCount = countKeys(txn, prefixOutgoing)
		return nil
	})
}

func countKeys(txn *badger.Txn, prefix string) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// SaveNetwork drops the stored network and bulk loads n in a write batch.
func (b *BadgerBackend) SaveNetwork(ctx context.Context, n *graph.Network, meta RunMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return ErrNotInitialized
	}

	err := b.db.DropPrefix(
		[]byte(prefixNode), []byte(prefixOutgoing), []byte(prefixIncoming),
		[]byte(prefixCompound), []byte(prefixRecord), []byte(prefixToken), []byte(keyMeta),
	)
	if err != nil {
		return fmt.Errorf("dropping previous network: %w", err)
	}
	b.nodeCount, b.edgeCount = 0, 0

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	recs := n.Records()
	for _, node := range n.Nodes() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(node)
		if err != nil {
			return fmt.Errorf("marshaling node: %w", err)
		}
		if err := wb.Set(nodeKey(node.ID), data); err != nil {
			return fmt.Errorf("setting node: %w", err)
		}
		if node.Kind == graph.KindCompound {
			if err := wb.Set([]byte(prefixCompound+node.MineID), []byte(strconv.Itoa(node.ID))); err != nil {
				return fmt.Errorf("setting compound index: %w", err)
			}
			for tok, freq := range compoundTokens(node.MineID, recs.Compound(node.MineID)) {
				if err := wb.Set(tokenKey(tok, node.ID), []byte(strconv.Itoa(freq))); err != nil {
					return fmt.Errorf("setting name index: %w", err)
				}
			}
		}
	}

	for _, e := range n.Edges() {
		if err := wb.Set(edgeKey(prefixOutgoing, e.Source, e.Target), nil); err != nil {
			return fmt.Errorf("setting outgoing index: %w", err)
		}
		if err := wb.Set(edgeKey(prefixIncoming, e.Target, e.Source), nil); err != nil {
			return fmt.Errorf("setting incoming index: %w", err)
		}
	}

	for id, c := range recs.Compounds {
		if err := setJSON(wb, prefixRecord+id, Record{Compound: c}); err != nil {
			return err
		}
	}
	for id, r := range recs.Reactions {
		if err := setJSON(wb, prefixRecord+id, Record{Reaction: r}); err != nil {
			return err
		}
	}

	if meta.Stats == nil {
		meta.Stats = n.Stats()
	}
	if err := setJSON(wb, keyMeta, meta); err != nil {
		return err
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing network: %w", err)
	}
	b.nodeCount = n.NodeCount()
	b.edgeCount = n.EdgeCount()
	return nil
}

func setJSON(wb *badger.WriteBatch, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := wb.Set([]byte(key), data); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// LoadNetwork implements Backend.
func (b *BadgerBackend) LoadNetwork(ctx context.Context) (*graph.Network, *RunMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, nil, ErrNotInitialized
	}

	var (
		meta RunMeta
		snap = &graph.Snapshot{Records: mine.NewRecords(nil, nil)}
	)
	err := b.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, keyMeta, &meta); err != nil {
			return err
		}

		err := iterate(txn, prefixNode, true, func(_ string, val []byte) error {
			var node graph.Node
			if err := json.Unmarshal(val, &node); err != nil {
				return fmt.Errorf("unmarshaling node: %w", err)
			}
			snap.Nodes = append(snap.Nodes, &node)
			return ctx.Err()
		})
		if err != nil {
			return err
		}

		err = iterate(txn, prefixOutgoing, false, func(key string, _ []byte) error {
			src, tgt, err := parseEdgeKey(key)
			if err != nil {
				return err
			}
			snap.Edges = append(snap.Edges, graph.Edge{Source: src, Target: tgt})
			return nil
		})
		if err != nil {
			return err
		}

		return iterate(txn, prefixRecord, true, func(key string, val []byte) error {
			var rec Record
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			id := strings.TrimPrefix(key, prefixRecord)
			switch {
			case rec.Compound != nil:
				snap.Records.Compounds[id] = rec.Compound
			case rec.Reaction != nil:
				snap.Records.Reactions[id] = rec.Reaction
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	n, err := graph.FromSnapshot(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuilding network: %w", err)
	}
	return n, &meta, nil
}

// GetNode returns a single node by id, or nil if not found.
func (b *BadgerBackend) GetNode(ctx context.Context, id int) (*graph.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, ErrNotInitialized
	}

	var node *graph.Node
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNode(txn, id)
		return err
	})
	return node, err
}

func getNode(txn *badger.Txn, id int) (*graph.Node, error) {
	var node graph.Node
	err := getJSON(txn, string(nodeKey(id)), &node)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// FindCompound looks the compound up in the compound index.
func (b *BadgerBackend) FindCompound(ctx context.Context, mineID string) (*graph.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, ErrNotInitialized
	}

	var node *graph.Node
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixCompound + mineID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting compound index: %w", err)
		}
		var id int
		if err := item.Value(func(val []byte) error {
			id, err = strconv.Atoi(string(val))
			return err
		}); err != nil {
			return fmt.Errorf("reading compound index: %w", err)
		}
		node, err = getNode(txn, id)
		return err
	})
	return node, err
}

// Neighbors scans the adjacency indexes of id.
func (b *BadgerBackend) Neighbors(ctx context.Context, id int, dir Direction) ([]*graph.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, ErrNotInitialized
	}

	var nodes []*graph.Node
	err := b.db.View(func(txn *badger.Txn) error {
		seen := make(map[int]bool)
		var ids []int
		collect := func(prefix string) error {
			p := fmt.Sprintf("%s%010d:", prefix, id)
			return iterate(txn, p, false, func(key string, _ []byte) error {
				_, other, err := parseEdgeKey(key)
				if err != nil {
					return err
				}
				if !seen[other] {
					seen[other] = true
					ids = append(ids, other)
				}
				return nil
			})
		}
		if dir != Incoming {
			if err := collect(prefixOutgoing); err != nil {
				return err
			}
		}
		if dir != Outgoing {
			if err := collect(prefixIncoming); err != nil {
				return err
			}
		}

		sort.Ints(ids)
		for _, other := range ids {
			node, err := getNode(txn, other)
			if err != nil {
				return err
			}
			if node != nil {
				nodes = append(nodes, node)
			}
		}
		return nil
	})
	return nodes, err
}

// NodesByKind returns all nodes of the given kind in id order.
func (b *BadgerBackend) NodesByKind(ctx context.Context, kind graph.NodeKind) ([]*graph.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, ErrNotInitialized
	}

	var nodes []*graph.Node
	err := b.db.View(func(txn *badger.Txn) error {
		return iterate(txn, prefixNode, true, func(_ string, val []byte) error {
			var node graph.Node
			if err := json.Unmarshal(val, &node); err != nil {
				return fmt.Errorf("unmarshaling node: %w", err)
			}
			if node.Kind == kind {
				nodes = append(nodes, &node)
			}
			return nil
		})
	})
	return nodes, err
}

// Record returns the stored reference record, or nil.
func (b *BadgerBackend) Record(ctx context.Context, id string) (*Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, ErrNotInitialized
	}

	var rec *Record
	err := b.db.View(func(txn *badger.Txn) error {
		var r Record
		err := getJSON(txn, prefixRecord+id, &r)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rec = &r
		return nil
	})
	return rec, err
}

// Meta returns the stored run metadata, or ErrNoNetwork.
func (b *BadgerBackend) Meta(ctx context.Context) (*RunMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, ErrNotInitialized
	}

	var meta RunMeta
	if err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyMeta, &meta)
	}); err != nil {
		return nil, err
	}
	return &meta, nil
}

// NodeCount returns the number of stored nodes.
func (b *BadgerBackend) NodeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodeCount
}

// EdgeCount returns the number of stored edges.
func (b *BadgerBackend) EdgeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.edgeCount
}

// SearchCompounds implements Backend.
func (b *BadgerBackend) SearchCompounds(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, ErrNotInitialized
	}

	var results []SearchResult
	err := b.db.View(func(txn *badger.Txn) error {
		scores := make(map[int]float64)
		for _, tok := range tokenize(query) {
			prefix := prefixToken + tok + ":"
			err := iterate(txn, prefix, true, func(key string, val []byte) error {
				id, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
				if err != nil {
					return fmt.Errorf("parsing name index key %q: %w", key, err)
				}
				freq, _ := strconv.Atoi(string(val))
				scores[id] += float64(freq)
				return nil
			})
			if err != nil {
				return err
			}
		}

		for id, score := range scores {
			if err := ctx.Err(); err != nil {
				return err
			}
			node, err := getNode(txn, id)
			if err != nil || node == nil {
				continue
			}
			var rec Record
			if err := getJSON(txn, prefixRecord+node.MineID, &rec); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			results = append(results, newSearchResult(node, rec.Compound, score))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rankResults(results, limit), nil
}

func tokenKey(token string, id int) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", prefixToken, token, id))
}

func nodeKey(id int) []byte {
	return []byte(fmt.Sprintf("%s%010d", prefixNode, id))
}

func edgeKey(prefix string, from, to int) []byte {
	return []byte(fmt.Sprintf("%s%010d:%010d", prefix, from, to))
}

// parseEdgeKey splits an adjacency key into its two node ids.
func parseEdgeKey(key string) (int, int, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("malformed edge key %q", key)
	}
	from, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed edge key %q: %w", key, err)
	}
	to, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed edge key %q: %w", key, err)
	}
	return from, to, nil
}

// getJSON decodes the value at key. A missing meta key is reported as
// ErrNoNetwork, other missing keys as badger.ErrKeyNotFound.
func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) && key == keyMeta {
		return ErrNoNetwork
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("unmarshaling %s: %w", key, err)
		}
		return nil
	})
}

// iterate calls fn for every key under prefix in key order.
func iterate(txn *badger.Txn, prefix string, values bool, fn func(key string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = values
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := string(item.Key())
		if !values {
			if err := fn(key, nil); err != nil {
				return err
			}
			continue
		}
		if err := item.Value(func(val []byte) error {
			return fn(key, val)
		}); err != nil {
			return err
		}
	}
	return nil
}
