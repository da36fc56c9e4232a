package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/minet-go/internal/mine"
)

const (
	prefixCachedCompound = "c:"
	prefixCachedReaction = "r:"
)

// ErrRecordNotFound is returned by RecordStore lookups of unknown ids.
var ErrRecordNotFound = errors.New("record not found")

// RecordStore keeps MINE and KEGG records in a BadgerDB, keyed by record
// id. It serves as the read-through cache of MINE lookups and as the store
// of downloaded KEGG dumps.
type RecordStore struct {
	mu sync.RWMutex
	db *badger.DB
}

// OpenRecordStore opens or creates a record store at path.
func OpenRecordStore(path string, readOnly bool) (*RecordStore, error) {
	db, err := openBadger(path, readOnly)
	if err != nil {
		return nil, err
	}
	return &RecordStore{db: db}, nil
}

// Close releases the underlying database.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// GetCompound returns the compound stored under id.
func (s *RecordStore) GetCompound(id string) (*mine.Compound, error) {
	var c mine.Compound
	if err := s.get(prefixCachedCompound+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetReaction returns the reaction stored under id.
func (s *RecordStore) GetReaction(id string) (*mine.Reaction, error) {
	var r mine.Reaction
	if err := s.get(prefixCachedReaction+id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RecordStore) get(key string, v any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotInitialized
	}
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", key, ErrRecordNotFound)
		}
		if err != nil {
			return fmt.Errorf("getting %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// PutCompound stores c under its id.
func (s *RecordStore) PutCompound(c *mine.Compound) error {
	return s.put(prefixCachedCompound+c.ID, c)
}

// PutReaction stores r under its id.
func (s *RecordStore) PutReaction(r *mine.Reaction) error {
	return s.put(prefixCachedReaction+r.ID, r)
}

func (s *RecordStore) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotInitialized
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// PutRecords stores every record of recs in one write batch.
func (s *RecordStore) PutRecords(recs *mine.Records) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotInitialized
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for id, c := range recs.Compounds {
		if err := setJSON(wb, prefixCachedCompound+id, c); err != nil {
			return err
		}
	}
	for id, r := range recs.Reactions {
		if err := setJSON(wb, prefixCachedReaction+id, r); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Compounds returns every stored compound keyed by id.
func (s *RecordStore) Compounds() (map[string]*mine.Compound, error) {
	out := make(map[string]*mine.Compound)
	err := s.scan(prefixCachedCompound, func(id string, val []byte) error {
		var c mine.Compound
		if err := json.Unmarshal(val, &c); err != nil {
			return fmt.Errorf("unmarshaling compound %s: %w", id, err)
		}
		out[id] = &c
		return nil
	})
	return out, err
}

// Reactions returns every stored reaction keyed by id.
func (s *RecordStore) Reactions() (map[string]*mine.Reaction, error) {
	out := make(map[string]*mine.Reaction)
	err := s.scan(prefixCachedReaction, func(id string, val []byte) error {
		var r mine.Reaction
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("unmarshaling reaction %s: %w", id, err)
		}
		out[id] = &r
		return nil
	})
	return out, err
}

// Records loads the whole store.
func (s *RecordStore) Records() (*mine.Records, error) {
	comps, err := s.Compounds()
	if err != nil {
		return nil, err
	}
	rxns, err := s.Reactions()
	if err != nil {
		return nil, err
	}
	return &mine.Records{Compounds: comps, Reactions: rxns}, nil
}

func (s *RecordStore) scan(prefix string, fn func(id string, val []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotInitialized
	}
	return s.db.View(func(txn *badger.Txn) error {
		return iterate(txn, prefix, true, func(key string, val []byte) error {
			return fn(strings.TrimPrefix(key, prefix), val)
		})
	})
}

// Count returns the number of stored compounds and reactions.
func (s *RecordStore) Count() (compounds, reactions int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, 0, ErrNotInitialized
	}
	err = s.db.View(func(txn *badger.Txn) error {
		compounds = countKeys(txn, prefixCachedCompound)
		reactions = countKeys(txn, prefixCachedReaction)
		return nil
	})
	return compounds, reactions, err
}
