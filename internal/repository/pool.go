package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/minet-go/internal/expansion"
	"github.com/Benny93/minet-go/internal/mine"
)

// Repository fetches single MINE records. Client and CachingRepository
// implement it.
type Repository interface {
	QuickSearch(ctx context.Context, query string) ([]*mine.Compound, error)
	GetCompound(ctx context.Context, id string) (*mine.Compound, error)
	GetReaction(ctx context.Context, id string) (*mine.Reaction, error)
}

var (
	_ Repository        = (*Client)(nil)
	_ expansion.Fetcher = (*Pool)(nil)
)

// DefaultWorkers is the default number of concurrent requests of a Pool.
const DefaultWorkers = 100

// Pool runs batches of record lookups on a bounded number of workers. A
// batch call returns once every id of the batch has been handled.
type Pool struct {
	repo    Repository
	workers int
	log     *zap.Logger
}

// NewPool creates a pool of workers over repo.
func NewPool(repo Repository, workers int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{repo: repo, workers: workers, log: log}
}

// GetCompounds fetches the given compounds. The result has one slot per id,
// nil where the lookup failed.
func (p *Pool) GetCompounds(ctx context.Context, ids []string) []*mine.Compound {
	out := make([]*mine.Compound, len(ids))
	p.run(ctx, len(ids), func(ctx context.Context, i int) {
		comp, err := p.repo.GetCompound(ctx, ids[i])
		if err != nil {
			p.warn("unable to fetch compound", "compound", ids[i], err)
			return
		}
		out[i] = comp
	})
	return out
}

// GetReactions fetches the given reactions, see GetCompounds.
func (p *Pool) GetReactions(ctx context.Context, ids []string) []*mine.Reaction {
	out := make([]*mine.Reaction, len(ids))
	p.run(ctx, len(ids), func(ctx context.Context, i int) {
		rxn, err := p.repo.GetReaction(ctx, ids[i])
		if err != nil {
			p.warn("unable to fetch reaction", "reaction", ids[i], err)
			return
		}
		out[i] = rxn
	})
	return out
}

// QuickSearchAll runs one quick search per query. The result has one slot
// per query; failed searches leave an empty slot.
func (p *Pool) QuickSearchAll(ctx context.Context, queries []string) [][]*mine.Compound {
	out := make([][]*mine.Compound, len(queries))
	p.run(ctx, len(queries), func(ctx context.Context, i int) {
		comps, err := p.repo.QuickSearch(ctx, queries[i])
		if err != nil {
			p.warn("quick search failed", "query", queries[i], err)
			return
		}
		out[i] = comps
	})
	return out
}

func (p *Pool) run(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pool) warn(msg, key, id string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	p.log.Warn(msg, zap.String(key, id), zap.Error(err))
}
