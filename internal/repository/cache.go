package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/Benny93/minet-go/internal/mine"
)

// RecordCache stores fetched records between runs. A lookup error is
// treated as a miss.
type RecordCache interface {
	GetCompound(id string) (*mine.Compound, error)
	GetReaction(id string) (*mine.Reaction, error)
	PutCompound(c *mine.Compound) error
	PutReaction(r *mine.Reaction) error
}

// CachingRepository is a read-through cache in front of a Repository.
// Quick searches are not cached.
type CachingRepository struct {
	Repository
	cache RecordCache
	log   *zap.Logger
}

// NewCachingRepository wraps repo with cache.
func NewCachingRepository(repo Repository, cache RecordCache, log *zap.Logger) *CachingRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachingRepository{Repository: repo, cache: cache, log: log}
}

// GetCompound implements Repository.
func (r *CachingRepository) GetCompound(ctx context.Context, id string) (*mine.Compound, error) {
	if comp, err := r.cache.GetCompound(id); err == nil && comp != nil {
		return comp, nil
	}
	comp, err := r.Repository.GetCompound(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.PutCompound(comp); err != nil {
		r.log.Debug("unable to cache compound", zap.String("compound", id), zap.Error(err))
	}
	return comp, nil
}

// GetReaction implements Repository.
func (r *CachingRepository) GetReaction(ctx context.Context, id string) (*mine.Reaction, error) {
	if rxn, err := r.cache.GetReaction(id); err == nil && rxn != nil {
		return rxn, nil
	}
	rxn, err := r.Repository.GetReaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.PutReaction(rxn); err != nil {
		r.log.Debug("unable to cache reaction", zap.String("reaction", id), zap.Error(err))
	}
	return rxn, nil
}
