package repository

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// Translator maps KEGG compound ids to MINE compound ids.
type Translator struct {
	pool *Pool
	log  *zap.Logger
}

// NewTranslator creates a translator that looks ids up through pool.
func NewTranslator(pool *Pool, log *zap.Logger) *Translator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Translator{pool: pool, log: log}
}

// KeggToMine quick-searches every KEGG id, fetches the hits and maps each
// requested KEGG id a hit links to onto the hit's MINE id. Ids that end
// up without a MINE id are reported as warnings and left out of the result.
func (t *Translator) KeggToMine(ctx context.Context, keggIDs []string) map[string]string {
	hitSet := make(map[string]bool)
	for _, hits := range t.pool.QuickSearchAll(ctx, keggIDs) {
		for _, hit := range hits {
			if hit != nil && hit.ID != "" {
				hitSet[hit.ID] = true
			}
		}
	}
	hitIDs := make([]string, 0, len(hitSet))
	for id := range hitSet {
		hitIDs = append(hitIDs, id)
	}
	sort.Strings(hitIDs)

	wanted := make(map[string]bool, len(keggIDs))
	for _, id := range keggIDs {
		wanted[id] = true
	}
	out := make(map[string]string, len(keggIDs))
	for _, comp := range t.pool.GetCompounds(ctx, hitIDs) {
		if comp == nil {
			continue
		}
		for _, k := range comp.KEGGIDs() {
			if wanted[k] {
				out[k] = comp.ID
			}
		}
	}

	for _, id := range keggIDs {
		if _, ok := out[id]; !ok {
			t.log.Warn("KEGG id has no MINE id", zap.String("kegg_id", id))
		}
	}
	return out
}
