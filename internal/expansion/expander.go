// Package expansion grows a compound and reaction set outward from seed
// compounds, one reaction step at a time, within step, compound count and
// carbon limits.
package expansion

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Benny93/minet-go/internal/metrics"
	"github.com/Benny93/minet-go/internal/mine"
)

// Fetcher retrieves records by id in batches. The returned slices may be
// shorter than ids, unordered, and hold nil entries for ids that could not
// be fetched. A batch call returns only once the whole batch is done.
type Fetcher interface {
	GetCompounds(ctx context.Context, ids []string) []*mine.Compound
	GetReactions(ctx context.Context, ids []string) []*mine.Reaction
}

// Limits bound an expansion.
type Limits struct {
	// Steps is the maximum number of reaction steps from the seeds.
	Steps int `json:"steps"`

	// Compounds caps the number of compounds collected.
	Compounds int `json:"compounds"`

	// Carbon excludes compounds with more carbon atoms, along with every
	// reaction they take part in.
	Carbon int `json:"carbon"`
}

// DefaultLimits returns the default expansion limits.
func DefaultLimits() Limits {
	return Limits{Steps: 10, Compounds: 100000, Carbon: 25}
}

// Result is the outcome of an expansion.
type Result struct {
	Compounds map[string]*mine.Compound
	Reactions map[string]*mine.Reaction

	// Steps is the number of steps executed.
	Steps int

	// ExcludedCompounds and ExcludedReactions count records rejected for
	// exceeding the carbon limit.
	ExcludedCompounds int
	ExcludedReactions int

	// CompoundLimitReached is set when expansion stopped at Limits.Compounds.
	CompoundLimitReached bool
}

// Expander runs breadth-first network expansions.
type Expander struct {
	fetcher Fetcher
	limits  Limits
	log     *zap.Logger
	metrics *metrics.Metrics
	onStep  func(step, compounds int)
}

// Option configures an Expander.
type Option func(*Expander)

// WithLogger sets the logger for per-record warnings and step summaries.
func WithLogger(log *zap.Logger) Option {
	return func(e *Expander) { e.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Expander) { e.metrics = m }
}

// WithStepCallback sets a function called after every finished step with
// the step number and the number of compounds collected so far.
func WithStepCallback(fn func(step, compounds int)) Option {
	return func(e *Expander) { e.onStep = fn }
}

// New creates an Expander.
func New(fetcher Fetcher, limits Limits, opts ...Option) *Expander {
	e := &Expander{
		fetcher: fetcher,
		limits:  limits,
		log:     zap.NewNop(),
		onStep:  func(int, int) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Expand collects the compounds and reactions reachable from seeds.
//
// Seeds over the carbon limit are dropped with a warning. Each step then
// fetches every reaction of the compounds found in the previous step that
// is not known yet, fetches their unknown participants, and admits a
// reaction together with its new participants unless one of them exceeds
// the carbon limit. Excluded compounds and reactions stay excluded for the
// rest of the run. Expansion ends after Limits.Steps steps, when a step
// finds no new reactions, or as soon as Limits.Compounds compounds have
// been collected.
//
// Records that cannot be fetched are skipped. The only error returned is
// the context's, together with the partial result.
func (e *Expander) Expand(ctx context.Context, seeds []string) (*Result, error) {
	res := &Result{
		Compounds: make(map[string]*mine.Compound),
		Reactions: make(map[string]*mine.Reaction),
	}

	for _, comp := range e.fetcher.GetCompounds(ctx, dedupe(seeds)) {
		if comp == nil {
			continue
		}
		if comp.ID == "" {
			e.log.Warn("seed compound has no id, skipping")
			continue
		}
		if comp.ExceedsCarbon(e.limits.Carbon) {
			e.log.Warn("seed compound exceeds the carbon limit and is excluded",
				zap.String("compound", comp.ID), zap.Int("carbon_limit", e.limits.Carbon))
			continue
		}
		if e.full(res) {
			e.log.Warn("compound limit reached while adding seeds", zap.String("compound", comp.ID))
			res.CompoundLimitReached = true
			return res, nil
		}
		res.Compounds[comp.ID] = comp
	}
	e.log.Info("step finished", zap.Int("step", 0), zap.Int("compounds", len(res.Compounds)))
	e.onStep(0, len(res.Compounds))
	if e.full(res) {
		e.log.Warn("compound limit reached by the seeds")
		res.CompoundLimitReached = true
		return res, nil
	}

	explored := make(map[string]bool)
	rxnExcluded := make(map[string]bool)
	compExcluded := make(map[string]bool)
	cache := make(map[string]*mine.Compound)

	for res.Steps < e.limits.Steps {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("expanding network: %w", err)
		}
		res.Steps++
		e.metrics.ExpansionStep()

		frontier := make([]string, 0)
		for id := range res.Compounds {
			if !explored[id] {
				frontier = append(frontier, id)
			}
		}
		sort.Strings(frontier)

		toFetch := make(map[string]bool)
		for _, id := range frontier {
			for _, rid := range mine.CompoundReactionIDs(res.Compounds[id]) {
				if res.Reactions[rid] == nil && !rxnExcluded[rid] {
					toFetch[rid] = true
				}
			}
		}
		if len(toFetch) == 0 {
			e.log.Info("no new reactions found", zap.Int("step", res.Steps))
			break
		}

		newRxns := e.fetcher.GetReactions(ctx, sortedSet(toFetch))

		compsToFetch := make(map[string]bool)
		for _, rxn := range newRxns {
			if rxn == nil {
				continue
			}
			for _, cid := range mine.ReactionCompoundIDs(rxn, e.log) {
				if res.Compounds[cid] == nil && cache[cid] == nil && !compExcluded[cid] {
					compsToFetch[cid] = true
				}
			}
		}
		for _, comp := range e.fetcher.GetCompounds(ctx, sortedSet(compsToFetch)) {
			if comp == nil {
				continue
			}
			if comp.ID == "" {
				e.log.Warn("compound has no id, skipping")
				continue
			}
			cache[comp.ID] = comp
		}

		sort.Slice(newRxns, func(i, j int) bool { return rxnID(newRxns[i]) < rxnID(newRxns[j]) })
		for _, rxn := range newRxns {
			if rxn == nil {
				continue
			}
			if rxn.ID == "" {
				e.log.Warn("reaction has no id, skipping")
				continue
			}
			if res.Reactions[rxn.ID] != nil || rxnExcluded[rxn.ID] {
				continue
			}

			admitted, ok := e.admit(rxn, res, cache, compExcluded, rxnExcluded)
			if !ok {
				continue
			}
			if !e.fits(res, admitted) {
				res.CompoundLimitReached = true
				e.finishStep(res)
				return res, nil
			}
			res.Reactions[rxn.ID] = rxn
			for _, cid := range admitted {
				res.Compounds[cid] = cache[cid]
			}
			if e.full(res) {
				res.CompoundLimitReached = true
				e.finishStep(res)
				return res, nil
			}
		}

		for _, id := range frontier {
			explored[id] = true
		}
		e.finishStep(res)
	}

	return res, nil
}

// admit walks the participants of rxn and returns those not collected yet.
// It reports false, after marking the compound and the reaction excluded,
// when a participant exceeds the carbon limit. Participants that were never
// fetched are passed over.
func (e *Expander) admit(
	rxn *mine.Reaction,
	res *Result,
	cache map[string]*mine.Compound,
	compExcluded, rxnExcluded map[string]bool,
) ([]string, bool) {
	var admitted []string
	for _, cid := range mine.ReactionCompoundIDs(rxn, nil) {
		if res.Compounds[cid] != nil {
			continue
		}
		comp := cache[cid]
		if comp == nil {
			continue
		}
		if compExcluded[cid] || comp.ExceedsCarbon(e.limits.Carbon) {
			if !compExcluded[cid] {
				compExcluded[cid] = true
				res.ExcludedCompounds++
				e.metrics.Excluded("compound")
			}
			rxnExcluded[rxn.ID] = true
			res.ExcludedReactions++
			e.metrics.Excluded("reaction")
			e.log.Debug("reaction excluded by carbon limit",
				zap.String("reaction", rxn.ID), zap.String("compound", cid))
			return nil, false
		}
		admitted = append(admitted, cid)
	}
	return admitted, true
}

func (e *Expander) full(res *Result) bool {
	return e.limits.Compounds > 0 && len(res.Compounds) >= e.limits.Compounds
}

// fits reports whether the new compounds of a reaction stay within the
// compound limit.
func (e *Expander) fits(res *Result, admitted []string) bool {
	if e.limits.Compounds <= 0 {
		return true
	}
	added := 0
	for _, cid := range admitted {
		if res.Compounds[cid] == nil {
			added++
		}
	}
	return len(res.Compounds)+added <= e.limits.Compounds
}

func (e *Expander) finishStep(res *Result) {
	e.log.Info("step finished",
		zap.Int("step", res.Steps),
		zap.Int("compounds", len(res.Compounds)),
		zap.Int("reactions", len(res.Reactions)))
	e.onStep(res.Steps, len(res.Compounds))
}

func rxnID(r *mine.Reaction) string {
	if r == nil {
		return ""
	}
	return r.ID
}

func dedupe(ids []string) []string {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return sortedSet(set)
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
