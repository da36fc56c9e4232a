// Package ingestion runs the minet build pipeline: it reads KEGG seed
// compounds, expands them into a MINE reaction network, optionally merges
// a KEGG dump, builds the quad-node network and stores it.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Benny93/minet-go/internal/expansion"
	"github.com/Benny93/minet-go/internal/graph"
	"github.com/Benny93/minet-go/internal/kegg"
	"github.com/Benny93/minet-go/internal/metrics"
	"github.com/Benny93/minet-go/internal/mine"
	"github.com/Benny93/minet-go/internal/storage"
)

// Pipeline phases, in order.
const (
	PhaseSeeds     = "Reading seeds"
	PhaseTranslate = "Translating ids"
	PhaseExpand    = "Expanding network"
	PhaseMerge     = "Merging KEGG records"
	PhaseBuild     = "Building network"
	PhaseIntegrate = "Integrating sources"
	PhaseSave      = "Saving network"
)

// ErrNoSeeds is returned when none of the seed compounds has a MINE id.
var ErrNoSeeds = errors.New("no seed compound could be translated to a MINE id")

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// Translator maps KEGG compound ids to MINE compound ids.
type Translator interface {
	KeggToMine(ctx context.Context, keggIDs []string) map[string]string
}

// RecordSource provides a complete set of reference records, such as a
// downloaded KEGG dump.
type RecordSource interface {
	Records() (*mine.Records, error)
}

// Options selects the seeds and limits of a run.
type Options struct {
	// SeedPath is a file of KEGG compound ids, one per line. When empty,
	// Seeds is used instead.
	SeedPath string
	Seeds    []string

	Limits expansion.Limits
}

// Deps are the collaborators of a run. Fetcher and Translator are
// required. Without KEGG no records are merged; without Store the network
// is not saved.
type Deps struct {
	Fetcher    expansion.Fetcher
	Translator Translator
	KEGG       RecordSource
	Store      storage.Backend
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Result summarizes a pipeline run.
type Result struct {
	RunID string

	// Seeds is the number of KEGG seed ids read, Translated the number of
	// distinct MINE ids they map to.
	Seeds      int
	Translated int

	Compounds  int
	Reactions  int
	Nodes      int
	Edges      int
	StartNodes int

	// Merged is the number of KEGG nodes folded into MINE nodes.
	Merged int

	DurationSecs float64
}

// RunPipeline runs the full build pipeline.
func RunPipeline(
	ctx context.Context,
	opts Options,
	deps Deps,
	progress ProgressCallback,
) (*graph.Network, *Result, error) {
	start := time.Now()
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if progress == nil {
		progress = func(string, float64) {}
	}
	if deps.Fetcher == nil || deps.Translator == nil {
		return nil, nil, errors.New("pipeline needs a fetcher and a translator")
	}
	result := &Result{RunID: uuid.NewString()}
	log = log.With(zap.String("run_id", result.RunID))

	// Phase 1: seeds
	progress(PhaseSeeds, 0.0)
	keggIDs, err := readSeeds(opts)
	if err != nil {
		return nil, nil, err
	}
	result.Seeds = len(keggIDs)
	progress(PhaseSeeds, 1.0)

	// Phase 2: KEGG to MINE
	progress(PhaseTranslate, 0.0)
	seeds := distinctValues(deps.Translator.KeggToMine(ctx, keggIDs))
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(seeds) == 0 {
		return nil, nil, ErrNoSeeds
	}
	result.Translated = len(seeds)
	progress(PhaseTranslate, 1.0)

	// Phase 3: expansion
	progress(PhaseExpand, 0.0)
	steps := opts.Limits.Steps
	exp := expansion.New(deps.Fetcher, opts.Limits,
		expansion.WithLogger(log),
		expansion.WithMetrics(deps.Metrics),
		expansion.WithStepCallback(func(step, _ int) {
			if steps > 0 {
				progress(PhaseExpand, float64(step)/float64(steps))
			}
		}),
	)
	raw, err := exp.Expand(ctx, seeds)
	if err != nil {
		return nil, nil, fmt.Errorf("expanding network: %w", err)
	}
	progress(PhaseExpand, 1.0)

	compounds, reactions := raw.Compounds, raw.Reactions

	// Phase 4: optional KEGG merge
	if deps.KEGG != nil {
		progress(PhaseMerge, 0.0)
		recs, err := deps.KEGG.Records()
		if err != nil {
			return nil, nil, fmt.Errorf("loading KEGG records: %w", err)
		}
		compounds, reactions = merge(compounds, reactions, recs)
		log.Info("merged KEGG records",
			zap.Int("compounds", len(recs.Compounds)),
			zap.Int("reactions", len(recs.Reactions)))
		progress(PhaseMerge, 1.0)
	}
	result.Compounds = len(compounds)
	result.Reactions = len(reactions)

	// Phase 5: network
	progress(PhaseBuild, 0.0)
	net := graph.NewBuilder(log, graph.ProgressFunc(progress)).Build(compounds, reactions, seeds, keggIDs)
	progress(PhaseBuild, 1.0)

	// Phase 6: integration
	if deps.KEGG != nil {
		progress(PhaseIntegrate, 0.0)
		stats := graph.Integrate(net, log, graph.ProgressFunc(progress))
		result.Merged = stats.Merged
		progress(PhaseIntegrate, 1.0)
	}

	result.Nodes = net.NodeCount()
	result.Edges = net.EdgeCount()
	result.StartNodes = len(net.StartNodes())
	deps.Metrics.SetNetwork(net)

	// Phase 7: storage
	if deps.Store != nil {
		progress(PhaseSave, 0.0)
		meta := storage.RunMeta{
			ID:            result.RunID,
			CreatedAt:     time.Now().UTC(),
			Seeds:         keggIDs,
			Steps:         raw.Steps,
			CompoundLimit: opts.Limits.Compounds,
			CarbonLimit:   opts.Limits.Carbon,
			KEGGMerged:    deps.KEGG != nil,
		}
		if err := deps.Store.SaveNetwork(ctx, net, meta); err != nil {
			return nil, nil, fmt.Errorf("saving network: %w", err)
		}
		progress(PhaseSave, 1.0)
	}

	result.DurationSecs = time.Since(start).Seconds()
	log.Info("pipeline finished",
		zap.Int("nodes", result.Nodes),
		zap.Int("edges", result.Edges),
		zap.Float64("seconds", result.DurationSecs))
	return net, result, nil
}

func readSeeds(opts Options) ([]string, error) {
	if opts.SeedPath == "" {
		if len(opts.Seeds) == 0 {
			return nil, errors.New("no seed compounds given")
		}
		return opts.Seeds, nil
	}
	f, err := os.Open(opts.SeedPath)
	if err != nil {
		return nil, fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	ids, err := kegg.ReadCompoundIDs(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", opts.SeedPath, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s lists no compounds", opts.SeedPath)
	}
	return ids, nil
}

// distinctValues returns the sorted distinct values of m.
func distinctValues(m map[string]string) []string {
	set := make(map[string]bool, len(m))
	for _, v := range m {
		set[v] = true
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// merge returns new maps holding both record sets. Records of the first
// set win on id clashes.
func merge(
	compounds map[string]*mine.Compound,
	reactions map[string]*mine.Reaction,
	extra *mine.Records,
) (map[string]*mine.Compound, map[string]*mine.Reaction) {
	comps := make(map[string]*mine.Compound, len(compounds)+len(extra.Compounds))
	for id, c := range extra.Compounds {
		comps[id] = c
	}
	for id, c := range compounds {
		comps[id] = c
	}
	rxns := make(map[string]*mine.Reaction, len(reactions)+len(extra.Reactions))
	for id, r := range extra.Reactions {
		rxns[id] = r
	}
	for id, r := range reactions {
		rxns[id] = r
	}
	return comps, rxns
}
