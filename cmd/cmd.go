// Package cmd provides CLI command implementations for minet.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Benny93/minet-go/internal/config"
	"github.com/Benny93/minet-go/internal/ingestion"
	"github.com/Benny93/minet-go/internal/kegg"
	"github.com/Benny93/minet-go/internal/logging"
	"github.com/Benny93/minet-go/internal/metrics"
	"github.com/Benny93/minet-go/internal/repository"
	"github.com/Benny93/minet-go/internal/storage"
	"github.com/Benny93/minet-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Globals are the flags shared by all commands.
type Globals struct {
	Config  string           `type:"path" help:"Config file (default ./minet.yaml)"`
	Verbose bool             `short:"v" help:"Enable verbose output"`
	Quiet   bool             `short:"q" help:"Suppress non-essential output"`
	Version kong.VersionFlag `help:"Show version information"`

	stdin  io.Reader `kong:"-"`
	stdout io.Writer `kong:"-"`
	stderr io.Writer `kong:"-"`
}

// env is the per-command runtime built from Globals.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	out      io.Writer
	errOut   io.Writer
	quiet    bool
}

func (g *Globals) setup() (*env, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Verbose: g.Verbose,
		Quiet:   g.Quiet,
		Output:  g.stderr,
	})
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	return &env{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  metrics.New(reg),
		out:      g.stdout,
		errOut:   g.stderr,
		quiet:    g.Quiet,
	}, nil
}

// finish writes the metrics textfile when configured and flushes the log.
func (e *env) finish() {
	if e.cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(e.cfg.MetricsFile, e.registry); err != nil {
			e.log.Warn("metrics not written", zap.Error(err))
		}
	}
	_ = e.log.Sync()
}

func (e *env) success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(e.out, format+"\n", args...)
}

// openNetwork opens the stored network read-only.
func (e *env) openNetwork() (*storage.BadgerBackend, error) {
	dir := e.cfg.NetworkDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("no network found at %s. Run 'minet build' first", dir)
	}
	store := storage.NewBadgerBackend()
	if err := store.Initialize(dir, true); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// mineFetcher wires the MINE client, the optional record cache and the
// worker pool. The returned close function releases the cache.
func (e *env) mineFetcher() (*repository.Pool, func(), error) {
	var repo repository.Repository = repository.NewClient(e.cfg.RepositoryOptions(e.log, e.metrics))
	closeFn := func() {}
	if e.cfg.Cache {
		cache, err := storage.OpenRecordStore(e.cfg.CacheDir(), false)
		if err != nil {
			return nil, nil, fmt.Errorf("opening MINE cache: %w", err)
		}
		repo = repository.NewCachingRepository(repo, cache, e.log)
		closeFn = func() { _ = cache.Close() }
	}
	return repository.NewPool(repo, e.cfg.MINE.Workers, e.log), closeFn, nil
}

// InitCmd writes a config file holding the defaults.
type InitCmd struct {
	Force bool `short:"f" help:"Overwrite an existing file"`
}

// Run executes the init command.
func (c *InitCmd) Run(g *Globals) error {
	path := g.Config
	if path == "" {
		path = config.FileName
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", path)
	}
	if err := config.Default().Write(path); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(g.stdout, "Wrote %s\n", path)
	return nil
}

// BuildCmd expands seed compounds into a reaction network and stores it.
type BuildCmd struct {
	Seeds     string `arg:"" type:"existingfile" help:"File of KEGG compound ids, one per line"`
	Steps     int    `short:"r" default:"-1" help:"Expansion steps (default from config)"`
	Compounds int    `short:"c" default:"-1" help:"Compound limit (default from config)"`
	Carbon    int    `short:"C" default:"-1" help:"Carbon limit, 0 admits only carbon-free compounds (default from config)"`
	KEGGStore string `name:"kegg-store" type:"path" help:"Merge the KEGG records downloaded to this directory"`
	Out       string `type:"path" help:"Network store directory (default <data_dir>/network)"`
	DryRun    bool   `help:"Build in memory without saving"`
}

// Run executes the build command.
func (c *BuildCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	defer e.finish()

	ctx, stop := signalContext()
	defer stop()

	res, err := c.build(ctx, e)
	if err != nil {
		return err
	}

	e.success("✓ Network built")
	fmt.Fprintf(e.out, "  Seeds:        %d (%d translated)\n", res.Seeds, res.Translated)
	fmt.Fprintf(e.out, "  Compounds:    %d\n", res.Compounds)
	fmt.Fprintf(e.out, "  Reactions:    %d\n", res.Reactions)
	fmt.Fprintf(e.out, "  Nodes:        %d (%d start)\n", res.Nodes, res.StartNodes)
	fmt.Fprintf(e.out, "  Edges:        %d\n", res.Edges)
	if res.Merged > 0 {
		fmt.Fprintf(e.out, "  KEGG merged:  %d\n", res.Merged)
	}
	fmt.Fprintf(e.out, "  Duration:     %.2fs\n", res.DurationSecs)
	return nil
}

func (c *BuildCmd) build(ctx context.Context, e *env) (*ingestion.Result, error) {
	cfg := *e.cfg
	if c.Steps >= 0 {
		cfg.Limits.Steps = c.Steps
	}
	if c.Compounds >= 0 {
		cfg.Limits.Compounds = c.Compounds
	}
	if c.Carbon >= 0 {
		cfg.Limits.Carbon = c.Carbon
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	limits := cfg.ExpansionLimits()

	pool, closeCache, err := e.mineFetcher()
	if err != nil {
		return nil, err
	}
	defer closeCache()

	deps := ingestion.Deps{
		Fetcher:    pool,
		Translator: repository.NewTranslator(pool, e.log),
		Logger:     e.log,
		Metrics:    e.metrics,
	}

	if c.KEGGStore != "" {
		keggStore, err := storage.OpenRecordStore(c.KEGGStore, true)
		if err != nil {
			return nil, fmt.Errorf("opening KEGG store: %w", err)
		}
		defer func() { _ = keggStore.Close() }()
		deps.KEGG = keggStore
	}

	var store storage.Backend
	if c.DryRun {
		store = storage.NewMemoryBackend()
	} else {
		store = storage.NewBadgerBackend()
	}
	out := c.Out
	if out == "" {
		out = e.cfg.NetworkDir()
	}
	if !c.DryRun {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return nil, fmt.Errorf("creating network directory: %w", err)
		}
	}
	if err := store.Initialize(out, false); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	defer func() { _ = store.Close() }()
	deps.Store = store

	_, res, err := ingestion.RunPipeline(ctx,
		ingestion.Options{SeedPath: c.Seeds, Limits: limits},
		deps,
		e.progress(),
	)
	if !e.quiet {
		fmt.Fprintln(e.errOut)
	}
	if err != nil {
		return nil, fmt.Errorf("running pipeline: %w", err)
	}
	return res, nil
}

func (e *env) progress() ingestion.ProgressCallback {
	if e.quiet {
		return nil
	}
	return func(phase string, pct float64) {
		fmt.Fprintf(e.errOut, "\r\033[K%s (%.0f%%)", phase, pct*100)
	}
}

// KEGGCmd downloads KEGG compounds and reactions into a record store.
type KEGGCmd struct {
	Compounds []string `help:"Compound ids to download (default all)"`
	Reactions []string `help:"Reaction ids to download (default all)"`
	Limit     int      `short:"n" help:"Download at most this many entries of each kind"`
	Out       string   `type:"path" help:"Record store directory (default <data_dir>/kegg)"`
}

// Run executes the kegg command.
func (c *KEGGCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	defer e.finish()

	ctx, stop := signalContext()
	defer stop()

	client := kegg.NewClient(e.cfg.KEGG.URL, e.cfg.KEGGOptions(e.log, e.metrics)...)
	recs, err := client.Download(ctx, kegg.DownloadOptions{
		CompoundIDs: c.Compounds,
		ReactionIDs: c.Reactions,
		Limit:       c.Limit,
	})
	if err != nil {
		return err
	}

	out := c.Out
	if out == "" {
		out = e.cfg.KEGGDir()
	}
	store, err := storage.OpenRecordStore(out, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.PutRecords(recs); err != nil {
		return err
	}

	e.success("✓ KEGG records saved to %s", out)
	fmt.Fprintf(e.out, "  Compounds:  %d\n", len(recs.Compounds))
	fmt.Fprintf(e.out, "  Reactions:  %d\n", len(recs.Reactions))
	return nil
}

// TranslateCmd maps KEGG compound ids to MINE compound ids.
type TranslateCmd struct {
	Seeds string `arg:"" type:"existingfile" help:"File of KEGG compound ids, one per line"`
}

// Run executes the translate command.
func (c *TranslateCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	defer e.finish()

	f, err := os.Open(c.Seeds)
	if err != nil {
		return fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()
	ids, err := kegg.ReadCompoundIDs(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", c.Seeds, err)
	}

	ctx, stop := signalContext()
	defer stop()

	pool, closeCache, err := e.mineFetcher()
	if err != nil {
		return err
	}
	defer closeCache()

	mapping := repository.NewTranslator(pool, e.log).KeggToMine(ctx, ids)
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		mid, ok := mapping[id]
		if !ok {
			mid = "-"
		}
		fmt.Fprintf(e.out, "%s\t%s\n", id, mid)
	}
	fmt.Fprintf(e.errOut, "%d of %d ids translated\n", len(mapping), len(ids))
	return nil
}

// InspectCmd shows a node, compound or reaction of the stored network.
type InspectCmd struct {
	ID string `arg:"" help:"Node id, MINE or KEGG compound id, reaction id or compound name"`
}

// Run executes the inspect command.
func (c *InspectCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	defer e.finish()

	store, err := e.openNetwork()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	server := mcp.NewServer(store, Version, e.log)

	tool := "minet_compound"
	args := map[string]any{"id": c.ID}
	if id, err := strconv.Atoi(c.ID); err == nil {
		node, err := store.GetNode(ctx, id)
		if err != nil {
			return err
		}
		if node == nil {
			return fmt.Errorf("node %d not found", id)
		}
		if node.Kind.IsReaction() {
			args["id"] = node.MineID
			tool = "minet_reaction"
		}
	} else {
		rec, err := store.Record(ctx, c.ID)
		if err != nil {
			return err
		}
		if rec != nil && rec.Reaction != nil {
			tool = "minet_reaction"
		}
	}

	text, err := server.CallTool(ctx, tool, args)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, text)
	return nil
}

// SearchCmd searches compounds of the stored network by name.
type SearchCmd struct {
	Query string `arg:"" help:"Compound name, formula or id"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the search command.
func (c *SearchCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	defer e.finish()

	store, err := e.openNetwork()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	results, err := store.SearchCompounds(context.Background(), c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(e.out, "No results found")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(e.out, "\n%d. %s (node %d)\n", i+1, r.MineID, r.NodeID)
		if len(r.Names) > 0 {
			fmt.Fprintf(e.out, "   Names: %s\n", strings.Join(r.Names, "; "))
		}
		if r.Formula != "" {
			fmt.Fprintf(e.out, "   Formula: %s\n", r.Formula)
		}
		fmt.Fprintf(e.out, "   Score: %.1f\n", r.Score)
	}
	return nil
}

// StatusCmd shows the stored network and caches.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	defer e.finish()

	store, err := e.openNetwork()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	meta, err := store.Meta(context.Background())
	if errors.Is(err, storage.ErrNoNetwork) {
		return fmt.Errorf("no network stored in %s. Run 'minet build' first", e.cfg.NetworkDir())
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "Network in %s\n", e.cfg.NetworkDir())
	fmt.Fprintf(e.out, "  Run:            %s\n", meta.ID)
	fmt.Fprintf(e.out, "  Built:          %s\n", meta.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(e.out, "  Seeds:          %d\n", len(meta.Seeds))
	fmt.Fprintf(e.out, "  Steps:          %d\n", meta.Steps)
	fmt.Fprintf(e.out, "  Limits:         %d compounds, %d carbons\n", meta.CompoundLimit, meta.CarbonLimit)
	fmt.Fprintf(e.out, "  KEGG merged:    %t\n", meta.KEGGMerged)
	fmt.Fprintf(e.out, "  Nodes:          %d\n", store.NodeCount())
	fmt.Fprintf(e.out, "  Edges:          %d\n", store.EdgeCount())

	kinds := make([]string, 0, len(meta.Stats))
	for k := range meta.Stats {
		if k != "nodes" && k != "edges" {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(e.out, "    %-20s %d\n", k+":", meta.Stats[k])
	}

	if _, err := os.Stat(e.cfg.CacheDir()); err == nil {
		cache, err := storage.OpenRecordStore(e.cfg.CacheDir(), true)
		if err != nil {
			e.log.Warn("MINE cache unreadable", zap.Error(err))
			return nil
		}
		defer func() { _ = cache.Close() }()
		comps, rxns, err := cache.Count()
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "MINE cache:       %d compounds, %d reactions\n", comps, rxns)
	}
	return nil
}

// CleanCmd deletes the data directory.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	defer e.finish()

	dir := e.cfg.DataDir
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("no data found at %s. Nothing to clean", dir)
	}

	if !c.Force {
		fmt.Fprintf(e.out, "Delete %s? [y/N] ", dir)
		response, _ := bufio.NewReader(g.stdin).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(e.out, "Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting data: %w", err)
	}
	e.success("Deleted %s", dir)
	return nil
}

// WatchCmd rebuilds the network whenever the seed file changes.
type WatchCmd struct {
	Build BuildCmd `embed:""`
}

// Run executes the watch command.
func (c *WatchCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	defer e.finish()

	ctx, stop := signalContext()
	defer stop()

	rebuild := func(ctx context.Context) error {
		res, err := c.Build.build(ctx, e)
		if err != nil {
			return err
		}
		e.success("✓ Network rebuilt: %d nodes, %d edges", res.Nodes, res.Edges)
		return nil
	}
	if err := rebuild(ctx); err != nil {
		e.log.Error("initial build failed", zap.Error(err))
	}

	fmt.Fprintf(e.out, "Watching %s for changes (Ctrl+C to stop)\n", c.Build.Seeds)
	err = ingestion.WatchSeeds(ctx, c.Build.Seeds, rebuild, ingestion.WatchOptions{Logger: e.log})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}
	fmt.Fprintln(e.out, "Watch mode stopped.")
	return nil
}

// MCPCmd starts the MCP server.
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	defer e.finish()

	store, err := e.openNetwork()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signalContext()
	defer stop()

	// Stdout carries JSON-RPC only; logs go to stderr.
	return mcp.NewServer(store, Version, e.log).Serve(ctx)
}

// Helper functions

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// CLI is the root Kong command structure.
type CLI struct {
	Globals

	// Commands
	Init      InitCmd      `cmd:"" help:"Write a config file with the defaults"`
	Build     BuildCmd     `cmd:"" help:"Expand seed compounds into a reaction network"`
	KEGG      KEGGCmd      `cmd:"" name:"kegg" help:"Download KEGG compounds and reactions"`
	Translate TranslateCmd `cmd:"" help:"Translate KEGG compound ids to MINE ids"`
	Inspect   InspectCmd   `cmd:"" help:"Show a node, compound or reaction of the network"`
	Search    SearchCmd    `cmd:"" help:"Search compounds of the network by name"`
	Status    StatusCmd    `cmd:"" help:"Show the stored network"`
	Clean     CleanCmd     `cmd:"" help:"Delete the data directory"`
	Watch     WatchCmd     `cmd:"" help:"Rebuild the network when the seed file changes"`
	MCP       MCPCmd       `cmd:"" name:"mcp" help:"Start MCP server (stdio transport)"`
}

// NewCLI creates a new CLI instance writing to the process streams.
func NewCLI() *CLI {
	return &CLI{Globals: Globals{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("minet"),
		kong.Description("Build MINE and KEGG metabolic reaction networks"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}
	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kongCtx.Run(&c.Globals)
}
