package kegg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/minet-go/internal/metrics"
	"github.com/Benny93/minet-go/internal/mine"
)

// Client defaults.
const (
	DefaultURL      = "http://rest.kegg.jp"
	DefaultWorkers  = 128
	DefaultAttempts = 5
	DefaultDelay    = 2 * time.Second
)

const source = "kegg"

// Client talks to the KEGG REST API.
type Client struct {
	baseURL  string
	http     *http.Client
	workers  int
	attempts int
	delay    time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithWorkers sets how many entries are downloaded concurrently.
func WithWorkers(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithRetry sets the number of attempts per request and the pause between them.
func WithRetry(attempts int, delay time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.delay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the KEGG REST API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 60 * time.Second},
		workers:  DefaultWorkers,
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetText downloads the flat-file entry of a KEGG compound or reaction.
// Failed requests are retried; a 404 is not.
func (c *Client) GetText(ctx context.Context, id string) (string, error) {
	var path string
	switch {
	case mine.IsKEGGReactionID(id):
		path = "get/rn:" + id
	case mine.IsKEGGCompoundID(id):
		path = "get/cpd:" + id
	default:
		return "", fmt.Errorf("%q: %w", id, ErrInvalidID)
	}

	start := time.Now()
	text, err := c.get(ctx, path)
	c.metrics.ObserveFetch(source, "get", outcome(err), time.Since(start))
	if err != nil {
		return "", fmt.Errorf("downloading KEGG entry %s: %w", id, err)
	}
	return text, nil
}

// List returns the ids of every KEGG entry in database, "compound" or
// "reaction".
func (c *Client) List(ctx context.Context, database string) ([]string, error) {
	start := time.Now()
	text, err := c.get(ctx, "list/"+database)
	c.metrics.ObserveFetch(source, "list", outcome(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("downloading KEGG %s list: %w", database, err)
	}

	var ids []string
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			break
		}
		field := strings.Fields(line)[0]
		if _, id, ok := strings.Cut(field, ":"); ok {
			field = id
		}
		ids = append(ids, field)
	}
	return ids, nil
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	url := c.baseURL + "/" + path

	var text string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(ErrNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		text = string(body)
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.delay), uint64(c.attempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.metrics.Retry(source)
		c.log.Debug("retrying KEGG request", zap.String("path", path), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", err
	}
	return text, nil
}

// GetCompounds downloads and formats the given compounds concurrently. The
// result holds one slot per id, nil where the entry could not be fetched
// or formatted.
func (c *Client) GetCompounds(ctx context.Context, ids []string) []*mine.Compound {
	out := make([]*mine.Compound, len(ids))
	c.each(ctx, ids, func(i int, id string) {
		text, err := c.GetText(ctx, id)
		if err != nil {
			c.log.Warn("unable to download KEGG compound", zap.String("compound", id), zap.Error(err))
			return
		}
		comp, err := FormatCompound(text, c.log)
		if err != nil {
			c.log.Warn("unable to format KEGG compound", zap.String("compound", id), zap.Error(err))
			return
		}
		out[i] = comp
	})
	return out
}

// GetReactions downloads and formats the given reactions concurrently, see
// GetCompounds.
func (c *Client) GetReactions(ctx context.Context, ids []string) []*mine.Reaction {
	out := make([]*mine.Reaction, len(ids))
	c.each(ctx, ids, func(i int, id string) {
		text, err := c.GetText(ctx, id)
		if err != nil {
			c.log.Warn("unable to download KEGG reaction", zap.String("reaction", id), zap.Error(err))
			return
		}
		rxn, err := FormatReaction(text, c.log)
		if err != nil {
			c.log.Warn("unable to format KEGG reaction", zap.String("reaction", id), zap.Error(err))
			return
		}
		out[i] = rxn
	})
	return out
}

func (c *Client) each(ctx context.Context, ids []string, fn func(i int, id string)) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, id := range ids {
		g.Go(func() error {
			fn(i, id)
			return nil
		})
	}
	_ = g.Wait()
}

// DownloadOptions selects what Download fetches.
type DownloadOptions struct {
	// CompoundIDs and ReactionIDs restrict the download. An empty list
	// means every entry of the KEGG database.
	CompoundIDs []string
	ReactionIDs []string

	// Limit truncates both id lists when positive. Meant for trial runs.
	Limit int
}

// Download fetches KEGG compounds and reactions and sorts the reactions of
// every compound into Reactant_in and Product_of. Failing to obtain an id
// list is an error; entries that fail individually are left out.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) (*mine.Records, error) {
	compIDs, rxnIDs := opts.CompoundIDs, opts.ReactionIDs
	var err error
	if len(compIDs) == 0 {
		if compIDs, err = c.List(ctx, "compound"); err != nil {
			return nil, err
		}
	}
	if len(rxnIDs) == 0 {
		if rxnIDs, err = c.List(ctx, "reaction"); err != nil {
			return nil, err
		}
	}
	if opts.Limit > 0 {
		compIDs = truncate(compIDs, opts.Limit)
		rxnIDs = truncate(rxnIDs, opts.Limit)
	}

	c.log.Info("downloading KEGG entries",
		zap.Int("compounds", len(compIDs)), zap.Int("reactions", len(rxnIDs)))

	compounds := make(map[string]*mine.Compound, len(compIDs))
	for _, comp := range c.GetCompounds(ctx, compIDs) {
		if comp != nil {
			compounds[comp.ID] = comp
		}
	}
	reactions := make(map[string]*mine.Reaction, len(rxnIDs))
	for _, rxn := range c.GetReactions(ctx, rxnIDs) {
		if rxn != nil {
			reactions[rxn.ID] = rxn
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("downloading KEGG entries: %w", err)
	}

	SortReactions(compounds, reactions, c.log)
	c.log.Info("KEGG download completed",
		zap.Int("compounds", len(compounds)), zap.Int("reactions", len(reactions)))
	return mine.NewRecords(compounds, reactions), nil
}

func truncate(ids []string, n int) []string {
	if len(ids) > n {
		return ids[:n]
	}
	return ids
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
