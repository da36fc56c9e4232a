// Package repository is the MINE database client.
//
// The MINE web service speaks KBase style JSON-RPC 1.1 over HTTP. Client
// wraps every call in a rate limiter, a circuit breaker and a stepped retry
// schedule. Pool fans batches of ids out over a bounded set of workers and
// is what network expansion fetches through.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Benny93/minet-go/internal/metrics"
	"github.com/Benny93/minet-go/internal/mine"
)

// Defaults for the public MINE service.
const (
	DefaultURL      = "http://bio-data-1.mcs.anl.gov/services/mine-database"
	DefaultDatabase = "KEGGexp2"
)

const (
	serviceName = "mineDatabaseServices"
	source      = "mine"
)

var (
	// ErrNotFound is returned when the database has no record for an id.
	ErrNotFound = errors.New("record not found")

	// ErrServer is returned when the service answers with a JSON-RPC error.
	// Such calls are not retried.
	ErrServer = errors.New("MINE server error")
)

// BreakerSettings configures the circuit breaker around MINE calls.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerSettings returns the default breaker settings.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  5,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.8,
		MinRequests:  20,
	}
}

// Options configures a Client.
type Options struct {
	URL      string
	Database string
	Timeout  time.Duration

	Retry   RetryPolicy
	Breaker BreakerSettings

	// RateLimit is the sustained request rate per second; zero disables
	// pacing. Burst is the bucket size.
	RateLimit float64
	Burst     int

	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// DefaultOptions returns options for the public MINE service.
func DefaultOptions() Options {
	return Options{
		URL:      DefaultURL,
		Database: DefaultDatabase,
		Timeout:  2 * time.Minute,
		Retry:    DefaultRetryPolicy(),
		Breaker:  DefaultBreakerSettings(),
	}
}

// Client calls the MINE JSON-RPC service.
type Client struct {
	url     string
	db      string
	http    *http.Client
	retry   RetryPolicy
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewClient creates a client from opts. Zero fields fall back to defaults.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.URL == "" {
		opts.URL = def.URL
	}
	if opts.Database == "" {
		opts.Database = def.Database
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = def.Retry
	}
	if opts.Breaker.MaxRequests == 0 {
		opts.Breaker = def.Breaker
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = def.Timeout
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	log := opts.Logger
	bs := opts.Breaker
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mine",
		MaxRequests: bs.MaxRequests,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bs.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bs.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrServer)
		},
	})

	return &Client{
		url:     opts.URL,
		db:      opts.Database,
		http:    opts.HTTPClient,
		retry:   opts.Retry,
		limiter: limiter,
		breaker: breaker,
		log:     log,
		metrics: opts.Metrics,
	}
}

// Database returns the MINE database the client queries.
func (c *Client) Database() string {
	return c.db
}

type rpcRequest struct {
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	Version string `json:"version"`
	ID      string `json:"id"`
}

type rpcError struct {
	Name    string `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result []json.RawMessage `json:"result"`
	Error  *rpcError         `json:"error"`
}

// call invokes method with params [db, arg] and decodes the first result
// element into out.
func (c *Client) call(ctx context.Context, method string, arg, out any) error {
	body, err := json.Marshal(rpcRequest{
		Method:  serviceName + "." + method,
		Params:  []any{c.db, arg},
		Version: "1.1",
		ID:      uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	start := time.Now()
	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.post(ctx, body, out)
		})
		if errors.Is(err, ErrServer) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.Retry(source)
		if c.retry.NotifyEvery > 0 && attempt%c.retry.NotifyEvery == 0 {
			c.log.Warn("MINE server not responding, retrying",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}
	}

	err = backoff.RetryNotify(op, backoff.WithContext(c.retry.newBackOff(), ctx), notify)
	c.metrics.ObserveFetch(source, method, callOutcome(err), time.Since(start))
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var rpc rpcResponse
	decodeErr := json.Unmarshal(data, &rpc)
	if decodeErr == nil && rpc.Error != nil {
		return fmt.Errorf("%w: %s: %s", ErrServer, rpc.Error.Name, rpc.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding response: %w", decodeErr)
	}
	if len(rpc.Result) == 0 {
		return fmt.Errorf("%w: empty result", ErrServer)
	}
	if err := json.Unmarshal(rpc.Result[0], out); err != nil {
		return fmt.Errorf("%w: decoding result: %v", ErrServer, err)
	}
	return nil
}

// QuickSearch returns the compounds matching query, a compound name or an
// external id such as a KEGG compound id.
func (c *Client) QuickSearch(ctx context.Context, query string) ([]*mine.Compound, error) {
	var comps []*mine.Compound
	if err := c.call(ctx, "quick_search", query, &comps); err != nil {
		return nil, err
	}
	return comps, nil
}

// GetCompound returns the compound with the given MINE id.
func (c *Client) GetCompound(ctx context.Context, id string) (*mine.Compound, error) {
	var comps []*mine.Compound
	if err := c.call(ctx, "get_comps", []string{id}, &comps); err != nil {
		return nil, err
	}
	if len(comps) == 0 || comps[0] == nil {
		return nil, fmt.Errorf("compound %s: %w", id, ErrNotFound)
	}
	return comps[0], nil
}

// GetReaction returns the reaction with the given MINE id.
func (c *Client) GetReaction(ctx context.Context, id string) (*mine.Reaction, error) {
	var rxns []*mine.Reaction
	if err := c.call(ctx, "get_rxns", []string{id}, &rxns); err != nil {
		return nil, err
	}
	if len(rxns) == 0 || rxns[0] == nil {
		return nil, fmt.Errorf("reaction %s: %w", id, ErrNotFound)
	}
	return rxns[0], nil
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
