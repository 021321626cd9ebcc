package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without contacting the upstream while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when every attempt failed without a response.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Name identifies the upstream in logs, the breaker and the registry.
	Name string

	// Timeout bounds a single attempt (default: 10s).
	Timeout time.Duration

	// MaxRetries after the first attempt (default: 2). Negative disables retries.
	MaxRetries int

	// InitialInterval and MaxInterval shape the backoff (defaults: 100ms, 2s).
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Breaker defaults to DefaultBreakerConfig(Name).
	Breaker *BreakerConfig

	// Registry, when set, receives the client and its success/failure history.
	Registry *Registry

	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper

	Logger zerolog.Logger
}

// DefaultClientConfig returns the defaults used for upstream clients.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Breaker:         &breaker,
	}
}

// Client is an HTTP client guarded by a circuit breaker with retries.
type Client struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	registry *Registry
	cfg      ClientConfig
}

// NewClient creates a Client and registers it when cfg.Registry is set.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}

	breakerCfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
		if breakerCfg.Name == "" {
			breakerCfg.Name = cfg.Name
		}
	}

	c := &Client{
		name: cfg.Name,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		breaker:  newBreaker[*http.Response](breakerCfg, cfg.Logger), //nolint:bodyclose // type param, not response
		registry: cfg.Registry,
		cfg:      cfg,
	}

	if c.registry != nil {
		c.registry.Register(c.name, c)
	}

	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// Get issues a GET request for url.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// Do executes req. Network errors and 5xx responses are retried with
// exponential backoff and count as breaker failures; any other status is
// returned as is. When every attempt yields a 5xx the last response is
// returned without error so callers can inspect it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx)

	var last *http.Response
	attempt := func() error {
		if last != nil {
			_ = last.Body.Close()
			last = nil
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed by caller or next attempt
			r, err := c.http.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			last = resp
			return err
		}

		last = resp
		return nil
	}

	err := backoff.Retry(attempt, policy)
	switch {
	case err == nil:
		c.record(nil)
		return last, nil
	case last != nil:
		c.record(err)
		return last, nil
	default:
		c.record(err)
		if ctx.Err() != nil || errors.Is(err, ErrCircuitOpen) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
	}
}

func (c *Client) record(err error) {
	if c.registry == nil {
		return
	}
	if err != nil {
		c.registry.RecordFailure(c.name, err)
		return
	}
	c.registry.RecordSuccess(c.name)
}

// ServerError is an upstream 5xx response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}
