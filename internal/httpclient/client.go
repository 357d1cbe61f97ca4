// Package httpclient is the shared transport for market-data, sentiment and
// news providers: rate limiting, a circuit breaker, and a bounded retry
// policy with special handling for rate-limit responses.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/cryptoscan/internal/logger"
)

var (
	// ErrTransient covers timeouts, 5xx and 429 responses that survived every retry.
	ErrTransient = errors.New("transient provider error")
	// ErrMalformed marks a response body that could not be decoded.
	ErrMalformed = errors.New("malformed provider response")
)

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Observer receives one call per attempt outcome.
type Observer interface {
	ProviderRequest(provider, outcome string)
}

// Config describes one provider endpoint.
type Config struct {
	Name           string
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
	Headers        map[string]string
	Retry          RetryPolicy
	// BreakerFailures trips the breaker after this many consecutive failures; 0 disables it.
	BreakerFailures int
	BreakerCooldown time.Duration
	Observer        Observer
}

// Client issues JSON requests against one provider.
type Client struct {
	name     string
	rc       *resty.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	policy   RetryPolicy
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	for k, v := range cfg.Headers {
		rc.SetHeader(k, v)
	}
	return newWithResty(cfg, rc)
}

// NewWithHTTPClient is New with a caller-supplied *http.Client, e.g. an httptest server client.
func NewWithHTTPClient(cfg Config, hc *http.Client) *Client {
	rc := resty.NewWithClient(hc).
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")
	for k, v := range cfg.Headers {
		rc.SetHeader(k, v)
	}
	return newWithResty(cfg, rc)
}

func newWithResty(cfg Config, rc *resty.Client) *Client {
	c := &Client{
		name:     cfg.Name,
		rc:       rc,
		policy:   cfg.Retry.WithDefaults(),
		observer: cfg.Observer,
		sleep:    sleepContext,
	}
	if cfg.RequestsPerSec > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}
	if cfg.BreakerFailures > 0 {
		cooldown := cfg.BreakerCooldown
		if cooldown <= 0 {
			cooldown = time.Minute
		}
		failures := uint32(cfg.BreakerFailures)
		policy := c.policy
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			// A 404 or 401 says nothing about provider health.
			IsSuccessful: func(err error) bool {
				return !policy.Retryable(err)
			},
			Name:     cfg.Name,
			Interval: time.Minute,
			Timeout:  cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker %s: %s -> %s", name, from, to)
			},
		})
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Request is one GET or POST call.
type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    interface{}
}

// GetJSON issues a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, out interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Do runs req under the retry policy and decodes the response into out
// (when out is non-nil).
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	b := c.policy.NewBackOff()
	for attempt := 1; ; attempt++ {
		body, err := c.attempt(ctx, req)
		if err == nil {
			c.observe("ok")
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				c.observe("malformed")
				return fmt.Errorf("%s %s: %w: %v", c.name, req.Path, ErrMalformed, err)
			}
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.observe("breaker_open")
			return fmt.Errorf("%s %s: %w", c.name, req.Path, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: %w", c.name, req.Path, ctx.Err())
		}
		if !c.policy.Retryable(err) {
			c.observe("error")
			return fmt.Errorf("%s %s: %w", c.name, req.Path, err)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			c.observe("exhausted")
			return fmt.Errorf("%s %s: %w after %d attempts: %v", c.name, req.Path, ErrTransient, attempt, err)
		}
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
			c.observe("rate_limited")
			if se.RetryAfter > 0 {
				wait = c.policy.capRetryAfter(se.RetryAfter)
			}
		} else {
			c.observe("retry")
		}
		logger.Debug("%s %s attempt %d failed (%v), retrying in %v", c.name, req.Path, attempt, err, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s %s: %w", c.name, req.Path, err)
		}
	}
}

func (c *Client) attempt(ctx context.Context, req Request) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	if c.breaker == nil {
		return c.send(ctx, req)
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

func (c *Client) send(ctx context.Context, req Request) ([]byte, error) {
	r := c.rc.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	resp, err := r.Execute(method, req.Path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		body := resp.String()
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode(),
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
			Body:       body,
		}
	}
	return resp.Body(), nil
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.ProviderRequest(c.name, outcome)
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
