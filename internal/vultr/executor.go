// Package vultr talks to the Vultr v2 REST API: a thin transport and a
// request executor that absorbs 429 rate limiting with exponential backoff.
package vultr

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Defaults applied by NewExecutor when options are left zero.
const (
	DefaultEndpoint      = "https://api.vultr.com/v2"
	DefaultUserAgent     = "vultrsync"
	DefaultTimeout       = 60 * time.Second
	DefaultMaxRetries    = 5
	DefaultMaxRetryDelay = 12 * time.Second
)

// Options is the immutable configuration of an Executor.
type Options struct {
	Endpoint      string
	APIKey        string
	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int // maximum attempts per call, including the first
	MaxRetryDelay time.Duration
	RateLimitRPS  float64 // client-side limiter, 0 = unlimited
}

func (o Options) withDefaults() Options {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	o.Endpoint = strings.TrimRight(o.Endpoint, "/")
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = DefaultMaxRetryDelay
	}
	return o
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithSleep replaces the backoff sleep.
func WithSleep(sleep SleepFunc) ExecutorOption {
	return func(e *Executor) { e.sleep = sleep }
}

// WithJitter replaces the per-call jitter source. Values must be in [0, 1s).
func WithJitter(jitter func() time.Duration) ExecutorOption {
	return func(e *Executor) { e.jitter = jitter }
}

// Executor issues API calls through a Transport with rate-limit aware retry.
// It holds no per-call state and is safe for concurrent use.
type Executor struct {
	opts      Options
	header    http.Header
	transport Transport
	limiter   *rate.Limiter
	sleep     SleepFunc
	jitter    func() time.Duration
}

// NewExecutor creates an executor. Headers are fixed at construction.
func NewExecutor(transport Transport, opts Options, options ...ExecutorOption) *Executor {
	opts = opts.withDefaults()

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+opts.APIKey)
	header.Set("Accept", "application/json")
	header.Set("User-Agent", opts.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimitRPS > 0 {
		burst := int(opts.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	e := &Executor{
		opts:      opts,
		header:    header,
		transport: transport,
		limiter:   limiter,
		sleep:     sleepContext,
		jitter:    randomJitter,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Options returns the effective options (defaults applied).
func (e *Executor) Options() Options {
	return e.opts
}

// Execute performs method on path (relative to the endpoint).
//
// 200/201/202 return the decoded JSON object. 204/404 return a nil map and a nil
// error: "nothing here" is a valid outcome. 429 is retried with backoff up to
// MaxRetries attempts. Anything else is an *APIError; network failures are a
// *TransportError and are not retried.
func (e *Executor) Execute(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body for %s %q: %w", method, path, err)
		}
	}

	// One jitter per call keeps concurrent callers apart without unbounded waits
	jitter := e.jitter()

	var resp *Response
	attempts := 0
	for attempt := 0; attempt < e.opts.MaxRetries; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: method, Path: path, Err: err}
		}

		attempts++
		log.Debug().Str("method", method).Str("path", path).Int("attempt", attempts).Msg("API request")

		var err error
		resp, err = e.transport.Do(ctx, e.newRequest(method, path, payload))
		if err != nil {
			return nil, &TransportError{Method: method, Path: path, Err: err}
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		if attempt == e.opts.MaxRetries-1 {
			break
		}

		delay := BackoffDelay(attempt, e.opts.MaxRetryDelay, jitter)
		log.Warn().
			Str("method", method).
			Str("path", path).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("Rate limited, backing off")

		if err := e.sleep(ctx, delay); err != nil {
			return nil, &TransportError{Method: method, Path: path, Err: err}
		}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return decodeObject(method, path, resp.Body)
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	}

	return nil, &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Attempts:   attempts,
	}
}

func (e *Executor) newRequest(method, path string, payload []byte) *Request {
	header := e.header.Clone()
	if payload != nil {
		header.Set("Content-Type", "application/json")
	}
	return &Request{
		Method:  method,
		URL:     e.opts.Endpoint + path,
		Header:  header,
		Body:    payload,
		Timeout: e.opts.Timeout,
	}
}

func decodeObject(method, path string, body []byte) (map[string]any, error) {
	result := make(map[string]any)
	if len(strings.TrimSpace(string(body))) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response of %s %q: %w", method, path, err)
	}
	return result, nil
}

// BackoffDelay returns the sleep before retry number attempt (0-based):
// 2^attempt seconds plus jitter, capped at maxDelay plus jitter.
func BackoffDelay(attempt int, maxDelay, jitter time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return maxDelay + jitter
	}
	delay := time.Duration(1<<attempt)*time.Second + jitter
	if delay > maxDelay {
		delay = maxDelay + jitter
	}
	return delay
}

func randomJitter() time.Duration {
	return time.Duration(rand.IntN(1000)) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
