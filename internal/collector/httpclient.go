package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// Client is the shared HTTP plumbing every concrete adapter embeds: a
// rate-limited, circuit-broken GET helper that maps transport/HTTP
// outcomes onto the §4.2 error taxonomy. Platform-specific meaning (which
// scope a 403 named, how to parse the body) stays in the adapter; only
// the generic "what kind of failure was this" mapping is shared.
type Client struct {
	HTTP     *http.Client
	Limiters *HostLimiters
	Breakers *Breakers
}

// NewClient creates shared HTTP plumbing with the given per-host rate.
func NewClient(perHostRPS float64) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Limiters: NewHostLimiters(perHostRPS),
		Breakers: NewBreakers(),
	}
}

// Get performs a rate-limited, circuit-broken GET against rawURL and
// returns the raw response body (callers decode it with DecodeJSON), or
// a tagged *Error on failure. Transient
// and RateLimited outcomes are retried per §7 via RetryTransient;
// everything else fails the sub-method on the first attempt.
func (c *Client) Get(ctx context.Context, rawURL string, source SourceMethod) ([]byte, *Error) {
	var body []byte
	var cerr *Error

	if err := RetryTransient(ctx, func() error {
		body, cerr = c.attemptGet(ctx, rawURL, source)
		if cerr != nil {
			return cerr
		}
		return nil
	}); err != nil {
		return nil, cerr
	}
	return body, nil
}

func (c *Client) attemptGet(ctx context.Context, rawURL string, source SourceMethod) ([]byte, *Error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{Kind: KindFatal, SourceMethod: source, Err: err}
	}

	if err := c.Limiters.Wait(ctx, u.Host); err != nil {
		return nil, &Error{Kind: KindTransient, SourceMethod: source, Err: err}
	}

	result, err := c.Breakers.Execute(u.Host, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return httpOutcome{status: resp.StatusCode, body: body, retryAfter: resp.Header.Get("Retry-After")}, nil
	})

	if err != nil {
		return nil, classifyTransportError(source, err)
	}

	outcome := result.(httpOutcome)
	if ce := classifyStatus(source, outcome); ce != nil {
		return nil, ce
	}
	return outcome.body, nil
}

type httpOutcome struct {
	status     int
	body       []byte
	retryAfter string
}

func classifyTransportError(source SourceMethod, err error) *Error {
	if err == gobreaker.ErrOpenState {
		return &Error{Kind: KindFatal, SourceMethod: source, Err: err}
	}
	return &Error{Kind: KindTransient, SourceMethod: source, Err: err}
}

func classifyStatus(source SourceMethod, o httpOutcome) *Error {
	switch {
	case o.status == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, SourceMethod: source, Err: fmt.Errorf("unauthorized")}
	case o.status == http.StatusForbidden:
		return &Error{Kind: KindPermission, SourceMethod: source, Err: fmt.Errorf("forbidden")}
	case o.status == http.StatusTooManyRequests:
		retryAfter := 1 * time.Second
		if o.retryAfter != "" {
			if secs, err := strconv.Atoi(o.retryAfter); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &Error{Kind: KindRateLimited, SourceMethod: source, RetryAfter: retryAfter, Err: fmt.Errorf("rate limited")}
	case o.status >= 500:
		return &Error{Kind: KindTransient, SourceMethod: source, Err: fmt.Errorf("server error %d", o.status)}
	case o.status >= 400:
		return &Error{Kind: KindFatal, SourceMethod: source, Err: fmt.Errorf("client error %d", o.status)}
	default:
		return nil
	}
}

// DecodeJSON is a small helper adapters use after Get succeeds.
func DecodeJSON(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
