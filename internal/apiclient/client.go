// Package apiclient talks to the SRQ-20 REST backend. It attaches the
// session's access token, turns 401 responses into a session invalidation,
// and normalizes every other failure into *APIError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"srq20.org/internal/audit"
	"srq20.org/internal/obs"
)

const (
	authHeader      = "Authorization"
	bearer          = "Bearer "
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 64 << 10
	defaultTimeout  = 15 * time.Second
)

// TokenSource supplies the access token and is told when the backend rejects it.
type TokenSource interface {
	AccessToken() string
	Invalidate(ctx context.Context)
}

// Config configures Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RatePerSecond <= 0 disables throttling.
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
	Indicator     Indicator
}

// Client performs JSON requests against the backend.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	indicator Indicator

	mu     sync.RWMutex
	tokens TokenSource
}

// Request describes one call. Public requests never carry the access token
// and a 401 on them is an ordinary *APIError.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Public bool
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	indicator := cfg.Indicator
	if indicator == nil {
		indicator = noopIndicator{}
	}

	return &Client{
		baseURL:   base,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, burst),
		indicator: indicator,
	}, nil
}

// SetTokenSource binds the session that owns the credentials.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

func (c *Client) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Do sends req and decodes a successful JSON response into out (nil skips decoding).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	return c.execute(ctx, req, func(resp *http.Response) error {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return &APIError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	})
}

// Download streams a successful response body into w without decoding it and
// returns the response content type. Auth and 401 handling match Do.
func (c *Client) Download(ctx context.Context, req Request, w io.Writer) (string, error) {
	var contentType string
	err := c.execute(ctx, req, func(resp *http.Response) error {
		contentType = resp.Header.Get("Content-Type")
		if _, err := io.Copy(w, resp.Body); err != nil {
			return &APIError{Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
		}
		return nil
	})
	return contentType, err
}

func (c *Client) execute(ctx context.Context, req Request, onSuccess func(*http.Response) error) error {
	release := c.busy()
	defer release()

	if req.Method == "" {
		req.Method = http.MethodGet
	}

	requestID := uuid.NewString()
	ctx = audit.WithRequestID(ctx, requestID)
	log := obs.Logger().With(
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.String("endpoint", obs.CanonicalPath(req.Path)),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Err: err}
	}

	httpReq, err := c.newRequest(ctx, req, requestID)
	if err != nil {
		return &APIError{Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		obs.ObserveRequest(req.Method, req.Path, 0, time.Since(start))
		log.Warn("api request failed", zap.Error(err))
		return &APIError{Err: err}
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	obs.ObserveRequest(req.Method, req.Path, resp.StatusCode, elapsed)
	log.Debug("api request complete",
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", elapsed.Milliseconds()))

	switch {
	case resp.StatusCode == http.StatusUnauthorized && !req.Public:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		if ts := c.tokenSource(); ts != nil {
			ts.Invalidate(ctx)
		}
		log.Info("session rejected by backend")
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(body), Body: body}
	}
	return onSuccess(resp)
}

func (c *Client) newRequest(ctx context.Context, req Request, requestID string) (*http.Request, error) {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(requestIDHeader, requestID)

	if !req.Public {
		if ts := c.tokenSource(); ts != nil {
			if token := ts.AccessToken(); token != "" {
				httpReq.Header.Set(authHeader, bearer+token)
			}
		}
	}
	return httpReq, nil
}
