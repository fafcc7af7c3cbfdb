package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"examhub/pkg/metrics"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxRetries    = 3
	defaultInitialWait   = 200 * time.Millisecond
	defaultMaxWait       = 5 * time.Second
	defaultRatePerSecond = 10
)

// HTTPClient is the production Client implementation, talking to the
// CRM's REST API over a tuned, rate-limited, retrying HTTP transport.
type HTTPClient struct {
	baseURL     string
	authToken   string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	maxRetries  int
	initialWait time.Duration
	maxWait     time.Duration
}

// Option configures an HTTPClient at construction time.
type Option func(*HTTPClient)

func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

func WithRateLimit(perSecond int) Option {
	return func(c *HTTPClient) { c.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), perSecond) }
}

func WithRetryPolicy(maxRetries int, initialWait, maxWait time.Duration) Option {
	return func(c *HTTPClient) {
		c.maxRetries = maxRetries
		c.initialWait = initialWait
		c.maxWait = maxWait
	}
}

// NewHTTPClient builds an HTTPClient pointed at baseURL, authenticating
// with authToken as a bearer token.
func NewHTTPClient(baseURL, authToken string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultRatePerSecond),
		maxRetries:  defaultMaxRetries,
		initialWait: defaultInitialWait,
		maxWait:     defaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatus reports whether a CRM HTTP response is worth
// retrying: 429 (rate limited) and 5xx (upstream trouble).
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// doJSON issues a single HTTP request, applying the rate limiter and
// the configured retry policy via cenkalti/backoff. A non-2xx,
// non-retryable response is returned as ErrCRMRejected immediately.
// objectLabel is the CRM object type this request is against, used
// only to label the outcome metric.
func (c *HTTPClient) doJSON(ctx context.Context, objectLabel, method, path string, body any, out any) error {
	start := time.Now()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialWait
	bo.MaxInterval = c.maxWait

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("crm: rate limiter: %w", err))
		}

		var reqBody io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("crm: encode request: %w", err))
			}
			reqBody = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("crm: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.authToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %s %s: %v", ErrCRMUnavailable, method, path, err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return struct{}{}, fmt.Errorf("crm: read response: %w", err)
		}

		if resp.StatusCode == http.StatusNotFound {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %s %s", ErrNotFound, method, path))
		}
		if resp.StatusCode >= 400 {
			if !retryableStatus(resp.StatusCode) {
				return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %s %s returned %d: %s", ErrCRMRejected, method, path, resp.StatusCode, payload))
			}
			return struct{}{}, fmt.Errorf("%w: %s %s returned %d", ErrCRMUnavailable, method, path, resp.StatusCode)
		}

		if out != nil && len(payload) > 0 {
			if err := json.Unmarshal(payload, out); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("crm: decode response: %w", err))
			}
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(c.maxRetries+1)))

	metrics.CRMRequestDuration.WithLabelValues(objectLabel).Observe(time.Since(start).Seconds())
	outcome := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "unavailable"
	}
	metrics.CRMRequestsTotal.WithLabelValues(objectLabel, outcome).Inc()

	if err != nil {
		log.Ctx(ctx).Warn().Str("method", method).Str("path", path).Err(err).Msg("crm: request failed after retries")
		return err
	}
	return nil
}

type objectWire struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

func (w objectWire) toObject() Object {
	return Object{ID: w.ID, Properties: w.Properties}
}

func (c *HTTPClient) Get(ctx context.Context, objectType ObjectType, id string) (Object, error) {
	var wire objectWire
	if err := c.doJSON(ctx, string(objectType), http.MethodGet, fmt.Sprintf("/objects/%s/%s", objectType, id), nil, &wire); err != nil {
		return Object{}, err
	}
	return wire.toObject(), nil
}

func (c *HTTPClient) Create(ctx context.Context, objectType ObjectType, properties map[string]string) (Object, error) {
	var wire objectWire
	body := map[string]any{"properties": properties}
	if err := c.doJSON(ctx, string(objectType), http.MethodPost, fmt.Sprintf("/objects/%s", objectType), body, &wire); err != nil {
		return Object{}, err
	}
	return wire.toObject(), nil
}

func (c *HTTPClient) Update(ctx context.Context, objectType ObjectType, id string, properties map[string]string) (Object, error) {
	var wire objectWire
	body := map[string]any{"properties": properties}
	if err := c.doJSON(ctx, string(objectType), http.MethodPatch, fmt.Sprintf("/objects/%s/%s", objectType, id), body, &wire); err != nil {
		return Object{}, err
	}
	return wire.toObject(), nil
}

func (c *HTTPClient) Delete(ctx context.Context, objectType ObjectType, id string) error {
	return c.doJSON(ctx, string(objectType), http.MethodDelete, fmt.Sprintf("/objects/%s/%s", objectType, id), nil, nil)
}

type searchWire struct {
	Results []objectWire `json:"results"`
	Paging  struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
	Total int `json:"total"`
}

func (c *HTTPClient) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	var wire searchWire
	body := map[string]any{
		"filters":  req.Filters,
		"sortBy":   req.SortBy,
		"sortDesc": req.SortDesc,
		"limit":    req.Limit,
		"after":    req.After,
	}
	if err := c.doJSON(ctx, string(req.ObjectType), http.MethodPost, fmt.Sprintf("/objects/%s/search", req.ObjectType), body, &wire); err != nil {
		return SearchResult{}, err
	}
	objects := make([]Object, 0, len(wire.Results))
	for _, w := range wire.Results {
		objects = append(objects, w.toObject())
	}
	return SearchResult{Objects: objects, After: wire.Paging.Next.After, Total: wire.Total}, nil
}

func (c *HTTPClient) BatchRead(ctx context.Context, objectType ObjectType, ids []string) ([]Object, error) {
	var wire struct {
		Results []objectWire `json:"results"`
	}
	body := map[string]any{"ids": ids}
	if err := c.doJSON(ctx, string(objectType), http.MethodPost, fmt.Sprintf("/objects/%s/batch/read", objectType), body, &wire); err != nil {
		return nil, err
	}
	objects := make([]Object, 0, len(wire.Results))
	for _, w := range wire.Results {
		objects = append(objects, w.toObject())
	}
	return objects, nil
}

func (c *HTTPClient) BatchUpdate(ctx context.Context, objectType ObjectType, updates map[string]map[string]string) error {
	inputs := make([]map[string]any, 0, len(updates))
	for id, props := range updates {
		inputs = append(inputs, map[string]any{"id": id, "properties": props})
	}
	body := map[string]any{"inputs": inputs}
	return c.doJSON(ctx, string(objectType), http.MethodPost, fmt.Sprintf("/objects/%s/batch/update", objectType), body, nil)
}

func (c *HTTPClient) Associate(ctx context.Context, spec AssociationSpec) error {
	path := fmt.Sprintf("/objects/%s/%s/associations/%s/%s", spec.FromType, spec.FromID, spec.ToType, spec.ToID)
	body := map[string]any{"label": spec.Label}
	return c.doJSON(ctx, string(spec.FromType), http.MethodPut, path, body, nil)
}

func (c *HTTPClient) Disassociate(ctx context.Context, spec AssociationSpec) error {
	path := fmt.Sprintf("/objects/%s/%s/associations/%s/%s", spec.FromType, spec.FromID, spec.ToType, spec.ToID)
	return c.doJSON(ctx, string(spec.FromType), http.MethodDelete, path, nil, nil)
}
