// Package gleif is a client for the GLEIF LEI records API.
package gleif

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/banking/refdata-service/internal/config"
	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/pkg/tracer"
	"github.com/banking/refdata-service/internal/resilience"
	"github.com/banking/refdata-service/pkg/identifier"
)

const upstreamName = "gleif"

// ErrUnavailable wraps every failure to obtain an answer from GLEIF
var ErrUnavailable = errors.New("gleif: upstream unavailable")

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gleif returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client queries https://api.gleif.org/api/v1/lei-records
type Client struct {
	http      *resty.Client
	limiter   *rate.Limiter
	cb        *resilience.CircuitBreaker
	tracer    *tracer.Tracer
	metrics   *metrics.Metrics
	log       *logger.Logger
	batchSize int
	pageSize  int
	maxPages  int
}

// Option customises a Client
type Option func(*Client)

func WithTracer(t *tracer.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a GLEIF client
func New(cfg config.GleifConfig, cb *resilience.CircuitBreaker, log *logger.Logger, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/vnd.api+json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		cb:        cb,
		log:       log.Named("gleif"),
		batchSize: clamp(cfg.BatchSize, 1, 200),
		pageSize:  clamp(cfg.PageSize, 1, 200),
		maxPages:  cfg.MaxPages,
	}
	if c.maxPages < 1 {
		c.maxPages = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient exposes the underlying client so tests can install a mock transport
func (c *Client) HTTPClient() *http.Client {
	return c.http.GetClient()
}

// GetByLeiCodes fetches the records for the given LEI codes. Invalid and
// duplicate codes are dropped before any request is made, the rest are sent in
// batches. Codes without a record are simply absent from the result.
func (c *Client) GetByLeiCodes(ctx context.Context, codes ...string) ([]*domain.Lei, error) {
	valid := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, dup := seen[code]; dup || !identifier.IsValidLei(code) {
			continue
		}
		seen[code] = struct{}{}
		valid = append(valid, code)
	}
	if len(valid) == 0 {
		return nil, nil
	}

	ctx, span := c.tracer.StartSpan(ctx, "gleif.GetByLeiCodes")
	span.SetAttributes(tracer.BatchSizeAttr(len(valid)), tracer.UpstreamAttr(upstreamName))
	var err error
	defer func() { tracer.EndSpan(span, err) }()

	out := make([]*domain.Lei, 0, len(valid))
	for start := 0; start < len(valid); start += c.batchSize {
		end := start + c.batchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		var resp *recordsResponse
		resp, err = c.fetch(ctx, map[string]string{
			"filter[lei]":  strings.Join(batch, ","),
			"page[size]":   strconv.Itoa(len(batch)),
			"page[number]": "1",
		})
		if err != nil {
			return nil, err
		}
		out = append(out, resp.toDomain(c.log)...)
	}

	c.log.Debug("fetched LEI records", logger.Operation("GetByLeiCodes"),
		logger.Count(len(out)))
	return out, nil
}

// GetByIsin returns the entities GLEIF maps to the ISIN
func (c *Client) GetByIsin(ctx context.Context, isin string) ([]*domain.Lei, error) {
	if !identifier.IsValidIsin(isin) {
		return nil, nil
	}
	return c.filterOne(ctx, "gleif.GetByIsin", "filter[isin]", isin)
}

// GetByBic returns the entities GLEIF maps to the BIC
func (c *Client) GetByBic(ctx context.Context, bic string) ([]*domain.Lei, error) {
	if !identifier.IsValidBic(bic) {
		return nil, nil
	}
	return c.filterOne(ctx, "gleif.GetByBic", "filter[bic]", bic)
}

func (c *Client) filterOne(ctx context.Context, op, filter, value string) ([]*domain.Lei, error) {
	ctx, span := c.tracer.StartSpan(ctx, op)
	span.SetAttributes(tracer.IdentifierAttr(value), tracer.UpstreamAttr(upstreamName))

	resp, err := c.fetch(ctx, map[string]string{
		filter:         value,
		"page[size]":   strconv.Itoa(c.pageSize),
		"page[number]": "1",
	})
	tracer.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return resp.toDomain(c.log), nil
}

// SearchByLegalName returns the entities whose legal name matches name,
// following pagination up to the configured page limit
func (c *Client) SearchByLegalName(ctx context.Context, name string) ([]*domain.Lei, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	ctx, span := c.tracer.StartSpan(ctx, "gleif.SearchByLegalName")
	span.SetAttributes(tracer.UpstreamAttr(upstreamName))
	var err error
	defer func() { tracer.EndSpan(span, err) }()

	var out []*domain.Lei
	for page := 1; page <= c.maxPages; page++ {
		var resp *recordsResponse
		resp, err = c.fetch(ctx, map[string]string{
			"filter[entity.legalName]": name,
			"page[size]":               strconv.Itoa(c.pageSize),
			"page[number]":             strconv.Itoa(page),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, resp.toDomain(c.log)...)

		if len(resp.Data) == 0 || page >= resp.Meta.Pagination.LastPage {
			return out, nil
		}
	}

	c.log.Warn("legal name search truncated at page limit",
		logger.Query(name), zap.Int("max_pages", c.maxPages))
	return out, nil
}

func (c *Client) fetch(ctx context.Context, query map[string]string) (*recordsResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	start := time.Now()
	out, err := resilience.Call(ctx, c.cb, func(ctx context.Context) (*recordsResponse, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			Get("/lei-records")
		if err != nil {
			return nil, fmt.Errorf("gleif request failed: %w", err)
		}

		if resp.IsError() {
			statusErr := &StatusError{StatusCode: resp.StatusCode(), Body: truncateBody(resp.Body())}
			if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500 {
				return nil, statusErr
			}
			return nil, resilience.Rejected(statusErr)
		}

		var out recordsResponse
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return nil, fmt.Errorf("failed to decode gleif response: %w", err)
		}
		return &out, nil
	})
	c.metrics.ObserveUpstream(upstreamName, err, start)

	if err != nil {
		if !resilience.IsRejected(err) {
			c.log.WithContext(ctx).Warn("gleif request failed", logger.ErrorField(err))
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return out, nil
}

func truncateBody(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
