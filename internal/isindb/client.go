// Package isindb converts CUSIP and SEDOL codes to ISINs by querying the
// public isindb.com converter forms.
package isindb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/banking/refdata-service/internal/config"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/pkg/tracer"
	"github.com/banking/refdata-service/internal/resilience"
	"github.com/banking/refdata-service/pkg/identifier"
)

const upstreamName = "isindb"

// ErrUnavailable is returned when no conversion attempt got an answer
var ErrUnavailable = errors.New("isindb: upstream unavailable")

// converter describes one of the site's conversion forms
type converter struct {
	action string // form endpoint
	page   string // page hosting the form, sent as referer
	field  string // form field name
	kind   string
}

var (
	cusipConverter = converter{action: "/action/c.php", page: "/convert-cusip-to-isin/", field: "cusip", kind: "cusip"}
	sedolConverter = converter{action: "/action/d.php", page: "/convert-sedol-to-isin/", field: "sedol", kind: "sedol"}
)

// strategy performs one conversion request and returns the ISIN or ""
type strategy interface {
	name() string
	convert(ctx context.Context, conv converter, value string) (string, error)
}

// Client converts national identifiers to ISINs
type Client struct {
	baseURL       string
	direct        *directStrategy
	session       *sessionStrategy
	strategies    []strategy
	limiter       *rate.Limiter
	cb            *resilience.CircuitBreaker
	tracer        *tracer.Tracer
	metrics       *metrics.Metrics
	log           *logger.Logger
	cusipPrefixes []string
	sedolPrefixes []string
}

// Option customises a Client
type Option func(*Client)

func WithTracer(t *tracer.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates an ISIN conversion client
func New(cfg config.IsinDBConfig, cb *resilience.CircuitBreaker, log *logger.Logger, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	headers := map[string]string{
		"User-Agent":       cfg.UserAgent,
		"Accept":           "*/*",
		"Accept-Language":  "en-GB,en-US;q=0.9,en;q=0.8",
		"Origin":           baseURL,
		"X-Requested-With": "XMLHttpRequest",
	}

	direct := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetHeaders(headers).
		SetCookieJar(nil)

	// resty installs a cookie jar by default, which the session strategy relies on
	session := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetHeaders(headers)

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	c := &Client{
		baseURL:       baseURL,
		direct:        &directStrategy{http: direct, baseURL: baseURL},
		session:       &sessionStrategy{http: session, baseURL: baseURL},
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
		cb:            cb,
		log:           log.Named("isindb"),
		cusipPrefixes: cfg.CusipPrefixes,
		sedolPrefixes: cfg.SedolPrefixes,
	}
	c.strategies = []strategy{c.direct, c.session}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTransport routes both strategies through rt, for tests
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.direct.http.SetTransport(rt)
	c.session.http.SetTransport(rt)
}

// CusipToIsin resolves a CUSIP, trying each configured country prefix
// (US, CA, BM by default). It returns "" when no ISIN was found.
func (c *Client) CusipToIsin(ctx context.Context, cusip string) (string, error) {
	if !identifier.IsValidCusip(cusip) {
		return "", nil
	}
	return c.resolve(ctx, cusipConverter, cusip, c.cusipPrefixes)
}

// SedolToIsin resolves a SEDOL, trying each configured country prefix
// (GB, IE by default). It returns "" when no ISIN was found.
func (c *Client) SedolToIsin(ctx context.Context, sedol string) (string, error) {
	if !identifier.IsValidSedol(sedol) {
		return "", nil
	}
	return c.resolve(ctx, sedolConverter, sedol, c.sedolPrefixes)
}

// resolve runs every strategy over every prefix in order and stops at the
// first valid ISIN. If no attempt produced an answer at all the last error is
// returned wrapped in ErrUnavailable.
func (c *Client) resolve(ctx context.Context, conv converter, code string, prefixes []string) (string, error) {
	ctx, span := c.tracer.StartSpan(ctx, "isindb.convert")
	span.SetAttributes(
		tracer.IdentifierAttr(code),
		tracer.IdentifierKindAttr(conv.kind),
		tracer.UpstreamAttr(upstreamName),
	)

	isin, err := c.run(ctx, conv, code, prefixes)
	tracer.EndSpan(span, err)
	return isin, err
}

func (c *Client) run(ctx context.Context, conv converter, code string, prefixes []string) (string, error) {
	log := c.log.WithContext(ctx).With(logger.Identifier(code), logger.IdentifierKind(conv.kind))

	answered := false
	var lastErr error
	for _, s := range c.strategies {
		for _, prefix := range prefixes {
			isin, err := c.attempt(ctx, s, conv, prefix+code)
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				lastErr = err
				log.Warn("conversion attempt failed",
					zap.String("strategy", s.name()),
					zap.String("prefix", prefix),
					logger.ErrorField(err),
				)
				if resilience.IsUnavailable(err) {
					return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
				}
				continue
			}

			answered = true
			if isin != "" {
				log.Debug("converted to ISIN", zap.String("strategy", s.name()), zap.String("isin", isin))
				return isin, nil
			}
		}
	}

	if !answered && lastErr != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
	}
	return "", nil
}

func (c *Client) attempt(ctx context.Context, s strategy, conv converter, value string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	isin, err := resilience.Call(ctx, c.cb, func(ctx context.Context) (string, error) {
		return s.convert(ctx, conv, value)
	})
	c.metrics.ObserveUpstream(upstreamName, err, start)
	return isin, err
}

// directStrategy posts the form the way the site's own JavaScript does and
// scans the HTML fragment it returns
type directStrategy struct {
	http    *resty.Client
	baseURL string
}

func (s *directStrategy) name() string { return "direct" }

func (s *directStrategy) convert(ctx context.Context, conv converter, value string) (string, error) {
	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Referer", s.baseURL+conv.page).
		SetFormData(map[string]string{conv.field: value}).
		Post(conv.action)
	if err != nil {
		return "", fmt.Errorf("isindb request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("isindb returned HTTP %d", resp.StatusCode())
	}
	return scanText(resp.String()), nil
}

// sessionStrategy loads the converter page first to pick up session cookies,
// then posts the form and parses the returned document
type sessionStrategy struct {
	http    *resty.Client
	baseURL string
}

func (s *sessionStrategy) name() string { return "session" }

func (s *sessionStrategy) convert(ctx context.Context, conv converter, value string) (string, error) {
	page, err := s.http.R().SetContext(ctx).Get(conv.page)
	if err != nil {
		return "", fmt.Errorf("isindb page request failed: %w", err)
	}
	if page.IsError() {
		return "", fmt.Errorf("isindb page returned HTTP %d", page.StatusCode())
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Referer", s.baseURL+conv.page).
		SetFormData(map[string]string{conv.field: value}).
		Post(conv.action)
	if err != nil {
		return "", fmt.Errorf("isindb request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("isindb returned HTTP %d", resp.StatusCode())
	}

	isin, err := parseDocument(bytes.NewReader(resp.Body()))
	if err != nil {
		return "", fmt.Errorf("failed to parse isindb response: %w", err)
	}
	return isin, nil
}
