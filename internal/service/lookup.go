package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/banking/refdata-service/internal/domain/audit"
	"github.com/banking/refdata-service/internal/events"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/pkg/tracer"
)

// Common service errors
var (
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidInput        = errors.New("invalid input")
)

// Cache tier names used in metrics and traces
const (
	tierLocal  = "local"
	tierShared = "redis"
	tierStore  = "postgres"
)

const (
	// writeTimeout bounds write-through to the shared and persistent tiers
	writeTimeout = 5 * time.Second
	// sharedLookupTimeout bounds a lookup shared by concurrent callers
	sharedLookupTimeout = 30 * time.Second
)

// Option configures the lookup services
type Option func(*options)

type options struct {
	metrics  *metrics.Metrics
	tracer   *tracer.Tracer
	maxBatch int
	isins    IsinResolver
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithTracer(t *tracer.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMaxBatchSize caps the number of codes accepted by a batch lookup
func WithMaxBatchSize(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

// WithIsinResolver lets the LEI service answer CUSIP and SEDOL lookups by
// converting them to an ISIN first
func WithIsinResolver(r IsinResolver) Option {
	return func(o *options) { o.isins = r }
}

func buildOptions(opts []Option) options {
	o := options{maxBatch: 200}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// recorder emits a signed LookupEvent and lookup metrics for every lookup
type recorder struct {
	publisher  events.Publisher
	metrics    *metrics.Metrics
	hmacSecret []byte
	log        *logger.Logger
}

func (r *recorder) record(ctx context.Context, kind, query string, start time.Time, result audit.Result, matches int, cause error) {
	r.metrics.ObserveLookup(kind, string(result), start)

	if r.publisher == nil {
		return
	}

	b := audit.NewLookupEvent(r.hmacSecret, kind, query).
		Result(result, matches).
		Duration(time.Since(start))
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		b.RequestID(requestID)
	}
	if subject, ok := ctx.Value(logger.SubjectKey).(string); ok {
		b.Subject(subject)
	}
	if result == audit.ResultFailed && cause != nil {
		b.Failure(cause.Error())
	}

	event, err := b.Build()
	if err != nil {
		r.log.Error("failed to build lookup event", logger.ErrorField(err))
		return
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.log.WithContext(ctx).Warn("failed to publish lookup event",
			logger.ErrorField(err),
			logger.IdentifierKind(kind),
		)
	}
}

// resultFor maps a lookup error to the recorded outcome
func resultFor(err error) audit.Result {
	switch {
	case errors.Is(err, ErrInvalidIdentifier), errors.Is(err, ErrInvalidInput):
		return audit.ResultRejected
	case errors.Is(err, ErrNotFound):
		return audit.ResultNotFound
	default:
		return audit.ResultFailed
	}
}

// upstreamError wraps a remote failure, leaving caller cancellation untouched
func upstreamError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}

// collapse runs fn once for all concurrent callers of key. fn gets a context
// that outlives any single caller, so one caller going away does not fail
// the others; each caller still stops waiting when its own ctx is done.
func collapse[T any](ctx context.Context, g *singleflight.Group, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ch := g.DoChan(key, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()
		return fn(sctx)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// detached returns a context for best-effort writes that outlive the caller
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

func endSpan(span trace.Span, result audit.Result, err error) {
	span.SetAttributes(tracer.LookupResultAttr(string(result)))
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidIdentifier) {
		err = nil
	}
	tracer.EndSpan(span, err)
}
