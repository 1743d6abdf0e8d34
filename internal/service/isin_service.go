package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/banking/refdata-service/internal/cache"
	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/domain/audit"
	"github.com/banking/refdata-service/internal/events"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/pkg/tracer"
	"github.com/banking/refdata-service/internal/repository/postgres"
	"github.com/banking/refdata-service/internal/repository/redis"
	"github.com/banking/refdata-service/pkg/identifier"
)

// IsinSource converts national identifiers to ISINs. An empty ISIN with a
// nil error means the source has no match.
type IsinSource interface {
	CusipToIsin(ctx context.Context, cusip string) (string, error)
	SedolToIsin(ctx context.Context, sedol string) (string, error)
}

// IsinCache is the shared cache tier for conversions
type IsinCache interface {
	GetConversion(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, error)
	SetConversion(ctx context.Context, conv *domain.IsinConversion) error
}

// IsinStore is the persistent tier for conversions
type IsinStore interface {
	Get(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, error)
	Save(ctx context.Context, conv *domain.IsinConversion) error
}

// IsinTiers are the cache layers consulted before the conversion source.
// Shared and Store are optional.
type IsinTiers struct {
	Local  cache.Cache[string, *domain.IsinConversion]
	Shared IsinCache
	Store  IsinStore
}

// IsinService converts CUSIP and SEDOL codes to ISINs
type IsinService struct {
	source  IsinSource
	local   cache.Cache[string, *domain.IsinConversion]
	shared  IsinCache
	store   IsinStore
	group   singleflight.Group
	rec     *recorder
	metrics *metrics.Metrics
	tracer  *tracer.Tracer
	log     *logger.Logger
	now     func() time.Time
}

// NewIsinService creates a new conversion service. A nil source disables
// remote conversion; only cached results are served.
func NewIsinService(
	source IsinSource,
	tiers IsinTiers,
	publisher events.Publisher,
	log *logger.Logger,
	hmacSecret []byte,
	opts ...Option,
) *IsinService {
	o := buildOptions(opts)
	local := tiers.Local
	if local == nil {
		local = cache.NewLRU[string, *domain.IsinConversion](1000)
	}
	named := log.Named("isin_service")

	return &IsinService{
		source:  source,
		local:   local,
		shared:  tiers.Shared,
		store:   tiers.Store,
		rec:     &recorder{publisher: publisher, metrics: o.metrics, hmacSecret: hmacSecret, log: named},
		metrics: o.metrics,
		tracer:  o.tracer,
		log:     named,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetIsinByCusip converts a CUSIP to an ISIN
func (s *IsinService) GetIsinByCusip(ctx context.Context, cusip string) (*domain.IsinConversion, error) {
	return s.convert(ctx, domain.SourceKindCusip, cusip)
}

// GetIsinBySedol converts a SEDOL to an ISIN
func (s *IsinService) GetIsinBySedol(ctx context.Context, sedol string) (*domain.IsinConversion, error) {
	return s.convert(ctx, domain.SourceKindSedol, sedol)
}

type resolvedIsin struct {
	conv   *domain.IsinConversion
	result audit.Result
}

func (s *IsinService) convert(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, error) {
	start := time.Now()
	eventKind := audit.KindIsinByCusip
	if kind == domain.SourceKindSedol {
		eventKind = audit.KindIsinBySedol
	}

	ctx, span := s.tracer.StartSpan(ctx, "IsinService."+eventKind)
	span.SetAttributes(tracer.IdentifierAttr(code), tracer.IdentifierKindAttr(string(kind)))

	conv, result, err := s.lookup(ctx, kind, code)

	matches := 0
	if conv != nil {
		matches = 1
	}
	s.rec.record(ctx, eventKind, code, start, result, matches, err)
	endSpan(span, result, err)
	return conv, err
}

func (s *IsinService) lookup(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, audit.Result, error) {
	valid := identifier.IsValidCusip
	if kind == domain.SourceKindSedol {
		valid = identifier.IsValidSedol
	}
	if !valid(code) {
		return nil, audit.ResultRejected, fmt.Errorf("%w: %q is not a valid %s", ErrInvalidIdentifier, code, kind)
	}

	key := string(kind) + ":" + code
	if conv, ok := s.local.Get(key); ok {
		s.metrics.CacheHit(tierLocal)
		return conv, audit.ResultHitLocal, nil
	}

	r, err := collapse(ctx, &s.group, key, func(ctx context.Context) (resolvedIsin, error) {
		return s.resolve(ctx, kind, code, key)
	})
	if err != nil {
		return nil, resultFor(err), err
	}
	return r.conv, r.result, nil
}

func (s *IsinService) resolve(ctx context.Context, kind domain.SourceKind, code, key string) (resolvedIsin, error) {
	log := s.log.WithContext(ctx).With(logger.Identifier(code), logger.IdentifierKind(string(kind)))

	if s.shared != nil {
		conv, err := s.shared.GetConversion(ctx, kind, code)
		switch {
		case err == nil:
			s.metrics.CacheHit(tierShared)
			s.local.Set(key, conv)
			return resolvedIsin{conv: conv, result: audit.ResultHitShared}, nil
		case !errors.Is(err, redis.ErrCacheMiss):
			log.Warn("shared cache read failed", logger.ErrorField(err))
		}
	}

	if s.store != nil {
		conv, err := s.store.Get(ctx, kind, code)
		switch {
		case err == nil:
			s.metrics.CacheHit(tierStore)
			s.local.Set(key, conv)
			s.writeShared(ctx, conv)
			return resolvedIsin{conv: conv, result: audit.ResultHitStore}, nil
		case !errors.Is(err, postgres.ErrConversionNotFound):
			log.Warn("persistent tier read failed", logger.ErrorField(err))
		}
	}

	if s.source == nil {
		return resolvedIsin{}, fmt.Errorf("%w: %s conversion source disabled", ErrUpstreamUnavailable, kind)
	}

	var isin string
	var err error
	if kind == domain.SourceKindSedol {
		isin, err = s.source.SedolToIsin(ctx, code)
	} else {
		isin, err = s.source.CusipToIsin(ctx, code)
	}
	if err != nil {
		return resolvedIsin{}, upstreamError(err)
	}
	if !identifier.IsValidIsin(isin) {
		return resolvedIsin{}, fmt.Errorf("%w: no ISIN for %s %s", ErrNotFound, kind, code)
	}

	conv := &domain.IsinConversion{
		SourceKind:    kind,
		SourceCode:    code,
		CountryPrefix: isin[:2],
		Isin:          isin,
		ResolvedAt:    s.now(),
	}
	s.remember(ctx, key, conv)
	return resolvedIsin{conv: conv, result: audit.ResultFetched}, nil
}

func (s *IsinService) writeShared(ctx context.Context, conv *domain.IsinConversion) {
	if s.shared == nil {
		return
	}
	wctx, cancel := detached(ctx)
	defer cancel()
	if err := s.shared.SetConversion(wctx, conv); err != nil {
		s.log.WithContext(ctx).Warn("failed to update shared cache", logger.Identifier(conv.SourceCode), logger.ErrorField(err))
	}
}

func (s *IsinService) remember(ctx context.Context, key string, conv *domain.IsinConversion) {
	s.local.Set(key, conv)
	s.writeShared(ctx, conv)

	if s.store != nil {
		wctx, cancel := detached(ctx)
		defer cancel()
		if err := s.store.Save(wctx, conv); err != nil {
			s.log.WithContext(ctx).Warn("failed to persist conversion", logger.Identifier(conv.SourceCode), logger.ErrorField(err))
		}
	}
}
