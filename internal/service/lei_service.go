package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
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

const (
	// sharedFanout bounds concurrent Redis reads during a batch lookup
	sharedFanout = 16
	// maxNameLength bounds legal-name search terms
	maxNameLength = 200
)

// LeiSource fetches LEI records from the registry
type LeiSource interface {
	GetByLeiCodes(ctx context.Context, codes ...string) ([]*domain.Lei, error)
	GetByIsin(ctx context.Context, isin string) ([]*domain.Lei, error)
	GetByBic(ctx context.Context, bic string) ([]*domain.Lei, error)
	SearchByLegalName(ctx context.Context, name string) ([]*domain.Lei, error)
}

// IsinResolver converts national identifiers to ISINs. IsinService
// implements it.
type IsinResolver interface {
	GetIsinByCusip(ctx context.Context, cusip string) (*domain.IsinConversion, error)
	GetIsinBySedol(ctx context.Context, sedol string) (*domain.IsinConversion, error)
}

// LeiCache is the shared cache tier
type LeiCache interface {
	GetLei(ctx context.Context, code string) (*domain.Lei, error)
	SetLei(ctx context.Context, lei *domain.Lei) error
}

// LeiStore is the persistent tier
type LeiStore interface {
	GetByCode(ctx context.Context, code string) (*domain.Lei, error)
	GetByCodes(ctx context.Context, codes []string) (map[string]*domain.Lei, error)
	Upsert(ctx context.Context, leis ...*domain.Lei) error
}

// LeiTiers are the cache layers consulted before the registry.
// Shared and Store are optional.
type LeiTiers struct {
	Local  cache.Cache[string, *domain.Lei]
	Shared LeiCache
	Store  LeiStore
}

// LeiService resolves LEI records through the cache tiers and the registry
type LeiService struct {
	source   LeiSource
	local    cache.Cache[string, *domain.Lei]
	shared   LeiCache
	store    LeiStore
	isins    IsinResolver
	group    singleflight.Group
	rec      *recorder
	metrics  *metrics.Metrics
	tracer   *tracer.Tracer
	log      *logger.Logger
	maxBatch int
}

// NewLeiService creates a new LEI lookup service
func NewLeiService(
	source LeiSource,
	tiers LeiTiers,
	publisher events.Publisher,
	log *logger.Logger,
	hmacSecret []byte,
	opts ...Option,
) *LeiService {
	o := buildOptions(opts)
	local := tiers.Local
	if local == nil {
		local = cache.NewLRU[string, *domain.Lei](1000)
	}
	named := log.Named("lei_service")

	return &LeiService{
		source:   source,
		local:    local,
		shared:   tiers.Shared,
		store:    tiers.Store,
		isins:    o.isins,
		rec:      &recorder{publisher: publisher, metrics: o.metrics, hmacSecret: hmacSecret, log: named},
		metrics:  o.metrics,
		tracer:   o.tracer,
		log:      named,
		maxBatch: o.maxBatch,
	}
}

type resolvedLei struct {
	lei    *domain.Lei
	result audit.Result
}

// GetByLeiCode returns the record for a single LEI code
func (s *LeiService) GetByLeiCode(ctx context.Context, code string) (*domain.Lei, error) {
	start := time.Now()
	ctx, span := s.tracer.StartSpan(ctx, "LeiService.GetByLeiCode")
	span.SetAttributes(tracer.IdentifierAttr(code), tracer.IdentifierKindAttr(identifier.KindLei.String()))

	lei, result, err := s.getByLeiCode(ctx, code)

	matches := 0
	if lei != nil {
		matches = 1
	}
	s.rec.record(ctx, audit.KindLei, code, start, result, matches, err)
	endSpan(span, result, err)
	return lei, err
}

func (s *LeiService) getByLeiCode(ctx context.Context, code string) (*domain.Lei, audit.Result, error) {
	if !identifier.IsValidLei(code) {
		return nil, audit.ResultRejected, fmt.Errorf("%w: %q is not a valid LEI", ErrInvalidIdentifier, code)
	}

	if lei, ok := s.local.Get(code); ok {
		s.metrics.CacheHit(tierLocal)
		return lei, audit.ResultHitLocal, nil
	}

	r, err := collapse(ctx, &s.group, audit.KindLei+":"+code, func(ctx context.Context) (resolvedLei, error) {
		return s.resolve(ctx, code)
	})
	if err != nil {
		return nil, resultFor(err), err
	}
	return r.lei, r.result, nil
}

func (s *LeiService) resolve(ctx context.Context, code string) (resolvedLei, error) {
	if lei := s.fromShared(ctx, code); lei != nil {
		s.local.Set(code, lei)
		return resolvedLei{lei: lei, result: audit.ResultHitShared}, nil
	}

	if lei := s.fromStore(ctx, code); lei != nil {
		s.local.Set(code, lei)
		s.writeShared(ctx, lei)
		return resolvedLei{lei: lei, result: audit.ResultHitStore}, nil
	}

	leis, err := s.source.GetByLeiCodes(ctx, code)
	if err != nil {
		return resolvedLei{}, upstreamError(err)
	}
	for _, lei := range leis {
		if lei.Code == code {
			s.remember(ctx, lei)
			return resolvedLei{lei: lei, result: audit.ResultFetched}, nil
		}
	}
	return resolvedLei{}, fmt.Errorf("%w: LEI %s", ErrNotFound, code)
}

// GetByLeiCodes resolves a batch of LEI codes. The result has one entry per
// requested code in the same order; invalid and unknown codes yield nil.
func (s *LeiService) GetByLeiCodes(ctx context.Context, codes []string) ([]*domain.Lei, error) {
	start := time.Now()
	ctx, span := s.tracer.StartSpan(ctx, "LeiService.GetByLeiCodes")
	span.SetAttributes(tracer.BatchSizeAttr(len(codes)))

	out, result, err := s.getByLeiCodes(ctx, codes)

	matches := 0
	for _, lei := range out {
		if lei != nil {
			matches++
		}
	}
	s.rec.record(ctx, audit.KindLeiBatch, strings.Join(codes, ","), start, result, matches, err)
	endSpan(span, result, err)
	return out, err
}

func (s *LeiService) getByLeiCodes(ctx context.Context, codes []string) ([]*domain.Lei, audit.Result, error) {
	if len(codes) > s.maxBatch {
		return nil, audit.ResultRejected, fmt.Errorf("%w: at most %d LEI codes per request", ErrInvalidInput, s.maxBatch)
	}

	found := make(map[string]*domain.Lei, len(codes))
	seen := make(map[string]struct{}, len(codes))
	result := audit.ResultHitLocal
	var pending []string

	for _, code := range codes {
		if _, dup := seen[code]; dup || !identifier.IsValidLei(code) {
			continue
		}
		seen[code] = struct{}{}
		if lei, ok := s.local.Get(code); ok {
			s.metrics.CacheHit(tierLocal)
			found[code] = lei
			continue
		}
		pending = append(pending, code)
	}

	if len(pending) > 0 && s.shared != nil {
		hits := make([]*domain.Lei, len(pending))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(sharedFanout)
		for i, code := range pending {
			i, code := i, code
			g.Go(func() error {
				hits[i] = s.fromShared(gctx, code)
				return nil
			})
		}
		_ = g.Wait()

		remaining := pending[:0:0]
		for i, code := range pending {
			if hits[i] == nil {
				remaining = append(remaining, code)
				continue
			}
			found[code] = hits[i]
			s.local.Set(code, hits[i])
			result = audit.ResultHitShared
		}
		pending = remaining
	}

	if len(pending) > 0 && s.store != nil {
		stored, err := s.store.GetByCodes(ctx, pending)
		if err != nil {
			s.log.WithContext(ctx).Warn("persistent tier unavailable", logger.ErrorField(err))
		}
		remaining := pending[:0:0]
		for _, code := range pending {
			lei, ok := stored[code]
			if !ok {
				remaining = append(remaining, code)
				continue
			}
			s.metrics.CacheHit(tierStore)
			found[code] = lei
			s.local.Set(code, lei)
			s.writeShared(ctx, lei)
			result = audit.ResultHitStore
		}
		pending = remaining
	}

	if len(pending) > 0 {
		leis, err := s.source.GetByLeiCodes(ctx, pending...)
		if err != nil {
			err = upstreamError(err)
			return nil, resultFor(err), err
		}
		s.remember(ctx, leis...)
		for _, lei := range leis {
			found[lei.Code] = lei
		}
		if len(leis) > 0 {
			result = audit.ResultFetched
		}
	}

	out := make([]*domain.Lei, len(codes))
	for i, code := range codes {
		out[i] = found[code]
	}
	if len(found) == 0 {
		result = audit.ResultNotFound
	}
	return out, result, nil
}

// GetByIsin returns the entities linked to an ISIN
func (s *LeiService) GetByIsin(ctx context.Context, isin string) ([]*domain.Lei, error) {
	if !identifier.IsValidIsin(isin) {
		return s.reject(ctx, audit.KindLeiByIsin, isin, fmt.Errorf("%w: %q is not a valid ISIN", ErrInvalidIdentifier, isin))
	}
	return s.lookupMany(ctx, audit.KindLeiByIsin, isin, true, s.source.GetByIsin)
}

// GetByBic returns the entities linked to a BIC
func (s *LeiService) GetByBic(ctx context.Context, bic string) ([]*domain.Lei, error) {
	if !identifier.IsValidBic(bic) {
		return s.reject(ctx, audit.KindLeiByBic, bic, fmt.Errorf("%w: %q is not a valid BIC", ErrInvalidIdentifier, bic))
	}
	return s.lookupMany(ctx, audit.KindLeiByBic, bic, true, s.source.GetByBic)
}

// GetByCusip returns the entities linked to the ISIN a CUSIP converts to
func (s *LeiService) GetByCusip(ctx context.Context, cusip string) ([]*domain.Lei, error) {
	return s.viaIsin(ctx, func(r IsinResolver) (*domain.IsinConversion, error) {
		return r.GetIsinByCusip(ctx, cusip)
	})
}

// GetBySedol returns the entities linked to the ISIN a SEDOL converts to
func (s *LeiService) GetBySedol(ctx context.Context, sedol string) ([]*domain.Lei, error) {
	return s.viaIsin(ctx, func(r IsinResolver) (*domain.IsinConversion, error) {
		return r.GetIsinBySedol(ctx, sedol)
	})
}

// viaIsin converts a national identifier and looks up the resulting ISIN.
// Each step records its own lookup event.
func (s *LeiService) viaIsin(ctx context.Context, convert func(IsinResolver) (*domain.IsinConversion, error)) ([]*domain.Lei, error) {
	if s.isins == nil {
		return nil, fmt.Errorf("%w: ISIN conversion is not configured", ErrUpstreamUnavailable)
	}
	conv, err := convert(s.isins)
	if err != nil {
		return nil, err
	}
	return s.GetByIsin(ctx, conv.Isin)
}

// SearchByLegalName returns entities whose legal name matches. An empty
// result is not an error.
func (s *LeiService) SearchByLegalName(ctx context.Context, name string) ([]*domain.Lei, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return s.reject(ctx, audit.KindLeiByName, name,
			fmt.Errorf("%w: legal name must be 1 to %d characters", ErrInvalidInput, maxNameLength))
	}
	return s.lookupMany(ctx, audit.KindLeiByName, name, false, s.source.SearchByLegalName)
}

func (s *LeiService) reject(ctx context.Context, kind, query string, err error) ([]*domain.Lei, error) {
	s.rec.record(ctx, kind, query, time.Now(), audit.ResultRejected, 0, err)
	return nil, err
}

// lookupMany runs a registry query that may return several records and
// writes the records through to the LEI tiers
func (s *LeiService) lookupMany(
	ctx context.Context,
	kind, query string,
	emptyIsNotFound bool,
	fetch func(ctx context.Context, value string) ([]*domain.Lei, error),
) ([]*domain.Lei, error) {
	start := time.Now()
	ctx, span := s.tracer.StartSpan(ctx, "LeiService."+kind)
	span.SetAttributes(tracer.IdentifierKindAttr(kind))

	leis, err := collapse(ctx, &s.group, kind+":"+query, func(ctx context.Context) ([]*domain.Lei, error) {
		leis, err := fetch(ctx, query)
		if err != nil {
			return nil, upstreamError(err)
		}
		s.remember(ctx, leis...)
		return leis, nil
	})

	result := audit.ResultFetched
	switch {
	case err != nil:
		result = resultFor(err)
	default:
		if len(leis) == 0 {
			result = audit.ResultNotFound
			if emptyIsNotFound {
				err = fmt.Errorf("%w: no LEI records for %s", ErrNotFound, query)
			}
		}
	}
	if leis == nil && err == nil {
		leis = []*domain.Lei{}
	}

	s.rec.record(ctx, kind, query, start, result, len(leis), err)
	endSpan(span, result, err)
	return leis, err
}

func (s *LeiService) fromShared(ctx context.Context, code string) *domain.Lei {
	if s.shared == nil {
		return nil
	}
	lei, err := s.shared.GetLei(ctx, code)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.WithContext(ctx).Warn("shared cache read failed", logger.Identifier(code), logger.ErrorField(err))
		}
		return nil
	}
	s.metrics.CacheHit(tierShared)
	return lei
}

func (s *LeiService) fromStore(ctx context.Context, code string) *domain.Lei {
	if s.store == nil {
		return nil
	}
	lei, err := s.store.GetByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, postgres.ErrLeiNotFound) {
			s.log.WithContext(ctx).Warn("persistent tier read failed", logger.Identifier(code), logger.ErrorField(err))
		}
		return nil
	}
	s.metrics.CacheHit(tierStore)
	return lei
}

func (s *LeiService) writeShared(ctx context.Context, leis ...*domain.Lei) {
	if s.shared == nil {
		return
	}
	wctx, cancel := detached(ctx)
	defer cancel()
	for _, lei := range leis {
		if err := s.shared.SetLei(wctx, lei); err != nil {
			s.log.WithContext(ctx).Warn("failed to update shared cache", logger.Identifier(lei.Code), logger.ErrorField(err))
			return
		}
	}
}

// remember stores freshly fetched records in every tier. Only positive
// results are cached.
func (s *LeiService) remember(ctx context.Context, leis ...*domain.Lei) {
	if len(leis) == 0 {
		return
	}
	for _, lei := range leis {
		s.local.Set(lei.Code, lei)
	}
	s.writeShared(ctx, leis...)

	if s.store != nil {
		wctx, cancel := detached(ctx)
		defer cancel()
		if err := s.store.Upsert(wctx, leis...); err != nil {
			s.log.WithContext(ctx).Warn("failed to persist LEI records", logger.Count(len(leis)), logger.ErrorField(err))
		}
	}
}
