package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/resilience"
)

// IsinRepository stores resolved CUSIP and SEDOL conversions
type IsinRepository struct {
	pool *pgxpool.Pool
	cb   *resilience.CircuitBreaker
}

// NewIsinRepository creates a new conversion repository
func NewIsinRepository(pool *pgxpool.Pool, cb *resilience.CircuitBreaker) *IsinRepository {
	return &IsinRepository{
		pool: pool,
		cb:   cb,
	}
}

// Get retrieves a stored conversion
func (r *IsinRepository) Get(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, error) {
	conv, err := resilience.Call(ctx, r.cb, func(ctx context.Context) (*domain.IsinConversion, error) {
		return r.get(ctx, kind, code)
	})
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversionNotFound
	}
	return conv, nil
}

func (r *IsinRepository) get(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, error) {
	query := `
		SELECT source_kind, source_code, country_prefix, isin, resolved_at
		FROM isin_conversions
		WHERE source_kind = $1 AND source_code = $2`

	rows, err := r.pool.Query(ctx, query, string(kind), code)
	if err != nil {
		return nil, fmt.Errorf("failed to query isin conversion: %w", err)
	}

	conv, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[domain.IsinConversion])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan isin conversion: %w", err)
	}
	return conv, nil
}

// Save stores a conversion, replacing any previous result for the same source
func (r *IsinRepository) Save(ctx context.Context, conv *domain.IsinConversion) error {
	_, err := r.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO isin_conversions (source_kind, source_code, country_prefix, isin, resolved_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (source_kind, source_code) DO UPDATE SET
				country_prefix = EXCLUDED.country_prefix,
				isin = EXCLUDED.isin,
				resolved_at = EXCLUDED.resolved_at`,
			string(conv.SourceKind), conv.SourceCode, conv.CountryPrefix, conv.Isin, conv.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to save isin conversion: %w", err)
		}
		return nil, nil
	})
	return err
}
