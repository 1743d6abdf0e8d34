package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/resilience"
)

// Common errors
var (
	ErrLeiNotFound        = errors.New("lei record not found")
	ErrConversionNotFound = errors.New("isin conversion not found")
)

// LeiRepository stores LEI records as JSONB documents keyed by LEI code
type LeiRepository struct {
	pool *pgxpool.Pool
	cb   *resilience.CircuitBreaker
}

// NewLeiRepository creates a new LEI repository
func NewLeiRepository(pool *pgxpool.Pool, cb *resilience.CircuitBreaker) *LeiRepository {
	return &LeiRepository{
		pool: pool,
		cb:   cb,
	}
}

// GetByCode retrieves a stored LEI record
func (r *LeiRepository) GetByCode(ctx context.Context, code string) (*domain.Lei, error) {
	lei, err := resilience.Call(ctx, r.cb, func(ctx context.Context) (*domain.Lei, error) {
		return r.getByCode(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	if lei == nil {
		return nil, ErrLeiNotFound
	}
	return lei, nil
}

func (r *LeiRepository) getByCode(ctx context.Context, code string) (*domain.Lei, error) {
	var document []byte
	err := r.pool.QueryRow(ctx,
		"SELECT document FROM lei_records WHERE lei_code = $1",
		code,
	).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query lei record: %w", err)
	}

	var lei domain.Lei
	if err := json.Unmarshal(document, &lei); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lei document: %w", err)
	}
	return &lei, nil
}

// GetByCodes retrieves every stored record among codes, keyed by LEI code
func (r *LeiRepository) GetByCodes(ctx context.Context, codes []string) (map[string]*domain.Lei, error) {
	if len(codes) == 0 {
		return map[string]*domain.Lei{}, nil
	}
	return resilience.Call(ctx, r.cb, func(ctx context.Context) (map[string]*domain.Lei, error) {
		return r.getByCodes(ctx, codes)
	})
}

func (r *LeiRepository) getByCodes(ctx context.Context, codes []string) (map[string]*domain.Lei, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT document FROM lei_records WHERE lei_code = ANY($1)",
		codes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query lei records: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*domain.Lei, len(codes))
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan lei record: %w", err)
		}
		var lei domain.Lei
		if err := json.Unmarshal(document, &lei); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lei document: %w", err)
		}
		found[lei.Code] = &lei
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lei records: %w", err)
	}
	return found, nil
}

// Upsert stores or refreshes LEI records in a single batch
func (r *LeiRepository) Upsert(ctx context.Context, leis ...*domain.Lei) error {
	if len(leis) == 0 {
		return nil
	}
	_, err := r.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, r.upsert(ctx, leis)
	})
	return err
}

func (r *LeiRepository) upsert(ctx context.Context, leis []*domain.Lei) error {
	query := `
		INSERT INTO lei_records (lei_code, legal_name, entity_status, document, fetched_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (lei_code) DO UPDATE SET
			legal_name = EXCLUDED.legal_name,
			entity_status = EXCLUDED.entity_status,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, lei := range leis {
		document, err := json.Marshal(lei)
		if err != nil {
			return fmt.Errorf("failed to marshal lei %s: %w", lei.Code, err)
		}
		batch.Queue(query, lei.Code, lei.LegalName, string(lei.EntityStatus), document, now)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert lei records: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (r *LeiRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
