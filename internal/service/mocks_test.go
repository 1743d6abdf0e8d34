package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/domain/audit"
	"github.com/banking/refdata-service/internal/repository/postgres"
	"github.com/banking/refdata-service/internal/repository/redis"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// MockLeiSource is a mock registry client
type MockLeiSource struct {
	GetByLeiCodesFunc     func(ctx context.Context, codes ...string) ([]*domain.Lei, error)
	GetByIsinFunc         func(ctx context.Context, isin string) ([]*domain.Lei, error)
	GetByBicFunc          func(ctx context.Context, bic string) ([]*domain.Lei, error)
	SearchByLegalNameFunc func(ctx context.Context, name string) ([]*domain.Lei, error)
	calls                 atomic.Int32
}

func (m *MockLeiSource) GetByLeiCodes(ctx context.Context, codes ...string) ([]*domain.Lei, error) {
	m.calls.Add(1)
	if m.GetByLeiCodesFunc != nil {
		return m.GetByLeiCodesFunc(ctx, codes...)
	}
	return nil, nil
}

func (m *MockLeiSource) GetByIsin(ctx context.Context, isin string) ([]*domain.Lei, error) {
	m.calls.Add(1)
	if m.GetByIsinFunc != nil {
		return m.GetByIsinFunc(ctx, isin)
	}
	return nil, nil
}

func (m *MockLeiSource) GetByBic(ctx context.Context, bic string) ([]*domain.Lei, error) {
	m.calls.Add(1)
	if m.GetByBicFunc != nil {
		return m.GetByBicFunc(ctx, bic)
	}
	return nil, nil
}

func (m *MockLeiSource) SearchByLegalName(ctx context.Context, name string) ([]*domain.Lei, error) {
	m.calls.Add(1)
	if m.SearchByLegalNameFunc != nil {
		return m.SearchByLegalNameFunc(ctx, name)
	}
	return nil, nil
}

// MockLeiCache is an in-memory shared tier
type MockLeiCache struct {
	GetLeiFunc func(ctx context.Context, code string) (*domain.Lei, error)
	mu         sync.Mutex
	stored     map[string]*domain.Lei
}

func (m *MockLeiCache) GetLei(ctx context.Context, code string) (*domain.Lei, error) {
	if m.GetLeiFunc != nil {
		return m.GetLeiFunc(ctx, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if lei, ok := m.stored[code]; ok {
		return lei, nil
	}
	return nil, redis.ErrCacheMiss
}

func (m *MockLeiCache) SetLei(ctx context.Context, lei *domain.Lei) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]*domain.Lei)
	}
	m.stored[lei.Code] = lei
	return nil
}

func (m *MockLeiCache) has(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stored[code]
	return ok
}

// MockLeiStore is an in-memory persistent tier
type MockLeiStore struct {
	UpsertFunc func(ctx context.Context, leis ...*domain.Lei) error
	mu         sync.Mutex
	stored     map[string]*domain.Lei
}

func (m *MockLeiStore) GetByCode(ctx context.Context, code string) (*domain.Lei, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lei, ok := m.stored[code]; ok {
		return lei, nil
	}
	return nil, postgres.ErrLeiNotFound
}

func (m *MockLeiStore) GetByCodes(ctx context.Context, codes []string) (map[string]*domain.Lei, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[string]*domain.Lei)
	for _, code := range codes {
		if lei, ok := m.stored[code]; ok {
			found[code] = lei
		}
	}
	return found, nil
}

func (m *MockLeiStore) Upsert(ctx context.Context, leis ...*domain.Lei) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, leis...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]*domain.Lei)
	}
	for _, lei := range leis {
		m.stored[lei.Code] = lei
	}
	return nil
}

// MockIsinSource is a mock conversion client
type MockIsinSource struct {
	CusipToIsinFunc func(ctx context.Context, cusip string) (string, error)
	SedolToIsinFunc func(ctx context.Context, sedol string) (string, error)
	calls           atomic.Int32
}

func (m *MockIsinSource) CusipToIsin(ctx context.Context, cusip string) (string, error) {
	m.calls.Add(1)
	if m.CusipToIsinFunc != nil {
		return m.CusipToIsinFunc(ctx, cusip)
	}
	return "", nil
}

func (m *MockIsinSource) SedolToIsin(ctx context.Context, sedol string) (string, error) {
	m.calls.Add(1)
	if m.SedolToIsinFunc != nil {
		return m.SedolToIsinFunc(ctx, sedol)
	}
	return "", nil
}

// MockIsinCache is an in-memory shared tier for conversions
type MockIsinCache struct {
	mu     sync.Mutex
	stored map[string]*domain.IsinConversion
}

func (m *MockIsinCache) GetConversion(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.stored[string(kind)+":"+code]; ok {
		return conv, nil
	}
	return nil, redis.ErrCacheMiss
}

func (m *MockIsinCache) SetConversion(ctx context.Context, conv *domain.IsinConversion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]*domain.IsinConversion)
	}
	m.stored[string(conv.SourceKind)+":"+conv.SourceCode] = conv
	return nil
}

// MockIsinStore is an in-memory persistent tier for conversions
type MockIsinStore struct {
	GetFunc func(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, error)
	mu      sync.Mutex
	stored  map[string]*domain.IsinConversion
}

func (m *MockIsinStore) Get(ctx context.Context, kind domain.SourceKind, code string) (*domain.IsinConversion, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, kind, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.stored[string(kind)+":"+code]; ok {
		return conv, nil
	}
	return nil, postgres.ErrConversionNotFound
}

func (m *MockIsinStore) Save(ctx context.Context, conv *domain.IsinConversion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]*domain.IsinConversion)
	}
	m.stored[string(conv.SourceKind)+":"+conv.SourceCode] = conv
	return nil
}

// MockPublisher records published events
type MockPublisher struct {
	mu     sync.Mutex
	events []*audit.LookupEvent
}

func (m *MockPublisher) Publish(ctx context.Context, event *audit.LookupEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) results() []audit.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Result, len(m.events))
	for i, e := range m.events {
		out[i] = e.Result
	}
	return out
}

func (m *MockPublisher) last() *audit.LookupEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}
