package http

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/refdata-service/internal/api/http/middleware"
	"github.com/banking/refdata-service/internal/config"
	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/pkg/health"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/service"
)

type stubLei struct{}

func (stubLei) GetByLeiCode(_ context.Context, code string) (*domain.Lei, error) {
	return &domain.Lei{Code: code, LegalName: "Apple Inc."}, nil
}

func (stubLei) GetByLeiCodes(_ context.Context, codes []string) ([]*domain.Lei, error) {
	return make([]*domain.Lei, len(codes)), nil
}

func (stubLei) GetByIsin(context.Context, string) ([]*domain.Lei, error) {
	return nil, service.ErrNotFound
}

func (stubLei) GetByBic(context.Context, string) ([]*domain.Lei, error) {
	return nil, service.ErrNotFound
}

func (stubLei) GetByCusip(_ context.Context, cusip string) ([]*domain.Lei, error) {
	return []*domain.Lei{{Code: "HWUPKR0MPOU8FGXBT394", LegalName: "Apple Inc."}}, nil
}

func (stubLei) GetBySedol(context.Context, string) ([]*domain.Lei, error) {
	return nil, service.ErrUpstreamUnavailable
}

func (stubLei) SearchByLegalName(context.Context, string) ([]*domain.Lei, error) {
	return nil, nil
}

type stubIsin struct{}

func (stubIsin) GetIsinByCusip(_ context.Context, cusip string) (*domain.IsinConversion, error) {
	return &domain.IsinConversion{SourceKind: domain.SourceKindCusip, SourceCode: cusip, Isin: "US0378331005"}, nil
}

func (stubIsin) GetIsinBySedol(context.Context, string) (*domain.IsinConversion, error) {
	return nil, service.ErrUpstreamUnavailable
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		RateLimit: config.RateLimitConfig{
			PerClientPerMinute:     100,
			PerIPPerMinute:         100,
			EnableInMemoryFallback: true,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestRouter(t *testing.T, key *ecdsa.PrivateKey) *Router {
	t.Helper()
	deps := RouterDeps{
		Config:      testConfig(),
		Logger:      logger.NewNop(),
		Health:      health.New(time.Second),
		Metrics:     metrics.New("test"),
		LeiService:  stubLei{},
		IsinService: stubIsin{},
	}
	if key != nil {
		deps.AuthPublicKey = &key.PublicKey
	}
	r := NewRouter(deps)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func serve(r *Router, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.Echo().ServeHTTP(rec, req)
	return rec
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		method string
		target string
		status int
		body   string
	}{
		{http.MethodGet, "/health/live", http.StatusOK, `"UP"`},
		{http.MethodGet, "/health/ready", http.StatusOK, `"UP"`},
		{http.MethodGet, "/api/v1/identifiers/lei/HWUPKR0MPOU8FGXBT394/validate", http.StatusOK, `"valid":true`},
		{http.MethodGet, "/api/v1/identifiers/detect/US0378331005", http.StatusOK, `"isin"`},
		{http.MethodGet, "/api/v1/lei/HWUPKR0MPOU8FGXBT394", http.StatusOK, `"Apple Inc."`},
		{http.MethodGet, "/api/v1/lei?codes=HWUPKR0MPOU8FGXBT394", http.StatusOK, `"record":null`},
		{http.MethodGet, "/api/v1/lei/search?name=apple", http.StatusOK, `"count":0`},
		{http.MethodGet, "/api/v1/lei/by-isin/US0378331005", http.StatusNotFound, ""},
		{http.MethodGet, "/api/v1/lei/by-bic/DEUTDEFF", http.StatusNotFound, ""},
		{http.MethodGet, "/api/v1/lei/by-cusip/037833100", http.StatusOK, `"count":1`},
		{http.MethodGet, "/api/v1/lei/by-sedol/0263494", http.StatusServiceUnavailable, ""},
		{http.MethodGet, "/api/v1/lei/search?name=apple&country=ZZ", http.StatusBadRequest, "ISO 3166"},
		{http.MethodGet, "/api/v1/identifiers/countries", http.StatusOK, `"GB"`},
		{http.MethodGet, "/api/v1/isin/by-cusip/037833100", http.StatusOK, `"US0378331005"`},
		{http.MethodGet, "/api/v1/isin/by-sedol/0263494", http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serve(r, tt.method, tt.target, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.body != "" {
				assert.Contains(t, rec.Body.String(), tt.body)
			}
			assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestRouter_ValidateBody(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/identifiers/validate",
		strings.NewReader(`{"kind":"cusip","code":"037833100"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":true`)
}

func TestRouter_LeiBatch(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lei/batch",
		strings.NewReader(`{"codes":["HWUPKR0MPOU8FGXBT394","nope"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Codes[1] is not a valid LEI")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/lei/batch",
		strings.NewReader(`{"codes":["HWUPKR0MPOU8FGXBT394"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	r.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"record":null`)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t, nil)

	serve(r, http.MethodGet, "/api/v1/identifiers/isin/US0378331005/validate", "")
	rec := serve(r, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_identifier_validations_total{kind="isin",valid="true"} 1`)
}

func TestRouter_Auth(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	r := newTestRouter(t, key)

	sign := func(scopes []string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodES256, &middleware.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "settlement-engine",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Scopes: scopes,
		})
		s, err := token.SignedString(key)
		require.NoError(t, err)
		return s
	}

	target := "/api/v1/lei/HWUPKR0MPOU8FGXBT394"
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, target, "").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, target, sign(nil)).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, target, sign([]string{middleware.ScopeRead})).Code)

	// Health endpoints stay open
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health/live", "").Code)
}
