package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/banking/refdata-service/internal/api/http/middleware"
	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/pkg/metrics"
	"github.com/banking/refdata-service/internal/pkg/validator"
	"github.com/banking/refdata-service/internal/service"
)

const (
	appleLei   = "HWUPKR0MPOU8FGXBT394"
	appleIsin  = "US0378331005"
	appleCusip = "037833100"
)

// MockLeiLookup is a mock implementation for testing
type MockLeiLookup struct {
	GetByLeiCodeFunc      func(code string) (*domain.Lei, error)
	GetByLeiCodesFunc     func(codes []string) ([]*domain.Lei, error)
	GetByIsinFunc         func(isin string) ([]*domain.Lei, error)
	GetByBicFunc          func(bic string) ([]*domain.Lei, error)
	GetByCusipFunc        func(cusip string) ([]*domain.Lei, error)
	GetBySedolFunc        func(sedol string) ([]*domain.Lei, error)
	SearchByLegalNameFunc func(name string) ([]*domain.Lei, error)
}

func (m *MockLeiLookup) GetByLeiCode(_ context.Context, code string) (*domain.Lei, error) {
	if m.GetByLeiCodeFunc != nil {
		return m.GetByLeiCodeFunc(code)
	}
	return nil, service.ErrNotFound
}

func (m *MockLeiLookup) GetByLeiCodes(_ context.Context, codes []string) ([]*domain.Lei, error) {
	if m.GetByLeiCodesFunc != nil {
		return m.GetByLeiCodesFunc(codes)
	}
	return make([]*domain.Lei, len(codes)), nil
}

func (m *MockLeiLookup) GetByIsin(_ context.Context, isin string) ([]*domain.Lei, error) {
	if m.GetByIsinFunc != nil {
		return m.GetByIsinFunc(isin)
	}
	return nil, service.ErrNotFound
}

func (m *MockLeiLookup) GetByBic(_ context.Context, bic string) ([]*domain.Lei, error) {
	if m.GetByBicFunc != nil {
		return m.GetByBicFunc(bic)
	}
	return nil, service.ErrNotFound
}

func (m *MockLeiLookup) GetByCusip(_ context.Context, cusip string) ([]*domain.Lei, error) {
	if m.GetByCusipFunc != nil {
		return m.GetByCusipFunc(cusip)
	}
	return nil, nil
}

func (m *MockLeiLookup) GetBySedol(_ context.Context, sedol string) ([]*domain.Lei, error) {
	if m.GetBySedolFunc != nil {
		return m.GetBySedolFunc(sedol)
	}
	return nil, nil
}

func (m *MockLeiLookup) SearchByLegalName(_ context.Context, name string) ([]*domain.Lei, error) {
	if m.SearchByLegalNameFunc != nil {
		return m.SearchByLegalNameFunc(name)
	}
	return nil, nil
}

// MockIsinLookup is a mock implementation for testing
type MockIsinLookup struct {
	GetIsinByCusipFunc func(cusip string) (*domain.IsinConversion, error)
	GetIsinBySedolFunc func(sedol string) (*domain.IsinConversion, error)
}

func (m *MockIsinLookup) GetIsinByCusip(_ context.Context, cusip string) (*domain.IsinConversion, error) {
	if m.GetIsinByCusipFunc != nil {
		return m.GetIsinByCusipFunc(cusip)
	}
	return nil, service.ErrNotFound
}

func (m *MockIsinLookup) GetIsinBySedol(_ context.Context, sedol string) (*domain.IsinConversion, error) {
	if m.GetIsinBySedolFunc != nil {
		return m.GetIsinBySedolFunc(sedol)
	}
	return nil, service.ErrNotFound
}

func setupTestContext(method, path string, body string) (*echo.Echo, echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = validator.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(string(middleware.RequestIDKey), "req-123")
	return e, c, rec
}

func expectHTTPError(t *testing.T, err error, status int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T: %v", err, err)
	}
	if httpErr.Code != status {
		t.Errorf("expected status %d, got %d (%v)", status, httpErr.Code, httpErr.Message)
	}
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: bad", service.ErrInvalidIdentifier), http.StatusBadRequest},
		{fmt.Errorf("%w: too many", service.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: LEI x", service.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: gleif", service.ErrUpstreamUnavailable), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("lookup: %w", context.Canceled), statusClientClosedRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		expectHTTPError(t, handleServiceError(tt.err), tt.status)
	}
}

func TestIdentifierValidate_Path(t *testing.T) {
	m := metrics.New("test")
	h := NewIdentifierHandler(validator.New(), m)

	tests := []struct {
		kind  string
		code  string
		valid bool
	}{
		{"lei", appleLei, true},
		{"LEI", appleLei, true},
		{"isin", appleIsin, true},
		{"isin", "US0378331006", false},
		{"cusip", appleCusip, true},
		{"sedol", "0263494", true},
		{"bic", "DEUTDEFF", true},
		{"bic", "DEUTXXFF", false},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.code, func(t *testing.T) {
			_, c, rec := setupTestContext(http.MethodGet, "/", "")
			c.SetParamNames("kind", "code")
			c.SetParamValues(tt.kind, tt.code)

			if err := h.Validate(c); err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if rec.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rec.Code)
			}

			var resp ValidateResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp.Valid != tt.valid {
				t.Errorf("expected valid=%v, got %v", tt.valid, resp.Valid)
			}
			if resp.Kind.String() != strings.ToLower(tt.kind) || resp.Code != tt.code {
				t.Errorf("unexpected echo of input: %+v", resp)
			}
		})
	}
}

func TestIdentifierValidate_UnknownKind(t *testing.T) {
	h := NewIdentifierHandler(validator.New(), nil)
	_, c, _ := setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("kind", "code")
	c.SetParamValues("figi", "BBG000B9XRY4")

	expectHTTPError(t, h.Validate(c), http.StatusBadRequest)
}

func TestIdentifierValidate_Body(t *testing.T) {
	h := NewIdentifierHandler(validator.New(), nil)

	_, c, rec := setupTestContext(http.MethodPost, "/api/v1/identifiers/validate", `{"kind":"lei","code":"`+appleLei+`"}`)
	if err := h.ValidateBody(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	var resp ValidateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Valid || resp.Kind != "lei" {
		t.Errorf("expected valid lei, got %+v", resp)
	}
}

func TestIdentifierValidate_BodyRejected(t *testing.T) {
	h := NewIdentifierHandler(validator.New(), nil)

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"missing kind", `{"code":"X"}`, "Kind is required"},
		{"unknown kind", `{"kind":"figi","code":"X"}`, "Kind must be one of"},
		{"missing code", `{"kind":"lei"}`, "Code is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c, rec := setupTestContext(http.MethodPost, "/api/v1/identifiers/validate", tt.body)
			if err := h.ValidateBody(c); err != nil {
				t.Fatalf("expected JSON error response, got: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.detail) {
				t.Errorf("expected %q in %s", tt.detail, rec.Body.String())
			}
		})
	}

	_, c, _ := setupTestContext(http.MethodPost, "/api/v1/identifiers/validate", `{not json`)
	expectHTTPError(t, h.ValidateBody(c), http.StatusBadRequest)
}

func TestIdentifierDetect(t *testing.T) {
	h := NewIdentifierHandler(validator.New(), nil)

	_, c, rec := setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("code")
	c.SetParamValues(appleIsin)
	if err := h.Detect(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	var resp DetectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Kinds) != 1 || resp.Kinds[0] != "isin" {
		t.Errorf("expected [isin], got %v", resp.Kinds)
	}

	_, c, rec = setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("code")
	c.SetParamValues("nothing")
	if err := h.Detect(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"kinds":[]`) {
		t.Errorf("expected empty kinds array, got %s", rec.Body.String())
	}
}

func TestLeiGetByCode(t *testing.T) {
	mock := &MockLeiLookup{
		GetByLeiCodeFunc: func(code string) (*domain.Lei, error) {
			if code != appleLei {
				return nil, fmt.Errorf("%w: LEI %s", service.ErrNotFound, code)
			}
			return &domain.Lei{Code: appleLei, LegalName: "Apple Inc.", EntityStatus: domain.EntityStatusActive}, nil
		},
	}
	h := NewLeiHandler(mock, logger.NewNop())

	_, c, rec := setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("code")
	c.SetParamValues(appleLei)
	if err := h.GetByCode(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	var lei domain.Lei
	if err := json.Unmarshal(rec.Body.Bytes(), &lei); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if lei.Code != appleLei || lei.LegalName != "Apple Inc." {
		t.Errorf("unexpected record: %+v", lei)
	}

	_, c, _ = setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("code")
	c.SetParamValues("5493001KJTIIGC8Y1R12")
	expectHTTPError(t, h.GetByCode(c), http.StatusNotFound)
}

func TestLeiGetByCode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid", fmt.Errorf("%w: bad", service.ErrInvalidIdentifier), http.StatusBadRequest},
		{"upstream down", fmt.Errorf("%w: circuit open", service.ErrUpstreamUnavailable), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLeiHandler(&MockLeiLookup{
				GetByLeiCodeFunc: func(string) (*domain.Lei, error) { return nil, tt.err },
			}, logger.NewNop())

			_, c, _ := setupTestContext(http.MethodGet, "/", "")
			c.SetParamNames("code")
			c.SetParamValues("abc")
			expectHTTPError(t, h.GetByCode(c), tt.status)
		})
	}
}

func TestLeiGetByCodes(t *testing.T) {
	var got []string
	mock := &MockLeiLookup{
		GetByLeiCodesFunc: func(codes []string) ([]*domain.Lei, error) {
			got = codes
			out := make([]*domain.Lei, len(codes))
			out[0] = &domain.Lei{Code: codes[0], LegalName: "Apple Inc."}
			return out, nil
		},
	}
	h := NewLeiHandler(mock, logger.NewNop())

	_, c, rec := setupTestContext(http.MethodGet, "/api/v1/lei?codes="+appleLei+",%20bogus,,", "")
	if err := h.GetByCodes(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(got) != 2 || got[0] != appleLei || got[1] != "bogus" {
		t.Errorf("expected trimmed codes, got %v", got)
	}

	var resp BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Record == nil || resp.Results[0].Code != appleLei {
		t.Errorf("expected first record resolved, got %+v", resp.Results[0])
	}
	if resp.Results[1].Record != nil || resp.Results[1].Code != "bogus" {
		t.Errorf("expected null record for bogus code, got %+v", resp.Results[1])
	}
}

func TestLeiGetByCodes_Rejected(t *testing.T) {
	h := NewLeiHandler(&MockLeiLookup{
		GetByLeiCodesFunc: func([]string) ([]*domain.Lei, error) {
			return nil, fmt.Errorf("%w: at most 1 LEI codes per request", service.ErrInvalidInput)
		},
	}, logger.NewNop())

	_, c, _ := setupTestContext(http.MethodGet, "/api/v1/lei", "")
	expectHTTPError(t, h.GetByCodes(c), http.StatusBadRequest)

	_, c, _ = setupTestContext(http.MethodGet, "/api/v1/lei?codes=a,b", "")
	expectHTTPError(t, h.GetByCodes(c), http.StatusBadRequest)
}

func TestLeiListEndpoints(t *testing.T) {
	record := &domain.Lei{Code: appleLei, LegalName: "Apple Inc."}
	mock := &MockLeiLookup{
		GetByIsinFunc: func(isin string) ([]*domain.Lei, error) {
			if isin != appleIsin {
				t.Errorf("unexpected isin %q", isin)
			}
			return []*domain.Lei{record}, nil
		},
		GetByBicFunc: func(string) ([]*domain.Lei, error) {
			return nil, fmt.Errorf("%w: bic", service.ErrNotFound)
		},
		SearchByLegalNameFunc: func(name string) ([]*domain.Lei, error) {
			if name != "Apple" {
				t.Errorf("unexpected name %q", name)
			}
			return nil, nil
		},
	}
	h := NewLeiHandler(mock, logger.NewNop())

	_, c, rec := setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("isin")
	c.SetParamValues(appleIsin)
	if err := h.GetByIsin(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	var resp ListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 1 || resp.Records[0].Code != appleLei {
		t.Errorf("unexpected response %+v", resp)
	}

	_, c, _ = setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("bic")
	c.SetParamValues("DEUTDEFF")
	expectHTTPError(t, h.GetByBic(c), http.StatusNotFound)

	// An empty search is a 200 with no records
	_, c, rec = setupTestContext(http.MethodGet, "/api/v1/lei/search?name=Apple", "")
	if err := h.Search(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"records":[]`) {
		t.Errorf("expected empty records array, got %s", rec.Body.String())
	}
}

func TestLeiBatch(t *testing.T) {
	var got []string
	h := NewLeiHandler(&MockLeiLookup{
		GetByLeiCodesFunc: func(codes []string) ([]*domain.Lei, error) {
			got = codes
			return []*domain.Lei{{Code: appleLei}}, nil
		},
	}, logger.NewNop())

	_, c, rec := setupTestContext(http.MethodPost, "/api/v1/lei/batch", `{"codes":["`+appleLei+`"]}`)
	if err := h.Batch(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if len(got) != 1 || got[0] != appleLei {
		t.Errorf("expected codes forwarded, got %v", got)
	}
}

func TestLeiBatch_Rejected(t *testing.T) {
	h := NewLeiHandler(&MockLeiLookup{
		GetByLeiCodesFunc: func([]string) ([]*domain.Lei, error) {
			t.Error("service must not be called for an invalid batch")
			return nil, nil
		},
	}, logger.NewNop())

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"missing codes", `{}`, "Codes is required"},
		{"empty codes", `{"codes":[]}`, "Codes failed min validation"},
		{"bad element", `{"codes":["` + appleLei + `","HWUPKR0MPOU8FGXBT395"]}`, "Codes[1] is not a valid LEI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c, rec := setupTestContext(http.MethodPost, "/api/v1/lei/batch", tt.body)
			if err := h.Batch(c); err != nil {
				t.Fatalf("expected JSON error response, got: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.detail) {
				t.Errorf("expected %q in %s", tt.detail, rec.Body.String())
			}
		})
	}
}

func TestLeiByCusipAndSedol(t *testing.T) {
	record := &domain.Lei{Code: appleLei, LegalName: "Apple Inc."}
	h := NewLeiHandler(&MockLeiLookup{
		GetByCusipFunc: func(cusip string) ([]*domain.Lei, error) {
			if cusip != appleCusip {
				t.Errorf("unexpected cusip %q", cusip)
			}
			return []*domain.Lei{record}, nil
		},
		GetBySedolFunc: func(string) ([]*domain.Lei, error) {
			return nil, fmt.Errorf("%w: sedol", service.ErrInvalidIdentifier)
		},
	}, logger.NewNop())

	_, c, rec := setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("cusip")
	c.SetParamValues(appleCusip)
	if err := h.GetByCusip(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	var resp ListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 1 || resp.Records[0].Code != appleLei {
		t.Errorf("unexpected response %+v", resp)
	}

	_, c, _ = setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("sedol")
	c.SetParamValues("0263495")
	expectHTTPError(t, h.GetBySedol(c), http.StatusBadRequest)
}

func TestLeiSearch_CountryFilter(t *testing.T) {
	h := NewLeiHandler(&MockLeiLookup{
		SearchByLegalNameFunc: func(string) ([]*domain.Lei, error) {
			return []*domain.Lei{
				{Code: appleLei, LegalAddress: &domain.Address{Country: "US"}},
				{Code: "549300XQZ4XYC3SXJE07", LegalAddress: &domain.Address{Country: "GB"}},
				{Code: "5493001KJTIIGC8Y1R12"},
			}, nil
		},
	}, logger.NewNop())

	_, c, rec := setupTestContext(http.MethodGet, "/api/v1/lei/search?name=Apple&country=US", "")
	if err := h.Search(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	var resp ListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != 1 || resp.Records[0].Code != appleLei {
		t.Errorf("expected only the US entity, got %+v", resp)
	}

	_, c, rec = setupTestContext(http.MethodGet, "/api/v1/lei/search?name=Apple&country=XX", "")
	if err := h.Search(c); err != nil {
		t.Fatalf("expected JSON error response, got: %v", err)
	}
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Country is not an ISO 3166 country code") {
		t.Errorf("expected country rejection, got %d %s", rec.Code, rec.Body.String())
	}

	_, c, rec = setupTestContext(http.MethodGet, "/api/v1/lei/search", "")
	if err := h.Search(c); err != nil {
		t.Fatalf("expected JSON error response, got: %v", err)
	}
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Name is required") {
		t.Errorf("expected name rejection, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestIdentifierCountries(t *testing.T) {
	h := NewIdentifierHandler(validator.New(), nil)

	_, c, rec := setupTestContext(http.MethodGet, "/api/v1/identifiers/countries", "")
	if err := h.Countries(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	var resp CountriesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != len(resp.Countries) || resp.Count == 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	found := false
	for _, cc := range resp.Countries {
		if cc == "GB" {
			found = true
		}
	}
	if !found {
		t.Error("expected GB in country list")
	}
}

func TestIsinConversion(t *testing.T) {
	mock := &MockIsinLookup{
		GetIsinByCusipFunc: func(cusip string) (*domain.IsinConversion, error) {
			return &domain.IsinConversion{
				SourceKind:    domain.SourceKindCusip,
				SourceCode:    cusip,
				CountryPrefix: "US",
				Isin:          appleIsin,
				ResolvedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			}, nil
		},
		GetIsinBySedolFunc: func(string) (*domain.IsinConversion, error) {
			return nil, fmt.Errorf("%w: isindb", service.ErrUpstreamUnavailable)
		},
	}
	h := NewIsinHandler(mock, logger.NewNop())

	_, c, rec := setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("cusip")
	c.SetParamValues(appleCusip)
	if err := h.ByCusip(c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	var conv domain.IsinConversion
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if conv.Isin != appleIsin || conv.SourceCode != appleCusip || conv.CountryPrefix != "US" {
		t.Errorf("unexpected conversion %+v", conv)
	}

	_, c, _ = setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("sedol")
	c.SetParamValues("0263494")
	expectHTTPError(t, h.BySedol(c), http.StatusServiceUnavailable)
}

func TestIsinConversion_NotFound(t *testing.T) {
	h := NewIsinHandler(&MockIsinLookup{}, logger.NewNop())

	_, c, _ := setupTestContext(http.MethodGet, "/", "")
	c.SetParamNames("sedol")
	c.SetParamValues("0263494")
	expectHTTPError(t, h.BySedol(c), http.StatusNotFound)
}
