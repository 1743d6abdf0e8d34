package gleif

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/banking/refdata-service/internal/config"
	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/pkg/logger"
	"github.com/banking/refdata-service/internal/resilience"
)

const recordsURL = "https://api.gleif.org/api/v1/lei-records"

const appleRecord = `{
	"type": "lei-records",
	"id": "HWUPKR0MPOU8FGXBT394",
	"attributes": {
		"lei": "HWUPKR0MPOU8FGXBT394",
		"entity": {
			"legalName": {"name": "Apple Inc.", "language": "en"},
			"legalAddress": {
				"language": "en",
				"addressLines": ["C/O C T Corporation System", "330 North Brand Boulevard", "Suite 700"],
				"city": "Glendale",
				"region": "US-CA",
				"country": "US",
				"postalCode": "91203-2336"
			},
			"headquartersAddress": {
				"addressLines": ["One Apple Park Way"],
				"city": "Cupertino",
				"region": "US-CA",
				"country": "US",
				"postalCode": "95014"
			},
			"registeredAt": {"id": "RA000598", "other": null},
			"registeredAs": "C0806592",
			"jurisdiction": "US-CA",
			"category": "GENERAL",
			"legalForm": {"id": "H1UM", "other": null},
			"status": "ACTIVE"
		},
		"registration": {
			"initialRegistrationDate": "2012-06-06T15:53:00Z",
			"lastUpdateDate": "2023-05-18T17:24:00Z",
			"status": "ISSUED",
			"nextRenewalDate": "2024-05-24T00:00:00Z",
			"managingLou": "EVK05KS7XY1DEII3R011",
			"corroborationLevel": "FULLY_CORROBORATED",
			"validatedAt": {"id": "RA000598", "other": null},
			"validatedAs": "C0806592"
		}
	}
}`

func recordFor(code, name string) string {
	return fmt.Sprintf(`{"type":"lei-records","id":%q,"attributes":{"lei":%q,"entity":{"legalName":{"name":%q},"status":"ACTIVE"},"registration":{"status":"ISSUED"}}}`, code, code, name)
}

func page(records []string, current, last int) string {
	return fmt.Sprintf(`{"meta":{"pagination":{"currentPage":%d,"perPage":10,"total":%d,"lastPage":%d}},"data":[%s]}`,
		current, len(records), last, strings.Join(records, ","))
}

func newTestClient(t *testing.T, mutate func(cfg *config.GleifConfig)) (*Client, *resilience.CircuitBreaker, *observer.ObservedLogs) {
	t.Helper()
	cfg := config.GleifConfig{
		BaseURL:           "https://api.gleif.org/api/v1",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
		BatchSize:         200,
		PageSize:          10,
		MaxPages:          5,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	cb := resilience.NewCircuitBreaker(resilience.DefaultSettings("gleif"))
	c := New(cfg, cb, logger.FromZap(zap.New(core)))

	httpmock.ActivateNonDefault(c.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return c, cb, logs
}

func TestGetByLeiCodes_MapsRecord(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	httpmock.RegisterResponder(http.MethodGet, recordsURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "HWUPKR0MPOU8FGXBT394", req.URL.Query().Get("filter[lei]"))
		return httpmock.NewStringResponse(http.StatusOK, page([]string{appleRecord}, 1, 1)), nil
	})

	leis, err := c.GetByLeiCodes(context.Background(), "HWUPKR0MPOU8FGXBT394")
	require.NoError(t, err)
	require.Len(t, leis, 1)

	lei := leis[0]
	assert.Equal(t, "HWUPKR0MPOU8FGXBT394", lei.Code)
	assert.Equal(t, "Apple Inc.", lei.LegalName)
	assert.Equal(t, domain.EntityStatusActive, lei.EntityStatus)
	assert.Equal(t, domain.EntityCategoryGeneral, lei.EntityCategory)
	assert.Equal(t, "H1UM", lei.LegalForm)
	assert.Equal(t, "US-CA", lei.LegalJurisdiction)

	require.NotNil(t, lei.LegalAddress)
	assert.Equal(t, "C/O C T Corporation System", lei.LegalAddress.FirstAddressLine)
	assert.Equal(t, []string{"330 North Brand Boulevard", "Suite 700"}, lei.LegalAddress.AdditionalAddressLines)
	assert.Equal(t, "Glendale", lei.LegalAddress.City)
	assert.Equal(t, "91203-2336", lei.LegalAddress.PostalCode)

	require.NotNil(t, lei.HeadquartersAddress)
	assert.Equal(t, "One Apple Park Way", lei.HeadquartersAddress.FirstAddressLine)
	assert.Empty(t, lei.HeadquartersAddress.AdditionalAddressLines)

	require.NotNil(t, lei.RegistrationAuthority)
	assert.Equal(t, "RA000598", lei.RegistrationAuthority.AuthorityID)
	assert.Equal(t, "C0806592", lei.RegistrationAuthority.EntityID)

	require.NotNil(t, lei.Registration)
	assert.Equal(t, domain.RegistrationStatusIssued, lei.Registration.Status)
	assert.Equal(t, domain.ValidationSourceFullyCorroborated, lei.Registration.ValidationSource)
	assert.Equal(t, "EVK05KS7XY1DEII3R011", lei.Registration.ManagingLou)
	require.NotNil(t, lei.Registration.ValidationAuthority)
	assert.Equal(t, "RA000598", lei.Registration.ValidationAuthority.AuthorityID)

	initial, ok := lei.Registration.InitialRegistration()
	assert.True(t, ok)
	assert.Equal(t, 2012, initial.Year())
}

func TestGetByLeiCodes_DropsInvalidWithoutRequest(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	httpmock.RegisterResponder(http.MethodGet, recordsURL, httpmock.NewStringResponder(http.StatusOK, page(nil, 1, 1)))

	leis, err := c.GetByLeiCodes(context.Background(), "", "W22LROWP2IHZNBB6K52", "w22lrowp2ihznbb6k528")
	require.NoError(t, err)
	assert.Empty(t, leis)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestGetByLeiCodes_Batches(t *testing.T) {
	c, _, _ := newTestClient(t, func(cfg *config.GleifConfig) { cfg.BatchSize = 2 })

	var batches []string
	httpmock.RegisterResponder(http.MethodGet, recordsURL, func(req *http.Request) (*http.Response, error) {
		filter := req.URL.Query().Get("filter[lei]")
		batches = append(batches, filter)
		var recs []string
		for _, code := range strings.Split(filter, ",") {
			recs = append(recs, recordFor(code, "Entity "+code[:4]))
		}
		return httpmock.NewStringResponse(http.StatusOK, page(recs, 1, 1)), nil
	})

	leis, err := c.GetByLeiCodes(context.Background(),
		"W22LROWP2IHZNBB6K528",
		"254900G6F27CHW2A7F31",
		"W22LROWP2IHZNBB6K528", // duplicate
		"INVALID",
		"254900A1XHW5VXMTHH06",
	)
	require.NoError(t, err)
	assert.Len(t, leis, 3)
	assert.Equal(t, []string{
		"W22LROWP2IHZNBB6K528,254900G6F27CHW2A7F31",
		"254900A1XHW5VXMTHH06",
	}, batches)
}

func TestGetByLeiCodes_SkipsForeignTypesAndWarnsOnUnknownEnums(t *testing.T) {
	c, _, logs := newTestClient(t, nil)

	odd := `{"type":"lei-records","id":"W22LROWP2IHZNBB6K528","attributes":{"lei":"W22LROWP2IHZNBB6K528","entity":{"legalName":{"name":"Odd"},"status":"DORMANT","category":"TRUST"},"registration":{"status":"ISSUED"}}}`
	foreign := `{"type":"relationship-records","id":"x","attributes":{"lei":"254900G6F27CHW2A7F31"}}`
	noCode := `{"type":"lei-records","id":"y","attributes":{"lei":""}}`

	httpmock.RegisterResponder(http.MethodGet, recordsURL,
		httpmock.NewStringResponder(http.StatusOK, page([]string{odd, foreign, noCode}, 1, 1)))

	leis, err := c.GetByLeiCodes(context.Background(), "W22LROWP2IHZNBB6K528")
	require.NoError(t, err)
	require.Len(t, leis, 1)
	assert.Empty(t, leis[0].EntityStatus)
	assert.Empty(t, leis[0].EntityCategory)

	warnings := logs.FilterMessage("unknown enum value in LEI record").All()
	assert.Len(t, warnings, 2)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
}

func TestGetByIsinAndBic(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	httpmock.RegisterResponder(http.MethodGet, recordsURL, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		switch {
		case q.Get("filter[isin]") == "US0378331005":
			return httpmock.NewStringResponse(http.StatusOK, page([]string{appleRecord}, 1, 1)), nil
		case q.Get("filter[bic]") == "DEUTDEFF":
			return httpmock.NewStringResponse(http.StatusOK, page([]string{recordFor("7LTWFZYICNSX8D621K86", "Deutsche Bank")}, 1, 1)), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, page(nil, 1, 1)), nil
	})

	leis, err := c.GetByIsin(context.Background(), "US0378331005")
	require.NoError(t, err)
	require.Len(t, leis, 1)
	assert.Equal(t, "Apple Inc.", leis[0].LegalName)

	leis, err = c.GetByBic(context.Background(), "DEUTDEFF")
	require.NoError(t, err)
	require.Len(t, leis, 1)
	assert.Equal(t, "Deutsche Bank", leis[0].LegalName)

	calls := httpmock.GetTotalCallCount()
	leis, err = c.GetByIsin(context.Background(), "US0378331006")
	require.NoError(t, err)
	assert.Empty(t, leis)
	leis, err = c.GetByBic(context.Background(), "DEUTZZFF")
	require.NoError(t, err)
	assert.Empty(t, leis)
	assert.Equal(t, calls, httpmock.GetTotalCallCount(), "invalid input must not reach GLEIF")
}

func TestSearchByLegalName_Paginates(t *testing.T) {
	c, _, _ := newTestClient(t, nil)

	httpmock.RegisterResponder(http.MethodGet, recordsURL, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, "Apple", q.Get("filter[entity.legalName]"))
		switch q.Get("page[number]") {
		case "1":
			return httpmock.NewStringResponse(http.StatusOK, page([]string{
				recordFor("W22LROWP2IHZNBB6K528", "Apple A"),
				recordFor("254900G6F27CHW2A7F31", "Apple B"),
			}, 1, 2)), nil
		case "2":
			return httpmock.NewStringResponse(http.StatusOK, page([]string{
				recordFor("254900A1XHW5VXMTHH06", "Apple C"),
			}, 2, 2)), nil
		}
		return httpmock.NewStringResponse(http.StatusBadRequest, "unexpected page"), nil
	})

	leis, err := c.SearchByLegalName(context.Background(), " Apple ")
	require.NoError(t, err)
	assert.Len(t, leis, 3)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())

	leis, err = c.SearchByLegalName(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, leis)
}

func TestSearchByLegalName_StopsAtMaxPages(t *testing.T) {
	c, _, _ := newTestClient(t, func(cfg *config.GleifConfig) { cfg.MaxPages = 2 })

	httpmock.RegisterResponder(http.MethodGet, recordsURL,
		httpmock.NewStringResponder(http.StatusOK, page([]string{recordFor("W22LROWP2IHZNBB6K528", "Bank")}, 1, 50)))

	leis, err := c.SearchByLegalName(context.Background(), "Bank")
	require.NoError(t, err)
	assert.Len(t, leis, 2)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestFetch_ServerErrorTripsBreakerAccounting(t *testing.T) {
	c, cb, _ := newTestClient(t, nil)
	httpmock.RegisterResponder(http.MethodGet, recordsURL, httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	_, err := c.GetByLeiCodes(context.Background(), "W22LROWP2IHZNBB6K528")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, uint32(1), cb.Counts().TotalFailures)
}

func TestFetch_ClientErrorDoesNotCountAsFailure(t *testing.T) {
	c, cb, _ := newTestClient(t, nil)
	httpmock.RegisterResponder(http.MethodGet, recordsURL, httpmock.NewStringResponder(http.StatusBadRequest, `{"errors":[]}`))

	_, err := c.GetByIsin(context.Background(), "US0378331005")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, uint32(0), cb.Counts().TotalFailures)
}

func TestFetch_MalformedBody(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	httpmock.RegisterResponder(http.MethodGet, recordsURL, httpmock.NewStringResponder(http.StatusOK, `{"data": [`))

	_, err := c.GetByBic(context.Background(), "DEUTDEFF")
	assert.ErrorIs(t, err, ErrUnavailable)
}
