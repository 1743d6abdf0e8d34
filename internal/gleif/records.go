package gleif

import (
	"go.uber.org/zap"

	"github.com/banking/refdata-service/internal/domain"
	"github.com/banking/refdata-service/internal/pkg/logger"
)

const recordType = "lei-records"

// JSON:API envelope of /lei-records
type recordsResponse struct {
	Meta struct {
		Pagination pagination `json:"pagination"`
	} `json:"meta"`
	Data []record `json:"data"`
}

type pagination struct {
	CurrentPage int `json:"currentPage"`
	PerPage     int `json:"perPage"`
	Total       int `json:"total"`
	LastPage    int `json:"lastPage"`
}

type record struct {
	Type       string     `json:"type"`
	ID         string     `json:"id"`
	Attributes attributes `json:"attributes"`
}

type attributes struct {
	Lei          string       `json:"lei"`
	Entity       entity       `json:"entity"`
	Registration registration `json:"registration"`
}

type idRef struct {
	ID string `json:"id"`
}

type entity struct {
	LegalName struct {
		Name string `json:"name"`
	} `json:"legalName"`
	LegalAddress        *address `json:"legalAddress"`
	HeadquartersAddress *address `json:"headquartersAddress"`
	RegisteredAt        *idRef   `json:"registeredAt"`
	RegisteredAs        string   `json:"registeredAs"`
	Jurisdiction        string   `json:"jurisdiction"`
	Category            string   `json:"category"`
	LegalForm           *idRef   `json:"legalForm"`
	Status              string   `json:"status"`
}

type address struct {
	AddressLines []string `json:"addressLines"`
	City         string   `json:"city"`
	Region       string   `json:"region"`
	Country      string   `json:"country"`
	PostalCode   string   `json:"postalCode"`
}

type registration struct {
	InitialRegistrationDate string `json:"initialRegistrationDate"`
	LastUpdateDate          string `json:"lastUpdateDate"`
	Status                  string `json:"status"`
	NextRenewalDate         string `json:"nextRenewalDate"`
	ManagingLou             string `json:"managingLou"`
	CorroborationLevel      string `json:"corroborationLevel"`
	ValidatedAt             *idRef `json:"validatedAt"`
	ValidatedAs             string `json:"validatedAs"`
}

// toDomain maps the records of a response, skipping anything that is not an
// LEI record or lacks an LEI code
func (r *recordsResponse) toDomain(log *logger.Logger) []*domain.Lei {
	out := make([]*domain.Lei, 0, len(r.Data))
	for i := range r.Data {
		rec := &r.Data[i]
		if rec.Type != recordType || rec.Attributes.Lei == "" {
			continue
		}
		out = append(out, rec.Attributes.toDomain(log))
	}
	return out
}

func (a *attributes) toDomain(log *logger.Logger) *domain.Lei {
	lei := &domain.Lei{
		Code:                a.Lei,
		LegalName:           a.Entity.LegalName.Name,
		LegalJurisdiction:   a.Entity.Jurisdiction,
		LegalAddress:        a.Entity.LegalAddress.toDomain(),
		HeadquartersAddress: a.Entity.HeadquartersAddress.toDomain(),
	}

	if a.Entity.LegalForm != nil {
		lei.LegalForm = a.Entity.LegalForm.ID
	}

	if a.Entity.RegisteredAt != nil || a.Entity.RegisteredAs != "" {
		lei.RegistrationAuthority = &domain.RegistrationAuthority{EntityID: a.Entity.RegisteredAs}
		if a.Entity.RegisteredAt != nil {
			lei.RegistrationAuthority.AuthorityID = a.Entity.RegisteredAt.ID
		}
	}

	if a.Entity.Status != "" {
		if s, ok := domain.ParseEntityStatus(a.Entity.Status); ok {
			lei.EntityStatus = s
		} else {
			unknownValue(log, a.Lei, "entity.status", a.Entity.Status)
		}
	}
	if a.Entity.Category != "" {
		if c, ok := domain.ParseEntityCategory(a.Entity.Category); ok {
			lei.EntityCategory = c
		} else {
			unknownValue(log, a.Lei, "entity.category", a.Entity.Category)
		}
	}

	lei.Registration = a.Registration.toDomain(log, a.Lei)
	return lei
}

func (r *registration) toDomain(log *logger.Logger, code string) *domain.Registration {
	reg := &domain.Registration{
		InitialRegistrationDate: r.InitialRegistrationDate,
		LastUpdateDate:          r.LastUpdateDate,
		NextRenewalDate:         r.NextRenewalDate,
		ManagingLou:             r.ManagingLou,
	}

	if r.Status != "" {
		if s, ok := domain.ParseRegistrationStatus(r.Status); ok {
			reg.Status = s
		} else {
			unknownValue(log, code, "registration.status", r.Status)
		}
	}
	if r.CorroborationLevel != "" {
		if v, ok := domain.ParseValidationSource(r.CorroborationLevel); ok {
			reg.ValidationSource = v
		} else {
			unknownValue(log, code, "registration.corroborationLevel", r.CorroborationLevel)
		}
	}

	if r.ValidatedAt != nil || r.ValidatedAs != "" {
		reg.ValidationAuthority = &domain.RegistrationAuthority{EntityID: r.ValidatedAs}
		if r.ValidatedAt != nil {
			reg.ValidationAuthority.AuthorityID = r.ValidatedAt.ID
		}
	}

	return reg
}

func (a *address) toDomain() *domain.Address {
	if a == nil {
		return nil
	}
	out := &domain.Address{
		City:       a.City,
		Region:     a.Region,
		Country:    a.Country,
		PostalCode: a.PostalCode,
	}
	if len(a.AddressLines) > 0 {
		out.FirstAddressLine = a.AddressLines[0]
		if len(a.AddressLines) > 1 {
			out.AdditionalAddressLines = append([]string(nil), a.AddressLines[1:]...)
		}
	}
	return out
}

func unknownValue(log *logger.Logger, code, field, value string) {
	log.Warn("unknown enum value in LEI record",
		logger.Identifier(code),
		zap.String("field", field),
		zap.String("value", value),
	)
}
