package domain

import (
	"time"
)

// EntityStatus is the operational status of a legal entity
type EntityStatus string

const (
	EntityStatusActive   EntityStatus = "ACTIVE"
	EntityStatusInactive EntityStatus = "INACTIVE"
)

// EntityCategory classifies a legal entity
type EntityCategory string

const (
	EntityCategoryBranch         EntityCategory = "BRANCH"
	EntityCategoryFund           EntityCategory = "FUND"
	EntityCategorySoleProprietor EntityCategory = "SOLE_PROPRIETOR"
	EntityCategoryGeneral        EntityCategory = "GENERAL"
)

// RegistrationStatus is the status of an LEI registration with its managing LOU
type RegistrationStatus string

const (
	RegistrationStatusPendingValidation RegistrationStatus = "PENDING_VALIDATION"
	RegistrationStatusIssued            RegistrationStatus = "ISSUED"
	RegistrationStatusDuplicate         RegistrationStatus = "DUPLICATE"
	RegistrationStatusLapsed            RegistrationStatus = "LAPSED"
	RegistrationStatusMerged            RegistrationStatus = "MERGED"
	RegistrationStatusRetired           RegistrationStatus = "RETIRED"
	RegistrationStatusAnnulled          RegistrationStatus = "ANNULLED"
	RegistrationStatusCancelled         RegistrationStatus = "CANCELLED"
	RegistrationStatusTransferred       RegistrationStatus = "TRANSFERRED"
	RegistrationStatusPendingTransfer   RegistrationStatus = "PENDING_TRANSFER"
	RegistrationStatusPendingArchival   RegistrationStatus = "PENDING_ARCHIVAL"
)

// ValidationSource is the level of corroboration of the reference data
type ValidationSource string

const (
	ValidationSourcePending               ValidationSource = "PENDING"
	ValidationSourceEntitySuppliedOnly    ValidationSource = "ENTITY_SUPPLIED_ONLY"
	ValidationSourcePartiallyCorroborated ValidationSource = "PARTIALLY_CORROBORATED"
	ValidationSourceFullyCorroborated     ValidationSource = "FULLY_CORROBORATED"
)

var (
	entityStatuses = map[string]EntityStatus{
		string(EntityStatusActive):   EntityStatusActive,
		string(EntityStatusInactive): EntityStatusInactive,
	}
	entityCategories = map[string]EntityCategory{
		string(EntityCategoryBranch):         EntityCategoryBranch,
		string(EntityCategoryFund):           EntityCategoryFund,
		string(EntityCategorySoleProprietor): EntityCategorySoleProprietor,
		string(EntityCategoryGeneral):        EntityCategoryGeneral,
	}
	registrationStatuses = map[string]RegistrationStatus{}
	validationSources    = map[string]ValidationSource{}
)

func init() {
	for _, s := range []RegistrationStatus{
		RegistrationStatusPendingValidation, RegistrationStatusIssued, RegistrationStatusDuplicate,
		RegistrationStatusLapsed, RegistrationStatusMerged, RegistrationStatusRetired,
		RegistrationStatusAnnulled, RegistrationStatusCancelled, RegistrationStatusTransferred,
		RegistrationStatusPendingTransfer, RegistrationStatusPendingArchival,
	} {
		registrationStatuses[string(s)] = s
	}
	for _, s := range []ValidationSource{
		ValidationSourcePending, ValidationSourceEntitySuppliedOnly,
		ValidationSourcePartiallyCorroborated, ValidationSourceFullyCorroborated,
	} {
		validationSources[string(s)] = s
	}
}

// ParseEntityStatus maps a GLEIF value onto EntityStatus
func ParseEntityStatus(s string) (EntityStatus, bool) {
	v, ok := entityStatuses[s]
	return v, ok
}

// ParseEntityCategory maps a GLEIF value onto EntityCategory
func ParseEntityCategory(s string) (EntityCategory, bool) {
	v, ok := entityCategories[s]
	return v, ok
}

// ParseRegistrationStatus maps a GLEIF value onto RegistrationStatus
func ParseRegistrationStatus(s string) (RegistrationStatus, bool) {
	v, ok := registrationStatuses[s]
	return v, ok
}

// ParseValidationSource maps a GLEIF corroboration level onto ValidationSource
func ParseValidationSource(s string) (ValidationSource, bool) {
	v, ok := validationSources[s]
	return v, ok
}

// Address is a postal address as published in the LEI record
type Address struct {
	FirstAddressLine       string   `json:"first_address_line,omitempty"`
	AdditionalAddressLines []string `json:"additional_address_lines,omitempty"`
	City                   string   `json:"city,omitempty"`
	Region                 string   `json:"region,omitempty"`
	Country                string   `json:"country,omitempty"`
	PostalCode             string   `json:"postal_code,omitempty"`
}

// RegistrationAuthority identifies the business register an entity is recorded in
type RegistrationAuthority struct {
	AuthorityID string `json:"authority_id,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
}

// Registration holds the LEI registration metadata.
// Dates are kept as published (RFC3339) and parsed on access.
type Registration struct {
	InitialRegistrationDate string                 `json:"initial_registration_date,omitempty"`
	LastUpdateDate          string                 `json:"last_update_date,omitempty"`
	Status                  RegistrationStatus     `json:"status,omitempty"`
	NextRenewalDate         string                 `json:"next_renewal_date,omitempty"`
	ManagingLou             string                 `json:"managing_lou,omitempty"`
	ValidationSource        ValidationSource       `json:"validation_source,omitempty"`
	ValidationAuthority     *RegistrationAuthority `json:"validation_authority,omitempty"`
}

// InitialRegistration returns the parsed initial registration date
func (r *Registration) InitialRegistration() (time.Time, bool) {
	return parseDate(r.InitialRegistrationDate)
}

// LastUpdate returns the parsed last update date
func (r *Registration) LastUpdate() (time.Time, bool) {
	return parseDate(r.LastUpdateDate)
}

// NextRenewal returns the parsed next renewal date
func (r *Registration) NextRenewal() (time.Time, bool) {
	return parseDate(r.NextRenewalDate)
}

// Lei is a Legal Entity Identifier record
type Lei struct {
	Code                  string                 `json:"lei"`
	LegalName             string                 `json:"legal_name"`
	EntityStatus          EntityStatus           `json:"entity_status,omitempty"`
	LegalForm             string                 `json:"legal_form,omitempty"`
	LegalJurisdiction     string                 `json:"legal_jurisdiction,omitempty"`
	EntityCategory        EntityCategory         `json:"entity_category,omitempty"`
	LegalAddress          *Address               `json:"legal_address,omitempty"`
	HeadquartersAddress   *Address               `json:"headquarters_address,omitempty"`
	RegistrationAuthority *RegistrationAuthority `json:"registration_authority,omitempty"`
	Registration          *Registration          `json:"registration,omitempty"`
}

// IsActive returns true if the entity is active and its registration is issued
func (l *Lei) IsActive() bool {
	if l.EntityStatus != EntityStatusActive {
		return false
	}
	return l.Registration == nil || l.Registration.Status == RegistrationStatusIssued
}

// IsLapsed returns true if the registration was not renewed in time
func (l *Lei) IsLapsed() bool {
	return l.Registration != nil && l.Registration.Status == RegistrationStatusLapsed
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
