package domain

import "time"

// SourceKind is the national identifier an ISIN was derived from
type SourceKind string

const (
	SourceKindCusip SourceKind = "cusip"
	SourceKindSedol SourceKind = "sedol"
)

// IsinConversion is the result of resolving a CUSIP or SEDOL to an ISIN
type IsinConversion struct {
	SourceKind    SourceKind `json:"source_kind" db:"source_kind"`
	SourceCode    string     `json:"source_code" db:"source_code"`
	CountryPrefix string     `json:"country_prefix" db:"country_prefix"`
	Isin          string     `json:"isin" db:"isin"`
	ResolvedAt    time.Time  `json:"resolved_at" db:"resolved_at"`
}
