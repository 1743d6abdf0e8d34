// Package identifier validates financial instrument and entity identifiers:
// LEI, ISIN, BIC, CUSIP and SEDOL. All functions are pure and safe for
// concurrent use. Validators return false on malformed input and never panic;
// only the Compute* helpers panic, and only when given a base of the wrong
// length.
package identifier

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names an identifier scheme.
type Kind string

const (
	KindLei   Kind = "lei"
	KindIsin  Kind = "isin"
	KindBic   Kind = "bic"
	KindCusip Kind = "cusip"
	KindSedol Kind = "sedol"
)

// ErrUnknownKind is returned by ParseKind for unsupported scheme names.
var ErrUnknownKind = errors.New("unknown identifier kind")

// Kinds lists every supported scheme in detection order.
var Kinds = []Kind{KindLei, KindIsin, KindBic, KindCusip, KindSedol}

var validators = map[Kind]func(string) bool{
	KindLei:   IsValidLei,
	KindIsin:  IsValidIsin,
	KindBic:   IsValidBic,
	KindCusip: IsValidCusip,
	KindSedol: IsValidSedol,
}

// ParseKind maps a case-insensitive scheme name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validators[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

func (k Kind) String() string {
	return string(k)
}

// Validate runs the validator for kind. Unknown kinds are never valid.
func Validate(kind Kind, code string) bool {
	fn, ok := validators[kind]
	if !ok {
		return false
	}
	return fn(code)
}

// Detect returns every kind for which code is valid, in Kinds order. The
// result is nil when no scheme matches.
func Detect(code string) []Kind {
	var out []Kind
	for _, k := range Kinds {
		if validators[k](code) {
			out = append(out, k)
		}
	}
	return out
}
