package identifier

// IsValidBic reports whether code is a structurally valid BIC (ISO 9362):
// four letter bank code, country code, two character location code and an
// optional three character branch code. BICs carry no check digit.
func IsValidBic(code string) bool {
	if len(code) != 8 && len(code) != 11 {
		return false
	}
	if !allUpper(code[0:4]) {
		return false
	}
	if !IsCountryCode(code[4:6]) {
		return false
	}
	if !allUpperAlnum(code[6:8]) {
		return false
	}
	if len(code) == 11 && !allUpperAlnum(code[8:11]) {
		return false
	}
	return true
}
