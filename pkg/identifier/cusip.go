package identifier

import "fmt"

// CusipLength is the length of a CUSIP including its check digit.
const CusipLength = 9

// IsValidCusip reports whether code is a well-formed CUSIP with a correct
// check digit. The extended characters '*', '@' and '#' used in dummy and
// private placement CUSIPs are accepted before the check digit.
func IsValidCusip(code string) bool {
	if len(code) != CusipLength {
		return false
	}
	if !isDigit(code[8]) {
		return false
	}
	for i := 0; i < 8; i++ {
		if cusipValue(code[i]) < 0 {
			return false
		}
	}
	return int(code[8]-'0') == ComputeCusipCheckDigit(code[:8])
}

// ComputeCusipCheckDigit returns the check digit for the first eight
// characters of a CUSIP. Values in even positions (1-indexed) are doubled and
// the digit sums are added, Luhn style. It panics if base is not 8 characters.
func ComputeCusipCheckDigit(base string) int {
	if len(base) != CusipLength-1 {
		panic(fmt.Sprintf("identifier: CUSIP base must be %d characters, got %d", CusipLength-1, len(base)))
	}

	sum := 0
	for p := 1; p <= len(base); p++ {
		v := cusipValue(base[p-1])
		if v < 0 {
			v = 0
		}
		if p%2 == 0 {
			v *= 2
		}
		sum += digitSum(v)
	}
	return (10 - sum%10) % 10
}

// cusipValue maps a CUSIP character to its numeric value, or -1 if the
// character is not part of the CUSIP alphabet.
func cusipValue(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case isUpper(c):
		return int(c) - 64 + 9
	case c == '*':
		return 36
	case c == '@':
		return 37
	case c == '#':
		return 38
	}
	return -1
}
