package identifier

import "fmt"

// LeiLength is the length of a Legal Entity Identifier (ISO 17442).
const LeiLength = 20

// IsValidLei reports whether code is a well-formed LEI with a correct
// ISO 7064 MOD 97-10 checksum.
func IsValidLei(code string) bool {
	if len(code) != LeiLength {
		return false
	}
	if !allUpperAlnum(code[:18]) {
		return false
	}
	if !isDigit(code[18]) || !isDigit(code[19]) {
		return false
	}
	return LeiChecksum(code) == 1
}

// LeiChecksum returns the MOD 97 remainder of code where each letter is
// expanded into its two digit value (A=10 ... Z=35). A valid LEI yields 1.
// The input must consist of uppercase letters and digits.
func LeiChecksum(code string) int {
	var m int64
	for i := 0; i < len(code); i++ {
		c := code[i]
		if isDigit(c) {
			m = (m*10 + int64(c-'0')) % 97
		} else {
			m = (m*100 + int64(c) - 55) % 97
		}
	}
	return int(m)
}

// ComputeLeiCheckDigits returns the two check digits for an 18 character LEI
// prefix. It panics if base is not 18 characters long.
func ComputeLeiCheckDigits(base string) string {
	if len(base) != LeiLength-2 {
		panic(fmt.Sprintf("identifier: LEI base must be %d characters, got %d", LeiLength-2, len(base)))
	}
	return fmt.Sprintf("%02d", 98-LeiChecksum(base+"00"))
}
