package identifier

import "fmt"

// SedolLength is the length of a SEDOL including its check digit.
const SedolLength = 7

var sedolWeights = [SedolLength - 1]int{1, 3, 1, 7, 3, 9}

// IsValidSedol reports whether code is a well-formed SEDOL with a correct
// check digit. Vowels are never used in SEDOLs and are rejected.
func IsValidSedol(code string) bool {
	if len(code) != SedolLength {
		return false
	}
	if !isDigit(code[6]) {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !isDigit(c) && !isConsonant(c) {
			return false
		}
	}
	return int(code[6]-'0') == ComputeSedolCheckDigit(code[:6])
}

// ComputeSedolCheckDigit returns the check digit for the first six characters
// of a SEDOL using the weights 1,3,1,7,3,9 over base-36 character values. It
// panics if base is not 6 characters.
func ComputeSedolCheckDigit(base string) int {
	if len(base) != SedolLength-1 {
		panic(fmt.Sprintf("identifier: SEDOL base must be %d characters, got %d", SedolLength-1, len(base)))
	}

	sum := 0
	for i := 0; i < len(base); i++ {
		sum += sedolWeights[i] * base36(base[i])
	}
	return (10 - sum%10) % 10
}

func base36(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case isUpper(c):
		return int(c-'A') + 10
	}
	return 0
}

func isConsonant(c byte) bool {
	if !isUpper(c) {
		return false
	}
	switch c {
	case 'A', 'E', 'I', 'O', 'U':
		return false
	}
	return true
}
