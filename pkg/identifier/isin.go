package identifier

import "fmt"

// IsinLength is the length of an ISIN including its check digit.
const IsinLength = 12

// IsValidIsin reports whether code is a well-formed ISIN (ISO 6166) with a
// known country prefix and a correct check digit.
func IsValidIsin(code string) bool {
	if len(code) != IsinLength {
		return false
	}
	if !isUpper(code[0]) || !isUpper(code[1]) {
		return false
	}
	if !isDigit(code[11]) {
		return false
	}
	if !allUpperAlnum(code[2:11]) {
		return false
	}
	if !IsCountryCode(code[0:2]) {
		return false
	}
	return int(code[11]-'0') == ComputeIsinCheckDigit(code[:11])
}

// ComputeIsinCheckDigit returns the check digit for the first eleven
// characters of an ISIN. Letters are expanded into two digits (A=10 ... Z=35)
// and the resulting digit stream is split into alternating partitions. The
// partition holding the last emitted digit is doubled, whatever the length of
// the stream. It panics if base is not 11 characters.
func ComputeIsinCheckDigit(base string) int {
	if len(base) != IsinLength-1 {
		panic(fmt.Sprintf("identifier: ISIN base must be %d characters, got %d", IsinLength-1, len(base)))
	}

	// at most two digits per character
	var odd, even [IsinLength - 1]int
	var nOdd, nEven, index int
	lastOdd := false

	emit := func(d int) {
		if index&1 == 1 {
			odd[nOdd] = d
			nOdd++
			lastOdd = true
		} else {
			even[nEven] = d
			nEven++
			lastOdd = false
		}
		index++
	}

	for i := 0; i < len(base); i++ {
		c := base[i]
		if isUpper(c) {
			v := int(c) - 55
			emit(v / 10)
			emit(v % 10)
		} else {
			emit(int(c - '0'))
		}
	}

	doubled, plain := even[:nEven], odd[:nOdd]
	if lastOdd {
		doubled, plain = odd[:nOdd], even[:nEven]
	}

	total := 0
	for _, d := range doubled {
		total += digitSum(d * 2)
	}
	for _, d := range plain {
		total += digitSum(d)
	}
	return (10 - total%10) % 10
}
