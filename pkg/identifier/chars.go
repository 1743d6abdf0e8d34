package identifier

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

func isUpperAlnum(c byte) bool {
	return isUpper(c) || isDigit(c)
}

// allUpperAlnum reports whether every byte of s is A-Z or 0-9. Empty input is
// rejected.
func allUpperAlnum(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isUpperAlnum(s[i]) {
			return false
		}
	}
	return true
}

func allUpper(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isUpper(s[i]) {
			return false
		}
	}
	return true
}

// digitSum returns the sum of the decimal digits of a value below 100.
func digitSum(v int) int {
	return v/10 + v%10
}
