package join

import "strings"

// CompareBytes orders fields by raw byte content, so "10" < "9".
func CompareBytes(a, b string) int { return strings.Compare(a, b) }

// CompareNumeric orders fields by their leading numeric prefix, the way
// `sort -n` does: leading blanks are skipped, an optional minus sign and a
// decimal number are read, and anything without digits counts as 0.
//
// The digits are compared as text, so integers of any length stay exact.
func CompareNumeric(a, b string) int {
	x, y := parseNumber(a), parseNumber(b)
	if x.sign != y.sign {
		if x.sign < y.sign {
			return -1
		}
		return 1
	}
	c := compareMagnitude(x, y)
	if x.sign < 0 {
		return -c
	}
	return c
}

// number is a decimal prefix with the integer part stripped of leading
// zeros and the fraction stripped of trailing zeros. sign is 0 for zero.
type number struct {
	sign  int
	ipart string
	frac  string
}

func parseNumber(s string) number {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	neg := false
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	ipart := s[start:i]
	var frac string
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		frac = s[i+1 : j]
	}

	n := number{
		ipart: strings.TrimLeft(ipart, "0"),
		frac:  strings.TrimRight(frac, "0"),
	}
	switch {
	case n.ipart == "" && n.frac == "":
		n.sign = 0
	case neg:
		n.sign = -1
	default:
		n.sign = 1
	}
	return n
}

func compareMagnitude(x, y number) int {
	if len(x.ipart) != len(y.ipart) {
		if len(x.ipart) < len(y.ipart) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(x.ipart, y.ipart); c != 0 {
		return c
	}
	return strings.Compare(x.frac, y.frac)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
