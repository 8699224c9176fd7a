package notify

import "strings"

// NormalizePhone strips separators and prepends the default country
// code when the number has no leading +.
func NormalizePhone(number, defaultCountryCode string) string {
	n := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(number))

	if strings.HasPrefix(n, "+") || defaultCountryCode == "" {
		return n
	}
	cc := defaultCountryCode
	if !strings.HasPrefix(cc, "+") {
		cc = "+" + cc
	}
	return cc + strings.TrimPrefix(n, "0")
}
