package users

import (
	"regexp"
	"strings"
)

const (
	cpfDigits  = 11
	cnpjDigits = 14
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Digits strips everything but ASCII digits
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatCPF renders a CPF as 000.000.000-00
func FormatCPF(s string) string {
	return group(Digits(s), cpfDigits, []int{3, 3, 3, 2}, []string{".", ".", "-"})
}

// FormatCNPJ renders a CNPJ as 00.000.000/0000-00
func FormatCNPJ(s string) string {
	return group(Digits(s), cnpjDigits, []int{2, 3, 3, 4, 2}, []string{".", ".", "/", "-"})
}

// group splits digits into sizes, joining non-empty chunks with seps
func group(digits string, max int, sizes []int, seps []string) string {
	if len(digits) > max {
		digits = digits[:max]
	}

	var b strings.Builder
	for i, size := range sizes {
		if digits == "" {
			break
		}
		n := size
		if n > len(digits) {
			n = len(digits)
		}
		if i > 0 {
			b.WriteString(seps[i-1])
		}
		b.WriteString(digits[:n])
		digits = digits[n:]
	}
	return b.String()
}

// IsValidEmail reports whether s looks like an email address
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}
