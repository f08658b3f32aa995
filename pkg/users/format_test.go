package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCPF(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"123", "123"},
		{"1234", "123.4"},
		{"1234567", "123.456.7"},
		{"123456789", "123.456.789"},
		{"1234567890", "123.456.789-0"},
		{"12345678901", "123.456.789-01"},
		{"123.456.789-01", "123.456.789-01"},
		{"123456789012345", "123.456.789-01"},
		{"abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCPF(tt.in))
		})
	}
}

func TestFormatCNPJ(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"12", "12"},
		{"123", "12.3"},
		{"123456", "12.345.6"},
		{"123456789", "12.345.678/9"},
		{"123456780001", "12.345.678/0001"},
		{"1234567800019", "12.345.678/0001-9"},
		{"12345678000195", "12.345.678/0001-95"},
		{"12.345.678/0001-95", "12.345.678/0001-95"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCNPJ(tt.in))
		})
	}
}

func TestDigits(t *testing.T) {
	assert.Equal(t, "12345678901", Digits("123.456.789-01"))
	assert.Equal(t, "", Digits("n/a"))
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"ana@fundo.com.br", "a.b+c@d.io"}
	invalid := []string{"", "ana", "ana@fundo", "ana @fundo.com", "@fundo.com", "ana@@fundo.com"}

	for _, e := range valid {
		assert.True(t, IsValidEmail(e), e)
	}
	for _, e := range invalid {
		assert.False(t, IsValidEmail(e), e)
	}
}
