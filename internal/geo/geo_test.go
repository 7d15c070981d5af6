package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContinentFor(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"NL", "Europe"},
		{"us", "North America"},
		{"JP", "Asia"},
		{"br", "South America"},
		{"ZA", "Africa"},
		{"NZ", "Oceania"},
		{"AQ", "Antarctica"},
		{"XX", "Unknown"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ContinentFor(tt.code))
		})
	}
}

func TestCountryName(t *testing.T) {
	assert.Equal(t, "Netherlands", CountryName("NL"))
	assert.Equal(t, "United States", CountryName("us"))
	assert.Equal(t, "Germany", CountryName("DE"))

	// Неизвестный код возвращается как есть.
	assert.Equal(t, "XX", CountryName("XX"))
}
