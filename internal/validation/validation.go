package validation

import (
	"errors"
	"strings"
	"unicode"
)

// DefaultMaxCityLength bounds a single city query in runes.
const DefaultMaxCityLength = 100

var (
	// ErrCityEmpty is returned when the query is empty or whitespace-only after trim.
	ErrCityEmpty = errors.New("city is required")
	// ErrCityTooLong is returned when the query exceeds the maximum rune count.
	ErrCityTooLong = errors.New("city name too long")
	// ErrCityInvalidChars is returned when the query contains control or other non-printable characters.
	ErrCityInvalidChars = errors.New("city name contains invalid characters")
)

// ValidateCity trims the input and checks it is non-empty, at most maxLen runes
// (0 disables the bound) and printable. Punctuation such as the parentheses in
// "Frankfurt (Oder)" is allowed; the query is URL-encoded before it is sent.
// The trimmed query is returned unchanged otherwise.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	return unicode.IsPrint(r)
}
