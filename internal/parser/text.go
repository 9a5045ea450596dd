package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// CleanText collapses every whitespace run into a single space.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

var ratingRegex = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// ParseRating returns the first number in text, or 0 when there is none.
// German style decimal commas are accepted.
func ParseRating(text string) float64 {
	m := ratingRegex.FindString(text)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return v
}
