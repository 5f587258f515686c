package utils

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// leadingJunk may not open a display value. A full stop is only junk
	// when it stands alone (". Acme"); ".NET Legal" keeps it.
	leadingJunk = ",;:|/\\-_*\u00b7\u2022"
	// trailingJunk may not close one. Full stops stay ("Ltd.").
	trailingJunk = ",;:|/\\-_*\u00b7\u2022"
)

var typography = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u201b", "'",
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`,
	"\u2013", "-", "\u2014", "-", "\u2212", "-",
	"\u00a0", " ", "\u2009", " ", "\u202f", " ",
)

// StringHelper provides string utility functions.
type StringHelper struct{}

// NewStringHelper creates a new string helper.
func NewStringHelper() *StringHelper {
	return &StringHelper{}
}

// NormalizeWhitespace replaces multiple whitespace with single space.
func (s *StringHelper) NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// FoldTypography composes the string to NFC and maps curly quotes, long
// dashes and non-breaking spaces onto their ASCII forms.
func (s *StringHelper) FoldTypography(str string) string {
	return typography.Replace(norm.NFC.String(str))
}

// TrimPunctuation strips separator punctuation from both ends, repeating
// until the value is stable so that "- Smith & Co ;" becomes "Smith & Co".
func (s *StringHelper) TrimPunctuation(str string) string {
	for {
		next := strings.TrimSpace(str)
		next = strings.TrimLeft(next, leadingJunk)
		next = trimDetachedStop(next)
		next = strings.TrimRight(next, trailingJunk)
		next = strings.TrimSpace(next)

		if next == str {
			return next
		}

		str = next
	}
}

// CleanDisplay is the full display-value pipeline: typography folding,
// whitespace collapse and punctuation trimming. Case is kept.
func (s *StringHelper) CleanDisplay(str string) string {
	return s.TrimPunctuation(s.NormalizeWhitespace(s.FoldTypography(str)))
}

// trimDetachedStop drops a leading full stop that is not attached to a word.
func trimDetachedStop(str string) string {
	if str == "." || strings.HasPrefix(str, ". ") {
		return str[1:]
	}

	return str
}
