// Package prompt normalizes music descriptions before they reach the model.
package prompt

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex patterns for description cleanup.
const (
	urlRegexPattern        = `https?://\S+`
	whitespaceRegexPattern = `\s+`
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Preprocessor cleans user-entered descriptions.
type Preprocessor struct {
	urlPattern        *regexp.Regexp
	whitespacePattern *regexp.Regexp
	quoteReplacer     *strings.Replacer
	maxRunes          int
}

// NewPreprocessor creates a preprocessor that truncates output to maxRunes
// (no limit when maxRunes <= 0).
func NewPreprocessor(maxRunes int) *Preprocessor {
	return &Preprocessor{
		urlPattern:        regexp.MustCompile(urlRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		quoteReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
		maxRunes: maxRunes,
	}
}

// Normalize returns the description as it is sent to the model. An input made only
// of whitespace or control characters normalizes to the empty string.
func (p *Preprocessor) Normalize(description string) string {
	if description == "" {
		return description
	}

	text := p.removeControl(description)
	text = p.urlPattern.ReplaceAllString(text, " ")
	text = p.quoteReplacer.Replace(text)
	text = p.removeExcessivePunctuation(text)
	text = p.normalizeWhitespace(text)

	return p.truncate(text)
}

// removeControl drops non-printable characters but keeps whitespace for collapsing.
func (p *Preprocessor) removeControl(text string) string {
	return strings.Map(func(char rune) rune {
		if char == utf8.RuneError || (unicode.IsControl(char) && !unicode.IsSpace(char)) {
			return -1
		}

		return char
	}, text)
}

// removeExcessivePunctuation collapses runs of the same punctuation mark, so
// "!!!" becomes "!" while "..." stays intact as a three-rune ellipsis.
func (p *Preprocessor) removeExcessivePunctuation(text string) string {
	var (
		builder strings.Builder
		last    rune
		run     int
	)

	for _, char := range text {
		if unicode.IsPunct(char) && char == last {
			run++
		} else {
			run = 1
		}

		last = char

		if run > 1 && char != '.' {
			continue
		}

		if run > 3 {
			continue
		}

		builder.WriteRune(char)
	}

	return builder.String()
}

func (p *Preprocessor) normalizeWhitespace(text string) string {
	return strings.TrimSpace(p.whitespacePattern.ReplaceAllString(text, " "))
}

func (p *Preprocessor) truncate(text string) string {
	if p.maxRunes <= 0 || utf8.RuneCountInString(text) <= p.maxRunes {
		return text
	}

	runes := []rune(text)[:p.maxRunes]

	return strings.TrimSpace(string(runes))
}
