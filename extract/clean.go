package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// CleanText normalises extracted text. It collapses whitespace, removes
// zero-width characters, and trims.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)

	text = collapseWhitespace(text)
	return strings.TrimSpace(text)
}

// NormaliseForHash prepares text for fingerprint comparison. More
// aggressive than CleanText: lowercases and removes punctuation, so
// whitespace-only and cosmetic changes do not register as page changes.
func NormaliseForHash(text string) string {
	text = CleanText(text)
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)
	return collapseWhitespace(text)
}

// Truncate cuts text to at most limit runes, trimming a trailing
// partial word when possible.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return multiSpaceRe.ReplaceAllString(s, " ")
}
