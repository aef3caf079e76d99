// ABOUTME: Text normalization and link detection for rule matching
// ABOUTME: Folds case and strips diacritics so banned-word checks survive accent evasion

package moderation

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer decomposes to NFD, drops combining marks, and
// recomposes. "Próxima" and "proxima" normalize to the same string.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases the text and strips diacritic marks. Both message
// text and banned words go through this before substring matching.
func Normalize(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// linkPattern matches explicit URLs. Bare domains are covered by the
// suffix list below so "join bit.ly/xyz" still counts.
var linkPattern = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)

// linkDomains are invite and shortener hosts that show up without a
// scheme in spam messages.
var linkDomains = []string{
	"chat.whatsapp.com",
	"wa.me",
	"t.me",
	"matrix.to",
	"discord.gg",
	"bit.ly",
	"tinyurl.com",
	"is.gd",
}

// ContainsLink reports whether the text contains a URL or a known
// invite/shortener domain.
func ContainsLink(s string) bool {
	if linkPattern.MatchString(s) {
		return true
	}
	lower := strings.ToLower(s)
	for _, domain := range linkDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}
