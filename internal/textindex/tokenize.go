// Package textindex implements the L2 BM25 inverted text index: a
// per-collection postings list over a designated payload text field,
// tokenized with Unicode-aware scanning and normalization the way the
// VantageDataChat stack reaches for golang.org/x/text rather than hand
// rolled ASCII splitting.
package textindex

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// stopwords is a small, fixed English stopword list; good enough for the
// scoring contract (BM25 is fairly robust to an imperfect stopword set) and
// avoids carrying a large external word list the retrieved corpus never
// reaches for.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true,
}

// Tokenize normalizes text (NFKC) and splits it into lowercase word tokens,
// dropping stopwords and punctuation runs.
func Tokenize(text string) []string {
	normalized := norm.NFKC.String(text)
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := strings.ToLower(cur.String())
		cur.Reset()
		if stopwords[tok] {
			return
		}
		tokens = append(tokens, tok)
	}
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
