package retrieval

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// #region stopwords
// stopwords contains common Portuguese words excluded from matching. Entries
// are stored accent folded, the same form tokens take after normalize.
var stopwords = foldSet(
	"a", "o", "e", "de", "da", "do", "em", "um", "uma", "para", "com",
	"não", "que", "se", "na", "no", "os", "as", "por", "mais", "foi",
	"como", "mas", "ao", "ele", "das", "tem", "à", "seu", "sua", "ou",
	"ser", "quando", "muito", "há", "nos", "já", "está", "eu", "também",
	"só", "pelo", "pela", "até", "isso", "ela", "entre", "era", "depois",
	"sem", "mesmo", "aos", "ter", "seus", "quem", "nas", "me", "esse",
	"eles", "estão", "você", "tinha", "foram", "essa", "num", "nem",
	"suas", "meu", "minha", "têm", "numa", "pelos", "elas", "havia",
	"seja", "qual", "será", "nós", "tenho", "lhe", "deles", "essas",
	"esses", "pelas", "este", "fosse", "dele", "tu", "te", "vocês",
)

func foldSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[fold(w)] = true
	}
	return set
}

// #endregion stopwords

// #region normalize
// fold strips combining marks so "cobrança" and "cobranca" are one term. A
// fresh transformer is built per call because transform chains keep state.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// normalize lowercases, folds accents and replaces everything that is not a
// letter or digit with a space.
func normalize(text string) string {
	folded := fold(strings.ToLower(text))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, folded)
}

// Normalize returns text lowercased, accent folded and stripped of
// punctuation, with single spaces between words.
func Normalize(text string) string {
	return strings.Join(strings.Fields(normalize(text)), " ")
}

// Tokenize returns the normalized non-stopword tokens of text, longer than
// two characters, in order and with repeats kept for term frequency.
func Tokenize(text string) []string {
	var tokens []string
	for _, w := range strings.Fields(normalize(text)) {
		if len(w) <= 2 || stopwords[w] {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// #endregion normalize
