package uncertainty

import (
	"strings"
	"unicode"
)

// Features is the lexical profile of an output that the default
// estimators work from.
type Features struct {
	Words          int
	Tokens         []string
	Sentences      [][]string // content words per sentence
	Hedges         int
	Alternatives   int
	Subjective     int
	Contradictions int
	Absolutes      int
	Questions      int
}

// SentenceCount returns the number of sentences, at least 1 for non-empty text.
func (f Features) SentenceCount() int {
	if len(f.Sentences) == 0 && f.Words > 0 {
		return 1
	}
	return len(f.Sentences)
}

var hedgePhrases = []string{
	"not sure", "unsure", "maybe", "perhaps", "might", "possibly", "probably",
	"unclear", "i think", "i guess", "i believe", "uncertain", "not certain",
	"seems", "could be", "it depends", "kind of", "sort of", "likely",
}

var alternativeWords = wordSet(
	"which", "either", "or", "alternatively", "alternative", "alternatives",
	"option", "options", "versus", "vs", "whether", "depends",
)

var subjectiveWords = wordSet(
	"better", "best", "worse", "worst", "prefer", "preferred", "preference",
	"feel", "nice", "good", "bad", "beautiful", "ugly", "opinion", "favorite",
	"favourite",
)

var contradictionPhrases = []string{
	"however", "but", "although", "though", "whereas", "contradicts",
	"contradictory", "conflicting", "inconsistent", "on the other hand",
	"nevertheless",
}

var absolutePhrases = []string{
	"always", "never", "definitely", "certainly", "guaranteed", "absolutely",
	"undoubtedly",
}

var stopWords = wordSet(
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can",
	"had", "her", "was", "one", "our", "out", "has", "his", "how", "its",
	"may", "who", "did", "get", "let", "she", "too", "use", "that", "this",
	"with", "have", "from", "they", "will", "would", "there", "their",
	"what", "about", "which", "when", "make", "like", "than", "then",
	"them", "these", "some", "into", "just", "your", "also", "been",
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Tokenize lowercases text and splits it into word tokens, keeping
// apostrophes inside words.
func Tokenize(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "’", "'")
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
}

// SplitSentences splits text on terminal punctuation and newlines.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" && len(Tokenize(s)) > 0 {
			out = append(out, s)
		}
		b.Reset()
	}
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		switch r {
		case '.', '!', '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		case '\n':
			flush()
		}
	}
	flush()
	return out
}

// countPhrases counts whole-word occurrences of each phrase in the joined
// token stream.
func countPhrases(joined string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		n += strings.Count(joined, " "+p+" ")
	}
	return n
}

func countWords(tokens []string, set map[string]bool) int {
	n := 0
	for _, t := range tokens {
		if set[t] {
			n++
		}
	}
	return n
}

// ContentWords returns the tokens of text that carry meaning: no stop
// words, no tokens shorter than three runes.
func ContentWords(text string) []string {
	var out []string
	for _, t := range Tokenize(text) {
		if len([]rune(t)) < 3 || stopWords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Analyze runs the lexical battery over text.
func Analyze(text string) Features {
	tokens := Tokenize(text)
	joined := " " + strings.Join(tokens, " ") + " "

	f := Features{
		Words:          len(tokens),
		Tokens:         tokens,
		Hedges:         countPhrases(joined, hedgePhrases),
		Alternatives:   countWords(tokens, alternativeWords),
		Subjective:     countWords(tokens, subjectiveWords),
		Contradictions: countPhrases(joined, contradictionPhrases),
		Absolutes:      countPhrases(joined, absolutePhrases),
		Questions:      strings.Count(text, "?"),
	}
	for _, s := range SplitSentences(text) {
		f.Sentences = append(f.Sentences, ContentWords(s))
	}
	return f
}
