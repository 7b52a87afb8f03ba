// Package queryparser tokenises query text into a deduplicated, sorted term
// list. Two modes are supported: a Unicode-aware mode that case-folds and
// splits alphabetic from numeric runs, and a raw whitespace tokeniser.
package queryparser

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/impactrank/impactrank/internal/primitive"
)

// Mode selects the tokeniser used by Tokenize.
type Mode int

const (
	// ModeQuery is the default mode: case-folding, alpha/numeric run
	// splitting.
	ModeQuery Mode = iota
	// ModeRaw tokenises on whitespace only, with no normalisation.
	ModeRaw
)

// Term is one deduplicated token with the number of times it occurred in
// the original query text.
type Term struct {
	Text           string
	QueryFrequency uint32
}

// ParsedQuery is the fixed-capacity, sorted, deduplicated output of
// Tokenize. Overflow past primitive.MaxParsedQueryTerms is silently
// truncated, matching the reference tokeniser's fixed-size scratch buffer.
type ParsedQuery struct {
	Terms []Term
}

var foldTransform = cases.Fold(cases.Compact)

// SplitQueryID finds the first run of space/tab/colon in line; the
// preceding bytes are the query id, the remainder (after the delimiter
// run) is the search text. If no delimiter is found the whole line is the
// id and the search text is empty.
func SplitQueryID(line string) (id string, searchText string) {
	idx := strings.IndexFunc(line, isQueryIDDelimiter)
	if idx < 0 {
		return line, ""
	}
	end := idx
	for end < len(line) && isQueryIDDelimiter(rune(line[end])) {
		end++
	}
	return line[:idx], line[end:]
}

func isQueryIDDelimiter(r rune) bool {
	return r == ' ' || r == '\t' || r == ':'
}

// Tokenize breaks text into a ParsedQuery: raw tokens are collected (up to
// primitive.MaxParsedQueryTerms, with silent truncation beyond that), then
// sorted by the shorter-then-lexicographic order and merged by incrementing
// QueryFrequency on duplicates.
func Tokenize(text string, mode Mode) ParsedQuery {
	var raw []string
	switch mode {
	case ModeRaw:
		raw = tokenizeRaw(text)
	default:
		raw = tokenizeQuery(text)
	}

	if len(raw) > primitive.MaxParsedQueryTerms {
		raw = raw[:primitive.MaxParsedQueryTerms]
	}

	sort.Slice(raw, func(i, j int) bool { return primitive.TermLess(raw[i], raw[j]) })

	terms := make([]Term, 0, len(raw))
	for _, tok := range raw {
		if n := len(terms); n > 0 && terms[n-1].Text == tok {
			terms[n-1].QueryFrequency++
			continue
		}
		terms = append(terms, Term{Text: tok, QueryFrequency: 1})
	}
	return ParsedQuery{Terms: terms}
}

// tokenizeRaw splits on maximal runs of whitespace, with no normalisation.
func tokenizeRaw(text string) []string {
	return strings.FieldsFunc(text, unicode.IsSpace)
}

// tokenizeQuery implements the Query-mode tokeniser: skip non-alphanumeric
// code points, accumulate consecutive alphabetic or consecutive numeric
// runs (never merging the two), and case-fold each run. Case-folding here
// covers the one-to-many expansion case (e.g. U+00BD "½" decomposes under
// NFKD to "1", U+2044 FRACTION SLASH, "2") by composing compatibility
// decomposition with full case folding.
func tokenizeQuery(text string) []string {
	var tokens []string
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch runeClass(r) {
		case classNone:
			i += size
			continue
		case classAlpha:
			start := i
			i += size
			for i < len(text) {
				r2, size2 := utf8.DecodeRuneInString(text[i:])
				if runeClass(r2) != classAlpha {
					break
				}
				i += size2
			}
			tokens = append(tokens, foldRun(text[start:i]))
		case classNumeric:
			start := i
			i += size
			for i < len(text) {
				r2, size2 := utf8.DecodeRuneInString(text[i:])
				if runeClass(r2) != classNumeric {
					break
				}
				i += size2
			}
			tokens = append(tokens, foldRun(text[start:i]))
		}
	}
	return tokens
}

type runeClassKind int

const (
	classNone runeClassKind = iota
	classAlpha
	classNumeric
)

func runeClass(r rune) runeClassKind {
	switch {
	case unicode.IsLetter(r):
		return classAlpha
	case unicode.IsDigit(r) || unicode.IsNumber(r):
		return classNumeric
	default:
		return classNone
	}
}

// foldRun applies compatibility decomposition (to expand one-to-many forms
// such as vulgar fractions) followed by full Unicode case folding.
func foldRun(run string) string {
	decomposed := norm.NFKD.String(run)
	return foldTransform.String(decomposed)
}
