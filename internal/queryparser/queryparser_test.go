package queryparser

import (
	"testing"

	"github.com/impactrank/impactrank/internal/primitive"
)

func TestSplitQueryID(t *testing.T) {
	cases := []struct {
		line   string
		id     string
		search string
	}{
		{"Q1 one two", "Q1", "one two"},
		{"Q1:one two", "Q1", "one two"},
		{"Q1\tone", "Q1", "one"},
		{"onlyid", "onlyid", ""},
	}
	for _, c := range cases {
		id, search := SplitQueryID(c.line)
		if id != c.id || search != c.search {
			t.Errorf("SplitQueryID(%q) = (%q, %q), want (%q, %q)", c.line, id, search, c.id, c.search)
		}
	}
}

func TestTokenizeQueryDedup(t *testing.T) {
	pq := Tokenize("one one two", ModeQuery)
	want := map[string]uint32{"one": 2, "two": 1}
	if len(pq.Terms) != len(want) {
		t.Fatalf("got %d terms, want %d: %+v", len(pq.Terms), len(want), pq.Terms)
	}
	for _, term := range pq.Terms {
		if want[term.Text] != term.QueryFrequency {
			t.Errorf("term %q frequency = %d, want %d", term.Text, term.QueryFrequency, want[term.Text])
		}
	}
}

func TestTokenizeQuerySortOrder(t *testing.T) {
	pq := Tokenize("ten one a", ModeQuery)
	var order []string
	for _, term := range pq.Terms {
		order = append(order, term.Text)
	}
	// shorter strings first, then lexicographic.
	want := []string{"a", "one", "ten"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestTokenizeQueryCaseFold(t *testing.T) {
	pq := Tokenize("ONE One", ModeQuery)
	if len(pq.Terms) != 1 || pq.Terms[0].Text != "one" || pq.Terms[0].QueryFrequency != 2 {
		t.Fatalf("got %+v", pq.Terms)
	}
}

func TestTokenizeQueryAlphaNumericSplit(t *testing.T) {
	pq := Tokenize("abc123", ModeQuery)
	if len(pq.Terms) != 2 {
		t.Fatalf("got %+v, want two tokens", pq.Terms)
	}
}

func TestTokenizeQueryFractionExpansion(t *testing.T) {
	pq := Tokenize("½", ModeQuery) // "½"
	if len(pq.Terms) != 1 {
		t.Fatalf("got %+v", pq.Terms)
	}
	if pq.Terms[0].Text != "1⁄2" {
		t.Errorf("got %q, want %q", pq.Terms[0].Text, "1⁄2")
	}
}

func TestTokenizeRaw(t *testing.T) {
	pq := Tokenize("ONE  Two\tthree", ModeRaw)
	var order []string
	for _, term := range pq.Terms {
		order = append(order, term.Text)
	}
	for _, tok := range order {
		if tok == "one" || tok == "two" {
			t.Errorf("raw mode must not normalise case, got %q", tok)
		}
	}
}

func TestTokenizeOverflowTruncates(t *testing.T) {
	text := ""
	for i := 0; i < 5000; i++ {
		text += "x "
	}
	pq := Tokenize(text, ModeRaw)
	if len(pq.Terms) != 1 {
		t.Fatalf("expected a single deduplicated term, got %d", len(pq.Terms))
	}
	if pq.Terms[0].QueryFrequency != primitive.MaxParsedQueryTerms {
		t.Errorf("query frequency = %d, want %d (5000 tokens truncated)", pq.Terms[0].QueryFrequency, primitive.MaxParsedQueryTerms)
	}
}
