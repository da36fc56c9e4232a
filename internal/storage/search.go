package storage

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Benny93/minet-go/internal/graph"
	"github.com/Benny93/minet-go/internal/mine"
)

// SearchResult is a compound node matching a name query.
type SearchResult struct {
	NodeID  int      `json:"node_id"`
	MineID  string   `json:"mid"`
	Names   []string `json:"names,omitempty"`
	Formula string   `json:"formula,omitempty"`
	Score   float64  `json:"score"`
}

var (
	separators  = regexp.MustCompile(`[\s,;:()\[\]{}'"+/_.\-]+`)
	digitLetter = regexp.MustCompile(`(\d)([a-zA-Z])`)
	letterDigit = regexp.MustCompile(`([a-zA-Z])(\d)`)
)

// tokenize splits text into lowercase search tokens. Compound names such as
// "alpha-D-Glucose 6-phosphate" yield the whole name, every part between
// separators and the parts split on digit boundaries.
func tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	tokens := make(map[string]bool)
	if whole := strings.ToLower(text); !strings.ContainsAny(whole, ":") {
		tokens[whole] = true
	}
	for _, part := range separators.Split(text, -1) {
		if part == "" {
			continue
		}
		tokens[strings.ToLower(part)] = true
		split := letterDigit.ReplaceAllString(digitLetter.ReplaceAllString(part, "$1 $2"), "$1 $2")
		for _, sub := range strings.Fields(split) {
			tokens[strings.ToLower(sub)] = true
		}
	}

	out := make([]string, 0, len(tokens))
	for tok := range tokens {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// compoundTokens returns the token frequencies of a compound: its id, KEGG
// links, names and formula.
func compoundTokens(mid string, c *mine.Compound) map[string]int {
	freq := make(map[string]int)
	add := func(text string) {
		for _, tok := range tokenize(text) {
			freq[tok]++
		}
	}
	add(mid)
	if c == nil {
		return freq
	}
	for _, id := range c.KEGGIDs() {
		if id != mid {
			add(id)
		}
	}
	for _, name := range c.Names {
		add(name)
	}
	if c.HasFormula() {
		add(*c.Formula)
	}
	return freq
}

// newSearchResult fills a result from a compound node and its record.
func newSearchResult(node *graph.Node, c *mine.Compound, score float64) SearchResult {
	res := SearchResult{NodeID: node.ID, MineID: node.MineID, Score: score}
	if c != nil {
		res.Names = c.Names
		if c.HasFormula() {
			res.Formula = *c.Formula
		}
	}
	return res
}

// rankResults orders results by descending score, then by node id, and
// truncates them to limit when limit is positive.
func rankResults(results []SearchResult, limit int) []SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].NodeID < results[j].NodeID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
