package mapper

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/joseph-ayodele/pantry-receipts/internal/entity"
)

// substitution costs two edits, which makes the distance an insert/delete distance
var indelParams = levenshtein.NewParams().SubCost(2)

// processName lowercases, replaces anything that is not a letter or digit
// with a space and sorts the tokens.
func processName(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TokenSortRatio scores two names 0..100 regardless of word order.
func TokenSortRatio(a, b string) int {
	pa, pb := processName(a), processName(b)
	lensum := utf8.RuneCountInString(pa) + utf8.RuneCountInString(pb)
	if lensum == 0 {
		return 0
	}
	dist := levenshtein.Distance(pa, pb, indelParams)
	return int(math.RoundToEven(100 * float64(lensum-dist) / float64(lensum)))
}

// Rank scores name against candidates and returns those at or above
// threshold, best first, at most limit of them.
func Rank(name string, candidates []*entity.Item, threshold, limit int) []entity.Suggestion {
	out := make([]entity.Suggestion, 0, limit)
	for _, c := range candidates {
		score := TokenSortRatio(name, c.Name)
		if score < threshold {
			continue
		}
		out = append(out, entity.Suggestion{ID: c.ID, Name: c.Name, Category: c.Category, Similarity: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
