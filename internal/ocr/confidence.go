package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate     = regexp.MustCompile(`\b(20\d{2}[-./]\d{2}[-./]\d{2}|\d{2}[-./]\d{2}[-./]20\d{2})\b`)
	reCurrency = regexp.MustCompile(`\b(pln|zl)\b|zł`)
	reAmount   = regexp.MustCompile(`\d+[.,]\d{2}\b`)
	reFiscal   = regexp.MustCompile(`paragon fiskalny|\bnip\b|\bptu\b|\bsuma\b|\brazem\b`)
)

// heuristicConfidence estimates in [0,1] how much the text reads like a
// Polish fiscal receipt. It is logged only; nothing branches on it.
func heuristicConfidence(txt string) float32 {
	lower := strings.ToLower(txt)
	score := float32(0.1)
	if reFiscal.MatchString(lower) {
		score += 0.25
	}
	if reDate.MatchString(lower) {
		score += 0.2
	}
	if reCurrency.MatchString(lower) {
		score += 0.1
	}

	var lines, priced int
	for _, l := range strings.Split(lower, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines++
		if reAmount.MatchString(l) {
			priced++
		}
	}
	if lines > 0 {
		// item lines on a receipt mostly end in a price
		score += 0.35 * float32(priced) / float32(lines)
	}
	if score > 1 {
		score = 1
	}
	return score
}
