package service

import "strings"

// nameSimilarity scores two names in [0, 1] by matching each contact
// token against its closest payee token with a Levenshtein ratio.
// Bank statements truncate and reorder names, so token-level matching
// outperforms whole-string distance.
func nameSimilarity(payee, contact string) float64 {
	payeeTokens := nameTokens(payee)
	contactTokens := nameTokens(contact)
	if len(payeeTokens) == 0 || len(contactTokens) == 0 {
		return 0
	}

	total := 0.0
	for _, ct := range contactTokens {
		best := 0.0
		for _, pt := range payeeTokens {
			dist := levenshtein(ct, pt)
			maxLen := len(ct)
			if len(pt) > maxLen {
				maxLen = len(pt)
			}
			sim := 1 - float64(dist)/float64(maxLen)
			if sim > best {
				best = sim
			}
		}
		total += best
	}
	return total / float64(len(contactTokens))
}

func nameTokens(s string) []string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Fields(s)
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if a < b && a < c {
		return a
	}
	if b < c {
		return b
	}
	return c
}
