package synthesis

import (
	"sort"
	"strings"
	"unicode"

	"github.com/snarg/podium/internal/aggregate"
)

const minKeyPointWordLen = 5

// KeyPoints returns the top-n most frequent content words of length >=
// minKeyPointWordLen across all merged text, lowercased. Ties break by
// first appearance, keeping the result deterministic.
func KeyPoints(t *aggregate.Transcript, n int) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	idx := 0

	for _, e := range t.Entries {
		for _, raw := range strings.Fields(e.Text) {
			w := strings.ToLower(strings.TrimFunc(raw, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsNumber(r)
			}))
			if len([]rune(w)) < minKeyPointWordLen {
				continue
			}
			if _, ok := counts[w]; !ok {
				firstSeen[w] = idx
				idx++
			}
			counts[w]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return firstSeen[words[i]] < firstSeen[words[j]]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}

// SideArguments returns the first n entries' text per side in
// chronological order.
func SideArguments(entries []aggregate.Entry, n int) []string {
	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}
