package utils

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	minChunkLength      = 50
)

// ChunkText splits text into overlapping windows of at most size runes.
// A window ends early at the last '.' or newline when that boundary lies past
// its midpoint. Chunks of minChunkLength runes or fewer are dropped unless
// nothing else survives, in which case the trimmed text is the only chunk.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			window := runes[start:end]
			brk := -1
			for i := len(window) - 1; i >= 0; i-- {
				if window[i] == '.' || window[i] == '\n' {
					brk = i
					break
				}
			}
			if brk > size/2 {
				end = start + brk + 1
			}
		}

		if c := strings.TrimSpace(string(runes[start:end])); len([]rune(c)) > minChunkLength {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	if len(chunks) == 0 {
		if c := strings.TrimSpace(text); c != "" {
			return []string{c}
		}
	}
	return chunks
}

// Tokenize lowercases s and splits it into letter/digit runs.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// OverlapScore is the fraction of distinct query tokens found in text.
func OverlapScore(query, text string) float32 {
	q := Tokenize(query)
	if len(q) == 0 {
		return 0
	}
	have := make(map[string]struct{})
	for _, t := range Tokenize(text) {
		have[t] = struct{}{}
	}
	seen := make(map[string]struct{}, len(q))
	hits := 0
	for _, t := range q {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := have[t]; ok {
			hits++
		}
	}
	return float32(hits) / float32(len(seen))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
