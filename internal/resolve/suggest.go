package resolve

import (
	"sort"
	"strings"
)

// Vocabulary is the set of known command names with one-line descriptions.
// It backs the help output, autocomplete, and did-you-mean suggestions.
// The dispatcher's registry is built from the same names so the two can
// never drift apart.
var Vocabulary = map[string]string{
	"ls":        "List directory contents",
	"cd":        "Change directory",
	"pwd":       "Print working directory",
	"mkdir":     "Make directory",
	"rmdir":     "Remove empty directory",
	"rm":        "Remove file or directory",
	"cp":        "Copy file or directory",
	"mv":        "Move or rename file or directory",
	"cat":       "Display file contents",
	"echo":      "Display a line of text",
	"touch":     "Create an empty file",
	"clear":     "Clear the terminal screen",
	"history":   "Show command history",
	"help":      "Display help information",
	"cpu":       "Display CPU information",
	"memory":    "Display memory information",
	"processes": "List running processes",
	"top":       "Display system load and top processes",
}

// VocabularyNames returns the command names sorted alphabetically.
func VocabularyNames() []string {
	names := make([]string, 0, len(Vocabulary))
	for name := range Vocabulary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SuggestCommand returns up to max known command names closest to the
// given (unrecognized) name by edit distance. Candidates further than
// half the input's length away are not offered - a suggestion that
// shares less than half its characters is noise, not help.
func SuggestCommand(name string, max int) []string {
	type scored struct {
		name string
		dist int
	}

	cutoff := len(name)/2 + 1
	var candidates []scored
	for cmd := range Vocabulary {
		d := levenshtein(name, cmd)
		if d <= cutoff {
			candidates = append(candidates, scored{cmd, d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})

	var out []string
	for _, c := range candidates {
		if len(out) == max {
			break
		}
		out = append(out, c.name)
	}
	return out
}

// SuggestIntent builds a did-you-mean hint for unmatched natural-language
// input by scoring the first word against the vocabulary, falling back to
// the whole phrase. Returns "" when nothing is close enough.
func SuggestIntent(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}

	if s := SuggestCommand(fields[0], 1); len(s) > 0 {
		return s[0]
	}
	if s := SuggestCommand(text, 1); len(s) > 0 {
		return s[0]
	}
	return ""
}

// levenshtein computes the edit distance between two strings using the
// standard two-row dynamic programming formulation.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}

	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
