package ui

import (
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Problem describes a failure shown to the user
type Problem struct {
	Context     string
	Message     string
	Detail      string
	Suggestions []string
	Hints       []string
}

// WriteProblem writes a problem block:
//
//	✗ UNKNOWN ENTITY TYPE: Pst
//	   Did you mean: Post?
//	   → entitycore inspect
func WriteProblem(w io.Writer, p Problem, noColor bool) {
	head := newColor(noColor, color.FgRed, color.Bold)
	body := newColor(noColor, color.FgRed)

	if p.Context != "" {
		head.Fprintf(w, "✗ %s: %s\n", strings.ToUpper(p.Context), p.Message)
	} else {
		head.Fprintf(w, "✗ %s\n", p.Message)
	}
	if p.Detail != "" {
		body.Fprintf(w, "   %s\n", p.Detail)
	}
	if len(p.Suggestions) > 0 {
		newColor(noColor, color.FgYellow).Fprintf(w, "   Did you mean: %s?\n", strings.Join(p.Suggestions, ", "))
	}
	hint := newColor(noColor, color.FgCyan)
	for _, h := range p.Hints {
		hint.Fprintf(w, "   → %s\n", h)
	}
}

// WriteSuccess writes a green check line
func WriteSuccess(w io.Writer, message string, noColor bool) {
	newColor(noColor, color.FgGreen, color.Bold).Fprintf(w, "✓ %s\n", message)
}

// WriteWarning writes a yellow warning line
func WriteWarning(w io.Writer, message string, noColor bool) {
	newColor(noColor, color.FgYellow).Fprintf(w, "! %s\n", message)
}

// MaxSuggestions caps the names returned by Suggest
const MaxSuggestions = 3

// Suggest returns up to MaxSuggestions candidates within a small edit
// distance of target, closest first. Matching ignores case.
func Suggest(target string, candidates []string) []string {
	type match struct {
		name string
		dist int
	}
	limit := len(target)/2 + 1
	if limit > 3 {
		limit = 3
	}

	var matches []match
	lower := strings.ToLower(target)
	for _, c := range candidates {
		if d := editDistance(lower, strings.ToLower(c)); d <= limit {
			matches = append(matches, match{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].dist < matches[j].dist })

	var out []string
	for i := 0; i < len(matches) && i < MaxSuggestions; i++ {
		out = append(out, matches[i].name)
	}
	return out
}

// editDistance is the Levenshtein distance over runes
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
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
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

