package compactor

import (
	"sort"

	"github.com/hejijunhao/warden/internal/engine/dedup"
)

// Fit compacts every line's message and selects lines until the estimated
// token count reaches maxTokens. Higher-level lines are chosen first; the
// selection is returned in its original order with the number of lines left
// out. maxTokens <= 0 disables the budget.
func (c *Compactor) Fit(lines []dedup.Line, maxTokens int) (texts []string, omitted int) {
	rendered := make([]string, len(lines))
	for i, l := range lines {
		l.Entry.Message, _ = c.Compact(l.Entry.Message)
		rendered[i] = l.Text()
	}
	if maxTokens <= 0 {
		return rendered, 0
	}

	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return lines[idx[a]].Entry.Level > lines[idx[b]].Entry.Level
	})

	keep := make([]bool, len(lines))
	used := 0
	for _, i := range idx {
		n := EstimateTokens(rendered[i])
		if used+n > maxTokens {
			omitted++
			continue
		}
		used += n
		keep[i] = true
	}

	texts = make([]string, 0, len(lines)-omitted)
	for i, ok := range keep {
		if ok {
			texts = append(texts, rendered[i])
		}
	}
	return texts, omitted
}
