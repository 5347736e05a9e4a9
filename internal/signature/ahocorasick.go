package signature

import "strings"

// Matcher is a minimal Aho-Corasick automaton over a fixed pattern set,
// used by the cot worker to scan prompts for elicitation phrases in a
// single pass regardless of pattern count (spec.md §4.3).
type Matcher struct {
	goTo    []map[byte]int
	fail    []int
	outputs [][]int // pattern indices completing at this state
	words   []string
}

// NewMatcher builds an Aho-Corasick automaton over words (case-folded).
func NewMatcher(words []string) *Matcher {
	m := &Matcher{
		goTo:    []map[byte]int{{}},
		fail:    []int{0},
		outputs: [][]int{nil},
		words:   words,
	}
	for i, w := range words {
		m.insert(strings.ToLower(w), i)
	}
	m.buildFailureLinks()
	return m
}

func (m *Matcher) insert(word string, idx int) {
	state := 0
	for i := 0; i < len(word); i++ {
		c := word[i]
		next, ok := m.goTo[state][c]
		if !ok {
			m.goTo = append(m.goTo, map[byte]int{})
			m.fail = append(m.fail, 0)
			m.outputs = append(m.outputs, nil)
			next = len(m.goTo) - 1
			m.goTo[state][c] = next
		}
		state = next
	}
	m.outputs[state] = append(m.outputs[state], idx)
}

func (m *Matcher) buildFailureLinks() {
	queue := make([]int, 0, len(m.goTo))
	for c, s := range m.goTo[0] {
		m.fail[s] = 0
		queue = append(queue, s)
		_ = c
	}
	for head := 0; head < len(queue); head++ {
		state := queue[head]
		for c, next := range m.goTo[state] {
			queue = append(queue, next)
			f := m.fail[state]
			for {
				if target, ok := m.goTo[f][c]; ok {
					m.fail[next] = target
					break
				}
				if f == 0 {
					m.fail[next] = 0
					break
				}
				f = m.fail[f]
			}
			m.outputs[next] = append(m.outputs[next], m.outputs[m.fail[next]]...)
		}
	}
}

// CountMatches returns, for each pattern index, how many times it occurs
// in text (case-insensitive, overlapping matches counted once per end
// position as Aho-Corasick naturally reports).
func (m *Matcher) CountMatches(text string) []int {
	counts := make([]int, len(m.words))
	text = strings.ToLower(text)
	state := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		for {
			if next, ok := m.goTo[state][c]; ok {
				state = next
				break
			}
			if state == 0 {
				break
			}
			state = m.fail[state]
		}
		for _, idx := range m.outputs[state] {
			counts[idx]++
		}
	}
	return counts
}

// TotalMatches sums CountMatches across all patterns.
func (m *Matcher) TotalMatches(text string) int {
	total := 0
	for _, c := range m.CountMatches(text) {
		total += c
	}
	return total
}
