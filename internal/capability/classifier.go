package capability

import (
	"sort"
	"strings"
)

// Keyword weights. An input that equals a keyword outscores one that merely
// contains it.
const (
	ExactWeight     = 10
	SubstringWeight = 5
)

// KeywordHit records one keyword that contributed to a match.
type KeywordHit struct {
	Keyword string `json:"keyword"`
	Weight  int    `json:"weight"`
}

// Match is a capability detected in a message together with its score.
type Match struct {
	Capability Descriptor   `json:"capability"`
	Score      int          `json:"score"`
	Hits       []KeywordHit `json:"hits"`
}

// rule is one row of the classifier's table: a capability and its
// pre-lowercased keyword matcher.
type rule struct {
	desc     Descriptor
	keywords []string
}

// score applies the keyword weights to already-normalized text.
func (r rule) score(text string) (int, []KeywordHit) {
	total := 0
	var hits []KeywordHit
	for _, kw := range r.keywords {
		switch {
		case text == kw:
			total += ExactWeight
			hits = append(hits, KeywordHit{Keyword: kw, Weight: ExactWeight})
		case strings.Contains(text, kw):
			total += SubstringWeight
			hits = append(hits, KeywordHit{Keyword: kw, Weight: SubstringWeight})
		}
	}
	return total, hits
}

// Classifier maps free text to capabilities. Safe for concurrent use; the rule
// table is built once and never modified.
type Classifier struct {
	rules []rule
}

// NewClassifier builds the rule table, skipping disabled capability names.
func NewClassifier(descs []Descriptor, disabled ...string) *Classifier {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}

	c := &Classifier{rules: make([]rule, 0, len(descs))}
	for _, d := range descs {
		if skip[d.Name] {
			continue
		}
		kws := make([]string, 0, len(d.Keywords))
		for _, kw := range d.Keywords {
			kws = append(kws, strings.ToLower(strings.TrimSpace(kw)))
		}
		c.rules = append(c.rules, rule{desc: d, keywords: kws})
	}
	return c
}

// Descriptors returns the enabled capabilities in catalog order.
func (c *Classifier) Descriptors() []Descriptor {
	out := make([]Descriptor, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.desc
	}
	return out
}

// Classify returns every capability with at least one keyword hit, ordered by
// score descending then priority ascending. Remaining ties keep catalog order.
// Empty or keyword-free text yields an empty result, which means "no
// augmentation", not an error.
func (c *Classifier) Classify(text string) []Match {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return []Match{}
	}

	matches := make([]Match, 0)
	for _, r := range c.rules {
		score, hits := r.score(norm)
		if score == 0 {
			continue
		}
		matches = append(matches, Match{Capability: r.desc, Score: score, Hits: hits})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Capability.Priority < matches[j].Capability.Priority
	})
	return matches
}

// Names returns the capability names of matches in order. Never nil.
func Names(matches []Match) []string {
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Capability.Name)
	}
	return names
}

// Has reports whether name is among matches.
func Has(matches []Match, name string) bool {
	for _, m := range matches {
		if m.Capability.Name == name {
			return true
		}
	}
	return false
}
