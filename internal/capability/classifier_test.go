package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtin(t *testing.T) []Descriptor {
	t.Helper()
	descs, err := LoadCatalog()
	require.NoError(t, err)
	return descs
}

func hitFor(m Match, kw string) (KeywordHit, bool) {
	for _, h := range m.Hits {
		if h.Keyword == kw {
			return h, true
		}
	}
	return KeywordHit{}, false
}

func TestClassify_ExactKeywordScoresMaximum(t *testing.T) {
	descs := builtin(t)
	c := NewClassifier(descs)

	for _, d := range descs {
		for _, kw := range d.Keywords {
			matches := c.Classify(kw)
			var found *Match
			for i := range matches {
				if matches[i].Capability.Name == d.Name {
					found = &matches[i]
				}
			}
			require.NotNil(t, found, "keyword %q should classify as %s", kw, d.Name)

			hit, ok := hitFor(*found, kw)
			require.True(t, ok, "keyword %q missing from hits", kw)
			assert.Equal(t, ExactWeight, hit.Weight, "keyword %q", kw)
		}
	}
}

func TestClassify_CaseInsensitiveExact(t *testing.T) {
	c := NewClassifier(builtin(t))

	matches := c.Classify("  CloudFormation ")
	require.NotEmpty(t, matches)
	assert.Equal(t, "cloudformation", matches[0].Capability.Name)
	assert.Equal(t, ExactWeight, matches[0].Score)
}

func TestClassify_NoKeywords(t *testing.T) {
	c := NewClassifier(builtin(t))

	for _, text := range []string{"", "   ", "hola, buenos días", "¿qué tal estás?"} {
		matches := c.Classify(text)
		assert.NotNil(t, matches, "text %q", text)
		assert.Empty(t, matches, "text %q", text)
	}
}

func TestClassify_ScoresAccumulate(t *testing.T) {
	descs := []Descriptor{
		{Name: "a", Service: "core", Priority: 1, Keywords: []string{"red", "blue"}},
	}
	c := NewClassifier(descs)

	matches := c.Classify("a red and blue house")
	require.Len(t, matches, 1)
	assert.Equal(t, 2*SubstringWeight, matches[0].Score)
	assert.Len(t, matches[0].Hits, 2)
}

func TestClassify_OrderScoreThenPriority(t *testing.T) {
	descs := []Descriptor{
		{Name: "low-priority", Priority: 9, Keywords: []string{"alpha"}},
		{Name: "high-score", Priority: 5, Keywords: []string{"beta", "gamma"}},
		{Name: "high-priority", Priority: 1, Keywords: []string{"delta"}},
	}
	c := NewClassifier(descs)

	matches := c.Classify("alpha beta gamma delta")
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"high-score", "high-priority", "low-priority"}, Names(matches))
}

func TestClassify_EqualScoreAndPriorityKeepsCatalogOrder(t *testing.T) {
	c := NewClassifier(builtin(t))

	// cloudformation and aws-pricing share priority 2; cloudformation is declared first.
	for _, text := range []string{"precio de la plantilla", "plantilla con precio"} {
		matches := c.Classify(text)
		require.Len(t, matches, 2, "text %q", text)
		assert.Equal(t, []string{"cloudformation", "aws-pricing"}, Names(matches), "text %q", text)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier(builtin(t))
	text := "necesito el diagrama, la plantilla cloudformation, el costo y un documento pdf en aws"

	first := Names(c.Classify(text))
	require.NotEmpty(t, first)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Names(c.Classify(text)))
	}
}

func TestClassify_DiagramScenario(t *testing.T) {
	c := NewClassifier(builtin(t))

	matches := c.Classify("genera un diagrama de arquitectura para un e-commerce")
	require.NotEmpty(t, matches)
	assert.Equal(t, "aws-diagram", matches[0].Capability.Name)
	assert.GreaterOrEqual(t, matches[0].Score, SubstringWeight)

	prompt := Augment("Eres un arquitecto AWS.", matches)
	assert.Contains(t, prompt, "aws-diagram")
}

func TestNewClassifier_Disabled(t *testing.T) {
	c := NewClassifier(builtin(t), "aws-diagram")

	assert.False(t, Has(c.Classify("diagrama"), "aws-diagram"))
	for _, d := range c.Descriptors() {
		assert.NotEqual(t, "aws-diagram", d.Name)
	}
}

func TestNames_NeverNil(t *testing.T) {
	assert.NotNil(t, Names(nil))
	assert.Empty(t, Names(nil))
}
