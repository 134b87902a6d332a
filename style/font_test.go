package style

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultMatcher(t *testing.T) *FontMatcher {
	t.Helper()
	m, err := NewFontMatcher(nil)
	require.NoError(t, err)
	return m
}

func TestSplitFamilies(t *testing.T) {
	got := SplitFamilies(`"IBM Plex Sans Arabic", 'Helvetica Neue' , Arial,sans-serif,`)
	assert.Equal(t, []string{"IBM Plex Sans Arabic", "Helvetica Neue", "Arial", "sans-serif"}, got)
	assert.Empty(t, SplitFamilies(" , "))
}

func TestFontMatcher_Variants(t *testing.T) {
	m := newDefaultMatcher(t)
	for _, name := range []string{"IBM Plex Sans", "IBMPlexSansArabic", "ibm-plex-mono", "ibm_plex"} {
		assert.True(t, m.Match(name), name)
	}
	for _, name := range []string{"Arial", "Plex", "IBM Sans"} {
		assert.False(t, m.Match(name), name)
	}
}

func TestNewFontMatcher_InvalidPattern(t *testing.T) {
	_, err := NewFontMatcher([]string{"("})
	assert.Error(t, err)
}

func TestJudgeFont_SimpleMatchOnFallbackPosition(t *testing.T) {
	j := JudgeFont(FontInput{
		Families: []string{`Tajawal, "IBM Plex Sans Arabic", sans-serif`, "Arial"},
	}, newDefaultMatcher(t), 0)

	assert.True(t, j.SimpleMatch)
	assert.True(t, j.FinalMatch)
	assert.Equal(t, []string{"Tajawal", "IBM Plex Sans Arabic", "sans-serif", "Arial"}, j.CollectedFamilies)
}

func TestJudgeFont_SampledConfidence(t *testing.T) {
	samples := []string{
		"IBM Plex Sans Arabic, sans-serif",
		"IBM Plex Sans Arabic",
		"Arial",
		"Arial",
		"Times New Roman",
	}
	j := JudgeFont(FontInput{Samples: samples}, newDefaultMatcher(t), 0)

	assert.False(t, j.SimpleMatch)
	assert.Equal(t, 5, j.SampleCount)
	assert.Equal(t, 40, j.SampledConfidencePct)
	assert.True(t, j.FinalMatch)
}

func TestJudgeFont_BelowThreshold(t *testing.T) {
	samples := []string{"IBM Plex Sans", "Arial", "Arial", "Arial", "Arial"}
	j := JudgeFont(FontInput{Samples: samples}, newDefaultMatcher(t), 0)

	assert.Equal(t, 20, j.SampledConfidencePct)
	assert.False(t, j.FinalMatch)
}

func TestJudgeFont_NoSamplesContributesNothing(t *testing.T) {
	m := newDefaultMatcher(t)

	j := JudgeFont(FontInput{Families: []string{"Arial"}}, m, 0)
	assert.Zero(t, j.SampleCount)
	assert.Zero(t, j.SampledConfidencePct)
	assert.False(t, j.FinalMatch)

	j = JudgeFont(FontInput{Families: []string{"Arial"}, FontFaceAvailable: true}, m, 0)
	assert.True(t, j.FinalMatch)

	j = JudgeFont(FontInput{}, m, 0)
	assert.NotNil(t, j.CollectedFamilies)
	assert.Empty(t, j.CollectedFamilies)
}

func TestJudgeFont_ProbeForcesConfidenceFloor(t *testing.T) {
	j := JudgeFont(FontInput{
		Samples:           []string{"Arial", "Arial"},
		FontFaceAvailable: true,
	}, newDefaultMatcher(t), 0)

	assert.Equal(t, 90, j.SampledConfidencePct)
	assert.True(t, j.FinalMatch)
}

func TestJudgeFont_FinalMatchInvariant(t *testing.T) {
	m := newDefaultMatcher(t)
	inputs := []FontInput{
		{},
		{Families: []string{"IBM Plex Sans"}},
		{Samples: []string{"IBM Plex Sans", "Arial", "Arial"}},
		{Samples: []string{"Arial"}, FontFaceAvailable: true},
		{Families: []string{"Arial"}, Samples: []string{"Arial", "Arial", "Arial", "IBM Plex"}},
	}
	for _, in := range inputs {
		j := JudgeFont(in, m, DefaultFontConfidenceThreshold)
		want := j.SimpleMatch || j.FontFaceAvailable || (j.SampleCount > 0 && j.SampledConfidencePct >= DefaultFontConfidenceThreshold)
		assert.Equal(t, want, j.FinalMatch)
	}
}
