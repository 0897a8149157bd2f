package recovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplexityScore(t *testing.T) {
	tests := []struct {
		name       string
		indicators []string
		want       float64
	}{
		{"empty", nil, 0},
		{"handwritten", []string{IndicatorHandwritten}, 0.3},
		{"handwritten and poor image", []string{IndicatorHandwritten, IndicatorPoorImage}, 0.55},
		{"unknown indicator uses default weight", []string{"watermark"}, 0.1},
		{"mixed known and unknown", []string{IndicatorMultilingual, "watermark"}, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ComplexityScore(tt.indicators), 1e-9)
		})
	}
}

func TestSimulatedRunnerOCRBoosts(t *testing.T) {
	runner := SimulatedRunner{}
	ex := Exception{DocumentID: "doc-1", Confidence: 0.8}

	out, err := runner.Run(context.Background(), StrategyEnhanceImage, ex)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, out.Confidence, 1e-9)

	out, err = runner.Run(context.Background(), StrategyAlternativeOCR, ex)
	require.NoError(t, err)
	assert.InDelta(t, 0.92, out.Confidence, 1e-9)

	out, err = runner.Run(context.Background(), StrategyManualText, ex)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, out.Confidence, 1e-9, "manual extraction carries no boost")
}

func TestSimulatedRunnerDeterministic(t *testing.T) {
	runner := SimulatedRunner{}
	ex := Exception{DocumentID: "doc-42"}

	first, err := runner.Run(context.Background(), "handwriting_analysis", ex)
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), "handwriting_analysis", ex)
	require.NoError(t, err)
	assert.Equal(t, first.Succeeded, second.Succeeded,
		"the same document and strategy must simulate the same outcome")
}

func TestSimulatedRunnerFullSuccessRate(t *testing.T) {
	runner := SimulatedRunner{SuccessRate: 1.0}

	for _, doc := range []string{"doc-1", "doc-42", "intake-9"} {
		out, err := runner.Run(context.Background(), "handwriting_analysis", Exception{DocumentID: doc})
		require.NoError(t, err)
		assert.True(t, out.Succeeded, "rate 1.0 must always succeed, doc %s", doc)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"212-555-0123", "(212) 555-0123", true},
		{"212.555.0123", "(212) 555-0123", true},
		{"+1 (212) 555 0123", "(212) 555-0123", true},
		{"12125550123", "(212) 555-0123", true},
		{"555-0123", "", false},
		{"not a phone", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizePhone(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1985-03-14", "1985-03-14", true},
		{"03/14/1985", "1985-03-14", true},
		{"3/4/1985", "1985-03-04", true},
		{"March 14, 1985", "1985-03-14", true},
		{" 03-14-1985 ", "1985-03-14", true},
		{"14/03/1985", "", false},
		{"yesterday", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, ok := normalizeEmail("  Jane.Doe@Example.COM ")
	assert.True(t, ok)
	assert.Equal(t, "jane.doe@example.com", got)

	_, ok = normalizeEmail("not-an-email")
	assert.False(t, ok)

	_, ok = normalizeEmail("two@@example.com")
	assert.False(t, ok)
}

func TestInferMissingEmail(t *testing.T) {
	got, ok := inferMissing("email", map[string]string{"patient_name": "Jane Sample"})
	assert.True(t, ok)
	assert.Equal(t, "jane.sample@placeholder.invalid", got)

	got, ok = inferMissing("contact_email", map[string]string{"name": "Bob O'Neil Jr."})
	assert.True(t, ok)
	assert.Equal(t, "bob.o.neil.jr@placeholder.invalid", got)

	_, ok = inferMissing("email", nil)
	assert.False(t, ok, "no name, nothing to infer from")

	_, ok = inferMissing("phone", map[string]string{"patient_name": "Jane Sample"})
	assert.False(t, ok, "only email has an inference rule")
}

func TestCorrectFormatDispatch(t *testing.T) {
	got, ok := correctFormat("primary_phone", "212 555 0123")
	assert.True(t, ok)
	assert.Equal(t, "(212) 555-0123", got)

	got, ok = correctFormat("dob", "01/02/1990")
	assert.True(t, ok)
	assert.Equal(t, "1990-01-02", got)

	_, ok = correctFormat("member_id", "whatever")
	assert.False(t, ok, "no normalizer for unrecognized fields")
}
