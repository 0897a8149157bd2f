package recovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// OCR recovery strategies, attempted in this order.
const (
	StrategyEnhanceImage   = "enhance_image_quality"
	StrategyAlternativeOCR = "alternative_ocr_service"
	StrategyManualText     = "manual_text_extraction"
)

var ocrStrategies = []string{StrategyEnhanceImage, StrategyAlternativeOCR, StrategyManualText}

// Confidence boost each OCR strategy is credited with. Manual text
// extraction carries no boost: it only wins when the source confidence
// already clears the threshold, which routing never sees.
var ocrBoosts = map[string]float64{
	StrategyEnhanceImage:   0.15,
	StrategyAlternativeOCR: 0.12,
	StrategyManualText:     0,
}

// Complex-document indicators and their complexity weights.
const (
	IndicatorHandwritten   = "handwritten"
	IndicatorPoorImage     = "poor_image"
	IndicatorMultilingual  = "multilingual"
	IndicatorUnusualLayout = "unusual_layout"
	IndicatorFaded         = "faded"
)

const defaultIndicatorWeight = 0.1

var indicatorWeights = map[string]float64{
	IndicatorHandwritten:   0.3,
	IndicatorPoorImage:     0.25,
	IndicatorMultilingual:  0.2,
	IndicatorUnusualLayout: 0.15,
	IndicatorFaded:         0.2,
}

// Specialized strategy per indicator.
var indicatorStrategies = map[string]string{
	IndicatorHandwritten:   "handwriting_analysis",
	IndicatorPoorImage:     "image_restoration",
	IndicatorMultilingual:  "translation_processing",
	IndicatorUnusualLayout: "layout_reconstruction",
	IndicatorFaded:         "contrast_restoration",
}

const generalSpecialistStrategy = "general_specialist"

const systemRetryStrategy = "retry_with_backoff"

// ComplexityScore is the weighted sum of the present indicators. Unknown
// indicators count at the default weight.
func ComplexityScore(indicators []string) float64 {
	var score float64
	for _, indicator := range indicators {
		weight, ok := indicatorWeights[indicator]
		if !ok {
			weight = defaultIndicatorWeight
		}
		score += weight
	}
	return score
}

func strategyForIndicator(indicator string) string {
	if s, ok := indicatorStrategies[indicator]; ok {
		return s
	}
	return generalSpecialistStrategy
}

// StrategyOutcome reports what one recovery attempt achieved. Confidence is
// meaningful for OCR strategies; Succeeded for all others.
type StrategyOutcome struct {
	Strategy   string  `json:"strategy"`
	Succeeded  bool    `json:"succeeded"`
	Confidence float64 `json:"confidence,omitempty"`
}

// StrategyRunner executes one named recovery strategy. The production runner
// simulates outcomes; tests substitute fixed ones.
type StrategyRunner interface {
	Run(ctx context.Context, strategy string, ex Exception) (StrategyOutcome, error)
}

// SimulatedRunner stands in for real enhancement/translation services. OCR
// strategies add their fixed confidence boost; everything else succeeds at a
// deterministic simulated rate seeded by document id and strategy, so
// repeated routing of the same exception lands in the same state.
// SuccessRate defaults to 0.7 when zero.
type SimulatedRunner struct {
	SuccessRate float64
}

var _ StrategyRunner = (*SimulatedRunner)(nil)

func (r SimulatedRunner) Run(_ context.Context, strategy string, ex Exception) (StrategyOutcome, error) {
	if boost, ok := ocrBoosts[strategy]; ok {
		return StrategyOutcome{
			Strategy:   strategy,
			Confidence: ex.Confidence + boost,
		}, nil
	}
	return StrategyOutcome{
		Strategy:  strategy,
		Succeeded: simulatedSuccess(ex.DocumentID+":"+strategy, r.SuccessRate),
	}, nil
}

func simulatedSuccess(seed string, rate float64) bool {
	if rate <= 0 || rate > 1 {
		rate = 0.7
	}
	var h uint32
	for _, r := range seed {
		h = h*31 + uint32(r)
	}
	return h%100 < uint32(rate*100)
}

// Validation correction helpers. Format errors are normalized in place;
// missing fields are filled by inference where a safe rule exists.

var (
	phoneDigits = regexp.MustCompile(`\D`)
	emailShape  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	nameJunk    = regexp.MustCompile(`[^a-z0-9]+`)
)

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// correctFormat normalizes a recoverable format error. The field name
// decides which normalizer applies.
func correctFormat(field, value string) (string, bool) {
	name := strings.ToLower(field)
	switch {
	case strings.Contains(name, "phone"):
		return normalizePhone(value)
	case strings.Contains(name, "date") || strings.Contains(name, "dob"):
		return normalizeDate(value)
	case strings.Contains(name, "email"):
		return normalizeEmail(value)
	default:
		return "", false
	}
}

func normalizePhone(value string) (string, bool) {
	digits := phoneDigits.ReplaceAllString(value, "")
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return fmt.Sprintf("(%s) %s-%s", digits[0:3], digits[3:6], digits[6:10]), true
}

func normalizeDate(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	return "", false
}

func normalizeEmail(value string) (string, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	if !emailShape.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}

// inferMissing fills a missing field from the already-extracted ones. Only
// email has a safe rule: build a placeholder address from the patient name
// on the reserved .invalid TLD so it can never be delivered to.
func inferMissing(field string, fields map[string]string) (string, bool) {
	if !strings.Contains(strings.ToLower(field), "email") {
		return "", false
	}
	name := fields["patient_name"]
	if name == "" {
		name = fields["name"]
	}
	slug := strings.Trim(nameJunk.ReplaceAllString(strings.ToLower(name), "."), ".")
	if slug == "" {
		return "", false
	}
	return slug + "@placeholder.invalid", true
}
