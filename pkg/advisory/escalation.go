// Package advisory turns raw agronomy guidance into farmer-facing text with
// pesticide safety warnings, escalation guidance and a disclaimer.
package advisory

import "strings"

// Level is a coarse severity signal.
type Level string

const (
	LevelLow     Level = "LOW"
	LevelMedium  Level = "MEDIUM"
	LevelHigh    Level = "HIGH"
	LevelUnknown Level = "UNKNOWN"
)

// Assessment is derived from advisory text only.
type Assessment struct {
	Level                   Level `json:"level"`
	NeedsPesticideWarning   bool  `json:"needs_pesticide_warning"`
	NeedsEscalationGuidance bool  `json:"needs_escalation_guidance"`
}

var pesticideKeywords = []string{
	"spray", "pesticide", "fungicide", "insecticide", "chemical",
	"treat with", "copper", "neem", "imidacloprid", "pyrethrin",
}

var hedgeKeywords = []string{
	"uncertain", "not sure", "could be", "possibly", "may be", "might be",
	"unclear", "cannot confirm", "can't confirm", "looks similar to",
}

var severityKeywords = []string{
	"severe", "widespread", "heavy infestation", "spreading rapidly",
}

const (
	PesticideWarning = "⚠ Before using any chemical: read the product label, follow local regulations, " +
		"wear gloves and mask, and avoid spraying in mid-day heat."

	EscalationGuidance = "Bring a fresh sample (leaf / fruit / insect) to a local agriculture " +
		"extension officer or agronomist to confirm before treating your whole field."
)

var disclaimers = map[Level]string{
	LevelLow: "Disclaimer: this tool gives general crop guidance based on your description and photo. " +
		"Always confirm pesticide products, rates, and local regulations with a licensed agronomist before spraying anything.",
	LevelMedium: "Disclaimer: this guidance is not certain. Watch the plants closely over the next few days and " +
		"confirm any pesticide product, rate, and local regulation with a licensed agronomist before spraying.",
	LevelHigh: "Disclaimer: this looks serious. Contact your local agriculture extension officer or a licensed " +
		"agronomist for an on-site check as soon as possible, before the problem spreads further.",
	LevelUnknown: "Unable to generate guidance for this problem. Disclaimer: please describe the symptoms again " +
		"or contact your local agriculture extension officer for help.",
}

// Assess computes the escalation level and flags for advisory text.
func Assess(text string) Assessment {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return Assessment{Level: LevelUnknown}
	}
	a := Assessment{
		NeedsPesticideWarning:   containsAny(lowered, pesticideKeywords),
		NeedsEscalationGuidance: containsAny(lowered, hedgeKeywords),
	}
	switch {
	case containsAny(lowered, severityKeywords):
		a.Level = LevelHigh
	case a.NeedsPesticideWarning || a.NeedsEscalationGuidance:
		a.Level = LevelMedium
	default:
		a.Level = LevelLow
	}
	return a
}

// BuildSafetyMessage joins, in order: the advisory text, the pesticide
// warning, the escalation guidance and the disclaimer for the level.
// Blocks are separated by a blank line.
func BuildSafetyMessage(text string, a Assessment) string {
	parts := make([]string, 0, 4)
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		parts = append(parts, trimmed)
	}
	if a.NeedsPesticideWarning {
		parts = append(parts, PesticideWarning)
	}
	if a.NeedsEscalationGuidance {
		parts = append(parts, EscalationGuidance)
	}
	parts = append(parts, Disclaimer(a.Level))
	return strings.Join(parts, "\n\n")
}

// Apply assesses text and builds the final message in one step.
func Apply(text string) (string, Assessment) {
	a := Assess(text)
	return BuildSafetyMessage(text, a), a
}

// Disclaimer returns the fixed template for level. Unrecognized levels get
// the UNKNOWN template.
func Disclaimer(level Level) string {
	if d, ok := disclaimers[level]; ok {
		return d
	}
	return disclaimers[LevelUnknown]
}

func containsAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
