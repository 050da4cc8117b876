package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/llm"
)

// ErrEmptyPrompt is returned when the responder receives no prompt text.
var ErrEmptyPrompt = errors.New("empty prompt")

const extensionNudge = " If the problem spreads fast across the field, talk to your local " +
	"agriculture extension officer for an on-site check."

type category struct {
	name     string
	keywords []string
	answer   func(crop, farmerText string) string
}

// categories are checked in order; the first one with a keyword hit answers.
var categories = []category{
	{
		name:     "water",
		keywords: []string{"dry", "wilt", "drought"},
		answer: func(crop, _ string) string {
			return fmt.Sprintf("This sounds like water stress on your %s. ", crop) +
				"Water deeply at the base in the early morning so the roots get moisture before the heat of the day. " +
				"Add mulch around the plants to keep the soil from drying out. " +
				"Check the soil a few centimetres down before watering again."
		},
	},
	{
		name:     "disease",
		keywords: []string{"spot", "fungal", "fungus", "powdery", "mildew", "lesion", "blight", "rot", "mold", "mould"},
		answer: func(crop, _ string) string {
			return fmt.Sprintf("It looks like a possible fungal disease on your %s. ", crop) +
				"This often spreads in warm, wet weather. " +
				"Remove the worst leaves so the fungus does not spread. " +
				"Do not water from above. Water at the base in the early morning. " +
				"Improve airflow by trimming the lower leaves so they do not touch wet soil. " +
				"If many plants are affected, a copper-based fungicide can help, " +
				"but confirm with a local agronomist before spraying."
		},
	},
	{
		name:     "pest",
		keywords: []string{"insect", "pest", "hole", "caterpillar", "aphid", "bug", "worm", "beetle", "webbing"},
		answer: func(crop, _ string) string {
			return fmt.Sprintf("This looks like insect pest damage on your %s. ", crop) +
				"Check under the leaves in the morning and handpick any caterpillars or beetles you find. " +
				"Spray the plants with a strong jet of water to knock off small insects. " +
				"Neem oil is a gentle option, but confirm with a local agronomist before using any treatment."
		},
	},
	{
		name:     "nutrient",
		keywords: []string{"yellow", "pale", "nutrient", "deficien"},
		answer: func(crop, _ string) string {
			return fmt.Sprintf("Yellowing on %s often points to a nutrient problem, most commonly nitrogen. ", crop) +
				"If the older, lower leaves turn yellow first, add a balanced fertilizer or compost. " +
				"Avoid over-fertilizing all at once and water it in well."
		},
	},
}

// LLMAdapter is a keyword-heuristic responder used when no real LLM is
// available. It reads the farmer text and crop out of the triage prompt.
type LLMAdapter struct{}

func NewLLMAdapter() *LLMAdapter { return &LLMAdapter{} }

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	prompt := input.LastUserText()
	if strings.TrimSpace(prompt) == "" {
		return llm.Response{}, errorsx.Wrap(ErrEmptyPrompt, errorsx.ReasonLLMGenerate)
	}
	return llm.Response{Text: Respond(prompt), FinishReason: "stop"}, nil
}

// Category returns the name of the category that would answer text, or
// "general" when none match.
func Category(text string) string {
	lower := strings.ToLower(text)
	for _, c := range categories {
		if containsAny(lower, c.keywords) {
			return c.name
		}
	}
	return "general"
}

// Respond builds the heuristic answer for a prompt.
func Respond(prompt string) string {
	farmerText := FarmerText(prompt)
	crop := promptField(prompt, "Crop:")
	if crop == "" || crop == "other" {
		crop = "plants"
	}
	lower := strings.ToLower(farmerText)
	for _, c := range categories {
		if containsAny(lower, c.keywords) {
			return c.answer(crop, farmerText) + extensionNudge
		}
	}
	answer := fmt.Sprintf("Based on what you described (%q), I am not fully sure what is affecting your %s. ", farmerText, crop) +
		"Take a sample of the affected plant to a local agronomist so they can check it in person. " +
		"Until then, keep watering at the base and remove any badly damaged leaves."
	return answer + extensionNudge
}

// FarmerText returns the text between the first pair of triple quotes, or
// the whole prompt when there are none.
func FarmerText(prompt string) string {
	const quote = `"""`
	start := strings.Index(prompt, quote)
	if start < 0 {
		return strings.TrimSpace(prompt)
	}
	rest := prompt[start+len(quote):]
	end := strings.Index(rest, quote)
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

func promptField(prompt, label string) string {
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, label) {
			return strings.TrimSpace(strings.TrimPrefix(line, label))
		}
	}
	return ""
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

var _ llm.LLMAdapter = (*LLMAdapter)(nil)
