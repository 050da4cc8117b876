package triage

import (
	"fmt"
	"strings"
)

const SystemPrompt = "You are an experienced field agronomist helping a farmer. " +
	"Answer in short, plain sentences a farmer can act on today."

// PromptInput is what the LLM is told about one request.
type PromptInput struct {
	FarmerText     string
	Crop           string
	PlantPart      string
	RegionHint     string
	WeatherSummary string
	WeatherRisks   []string
	ImageHint      string
}

// BuildPrompt renders the agronomy prompt. The farmer text sits between
// triple quotes so responders can extract it.
func BuildPrompt(in PromptInput) string {
	region := in.RegionHint
	if strings.TrimSpace(region) == "" {
		region = "unspecified region"
	}
	var b strings.Builder
	b.WriteString("You are an experienced field agronomist helping a farmer.\n\n")
	fmt.Fprintf(&b, "Region: %s\n", region)
	fmt.Fprintf(&b, "Weather context: %s\n", in.WeatherSummary)
	for _, risk := range in.WeatherRisks {
		fmt.Fprintf(&b, "- %s\n", risk)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Crop: %s\n", in.Crop)
	fmt.Fprintf(&b, "Plant part shown in the image: %s\n", in.PlantPart)
	if in.ImageHint != "" {
		fmt.Fprintf(&b, "Image: %s\n", in.ImageHint)
	}
	b.WriteString("\nFarmer said:\n")
	fmt.Fprintf(&b, "\"\"\"%s\"\"\"\n\n", in.FarmerText)
	b.WriteString(`Your job:
1. Identify the most likely issue: disease, pest, nutrient deficiency, water stress, or other.
2. Consider humidity, rain, temperature from the weather context (fungal risk, heat stress, spray wash-off).
3. Give simple next steps in short, clear sentences.
4. Start with low-risk actions (remove damaged leaves, adjust watering, improve airflow).
5. If you mention chemicals, say they must confirm with a local agronomist first.
6. If you are unsure, clearly say you are not fully sure and tell them to take a sample to an agronomist.

Return plain text, farmer-friendly language.`)
	return b.String()
}
