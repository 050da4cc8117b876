// Package classify maps free-text farmer descriptions to a crop label and a
// plant part label using scored keyword matching.
//
// A label's score is the number of its distinct keywords found anywhere in
// the lower-cased text. The strictly highest score wins; equal scores go to
// the label that comes first in the priority order. No match yields the
// default label.
package classify

import "strings"

// Result is the outcome of classifying one description.
type Result struct {
	Crop       Crop      `json:"crop"`
	PlantPart  PlantPart `json:"plant_part"`
	CropScore  int       `json:"crop_score"`
	PartScore  int       `json:"part_score"`
	Confidence float64   `json:"confidence"`
}

// Classifier holds keyword tables ordered by tie-break priority.
type Classifier struct {
	crops []Rule[Crop]
	parts []Rule[PlantPart]
}

// Option adjusts a Classifier.
type Option func(*Classifier)

// WithCropPriority moves the given crops to the front of the tie-break order,
// in the order given. Crops not listed keep their relative order after them.
func WithCropPriority(order ...Crop) Option {
	return func(c *Classifier) { c.crops = reorder(c.crops, order) }
}

// WithPartPriority is WithCropPriority for plant parts.
func WithPartPriority(order ...PlantPart) Option {
	return func(c *Classifier) { c.parts = reorder(c.parts, order) }
}

func New(opts ...Option) *Classifier {
	c := &Classifier{crops: cropRules, parts: partRules}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultClassifier = New()

// ClassifyCrop uses the declaration-order classifier.
func ClassifyCrop(text string) (Crop, int) { return defaultClassifier.ClassifyCrop(text) }

// ClassifyPlantPart uses the declaration-order classifier.
func ClassifyPlantPart(text string) (PlantPart, int) {
	return defaultClassifier.ClassifyPlantPart(text)
}

// Classify uses the declaration-order classifier.
func Classify(text string) Result { return defaultClassifier.Classify(text) }

func (c *Classifier) ClassifyCrop(text string) (Crop, int) {
	label, score, _ := best(text, c.crops, DefaultCrop)
	return label, score
}

func (c *Classifier) ClassifyPlantPart(text string) (PlantPart, int) {
	label, score, _ := best(text, c.parts, DefaultPart)
	return label, score
}

func (c *Classifier) Classify(text string) Result {
	crop, cropScore, cropTotal := best(text, c.crops, DefaultCrop)
	part, partScore, partTotal := best(text, c.parts, DefaultPart)
	return Result{
		Crop:       crop,
		PlantPart:  part,
		CropScore:  cropScore,
		PartScore:  partScore,
		Confidence: (ratio(cropScore, cropTotal) + ratio(partScore, partTotal)) / 2,
	}
}

// CropPriority reports the effective crop tie-break order.
func (c *Classifier) CropPriority() []Crop {
	out := make([]Crop, 0, len(c.crops))
	for _, r := range c.crops {
		out = append(out, r.Label)
	}
	return out
}

// PartPriority reports the effective plant part tie-break order.
func (c *Classifier) PartPriority() []PlantPart {
	out := make([]PlantPart, 0, len(c.parts))
	for _, r := range c.parts {
		out = append(out, r.Label)
	}
	return out
}

// best returns the winning label, its score and the sum of all scores.
func best[L ~string](text string, rules []Rule[L], def L) (L, int, int) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return def, 0, 0
	}
	winner, top, total := def, 0, 0
	for _, r := range rules {
		score := 0
		for _, kw := range r.Keywords {
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		total += score
		// strict > keeps the earlier rule on ties
		if score > top {
			winner, top = r.Label, score
		}
	}
	return winner, top, total
}

func reorder[L ~string](rules []Rule[L], order []L) []Rule[L] {
	out := make([]Rule[L], 0, len(rules))
	used := make(map[L]bool, len(order))
	for _, label := range order {
		if used[label] {
			continue
		}
		for _, r := range rules {
			if r.Label == label {
				out = append(out, r)
				used[label] = true
				break
			}
		}
	}
	for _, r := range rules {
		if !used[r.Label] {
			out = append(out, r)
		}
	}
	return out
}

func ratio(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(score) / float64(total)
}
