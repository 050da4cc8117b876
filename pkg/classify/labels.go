package classify

import (
	"fmt"
	"strings"
)

// Crop is a detected crop label.
type Crop string

const (
	CropTomato  Crop = "tomato"
	CropCorn    Crop = "corn"
	CropCotton  Crop = "cotton"
	CropWheat   Crop = "wheat"
	CropRice    Crop = "rice"
	CropPotato  Crop = "potato"
	CropCabbage Crop = "cabbage"
	CropPepper  Crop = "pepper"
	CropOther   Crop = "other"
)

// PlantPart is a detected plant part label.
type PlantPart string

const (
	PartLeaf   PlantPart = "leaf"
	PartStem   PlantPart = "stem"
	PartFruit  PlantPart = "fruit"
	PartSoil   PlantPart = "soil"
	PartInsect PlantPart = "insect/pest"
)

const (
	DefaultCrop = CropOther
	DefaultPart = PartLeaf
)

// Rule binds a label to its trigger keywords. Keywords are lower case.
type Rule[L ~string] struct {
	Label    L
	Keywords []string
}

// Declaration order is the default tie-break priority.
var cropRules = []Rule[Crop]{
	{CropTomato, []string{"tomato", "tomatoes", "solanum", "nightshade"}},
	{CropCorn, []string{"corn", "maize", "zea mays", "grain", "stalk"}},
	{CropCotton, []string{"cotton", "gossypium", "boll", "fiber"}},
	{CropWheat, []string{"wheat", "grain", "triticum", "cereal"}},
	{CropRice, []string{"rice", "paddy", "oryza", "grain"}},
	{CropPotato, []string{"potato", "spud", "solanum tuberosum", "tuber"}},
	{CropCabbage, []string{"cabbage", "brassica", "cruciferous", "leafy"}},
	{CropPepper, []string{"pepper", "capsicum", "chili", "bell"}},
}

var partRules = []Rule[PlantPart]{
	{PartLeaf, []string{"leaf", "leaves", "foliage", "canopy", "yellowing", "spots", "discoloration", "necrosis"}},
	{PartStem, []string{"stem", "stalk", "branch", "trunk", "bark", "girdling", "lesion"}},
	{PartFruit, []string{"fruit", "pod", "boll", "ear", "head", "grain", "rot", "crack", "deform"}},
	{PartSoil, []string{"soil", "root", "ground", "earth", "wilting", "wilt", "moisture", "dry"}},
	{PartInsect, []string{"insect", "pest", "bug", "worm", "beetle", "aphid", "caterpillar", "hole", "webbing", "egg"}},
}

// Crops lists the known crop labels in declaration order.
func Crops() []Crop {
	out := make([]Crop, 0, len(cropRules))
	for _, r := range cropRules {
		out = append(out, r.Label)
	}
	return out
}

// PlantParts lists the known plant part labels in declaration order.
func PlantParts() []PlantPart {
	out := make([]PlantPart, 0, len(partRules))
	for _, r := range partRules {
		out = append(out, r.Label)
	}
	return out
}

// ParseCrop maps a configured name to a crop label.
func ParseCrop(s string) (Crop, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == string(CropOther) {
		return CropOther, nil
	}
	for _, r := range cropRules {
		if string(r.Label) == s {
			return r.Label, nil
		}
	}
	return "", fmt.Errorf("unknown crop %q", s)
}

// ParsePlantPart maps a configured name to a plant part label. "insect" and
// "pest" are accepted for insect/pest.
func ParsePlantPart(s string) (PlantPart, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "insect" || s == "pest" {
		return PartInsect, nil
	}
	for _, r := range partRules {
		if string(r.Label) == s {
			return r.Label, nil
		}
	}
	return "", fmt.Errorf("unknown plant part %q", s)
}

// Title renders a label for display, e.g. "Tomato".
func (c Crop) Title() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}
