package weather

import (
	"strings"
	"time"
)

// Risk thresholds. Rain applies to either window.
const (
	FungalHumidityPct = 80.0
	HeatStressC       = 32.0
	ColdStressC       = 10.0
	WetRainMm         = 0.1
)

const (
	RiskFungal = "High humidity can increase fungal disease risk."
	RiskHeat   = "High heat can stress plants and burn leaves if sprayed mid-day."
	RiskCold   = "Low temperature can slow growth and nutrient uptake."
	RiskWet    = "Wet conditions: recent or upcoming rain keeps leaves wet and may wash off sprays."
)

const (
	SummaryNoData      = "No live weather data. Assume normal humidity and typical temperature."
	SummaryUnavailable = "Weather service unavailable. Assume normal humidity and temperature."
	SummaryNoRisk      = "No major immediate stress indicators from weather."
)

// Snapshot is one weather reading for a rounded location. A nil field means
// the value is unknown and must not be read as zero.
type Snapshot struct {
	Humidity       *float64  `json:"humidity"`
	TemperatureC   *float64  `json:"temperature_c"`
	RainLastHourMm *float64  `json:"rain_last_hour_mm"`
	RainNextHourMm *float64  `json:"rain_next_hour_mm"`
	Summary        string    `json:"summary"`
	Available      bool      `json:"available"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// Unavailable is returned when every fetch attempt failed.
func Unavailable() Snapshot {
	return Snapshot{Summary: SummaryUnavailable}
}

// NoData is returned when no weather provider is configured.
func NoData() Snapshot {
	return Snapshot{Summary: SummaryNoData}
}

// ScoreRisk evaluates fixed thresholds and returns the triggered messages
// in a fixed order: fungal, heat, cold, wet. Nil fields never trigger.
func ScoreRisk(s Snapshot) []string {
	var out []string
	if s.Humidity != nil && *s.Humidity >= FungalHumidityPct {
		out = append(out, RiskFungal)
	}
	if s.TemperatureC != nil && *s.TemperatureC >= HeatStressC {
		out = append(out, RiskHeat)
	}
	if s.TemperatureC != nil && *s.TemperatureC <= ColdStressC {
		out = append(out, RiskCold)
	}
	if atLeast(s.RainLastHourMm, WetRainMm) || atLeast(s.RainNextHourMm, WetRainMm) {
		out = append(out, RiskWet)
	}
	return out
}

// Summarize renders a one-line weather context for prompts.
func Summarize(s Snapshot) string {
	if !s.Available {
		if s.Summary != "" {
			return s.Summary
		}
		return SummaryUnavailable
	}
	risks := ScoreRisk(s)
	if len(risks) == 0 {
		return SummaryNoRisk
	}
	return strings.Join(risks, " ")
}

func atLeast(v *float64, threshold float64) bool {
	return v != nil && *v >= threshold
}

// Float returns a pointer to v, for building snapshots.
func Float(v float64) *float64 { return &v }
