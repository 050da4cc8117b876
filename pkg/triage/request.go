package triage

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/harunnryd/agronomist/pkg/advisory"
	"github.com/harunnryd/agronomist/pkg/classify"
	"github.com/harunnryd/agronomist/pkg/imagemeta"
	"github.com/harunnryd/agronomist/pkg/weather"
)

// Location is where the photographed plot is.
type Location struct {
	Lat float64 `json:"lat" mapstructure:"lat" validate:"latitude"`
	Lon float64 `json:"lon" mapstructure:"lon" validate:"longitude"`
}

// DefaultLocation is used when neither the request nor config sets one.
var DefaultLocation = Location{Lat: 35.5, Lon: -80.0}

// Request is one farmer question. Description wins over Audio when both
// are present.
type Request struct {
	ImagePath   string    `json:"image_path"`
	Description string    `json:"description,omitempty"`
	Audio       []byte    `json:"-"`
	AudioName   string    `json:"audio_name,omitempty"`
	Location    *Location `json:"location,omitempty"`
}

// ErrorCode identifies which input was missing or unusable.
type ErrorCode string

const (
	CodeMissingImage       ErrorCode = "missing_image"
	CodeImageNotFound      ErrorCode = "image_not_found"
	CodeInvalidImage       ErrorCode = "invalid_image"
	CodeMissingDescription ErrorCode = "missing_description"
	CodeAudioNotUnderstood ErrorCode = "audio_not_understood"
	CodeInvalidLocation    ErrorCode = "invalid_location"
)

var userMessages = map[ErrorCode]string{
	CodeMissingImage:       "Please upload a crop image to analyze.",
	CodeImageNotFound:      "The uploaded image could not be found. Please upload it again.",
	CodeInvalidImage:       "The uploaded file is not a photo. Please upload a picture of the affected plant.",
	CodeMissingDescription: "Please describe the problem (text or voice).",
	CodeAudioNotUnderstood: "We could not understand the recording. Please type a short description instead.",
	CodeInvalidLocation:    "The farm location is not valid. Latitude must be between -90 and 90 and longitude between -180 and 180.",
}

// UserError is a plain, farmer-facing validation failure. It is returned
// inside Response, not as a Go error.
type UserError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *UserError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func newUserError(code ErrorCode) *UserError {
	return &UserError{Code: code, Message: userMessages[code]}
}

// Response is everything the farmer sees plus the diagnostics an API
// client may want.
type Response struct {
	RequestID      string              `json:"request_id"`
	Description    string              `json:"description,omitempty"`
	AdvisoryText   string              `json:"advisory_text,omitempty"`
	AudioPath      string              `json:"audio_path,omitempty"`
	DetectedCrop   classify.Crop       `json:"detected_crop,omitempty"`
	DetectedPart   classify.PlantPart  `json:"detected_part,omitempty"`
	Detection      string              `json:"detection,omitempty"`
	Classification classify.Result     `json:"classification"`
	Escalation     advisory.Assessment `json:"escalation"`
	Weather        weather.Snapshot    `json:"weather"`
	WeatherRisks   []string            `json:"weather_risks,omitempty"`
	Image          imagemeta.Info      `json:"image"`
	Tiers          map[string]string   `json:"tiers,omitempty"`
	Notified       bool                `json:"notified,omitempty"`
	Error          *UserError          `json:"error,omitempty"`
}

// OK reports whether the request passed validation.
func (r Response) OK() bool { return r.Error == nil }

// DetectionLine renders "Detected: Tomato - leaf".
func DetectionLine(crop classify.Crop, part classify.PlantPart) string {
	return fmt.Sprintf("Detected: %s - %s", crop.Title(), part)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validLocation(loc Location) bool {
	return validate.Struct(loc) == nil
}
