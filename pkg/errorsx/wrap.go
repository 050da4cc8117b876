package errorsx

import (
	"errors"
	"fmt"
	"strings"
)

// ReasonedError tags a provider or tier failure with a ReasonCode. The
// first reason attached to an error chain is the one that sticks.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Reason)
}

func (e ReasonedError) Unwrap() error { return e.Err }

// Wrap attaches reason to err unless err is nil or already carries one.
func Wrap(err error, reason ReasonCode) error {
	if err == nil || Reason(err) != ReasonUnknown {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Errorf formats a message and tags it with reason.
func Errorf(reason ReasonCode, format string, args ...any) error {
	return Wrap(fmt.Errorf(format, args...), reason)
}

func New(reason ReasonCode) error { return ReasonedError{Reason: reason} }

// Reason returns the code attached to err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var re ReasonedError
	if err == nil || !errors.As(err, &re) || re.Reason == "" {
		return ReasonUnknown
	}
	return re.Reason
}

func HasReason(err error, reason ReasonCode) bool { return Reason(err) == reason }

// Stage is the pipeline stage a reason belongs to: "stt", "llm", "tts",
// "weather", "notify", or "" for generic reasons.
func (r ReasonCode) Stage() string {
	stage, _, ok := strings.Cut(string(r), "_")
	if !ok {
		return ""
	}
	switch stage {
	case "stt", "llm", "tts", "weather", "notify":
		return stage
	}
	return ""
}

// NotConfigured reports whether the failure comes from a provider with no
// credentials or endpoint rather than from a call that went wrong.
func (r ReasonCode) NotConfigured() bool {
	return strings.HasSuffix(string(r), "_not_configured")
}
