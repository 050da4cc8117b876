package errorsx

import (
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonLLMGenerate)
	if Reason(err) != ReasonLLMGenerate {
		t.Fatalf("expected reason %s, got %s", ReasonLLMGenerate, Reason(err))
	}
	if !HasReason(err, ReasonLLMGenerate) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonSTTTranscribe)
	second := Wrap(first, ReasonLLMGenerate)
	if Reason(second) != ReasonSTTTranscribe {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestReasonSurvivesFmtWrap(t *testing.T) {
	err := fmt.Errorf("weather: %w", Wrap(assertErr{}, ReasonWeatherFetch))
	if Reason(err) != ReasonWeatherFetch {
		t.Fatalf("expected reason through fmt wrap, got %s", Reason(err))
	}
}

func TestNewCarriesReasonWithoutCause(t *testing.T) {
	err := New(ReasonEmptyResult)
	if err.Error() != string(ReasonEmptyResult) {
		t.Fatalf("expected message %q, got %q", ReasonEmptyResult, err.Error())
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil")
	}
}

func TestErrorfAndStage(t *testing.T) {
	err := Errorf(ReasonTTSConnect, "piper %s: %w", "localhost:10200", assertErr{})
	if err.Error() != "piper localhost:10200: boom" || Reason(err) != ReasonTTSConnect {
		t.Fatalf("unexpected error %q / %s", err, Reason(err))
	}
	cases := map[ReasonCode]string{
		ReasonTTSConnect:           "tts",
		ReasonWeatherNotConfigured: "weather",
		ReasonEmptyResult:          "",
		ReasonUnknown:              "",
	}
	for reason, want := range cases {
		if got := reason.Stage(); got != want {
			t.Fatalf("%s: stage %q, want %q", reason, got, want)
		}
	}
	if !ReasonLLMNotConfigured.NotConfigured() || ReasonLLMGenerate.NotConfigured() {
		t.Fatalf("NotConfigured misclassified")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
