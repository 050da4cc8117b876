package mock

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/harunnryd/agronomist/pkg/adapters/stt"
	"github.com/harunnryd/agronomist/pkg/audio"
	"github.com/harunnryd/agronomist/pkg/llm"
)

func prompt(farmer string) llm.Context {
	return llm.Prompt("", "Crop: tomato\nFarmer said:\n\"\"\""+farmer+"\"\"\"")
}

func TestLLMAdapterCategories(t *testing.T) {
	cases := []struct {
		farmer string
		want   []string
	}{
		{"Soil is very dry, plants wilting.", []string{"water stress", "water deeply"}},
		{"I see brown spots on leaves.", []string{"fungal", "remove"}},
		{"There are holes and caterpillars.", []string{"pest", "handpick"}},
		{"Leaves are yellowing.", []string{"nitrogen", "fertilizer"}},
		{"Plant looks strange.", []string{"based on", "strange"}},
	}
	a := NewLLMAdapter()
	for _, tc := range cases {
		resp, err := a.Generate(context.Background(), prompt(tc.farmer))
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.farmer, err)
		}
		lower := strings.ToLower(resp.Text)
		for _, w := range tc.want {
			if !strings.Contains(lower, w) {
				t.Fatalf("%q: expected %q in %q", tc.farmer, w, resp.Text)
			}
		}
		if !strings.Contains(lower, "extension officer") {
			t.Fatalf("%q: expected extension nudge", tc.farmer)
		}
	}
}

func TestLLMAdapterEmptyPrompt(t *testing.T) {
	if _, err := NewLLMAdapter().Generate(context.Background(), llm.Prompt("", "  ")); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
}

func TestLLMAdapterUsesCropFromPrompt(t *testing.T) {
	resp, _ := NewLLMAdapter().Generate(context.Background(), prompt("brown spots"))
	if !strings.Contains(resp.Text, "tomato") {
		t.Fatalf("expected crop in answer: %q", resp.Text)
	}
}

func TestFarmerText(t *testing.T) {
	if got := FarmerText("a\n\"\"\"hello there\"\"\"\nb"); got != "hello there" {
		t.Fatalf("unexpected farmer text %q", got)
	}
	if got := FarmerText("  plain  "); got != "plain" {
		t.Fatalf("unexpected farmer text %q", got)
	}
}

func TestTranscriberPicksExample(t *testing.T) {
	tr := NewTranscriber(WithRand(rand.New(rand.NewSource(1))))
	for i := 0; i < 10; i++ {
		text, err := tr.Transcribe(context.Background(), stt.Audio{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		found := false
		for _, ex := range Examples {
			if ex == text {
				found = true
			}
		}
		if !found {
			t.Fatalf("unexpected transcript %q", text)
		}
	}
}

func TestSynthesizerProducesSilentWAV(t *testing.T) {
	out, err := NewSynthesizer().Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, err := audio.ReadFormat(out.Data)
	if err != nil {
		t.Fatalf("invalid wav: %v", err)
	}
	if f.SampleRate != 16000 || out.Ext != ".wav" {
		t.Fatalf("unexpected format %+v", f)
	}
}
