package redact

import "testing"

func TestText(t *testing.T) {
	in := "Tomato leaves curling, farm at 35.51234, -80.04321, call +62 812 3456 7890 or mail ana@farm.co"

	SetEnabled(false)
	if got := Text(in); got != in {
		t.Fatalf("disabled redaction changed text: %q", got)
	}

	SetEnabled(true)
	defer SetEnabled(false)
	want := "Tomato leaves curling, farm at [location], call [phone] or mail [email]"
	if got := Text(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := Text("yellowing after 3 days of rain"); got != "yellowing after 3 days of rain" {
		t.Fatalf("plain symptom text must survive, got %q", got)
	}
}
