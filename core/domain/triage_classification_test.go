package domain

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"Productive", CategoryProductive},
		{"  unproductive ", CategoryUnproductive},
		{"Produtivo", CategoryProductive},
		{"Improdutivo", CategoryUnproductive},
		{"", CategoryUnknown},
		{"maybe", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseCategory(tt.in); got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		in   string
		want Sentiment
	}{
		{"Positive", SentimentPositive},
		{"negativo", SentimentNegative},
		{"NEUTRAL", SentimentNeutral},
		{"", SentimentUnset},
		{"angry", SentimentUnset},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseSentiment(tt.in); got != tt.want {
				t.Errorf("ParseSentiment(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFailedResultMarshalsOnlyError(t *testing.T) {
	data, err := json.Marshal(FailedResult("could not decode notes.txt"))
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != `{"error":"could not decode notes.txt"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestSuccessfulResultMarshalsAllFields(t *testing.T) {
	r := ClassificationResult{
		Classification:    CategoryProductive,
		ConfidenceScore:   0.9,
		KeyTopic:          "Invoice",
		Sentiment:         SentimentNeutral,
		SuggestedResponse: "Thanks, we will check.",
		SourceFilename:    PastedTextSource,
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}

	s := string(data)
	for _, want := range []string{`"classification":"Productive"`, `"confidence_score":0.9`, `"source_filename":"Pasted Text"`} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %s in %s", want, s)
		}
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("successful result must not carry an error field: %s", s)
	}
}

func TestDailyCountsIncrement(t *testing.T) {
	d := DailyCounts{}
	d.Increment("2026-10-18", "Positive")
	d.Increment("2026-10-18", "Positive")
	d.Increment("2026-10-19", "Negative")

	if d["2026-10-18"]["Positive"] != 2 {
		t.Errorf("expected 2, got %d", d["2026-10-18"]["Positive"])
	}
	if d["2026-10-19"]["Negative"] != 1 {
		t.Errorf("expected 1, got %d", d["2026-10-19"]["Negative"])
	}
}
