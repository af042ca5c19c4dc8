package domain

import (
	"strings"

	"github.com/goccy/go-json"
)

// Category is the triage label assigned to an email.
type Category string

const (
	CategoryProductive   Category = "Productive"   // needs an action or a reply
	CategoryUnproductive Category = "Unproductive" // no action needed
	CategoryUnknown      Category = "Unknown"      // model omitted or garbled the label
)

// Sentiment is the overall tone of an email.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentUnset    Sentiment = "N/A"
)

// Defaults applied when the model leaves a field out.
const (
	DefaultKeyTopic          = "N/A"
	DefaultSuggestedResponse = "Nenhuma resposta"
	PastedTextSource         = "Pasted Text"
)

var categoryAliases = map[string]Category{
	"productive":   CategoryProductive,
	"produtivo":    CategoryProductive,
	"unproductive": CategoryUnproductive,
	"improdutivo":  CategoryUnproductive,
}

var sentimentAliases = map[string]Sentiment{
	"positive": SentimentPositive,
	"positivo": SentimentPositive,
	"negative": SentimentNegative,
	"negativo": SentimentNegative,
	"neutral":  SentimentNeutral,
	"neutro":   SentimentNeutral,
}

// ParseCategory maps a free-form model label onto a Category.
func ParseCategory(s string) Category {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return CategoryUnknown
}

// ParseSentiment maps a free-form model label onto a Sentiment.
func ParseSentiment(s string) Sentiment {
	if v, ok := sentimentAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v
	}
	return SentimentUnset
}

// ClassificationResult is the outcome for one item of a batch.
// When Error is set the item failed and only the error is reported.
type ClassificationResult struct {
	Classification    Category  `json:"classification"`
	ConfidenceScore   float64   `json:"confidence_score"`
	KeyTopic          string    `json:"key_topic"`
	Sentiment         Sentiment `json:"sentiment"`
	SuggestedResponse string    `json:"suggested_response"`
	SourceFilename    string    `json:"source_filename"`
	Error             string    `json:"error,omitempty"`
}

// FailedResult builds an error-tagged result.
func FailedResult(message string) ClassificationResult {
	return ClassificationResult{Error: message}
}

// Failed reports whether the item carries an error.
func (r ClassificationResult) Failed() bool {
	return r.Error != ""
}

type classificationResultAlias ClassificationResult

// MarshalJSON emits only the error field for failed items.
func (r ClassificationResult) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: r.Error})
	}
	return json.Marshal(classificationResultAlias(r))
}

// ToRecord converts a successful result into its persisted form.
func (r ClassificationResult) ToRecord(emailContent string) *HistoryRecord {
	return &HistoryRecord{
		Classification:    r.Classification,
		ConfidenceScore:   r.ConfidenceScore,
		KeyTopic:          r.KeyTopic,
		Sentiment:         r.Sentiment,
		SuggestedResponse: r.SuggestedResponse,
		EmailContent:      emailContent,
	}
}
