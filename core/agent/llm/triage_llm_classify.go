package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
)

const DefaultTimeout = 60 * time.Second

// ClassifierConfig tunes the classification client.
type ClassifierConfig struct {
	Timeout time.Duration
	Metrics *metrics.ModelMetrics
}

// Classifier sends prompts to a TextGenerator and parses the JSON verdict.
// A Classifier without a generator is valid and reports itself unavailable.
type Classifier struct {
	gen     out.TextGenerator
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics *metrics.ModelMetrics
}

// NewClassifier wraps gen; gen may be nil when no model is configured.
func NewClassifier(gen out.TextGenerator, cfg ClassifierConfig) *Classifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	name := "model"
	if gen != nil {
		name = gen.Name()
	}

	cbSettings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		// a safety stop is a verdict about the content, not a backend failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrContentBlocked)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("model circuit breaker changed state")
		},
	}

	return &Classifier{
		gen:     gen,
		cb:      gobreaker.NewCircuitBreaker(cbSettings),
		timeout: timeout,
		metrics: cfg.Metrics,
	}
}

// Available reports whether a model backend is configured.
func (c *Classifier) Available() bool {
	return c != nil && c.gen != nil
}

// Backend returns the configured backend name, or "" when unavailable.
func (c *Classifier) Backend() string {
	if !c.Available() {
		return ""
	}
	return c.gen.Name()
}

// Classify sends prompt to the model and parses its reply.
func (c *Classifier) Classify(ctx context.Context, prompt string) (*domain.ClassificationResult, error) {
	if !c.Available() {
		return nil, domain.ErrModelUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.cb.Execute(func() (interface{}, error) {
		return c.gen.Generate(ctx, prompt)
	})
	if err != nil {
		c.observe("error", start, err)
		if errors.Is(err, domain.ErrContentBlocked) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnexpectedClient, err)
	}

	text, _ := raw.(string)
	result, err := ParseClassification(text)
	if err != nil {
		c.observe("malformed", start, nil)
		logger.WithContext(ctx).WithField("response", truncate(text, 500)).Warn("model reply is not valid JSON")
		return nil, err
	}

	c.observe("success", start, nil)
	return result, nil
}

func (c *Classifier) observe(outcome string, start time.Time, err error) {
	if errors.Is(err, domain.ErrContentBlocked) {
		outcome = "blocked"
	}
	if c.metrics != nil {
		c.metrics.Observe(c.gen.Name(), outcome, time.Since(start))
	}
}

// CleanResponse trims whitespace and surrounding markdown code fences.
func CleanResponse(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			// drop the fence language tag, e.g. ```json
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseClassification parses a model reply into a result with defaults applied.
func ParseClassification(raw string) (*domain.ClassificationResult, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(CleanResponse(raw)), &fields); err != nil || fields == nil {
		return nil, domain.ErrMalformedResponse
	}

	return &domain.ClassificationResult{
		Classification:    domain.ParseCategory(stringField(fields, "classification", "")),
		ConfidenceScore:   coerceConfidence(fields["confidence_score"]),
		KeyTopic:          stringField(fields, "key_topic", domain.DefaultKeyTopic),
		Sentiment:         domain.ParseSentiment(stringField(fields, "sentiment", "")),
		SuggestedResponse: stringField(fields, "suggested_response", domain.DefaultSuggestedResponse),
	}, nil
}

func stringField(fields map[string]any, key, def string) string {
	switch v := fields[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return def
}

// coerceConfidence accepts numbers and numeric strings; anything else is 0.
func coerceConfidence(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Min(1, math.Max(0, f))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
