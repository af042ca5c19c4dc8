// Package classification runs classify requests: extraction, the model call
// and persistence, one item at a time.
package classification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"triage_server/core/agent/llm"
	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/extract"
	"triage_server/pkg/logger"
)

// Classifier is the model-facing side of the service.
type Classifier interface {
	Available() bool
	Classify(ctx context.Context, prompt string) (*domain.ClassificationResult, error)
}

// Service implements in.ClassifyService.
type Service struct {
	extractor   *extract.Extractor
	classifier  Classifier
	history     out.HistoryRepository
	saveTimeout time.Duration
}

// NewService wires the orchestrator. history may be nil, in which case
// results are returned without being stored.
func NewService(extractor *extract.Extractor, classifier Classifier, history out.HistoryRepository) *Service {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	return &Service{
		extractor:   extractor,
		classifier:  classifier,
		history:     history,
		saveTimeout: 5 * time.Second,
	}
}

var _ in.ClassifyService = (*Service)(nil)

func (s *Service) ModelAvailable() bool {
	return s.classifier != nil && s.classifier.Available()
}

// workItem is either extracted content ready for the model or a
// pre-computed error result.
type workItem struct {
	source  string
	content string
	failure string
}

// ClassifyBatch classifies the pasted text and every usable file in order.
// The returned slice is aligned with the work list; failed items carry an
// error message naming their source.
func (s *Service) ClassifyBatch(ctx context.Context, input in.BatchInput) ([]domain.ClassificationResult, error) {
	if !s.ModelAvailable() {
		return nil, domain.ErrModelUnavailable
	}

	items, err := s.buildWorkList(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNoContent
	}

	log := logger.WithContext(ctx)
	start := time.Now()
	results := make([]domain.ClassificationResult, 0, len(items))

	for _, item := range items {
		if item.failure != "" {
			results = append(results, domain.FailedResult(item.failure))
			continue
		}
		results = append(results, s.classifyOne(ctx, item))
	}

	log.WithFields(map[string]any{
		"items":  len(results),
		"failed": countFailed(results),
	}).WithDuration(time.Since(start)).Info("batch classified")

	return results, nil
}

func (s *Service) buildWorkList(ctx context.Context, input in.BatchInput) ([]workItem, error) {
	log := logger.WithContext(ctx)
	var items []workItem

	if text := strings.TrimSpace(input.PastedText); text != "" {
		items = append(items, workItem{source: domain.PastedTextSource, content: text})
	}

	for _, f := range input.Files {
		if f.Filename == "" {
			continue
		}

		content, err := s.extractor.Extract(ctx, extract.File(f.Filename, f.Data))
		switch {
		case err == nil && content == "":
			log.WithField("filename", f.Filename).Debug("skipping file with no text")
		case err == nil:
			items = append(items, workItem{source: f.Filename, content: content})
		case errors.Is(err, extract.ErrUnsupported):
			log.WithField("filename", f.Filename).Debug("skipping unsupported file type")
		case errors.Is(err, domain.ErrDecode):
			log.WithError(err).Warn("text file decode failed")
			items = append(items, workItem{source: f.Filename, failure: "Failed to decode .txt file: " + f.Filename})
		case errors.Is(err, domain.ErrPDFProcessing):
			log.WithError(err).Warn("pdf extraction failed")
			items = append(items, workItem{source: f.Filename, failure: "Failed to process PDF: " + f.Filename})
		default:
			return nil, err
		}
	}

	return items, nil
}

func (s *Service) classifyOne(ctx context.Context, item workItem) domain.ClassificationResult {
	log := logger.WithContext(ctx).WithField("source", item.source)

	result, err := s.classifier.Classify(ctx, llm.BuildPrompt(item.content))
	if err != nil {
		log.WithError(err).Warn("classification failed")
		return domain.FailedResult(failureMessage(err, item.source))
	}

	result.SourceFilename = item.source
	s.save(ctx, result, item.content)
	return *result
}

// save persists a successful result. Failures are logged and swallowed.
func (s *Service) save(ctx context.Context, result *domain.ClassificationResult, content string) {
	if s.history == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()

	rec := result.ToRecord(content)
	if err := s.history.Insert(saveCtx, rec); err != nil {
		logger.WithContext(ctx).WithError(err).Error("failed to save classification history")
		return
	}
	logger.WithContext(ctx).WithField("history_id", rec.ID).Debug("classification saved")
}

func failureMessage(err error, source string) string {
	switch {
	case errors.Is(err, domain.ErrMalformedResponse):
		return fmt.Sprintf("The model response was not valid JSON for: %s", source)
	case errors.Is(err, domain.ErrContentBlocked):
		return fmt.Sprintf("The model stopped generation for safety or content reasons: %s", source)
	default:
		return fmt.Sprintf("An unexpected server error occurred for: %s", source)
	}
}

func countFailed(results []domain.ClassificationResult) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}
