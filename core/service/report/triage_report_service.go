// Package report builds read-only views over the classification history.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
	snippetLength       = 150

	dashboardLoadTimeout = 30 * time.Second
)

var csvHeader = []string{
	"id", "created_at", "classification", "confidence_score",
	"key_topic", "sentiment", "suggested_response", "email_content",
}

type Service struct {
	history  out.HistoryRepository
	location *time.Location
	flight   singleflight.Group
}

// NewService creates the report service. Dashboard dates are bucketed in loc;
// a nil loc means UTC.
func NewService(history out.HistoryRepository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{history: history, location: loc}
}

var _ in.ReportService = (*Service)(nil)

// History returns the most recent records, newest first, as list entries.
func (s *Service) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	limit = ClampLimit(limit)

	s.ensureSchema(ctx)
	records, err := s.history.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	entries := make([]domain.HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, domain.HistoryEntry{
			ID:                rec.ID,
			Classification:    rec.Classification,
			Sentiment:         rec.Sentiment,
			CreatedAt:         rec.CreatedAt,
			EmailSnippet:      Snippet(rec.EmailContent),
			EmailContent:      rec.EmailContent,
			SuggestedResponse: rec.SuggestedResponse,
		})
	}
	return entries, nil
}

// Dashboard aggregates every record into per-day sentiment and
// classification counts. Concurrent callers share one aggregation, which runs
// detached from any single caller's cancellation.
func (s *Service) Dashboard(ctx context.Context) (*domain.DashboardData, error) {
	v, err, shared := s.flight.Do("dashboard", func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dashboardLoadTimeout)
		defer cancel()

		s.ensureSchema(loadCtx)
		records, err := s.history.ListAll(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to list history: %w", err)
		}
		return Aggregate(records, s.location), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.WithContext(ctx).Debug("dashboard aggregation shared")
	}
	return v.(*domain.DashboardData), nil
}

// ExportCSV writes every record, oldest first, as CSV to w.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer) error {
	s.ensureSchema(ctx)
	records, err := s.history.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			string(rec.Classification),
			strconv.FormatFloat(rec.ConfidenceScore, 'f', -1, 64),
			rec.KeyTopic,
			string(rec.Sentiment),
			rec.SuggestedResponse,
			rec.EmailContent,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", rec.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) ensureSchema(ctx context.Context) {
	if err := s.history.EnsureSchema(ctx); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("history schema check failed")
	}
}

// Aggregate groups records by calendar date in loc. Records with a zero
// timestamp, unset sentiment or unknown classification are not counted.
func Aggregate(records []*domain.HistoryRecord, loc *time.Location) *domain.DashboardData {
	data := &domain.DashboardData{
		AllData:                 records,
		SentimentsOverTime:      domain.DailyCounts{},
		ClassificationsOverTime: domain.DailyCounts{},
	}
	if data.AllData == nil {
		data.AllData = []*domain.HistoryRecord{}
	}

	for _, rec := range records {
		if rec.CreatedAt.IsZero() {
			continue
		}
		date := rec.CreatedAt.In(loc).Format(time.DateOnly)

		if rec.Sentiment != "" && rec.Sentiment != domain.SentimentUnset {
			data.SentimentsOverTime.Increment(date, string(rec.Sentiment))
		}
		if rec.Classification != "" && rec.Classification != domain.CategoryUnknown {
			data.ClassificationsOverTime.Increment(date, string(rec.Classification))
		}
	}
	return data
}

// Snippet flattens content to one line and cuts it to 150 characters.
func Snippet(content string) string {
	flat := strings.ReplaceAll(strings.TrimSpace(content), "\n", " ")
	runes := []rune(flat)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength]) + "..."
	}
	return flat
}

// ClampLimit applies the default and the upper bound to a history limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
