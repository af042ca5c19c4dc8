package in

import (
	"context"
	"io"

	"triage_server/core/domain"
)

// UploadedFile is one file part of a classify request.
type UploadedFile struct {
	Filename string
	Data     []byte
}

// BatchInput carries everything a single classify request submitted.
type BatchInput struct {
	PastedText string
	Files      []UploadedFile
}

// ClassifyService runs a batch through extraction, the model and the store.
type ClassifyService interface {
	ClassifyBatch(ctx context.Context, input BatchInput) ([]domain.ClassificationResult, error)
	ModelAvailable() bool
}

// ReportService exposes read-only views over stored history.
type ReportService interface {
	History(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
	Dashboard(ctx context.Context) (*domain.DashboardData, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}
