package classification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/service/extract"
)

type fakeClassifier struct {
	available bool
	prompts   []string
}

func (f *fakeClassifier) Available() bool { return f.available }

func (f *fakeClassifier) Classify(ctx context.Context, prompt string) (*domain.ClassificationResult, error) {
	f.prompts = append(f.prompts, prompt)
	switch {
	case strings.Contains(prompt, "#malformed#"):
		return nil, domain.ErrMalformedResponse
	case strings.Contains(prompt, "#blocked#"):
		return nil, domain.ErrContentBlocked
	case strings.Contains(prompt, "#boom#"):
		return nil, errors.New("socket closed")
	}
	return &domain.ClassificationResult{
		Classification:    domain.CategoryProductive,
		ConfidenceScore:   0.9,
		KeyTopic:          "Request",
		Sentiment:         domain.SentimentNeutral,
		SuggestedResponse: "On it.",
	}, nil
}

type memoryHistory struct {
	mu      sync.Mutex
	records []*domain.HistoryRecord
	failAll bool
}

func (m *memoryHistory) EnsureSchema(ctx context.Context) error { return nil }

func (m *memoryHistory) Insert(ctx context.Context, rec *domain.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("disk full")
	}
	rec.ID = int64(len(m.records) + 1)
	rec.CreatedAt = time.Now().UTC()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryHistory) ListRecent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error) {
	return nil, nil
}

func (m *memoryHistory) ListAll(ctx context.Context) ([]*domain.HistoryRecord, error) {
	return m.records, nil
}

func (m *memoryHistory) Ping(ctx context.Context) error { return nil }

func fakePDF(data []byte) (string, error) {
	if string(data) == "corrupt" {
		return "", errors.New("bad xref")
	}
	return string(data), nil
}

func newTestService(history *memoryHistory) (*Service, *fakeClassifier) {
	clf := &fakeClassifier{available: true}
	return NewService(extract.NewExtractorWithPDF(fakePDF), clf, history), clf
}

func TestClassifyBatchModelUnavailable(t *testing.T) {
	svc := NewService(nil, &fakeClassifier{available: false}, &memoryHistory{})

	inputs := []in.BatchInput{
		{},
		{PastedText: "Please review the contract."},
	}
	for _, input := range inputs {
		if _, err := svc.ClassifyBatch(context.Background(), input); !errors.Is(err, domain.ErrModelUnavailable) {
			t.Errorf("expected ErrModelUnavailable, got %v", err)
		}
	}
}

func TestClassifyBatchNoContent(t *testing.T) {
	svc, clf := newTestService(&memoryHistory{})

	tests := []struct {
		name  string
		input in.BatchInput
	}{
		{name: "nothing submitted", input: in.BatchInput{}},
		{name: "whitespace text", input: in.BatchInput{PastedText: "  \n\t "}},
		{
			name: "only skipped files",
			input: in.BatchInput{Files: []in.UploadedFile{
				{Filename: "image.png", Data: []byte{1, 2, 3}},
				{Filename: "empty.txt", Data: []byte("   ")},
				{Filename: "", Data: []byte("no name")},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ClassifyBatch(context.Background(), tt.input); !errors.Is(err, domain.ErrNoContent) {
				t.Errorf("expected ErrNoContent, got %v", err)
			}
		})
	}
	if len(clf.prompts) != 0 {
		t.Errorf("model should not be called, got %d calls", len(clf.prompts))
	}
}

func TestClassifyBatchOrderAndErrors(t *testing.T) {
	history := &memoryHistory{}
	svc, clf := newTestService(history)

	input := in.BatchInput{
		PastedText: "  Can you send the Q3 report?  ",
		Files: []in.UploadedFile{
			{Filename: "a.txt", Data: []byte("first file")},
			{Filename: "skip.docx", Data: []byte("ignored")},
			{Filename: "bad.txt", Data: []byte{0xff, 0xfe}},
			{Filename: "scan.PDF", Data: []byte("corrupt")},
			{Filename: "odd.txt", Data: []byte("#malformed#")},
			{Filename: "unsafe.txt", Data: []byte("#blocked#")},
			{Filename: "crash.txt", Data: []byte("#boom#")},
			{Filename: "b.pdf", Data: []byte("second file")},
		},
	}

	results, err := svc.ClassifyBatch(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		source   string
		errorHas string
	}{
		{source: domain.PastedTextSource},
		{source: "a.txt"},
		{errorHas: "bad.txt"},
		{errorHas: "scan.PDF"},
		{errorHas: "odd.txt"},
		{errorHas: "unsafe.txt"},
		{errorHas: "crash.txt"},
		{source: "b.pdf"},
	}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}

	for i, w := range want {
		r := results[i]
		if w.errorHas != "" {
			if !r.Failed() || !strings.Contains(r.Error, w.errorHas) {
				t.Errorf("result %d: expected error naming %q, got %+v", i, w.errorHas, r)
			}
			continue
		}
		if r.Failed() {
			t.Errorf("result %d: unexpected error %q", i, r.Error)
		}
		if r.SourceFilename != w.source {
			t.Errorf("result %d: expected source %q, got %q", i, w.source, r.SourceFilename)
		}
	}

	if !strings.Contains(clf.prompts[0], "Can you send the Q3 report?") {
		t.Error("pasted text should be classified first")
	}

	if len(history.records) != 3 {
		t.Fatalf("expected 3 persisted records, got %d", len(history.records))
	}
	if history.records[0].EmailContent != "Can you send the Q3 report?" {
		t.Errorf("expected trimmed content persisted, got %q", history.records[0].EmailContent)
	}
	if history.records[2].EmailContent != "second file" {
		t.Errorf("expected pdf text persisted, got %q", history.records[2].EmailContent)
	}
}

func TestClassifyBatchPersistenceFailureKeepsResult(t *testing.T) {
	svc, _ := newTestService(&memoryHistory{failAll: true})

	results, err := svc.ClassifyBatch(context.Background(), in.BatchInput{PastedText: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Failed() {
		t.Fatalf("expected one successful result, got %+v", results)
	}
	if results[0].Classification != domain.CategoryProductive {
		t.Errorf("expected Productive, got %q", results[0].Classification)
	}
}

func TestClassifyBatchWithoutStore(t *testing.T) {
	svc := NewService(nil, &fakeClassifier{available: true}, nil)

	results, err := svc.ClassifyBatch(context.Background(), in.BatchInput{PastedText: "hello"})
	if err != nil || len(results) != 1 {
		t.Fatalf("expected one result, got %v, %v", results, err)
	}
}
