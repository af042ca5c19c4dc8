// Package persistence provides SQL adapters implementing outbound ports.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const DefaultHistoryTable = "classification_history"

// Dialect selects the DDL flavour.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectFor maps a sqlx driver name onto a Dialect.
func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case "pgx", "postgres":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDriver, driverName)
	}
}

// HistoryAdapter implements out.HistoryRepository on Postgres or SQLite.
type HistoryAdapter struct {
	db      *sqlx.DB
	dialect Dialect
	name    string
	table   string // quoted

	schemaMu    sync.Mutex
	schemaReady bool
}

var _ out.HistoryRepository = (*HistoryAdapter)(nil)

// NewHistoryAdapter creates an adapter writing to table (DefaultHistoryTable
// when empty).
func NewHistoryAdapter(db *sqlx.DB, table string) (*HistoryAdapter, error) {
	dialect, err := DialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	if table == "" {
		table = DefaultHistoryTable
	}
	return &HistoryAdapter{
		db:      db,
		dialect: dialect,
		name:    table,
		table:   pq.QuoteIdentifier(table),
	}, nil
}

// historyRow represents the database row.
type historyRow struct {
	ID                int64     `db:"id"`
	Classification    string    `db:"classification"`
	ConfidenceScore   float64   `db:"confidence_score"`
	KeyTopic          string    `db:"key_topic"`
	Sentiment         string    `db:"sentiment"`
	SuggestedResponse string    `db:"suggested_response"`
	EmailContent      string    `db:"email_content"`
	CreatedAt         time.Time `db:"created_at"`
}

func (r *historyRow) toEntity() *domain.HistoryRecord {
	return &domain.HistoryRecord{
		ID:                r.ID,
		Classification:    domain.Category(r.Classification),
		ConfidenceScore:   r.ConfidenceScore,
		KeyTopic:          r.KeyTopic,
		Sentiment:         domain.Sentiment(r.Sentiment),
		SuggestedResponse: r.SuggestedResponse,
		EmailContent:      r.EmailContent,
		CreatedAt:         r.CreatedAt.UTC(),
	}
}

func (a *HistoryAdapter) schemaStatements() []string {
	idType, floatType, timeType := "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "TIMESTAMPTZ"
	if a.dialect == DialectSQLite {
		idType, floatType, timeType = "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "TIMESTAMP"
	}

	index := pq.QuoteIdentifier(a.name + "_created_at_idx")
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			classification TEXT NOT NULL,
			confidence_score %s NOT NULL DEFAULT 0,
			key_topic TEXT NOT NULL DEFAULT '',
			sentiment TEXT NOT NULL DEFAULT '',
			suggested_response TEXT NOT NULL DEFAULT '',
			email_content TEXT NOT NULL,
			created_at %s NOT NULL
		)`, a.table, idType, floatType, timeType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at)`, index, a.table),
	}
}

// EnsureSchema creates the history table and its index. After the first
// success it returns immediately.
func (a *HistoryAdapter) EnsureSchema(ctx context.Context) error {
	a.schemaMu.Lock()
	defer a.schemaMu.Unlock()

	if a.schemaReady {
		return nil
	}

	for _, stmt := range a.schemaStatements() {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create history schema: %w", err)
		}
	}
	a.schemaReady = true
	return nil
}

// Insert stores rec and fills in its ID and CreatedAt.
func (a *HistoryAdapter) Insert(ctx context.Context, rec *domain.HistoryRecord) error {
	if rec == nil {
		return ErrInvalidInput
	}
	if err := a.EnsureSchema(ctx); err != nil {
		return err
	}

	createdAt := time.Now().UTC()
	query := a.db.Rebind(fmt.Sprintf(`
		INSERT INTO %s (classification, confidence_score, key_topic, sentiment, suggested_response, email_content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`, a.table))

	var id int64
	err := a.db.QueryRowxContext(ctx, query,
		string(rec.Classification),
		rec.ConfidenceScore,
		rec.KeyTopic,
		string(rec.Sentiment),
		rec.SuggestedResponse,
		rec.EmailContent,
		createdAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = createdAt
	return nil
}

// ListRecent returns up to limit records, newest first.
func (a *HistoryAdapter) ListRecent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error) {
	if limit <= 0 {
		return []*domain.HistoryRecord{}, nil
	}

	query := a.db.Rebind(fmt.Sprintf(`SELECT * FROM %s ORDER BY id DESC LIMIT ?`, a.table))
	return a.selectRecords(ctx, query, limit)
}

// ListAll returns every record, oldest first.
func (a *HistoryAdapter) ListAll(ctx context.Context) ([]*domain.HistoryRecord, error) {
	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY id ASC`, a.table)
	return a.selectRecords(ctx, query)
}

func (a *HistoryAdapter) selectRecords(ctx context.Context, query string, args ...any) ([]*domain.HistoryRecord, error) {
	if err := a.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var rows []historyRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	records := make([]*domain.HistoryRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toEntity())
	}
	return records, nil
}

func (a *HistoryAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Dialect reports which SQL flavour the adapter speaks.
func (a *HistoryAdapter) Dialect() Dialect {
	return a.dialect
}
