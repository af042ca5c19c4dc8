package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultCollection = "classification_history"
	countersSuffix    = "_counters"
)

// HistoryAdapter implements out.HistoryRepository using MongoDB. Numeric ids
// come from an atomically incremented counter document.
type HistoryAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
	counters   *mongo.Collection

	schemaMu    sync.Mutex
	schemaReady bool
}

var _ out.HistoryRepository = (*HistoryAdapter)(nil)

// NewHistoryAdapter creates a new MongoDB history adapter.
func NewHistoryAdapter(db *mongo.Database, collection string) *HistoryAdapter {
	if collection == "" {
		collection = DefaultCollection
	}
	return &HistoryAdapter{
		db:         db,
		collection: db.Collection(collection),
		counters:   db.Collection(collection + countersSuffix),
	}
}

// historyDocument is the stored form of a record.
type historyDocument struct {
	ID                int64     `bson:"id"`
	Classification    string    `bson:"classification"`
	ConfidenceScore   float64   `bson:"confidence_score"`
	KeyTopic          string    `bson:"key_topic"`
	Sentiment         string    `bson:"sentiment"`
	SuggestedResponse string    `bson:"suggested_response"`
	EmailContent      string    `bson:"email_content"`
	CreatedAt         time.Time `bson:"created_at"`
}

func (d *historyDocument) toEntity() *domain.HistoryRecord {
	return &domain.HistoryRecord{
		ID:                d.ID,
		Classification:    domain.Category(d.Classification),
		ConfidenceScore:   d.ConfidenceScore,
		KeyTopic:          d.KeyTopic,
		Sentiment:         domain.Sentiment(d.Sentiment),
		SuggestedResponse: d.SuggestedResponse,
		EmailContent:      d.EmailContent,
		CreatedAt:         d.CreatedAt.UTC(),
	}
}

// EnsureSchema creates the indexes for the collection once.
func (a *HistoryAdapter) EnsureSchema(ctx context.Context) error {
	a.schemaMu.Lock()
	defer a.schemaMu.Unlock()

	if a.schemaReady {
		return nil
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	if _, err := a.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create history indexes: %w", err)
	}
	a.schemaReady = true
	return nil
}

func (a *HistoryAdapter) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := a.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "history"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate history id: %w", err)
	}
	return counter.Seq, nil
}

// Insert stores rec and fills in its ID and CreatedAt.
func (a *HistoryAdapter) Insert(ctx context.Context, rec *domain.HistoryRecord) error {
	if err := a.EnsureSchema(ctx); err != nil {
		return err
	}

	id, err := a.nextID(ctx)
	if err != nil {
		return err
	}

	// Mongo stores milliseconds
	createdAt := time.Now().UTC().Truncate(time.Millisecond)
	doc := historyDocument{
		ID:                id,
		Classification:    string(rec.Classification),
		ConfidenceScore:   rec.ConfidenceScore,
		KeyTopic:          rec.KeyTopic,
		Sentiment:         string(rec.Sentiment),
		SuggestedResponse: rec.SuggestedResponse,
		EmailContent:      rec.EmailContent,
		CreatedAt:         createdAt,
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
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
	opts := options.Find().
		SetSort(bson.D{{Key: "id", Value: -1}}).
		SetLimit(int64(limit))
	return a.find(ctx, opts)
}

// ListAll returns every record, oldest first.
func (a *HistoryAdapter) ListAll(ctx context.Context) ([]*domain.HistoryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}})
	return a.find(ctx, opts)
}

func (a *HistoryAdapter) find(ctx context.Context, opts *options.FindOptions) ([]*domain.HistoryRecord, error) {
	cursor, err := a.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	records := make([]*domain.HistoryRecord, 0, len(docs))
	for i := range docs {
		records = append(records, docs[i].toEntity())
	}
	return records, nil
}

func (a *HistoryAdapter) Ping(ctx context.Context) error {
	return a.db.Client().Ping(ctx, nil)
}
