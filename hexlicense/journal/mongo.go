package journal

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoCollection = "hexlicense_validations"

// validCollectionName matches safe MongoDB collection names.
var validCollectionName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MongoOption configures a MongoJournal.
type MongoOption func(*MongoJournal)

// WithCollectionName sets the MongoDB collection name. Default: "hexlicense_validations".
func WithCollectionName(name string) MongoOption {
	return func(j *MongoJournal) {
		j.collectionName = name
	}
}

// MongoJournal implements Journal using MongoDB.
type MongoJournal struct {
	collection     *mongo.Collection
	collectionName string
	client         *mongo.Client // set by Open
}

// mongoEntry stores the id as its canonical string form.
type mongoEntry struct {
	ID             string     `bson:"_id"`
	Fingerprint    string     `bson:"fingerprint"`
	LicenseKeyHash string     `bson:"license_key_hash"`
	Product        string     `bson:"product"`
	Outcome        string     `bson:"outcome"`
	Reason         string     `bson:"reason"`
	Owner          string     `bson:"owner"`
	ExpiresAt      *time.Time `bson:"expires_at,omitempty"`
	OfflineMode    bool       `bson:"offline_mode"`
	RecordedAt     time.Time  `bson:"recorded_at"`
}

// NewMongoJournal creates a MongoDB-backed journal.
// It creates the necessary indexes on initialization.
func NewMongoJournal(ctx context.Context, db *mongo.Database, opts ...MongoOption) (*MongoJournal, error) {
	j := &MongoJournal{
		collectionName: defaultMongoCollection,
	}
	for _, opt := range opts {
		opt(j)
	}
	if !validCollectionName.MatchString(j.collectionName) {
		return nil, fmt.Errorf("invalid collection name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", j.collectionName)
	}
	j.collection = db.Collection(j.collectionName)

	if err := j.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return j, nil
}

func (j *MongoJournal) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "fingerprint", Value: 1},
				{Key: "recorded_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "recorded_at", Value: 1}},
		},
	}
	_, err := j.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (j *MongoJournal) Append(ctx context.Context, e Entry) error {
	e = prepare(e)
	doc := mongoEntry{
		ID:             e.ID.String(),
		Fingerprint:    e.Fingerprint,
		LicenseKeyHash: e.LicenseKeyHash,
		Product:        e.Product,
		Outcome:        e.Outcome,
		Reason:         e.Reason,
		Owner:          e.Owner,
		ExpiresAt:      e.ExpiresAt,
		OfflineMode:    e.OfflineMode,
		RecordedAt:     e.RecordedAt,
	}
	if _, err := j.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (j *MongoJournal) Latest(ctx context.Context, fingerprint string) (*Entry, error) {
	list, err := j.List(ctx, fingerprint, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (j *MongoJournal) List(ctx context.Context, fingerprint string, limit int) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := j.collection.Find(ctx, bson.M{"fingerprint": fingerprint}, opts)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	var docs []mongoEntry
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}

	entries := make([]Entry, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.Parse(d.ID)
		if err != nil {
			return nil, fmt.Errorf("decode entry id: %w", err)
		}
		entries = append(entries, Entry{
			ID:             id,
			Fingerprint:    d.Fingerprint,
			LicenseKeyHash: d.LicenseKeyHash,
			Product:        d.Product,
			Outcome:        d.Outcome,
			Reason:         d.Reason,
			Owner:          d.Owner,
			ExpiresAt:      d.ExpiresAt,
			OfflineMode:    d.OfflineMode,
			RecordedAt:     d.RecordedAt,
		})
	}
	return entries, nil
}

func (j *MongoJournal) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := j.collection.DeleteMany(ctx, bson.M{
		"recorded_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	return int(result.DeletedCount), nil
}

// Close disconnects the client only when the journal was created by Open.
func (j *MongoJournal) Close(ctx context.Context) error {
	if j.client == nil {
		return nil
	}
	return j.client.Disconnect(ctx)
}
