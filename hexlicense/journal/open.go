package journal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrUnsupportedScheme is returned by Open for an unknown URL scheme.
var ErrUnsupportedScheme = errors.New("unsupported journal scheme")

const defaultMongoDatabase = "hexlicense"

// Open connects to the journal named by rawURL. The returned journal owns the
// connection and releases it on Close.
//
// Supported schemes:
//   - postgres://, postgresql:// (pgx connection string)
//   - mongodb://, mongodb+srv:// (database from the path, default "hexlicense")
//   - memory: (process-local, for testing)
func Open(ctx context.Context, rawURL string) (Journal, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse journal url: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryJournal(), nil

	case "postgres", "postgresql":
		pool, err := pgxpool.New(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		j, err := NewPostgresJournal(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		j.ownsPool = true
		return j, nil

	case "mongodb", "mongodb+srv":
		client, err := mongo.Connect(options.Client().ApplyURI(rawURL))
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		dbName := strings.TrimPrefix(u.Path, "/")
		if dbName == "" {
			dbName = defaultMongoDatabase
		}
		j, err := NewMongoJournal(ctx, client.Database(dbName))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		j.client = client
		return j, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
