// Package mongo implements DocumentStore backed by MongoDB. Change-stream
// subscriptions push a full re-read of the collection on every matching
// event, so subscribers always observe a consistent ordered snapshot.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/studyplanner/planner-service/internal/config"
	"github.com/studyplanner/planner-service/internal/docpath"
	"github.com/studyplanner/planner-service/internal/model"
	registrymigrate "github.com/studyplanner/planner-service/internal/registry/migrate"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const dbName = "study_planner"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return &Store{client: client, db: client.Database(dbName)}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(dbName)
	db.CreateCollection(ctx, "documents")
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "path", Value: 1}}},
		{Keys: bson.D{{Key: "path", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	if _, err := db.Collection("documents").Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("mongo migration: failed to create indexes for documents: %w", err)
	}

	log.Info("MongoDB schema migration complete")
	return nil
}

// Store implements DocumentStore using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

type documentDoc struct {
	ID        string         `bson:"_id"`
	Path      string         `bson:"path"`
	CreatedAt time.Time      `bson:"created_at"`
	Fields    map[string]any `bson:"fields"`
}

func (d documentDoc) record() model.Record {
	rec := make(model.Record, len(d.Fields)+2)
	for k, v := range d.Fields {
		rec[k] = v
	}
	rec[model.FieldID] = d.ID
	rec[model.FieldCreatedAt] = d.CreatedAt
	return rec
}

func (s *Store) documents() *mongo.Collection { return s.db.Collection("documents") }

func (s *Store) Create(ctx context.Context, col docpath.Path, fields map[string]any) (string, error) {
	doc := documentDoc{
		ID:        uuid.NewString(),
		Path:      col.String(),
		CreatedAt: time.Now().UTC(),
		Fields:    fields,
	}
	if _, err := s.documents().InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return doc.ID, nil
}

func (s *Store) Update(ctx context.Context, docPath docpath.Path, patch map[string]any) error {
	col, id, ok := docPath.Split()
	if !ok {
		return fmt.Errorf("not a document path: %s", docPath)
	}

	sets := bson.M{}
	for k, v := range patch {
		sets["fields."+k] = v
	}
	result, err := s.documents().UpdateOne(ctx,
		bson.M{"_id": id, "path": col.String()},
		bson.M{"$set": sets},
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if result.MatchedCount == 0 {
		return &registrystore.NotFoundError{Path: docPath.String()}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, docPath docpath.Path) error {
	col, id, ok := docPath.Split()
	if !ok {
		return fmt.Errorf("not a document path: %s", docPath)
	}

	result, err := s.documents().DeleteOne(ctx, bson.M{"_id": id, "path": col.String()})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if result.DeletedCount == 0 {
		return &registrystore.NotFoundError{Path: docPath.String()}
	}
	return nil
}

func (s *Store) FetchOnce(ctx context.Context, q registrystore.Query) ([]model.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: sortKey(q.OrderField), Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.documents().Find(ctx, bson.M{"path": q.Path.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	var docs []documentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}

	records := make([]model.Record, len(docs))
	for i, d := range docs {
		records[i] = d.record()
	}
	return records, nil
}

func (s *Store) FetchDocument(ctx context.Context, docPath docpath.Path) (model.Record, error) {
	col, id, ok := docPath.Split()
	if !ok {
		return nil, fmt.Errorf("not a document path: %s", docPath)
	}

	var doc documentDoc
	err := s.documents().FindOne(ctx, bson.M{"_id": id, "path": col.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return doc.record(), nil
}

func sortKey(orderField string) string {
	if orderField == "" || orderField == model.FieldCreatedAt {
		return "created_at"
	}
	return "fields." + orderField
}

func (s *Store) Subscribe(ctx context.Context, q registrystore.Query, fn registrystore.SnapshotFunc) (registrystore.Handle, error) {
	key := q.Path.String()

	// Delete events carry no fullDocument, so they always pass the filter
	// and trigger a re-read. Inserts and updates are filtered by path.
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"operationType": "delete"},
			bson.M{"fullDocument.path": key},
		}}}},
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := s.documents().Watch(streamCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	initial, err := s.FetchOnce(ctx, q)
	if err != nil {
		stream.Close(streamCtx)
		cancel()
		return nil, err
	}
	fn(initial, nil)

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			records, err := s.FetchOnce(streamCtx, q)
			if err != nil {
				if streamCtx.Err() == nil {
					fn(nil, err)
				}
				return
			}
			fn(records, nil)
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			fn(nil, fmt.Errorf("change stream failed: %w", err))
		}
	}()

	return &streamHandle{cancel: cancel}, nil
}

type streamHandle struct {
	cancel context.CancelFunc
}

func (h *streamHandle) Close() { h.cancel() }

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ registrystore.DocumentStore = (*Store)(nil)
