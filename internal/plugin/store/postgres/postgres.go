// Package postgres implements DocumentStore using GORM + PostgreSQL.
// Documents live in a single planner_documents table with their fields in a
// jsonb column. Subscriptions are fanned out through an in-process hub; each
// mutation re-reads the affected collection and pushes the snapshot to its
// subscribers.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/studyplanner/planner-service/internal/config"
	"github.com/studyplanner/planner-service/internal/docpath"
	"github.com/studyplanner/planner-service/internal/model"
	registrymigrate "github.com/studyplanner/planner-service/internal/registry/migrate"
	registrystore "github.com/studyplanner/planner-service/internal/registry/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)

			return &Store{db: db, hub: newHub()}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// Store implements DocumentStore using GORM + PostgreSQL.
type Store struct {
	db  *gorm.DB
	hub *hub
}

type documentRow struct {
	ID             string    `gorm:"column:id;primaryKey"`
	Path           string    `gorm:"column:path"`
	OwnerProfileID string    `gorm:"column:owner_profile_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	Fields         []byte    `gorm:"column:fields"`
}

func (documentRow) TableName() string { return "planner_documents" }

func (r documentRow) record() (model.Record, error) {
	fields := map[string]any{}
	if len(r.Fields) > 0 {
		if err := json.Unmarshal(r.Fields, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode document fields: %w", err)
		}
	}
	rec := make(model.Record, len(fields)+2)
	for k, v := range fields {
		rec[k] = v
	}
	rec[model.FieldID] = r.ID
	rec[model.FieldCreatedAt] = r.CreatedAt
	return rec, nil
}

func (s *Store) Create(ctx context.Context, col docpath.Path, fields map[string]any) (string, error) {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode document fields: %w", err)
	}
	owner, _ := fields[model.FieldOwner].(string)
	row := documentRow{
		ID:             uuid.NewString(),
		Path:           col.String(),
		OwnerProfileID: owner,
		CreatedAt:      time.Now().UTC(),
		Fields:         encoded,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}

	s.notify(ctx, col.String())
	return row.ID, nil
}

func (s *Store) Update(ctx context.Context, docPath docpath.Path, patch map[string]any) error {
	col, id, ok := docPath.Split()
	if !ok {
		return fmt.Errorf("not a document path: %s", docPath)
	}
	encoded, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&documentRow{}).
		Where("id = ? AND path = ?", id, col.String()).
		Update("fields", gorm.Expr("fields || ?::jsonb", string(encoded)))
	if result.Error != nil {
		return fmt.Errorf("failed to update document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Path: docPath.String()}
	}

	s.notify(ctx, col.String())
	return nil
}

func (s *Store) Delete(ctx context.Context, docPath docpath.Path) error {
	col, id, ok := docPath.Split()
	if !ok {
		return fmt.Errorf("not a document path: %s", docPath)
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND path = ?", id, col.String()).
		Delete(&documentRow{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Path: docPath.String()}
	}

	s.notify(ctx, col.String())
	return nil
}

func (s *Store) FetchOnce(ctx context.Context, q registrystore.Query) ([]model.Record, error) {
	var rows []documentRow
	err := s.db.WithContext(ctx).
		Where("path = ?", q.Path.String()).
		Order(orderClause(q.OrderField)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	records := make([]model.Record, len(rows))
	for i, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}

func (s *Store) FetchDocument(ctx context.Context, docPath docpath.Path) (model.Record, error) {
	col, id, ok := docPath.Split()
	if !ok {
		return nil, fmt.Errorf("not a document path: %s", docPath)
	}

	var row documentRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND path = ?", id, col.String()).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return row.record()
}

// orderClause sorts by created_at for the default ordering and by the jsonb
// value for custom fields. jsonb comparison sorts numbers numerically.
func orderClause(orderField string) string {
	if orderField == "" || orderField == model.FieldCreatedAt {
		return "created_at ASC, id ASC"
	}
	quoted := strings.ReplaceAll(orderField, "'", "''")
	return fmt.Sprintf("fields->'%s' ASC, id ASC", quoted)
}

func (s *Store) Subscribe(ctx context.Context, q registrystore.Query, fn registrystore.SnapshotFunc) (registrystore.Handle, error) {
	initial, err := s.FetchOnce(ctx, q)
	if err != nil {
		return nil, err
	}

	h := s.hub.add(q, fn)
	fn(initial, nil)
	return h, nil
}

// notify re-reads the collection for every subscriber of the path and pushes
// the fresh snapshot. Runs after the mutation has committed.
// TODO: use LISTEN/NOTIFY so subscribers on other instances see writes too.
func (s *Store) notify(ctx context.Context, key string) {
	for _, sub := range s.hub.subscribers(key) {
		records, err := s.FetchOnce(context.WithoutCancel(ctx), sub.q)
		sub.fn(records, err)
	}
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type hubSub struct {
	q  registrystore.Query
	fn registrystore.SnapshotFunc
}

type hub struct {
	mu     sync.Mutex
	subs   map[string]map[int]*hubSub
	nextID int
}

func newHub() *hub {
	return &hub{subs: map[string]map[int]*hubSub{}}
}

func (h *hub) add(q registrystore.Query, fn registrystore.SnapshotFunc) *hubHandle {
	key := q.Path.String()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	if h.subs[key] == nil {
		h.subs[key] = map[int]*hubSub{}
	}
	h.subs[key][h.nextID] = &hubSub{q: q, fn: fn}
	return &hubHandle{hub: h, key: key, id: h.nextID}
}

func (h *hub) subscribers(key string) []*hubSub {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*hubSub, 0, len(h.subs[key]))
	for _, sub := range h.subs[key] {
		out = append(out, sub)
	}
	return out
}

type hubHandle struct {
	hub  *hub
	key  string
	id   int
	once sync.Once
}

func (h *hubHandle) Close() {
	h.once.Do(func() {
		h.hub.mu.Lock()
		delete(h.hub.subs[h.key], h.id)
		h.hub.mu.Unlock()
	})
}

var _ registrystore.DocumentStore = (*Store)(nil)
