package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-voice-bridge/core"
)

// DocumentStore keeps verified identities and token records in one
// string-keyed table. Create and Fetch map the driver's unique-violation and
// no-rows conditions onto the domain sentinels; nothing else about the
// external provider contract leaks through.
type DocumentStore struct {
	db   *bun.DB
	repo repository.Repository[*documentRecord]
}

var _ core.DocumentStore = (*DocumentStore)(nil)

func NewDocumentStore(db *bun.DB) (*DocumentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*documentRecord](db, documentHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid document repository wiring: %w", err)
		}
	}
	return &DocumentStore{db: db, repo: repo}, nil
}

func (s *DocumentStore) Create(ctx context.Context, key string, data map[string]any) (core.Document, error) {
	if s == nil || s.db == nil {
		return core.Document{}, fmt.Errorf("sqlstore: document store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Document{}, fmt.Errorf("sqlstore: document key is required")
	}

	now := time.Now().UTC()
	record := &documentRecord{
		ID:        uuid.NewString(),
		DocKey:    key,
		Data:      copyData(data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Document{}, fmt.Errorf("sqlstore: document %q: %w", key, core.ErrDocumentExists)
		}
		return core.Document{}, err
	}
	return documentToDomain(record), nil
}

func (s *DocumentStore) Update(ctx context.Context, key string, data map[string]any) (core.Document, error) {
	if s == nil || s.db == nil {
		return core.Document{}, fmt.Errorf("sqlstore: document store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Document{}, fmt.Errorf("sqlstore: document key is required")
	}

	record, err := s.fetchRecord(ctx, key)
	if err != nil {
		return core.Document{}, err
	}
	record.Data = copyData(data)
	record.UpdatedAt = time.Now().UTC()

	if _, err := s.db.NewUpdate().
		Model(record).
		Column("data", "updated_at").
		Where("?TableAlias.doc_key = ?", key).
		Exec(ctx); err != nil {
		return core.Document{}, err
	}
	return documentToDomain(record), nil
}

func (s *DocumentStore) Fetch(ctx context.Context, key string) (core.Document, error) {
	if s == nil || s.db == nil {
		return core.Document{}, fmt.Errorf("sqlstore: document store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Document{}, fmt.Errorf("sqlstore: document key is required")
	}
	record, err := s.fetchRecord(ctx, key)
	if err != nil {
		return core.Document{}, err
	}
	return documentToDomain(record), nil
}

func (s *DocumentStore) fetchRecord(ctx context.Context, key string) (*documentRecord, error) {
	record := &documentRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.doc_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlstore: document %q: %w", key, core.ErrDocumentNotFound)
		}
		return nil, err
	}
	return record, nil
}

func documentToDomain(record *documentRecord) core.Document {
	return core.Document{
		Key:       record.DocKey,
		Data:      copyData(record.Data),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func copyData(data map[string]any) map[string]any {
	copied := make(map[string]any, len(data))
	for key, value := range data {
		copied[key] = value
	}
	return copied
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
