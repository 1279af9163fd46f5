package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryDocumentStore is a per-process DocumentStore with per-key
// serialization, for tests and zero-dependency wiring. Production deployments
// use the SQL-backed store.
type MemoryDocumentStore struct {
	mu      sync.Mutex
	now     Clock
	entries map[string]Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		entries: map[string]Document{},
	}
}

// NewMemoryDocumentStoreWithClock pins document timestamps for tests.
func NewMemoryDocumentStoreWithClock(now Clock) *MemoryDocumentStore {
	store := NewMemoryDocumentStore()
	store.now = now
	return store
}

func (s *MemoryDocumentStore) Create(_ context.Context, key string, data map[string]any) (Document, error) {
	if s == nil {
		return Document{}, fmt.Errorf("core: document store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Document{}, fmt.Errorf("core: document key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return Document{}, fmt.Errorf("%w: %q", ErrDocumentExists, key)
	}
	now := s.now.Now()
	doc := Document{
		Key:       key,
		Data:      copyAnyMap(data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.entries[key] = doc
	return cloneDocument(doc), nil
}

func (s *MemoryDocumentStore) Update(_ context.Context, key string, data map[string]any) (Document, error) {
	if s == nil {
		return Document{}, fmt.Errorf("core: document store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Document{}, fmt.Errorf("core: document key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrDocumentNotFound, key)
	}
	existing.Data = copyAnyMap(data)
	existing.UpdatedAt = s.now.Now()
	s.entries[key] = existing
	return cloneDocument(existing), nil
}

func (s *MemoryDocumentStore) Fetch(_ context.Context, key string) (Document, error) {
	if s == nil {
		return Document{}, fmt.Errorf("core: document store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Document{}, fmt.Errorf("core: document key is required")
	}

	s.mu.Lock()
	doc, ok := s.entries[key]
	s.mu.Unlock()

	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrDocumentNotFound, key)
	}
	return cloneDocument(doc), nil
}

// Len reports the number of stored documents. Test helper.
func (s *MemoryDocumentStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func cloneDocument(doc Document) Document {
	cloned := doc
	cloned.Data = copyAnyMap(doc.Data)
	return cloned
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ DocumentStore = (*MemoryDocumentStore)(nil)

// Upsert is the single bounded create-then-update fallback shared by every
// writer: create, and only on ErrDocumentExists retry once as an update.
// Other store failures propagate untouched.
func Upsert(ctx context.Context, store DocumentStore, key string, data map[string]any) (Document, error) {
	if store == nil {
		return Document{}, fmt.Errorf("core: document store is not configured")
	}
	doc, err := store.Create(ctx, key, data)
	if err == nil {
		return doc, nil
	}
	if !IsDocumentExists(err) {
		return Document{}, err
	}
	return store.Update(ctx, key, data)
}

func IsDocumentExists(err error) bool {
	return errors.Is(err, ErrDocumentExists)
}

func IsDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// ReadTime parses an RFC3339 timestamp out of document data.
func ReadTime(data map[string]any, key string) (time.Time, bool) {
	raw, ok := data[key]
	if !ok {
		return time.Time{}, false
	}
	switch typed := raw.(type) {
	case time.Time:
		return typed.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(typed))
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	default:
		return time.Time{}, false
	}
}

// ReadString returns a trimmed string field from document data.
func ReadString(data map[string]any, key string) string {
	raw, ok := data[key]
	if !ok {
		return ""
	}
	if typed, ok := raw.(string); ok {
		return strings.TrimSpace(typed)
	}
	return strings.TrimSpace(fmt.Sprint(raw))
}
