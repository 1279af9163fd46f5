package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDocumentStore_CreateFetchUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	created, err := store.Create(ctx, "verified_email_a@x.com", map[string]any{"email": "a@x.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Key != "verified_email_a@x.com" {
		t.Fatalf("unexpected key %q", created.Key)
	}

	if _, err := store.Create(ctx, "verified_email_a@x.com", map[string]any{}); !IsDocumentExists(err) {
		t.Fatalf("expected ErrDocumentExists, got %v", err)
	}

	fetched, err := store.Fetch(ctx, "verified_email_a@x.com")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if ReadString(fetched.Data, "email") != "a@x.com" {
		t.Fatalf("unexpected data %v", fetched.Data)
	}

	if _, err := store.Fetch(ctx, "verified_phone_+1555"); !IsDocumentNotFound(err) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}

	if _, err := store.Update(ctx, "verified_phone_+1555", map[string]any{}); !IsDocumentNotFound(err) {
		t.Fatalf("expected ErrDocumentNotFound on update, got %v", err)
	}
}

func TestMemoryDocumentStore_FetchReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()
	if _, err := store.Create(ctx, "doc", map[string]any{"field": "original"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := store.Fetch(ctx, "doc")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	first.Data["field"] = "mutated"

	second, err := store.Fetch(ctx, "doc")
	if err != nil {
		t.Fatalf("fetch again: %v", err)
	}
	if ReadString(second.Data, "field") != "original" {
		t.Fatalf("stored document was mutated through a fetched copy")
	}
}

func TestUpsert_CreateThenUpdateOnConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	if _, err := Upsert(ctx, store, "doc", map[string]any{"v": "1"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := Upsert(ctx, store, "doc", map[string]any{"v": "2"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected exactly one document, got %d", store.Len())
	}
	doc, err := store.Fetch(ctx, "doc")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if ReadString(doc.Data, "v") != "2" {
		t.Fatalf("expected updated payload, got %v", doc.Data)
	}
}

func TestReadTime(t *testing.T) {
	stamp := time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC)
	data := map[string]any{
		"verifiedAt": stamp.Format(time.RFC3339),
		"expiresAt":  stamp,
		"junk":       42,
	}
	if got, ok := ReadTime(data, "verifiedAt"); !ok || !got.Equal(stamp) {
		t.Fatalf("ReadTime(verifiedAt) = %v, %v", got, ok)
	}
	if got, ok := ReadTime(data, "expiresAt"); !ok || !got.Equal(stamp) {
		t.Fatalf("ReadTime(expiresAt) = %v, %v", got, ok)
	}
	if _, ok := ReadTime(data, "junk"); ok {
		t.Fatalf("expected ReadTime to reject non-time value")
	}
	if _, ok := ReadTime(data, "absent"); ok {
		t.Fatalf("expected ReadTime to miss absent key")
	}
}
