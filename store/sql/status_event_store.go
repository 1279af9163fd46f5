package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-voice-bridge/webhooks"
)

// StatusEventStore is the durable delivery ledger for provider status
// callbacks. The unique index on (conference_name, role, event, call_sid)
// makes Reserve race-safe across instances.
type StatusEventStore struct {
	db   *bun.DB
	repo repository.Repository[*statusEventRecord]
}

var _ webhooks.EventLedger = (*StatusEventStore)(nil)

func NewStatusEventStore(db *bun.DB) (*StatusEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*statusEventRecord](db, statusEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid status event repository wiring: %w", err)
		}
	}
	return &StatusEventStore{db: db, repo: repo}, nil
}

func (s *StatusEventStore) Reserve(ctx context.Context, event webhooks.StatusEvent) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: status event store is not configured")
	}
	if strings.TrimSpace(event.ConferenceName) == "" || strings.TrimSpace(event.Event) == "" {
		return false, fmt.Errorf("sqlstore: conference name and event are required")
	}

	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	record := &statusEventRecord{
		ID:             uuid.NewString(),
		ConferenceName: event.ConferenceName,
		Role:           string(event.Role),
		Event:          event.Event,
		CallSID:        event.CallSID,
		ReceivedAt:     receivedAt,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func statusEventHandlers() repository.ModelHandlers[*statusEventRecord] {
	return repository.ModelHandlers[*statusEventRecord]{
		NewRecord: func() *statusEventRecord {
			return &statusEventRecord{}
		},
		GetID: func(record *statusEventRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *statusEventRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *statusEventRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}
