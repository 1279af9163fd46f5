package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type documentRecord struct {
	bun.BaseModel `bun:"table:bridge_documents,alias:bd"`

	ID        string         `bun:"id,pk"`
	DocKey    string         `bun:"doc_key,notnull,unique"`
	Data      map[string]any `bun:"data,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type statusEventRecord struct {
	bun.BaseModel `bun:"table:bridge_status_events,alias:bse"`

	ID             string    `bun:"id,pk"`
	ConferenceName string    `bun:"conference_name,notnull"`
	Role           string    `bun:"role,notnull"`
	Event          string    `bun:"event,notnull"`
	CallSID        string    `bun:"call_sid,notnull"`
	ReceivedAt     time.Time `bun:"received_at,nullzero,notnull,default:current_timestamp"`
}
