package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Document is one record in the external key-value document store. Data is
// schemaless; each component owns the shape it writes under its keys.
type Document struct {
	Key       string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentStore is the boundary to the external key-value persistence
// provider. Create fails with ErrDocumentExists when the key is present,
// Fetch fails with ErrDocumentNotFound when it is absent. The store is
// assumed to serialize operations per key.
type DocumentStore interface {
	Create(ctx context.Context, key string, data map[string]any) (Document, error)
	Update(ctx context.Context, key string, data map[string]any) (Document, error)
	Fetch(ctx context.Context, key string) (Document, error)
}

type ChallengeChannel string

const (
	ChallengeChannelEmail ChallengeChannel = "email"
	ChallengeChannelSMS   ChallengeChannel = "sms"
)

// ChallengeReceipt is the provider acknowledgement for a started challenge.
type ChallengeReceipt struct {
	To      string
	Channel ChallengeChannel
	Status  string
	Valid   bool
	SID     string
}

// ChallengeCheck is the provider verdict for a submitted code.
type ChallengeCheck struct {
	To       string
	Status   string
	Valid    bool
	SID      string
	Approved bool
}

// VerificationClient is the boundary to the external one-time-code provider.
// Challenge state lives entirely on the provider side.
type VerificationClient interface {
	StartChallenge(ctx context.Context, identity string, channel ChallengeChannel) (ChallengeReceipt, error)
	CheckChallenge(ctx context.Context, identity string, code string) (ChallengeCheck, error)
}

// PlaceCallRequest describes one outbound leg handed to the call-control
// provider. Exactly one of Instructions (inline markup) or InstructionURL is
// set; the provider fetches the URL form on answer.
type PlaceCallRequest struct {
	To                   string
	From                 string
	Instructions         string
	InstructionURL       string
	StatusCallbackURL    string
	StatusCallbackEvents []string
}

// CallHandle identifies a placed call at the provider.
type CallHandle struct {
	SID       string
	To        string
	From      string
	Status    string
	CreatedAt time.Time
}

// CallControlClient is the boundary to the external telephony provider.
// Placement is fire-and-forget: progress arrives only through the
// asynchronous status webhooks registered on the request.
type CallControlClient interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (CallHandle, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// Clock lets tests pin time-dependent behavior (token expiry, generated
// conference names).
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
