package webhooks

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
)

// StatusEvent is one provider status callback, correlated to its conference
// by the query parameters round-tripped since the first dial.
type StatusEvent struct {
	ConferenceName string
	Role           core.Role
	Event          string
	CallSID        string
	CallStatus     string
	ReceivedAt     time.Time
	Payload        map[string]string
}

// DedupKey identifies one delivery. Providers deliver at least once, so the
// same key can arrive more than once.
func (e StatusEvent) DedupKey() string {
	return strings.Join([]string{e.ConferenceName, string(e.Role), e.Event, e.CallSID}, "|")
}

// Sink receives accepted status events. Terminal leg states are forwarded,
// never acted on here.
type Sink interface {
	HandleStatus(ctx context.Context, event StatusEvent) error
}

// EventLedger reserves one delivery per dedup key. Reserve reports true when
// the key was already seen.
type EventLedger interface {
	Reserve(ctx context.Context, event StatusEvent) (bool, error)
}

type Result struct {
	Accepted   bool
	Duplicate  bool
	StatusCode int
	Event      StatusEvent
}

type Config struct {
	Sink    Sink
	Ledger  EventLedger
	Clock   core.Clock
	Logger  core.Logger
	Metrics core.MetricsRecorder
}

// Processor accepts provider status callbacks and forwards them to the sink.
// A ledger makes handling at-most-once per delivery; without one every
// delivery reaches the sink, which must then tolerate duplicates.
type Processor struct {
	sink     Sink
	ledger   EventLedger
	clock    core.Clock
	observer core.Observer
}

func NewProcessor(cfg Config) *Processor {
	return &Processor{
		sink:     cfg.Sink,
		ledger:   cfg.Ledger,
		clock:    cfg.Clock,
		observer: core.NewObserver(cfg.Logger, cfg.Metrics, "voice_bridge.webhooks"),
	}
}

// Process parses one status callback from its query and form parameters and
// hands it to the sink. Duplicates reserved by the ledger are acknowledged
// without reaching the sink.
func (p *Processor) Process(ctx context.Context, query url.Values, form url.Values) (Result, error) {
	startedAt := time.Now()
	result, err := p.process(ctx, query, form)
	p.observer.ObserveOperation(ctx, startedAt, "process_status", err, map[string]any{
		"conference_name": result.Event.ConferenceName,
		"role":            string(result.Event.Role),
	})
	return result, err
}

func (p *Processor) process(ctx context.Context, query url.Values, form url.Values) (Result, error) {
	if p == nil || p.sink == nil {
		return Result{StatusCode: http.StatusInternalServerError}, core.BridgeError(
			"webhooks: processor requires a sink",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}

	event, err := ParseStatusEvent(query, form)
	if err != nil {
		return Result{StatusCode: http.StatusBadRequest}, err
	}
	event.ReceivedAt = p.clock.Now()

	if p.ledger != nil {
		seen, err := p.ledger.Reserve(ctx, event)
		if err != nil {
			return Result{Event: event, StatusCode: http.StatusBadGateway}, core.WrapBridgeError(err,
				goerrors.CategoryExternal, "webhooks: reserve delivery", core.BridgeErrorProviderFailed, nil)
		}
		if seen {
			return Result{
				Accepted:   true,
				Duplicate:  true,
				StatusCode: http.StatusOK,
				Event:      event,
			}, nil
		}
	}

	if err := p.sink.HandleStatus(ctx, event); err != nil {
		return Result{Event: event, StatusCode: http.StatusInternalServerError}, core.WrapBridgeError(err,
			goerrors.CategoryInternal, "webhooks: handle status event", core.BridgeErrorInternal, nil)
	}
	return Result{Accepted: true, StatusCode: http.StatusOK, Event: event}, nil
}

// ParseStatusEvent extracts the correlation parameters and the provider
// payload. The conference name arrives url-encoded and must decode to the
// exact name used at dial time.
func ParseStatusEvent(query url.Values, form url.Values) (StatusEvent, error) {
	encoded := strings.TrimSpace(query.Get("conferenceName"))
	if encoded == "" {
		return StatusEvent{}, core.BridgeError(
			"webhooks: conferenceName parameter is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	name, err := core.DecodeConferenceName(encoded)
	if err != nil {
		return StatusEvent{}, core.WrapBridgeError(err,
			goerrors.CategoryBadInput, "webhooks: invalid conference name", core.BridgeErrorBadInput, nil)
	}

	role, err := core.ParseRole(query.Get("role"))
	if err != nil {
		return StatusEvent{}, core.WrapBridgeError(err,
			goerrors.CategoryBadInput, "webhooks: invalid role", core.BridgeErrorBadInput, nil)
	}

	event := StatusEvent{
		ConferenceName: name,
		Role:           role,
		CallSID:        strings.TrimSpace(form.Get("CallSid")),
		CallStatus:     strings.TrimSpace(form.Get("CallStatus")),
		Payload:        map[string]string{},
	}
	for key, values := range form {
		if len(values) > 0 {
			event.Payload[key] = values[0]
		}
	}

	if kind := strings.TrimSpace(form.Get("StatusCallbackEvent")); kind != "" {
		event.Event = kind
	} else {
		event.Event = event.CallStatus
	}
	if event.Event == "" {
		return StatusEvent{}, core.BridgeError(
			"webhooks: event type is missing",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	return event, nil
}
