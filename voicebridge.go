package voicebridge

import (
	"context"
	"time"

	"github.com/goliatone/go-voice-bridge/bridge"
	"github.com/goliatone/go-voice-bridge/core"
	"github.com/goliatone/go-voice-bridge/token"
	"github.com/goliatone/go-voice-bridge/verify"
	"github.com/goliatone/go-voice-bridge/webhooks"
)

type Config = core.Config
type TokenConfig = core.TokenConfig
type VerifyConfig = core.VerifyConfig
type BridgeConfig = core.BridgeConfig

type Option = core.Option

type Document = core.Document
type DocumentStore = core.DocumentStore
type VerificationClient = core.VerificationClient
type CallControlClient = core.CallControlClient
type CallHandle = core.CallHandle
type Role = core.Role
type ConferencePolicy = core.ConferencePolicy

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorFactory       = core.WithErrorFactory
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithClock              = core.WithClock
	WithDocumentStore      = core.WithDocumentStore
	WithVerificationClient = core.WithVerificationClient
	WithCallControlClient  = core.WithCallControlClient
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Platform is the composed calling platform: the verification pipeline, the
// credential service, the call bridging orchestrator, and the status
// callback processor, all built from one resolved configuration.
type Platform struct {
	config   Config
	verify   *verify.Service
	tokens   *token.Service
	bridge   *bridge.Service
	statuses *webhooks.Processor
}

// Setup resolves configuration layers, fills in defaults for anything not
// supplied through options, and wires the leaf services together. The
// document store defaults to the in-memory implementation; verification and
// call placement have no safe default and stay nil until provided, which
// surfaces as a configuration error on first use.
func Setup(cfg Config, options ...Option) (*Platform, error) {
	deps, resolved, err := core.ResolveDependencies(cfg, options...)
	if err != nil {
		return nil, err
	}

	store := deps.DocumentStore()
	if store == nil {
		store = core.NewMemoryDocumentStore()
	}
	clock := deps.Clock()
	logger := deps.Logger()
	metrics := deps.Metrics()

	tokens := token.NewService(token.Config{
		Scheme:        resolved.Token.Scheme,
		SigningSecret: resolved.Token.SigningSecret,
		TTL:           resolved.Token.TTL,
		Store:         store,
		Clock:         clock,
		Logger:        logger,
		Metrics:       metrics,
	})

	verifier := verify.NewService(verify.Config{
		Store:               store,
		Verifier:            deps.VerificationClient(),
		AllowedEmailDomains: resolved.Verify.AllowedEmailDomains,
		Clock:               clock,
		Logger:              logger,
		Metrics:             metrics,
	})

	bridger := bridge.NewService(bridge.Config{
		Calls:         deps.CallControlClient(),
		Credentials:   tokens,
		CallerID:      resolved.Bridge.CallerID,
		BaseURL:       resolved.Bridge.BaseURL,
		Policy:        resolved.Bridge.ConferencePolicy,
		Greeting:      resolved.Bridge.Greeting,
		GatherPrompt:  resolved.Bridge.GatherPrompt,
		GatherTimeout: resolved.Bridge.GatherTimeout,
		Clock:         clock,
		Logger:        logger,
		Metrics:       metrics,
	})

	statuses := webhooks.NewProcessor(webhooks.Config{
		Sink:    loggingSink{logger: logger},
		Clock:   clock,
		Logger:  logger,
		Metrics: metrics,
	})

	return &Platform{
		config:   resolved,
		verify:   verifier,
		tokens:   tokens,
		bridge:   bridger,
		statuses: statuses,
	}, nil
}

func (p *Platform) Config() Config                { return p.config }
func (p *Platform) Verify() *verify.Service       { return p.verify }
func (p *Platform) Tokens() *token.Service        { return p.tokens }
func (p *Platform) Bridge() *bridge.Service       { return p.bridge }
func (p *Platform) Statuses() *webhooks.Processor { return p.statuses }

// VerificationResponse is the wire shape returned to callers of the
// verification endpoints.
type VerificationResponse struct {
	Status string                   `json:"status"`
	Data   VerificationResponseData `json:"data"`
}

type VerificationResponseData struct {
	Email        string               `json:"email,omitempty"`
	Phone        string               `json:"phone,omitempty"`
	VerifiedAt   time.Time            `json:"verifiedAt,omitempty"`
	Verification *ChallengeCheckState `json:"verification,omitempty"`
}

// ChallengeCheckState mirrors the provider receipt fields surfaced to the
// caller after a challenge is started or checked.
type ChallengeCheckState struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Valid   bool   `json:"valid"`
	SID     string `json:"sid,omitempty"`
}

// TokenValidationResponse is the wire shape for a successfully validated
// credential. Invalid or expired credentials return an error, never a
// response with IsValid false.
type TokenValidationResponse struct {
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	VerifiedAt time.Time `json:"verifiedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	IsValid    bool      `json:"isValid"`
}

// CallStartResponse is the wire shape returned when the first leg has been
// placed.
type CallStartResponse struct {
	Status string                `json:"status"`
	Data   CallStartResponseData `json:"data"`
}

type CallStartResponseData struct {
	CallSID        string `json:"callSid"`
	CallStatus     string `json:"callStatus,omitempty"`
	ConferenceName string `json:"conferenceName"`
	AgentNumber    string `json:"agentNumber"`
}

// StartEmailVerification starts an email challenge and shapes the receipt
// for external callers.
func (p *Platform) StartEmailVerification(ctx context.Context, email string) (VerificationResponse, error) {
	receipt, err := p.verify.StartEmailChallenge(ctx, email)
	if err != nil {
		return VerificationResponse{}, err
	}
	return VerificationResponse{
		Status: "pending",
		Data: VerificationResponseData{
			Email:        receipt.To,
			Verification: receiptState(receipt),
		},
	}, nil
}

// StartPhoneVerification starts an SMS challenge for a phone number that is
// not yet bound to an identity.
func (p *Platform) StartPhoneVerification(ctx context.Context, phone string) (VerificationResponse, error) {
	receipt, err := p.verify.StartPhoneChallenge(ctx, phone)
	if err != nil {
		return VerificationResponse{}, err
	}
	return VerificationResponse{
		Status: "pending",
		Data: VerificationResponseData{
			Phone:        receipt.To,
			Verification: receiptState(receipt),
		},
	}, nil
}

// CompleteVerification checks a one-time code and persists the verified
// identity on success.
func (p *Platform) CompleteVerification(ctx context.Context, identity, code string) (VerificationResponse, error) {
	verified, err := p.verify.CheckChallengeAndPersist(ctx, identity, code)
	if err != nil {
		return VerificationResponse{}, err
	}
	return VerificationResponse{
		Status: "success",
		Data: VerificationResponseData{
			Email:        verified.Email,
			Phone:        verified.Phone,
			VerifiedAt:   verified.VerifiedAt,
			Verification: approvedState(identity),
		},
	}, nil
}

// CompletePairedVerification checks an email code and a phone code together
// and binds the two identities on success.
func (p *Platform) CompletePairedVerification(ctx context.Context, email, emailCode, phone, phoneCode string) (VerificationResponse, error) {
	verified, err := p.verify.CheckPairedChallengeAndPersist(ctx, email, emailCode, phone, phoneCode)
	if err != nil {
		return VerificationResponse{}, err
	}
	return VerificationResponse{
		Status: "success",
		Data: VerificationResponseData{
			Email:        verified.Email,
			Phone:        verified.Phone,
			VerifiedAt:   verified.VerifiedAt,
			Verification: approvedState(phone),
		},
	}, nil
}

// IssueCredential mints a bearer credential for a previously verified
// identity under the configured scheme.
func (p *Platform) IssueCredential(ctx context.Context, claims token.Claims) (token.Credential, error) {
	return p.tokens.Issue(ctx, claims, 0)
}

// ValidateCredential checks a presented credential and reports its bound
// claims.
func (p *Platform) ValidateCredential(ctx context.Context, presented string) (TokenValidationResponse, error) {
	claims, err := p.tokens.Validate(ctx, presented)
	if err != nil {
		return TokenValidationResponse{}, err
	}
	return TokenValidationResponse{
		Email:      claims.Identity,
		Phone:      claims.Phone,
		VerifiedAt: claims.VerifiedAt,
		ExpiresAt:  claims.ExpiresAt,
		IsValid:    true,
	}, nil
}

// StartCall places the agent leg of a bridged call and reports the handle of
// that first leg.
func (p *Platform) StartCall(ctx context.Context, req bridge.StartBridgeRequest) (CallStartResponse, error) {
	result, err := p.bridge.StartBridge(ctx, req)
	if err != nil {
		return CallStartResponse{}, err
	}
	return CallStartResponse{
		Status: "success",
		Data: CallStartResponseData{
			CallSID:        result.Handle.SID,
			CallStatus:     result.Handle.Status,
			ConferenceName: result.ConferenceName,
			AgentNumber:    result.AgentNumber,
		},
	}, nil
}

// loggingSink records leg lifecycle events without acting on them. Call
// progress never feeds back into bridge control flow.
type loggingSink struct {
	logger core.Logger
}

func (s loggingSink) HandleStatus(_ context.Context, event webhooks.StatusEvent) error {
	if s.logger != nil {
		s.logger.Info("call status event",
			"conference_name", event.ConferenceName,
			"role", string(event.Role),
			"event", event.Event,
			"call_sid", event.CallSID,
		)
	}
	return nil
}

func receiptState(receipt core.ChallengeReceipt) *ChallengeCheckState {
	return &ChallengeCheckState{
		To:      receipt.To,
		Channel: string(receipt.Channel),
		Status:  receipt.Status,
		Valid:   receipt.Valid,
		SID:     receipt.SID,
	}
}

func approvedState(identity string) *ChallengeCheckState {
	channel := core.ChallengeChannelSMS
	if core.ValidEmailShape(identity) {
		channel = core.ChallengeChannelEmail
	}
	return &ChallengeCheckState{
		To:      identity,
		Channel: string(channel),
		Status:  "approved",
		Valid:   true,
	}
}
