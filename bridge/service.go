package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
	"github.com/goliatone/go-voice-bridge/token"
	"github.com/goliatone/go-voice-bridge/twiml"
)

// Webhook paths served by the deployment embedding this service. Every
// round-tripped parameter uses the canonical conferenceName/recipientNumber
// naming on every hop.
const (
	PathDialSecondLeg = "/dial-second-leg"
	PathConference    = "/conference"

	ParamConferenceName  = "conferenceName"
	ParamRecipientNumber = "recipientNumber"
	ParamRole            = "role"
)

// CredentialValidator resolves a presented bearer credential to its claims.
type CredentialValidator interface {
	Validate(ctx context.Context, token string) (token.Claims, error)
}

type Config struct {
	Calls         core.CallControlClient
	Credentials   CredentialValidator
	CallerID      string
	BaseURL       string
	Policy        core.ConferencePolicy
	Greeting      string
	GatherPrompt  string
	GatherTimeout time.Duration
	Clock         core.Clock
	Logger        core.Logger
	Metrics       core.MetricsRecorder
}

// Service sequences the two outbound legs of a bridged call. There is no
// stored state machine: each operation is a pure transition keyed by the
// round-tripped conference name plus one provider call, and every operation
// is safe to invoke again with identical arguments.
type Service struct {
	calls         core.CallControlClient
	credentials   CredentialValidator
	callerID      string
	baseURL       string
	policy        core.ConferencePolicy
	greeting      string
	gatherPrompt  string
	gatherTimeout time.Duration
	clock         core.Clock
	observer      core.Observer
}

func NewService(cfg Config) *Service {
	policy := cfg.Policy
	if policy == "" {
		policy = core.ConferencePolicyAgentOwned
	}
	timeout := cfg.GatherTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		calls:         cfg.Calls,
		credentials:   cfg.Credentials,
		callerID:      strings.TrimSpace(cfg.CallerID),
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		policy:        policy,
		greeting:      cfg.Greeting,
		gatherPrompt:  cfg.GatherPrompt,
		gatherTimeout: timeout,
		clock:         cfg.Clock,
		observer:      core.NewObserver(cfg.Logger, cfg.Metrics, "voice_bridge.bridge"),
	}
}

type StartBridgeRequest struct {
	AgentNumber     string
	Token           string
	RecipientNumber string
	ConferenceName  string
}

type StartBridgeResult struct {
	ConferenceName        string
	EncodedConferenceName string
	AgentNumber           string
	Handle                core.CallHandle
}

// StartBridge resolves the agent number, generates the conference name when
// none is supplied, and places the agent leg with the greeting-then-gather
// instruction whose action dials the second leg.
func (s *Service) StartBridge(ctx context.Context, req StartBridgeRequest) (StartBridgeResult, error) {
	startedAt := time.Now()
	result, err := s.startBridge(ctx, req)
	s.observer.ObserveOperation(ctx, startedAt, "start_bridge", err, map[string]any{
		"conference_name": result.ConferenceName,
		"role":            string(core.RoleAgent),
	})
	return result, err
}

func (s *Service) startBridge(ctx context.Context, req StartBridgeRequest) (StartBridgeResult, error) {
	if err := s.checkConfigured(); err != nil {
		return StartBridgeResult{}, err
	}

	agentNumber, err := s.resolveAgentNumber(ctx, req)
	if err != nil {
		return StartBridgeResult{}, err
	}
	recipient := strings.TrimSpace(req.RecipientNumber)
	if recipient == "" {
		return StartBridgeResult{}, core.BridgeError(
			"bridge: recipient number is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}

	name := strings.TrimSpace(req.ConferenceName)
	if name == "" {
		name = core.GenerateConferenceName(s.clock.Now())
	}
	// Encoded exactly once here; every later hop carries the encoded form.
	encoded := core.EncodeConferenceName(name)

	actionURL := fmt.Sprintf("%s%s?%s=%s&%s=%s",
		s.baseURL, PathDialSecondLeg,
		ParamConferenceName, encoded,
		ParamRecipientNumber, url.QueryEscape(recipient),
	)
	instruction, err := twiml.BuildGreetingGather(twiml.GreetingGatherParams{
		Greeting:  s.greeting,
		Prompt:    s.gatherPrompt,
		ActionURL: actionURL,
		Timeout:   s.gatherTimeout,
	})
	if err != nil {
		return StartBridgeResult{}, err
	}

	handle, err := s.calls.PlaceCall(ctx, core.PlaceCallRequest{
		To:                   agentNumber,
		From:                 s.callerID,
		Instructions:         instruction,
		StatusCallbackURL:    core.StatusCallbackURL(s.baseURL, encoded, core.RoleAgent),
		StatusCallbackEvents: core.CallStatusEvents,
	})
	if err != nil {
		return StartBridgeResult{ConferenceName: name}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "bridge: call placement failed", core.BridgeErrorProviderFailed,
			map[string]any{"to": agentNumber})
	}

	return StartBridgeResult{
		ConferenceName:        name,
		EncodedConferenceName: encoded,
		AgentNumber:           agentNumber,
		Handle:                handle,
	}, nil
}

func (s *Service) resolveAgentNumber(ctx context.Context, req StartBridgeRequest) (string, error) {
	if agent := strings.TrimSpace(req.AgentNumber); agent != "" {
		return agent, nil
	}
	presented := strings.TrimSpace(req.Token)
	if presented == "" {
		return "", core.BridgeError(
			"bridge: agent number is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	if s.credentials == nil {
		return "", core.BridgeError(
			"bridge: credential validator is not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	claims, err := s.credentials.Validate(ctx, presented)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Phone) == "" {
		return "", core.BridgeError(
			"bridge: credential has no bound agent number",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput,
			map[string]any{"identity": claims.Identity},
		)
	}
	return strings.TrimSpace(claims.Phone), nil
}

// DialSecondLeg places the recipient leg and hands the agent's in-progress
// call a redirect into the conference. The redirect is returned whether or
// not the recipient placement already reported progress; the recipient's
// outcome arrives only through the status sink.
func (s *Service) DialSecondLeg(ctx context.Context, encodedConference string, recipientNumber string) (string, error) {
	startedAt := time.Now()
	instruction, err := s.dialSecondLeg(ctx, encodedConference, recipientNumber)
	s.observer.ObserveOperation(ctx, startedAt, "dial_second_leg", err, map[string]any{
		"conference_name": strings.TrimSpace(encodedConference),
		"role":            string(core.RoleParticipant),
	})
	return instruction, err
}

func (s *Service) dialSecondLeg(ctx context.Context, encodedConference string, recipientNumber string) (string, error) {
	if err := s.checkConfigured(); err != nil {
		return "", err
	}

	encoded := strings.TrimSpace(encodedConference)
	if encoded == "" {
		return "", core.BridgeError(
			"bridge: conference name is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	recipient := strings.TrimSpace(recipientNumber)
	if recipient == "" {
		return "", core.BridgeError(
			"bridge: recipient number is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	if _, err := core.DecodeConferenceName(encoded); err != nil {
		return "", core.WrapBridgeError(err,
			goerrors.CategoryBadInput, "bridge: invalid conference name", core.BridgeErrorBadInput, nil)
	}

	// The recipient leg fetches its join instruction on answer so the
	// conference document is built against the leg's live state.
	_, err := s.calls.PlaceCall(ctx, core.PlaceCallRequest{
		To:                   recipient,
		From:                 s.callerID,
		InstructionURL:       s.conferenceURL(encoded, core.RoleParticipant),
		StatusCallbackURL:    core.StatusCallbackURL(s.baseURL, encoded, core.RoleParticipant),
		StatusCallbackEvents: core.CallStatusEvents,
	})
	if err != nil {
		// The agent joins once the recipient dial is attempted; recipient
		// progress only ever arrives through the status sink.
		if s.observer.Logger != nil {
			s.observer.Logger.Error("recipient leg placement failed",
				"conference_name", encoded, "to", recipient, "error", err.Error())
		}
	}

	return twiml.BuildRedirect(s.conferenceURL(encoded, core.RoleAgent))
}

// ConferenceInstruction builds the join document for one leg of the named
// conference under the configured policy.
func (s *Service) ConferenceInstruction(ctx context.Context, encodedConference string, role core.Role) (string, error) {
	startedAt := time.Now()
	instruction, err := s.conferenceInstruction(encodedConference, role)
	s.observer.ObserveOperation(ctx, startedAt, "conference_instruction", err, map[string]any{
		"conference_name": strings.TrimSpace(encodedConference),
		"role":            string(role),
	})
	return instruction, err
}

func (s *Service) conferenceInstruction(encodedConference string, role core.Role) (string, error) {
	encoded := strings.TrimSpace(encodedConference)
	if encoded == "" {
		return "", core.BridgeError(
			"bridge: conference name is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	name, err := core.DecodeConferenceName(encoded)
	if err != nil {
		return "", core.WrapBridgeError(err,
			goerrors.CategoryBadInput, "bridge: invalid conference name", core.BridgeErrorBadInput, nil)
	}
	return twiml.BuildConferenceJoin(twiml.ConferenceJoinParams{
		ConferenceName:    name,
		Role:              role,
		Policy:            s.policy,
		StatusCallbackURL: core.StatusCallbackURL(s.baseURL, encoded, role),
	})
}

func (s *Service) conferenceURL(encodedConference string, role core.Role) string {
	return fmt.Sprintf("%s%s?%s=%s&%s=%s",
		s.baseURL, PathConference,
		ParamConferenceName, encodedConference,
		ParamRole, string(role),
	)
}

func (s *Service) checkConfigured() error {
	if s.calls == nil {
		return core.BridgeError(
			"bridge: call control client is not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	if s.callerID == "" {
		return core.BridgeError(
			"bridge: caller id must be set",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	if s.baseURL == "" {
		return core.BridgeError(
			"bridge: base url must be set",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	return nil
}
