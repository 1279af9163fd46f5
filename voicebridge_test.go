package voicebridge

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-voice-bridge/bridge"
	"github.com/goliatone/go-voice-bridge/core"
	"github.com/goliatone/go-voice-bridge/token"
)

type stubVerifier struct {
	started   []string
	channels  []core.ChallengeChannel
	goodCodes map[string]string
}

func (s *stubVerifier) StartChallenge(_ context.Context, identity string, channel core.ChallengeChannel) (core.ChallengeReceipt, error) {
	s.started = append(s.started, identity)
	s.channels = append(s.channels, channel)
	return core.ChallengeReceipt{To: identity, Channel: channel, Status: "pending", SID: "VE123"}, nil
}

func (s *stubVerifier) CheckChallenge(_ context.Context, identity string, code string) (core.ChallengeCheck, error) {
	if s.goodCodes[identity] == code {
		return core.ChallengeCheck{To: identity, Status: "approved", Valid: true, Approved: true}, nil
	}
	return core.ChallengeCheck{To: identity, Status: "pending"}, nil
}

type stubCallClient struct {
	requests []core.PlaceCallRequest
}

func (s *stubCallClient) PlaceCall(_ context.Context, req core.PlaceCallRequest) (core.CallHandle, error) {
	s.requests = append(s.requests, req)
	return core.CallHandle{SID: "CA42", To: req.To, From: req.From, Status: "queued"}, nil
}

func platformConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningSecret = "setup-secret"
	cfg.Verify.AllowedEmailDomains = []string{"example.com"}
	cfg.Bridge.CallerID = "+15550001111"
	cfg.Bridge.BaseURL = "https://bridge.example.com"
	return cfg
}

func TestSetupDefaults(t *testing.T) {
	platform, err := Setup(platformConfig())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	resolved := platform.Config()
	if resolved.ServiceName != "voice-bridge" {
		t.Fatalf("service name = %q", resolved.ServiceName)
	}
	if resolved.Token.TTL != 5*time.Minute {
		t.Fatalf("token ttl = %v", resolved.Token.TTL)
	}
	if platform.Verify() == nil || platform.Tokens() == nil || platform.Bridge() == nil || platform.Statuses() == nil {
		t.Fatal("expected every composed service to be non-nil")
	}
}

func TestSetupRejectsInvalidScheme(t *testing.T) {
	cfg := platformConfig()
	cfg.Token.Scheme = "session-cookie"
	if _, err := Setup(cfg); err == nil {
		t.Fatal("expected invalid scheme to fail setup")
	}
}

func TestVerificationFlow(t *testing.T) {
	verifier := &stubVerifier{goodCodes: map[string]string{"agent@example.com": "123456"}}
	store := core.NewMemoryDocumentStore()
	platform, err := Setup(platformConfig(),
		WithVerificationClient(verifier),
		WithDocumentStore(store),
	)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	started, err := platform.StartEmailVerification(context.Background(), "agent@example.com")
	if err != nil {
		t.Fatalf("start email verification: %v", err)
	}
	if started.Status != "pending" {
		t.Fatalf("status = %q", started.Status)
	}
	if started.Data.Verification == nil || started.Data.Verification.SID != "VE123" {
		t.Fatalf("verification state = %+v", started.Data.Verification)
	}

	completed, err := platform.CompleteVerification(context.Background(), "agent@example.com", "123456")
	if err != nil {
		t.Fatalf("complete verification: %v", err)
	}
	if completed.Status != "success" {
		t.Fatalf("status = %q", completed.Status)
	}
	if completed.Data.Email != "agent@example.com" {
		t.Fatalf("email = %q", completed.Data.Email)
	}
	if !completed.Data.Verification.Valid {
		t.Fatal("expected approved verification state")
	}
	if _, err := store.Fetch(context.Background(), core.VerifiedEmailKey("agent@example.com")); err != nil {
		t.Fatalf("expected persisted identity: %v", err)
	}
}

func TestVerificationRejectsForeignDomain(t *testing.T) {
	verifier := &stubVerifier{}
	platform, err := Setup(platformConfig(), WithVerificationClient(verifier))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := platform.StartEmailVerification(context.Background(), "agent@other.com"); err == nil {
		t.Fatal("expected domain rejection")
	}
	if len(verifier.started) != 0 {
		t.Fatalf("provider reached for blocked domain: %v", verifier.started)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	platform, err := Setup(platformConfig(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	credential, err := platform.IssueCredential(context.Background(), token.Claims{
		Identity:   "agent@example.com",
		Phone:      "+15550002222",
		VerifiedAt: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("issue credential: %v", err)
	}

	validated, err := platform.ValidateCredential(context.Background(), credential.Token)
	if err != nil {
		t.Fatalf("validate credential: %v", err)
	}
	if !validated.IsValid {
		t.Fatal("expected valid credential")
	}
	if validated.Email != "agent@example.com" {
		t.Fatalf("email = %q", validated.Email)
	}
	if validated.Phone != "+15550002222" {
		t.Fatalf("phone = %q", validated.Phone)
	}
	if !validated.ExpiresAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expiresAt = %v", validated.ExpiresAt)
	}
}

func TestStatusCallbackAccepted(t *testing.T) {
	platform, err := Setup(platformConfig())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	result, err := platform.Statuses().Process(context.Background(),
		url.Values{"conferenceName": {"conf_phone_to_phone_1"}, "role": {"Agent"}},
		url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}},
	)
	if err != nil {
		t.Fatalf("process status: %v", err)
	}
	if !result.Accepted || result.StatusCode != 200 {
		t.Fatalf("result = %+v", result)
	}
	if result.Event.ConferenceName != "conf_phone_to_phone_1" {
		t.Fatalf("conference name = %q", result.Event.ConferenceName)
	}
}

func TestStartCall(t *testing.T) {
	calls := &stubCallClient{}
	platform, err := Setup(platformConfig(), WithCallControlClient(calls))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	response, err := platform.StartCall(context.Background(), bridge.StartBridgeRequest{
		AgentNumber:     "+15550003333",
		RecipientNumber: "+15550004444",
	})
	if err != nil {
		t.Fatalf("start call: %v", err)
	}
	if response.Status != "success" {
		t.Fatalf("status = %q", response.Status)
	}
	if response.Data.CallSID != "CA42" {
		t.Fatalf("call sid = %q", response.Data.CallSID)
	}
	if !strings.HasPrefix(response.Data.ConferenceName, "conf_phone_to_phone_") {
		t.Fatalf("conference name = %q", response.Data.ConferenceName)
	}
	if len(calls.requests) != 1 {
		t.Fatalf("expected one placed leg, got %d", len(calls.requests))
	}
	if calls.requests[0].To != "+15550003333" {
		t.Fatalf("agent leg to = %q", calls.requests[0].To)
	}
}
