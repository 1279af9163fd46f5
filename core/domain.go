package core

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	ErrDocumentExists   = errors.New("core: document already exists")
	ErrDocumentNotFound = errors.New("core: document not found")
	ErrInvalidRole      = errors.New("core: invalid leg role")
)

// Role tags each conference leg. Agent is the leg dialed first and confirmed
// over DTMF; Participant is the leg dialed into the running conference.
type Role string

const (
	RoleAgent       Role = "Agent"
	RoleParticipant Role = "Participant"
)

func ParseRole(value string) (Role, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "agent":
		return RoleAgent, nil
	case "", "participant", "recipient":
		// Absent role defaults to Participant on callback hops.
		return RoleParticipant, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
}

// ConferencePolicy selects which leg's disconnect ends the conference.
// Both conventions exist for superficially similar flows, so the policy is
// always an explicit configuration input, never inferred from role names.
type ConferencePolicy string

const (
	// ConferencePolicyAgentOwned: the agent leg starts the conference on
	// enter and ends it on exit; participants do neither.
	ConferencePolicyAgentOwned ConferencePolicy = "agent-owned"
	// ConferencePolicyParticipantOwned: the non-agent leg controls the
	// conference lifetime.
	ConferencePolicyParticipantOwned ConferencePolicy = "participant-owned"
)

func (p ConferencePolicy) Validate() error {
	switch p {
	case ConferencePolicyAgentOwned, ConferencePolicyParticipantOwned:
		return nil
	}
	return fmt.Errorf("core: invalid conference policy %q", string(p))
}

// OwnsConference reports whether a leg with the given role controls the
// conference lifetime under this policy.
func (p ConferencePolicy) OwnsConference(role Role) bool {
	if p == ConferencePolicyParticipantOwned {
		return role != RoleAgent
	}
	return role == RoleAgent
}

// BridgeState names the phases of one call-initiation request. The state is
// reconstructed from which endpoint the provider invokes next; nothing is
// persisted.
type BridgeState string

const (
	BridgeStateStarted          BridgeState = "STARTED"
	BridgeStateAgentRinging     BridgeState = "AGENT_RINGING"
	BridgeStateAgentConfirming  BridgeState = "AGENT_CONFIRMING"
	BridgeStateRecipientDialing BridgeState = "RECIPIENT_DIALING"
	BridgeStateBridged          BridgeState = "BRIDGED"
	BridgeStateEnded            BridgeState = "ENDED"
)

// VerifiedIdentity is one proven email address or E.164 phone number,
// optionally bound to the other identity type it was verified alongside.
type VerifiedIdentity struct {
	Identity   string
	Email      string
	Phone      string
	VerifiedAt time.Time
}

func (v VerifiedIdentity) Data() map[string]any {
	data := map[string]any{
		"verifiedAt": v.VerifiedAt.Format(time.RFC3339),
	}
	if strings.TrimSpace(v.Email) != "" {
		data["email"] = strings.TrimSpace(v.Email)
	}
	if strings.TrimSpace(v.Phone) != "" {
		data["phone"] = strings.TrimSpace(v.Phone)
	}
	return data
}

// CallLeg is one outbound call participating in a conference. Terminal leg
// states are reported by the provider through the status sink and never
// mutated here.
type CallLeg struct {
	ConferenceName    string
	Role              Role
	PhoneNumber       string
	StatusCallbackURL string
	Handle            CallHandle
}

// Document key prefixes. Keys are raw identities under a fixed prefix; one
// document per identity or token.
const (
	DocKeyPrefixVerifiedEmail = "verified_email_"
	DocKeyPrefixVerifiedPhone = "verified_phone_"
	DocKeyPrefixToken         = "token_"
)

func VerifiedEmailKey(email string) string {
	return DocKeyPrefixVerifiedEmail + strings.TrimSpace(email)
}

func VerifiedPhoneKey(phone string) string {
	return DocKeyPrefixVerifiedPhone + strings.TrimSpace(phone)
}

func TokenKey(token string) string {
	return DocKeyPrefixToken + strings.TrimSpace(token)
}

// EncodeConferenceName percent-encodes a conference name exactly once so it
// survives every query-parameter hop. Correlation is byte-for-byte string
// equality after decoding, so encode/decode must be loss-less.
func EncodeConferenceName(name string) string {
	return url.QueryEscape(strings.TrimSpace(name))
}

func DecodeConferenceName(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("core: decode conference name: %w", err)
	}
	return decoded, nil
}

// GenerateConferenceName builds the default name used when the caller does
// not supply one.
func GenerateConferenceName(now time.Time) string {
	return fmt.Sprintf("conf_phone_to_phone_%d", now.UnixMilli())
}

var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmailShape checks the basic local@domain.tld shape. Deliverability is
// the challenge provider's problem.
func ValidEmailShape(email string) bool {
	return emailShape.MatchString(strings.TrimSpace(email))
}

// EmailDomain returns the lower-cased domain part, or "" when the shape is
// invalid.
func EmailDomain(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// Status callback event sets subscribed on every leg.
var (
	CallStatusEvents       = []string{"initiated", "ringing", "answered", "completed"}
	ConferenceStatusEvents = []string{"start", "end", "join", "leave"}
)

// StatusCallbackURL builds {base}/status?conferenceName=<enc>&role=<role>.
// The conference name arrives already encoded; it is not re-encoded here.
func StatusCallbackURL(base string, encodedConference string, role Role) string {
	return fmt.Sprintf("%s/status?conferenceName=%s&role=%s",
		strings.TrimRight(strings.TrimSpace(base), "/"),
		encodedConference,
		string(role),
	)
}
