package verify

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
)

type Config struct {
	Store               core.DocumentStore
	Verifier            core.VerificationClient
	AllowedEmailDomains []string
	Clock               core.Clock
	Logger              core.Logger
	Metrics             core.MetricsRecorder
}

// Service runs the one-time-code identity verification pipeline. Challenge
// state lives entirely in the external provider; only verified identities
// are persisted, as documents keyed by the identity itself.
type Service struct {
	store          core.DocumentStore
	verifier       core.VerificationClient
	allowedDomains map[string]struct{}
	clock          core.Clock
	observer       core.Observer
}

func NewService(cfg Config) *Service {
	allowed := make(map[string]struct{}, len(cfg.AllowedEmailDomains))
	for _, domain := range cfg.AllowedEmailDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			allowed[domain] = struct{}{}
		}
	}
	return &Service{
		store:          cfg.Store,
		verifier:       cfg.Verifier,
		allowedDomains: allowed,
		clock:          cfg.Clock,
		observer:       core.NewObserver(cfg.Logger, cfg.Metrics, "voice_bridge.verify"),
	}
}

// StartEmailChallenge asks the provider to send a one-time code to the email
// address. Nothing is persisted until the code is checked.
func (s *Service) StartEmailChallenge(ctx context.Context, email string) (core.ChallengeReceipt, error) {
	startedAt := time.Now()
	receipt, err := s.startEmailChallenge(ctx, email)
	s.observer.ObserveOperation(ctx, startedAt, "start_email_challenge", err, map[string]any{
		"identity": strings.TrimSpace(email),
		"channel":  string(core.ChallengeChannelEmail),
	})
	return receipt, err
}

func (s *Service) startEmailChallenge(ctx context.Context, email string) (core.ChallengeReceipt, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return core.ChallengeReceipt{}, core.BridgeError(
			"verify: email is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	if !core.ValidEmailShape(email) {
		return core.ChallengeReceipt{}, core.BridgeError(
			"verify: invalid email format",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput,
			map[string]any{"email": email},
		)
	}
	if len(s.allowedDomains) > 0 {
		domain := strings.ToLower(core.EmailDomain(email))
		if _, ok := s.allowedDomains[domain]; !ok {
			return core.ChallengeReceipt{}, core.BridgeError(
				"verify: email domain is not allowed",
				goerrors.CategoryBadInput, core.BridgeErrorBadInput,
				map[string]any{"domain": domain},
			)
		}
	}

	receipt, err := s.verifier.StartChallenge(ctx, email, core.ChallengeChannelEmail)
	if err != nil {
		return core.ChallengeReceipt{}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "verify: start email challenge", core.BridgeErrorProviderFailed, nil)
	}
	return receipt, nil
}

// StartPhoneChallenge asks the provider to send a one-time code over SMS.
// A phone that already has a verified record cannot be re-challenged here.
func (s *Service) StartPhoneChallenge(ctx context.Context, phone string) (core.ChallengeReceipt, error) {
	startedAt := time.Now()
	receipt, err := s.startPhoneChallenge(ctx, phone)
	s.observer.ObserveOperation(ctx, startedAt, "start_phone_challenge", err, map[string]any{
		"identity": strings.TrimSpace(phone),
		"channel":  string(core.ChallengeChannelSMS),
	})
	return receipt, err
}

func (s *Service) startPhoneChallenge(ctx context.Context, phone string) (core.ChallengeReceipt, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return core.ChallengeReceipt{}, core.BridgeError(
			"verify: phone is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}

	_, err := s.store.Fetch(ctx, core.VerifiedPhoneKey(phone))
	switch {
	case err == nil:
		return core.ChallengeReceipt{}, core.BridgeError(
			"verify: phone is already verified",
			goerrors.CategoryConflict, core.BridgeErrorAlreadyVerified,
			map[string]any{"phone": phone},
		)
	case core.IsDocumentNotFound(err):
		// First verification for this phone, proceed.
	default:
		return core.ChallengeReceipt{}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "verify: check phone record", core.BridgeErrorProviderFailed, nil)
	}

	receipt, err := s.verifier.StartChallenge(ctx, phone, core.ChallengeChannelSMS)
	if err != nil {
		return core.ChallengeReceipt{}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "verify: start phone challenge", core.BridgeErrorProviderFailed, nil)
	}
	return receipt, nil
}

// CheckChallengeAndPersist submits the code for one identity and, on
// approval, upserts the verified record keyed by that identity. Verifying
// the same identity twice succeeds both times and leaves one document.
func (s *Service) CheckChallengeAndPersist(ctx context.Context, identity string, code string) (core.VerifiedIdentity, error) {
	startedAt := time.Now()
	verified, err := s.checkChallengeAndPersist(ctx, identity, code)
	s.observer.ObserveOperation(ctx, startedAt, "check_challenge", err, map[string]any{
		"identity": strings.TrimSpace(identity),
	})
	return verified, err
}

func (s *Service) checkChallengeAndPersist(ctx context.Context, identity string, code string) (core.VerifiedIdentity, error) {
	identity = strings.TrimSpace(identity)
	code = strings.TrimSpace(code)
	if identity == "" {
		return core.VerifiedIdentity{}, core.BridgeError(
			"verify: identity is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	if code == "" {
		return core.VerifiedIdentity{}, core.BridgeError(
			"verify: code is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}

	check, err := s.checkWithProvider(ctx, identity, code)
	if err != nil {
		return core.VerifiedIdentity{}, err
	}

	verified := core.VerifiedIdentity{
		Identity:   identity,
		VerifiedAt: s.clock.Now(),
	}
	if core.ValidEmailShape(identity) {
		verified.Email = identity
	} else {
		verified.Phone = identity
	}

	if _, err := core.Upsert(ctx, s.store, identityKey(identity), verified.Data()); err != nil {
		return core.VerifiedIdentity{}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "verify: persist verified identity", core.BridgeErrorProviderFailed,
			map[string]any{"check_sid": check.SID})
	}
	return verified, nil
}

// CheckPairedChallengeAndPersist checks both codes, email first, then binds
// the pair under both identity keys. The phone side is checked against an
// existing binding before any write: a phone bound to a different email is a
// conflict and nothing is written. The two upserts are independent; if the
// phone write fails after the email write succeeded, the email record stays.
func (s *Service) CheckPairedChallengeAndPersist(
	ctx context.Context,
	email string, emailCode string,
	phone string, phoneCode string,
) (core.VerifiedIdentity, error) {
	startedAt := time.Now()
	verified, err := s.checkPairedChallengeAndPersist(ctx, email, emailCode, phone, phoneCode)
	s.observer.ObserveOperation(ctx, startedAt, "check_paired_challenge", err, map[string]any{
		"identity": strings.TrimSpace(email),
	})
	return verified, err
}

func (s *Service) checkPairedChallengeAndPersist(
	ctx context.Context,
	email string, emailCode string,
	phone string, phoneCode string,
) (core.VerifiedIdentity, error) {
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if email == "" || strings.TrimSpace(emailCode) == "" {
		return core.VerifiedIdentity{}, core.BridgeError(
			"verify: email and email code are required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	if phone == "" || strings.TrimSpace(phoneCode) == "" {
		return core.VerifiedIdentity{}, core.BridgeError(
			"verify: phone and phone code are required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}

	if err := s.checkBindingConflict(ctx, email, phone); err != nil {
		return core.VerifiedIdentity{}, err
	}

	if _, err := s.checkWithProvider(ctx, email, strings.TrimSpace(emailCode)); err != nil {
		return core.VerifiedIdentity{}, err
	}
	if _, err := s.checkWithProvider(ctx, phone, strings.TrimSpace(phoneCode)); err != nil {
		return core.VerifiedIdentity{}, err
	}

	verified := core.VerifiedIdentity{
		Identity:   email,
		Email:      email,
		Phone:      phone,
		VerifiedAt: s.clock.Now(),
	}
	data := verified.Data()

	if _, err := core.Upsert(ctx, s.store, core.VerifiedEmailKey(email), data); err != nil {
		return core.VerifiedIdentity{}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "verify: persist email record", core.BridgeErrorProviderFailed, nil)
	}
	if _, err := core.Upsert(ctx, s.store, core.VerifiedPhoneKey(phone), data); err != nil {
		return core.VerifiedIdentity{}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "verify: persist phone record", core.BridgeErrorProviderFailed, nil)
	}
	return verified, nil
}

// checkBindingConflict enforces that a phone, once bound to an email, is
// never rebound to a different one.
func (s *Service) checkBindingConflict(ctx context.Context, email string, phone string) error {
	doc, err := s.store.Fetch(ctx, core.VerifiedPhoneKey(phone))
	if err != nil {
		if core.IsDocumentNotFound(err) {
			return nil
		}
		return core.WrapBridgeError(err,
			goerrors.CategoryExternal, "verify: check phone binding", core.BridgeErrorProviderFailed, nil)
	}
	boundEmail := core.ReadString(doc.Data, "email")
	if boundEmail == "" || strings.EqualFold(boundEmail, email) {
		return nil
	}
	return core.BridgeError(
		"verify: phone is already associated with another identity",
		goerrors.CategoryConflict, core.BridgeErrorIdentityConflict,
		map[string]any{"phone": phone},
	)
}

func (s *Service) checkWithProvider(ctx context.Context, identity string, code string) (core.ChallengeCheck, error) {
	check, err := s.verifier.CheckChallenge(ctx, identity, code)
	if err != nil {
		return core.ChallengeCheck{}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "verify: check challenge", core.BridgeErrorProviderFailed,
			map[string]any{"identity": identity})
	}
	if !check.Approved {
		return core.ChallengeCheck{}, core.BridgeError(
			"verify: invalid or expired code",
			goerrors.CategoryAuth, core.BridgeErrorUnauthorized,
			map[string]any{"identity": identity, "status": check.Status},
		)
	}
	return check, nil
}

func identityKey(identity string) string {
	if core.ValidEmailShape(identity) {
		return core.VerifiedEmailKey(identity)
	}
	return core.VerifiedPhoneKey(identity)
}
