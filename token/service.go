package token

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/goliatone/go-voice-bridge/core"
)

// Claim layout shared by both schemes. The issuer and audience values are
// fixed for the setup flow; validators reject anything else.
const (
	IssuerName   = "outbound-conference-setup"
	AudienceName = "setup/phone"

	claimPhone      = "phone"
	claimVerifiedAt = "verifiedAt"
)

// Claims is the payload bound into a credential at issue time and recovered
// at validation time.
type Claims struct {
	Identity   string
	Phone      string
	VerifiedAt time.Time
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Credential is an issued bearer token. For the stateless scheme Token is a
// compact signed JWT; for the stateful scheme it is the opaque store key.
type Credential struct {
	Token  string
	Claims Claims
}

type Config struct {
	Scheme        core.TokenScheme
	SigningSecret string
	TTL           time.Duration
	Store         core.DocumentStore
	Clock         core.Clock
	Logger        core.Logger
	Metrics       core.MetricsRecorder
}

// Service mints and validates bearer credentials. The scheme is fixed at
// construction; validation never sniffs the token shape.
type Service struct {
	scheme        core.TokenScheme
	signingSecret string
	ttl           time.Duration
	store         core.DocumentStore
	clock         core.Clock
	observer      core.Observer
}

func NewService(cfg Config) *Service {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = core.TokenSchemeStateless
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		scheme:        scheme,
		signingSecret: strings.TrimSpace(cfg.SigningSecret),
		ttl:           ttl,
		store:         cfg.Store,
		clock:         cfg.Clock,
		observer:      core.NewObserver(cfg.Logger, cfg.Metrics, "voice_bridge.token"),
	}
}

// Issue mints a credential for a verified identity under the configured
// scheme. A non-positive ttl falls back to the service default.
func (s *Service) Issue(ctx context.Context, claims Claims, ttl time.Duration) (Credential, error) {
	startedAt := time.Now()
	var (
		cred Credential
		err  error
	)
	switch s.scheme {
	case core.TokenSchemeStateful:
		cred, err = s.IssueStateful(ctx, claims, ttl)
	default:
		cred, err = s.IssueStateless(ctx, claims, ttl)
	}
	s.observer.ObserveOperation(ctx, startedAt, "issue", err, map[string]any{
		"identity": claims.Identity,
		"scheme":   string(s.scheme),
	})
	return cred, err
}

// Validate checks a presented credential under the configured scheme and
// returns the claims it binds.
func (s *Service) Validate(ctx context.Context, token string) (Claims, error) {
	startedAt := time.Now()
	var (
		claims Claims
		err    error
	)
	switch s.scheme {
	case core.TokenSchemeStateful:
		claims, err = s.ValidateStateful(ctx, token)
	default:
		claims, err = s.ValidateStateless(ctx, token)
	}
	s.observer.ObserveOperation(ctx, startedAt, "validate", err, map[string]any{
		"scheme": string(s.scheme),
	})
	return claims, err
}

func (s *Service) IssueStateless(_ context.Context, claims Claims, ttl time.Duration) (Credential, error) {
	if s.signingSecret == "" {
		return Credential{}, core.BridgeError(
			"token: signing secret is not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	identity := strings.TrimSpace(claims.Identity)
	if identity == "" {
		return Credential{}, core.BridgeError(
			"token: subject identity is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.clock.Now()
	verifiedAt := claims.VerifiedAt
	if verifiedAt.IsZero() {
		verifiedAt = now
	}
	expiresAt := now.Add(ttl)

	builder := jwt.NewBuilder().
		Issuer(IssuerName).
		Audience([]string{AudienceName}).
		Subject(identity).
		IssuedAt(now).
		Expiration(expiresAt).
		Claim(claimVerifiedAt, verifiedAt.Format(time.RFC3339))
	if phone := strings.TrimSpace(claims.Phone); phone != "" {
		builder = builder.Claim(claimPhone, phone)
	}

	tok, err := builder.Build()
	if err != nil {
		return Credential{}, core.WrapBridgeError(err,
			goerrors.CategoryInternal, "token: build claims", core.BridgeErrorInternal, nil)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), []byte(s.signingSecret)))
	if err != nil {
		return Credential{}, core.WrapBridgeError(err,
			goerrors.CategoryInternal, "token: sign claims", core.BridgeErrorInternal, nil)
	}

	return Credential{
		Token: string(signed),
		Claims: Claims{
			Identity:   identity,
			Phone:      strings.TrimSpace(claims.Phone),
			VerifiedAt: verifiedAt,
			IssuedAt:   now,
			ExpiresAt:  expiresAt,
		},
	}, nil
}

func (s *Service) ValidateStateless(_ context.Context, token string) (Claims, error) {
	if s.signingSecret == "" {
		return Claims{}, core.BridgeError(
			"token: signing secret is not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, core.BridgeError(
			"token: token is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}

	// Expiry is checked against the injected clock below, so built-in
	// validation stays off to keep the time source single.
	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256(), []byte(s.signingSecret)),
		jwt.WithValidate(false),
	)
	if err != nil {
		return Claims{}, core.WrapBridgeError(err,
			goerrors.CategoryAuth, "token: invalid token", core.BridgeErrorUnauthorized, nil)
	}

	if issuer, ok := parsed.Issuer(); !ok || issuer != IssuerName {
		return Claims{}, core.BridgeError(
			"token: invalid token issuer",
			goerrors.CategoryAuth, core.BridgeErrorUnauthorized, nil,
		)
	}
	audience, ok := parsed.Audience()
	if !ok || !containsAudience(audience, AudienceName) {
		return Claims{}, core.BridgeError(
			"token: invalid token audience",
			goerrors.CategoryAuth, core.BridgeErrorUnauthorized, nil,
		)
	}

	subject, ok := parsed.Subject()
	if !ok || strings.TrimSpace(subject) == "" {
		return Claims{}, core.BridgeError(
			"token: token subject is missing",
			goerrors.CategoryAuth, core.BridgeErrorUnauthorized, nil,
		)
	}

	expiresAt, ok := parsed.Expiration()
	if !ok {
		return Claims{}, core.BridgeError(
			"token: token expiry is missing",
			goerrors.CategoryAuth, core.BridgeErrorUnauthorized, nil,
		)
	}
	if !s.clock.Now().Before(expiresAt) {
		return Claims{}, core.BridgeError(
			"token: token expired",
			goerrors.CategoryAuth, core.BridgeErrorTokenExpired,
			map[string]any{"expires_at": expiresAt.UTC().Format(time.RFC3339)},
		)
	}

	claims := Claims{
		Identity:  subject,
		ExpiresAt: expiresAt.UTC(),
	}
	if issuedAt, ok := parsed.IssuedAt(); ok {
		claims.IssuedAt = issuedAt.UTC()
	}

	var phone string
	if err := parsed.Get(claimPhone, &phone); err == nil {
		claims.Phone = strings.TrimSpace(phone)
	}
	var verifiedAtRaw string
	if err := parsed.Get(claimVerifiedAt, &verifiedAtRaw); err == nil {
		if verifiedAt, parseErr := time.Parse(time.RFC3339, verifiedAtRaw); parseErr == nil {
			claims.VerifiedAt = verifiedAt.UTC()
		}
	}
	return claims, nil
}

func (s *Service) IssueStateful(ctx context.Context, claims Claims, ttl time.Duration) (Credential, error) {
	if s.store == nil {
		return Credential{}, core.BridgeError(
			"token: document store is not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	identity := strings.TrimSpace(claims.Identity)
	if identity == "" {
		return Credential{}, core.BridgeError(
			"token: subject identity is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.clock.Now()
	verifiedAt := claims.VerifiedAt
	if verifiedAt.IsZero() {
		verifiedAt = now
	}
	expiresAt := now.Add(ttl)
	key := uuid.NewString()

	data := map[string]any{
		"email":      identity,
		"verifiedAt": verifiedAt.Format(time.RFC3339),
		"expiresAt":  expiresAt.Format(time.RFC3339),
	}
	if phone := strings.TrimSpace(claims.Phone); phone != "" {
		data[claimPhone] = phone
	}

	if _, err := s.store.Create(ctx, core.TokenKey(key), data); err != nil {
		return Credential{}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "token: persist token record", core.BridgeErrorProviderFailed, nil)
	}

	return Credential{
		Token: key,
		Claims: Claims{
			Identity:   identity,
			Phone:      strings.TrimSpace(claims.Phone),
			VerifiedAt: verifiedAt,
			IssuedAt:   now,
			ExpiresAt:  expiresAt,
		},
	}, nil
}

func (s *Service) ValidateStateful(ctx context.Context, token string) (Claims, error) {
	if s.store == nil {
		return Claims{}, core.BridgeError(
			"token: document store is not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, core.BridgeError(
			"token: token is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}

	doc, err := s.store.Fetch(ctx, core.TokenKey(token))
	if err != nil {
		if core.IsDocumentNotFound(err) {
			return Claims{}, core.BridgeError(
				"token: invalid token",
				goerrors.CategoryAuth, core.BridgeErrorUnauthorized, nil,
			)
		}
		return Claims{}, core.WrapBridgeError(err,
			goerrors.CategoryExternal, "token: fetch token record", core.BridgeErrorProviderFailed, nil)
	}

	expiresAt, ok := core.ReadTime(doc.Data, "expiresAt")
	if !ok {
		return Claims{}, core.BridgeError(
			"token: token record is malformed",
			goerrors.CategoryAuth, core.BridgeErrorUnauthorized, nil,
		)
	}
	if !s.clock.Now().Before(expiresAt) {
		return Claims{}, core.BridgeError(
			"token: token expired",
			goerrors.CategoryAuth, core.BridgeErrorTokenExpired,
			map[string]any{"expires_at": expiresAt.Format(time.RFC3339)},
		)
	}

	claims := Claims{
		Identity:  core.ReadString(doc.Data, "email"),
		Phone:     core.ReadString(doc.Data, claimPhone),
		ExpiresAt: expiresAt,
	}
	if verifiedAt, ok := core.ReadTime(doc.Data, "verifiedAt"); ok {
		claims.VerifiedAt = verifiedAt
	}
	return claims, nil
}

func containsAudience(audience []string, want string) bool {
	for _, entry := range audience {
		if entry == want {
			return true
		}
	}
	return false
}
