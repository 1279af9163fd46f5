package token

import (
	"context"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
)

func fixedClock(at time.Time) core.Clock {
	return func() time.Time { return at }
}

func textCodeOf(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected structured error, got %T: %v", err, err)
	}
	return rich.TextCode
}

func TestStatelessRoundTrip(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(Config{
		Scheme:        core.TokenSchemeStateless,
		SigningSecret: "test-secret",
		TTL:           5 * time.Minute,
		Clock:         fixedClock(issuedAt),
	})

	cred, err := svc.Issue(context.Background(), Claims{
		Identity: "agent@x.com",
		Phone:    "+15551230001",
	}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if cred.Token == "" || strings.Count(cred.Token, ".") != 2 {
		t.Fatalf("expected compact signed token, got %q", cred.Token)
	}
	if !cred.Claims.ExpiresAt.Equal(issuedAt.Add(5 * time.Minute)) {
		t.Fatalf("expiresAt = %s", cred.Claims.ExpiresAt)
	}

	claims, err := svc.Validate(context.Background(), cred.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Identity != "agent@x.com" {
		t.Fatalf("identity = %q", claims.Identity)
	}
	if claims.Phone != "+15551230001" {
		t.Fatalf("phone = %q", claims.Phone)
	}
	if !claims.ExpiresAt.Equal(issuedAt.Add(5 * time.Minute)) {
		t.Fatalf("expiresAt = %s", claims.ExpiresAt)
	}
}

func TestStatelessExpiry(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewService(Config{
		SigningSecret: "test-secret",
		TTL:           5 * time.Minute,
		Clock:         fixedClock(issuedAt),
	})
	cred, err := issuer.Issue(context.Background(), Claims{Identity: "agent@x.com"}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	justBefore := NewService(Config{
		SigningSecret: "test-secret",
		Clock:         fixedClock(issuedAt.Add(5*time.Minute - time.Second)),
	})
	if _, err := justBefore.Validate(context.Background(), cred.Token); err != nil {
		t.Fatalf("expected token still valid just before expiry: %v", err)
	}

	atExpiry := NewService(Config{
		SigningSecret: "test-secret",
		Clock:         fixedClock(issuedAt.Add(5 * time.Minute)),
	})
	_, err = atExpiry.Validate(context.Background(), cred.Token)
	if code := textCodeOf(t, err); code != core.BridgeErrorTokenExpired {
		t.Fatalf("text code = %s, want %s", code, core.BridgeErrorTokenExpired)
	}
}

func TestStatelessRejectsTamperedToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(Config{SigningSecret: "test-secret", Clock: fixedClock(now)})
	cred, err := svc.Issue(context.Background(), Claims{Identity: "agent@x.com"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewService(Config{SigningSecret: "different-secret", Clock: fixedClock(now)})
	_, err = other.Validate(context.Background(), cred.Token)
	if code := textCodeOf(t, err); code != core.BridgeErrorUnauthorized {
		t.Fatalf("text code = %s, want %s", code, core.BridgeErrorUnauthorized)
	}
}

func TestStatelessMissingSecret(t *testing.T) {
	svc := NewService(Config{})
	_, err := svc.Issue(context.Background(), Claims{Identity: "agent@x.com"}, 0)
	if code := textCodeOf(t, err); code != core.BridgeErrorBadConfig {
		t.Fatalf("text code = %s, want %s", code, core.BridgeErrorBadConfig)
	}
}

func TestStatefulRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := core.NewMemoryDocumentStore()
	svc := NewService(Config{
		Scheme: core.TokenSchemeStateful,
		TTL:    time.Hour,
		Store:  store,
		Clock:  fixedClock(now),
	})

	cred, err := svc.Issue(context.Background(), Claims{
		Identity: "agent@x.com",
		Phone:    "+15551230001",
	}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if strings.Contains(cred.Token, ".") {
		t.Fatalf("stateful token should be an opaque key, got %q", cred.Token)
	}
	if _, err := store.Fetch(context.Background(), core.TokenKey(cred.Token)); err != nil {
		t.Fatalf("expected persisted record: %v", err)
	}

	claims, err := svc.Validate(context.Background(), cred.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Identity != "agent@x.com" || claims.Phone != "+15551230001" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestStatefulUnknownAndExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := core.NewMemoryDocumentStore()
	svc := NewService(Config{
		Scheme: core.TokenSchemeStateful,
		TTL:    time.Hour,
		Store:  store,
		Clock:  fixedClock(now),
	})

	_, err := svc.Validate(context.Background(), "no-such-key")
	if code := textCodeOf(t, err); code != core.BridgeErrorUnauthorized {
		t.Fatalf("text code = %s, want %s", code, core.BridgeErrorUnauthorized)
	}

	cred, err := svc.Issue(context.Background(), Claims{Identity: "agent@x.com"}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := NewService(Config{
		Scheme: core.TokenSchemeStateful,
		Store:  store,
		Clock:  fixedClock(now.Add(2 * time.Hour)),
	})
	_, err = later.Validate(context.Background(), cred.Token)
	if code := textCodeOf(t, err); code != core.BridgeErrorTokenExpired {
		t.Fatalf("text code = %s, want %s", code, core.BridgeErrorTokenExpired)
	}
}
