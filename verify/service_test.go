package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
)

type fakeVerifier struct {
	started    []string
	channels   []core.ChallengeChannel
	checked    []string
	goodCodes  map[string]string
	startErr   error
	checkErr   error
	lastStatus string
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{goodCodes: map[string]string{}}
}

func (f *fakeVerifier) StartChallenge(_ context.Context, identity string, channel core.ChallengeChannel) (core.ChallengeReceipt, error) {
	if f.startErr != nil {
		return core.ChallengeReceipt{}, f.startErr
	}
	f.started = append(f.started, identity)
	f.channels = append(f.channels, channel)
	return core.ChallengeReceipt{
		To:      identity,
		Channel: channel,
		Status:  "pending",
		Valid:   true,
		SID:     "VE-" + identity,
	}, nil
}

func (f *fakeVerifier) CheckChallenge(_ context.Context, identity string, code string) (core.ChallengeCheck, error) {
	if f.checkErr != nil {
		return core.ChallengeCheck{}, f.checkErr
	}
	f.checked = append(f.checked, identity)
	approved := f.goodCodes[identity] == code
	status := "approved"
	if !approved {
		status = "pending"
	}
	f.lastStatus = status
	return core.ChallengeCheck{
		To:       identity,
		Status:   status,
		Valid:    approved,
		SID:      "VC-" + identity,
		Approved: approved,
	}, nil
}

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

func newTestService(store core.DocumentStore, verifier core.VerificationClient, domains ...string) *Service {
	return NewService(Config{
		Store:               store,
		Verifier:            verifier,
		AllowedEmailDomains: domains,
		Clock:               fixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	})
}

func TestStartEmailChallenge_AllowList(t *testing.T) {
	verifier := newFakeVerifier()
	svc := newTestService(core.NewMemoryDocumentStore(), verifier, "x.com")

	receipt, err := svc.StartEmailChallenge(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("allowed domain: %v", err)
	}
	if receipt.Channel != core.ChallengeChannelEmail {
		t.Fatalf("channel = %s", receipt.Channel)
	}

	_, err = svc.StartEmailChallenge(context.Background(), "a@y.com")
	if code := textCodeOf(t, err); code != core.BridgeErrorBadInput {
		t.Fatalf("text code = %s", code)
	}
	if len(verifier.started) != 1 {
		t.Fatalf("disallowed domain must not reach the provider, started=%v", verifier.started)
	}
}

func TestStartEmailChallenge_AllowListCaseInsensitive(t *testing.T) {
	svc := newTestService(core.NewMemoryDocumentStore(), newFakeVerifier(), "X.Com")
	if _, err := svc.StartEmailChallenge(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("case-insensitive domain match: %v", err)
	}
}

func TestStartEmailChallenge_InvalidFormat(t *testing.T) {
	svc := newTestService(core.NewMemoryDocumentStore(), newFakeVerifier())
	for _, email := range []string{"not-an-email", "a@b", "a b@x.com", ""} {
		_, err := svc.StartEmailChallenge(context.Background(), email)
		if code := textCodeOf(t, err); code != core.BridgeErrorBadInput {
			t.Fatalf("%q: text code = %s", email, code)
		}
	}
}

func TestStartPhoneChallenge(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemoryDocumentStore()
	verifier := newFakeVerifier()
	svc := newTestService(store, verifier)

	receipt, err := svc.StartPhoneChallenge(ctx, "+15551230001")
	if err != nil {
		t.Fatalf("fresh phone: %v", err)
	}
	if receipt.Channel != core.ChallengeChannelSMS {
		t.Fatalf("channel = %s", receipt.Channel)
	}

	if _, err := store.Create(ctx, core.VerifiedPhoneKey("+15551230002"), map[string]any{
		"phone": "+15551230002", "email": "a@x.com",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = svc.StartPhoneChallenge(ctx, "+15551230002")
	if code := textCodeOf(t, err); code != core.BridgeErrorAlreadyVerified {
		t.Fatalf("text code = %s", code)
	}
}

func TestCheckChallengeAndPersist_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemoryDocumentStore()
	verifier := newFakeVerifier()
	verifier.goodCodes["b@x.com"] = "123456"
	svc := newTestService(store, verifier)

	first, err := svc.CheckChallengeAndPersist(ctx, "b@x.com", "123456")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if first.Email != "b@x.com" {
		t.Fatalf("verified = %+v", first)
	}

	if _, err := svc.CheckChallengeAndPersist(ctx, "b@x.com", "123456"); err != nil {
		t.Fatalf("second check must upsert, not fail: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one document, got %d", store.Len())
	}
	doc, err := store.Fetch(ctx, core.VerifiedEmailKey("b@x.com"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if core.ReadString(doc.Data, "email") != "b@x.com" {
		t.Fatalf("data = %v", doc.Data)
	}
}

func TestCheckChallengeAndPersist_RejectsBadCode(t *testing.T) {
	store := core.NewMemoryDocumentStore()
	verifier := newFakeVerifier()
	verifier.goodCodes["b@x.com"] = "123456"
	svc := newTestService(store, verifier)

	_, err := svc.CheckChallengeAndPersist(context.Background(), "b@x.com", "999999")
	if code := textCodeOf(t, err); code != core.BridgeErrorUnauthorized {
		t.Fatalf("text code = %s", code)
	}
	if store.Len() != 0 {
		t.Fatalf("rejected code must not persist, len=%d", store.Len())
	}
}

func TestCheckPairedChallengeAndPersist(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemoryDocumentStore()
	verifier := newFakeVerifier()
	verifier.goodCodes["a@x.com"] = "111111"
	verifier.goodCodes["+15551230001"] = "222222"
	svc := newTestService(store, verifier)

	verified, err := svc.CheckPairedChallengeAndPersist(ctx, "a@x.com", "111111", "+15551230001", "222222")
	if err != nil {
		t.Fatalf("paired check: %v", err)
	}
	if verified.Email != "a@x.com" || verified.Phone != "+15551230001" {
		t.Fatalf("verified = %+v", verified)
	}

	for _, key := range []string{
		core.VerifiedEmailKey("a@x.com"),
		core.VerifiedPhoneKey("+15551230001"),
	} {
		doc, err := store.Fetch(ctx, key)
		if err != nil {
			t.Fatalf("fetch %s: %v", key, err)
		}
		if core.ReadString(doc.Data, "email") != "a@x.com" || core.ReadString(doc.Data, "phone") != "+15551230001" {
			t.Fatalf("%s: data = %v", key, doc.Data)
		}
	}
}

func TestCheckPairedChallengeAndPersist_EmailCheckedFirst(t *testing.T) {
	verifier := newFakeVerifier()
	verifier.goodCodes["+15551230001"] = "222222"
	svc := newTestService(core.NewMemoryDocumentStore(), verifier)

	_, err := svc.CheckPairedChallengeAndPersist(context.Background(), "a@x.com", "wrong", "+15551230001", "222222")
	if code := textCodeOf(t, err); code != core.BridgeErrorUnauthorized {
		t.Fatalf("text code = %s", code)
	}
	if len(verifier.checked) != 1 || verifier.checked[0] != "a@x.com" {
		t.Fatalf("expected fail-fast after the email check, checked=%v", verifier.checked)
	}
}

func TestCheckPairedChallengeAndPersist_BindingConflict(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemoryDocumentStore()
	if _, err := store.Create(ctx, core.VerifiedPhoneKey("+15551230001"), map[string]any{
		"email": "first@x.com", "phone": "+15551230001",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	verifier := newFakeVerifier()
	verifier.goodCodes["second@x.com"] = "111111"
	verifier.goodCodes["+15551230001"] = "222222"
	svc := newTestService(store, verifier)

	_, err := svc.CheckPairedChallengeAndPersist(ctx, "second@x.com", "111111", "+15551230001", "222222")
	if code := textCodeOf(t, err); code != core.BridgeErrorIdentityConflict {
		t.Fatalf("text code = %s", code)
	}
	if store.Len() != 1 {
		t.Fatalf("conflict must not write, len=%d", store.Len())
	}
	if len(verifier.checked) != 0 {
		t.Fatalf("conflict is detected before any provider check, checked=%v", verifier.checked)
	}
}

func TestCheckPairedChallengeAndPersist_SameEmailRebindAllowed(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemoryDocumentStore()
	if _, err := store.Create(ctx, core.VerifiedPhoneKey("+15551230001"), map[string]any{
		"email": "a@x.com", "phone": "+15551230001",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	verifier := newFakeVerifier()
	verifier.goodCodes["a@x.com"] = "111111"
	verifier.goodCodes["+15551230001"] = "222222"
	svc := newTestService(store, verifier)

	if _, err := svc.CheckPairedChallengeAndPersist(ctx, "a@x.com", "111111", "+15551230001", "222222"); err != nil {
		t.Fatalf("re-verifying the same binding must succeed: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected email + phone documents, len=%d", store.Len())
	}
}

func TestCheckPairedChallengeAndPersist_PartialFailureKeepsEmailRecord(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemoryDocumentStore()
	verifier := newFakeVerifier()
	verifier.goodCodes["a@x.com"] = "111111"
	verifier.goodCodes["+15551230001"] = "222222"

	failing := &failingStore{DocumentStore: store, failKey: core.VerifiedPhoneKey("+15551230001")}
	svc := newTestService(failing, verifier)

	_, err := svc.CheckPairedChallengeAndPersist(ctx, "a@x.com", "111111", "+15551230001", "222222")
	if code := textCodeOf(t, err); code != core.BridgeErrorProviderFailed {
		t.Fatalf("text code = %s", code)
	}
	if _, err := store.Fetch(ctx, core.VerifiedEmailKey("a@x.com")); err != nil {
		t.Fatalf("email record must survive the phone failure: %v", err)
	}
}

type failingStore struct {
	core.DocumentStore
	failKey string
}

func (f *failingStore) Create(ctx context.Context, key string, data map[string]any) (core.Document, error) {
	if key == f.failKey {
		return core.Document{}, errors.New("store unavailable")
	}
	return f.DocumentStore.Create(ctx, key, data)
}

func (f *failingStore) Update(ctx context.Context, key string, data map[string]any) (core.Document, error) {
	if key == f.failKey {
		return core.Document{}, errors.New("store unavailable")
	}
	return f.DocumentStore.Update(ctx, key, data)
}
