package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func textCodeOf(t *testing.T, err error) string {
	t.Helper()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected structured error, got %v", err)
	}
	return rich.TextCode
}

func signPayload(t *testing.T, authToken, fullURL string, form url.Values) string {
	t.Helper()
	payload := fullURL
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range form[key] {
			payload += key + value
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureValidator_Accepts(t *testing.T) {
	form := url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"completed"},
	}
	fullURL := "https://bridge.example.com/status?conferenceName=conf_phone_to_phone_1&role=Agent"
	validator := NewSignatureValidator("auth-token")

	provided := signPayload(t, "auth-token", fullURL, form)
	if err := validator.Validate(fullURL, form, provided); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
}

func TestSignatureValidator_RejectsTamperedForm(t *testing.T) {
	form := url.Values{"CallSid": {"CA1"}}
	fullURL := "https://bridge.example.com/status?conferenceName=x&role=Agent"
	validator := NewSignatureValidator("auth-token")

	provided := signPayload(t, "auth-token", fullURL, form)
	form.Set("CallSid", "CA2")
	err := validator.Validate(fullURL, form, provided)
	if err == nil {
		t.Fatal("expected signature mismatch")
	}
	if got := textCodeOf(t, err); got != "BRIDGE_UNAUTHORIZED" {
		t.Fatalf("text code = %q", got)
	}
}

func TestSignatureValidator_MissingSignature(t *testing.T) {
	validator := NewSignatureValidator("auth-token")
	err := validator.Validate("https://bridge.example.com/status", url.Values{}, "")
	if err == nil {
		t.Fatal("expected missing signature to fail")
	}
	if got := textCodeOf(t, err); got != "BRIDGE_UNAUTHORIZED" {
		t.Fatalf("text code = %q", got)
	}
}

func TestSignatureValidator_Unconfigured(t *testing.T) {
	validator := NewSignatureValidator("  ")
	err := validator.Validate("https://bridge.example.com/status", url.Values{}, "sig")
	if err == nil {
		t.Fatal("expected unconfigured validator to fail")
	}
	if got := textCodeOf(t, err); got != "BRIDGE_BAD_CONFIG" {
		t.Fatalf("text code = %q", got)
	}
}
