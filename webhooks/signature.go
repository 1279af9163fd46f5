package webhooks

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
)

// SignatureHeader carries the provider's request signature on every status
// callback.
const SignatureHeader = "X-Twilio-Signature"

// SignatureValidator checks that a status callback was signed with the
// account auth token. The signed payload is the full callback URL followed
// by every form field, keys sorted, each appended as key then value.
type SignatureValidator struct {
	authToken string
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{authToken: strings.TrimSpace(authToken)}
}

// Validate compares the provided signature header value against the one
// computed from the request. The comparison is constant time.
func (v *SignatureValidator) Validate(fullURL string, form url.Values, provided string) error {
	if v == nil || v.authToken == "" {
		return core.BridgeError(
			"webhooks: signature auth token is not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	provided = strings.TrimSpace(provided)
	if provided == "" {
		return core.BridgeError(
			"webhooks: request signature is missing",
			goerrors.CategoryAuth, core.BridgeErrorUnauthorized, nil,
		)
	}

	expected := v.sign(fullURL, form)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return core.BridgeError(
			"webhooks: request signature mismatch",
			goerrors.CategoryAuth, core.BridgeErrorUnauthorized, nil,
		)
	}
	return nil
}

func (v *SignatureValidator) sign(fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(fullURL)
	for _, key := range keys {
		for _, value := range form[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}

	mac := hmac.New(sha1.New, []byte(v.authToken))
	_, _ = mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
