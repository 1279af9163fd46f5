package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
)

const (
	defaultRequestTimeout        = 30 * time.Second
	maxResponseBodyBytes   int64 = 1 << 20
	headerFormContentType        = "application/x-www-form-urlencoded"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// postForm issues one authenticated form-encoded POST and decodes the JSON
// body into out. Non-2xx responses surface the provider's own code and
// message.
func postForm(
	ctx context.Context,
	client HTTPDoer,
	endpoint string,
	username string,
	password string,
	form url.Values,
	out any,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return core.WrapBridgeError(err,
			goerrors.CategoryInternal, "provider: create request", core.BridgeErrorInternal,
			map[string]any{"url": endpoint})
	}
	req.Header.Set("Content-Type", headerFormContentType)
	req.SetBasicAuth(username, password)

	res, err := client.Do(req)
	if err != nil {
		return core.WrapBridgeError(err,
			goerrors.CategoryExternal, "provider: execute request", core.BridgeErrorProviderFailed,
			map[string]any{"url": endpoint})
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBodyBytes))
	if err != nil {
		return core.WrapBridgeError(err,
			goerrors.CategoryExternal, "provider: read response", core.BridgeErrorProviderFailed,
			map[string]any{"status_code": res.StatusCode})
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return providerError(res.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.WrapBridgeError(err,
			goerrors.CategoryExternal, "provider: decode response", core.BridgeErrorProviderFailed,
			map[string]any{"status_code": res.StatusCode})
	}
	return nil
}

type apiError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func providerError(statusCode int, body []byte) error {
	message := "provider: request failed"
	metadata := map[string]any{"status_code": statusCode}

	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err == nil && strings.TrimSpace(decoded.Message) != "" {
		message = "provider: " + strings.TrimSpace(decoded.Message)
		if decoded.Code != 0 {
			metadata["provider_code"] = decoded.Code
		}
		if strings.TrimSpace(decoded.MoreInfo) != "" {
			metadata["more_info"] = strings.TrimSpace(decoded.MoreInfo)
		}
	}

	category := goerrors.CategoryExternal
	textCode := core.BridgeErrorProviderFailed
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		category = goerrors.CategoryAuth
		textCode = core.BridgeErrorUnauthorized
	case statusCode == http.StatusNotFound:
		category = goerrors.CategoryNotFound
		textCode = core.BridgeErrorNotFound
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		category = goerrors.CategoryBadInput
		textCode = core.BridgeErrorBadInput
	}
	return core.BridgeError(message, category, textCode, metadata)
}
