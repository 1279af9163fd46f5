package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes for the bridge error taxonomy. Every error returned to a caller
// carries one of these plus an HTTP-ish status code.
const (
	BridgeErrorBadInput         = "BRIDGE_BAD_INPUT"
	BridgeErrorUnauthorized     = "BRIDGE_UNAUTHORIZED"
	BridgeErrorTokenExpired     = "BRIDGE_TOKEN_EXPIRED"
	BridgeErrorIdentityConflict = "BRIDGE_IDENTITY_CONFLICT"
	BridgeErrorAlreadyVerified  = "BRIDGE_ALREADY_VERIFIED"
	BridgeErrorNotFound         = "BRIDGE_NOT_FOUND"
	BridgeErrorProviderFailed   = "BRIDGE_PROVIDER_FAILED"
	BridgeErrorBadConfig        = "BRIDGE_BAD_CONFIG"
	BridgeErrorInternal         = "BRIDGE_INTERNAL_ERROR"
)

func bridgeErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBridgeErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "already associated"), strings.Contains(msg, "conflict"):
		return newBridgeError(err.Error(), goerrors.CategoryConflict, BridgeErrorIdentityConflict)
	case strings.Contains(msg, "expired"):
		return newBridgeError(err.Error(), goerrors.CategoryAuth, BridgeErrorTokenExpired)
	case strings.Contains(msg, "token"), strings.Contains(msg, "unauthorized"):
		return newBridgeError(err.Error(), goerrors.CategoryAuth, BridgeErrorUnauthorized)
	case strings.Contains(msg, "not found"):
		return newBridgeError(err.Error(), goerrors.CategoryNotFound, BridgeErrorNotFound)
	case strings.Contains(msg, "must be set"), strings.Contains(msg, "not configured"):
		return newBridgeError(err.Error(), goerrors.CategoryInternal, BridgeErrorBadConfig)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "missing"):
		return newBridgeError(err.Error(), goerrors.CategoryBadInput, BridgeErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBridgeErrorEnvelope(mapped)
}

func newBridgeError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBridgeErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBridgeErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = bridgeHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBridgeTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBridgeTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BridgeErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BridgeErrorUnauthorized
	case goerrors.CategoryConflict:
		return BridgeErrorIdentityConflict
	case goerrors.CategoryNotFound:
		return BridgeErrorNotFound
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return BridgeErrorProviderFailed
	default:
		return BridgeErrorInternal
	}
}

func bridgeHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Shared helpers for the leaf packages so every error crosses the boundary
// with the same envelope.

func BridgeError(message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(bridgeHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapBridgeError(source error, category goerrors.Category, message string, textCode string, metadata map[string]any) error {
	if source == nil {
		return BridgeError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(bridgeHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
