package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
)

const defaultVerifyBaseURL = "https://verify.twilio.com/v2"

type VerifyClientConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	ServiceSID string
	HTTPClient HTTPDoer
}

// VerifyClient speaks to the hosted one-time-code verification API. One
// verification service handles both the email and sms channels.
type VerifyClient struct {
	baseURL    string
	accountSID string
	authToken  string
	serviceSID string
	client     HTTPDoer
}

var _ core.VerificationClient = (*VerifyClient)(nil)

func NewVerifyClient(cfg VerifyClientConfig) (*VerifyClient, error) {
	accountSID := strings.TrimSpace(cfg.AccountSID)
	authToken := strings.TrimSpace(cfg.AuthToken)
	serviceSID := strings.TrimSpace(cfg.ServiceSID)
	if accountSID == "" || authToken == "" {
		return nil, core.BridgeError(
			"provider: verify account credentials are not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}
	if serviceSID == "" {
		return nil, core.BridgeError(
			"provider: verify service sid is not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultVerifyBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &VerifyClient{
		baseURL:    baseURL,
		accountSID: accountSID,
		authToken:  authToken,
		serviceSID: serviceSID,
		client:     client,
	}, nil
}

type verificationResource struct {
	SID     string `json:"sid"`
	To      string `json:"to"`
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Valid   bool   `json:"valid"`
}

func (c *VerifyClient) StartChallenge(ctx context.Context, identity string, channel core.ChallengeChannel) (core.ChallengeReceipt, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return core.ChallengeReceipt{}, core.BridgeError(
			"provider: challenge identity is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}

	form := url.Values{}
	form.Set("To", identity)
	form.Set("Channel", string(channel))

	endpoint := fmt.Sprintf("%s/Services/%s/Verifications", c.baseURL, c.serviceSID)
	var resource verificationResource
	if err := postForm(ctx, c.client, endpoint, c.accountSID, c.authToken, form, &resource); err != nil {
		return core.ChallengeReceipt{}, err
	}

	return core.ChallengeReceipt{
		To:      resource.To,
		Channel: core.ChallengeChannel(resource.Channel),
		Status:  resource.Status,
		Valid:   resource.Valid,
		SID:     resource.SID,
	}, nil
}

func (c *VerifyClient) CheckChallenge(ctx context.Context, identity string, code string) (core.ChallengeCheck, error) {
	identity = strings.TrimSpace(identity)
	code = strings.TrimSpace(code)
	if identity == "" || code == "" {
		return core.ChallengeCheck{}, core.BridgeError(
			"provider: challenge identity and code are required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}

	form := url.Values{}
	form.Set("To", identity)
	form.Set("Code", code)

	endpoint := fmt.Sprintf("%s/Services/%s/VerificationCheck", c.baseURL, c.serviceSID)
	var resource verificationResource
	if err := postForm(ctx, c.client, endpoint, c.accountSID, c.authToken, form, &resource); err != nil {
		return core.ChallengeCheck{}, err
	}

	return core.ChallengeCheck{
		To:       resource.To,
		Status:   resource.Status,
		Valid:    resource.Valid,
		SID:      resource.SID,
		Approved: strings.EqualFold(resource.Status, "approved"),
	}, nil
}
