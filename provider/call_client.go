package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
)

const defaultCallBaseURL = "https://api.twilio.com/2010-04-01"

type CallClientConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	HTTPClient HTTPDoer
}

// CallClient places outbound call legs through the telephony REST API.
// Placement is fire-and-forget; leg progress arrives on the status
// callbacks registered with each request.
type CallClient struct {
	baseURL    string
	accountSID string
	authToken  string
	client     HTTPDoer
}

var _ core.CallControlClient = (*CallClient)(nil)

func NewCallClient(cfg CallClientConfig) (*CallClient, error) {
	accountSID := strings.TrimSpace(cfg.AccountSID)
	authToken := strings.TrimSpace(cfg.AuthToken)
	if accountSID == "" || authToken == "" {
		return nil, core.BridgeError(
			"provider: call account credentials are not configured",
			goerrors.CategoryInternal, core.BridgeErrorBadConfig, nil,
		)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultCallBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &CallClient{
		baseURL:    baseURL,
		accountSID: accountSID,
		authToken:  authToken,
		client:     client,
	}, nil
}

type callResource struct {
	SID         string `json:"sid"`
	To          string `json:"to"`
	From        string `json:"from"`
	Status      string `json:"status"`
	DateCreated string `json:"date_created"`
}

func (c *CallClient) PlaceCall(ctx context.Context, req core.PlaceCallRequest) (core.CallHandle, error) {
	to := strings.TrimSpace(req.To)
	from := strings.TrimSpace(req.From)
	if to == "" || from == "" {
		return core.CallHandle{}, core.BridgeError(
			"provider: call to and from numbers are required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	instructions := strings.TrimSpace(req.Instructions)
	instructionURL := strings.TrimSpace(req.InstructionURL)
	if (instructions == "") == (instructionURL == "") {
		return core.CallHandle{}, core.BridgeError(
			"provider: exactly one of inline instructions or instruction url is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	if instructions != "" {
		form.Set("Twiml", instructions)
	} else {
		form.Set("Url", instructionURL)
	}
	if callback := strings.TrimSpace(req.StatusCallbackURL); callback != "" {
		form.Set("StatusCallback", callback)
		for _, event := range req.StatusCallbackEvents {
			form.Add("StatusCallbackEvent", event)
		}
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	var resource callResource
	if err := postForm(ctx, c.client, endpoint, c.accountSID, c.authToken, form, &resource); err != nil {
		return core.CallHandle{}, err
	}

	handle := core.CallHandle{
		SID:    resource.SID,
		To:     resource.To,
		From:   resource.From,
		Status: resource.Status,
	}
	if createdAt, err := time.Parse(time.RFC1123Z, resource.DateCreated); err == nil {
		handle.CreatedAt = createdAt.UTC()
	}
	return handle, nil
}
