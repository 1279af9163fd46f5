package twiml

import (
	"encoding/xml"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-voice-bridge/core"
)

// Voice-response verbs serialized to TwiML. The structs mirror the markup
// one to one; builders below assemble the documents the bridge hands to the
// call-control provider.

type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type Say struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type Gather struct {
	XMLName             xml.Name `xml:"Gather"`
	Action              string   `xml:"action,attr,omitempty"`
	Method              string   `xml:"method,attr,omitempty"`
	NumDigits           int      `xml:"numDigits,attr,omitempty"`
	Timeout             int      `xml:"timeout,attr,omitempty"`
	ActionOnEmptyResult bool     `xml:"actionOnEmptyResult,attr"`
	Say                 *Say
}

type Conference struct {
	XMLName                xml.Name `xml:"Conference"`
	Beep                   bool     `xml:"beep,attr"`
	StartConferenceOnEnter bool     `xml:"startConferenceOnEnter,attr"`
	EndConferenceOnExit    bool     `xml:"endConferenceOnExit,attr"`
	StatusCallback         string   `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent    string   `xml:"statusCallbackEvent,attr,omitempty"`
	Name                   string   `xml:",chardata"`
}

type Dial struct {
	XMLName    xml.Name `xml:"Dial"`
	Conference *Conference
}

type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Render serializes the response with the XML declaration the provider
// expects.
func (r Response) Render() (string, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return "", core.WrapBridgeError(err,
			goerrors.CategoryInternal, "twiml: marshal response", core.BridgeErrorInternal, nil)
	}
	return xml.Header + string(body), nil
}

// GreetingGatherParams shapes the agent's first instruction: speak the
// greeting, then collect one digit (or silence) and post to ActionURL.
type GreetingGatherParams struct {
	Greeting  string
	Prompt    string
	ActionURL string
	Timeout   time.Duration
}

func BuildGreetingGather(params GreetingGatherParams) (string, error) {
	if strings.TrimSpace(params.ActionURL) == "" {
		return "", core.BridgeError(
			"twiml: gather action url is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	timeout := int(params.Timeout / time.Second)
	if timeout <= 0 {
		timeout = 10
	}

	response := Response{Verbs: []any{
		Say{Text: params.Greeting},
		Gather{
			Action:              params.ActionURL,
			Method:              "POST",
			NumDigits:           1,
			Timeout:             timeout,
			ActionOnEmptyResult: true,
			Say:                 &Say{Text: params.Prompt},
		},
	}}
	return response.Render()
}

// ConferenceJoinParams shapes one leg's conference join. Policy decides
// which role owns the conference lifetime; it is always an explicit input.
type ConferenceJoinParams struct {
	ConferenceName    string
	Role              core.Role
	Policy            core.ConferencePolicy
	StatusCallbackURL string
}

// BuildConferenceJoin dials the leg into the named conference. The owning
// role both starts the conference on enter and ends it on exit; the other
// role does neither. Beep is always off.
func BuildConferenceJoin(params ConferenceJoinParams) (string, error) {
	name := strings.TrimSpace(params.ConferenceName)
	if name == "" {
		return "", core.BridgeError(
			"twiml: conference name is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	if err := params.Policy.Validate(); err != nil {
		return "", core.WrapBridgeError(err,
			goerrors.CategoryInternal, "twiml: conference policy", core.BridgeErrorBadConfig, nil)
	}
	owns := params.Policy.OwnsConference(params.Role)

	response := Response{Verbs: []any{
		Dial{Conference: &Conference{
			Beep:                   false,
			StartConferenceOnEnter: owns,
			EndConferenceOnExit:    owns,
			StatusCallback:         params.StatusCallbackURL,
			StatusCallbackEvent:    strings.Join(core.ConferenceStatusEvents, " "),
			Name:                   name,
		}},
	}}
	return response.Render()
}

// BuildRedirect sends an in-progress call to a new instruction document.
func BuildRedirect(targetURL string) (string, error) {
	if strings.TrimSpace(targetURL) == "" {
		return "", core.BridgeError(
			"twiml: redirect url is required",
			goerrors.CategoryBadInput, core.BridgeErrorBadInput, nil,
		)
	}
	response := Response{Verbs: []any{
		Redirect{Method: "POST", URL: strings.TrimSpace(targetURL)},
	}}
	return response.Render()
}
