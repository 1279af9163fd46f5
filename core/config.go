package core

import (
	"fmt"
	"strings"
	"time"
)

// TokenScheme selects how credentials are minted and validated. The scheme is
// deployment configuration; validators never branch on token shape.
type TokenScheme string

const (
	TokenSchemeStateless TokenScheme = "stateless"
	TokenSchemeStateful  TokenScheme = "stateful"
)

type TokenConfig struct {
	Scheme        TokenScheme   `koanf:"scheme" mapstructure:"scheme"`
	SigningSecret string        `koanf:"signing_secret" mapstructure:"signing_secret"`
	TTL           time.Duration `koanf:"ttl" mapstructure:"ttl"`
	PairedTTL     time.Duration `koanf:"paired_ttl" mapstructure:"paired_ttl"`
}

type VerifyConfig struct {
	AllowedEmailDomains []string `koanf:"allowed_email_domains" mapstructure:"allowed_email_domains"`
}

type BridgeConfig struct {
	CallerID         string           `koanf:"caller_id" mapstructure:"caller_id"`
	BaseURL          string           `koanf:"base_url" mapstructure:"base_url"`
	ConferencePolicy ConferencePolicy `koanf:"conference_policy" mapstructure:"conference_policy"`
	Greeting         string           `koanf:"greeting" mapstructure:"greeting"`
	GatherPrompt     string           `koanf:"gather_prompt" mapstructure:"gather_prompt"`
	GatherTimeout    time.Duration    `koanf:"gather_timeout" mapstructure:"gather_timeout"`
}

type Config struct {
	ServiceName string       `koanf:"service_name" mapstructure:"service_name"`
	Token       TokenConfig  `koanf:"token" mapstructure:"token"`
	Verify      VerifyConfig `koanf:"verify" mapstructure:"verify"`
	Bridge      BridgeConfig `koanf:"bridge" mapstructure:"bridge"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "voice-bridge",
		Token: TokenConfig{
			Scheme:    TokenSchemeStateless,
			TTL:       5 * time.Minute,
			PairedTTL: 10 * 365 * 24 * time.Hour,
		},
		Verify: VerifyConfig{},
		Bridge: BridgeConfig{
			ConferencePolicy: ConferencePolicyAgentOwned,
			Greeting:         "Hello.",
			GatherPrompt:     "Please press any key to dial the customer. Or, wait till we connect you.",
			GatherTimeout:    10 * time.Second,
		},
	}
}

// Validate fails fast on structurally bad configuration before any provider
// I/O. A missing signing secret is deliberately not checked here: stateful
// deployments never need one, so it surfaces at issue time instead.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch c.Token.Scheme {
	case TokenSchemeStateless, TokenSchemeStateful:
	default:
		return fmt.Errorf("core: invalid token scheme %q", string(c.Token.Scheme))
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("core: token ttl must be positive")
	}
	if err := c.Bridge.ConferencePolicy.Validate(); err != nil {
		return err
	}
	if c.Bridge.GatherTimeout <= 0 {
		return fmt.Errorf("core: gather timeout must be positive")
	}
	return nil
}

// ValidateForBridging extends Validate with the settings the call bridging
// orchestrator cannot run without.
func (c Config) ValidateForBridging() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Bridge.CallerID) == "" {
		return fmt.Errorf("core: bridge caller_id must be set")
	}
	if strings.TrimSpace(c.Bridge.BaseURL) == "" {
		return fmt.Errorf("core: bridge base_url must be set")
	}
	return nil
}
