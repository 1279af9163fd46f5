package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type Dependencies struct {
	runtimeConfig      Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorFactory       ErrorFactory
	errorMapper        ErrorMapper
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	clock              Clock
	documentStore      DocumentStore
	verificationClient VerificationClient
	callControlClient  CallControlClient
}

type Option func(*Dependencies)

func WithLogger(logger Logger) Option {
	return func(d *Dependencies) {
		d.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(d *Dependencies) {
		d.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(d *Dependencies) {
		d.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(d *Dependencies) {
		d.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(d *Dependencies) {
		d.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(d *Dependencies) {
		d.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(d *Dependencies) {
		d.optionsResolver = resolver
	}
}

func WithClock(clock Clock) Option {
	return func(d *Dependencies) {
		d.clock = clock
	}
}

func WithDocumentStore(store DocumentStore) Option {
	return func(d *Dependencies) {
		d.documentStore = store
	}
}

func WithVerificationClient(client VerificationClient) Option {
	return func(d *Dependencies) {
		d.verificationClient = client
	}
}

func WithCallControlClient(client CallControlClient) Option {
	return func(d *Dependencies) {
		d.callControlClient = client
	}
}

func defaultDependencies(runtime Config) Dependencies {
	loggerProvider, logger := glog.Resolve("voice-bridge", nil, nil)
	return Dependencies{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

// ResolveDependencies applies options over defaults and resolves the layered
// configuration. Shared by the leaf services so every entry point builds the
// same way.
func ResolveDependencies(runtime Config, options ...Option) (Dependencies, Config, error) {
	deps := defaultDependencies(runtime)
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&deps)
	}

	provider, logger := glog.Resolve("voice-bridge", deps.loggerProvider, deps.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("voice-bridge"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	deps.loggerProvider = provider
	deps.logger = logger

	if deps.errorFactory == nil {
		deps.errorFactory = goerrors.New
	}
	if deps.errorMapper == nil {
		deps.errorMapper = defaultErrorMapper
	}
	if deps.metricsRecorder == nil {
		deps.metricsRecorder = NopMetricsRecorder{}
	}
	if deps.configProvider == nil {
		deps.configProvider = NewCfgxConfigProvider(nil)
	}
	if deps.optionsResolver == nil {
		deps.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := deps.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return Dependencies{}, Config{}, mapBuildError(deps.errorMapper, err)
	}
	finalConfig, err := deps.optionsResolver.Resolve(defaults, loaded, deps.runtimeConfig)
	if err != nil {
		return Dependencies{}, Config{}, mapBuildError(deps.errorMapper, err)
	}
	return deps, finalConfig, nil
}

func (d Dependencies) Logger() Logger                         { return d.logger }
func (d Dependencies) LoggerProvider() LoggerProvider         { return d.loggerProvider }
func (d Dependencies) Metrics() MetricsRecorder               { return d.metricsRecorder }
func (d Dependencies) ErrorMapper() ErrorMapper               { return d.errorMapper }
func (d Dependencies) Clock() Clock                           { return d.clock }
func (d Dependencies) DocumentStore() DocumentStore           { return d.documentStore }
func (d Dependencies) VerificationClient() VerificationClient { return d.verificationClient }
func (d Dependencies) CallControlClient() CallControlClient   { return d.callControlClient }

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return bridgeErrorMapper(err)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	token := map[string]any{}
	if includeZero || strings.TrimSpace(string(cfg.Token.Scheme)) != "" {
		token["scheme"] = string(cfg.Token.Scheme)
	}
	if includeZero || strings.TrimSpace(cfg.Token.SigningSecret) != "" {
		token["signing_secret"] = cfg.Token.SigningSecret
	}
	if includeZero || cfg.Token.TTL > 0 {
		token["ttl"] = cfg.Token.TTL
	}
	if includeZero || cfg.Token.PairedTTL > 0 {
		token["paired_ttl"] = cfg.Token.PairedTTL
	}
	if len(token) > 0 {
		layer["token"] = token
	}

	if includeZero || len(cfg.Verify.AllowedEmailDomains) > 0 {
		layer["verify"] = map[string]any{
			"allowed_email_domains": append([]string(nil), cfg.Verify.AllowedEmailDomains...),
		}
	}

	bridge := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Bridge.CallerID) != "" {
		bridge["caller_id"] = cfg.Bridge.CallerID
	}
	if includeZero || strings.TrimSpace(cfg.Bridge.BaseURL) != "" {
		bridge["base_url"] = cfg.Bridge.BaseURL
	}
	if includeZero || strings.TrimSpace(string(cfg.Bridge.ConferencePolicy)) != "" {
		bridge["conference_policy"] = string(cfg.Bridge.ConferencePolicy)
	}
	if includeZero || strings.TrimSpace(cfg.Bridge.Greeting) != "" {
		bridge["greeting"] = cfg.Bridge.Greeting
	}
	if includeZero || strings.TrimSpace(cfg.Bridge.GatherPrompt) != "" {
		bridge["gather_prompt"] = cfg.Bridge.GatherPrompt
	}
	if includeZero || cfg.Bridge.GatherTimeout > 0 {
		bridge["gather_timeout"] = cfg.Bridge.GatherTimeout
	}
	if len(bridge) > 0 {
		layer["bridge"] = bridge
	}

	return layer
}
