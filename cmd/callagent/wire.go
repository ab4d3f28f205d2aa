package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"call-agent/internal/audit"
	"call-agent/internal/calls"
	"call-agent/internal/config"
	"call-agent/internal/guard"
	"call-agent/internal/integrations/openai"
	"call-agent/internal/poller"
	"call-agent/internal/script"
	"call-agent/internal/session"
	"call-agent/internal/telephony"
	"call-agent/pkg/utils"
)

// app is the wired object graph shared by serve and dial.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	provider  telephony.Provider
	scripts   *script.Client
	initiator *calls.Initiator
	engine    *poller.Engine
	session   *session.Session

	closers []func() error
}

type appOptions struct {
	// statusCallbacks registers PUBLIC_BASE_URL with the provider. Only the
	// HTTP server can receive them.
	statusCallbacks bool
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, log: log}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	a.provider = provider

	var gen script.Generator = noGenerator{}
	if cfg.OpenAI.APIKey != "" {
		gen, err = openai.NewClient(cfg.OpenAI.APIKey,
			openai.WithModel(cfg.OpenAI.Model),
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
		)
		if err != nil {
			return nil, err
		}
	}
	a.scripts, err = script.NewClient(gen, log)
	if err != nil {
		return nil, err
	}

	a.initiator, err = calls.NewInitiator(provider, cfg.Telephony.CallerID)
	if err != nil {
		return nil, err
	}
	if opts.statusCallbacks {
		a.initiator.StatusCallbackURL = cfg.StatusCallbackURL()
	}
	if cfg.Calls.LaunchGuardTTL > 0 {
		g, err := a.newGuard(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.initiator.Guard = g
		a.initiator.GuardTTL = cfg.Calls.LaunchGuardTTL
	}

	a.engine = poller.NewEngine(provider, cfg.Calls.PollInterval, log)

	a.session, err = session.New(session.Config{
		Scripts: a.scripts,
		Calls:   a.initiator,
		Poller:  a.engine,
		Audit:   audit.NewService(audit.NewLogRepo(log)),
		Log:     log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.session.Close(); return nil })

	log.Info("call agent wired",
		"provider", provider.Name(),
		"model", cfg.OpenAI.Model,
		"poll_interval", cfg.Calls.PollInterval,
		"launch_guard_ttl", cfg.Calls.LaunchGuardTTL,
		"status_callback", a.initiator.StatusCallbackURL != "",
	)
	return a, nil
}

// noGenerator stands in for the model when OPENAI_API_KEY is unset.
type noGenerator struct{}

func (noGenerator) Generate(context.Context, string, string) (script.Reply, error) {
	return script.Reply{}, errors.New("openai: OPENAI_API_KEY is not set")
}

func newProvider(cfg config.Config) (telephony.Provider, error) {
	switch cfg.Telephony.Provider {
	case config.ProviderSimulated:
		return telephony.NewSimulatedProvider(), nil
	case config.ProviderTwilio:
		return telephony.NewTwilioProvider(telephony.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			BaseURL:    cfg.Twilio.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown telephony provider %q", cfg.Telephony.Provider)
	}
}

func (a *app) newGuard(ctx context.Context) (guard.Guard, error) {
	if !a.cfg.HasRedis() {
		return guard.NewMemoryGuard(), nil
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: a.cfg.RedisAddr()})
	if err != nil {
		return nil, fmt.Errorf("launch guard: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	return guard.NewRedisGuard(rdb, "callagent:"), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("shutdown step failed", "err", err)
		}
	}
	a.closers = nil
}
