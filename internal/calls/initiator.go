package calls

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"call-agent/internal/apperr"
	"call-agent/internal/guard"
	"call-agent/internal/telephony"
	"call-agent/pkg/logger"
)

const opStart = "calls.start"

// Initiator places outbound calls. It never retries: a failed or ambiguous
// CreateCall is returned to the caller, because a blind retry may ring the
// callee twice.
type Initiator struct {
	provider telephony.CallCreator
	from     string

	// StatusCallbackURL is passed to the provider when set.
	StatusCallbackURL string

	// Guard blocks a second launch of the same destination+script within GuardTTL.
	// Nil or a non-positive GuardTTL disables it.
	Guard    guard.Guard
	GuardTTL time.Duration

	// Log overrides the request-scoped logger carried by ctx.
	Log *slog.Logger
}

func NewInitiator(provider telephony.CallCreator, from string) (*Initiator, error) {
	if provider == nil {
		return nil, errors.New("calls: provider is nil")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("calls: origination number is required")
	}
	return &Initiator{provider: provider, from: from}, nil
}

// Validate checks the fields a call cannot be placed without.
func (r Request) Validate() error {
	if strings.TrimSpace(r.To) == "" {
		return apperr.Validation(opStart, "to_number_required")
	}
	if strings.TrimSpace(r.Script) == "" {
		return apperr.Validation(opStart, "script_required")
	}
	return nil
}

func (in *Initiator) Start(ctx context.Context, req Request) (Handle, error) {
	if err := req.Validate(); err != nil {
		return Handle{}, err
	}
	to := strings.TrimSpace(req.To)
	log := in.logger(ctx).With("to", to)

	var guardKey string
	if in.Guard != nil && in.GuardTTL > 0 {
		key := guard.LaunchKey(to, req.Script)
		ok, err := in.Guard.Acquire(ctx, key, in.GuardTTL)
		if err != nil {
			return Handle{}, apperr.Provider(opStart, err)
		}
		if !ok {
			log.Warn("duplicate call launch blocked")
			return Handle{}, apperr.DuplicateLaunch(opStart, key)
		}
		guardKey = key
	}

	twiml, err := telephony.RenderSpeech(telephony.SpeechDocument{
		Text:     req.Script,
		Voice:    req.Voice,
		Language: req.Language,
	})
	if err != nil {
		if guardKey != "" {
			in.release(ctx, log, guardKey)
		}
		return Handle{}, apperr.Provider(opStart, err)
	}

	created, err := in.provider.CreateCall(ctx, telephony.CreateCallRequest{
		To:             to,
		From:           in.from,
		Twiml:          twiml,
		Record:         req.Record,
		StatusCallback: in.StatusCallbackURL,
	})
	if err != nil {
		log.Error("call creation failed", "err", err)
		if guardKey != "" && rejected(err) {
			in.release(ctx, log, guardKey)
		}
		return Handle{}, apperr.Provider(opStart, err)
	}
	if created.SID == "" {
		return Handle{}, apperr.Provider(opStart, errors.New("provider returned no call sid"))
	}

	h := Handle{
		SID:    created.SID,
		Status: NormalizeStatus(created.Status),
		To:     created.To,
		From:   created.From,
	}
	if h.To == "" {
		h.To = to
	}
	if h.From == "" {
		h.From = in.from
	}
	log.Info("call created", "call_sid", h.SID, "status", h.Status)
	return h, nil
}

// rejected reports whether the provider definitely refused the call, so no
// call exists. Transport errors and 5xx answers are ambiguous.
func rejected(err error) bool {
	var apiErr *telephony.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatus >= 400 && apiErr.HTTPStatus < 500
}

// release gives the launch key back so the user can retry at once.
func (in *Initiator) release(ctx context.Context, log *slog.Logger, key string) {
	if err := in.Guard.Release(context.WithoutCancel(ctx), key); err != nil {
		log.Warn("launch guard release failed", "err", err)
	}
}

func (in *Initiator) logger(ctx context.Context) *slog.Logger {
	if in.Log != nil {
		return in.Log
	}
	return logger.From(ctx)
}
