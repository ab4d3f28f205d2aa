package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call lifecycle events.
// Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogCall records a call-scoped event.
func (s *Service) LogCall(ctx context.Context, typ EventType, callSID, to, status, message string) error {
	return s.Append(ctx, Event{
		Type:    typ,
		CallSID: callSID,
		To:      to,
		Status:  status,
		Message: message,
	})
}

// LogScript records a script generation outcome.
func (s *Service) LogScript(ctx context.Context, typ EventType, message string) error {
	return s.Append(ctx, Event{Type: typ, Message: message})
}
