package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rollcall-hq/rollcall/internal/audit"
	"github.com/rollcall-hq/rollcall/internal/shared"
)

// AuditRecorder appends entries to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.NewEntry) (*audit.Entry, error)
}

// Telemetry counts operational events.
type Telemetry interface {
	AuditWriteFailure()
	LoginFailure()
}

// LoginAttempt carries request metadata worth keeping in the trail.
type LoginAttempt struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	recorder  AuditRecorder
	logger    *slog.Logger
	telemetry Telemetry
}

// NewService constructs a new Service.
func NewService(repo Repository, recorder AuditRecorder, logger *slog.Logger, telemetry Telemetry) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: recorder, logger: logger, telemetry: telemetry}
}

// Authenticate validates email/password credentials. Every attempt lands
// in the audit trail: failures with a reason, successes with the client
// user agent. A failure against an unknown email has no target account
// and actor id zero.
func (s *Service) Authenticate(ctx context.Context, attempt LoginAttempt) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, attempt.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.countFailure()
			s.record(ctx, audit.NewEntry{
				Action:    audit.ActionLoginFailure,
				ActorID:   0,
				Meta:      audit.ReasonMeta("unknown account"),
				IPAddress: attempt.IPAddress,
			})
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		s.countFailure()
		s.recordFailure(ctx, user.ID, "account disabled", attempt.IPAddress)
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(attempt.Password)); err != nil {
		s.countFailure()
		s.recordFailure(ctx, user.ID, "wrong password", attempt.IPAddress)
		return nil, shared.ErrInvalidCredentials
	}
	s.record(ctx, audit.NewEntry{
		Action:    audit.ActionLoginSuccess,
		ActorID:   user.ID,
		Meta:      audit.BrowserMeta(attempt.UserAgent),
		IPAddress: attempt.IPAddress,
	})
	return user, nil
}

// UserByID loads an account by id. Disabled accounts are treated as gone
// so stale sessions cannot keep them alive.
func (s *Service) UserByID(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// Logout removes the session record and writes the LOGOUT entry.
func (s *Service) Logout(ctx context.Context, sessionID string, userID int64, ip string) error {
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.record(ctx, audit.NewEntry{
		Action:    audit.ActionLogout,
		ActorID:   userID,
		IPAddress: ip,
	})
	return nil
}

func (s *Service) countFailure() {
	if s.telemetry != nil {
		s.telemetry.LoginFailure()
	}
}

func (s *Service) recordFailure(ctx context.Context, userID int64, reason, ip string) {
	target := userID
	s.record(ctx, audit.NewEntry{
		Action:    audit.ActionLoginFailure,
		ActorID:   userID,
		TargetID:  &target,
		Meta:      audit.ReasonMeta(reason),
		IPAddress: ip,
	})
}

// record is best-effort: a failed audit write never blocks the auth flow
// but is surfaced to operators.
func (s *Service) record(ctx context.Context, entry audit.NewEntry) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Error("audit write failed",
			slog.String("action", string(entry.Action)),
			slog.Any("error", err))
		if s.telemetry != nil {
			s.telemetry.AuditWriteFailure()
		}
	}
}
