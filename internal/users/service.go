package users

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/rollcall-hq/rollcall/internal/audit"
	"github.com/rollcall-hq/rollcall/internal/authz"
	"github.com/rollcall-hq/rollcall/internal/shared"
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// AuditRecorder appends entries to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.NewEntry) (*audit.Entry, error)
}

// Telemetry counts operational events the service emits. Implementations
// must tolerate being called from concurrent requests.
type Telemetry interface {
	AuditWriteFailure()
	AuthorizationDenied(op string)
}

// CreateInput carries the fields for a new account. Role defaults to the
// basic user role when empty.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	Role     authz.Role
}

// UpdateInput carries the requested edits; nil fields stay untouched.
type UpdateInput struct {
	Email    *string
	Name     *string
	Password *string
	Role     *authz.Role
	IsActive *bool
}

// Service enforces authorization and records the audit trail around
// directory mutations.
type Service struct {
	repo      RepositoryPort
	recorder  AuditRecorder
	logger    *slog.Logger
	telemetry Telemetry
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, recorder AuditRecorder, logger *slog.Logger, telemetry Telemetry) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: recorder, logger: logger, telemetry: telemetry}
}

// List returns the full directory. Every authenticated principal may
// list accounts.
func (s *Service) List(ctx context.Context, actor authz.Principal) ([]User, error) {
	if err := s.decide(authz.Request{Actor: actor, Op: authz.OpViewList}); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// Get returns one account. Existence is resolved before authorization so
// a missing target surfaces as not-found, never as a denial.
func (s *Service) Get(ctx context.Context, actor authz.Principal, id int64) (User, error) {
	target, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	tp := target.Principal()
	if err := s.decide(authz.Request{Actor: actor, Op: authz.OpViewOne, Target: &tp}); err != nil {
		return User{}, err
	}
	return target, nil
}

// Create adds a new account. Only admins may create; an admin may assign
// any role.
func (s *Service) Create(ctx context.Context, actor authz.Principal, in CreateInput, ip string) (User, error) {
	if err := s.decide(authz.Request{Actor: actor, Op: authz.OpCreate}); err != nil {
		return User{}, err
	}
	role := in.Role
	if role == "" {
		role = authz.RoleUser
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	created, err := s.repo.CreateUser(ctx, User{
		Email:        in.Email,
		Name:         in.Name,
		Role:         role,
		PasswordHash: string(hash),
		IsActive:     true,
	})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, audit.NewEntry{
		Action:    audit.ActionCreateUser,
		ActorID:   actor.ID,
		TargetID:  &created.ID,
		Meta:      audit.UserDetailsMeta(created.Email, string(created.Role)),
		IPAddress: ip,
	})
	return created, nil
}

// Update edits an account. A role sub-request rides along when the input
// asks for a different role; a denied role change denies the whole
// update. An update that changes nothing writes no audit entry.
func (s *Service) Update(ctx context.Context, actor authz.Principal, id int64, in UpdateInput, ip string) (User, error) {
	pre, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	var requestedRole authz.Role
	if in.Role != nil {
		requestedRole = *in.Role
	}
	tp := pre.Principal()
	if err := s.decide(authz.Request{Actor: actor, Op: authz.OpUpdate, Target: &tp, RequestedRole: requestedRole}); err != nil {
		return User{}, err
	}

	next := pre
	if in.Email != nil {
		next.Email = *in.Email
	}
	if in.Name != nil {
		next.Name = *in.Name
	}
	if in.Role != nil {
		next.Role = *in.Role
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}
	if in.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return User{}, err
		}
		next.PasswordHash = string(hash)
	}

	changes := diffUsers(pre, next)
	if len(changes) == 0 {
		return pre, nil
	}

	post, err := s.repo.UpdateUser(ctx, next)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, audit.NewEntry{
		Action:    audit.ActionEditUser,
		ActorID:   actor.ID,
		TargetID:  &post.ID,
		Meta:      audit.ChangesMeta(changes),
		IPAddress: ip,
	})
	return post, nil
}

// Delete removes an account subject to the deletion rules.
func (s *Service) Delete(ctx context.Context, actor authz.Principal, id int64, ip string) error {
	target, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	tp := target.Principal()
	if err := s.decide(authz.Request{Actor: actor, Op: authz.OpDelete, Target: &tp}); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.record(ctx, audit.NewEntry{
		Action:    audit.ActionDeleteUser,
		ActorID:   actor.ID,
		TargetID:  &target.ID,
		Meta:      audit.UserDetailsMeta(target.Email, string(target.Role)),
		IPAddress: ip,
	})
	return nil
}

// ResolvePrincipal loads the acting principal for the session user id.
// Deactivated accounts cannot act.
func (s *Service) ResolvePrincipal(ctx context.Context, id int64) (authz.Principal, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return authz.Principal{}, err
	}
	if !u.IsActive {
		return authz.Principal{}, shared.ErrNotFound
	}
	return u.Principal(), nil
}

func (s *Service) decide(req authz.Request) error {
	d := authz.Decide(req)
	if d.Allowed() {
		return nil
	}
	if s.telemetry != nil {
		s.telemetry.AuthorizationDenied(string(req.Op))
	}
	return shared.Denied(d.Reason())
}

// record appends an audit entry after a successful mutation. The write
// is best-effort: a failure never rolls back or fails the mutation, but
// it is surfaced to operators through the log and the failure counter.
func (s *Service) record(ctx context.Context, entry audit.NewEntry) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Error("audit write failed after successful mutation",
			slog.String("action", string(entry.Action)),
			slog.Int64("actor_id", entry.ActorID),
			slog.Any("error", err))
		if s.telemetry != nil {
			s.telemetry.AuditWriteFailure()
		}
	}
}

var _ authz.Resolver = (*Service)(nil)
