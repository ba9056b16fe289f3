package users

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/rollcall-hq/rollcall/internal/audit"
	"github.com/rollcall-hq/rollcall/internal/authz"
	"github.com/rollcall-hq/rollcall/internal/shared"
)

type stubRepo struct {
	users       map[int64]User
	nextID      int64
	updateCalls int
	deleteCalls int
}

func newStubRepo(seed ...User) *stubRepo {
	r := &stubRepo{users: make(map[int64]User), nextID: 100}
	for _, u := range seed {
		r.users[u.ID] = u
	}
	return r
}

func (r *stubRepo) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *stubRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (r *stubRepo) CreateUser(ctx context.Context, u User) (User, error) {
	u.ID = r.nextID
	r.nextID++
	r.users[u.ID] = u
	return u, nil
}

func (r *stubRepo) UpdateUser(ctx context.Context, u User) (User, error) {
	r.updateCalls++
	if _, ok := r.users[u.ID]; !ok {
		return User{}, shared.ErrNotFound
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *stubRepo) DeleteUser(ctx context.Context, id int64) error {
	r.deleteCalls++
	if _, ok := r.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type stubRecorder struct {
	entries []audit.NewEntry
	err     error
}

func (s *stubRecorder) Record(ctx context.Context, entry audit.NewEntry) (*audit.Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.entries = append(s.entries, entry)
	return &audit.Entry{ID: int64(len(s.entries)), Action: entry.Action}, nil
}

type stubTelemetry struct {
	auditFailures int
	denials       []string
}

func (s *stubTelemetry) AuditWriteFailure()            { s.auditFailures++ }
func (s *stubTelemetry) AuthorizationDenied(op string) { s.denials = append(s.denials, op) }

var (
	adminActor = authz.Principal{ID: 1, Role: authz.RoleAdmin}
	modActor   = authz.Principal{ID: 2, Role: authz.RoleModerator}
	userActor  = authz.Principal{ID: 3, Role: authz.RoleUser}
)

func seedUsers() []User {
	return []User{
		{ID: 1, Email: "root@corp.test", Name: "Root", Role: authz.RoleAdmin, IsActive: true},
		{ID: 2, Email: "mod@corp.test", Name: "Mod", Role: authz.RoleModerator, IsActive: true},
		{ID: 3, Email: "alice@corp.test", Name: "Alice", Role: authz.RoleUser, IsActive: true},
		{ID: 4, Email: "bob@corp.test", Name: "Bob", Role: authz.RoleUser, IsActive: true},
	}
}

func newService(repo *stubRepo, rec *stubRecorder, tel *stubTelemetry) *Service {
	if tel == nil {
		// Avoid wrapping a typed nil in the Telemetry interface, which
		// would defeat the service's nil check.
		return NewService(repo, rec, nil, nil)
	}
	return NewService(repo, rec, nil, tel)
}

func TestListAllowedForEveryRole(t *testing.T) {
	svc := newService(newStubRepo(seedUsers()...), &stubRecorder{}, nil)
	for _, actor := range []authz.Principal{adminActor, modActor, userActor} {
		if _, err := svc.List(context.Background(), actor); err != nil {
			t.Fatalf("list as %s: %v", actor.Role, err)
		}
	}
}

func TestGetDistinguishesNotFoundFromDenied(t *testing.T) {
	svc := newService(newStubRepo(seedUsers()...), &stubRecorder{}, nil)

	if _, err := svc.Get(context.Background(), userActor, 999); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("missing target: err = %v, want not found", err)
	}

	_, err := svc.Get(context.Background(), userActor, 4)
	if reason, ok := shared.DenialReason(err); !ok || reason != "access denied" {
		t.Fatalf("viewing other account: err = %v, want denial", err)
	}

	if _, err := svc.Get(context.Background(), userActor, 3); err != nil {
		t.Fatalf("viewing own account: %v", err)
	}
}

func TestCreateOnlyAdmin(t *testing.T) {
	tel := &stubTelemetry{}
	svc := newService(newStubRepo(seedUsers()...), &stubRecorder{}, tel)

	in := CreateInput{Email: "new@corp.test", Name: "New", Password: "longenough"}
	_, err := svc.Create(context.Background(), modActor, in, "")
	if reason, ok := shared.DenialReason(err); !ok || reason != "only admin can create users" {
		t.Fatalf("moderator create: err = %v", err)
	}
	if len(tel.denials) != 1 || tel.denials[0] != string(authz.OpCreate) {
		t.Fatalf("denial telemetry = %v", tel.denials)
	}
}

func TestCreateHashesPasswordAndAudits(t *testing.T) {
	rec := &stubRecorder{}
	svc := newService(newStubRepo(seedUsers()...), rec, nil)

	created, err := svc.Create(context.Background(), adminActor, CreateInput{
		Email:    "new@corp.test",
		Name:     "New",
		Password: "longenough",
		Role:     authz.RoleModerator,
	}, "10.0.0.1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Role != authz.RoleModerator {
		t.Fatalf("role = %s", created.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("longenough")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	if len(rec.entries) != 1 {
		t.Fatalf("audit entries = %d", len(rec.entries))
	}
	entry := rec.entries[0]
	if entry.Action != audit.ActionCreateUser || entry.ActorID != 1 {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.Meta.Kind != audit.MetaUserDetails || entry.Meta.Email != "new@corp.test" {
		t.Fatalf("meta = %+v", entry.Meta)
	}
	if entry.IPAddress != "10.0.0.1" {
		t.Fatalf("ip = %q", entry.IPAddress)
	}
}

func TestCreateDefaultsToBasicRole(t *testing.T) {
	svc := newService(newStubRepo(), &stubRecorder{}, nil)
	created, err := svc.Create(context.Background(), adminActor, CreateInput{
		Email: "x@corp.test", Name: "X", Password: "longenough",
	}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Role != authz.RoleUser {
		t.Fatalf("role = %s, want user", created.Role)
	}
}

func TestUpdateAuditsFieldChanges(t *testing.T) {
	rec := &stubRecorder{}
	svc := newService(newStubRepo(seedUsers()...), rec, nil)

	email := "alice.new@corp.test"
	if _, err := svc.Update(context.Background(), modActor, 3, UpdateInput{Email: &email}, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("audit entries = %d", len(rec.entries))
	}
	meta := rec.entries[0].Meta
	if meta.Kind != audit.MetaChanges || len(meta.Changes) != 1 {
		t.Fatalf("meta = %+v", meta)
	}
	change := meta.Changes[0]
	if change.Field != "email" || change.Old != "alice@corp.test" || change.New != "alice.new@corp.test" {
		t.Fatalf("change = %+v", change)
	}
}

func TestNoOpUpdateWritesNothing(t *testing.T) {
	repo := newStubRepo(seedUsers()...)
	rec := &stubRecorder{}
	svc := newService(repo, rec, nil)

	sameEmail := "alice@corp.test"
	sameName := "Alice"
	got, err := svc.Update(context.Background(), adminActor, 3, UpdateInput{Email: &sameEmail, Name: &sameName}, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Email != sameEmail {
		t.Fatalf("returned user = %+v", got)
	}
	if repo.updateCalls != 0 {
		t.Fatalf("repository update called %d times for a no-op", repo.updateCalls)
	}
	if len(rec.entries) != 0 {
		t.Fatalf("no-op update produced %d audit entries", len(rec.entries))
	}
}

func TestUpdatePasswordChangeIsHiddenInTrail(t *testing.T) {
	rec := &stubRecorder{}
	svc := newService(newStubRepo(seedUsers()...), rec, nil)

	pw := "newsecret123"
	if _, err := svc.Update(context.Background(), adminActor, 3, UpdateInput{Password: &pw}, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	change := rec.entries[0].Meta.Changes[0]
	if change.Field != "password" {
		t.Fatalf("field = %s", change.Field)
	}
	if change.Old != passwordPlaceholder || change.New != passwordPlaceholder {
		t.Fatalf("password values leaked into trail: %+v", change)
	}
}

func TestModeratorCannotEscalateRole(t *testing.T) {
	repo := newStubRepo(seedUsers()...)
	rec := &stubRecorder{}
	svc := newService(repo, rec, nil)

	role := authz.RoleAdmin
	name := "Renamed"
	_, err := svc.Update(context.Background(), modActor, 3, UpdateInput{Role: &role, Name: &name}, "")
	if _, ok := shared.DenialReason(err); !ok {
		t.Fatalf("err = %v, want denial", err)
	}
	// The entire update is rejected: the rename must not slip through.
	if repo.updateCalls != 0 {
		t.Fatalf("denied role change still mutated the account")
	}
	if got := repo.users[3].Name; got != "Alice" {
		t.Fatalf("name = %q after denied update", got)
	}
	if len(rec.entries) != 0 {
		t.Fatalf("denied update produced audit entries")
	}
}

func TestAdminMayChangeAnyRole(t *testing.T) {
	svc := newService(newStubRepo(seedUsers()...), &stubRecorder{}, nil)
	role := authz.RoleModerator
	updated, err := svc.Update(context.Background(), adminActor, 3, UpdateInput{Role: &role}, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Role != authz.RoleModerator {
		t.Fatalf("role = %s", updated.Role)
	}
}

func TestDeleteRules(t *testing.T) {
	svc := newService(newStubRepo(seedUsers()...), &stubRecorder{}, nil)

	err := svc.Delete(context.Background(), adminActor, 1, "")
	if reason, ok := shared.DenialReason(err); !ok || reason != "admins cannot delete their own account" {
		t.Fatalf("admin self delete: err = %v", err)
	}

	err = svc.Delete(context.Background(), modActor, 2, "")
	if reason, ok := shared.DenialReason(err); !ok || reason != "moderators can only delete basic users" {
		t.Fatalf("moderator deleting moderator: err = %v", err)
	}

	err = svc.Delete(context.Background(), userActor, 4, "")
	if reason, ok := shared.DenialReason(err); !ok || reason != "basic users cannot delete accounts" {
		t.Fatalf("user delete: err = %v", err)
	}
}

func TestDeleteAuditsTargetDetails(t *testing.T) {
	rec := &stubRecorder{}
	svc := newService(newStubRepo(seedUsers()...), rec, nil)

	if err := svc.Delete(context.Background(), modActor, 4, "192.0.2.7"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("audit entries = %d", len(rec.entries))
	}
	entry := rec.entries[0]
	if entry.Action != audit.ActionDeleteUser {
		t.Fatalf("action = %s", entry.Action)
	}
	if entry.TargetID == nil || *entry.TargetID != 4 {
		t.Fatalf("target = %v", entry.TargetID)
	}
	if entry.Meta.Email != "bob@corp.test" || entry.Meta.Role != "user" {
		t.Fatalf("meta = %+v", entry.Meta)
	}
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	repo := newStubRepo(seedUsers()...)
	rec := &stubRecorder{err: errors.New("store down")}
	tel := &stubTelemetry{}
	svc := newService(repo, rec, tel)

	if err := svc.Delete(context.Background(), adminActor, 4, ""); err != nil {
		t.Fatalf("mutation failed because of audit error: %v", err)
	}
	if _, ok := repo.users[4]; ok {
		t.Fatalf("account not deleted")
	}
	if tel.auditFailures != 1 {
		t.Fatalf("audit failure counter = %d", tel.auditFailures)
	}
}

func TestResolvePrincipalRejectsInactive(t *testing.T) {
	repo := newStubRepo(User{ID: 9, Email: "gone@corp.test", Role: authz.RoleUser, IsActive: false})
	svc := newService(repo, &stubRecorder{}, nil)
	if _, err := svc.ResolvePrincipal(context.Background(), 9); err == nil {
		t.Fatalf("expected error for inactive account")
	}
}

func TestDiffUsers(t *testing.T) {
	base := User{Name: "A", Email: "a@x.com", Role: authz.RoleUser, IsActive: true, PasswordHash: "h1"}

	if got := diffUsers(base, base); len(got) != 0 {
		t.Fatalf("identical images produced changes: %+v", got)
	}

	changed := base
	changed.Name = "B"
	changed.Email = "b@x.com"
	changed.Role = authz.RoleModerator
	changed.IsActive = false
	changed.PasswordHash = "h2"
	got := diffUsers(base, changed)
	if len(got) != 5 {
		t.Fatalf("changes = %d, want 5 (%+v)", len(got), got)
	}
	fields := make(map[string]audit.FieldChange, len(got))
	for _, c := range got {
		fields[c.Field] = c
	}
	if c := fields["role"]; c.Old != "user" || c.New != "moderator" {
		t.Fatalf("role change = %+v", c)
	}
	if c := fields["is_active"]; c.Old != "true" || c.New != "false" {
		t.Fatalf("is_active change = %+v", c)
	}
}
