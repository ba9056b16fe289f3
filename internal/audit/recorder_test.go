package audit

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rollcall-hq/rollcall/internal/authz"
)

// memRepo is an in-memory Repository honoring the same ordering and
// filtering contract as the PostgreSQL implementation.
type memRepo struct {
	entries []Entry
	nextID  int64
	clock   time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, clock: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *memRepo) Insert(ctx context.Context, entry NewEntry) (Entry, error) {
	written := Entry{
		ID:        m.nextID,
		Action:    entry.Action,
		ActorID:   entry.ActorID,
		TargetID:  entry.TargetID,
		Meta:      entry.Meta,
		IPAddress: entry.IPAddress,
		CreatedAt: m.clock,
	}
	m.nextID++
	m.clock = m.clock.Add(time.Second)
	m.entries = append(m.entries, written)
	return written, nil
}

func (m *memRepo) matches(e Entry, f Filters) bool {
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}

func (m *memRepo) Window(ctx context.Context, f Filters, limit, offset int) ([]Entry, error) {
	var matched []Entry
	for _, e := range m.entries {
		if m.matches(e, f) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memRepo) Count(ctx context.Context, f Filters) (int, error) {
	total := 0
	for _, e := range m.entries {
		if m.matches(e, f) {
			total++
		}
	}
	return total, nil
}

func TestRecordAssignsIdentity(t *testing.T) {
	repo := newMemRepo()
	rec := NewRecorder(repo)
	target := int64(2)

	first, err := rec.Record(context.Background(), NewEntry{
		Action:   ActionEditUser,
		ActorID:  1,
		TargetID: &target,
		Meta:     ChangesMeta([]FieldChange{{Field: "email", Old: "a@x.com", New: "b@x.com"}}),
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotZero(t, first.ID)
	require.False(t, first.CreatedAt.IsZero())

	second, err := rec.Record(context.Background(), NewEntry{Action: ActionLogout, ActorID: 1})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestRecordRoundTrip(t *testing.T) {
	repo := newMemRepo()
	rec := NewRecorder(repo)
	target := int64(2)

	_, err := rec.Record(context.Background(), NewEntry{Action: ActionLoginSuccess, ActorID: 1})
	require.NoError(t, err)
	_, err = rec.Record(context.Background(), NewEntry{
		Action:   ActionEditUser,
		ActorID:  1,
		TargetID: &target,
		Meta:     ChangesMeta([]FieldChange{{Field: "email", Old: "a@x.com", New: "b@x.com"}}),
	})
	require.NoError(t, err)

	result, err := rec.Query(context.Background(), authz.RoleAdmin, Filters{Action: ActionEditUser}, 1, 20)
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	got := result.Entries[0]
	require.Equal(t, ActionEditUser, got.Action)
	require.Equal(t, MetaChanges, got.Meta.Kind)
	require.Equal(t, FieldChange{Field: "email", Old: "a@x.com", New: "b@x.com"}, got.Meta.Changes[0])
}

func TestRecordRejectsUnknownAction(t *testing.T) {
	rec := NewRecorder(newMemRepo())
	_, err := rec.Record(context.Background(), NewEntry{Action: "DROP_TABLE", ActorID: 1})
	require.Error(t, err)
}

func TestRecordNoOpEdit(t *testing.T) {
	repo := newMemRepo()
	rec := NewRecorder(repo)
	target := int64(2)

	entry, err := rec.Record(context.Background(), NewEntry{
		Action:   ActionEditUser,
		ActorID:  1,
		TargetID: &target,
		Meta:     ChangesMeta(nil),
	})
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Empty(t, repo.entries)
}

func TestQueryRequiresAdmin(t *testing.T) {
	rec := NewRecorder(newMemRepo())
	for _, role := range []authz.Role{authz.RoleModerator, authz.RoleUser} {
		_, err := rec.Query(context.Background(), role, Filters{}, 1, 20)
		require.ErrorIs(t, err, ErrForbidden)
	}
}

func TestQueryPaginationBoundaries(t *testing.T) {
	repo := newMemRepo()
	rec := NewRecorder(repo)
	for i := 0; i < 25; i++ {
		_, err := rec.Record(context.Background(), NewEntry{Action: ActionLoginSuccess, ActorID: 1})
		require.NoError(t, err)
	}

	page1, err := rec.Query(context.Background(), authz.RoleAdmin, Filters{}, 1, 20)
	require.NoError(t, err)
	require.Len(t, page1.Entries, 20)
	require.Equal(t, 25, page1.Pagination.Total)
	require.Equal(t, 2, page1.Pagination.TotalPages)

	page2, err := rec.Query(context.Background(), authz.RoleAdmin, Filters{}, 2, 20)
	require.NoError(t, err)
	require.Len(t, page2.Entries, 5)

	page3, err := rec.Query(context.Background(), authz.RoleAdmin, Filters{}, 3, 20)
	require.NoError(t, err)
	require.Empty(t, page3.Entries)
	require.Equal(t, 25, page3.Pagination.Total)
	require.Equal(t, 2, page3.Pagination.TotalPages)
}

func TestQueryNewestFirst(t *testing.T) {
	repo := newMemRepo()
	rec := NewRecorder(repo)
	for i := 0; i < 5; i++ {
		_, err := rec.Record(context.Background(), NewEntry{Action: ActionLoginSuccess, ActorID: 1})
		require.NoError(t, err)
	}

	result, err := rec.Query(context.Background(), authz.RoleAdmin, Filters{}, 1, 20)
	require.NoError(t, err)
	require.Len(t, result.Entries, 5)
	for i := 1; i < len(result.Entries); i++ {
		prev, cur := result.Entries[i-1], result.Entries[i]
		require.True(t, prev.CreatedAt.After(cur.CreatedAt) ||
			(prev.CreatedAt.Equal(cur.CreatedAt) && prev.ID > cur.ID),
			"entries out of order at %d", i)
	}
}

func TestQueryFiltersAreConjunctive(t *testing.T) {
	repo := newMemRepo()
	rec := NewRecorder(repo)

	// Entries arrive one second apart starting at 12:00:00.
	for i := 0; i < 4; i++ {
		_, err := rec.Record(context.Background(), NewEntry{Action: ActionLoginFailure, ActorID: 1})
		require.NoError(t, err)
	}
	_, err := rec.Record(context.Background(), NewEntry{Action: ActionLogout, ActorID: 1})
	require.NoError(t, err)

	from := time.Date(2024, 6, 1, 12, 0, 1, 0, time.UTC)
	to := time.Date(2024, 6, 1, 12, 0, 2, 0, time.UTC)
	result, err := rec.Query(context.Background(), authz.RoleAdmin, Filters{From: from, To: to, Action: ActionLoginFailure}, 1, 20)
	require.NoError(t, err)
	// Matching action outside the window is excluded; the window bounds
	// are inclusive.
	require.Len(t, result.Entries, 2)
	for _, e := range result.Entries {
		require.Equal(t, ActionLoginFailure, e.Action)
		require.False(t, e.CreatedAt.Before(from))
		require.False(t, e.CreatedAt.After(to))
	}
}
