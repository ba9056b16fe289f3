package audit

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rollcall-hq/rollcall/internal/authz"
	"github.com/rollcall-hq/rollcall/internal/shared"
)

// ErrForbidden indicates a non-admin caller tried to read the trail.
var ErrForbidden = errors.New("audit: admin only")

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository provides append-only persistence for audit entries.
type Repository interface {
	Insert(ctx context.Context, entry NewEntry) (Entry, error)
	Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
	Count(ctx context.Context, filters Filters) (int, error)
}

// Result bundles one page of entries with pagination metadata.
type Result struct {
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

// Recorder writes and reads the audit trail.
type Recorder struct {
	repo Repository
}

// NewRecorder constructs a Recorder.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record persists one entry and returns it with the store-assigned id
// and timestamp. An EDIT_USER entry whose change list is empty is a
// deliberate no-op: an update that changed nothing leaves no trace.
func (r *Recorder) Record(ctx context.Context, entry NewEntry) (*Entry, error) {
	if r.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if !entry.Action.Valid() {
		return nil, fmt.Errorf("audit: unknown action type %q", entry.Action)
	}
	if entry.Action == ActionEditUser && entry.Meta.Kind == MetaChanges && len(entry.Meta.Changes) == 0 {
		return nil, nil
	}
	written, err := r.repo.Insert(ctx, entry)
	if err != nil {
		return nil, err
	}
	return &written, nil
}

// Query returns one page of entries, newest first (created_at descending,
// ties broken by descending id). Supplied filters combine conjunctively.
// Pages are 1-indexed; a page past the end returns an empty list with
// accurate totals rather than an error. Only admins may read the trail.
func (r *Recorder) Query(ctx context.Context, callerRole authz.Role, filters Filters, page, pageSize int) (Result, error) {
	if r.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if callerRole != authz.RoleAdmin {
		return Result{}, ErrForbidden
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var (
		entries []Entry
		total   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.repo.Window(gctx, filters, pageSize, offset)
		if err != nil {
			return err
		}
		entries = rows
		return nil
	})
	g.Go(func() error {
		n, err := r.repo.Count(gctx, filters)
		if err != nil {
			return err
		}
		total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if entries == nil {
		entries = []Entry{}
	}
	return Result{
		Entries:    entries,
		Pagination: shared.NewPagination(page, pageSize, total),
	}, nil
}
