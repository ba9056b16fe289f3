package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rollcall-hq/rollcall/internal/audit"
	"github.com/rollcall-hq/rollcall/internal/authz"
	"github.com/rollcall-hq/rollcall/internal/shared"
)

type stubTrail struct {
	lastRole     authz.Role
	lastFilters  audit.Filters
	lastPage     int
	lastPageSize int
	result       audit.Result
	err          error
}

func (s *stubTrail) Query(ctx context.Context, callerRole authz.Role, filters audit.Filters, page, pageSize int) (audit.Result, error) {
	s.lastRole = callerRole
	s.lastFilters = filters
	s.lastPage = page
	s.lastPageSize = pageSize
	if s.err != nil {
		return audit.Result{}, s.err
	}
	return s.result, nil
}

func requestAs(p authz.Principal, target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(authz.ContextWithPrincipal(req.Context(), p))
}

func TestHandleQueryParsesFilters(t *testing.T) {
	trail := &stubTrail{result: audit.Result{Entries: []audit.Entry{}, Pagination: shared.NewPagination(2, 10, 0)}}
	h := NewHandler(nil, trail)

	req := requestAs(authz.Principal{ID: 1, Role: authz.RoleAdmin},
		"/audit?from=2024-06-01&to=2024-06-30&action=EDIT_USER&page=2&page_size=10")
	res := httptest.NewRecorder()
	h.handleQuery(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if trail.lastFilters.Action != audit.ActionEditUser {
		t.Fatalf("action filter = %q", trail.lastFilters.Action)
	}
	wantFrom := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !trail.lastFilters.From.Equal(wantFrom) {
		t.Fatalf("from = %v", trail.lastFilters.From)
	}
	// The upper bound is inclusive through end of day.
	if !trail.lastFilters.To.After(time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("to = %v", trail.lastFilters.To)
	}
	if trail.lastPage != 2 || trail.lastPageSize != 10 {
		t.Fatalf("page/pageSize = %d/%d", trail.lastPage, trail.lastPageSize)
	}

	var body struct {
		Entries    []audit.Entry     `json:"entries"`
		Pagination shared.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Pagination.Page != 2 {
		t.Fatalf("pagination page = %d", body.Pagination.Page)
	}
}

func TestHandleQueryRejectsBadInput(t *testing.T) {
	cases := []string{
		"/audit?from=junk",
		"/audit?to=2024-13-99",
		"/audit?from=2024-06-30&to=2024-06-01",
		"/audit?action=NOT_AN_ACTION",
		"/audit?page=0",
		"/audit?page_size=-5",
	}
	for _, target := range cases {
		trail := &stubTrail{}
		h := NewHandler(nil, trail)
		res := httptest.NewRecorder()
		h.handleQuery(res, requestAs(authz.Principal{ID: 1, Role: authz.RoleAdmin}, target))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", target, res.Code)
		}
	}
}

func TestHandleQueryForbiddenForNonAdmin(t *testing.T) {
	trail := &stubTrail{err: audit.ErrForbidden}
	h := NewHandler(nil, trail)
	res := httptest.NewRecorder()
	h.handleQuery(res, requestAs(authz.Principal{ID: 4, Role: authz.RoleModerator}, "/audit"))
	if res.Code != http.StatusForbidden {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestHandleQueryRequiresPrincipal(t *testing.T) {
	h := NewHandler(nil, &stubTrail{})
	res := httptest.NewRecorder()
	h.handleQuery(res, httptest.NewRequest(http.MethodGet, "/audit", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestHandleQueryCapsPageSize(t *testing.T) {
	trail := &stubTrail{result: audit.Result{Entries: []audit.Entry{}}}
	h := NewHandler(nil, trail)
	res := httptest.NewRecorder()
	h.handleQuery(res, requestAs(authz.Principal{ID: 1, Role: authz.RoleAdmin}, "/audit?page_size=500"))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if trail.lastPageSize != maxPageSize {
		t.Fatalf("pageSize = %d, want %d", trail.lastPageSize, maxPageSize)
	}
}
