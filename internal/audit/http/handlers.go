package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rollcall-hq/rollcall/internal/audit"
	"github.com/rollcall-hq/rollcall/internal/authz"
	"github.com/rollcall-hq/rollcall/internal/platform/httpx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	dateLayout      = "2006-01-02"
)

// TrailService defines the read contract for the audit trail.
type TrailService interface {
	Query(ctx context.Context, callerRole authz.Role, filters audit.Filters, page, pageSize int) (audit.Result, error)
}

// Handler serves the audit trail query endpoint.
type Handler struct {
	logger  *slog.Logger
	service TrailService
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service TrailService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	filters, page, pageSize, err := parseQuery(r)
	if err != nil {
		var v validationError
		if errors.As(err, &v) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+v.field)
			return
		}
		h.serverError(w, "parse audit query", err)
		return
	}

	result, err := h.service.Query(r.Context(), principal.Role, filters, page, pageSize)
	if err != nil {
		if errors.Is(err, audit.ErrForbidden) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
			return
		}
		h.serverError(w, "query audit trail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseQuery(r *http.Request) (audit.Filters, int, int, error) {
	var filters audit.Filters

	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.Filters{}, 0, 0, validationError{field: "from"}
		}
		filters.From = from
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.Filters{}, 0, 0, validationError{field: "to"}
		}
		// Inclusive upper bound: stretch to the end of the day.
		filters.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return audit.Filters{}, 0, 0, validationError{field: "range"}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("action")); v != "" {
		action, err := audit.ParseActionType(v)
		if err != nil {
			return audit.Filters{}, 0, 0, validationError{field: "action"}
		}
		filters.Action = action
	}

	page := 1
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, 0, 0, validationError{field: "page"}
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(r.URL.Query().Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filters{}, 0, 0, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		pageSize = parsed
	}

	return filters, page, pageSize, nil
}

func (h *Handler) serverError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
