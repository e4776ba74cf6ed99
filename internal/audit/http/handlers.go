// Package audithttp serves the security audit log to administrators.
package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/audit"
	"github.com/coworkhub/coworkhub/internal/guard"
	"github.com/coworkhub/coworkhub/internal/platform/httpx"
)

const (
	defaultPageSize   = 20
	maxPageSize       = 100
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.Entry, error)
}

// Handler serves audit timeline requests.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if err := authorize(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := authorize(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(entries)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"security-audit.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

// authorize re-checks the role; the route policy already limits the prefix to ADMIN.
func authorize(r *http.Request) error {
	tok, ok := guard.TokenFromContext(r.Context())
	if !ok {
		return httpx.ErrUnauthorized
	}
	if !access.RoleSatisfies(tok.Role, access.RoleAdmin) {
		return httpx.ErrForbidden
	}
	return nil
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()

	toTime := now
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := parseTime(v)
		if err != nil {
			return audit.TimelineFilters{}, validationError{field: "to"}
		}
		toTime = parsed
	}
	fromTime := toTime.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := parseTime(v)
		if err != nil {
			return audit.TimelineFilters{}, validationError{field: "from"}
		}
		fromTime = parsed
	}
	if fromTime.After(toTime) || toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}

	page := 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page"}
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page_size"}
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		pageSize = parsed
	}

	return audit.TimelineFilters{
		From:     fromTime,
		To:       toTime,
		UserID:   strings.TrimSpace(q.Get("user_id")),
		Action:   strings.TrimSpace(q.Get("action")),
		IP:       strings.TrimSpace(q.Get("ip")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// parseTime accepts RFC3339 timestamps or plain dates.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", v)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.RespondError(w, err)
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return "invalid filter: " + v.field
}

func (validationError) Unwrap() error {
	return httpx.ErrValidation
}
