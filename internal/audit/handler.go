package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nyumbani/nyumbani-access/internal/platform/httpx"
)

// Handler serves the audit timeline. Route gating is applied by the router
// so this package stays independent of the access package.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeline", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{
		Entity: q.Get("entity"),
		Action: q.Get("action"),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "from must be RFC3339")
			return
		}
		filters.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "to must be RFC3339")
			return
		}
		filters.To = t
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("audit timeline", slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
