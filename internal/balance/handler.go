package balance

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/gestcom-app/gestcom/internal/platform/httpx"
)

// Handler serves balance and aging reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
	group   singleflight.Group
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers balance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/balance", h.getBalance)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	partnerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "partner id must be numeric")
		return
	}

	role := Role(r.URL.Query().Get("role"))
	if role == "" {
		role = RoleCustomer
	}

	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "as_of must be YYYY-MM-DD")
			return
		}
	}

	// Identical in-flight requests share one computation.
	key := string(role) + ":" + strconv.FormatInt(partnerID, 10) + ":" + asOf.Format("2006-01-02")
	value, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.service.Report(r.Context(), partnerID, role, asOf)
	})
	if err != nil {
		if errors.Is(err, ErrUnknownRole) {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Role", "role must be customer or supplier")
			return
		}
		h.logger.Error("balance report", slog.Any("error", err), slog.Int64("partner", partnerID))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	httpx.JSON(w, http.StatusOK, value.(CounterpartyBalance))
}
