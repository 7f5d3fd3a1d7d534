package payment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gestcom-app/gestcom/internal/platform/httpx"
	"github.com/gestcom-app/gestcom/internal/shared"
)

// Handler manages payment endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	idempotency *shared.IdempotencyStore
}

// NewHandler builds Handler instance. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), idempotency: idempotency}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPayments)
	r.Post("/", h.createPayment)
	r.Get("/{id}", h.getPayment)
	r.Delete("/{id}", h.deletePayment)
}

type allocationRequest struct {
	InvoiceID int64  `json:"invoice_id" validate:"required,gt=0"`
	Amount    string `json:"amount" validate:"required"`
}

type createPaymentRequest struct {
	Reference   string              `json:"reference"`
	PartnerID   int64               `json:"partner_id" validate:"required,gt=0"`
	Method      string              `json:"method" validate:"required"`
	Note        string              `json:"note"`
	PaidAt      string              `json:"paid_at"`
	OnAccount   bool                `json:"on_account"`
	Amount      string              `json:"amount"`
	AdvanceUsed string              `json:"advance_used"`
	Allocations []allocationRequest `json:"allocations" validate:"dive"`
}

type paymentResponse struct {
	ID          int64              `json:"id"`
	Reference   string             `json:"reference"`
	PartnerID   int64              `json:"partner_id"`
	Amount      string             `json:"amount"`
	AdvanceUsed string             `json:"advance_used"`
	OnAccount   bool               `json:"on_account"`
	Method      string             `json:"method"`
	Note        string             `json:"note,omitempty"`
	PaidAt      time.Time          `json:"paid_at"`
	Allocations []allocationResult `json:"allocations,omitempty"`
}

type allocationResult struct {
	InvoiceID        int64  `json:"invoice_id"`
	PaidNow          string `json:"paid_now"`
	RemainingBalance string `json:"remaining_balance"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	// Retried submissions carrying the same key are rejected instead
	// of recording the payment twice.
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, shared.IdempotencyModulePayments); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
				return
			}
			h.logger.Error("idempotency check", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
	}

	payment, results, err := h.service.RegisterPayment(r.Context(), input)
	if err != nil {
		if idemKey != "" {
			_ = h.idempotency.Delete(r.Context(), idemKey)
		}
		h.respondPaymentError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, toPaymentResponse(*payment, results))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment id must be numeric")
		return
	}

	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.respondPaymentError(w, err)
		return
	}
	allocations, err := h.service.ListPaymentAllocations(r.Context(), id)
	if err != nil {
		h.respondPaymentError(w, err)
		return
	}

	resp := toPaymentResponse(*payment, nil)
	for _, a := range allocations {
		resp.Allocations = append(resp.Allocations, allocationResult{
			InvoiceID: a.InvoiceID,
			PaidNow:   a.Amount.StringFixed(3),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	var partnerID int64
	if raw := r.URL.Query().Get("partner_id"); raw != "" {
		var err error
		partnerID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "partner_id must be numeric")
			return
		}
	}

	payments, err := h.service.ListPayments(r.Context(), partnerID)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment id must be numeric")
		return
	}

	if err := h.service.DeletePayment(r.Context(), id); err != nil {
		h.respondPaymentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondPaymentError(w http.ResponseWriter, err error) {
	var overErr *OverpaymentError
	var invErr *InvalidInvoiceError
	switch {
	case errors.As(err, &overErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Overpayment", overErr.Error())
	case errors.As(err, &invErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Invoice", invErr.Error())
	case errors.Is(err, ErrPaymentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNoAllocations),
		errors.Is(err, ErrOnAccountWithAllocations),
		errors.Is(err, ErrNonPositiveAmount),
		errors.Is(err, ErrNegativeAdvanceUsed):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("payment operation", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (r createPaymentRequest) toInput() (CreatePaymentInput, error) {
	input := CreatePaymentInput{
		Reference: r.Reference,
		PartnerID: r.PartnerID,
		Method:    r.Method,
		Note:      r.Note,
		OnAccount: r.OnAccount,
	}

	if r.PaidAt != "" {
		paidAt, err := time.Parse("2006-01-02", r.PaidAt)
		if err != nil {
			return input, errors.New("payment: paid_at must be YYYY-MM-DD")
		}
		input.PaidAt = paidAt
	}

	var err error
	if r.Amount != "" {
		input.Amount, err = decimal.NewFromString(r.Amount)
		if err != nil {
			return input, errors.New("payment: amount is not a valid decimal")
		}
	}
	if r.AdvanceUsed != "" {
		input.AdvanceUsed, err = decimal.NewFromString(r.AdvanceUsed)
		if err != nil {
			return input, errors.New("payment: advance_used is not a valid decimal")
		}
	}

	for _, a := range r.Allocations {
		amount, err := decimal.NewFromString(a.Amount)
		if err != nil {
			return input, errors.New("payment: allocation amount is not a valid decimal")
		}
		input.Allocations = append(input.Allocations, AllocationInput{
			InvoiceID: a.InvoiceID,
			Amount:    amount,
		})
	}
	return input, nil
}

func toPaymentResponse(p Payment, results []AllocationResult) paymentResponse {
	resp := paymentResponse{
		ID:          p.ID,
		Reference:   p.Reference,
		PartnerID:   p.PartnerID,
		Amount:      p.Amount.StringFixed(3),
		AdvanceUsed: p.AdvanceUsed.StringFixed(3),
		OnAccount:   p.OnAccount,
		Method:      p.Method,
		Note:        p.Note,
		PaidAt:      p.PaidAt,
	}
	for _, res := range results {
		resp.Allocations = append(resp.Allocations, allocationResult{
			InvoiceID:        res.InvoiceID,
			PaidNow:          res.PaidNow.StringFixed(3),
			RemainingBalance: res.RemainingBalance.StringFixed(3),
		})
	}
	return resp
}
