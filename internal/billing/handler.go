package billing

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
	"github.com/gestcom-app/gestcom/internal/stock"
)

// Handler manages document endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listDocuments)
	r.Post("/", h.createDocument)
	r.Get("/{id}", h.getDocument)
	r.Put("/{id}", h.updateDocument)
	r.Post("/{id}/validate", h.validateDocument)
	r.Post("/{id}/cancel", h.cancelDocument)
	r.Post("/{id}/convert", h.convertDocument)
}

type lineRequest struct {
	ProductID   int64  `json:"product_id" validate:"required,gt=0"`
	Description string `json:"description"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitPrice   string `json:"unit_price" validate:"required"`
	DiscountPct string `json:"discount_pct"`
	TaxPct      string `json:"tax_pct"`
}

type modifiersRequest struct {
	GlobalDiscountPct string `json:"global_discount_pct"`
	FodecEnabled      bool   `json:"fodec_enabled"`
	FodecRatePct      string `json:"fodec_rate_pct"`
	StampEnabled      bool   `json:"stamp_enabled"`
	StampAmount       string `json:"stamp_amount"`
}

type createDocumentRequest struct {
	Type         string           `json:"type" validate:"required"`
	PartnerID    int64            `json:"partner_id" validate:"required,gt=0"`
	Currency     string           `json:"currency"`
	PaymentTerms string           `json:"payment_terms"`
	IssuedAt     string           `json:"issued_at"`
	Modifiers    modifiersRequest `json:"modifiers"`
	Lines        []lineRequest    `json:"lines" validate:"dive"`
}

type updateDocumentRequest struct {
	PaymentTerms string           `json:"payment_terms"`
	Modifiers    modifiersRequest `json:"modifiers"`
	Lines        []lineRequest    `json:"lines" validate:"dive"`
}

type lineResponse struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"product_id"`
	Description  string `json:"description,omitempty"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	DiscountPct  string `json:"discount_pct"`
	TaxPct       string `json:"tax_pct"`
	TotalExclTax string `json:"total_excl_tax"`
}

type documentResponse struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	Type         DocumentType    `json:"type"`
	PartnerID    int64           `json:"partner_id"`
	Currency     string          `json:"currency,omitempty"`
	PaymentTerms string          `json:"payment_terms,omitempty"`
	Status       DocumentStatus  `json:"status"`
	SourceID     int64           `json:"source_id,omitempty"`
	IssuedAt     time.Time       `json:"issued_at"`
	TotalExclTax string          `json:"total_excl_tax"`
	TotalFodec   string          `json:"total_fodec"`
	TotalTax     string          `json:"total_tax"`
	TotalStamp   string          `json:"total_stamp"`
	TotalInclTax string          `json:"total_incl_tax"`
	Lines        []lineResponse  `json:"lines,omitempty"`
	Anomalies    []stock.Anomaly `json:"anomalies,omitempty"`
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
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

	doc, err := h.service.CreateDocument(r.Context(), input)
	if err != nil {
		h.respondDocumentError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc, nil))
}

func (h *Handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req updateDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	lines, err := parseLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	mods, err := parseModifiers(req.Modifiers)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doc, err := h.service.UpdateDocument(r.Context(), id, UpdateDocumentInput{
		PaymentTerms: req.PaymentTerms,
		Modifiers:    mods,
		Lines:        lines,
	})
	if err != nil {
		h.respondDocumentError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc, nil))
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.respondDocumentError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc, nil))
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Type:   DocumentType(r.URL.Query().Get("type")),
		Status: DocumentStatus(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("partner_id"); raw != "" {
		partnerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "partner_id must be numeric")
			return
		}
		filter.PartnerID = partnerID
	}

	docs, err := h.service.ListDocuments(r.Context(), filter)
	if err != nil {
		h.logger.Error("list documents", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentResponse(&DocumentWithLines{Document: docs[i]}, nil))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (h *Handler) validateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.ValidateDocument(r.Context(), id, userID(r))
	if err != nil {
		h.respondDocumentError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc, nil))
}

func (h *Handler) cancelDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.CancelDocument(r.Context(), id)
	if err != nil {
		h.respondDocumentError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(&DocumentWithLines{Document: *doc}, nil))
}

func (h *Handler) convertDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	result, err := h.service.ConvertDocument(r.Context(), id, userID(r))
	if err != nil {
		h.respondDocumentError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(result.Document, result.Anomalies))
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrNotConvertible), errors.Is(err, ErrAlreadyConverted):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrNegativeQuantity), errors.Is(err, ErrUnknownType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("document operation", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// userID extracts the acting user from the X-User-ID header set by the
// upstream gateway. Authentication itself is handled there.
func userID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	return id
}

func (req createDocumentRequest) toInput() (CreateDocumentInput, error) {
	lines, err := parseLines(req.Lines)
	if err != nil {
		return CreateDocumentInput{}, err
	}
	mods, err := parseModifiers(req.Modifiers)
	if err != nil {
		return CreateDocumentInput{}, err
	}

	input := CreateDocumentInput{
		Type:         DocumentType(req.Type),
		PartnerID:    req.PartnerID,
		Currency:     req.Currency,
		PaymentTerms: req.PaymentTerms,
		Modifiers:    mods,
		Lines:        lines,
	}
	if req.IssuedAt != "" {
		issuedAt, err := time.Parse("2006-01-02", req.IssuedAt)
		if err != nil {
			return input, errors.New("billing: issued_at must be YYYY-MM-DD")
		}
		input.IssuedAt = issuedAt
	}
	return input, nil
}

func parseLines(reqs []lineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for _, lr := range reqs {
		quantity, err := parseDecimal(lr.Quantity, "quantity")
		if err != nil {
			return nil, err
		}
		unitPrice, err := parseDecimal(lr.UnitPrice, "unit_price")
		if err != nil {
			return nil, err
		}
		discountPct, err := parseOptionalDecimal(lr.DiscountPct, "discount_pct")
		if err != nil {
			return nil, err
		}
		taxPct, err := parseOptionalDecimal(lr.TaxPct, "tax_pct")
		if err != nil {
			return nil, err
		}
		lines = append(lines, LineInput{
			ProductID:   lr.ProductID,
			Description: lr.Description,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			DiscountPct: discountPct,
			TaxPct:      taxPct,
		})
	}
	return lines, nil
}

func parseModifiers(req modifiersRequest) (Modifiers, error) {
	globalDiscount, err := parseOptionalDecimal(req.GlobalDiscountPct, "global_discount_pct")
	if err != nil {
		return Modifiers{}, err
	}
	fodecRate, err := parseOptionalDecimal(req.FodecRatePct, "fodec_rate_pct")
	if err != nil {
		return Modifiers{}, err
	}
	stampAmount, err := parseOptionalDecimal(req.StampAmount, "stamp_amount")
	if err != nil {
		return Modifiers{}, err
	}
	return Modifiers{
		GlobalDiscountPct: globalDiscount,
		FodecEnabled:      req.FodecEnabled,
		FodecRatePct:      fodecRate,
		StampEnabled:      req.StampEnabled,
		StampAmount:       stampAmount,
	}, nil
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("billing: " + field + " is not a valid decimal")
	}
	return value, nil
}

func parseOptionalDecimal(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(raw, field)
}

func toDocumentResponse(doc *DocumentWithLines, anomalies []stock.Anomaly) documentResponse {
	resp := documentResponse{
		ID:           doc.ID,
		Number:       doc.Number,
		Type:         doc.Type,
		PartnerID:    doc.PartnerID,
		Currency:     doc.Currency,
		PaymentTerms: doc.PaymentTerms,
		Status:       doc.Status,
		SourceID:     doc.SourceID,
		IssuedAt:     doc.IssuedAt,
		TotalExclTax: doc.Totals.TotalExclTax.StringFixed(3),
		TotalFodec:   doc.Totals.TotalFodec.StringFixed(3),
		TotalTax:     doc.Totals.TotalTax.StringFixed(3),
		TotalStamp:   doc.Totals.TotalStamp.StringFixed(3),
		TotalInclTax: doc.Totals.TotalInclTax.StringFixed(3),
		Anomalies:    anomalies,
	}
	for _, line := range doc.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:           line.ID,
			ProductID:    line.ProductID,
			Description:  line.Description,
			Quantity:     line.Quantity.String(),
			UnitPrice:    line.UnitPrice.StringFixed(3),
			DiscountPct:  line.DiscountPct.String(),
			TaxPct:       line.TaxPct.String(),
			TotalExclTax: line.TotalExclTax.StringFixed(3),
		})
	}
	return resp
}
