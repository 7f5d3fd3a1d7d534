package report

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gestcom-app/gestcom/internal/billing"
	"github.com/gestcom-app/gestcom/internal/platform/httpx"
)

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>{{.Number}}</title>
<style>
body { font-family: sans-serif; font-size: 12px; }
table { width: 100%; border-collapse: collapse; margin-top: 1em; }
th, td { border: 1px solid #444; padding: 4px 8px; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.totals td { font-weight: bold; }
</style>
</head>
<body>
<h1>{{.Title}} {{.Number}}</h1>
<p>Date : {{.IssuedAt}}</p>
<table>
<thead>
<tr><th>Désignation</th><th>Qté</th><th>P.U. HT</th><th>Remise %</th><th>TVA %</th><th>Total HT</th></tr>
</thead>
<tbody>
{{range .Lines}}
<tr><td>{{.Description}}</td><td>{{.Quantity}}</td><td>{{.UnitPrice}}</td><td>{{.DiscountPct}}</td><td>{{.TaxPct}}</td><td>{{.Total}}</td></tr>
{{end}}
</tbody>
</table>
<table class="totals">
<tr><td>Total HT</td><td>{{.TotalExclTax}}</td></tr>
{{if .TotalFodec}}<tr><td>FODEC</td><td>{{.TotalFodec}}</td></tr>{{end}}
<tr><td>Total TVA</td><td>{{.TotalTax}}</td></tr>
{{if .TotalStamp}}<tr><td>Timbre fiscal</td><td>{{.TotalStamp}}</td></tr>{{end}}
<tr><td>Total TTC</td><td>{{.TotalInclTax}}</td></tr>
</table>
</body>
</html>`))

var documentTitles = map[billing.DocumentType]string{
	billing.TypePurchaseReception: "Bon de réception",
	billing.TypePurchaseInvoice:   "Facture fournisseur",
	billing.TypeDeliveryNote:      "Bon de livraison",
	billing.TypeSalesInvoice:      "Facture",
	billing.TypeCreditNote:        "Avoir",
}

type documentView struct {
	Title        string
	Number       string
	IssuedAt     string
	Lines        []lineView
	TotalExclTax string
	TotalFodec   string
	TotalTax     string
	TotalStamp   string
	TotalInclTax string
}

type lineView struct {
	Description string
	Quantity    string
	UnitPrice   string
	DiscountPct string
	TaxPct      string
	Total       string
}

// BuildDocumentHTML renders the printable HTML of one document.
func BuildDocumentHTML(doc *billing.DocumentWithLines) (string, error) {
	view := documentView{
		Title:        documentTitles[doc.Type],
		Number:       doc.Number,
		IssuedAt:     doc.IssuedAt.Format("02/01/2006"),
		TotalExclTax: FormatAmount(doc.Totals.TotalExclTax),
		TotalTax:     FormatAmount(doc.Totals.TotalTax),
		TotalInclTax: FormatAmount(doc.Totals.TotalInclTax),
	}
	if doc.Modifiers.FodecEnabled {
		view.TotalFodec = FormatAmount(doc.Totals.TotalFodec)
	}
	if doc.Modifiers.StampEnabled {
		view.TotalStamp = FormatAmount(doc.Totals.TotalStamp)
	}
	for _, line := range doc.Lines {
		view.Lines = append(view.Lines, lineView{
			Description: line.Description,
			Quantity:    FormatQuantity(line.Quantity),
			UnitPrice:   FormatAmount(line.UnitPrice),
			DiscountPct: FormatQuantity(line.DiscountPct),
			TaxPct:      FormatQuantity(line.TaxPct),
			Total:       FormatAmount(line.TotalExclTax),
		})
	}

	var sb strings.Builder
	if err := documentTemplate.Execute(&sb, view); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Handler manages report endpoints.
type Handler struct {
	client  *Client
	billing *billing.Service
	logger  *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, billingSvc *billing.Service, logger *slog.Logger) *Handler {
	return &Handler{client: client, billing: billingSvc, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/documents/{id}/pdf", h.documentPDF)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) documentPDF(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be numeric")
		return
	}

	doc, err := h.billing.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, billing.ErrDocumentNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("load document for pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	html, err := BuildDocumentHTML(doc)
	if err != nil {
		h.logger.Error("render document html", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	pdf, err := h.client.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("gotenberg render", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+doc.Number+`.pdf"`)
	_, _ = w.Write(pdf)
}
