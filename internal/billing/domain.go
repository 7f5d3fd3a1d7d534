package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType enumerates commercial document kinds.
type DocumentType string

const (
	// TypePurchaseReception is a goods reception from a supplier.
	TypePurchaseReception DocumentType = "PURCHASE_RECEPTION"
	// TypePurchaseInvoice is a supplier invoice.
	TypePurchaseInvoice DocumentType = "PURCHASE_INVOICE"
	// TypeDeliveryNote is an outbound delivery to a customer.
	TypeDeliveryNote DocumentType = "DELIVERY_NOTE"
	// TypeSalesInvoice is a customer invoice.
	TypeSalesInvoice DocumentType = "SALES_INVOICE"
	// TypeCreditNote is a customer credit note; its totals are negative.
	TypeCreditNote DocumentType = "CREDIT_NOTE"
)

// DocumentStatus enumerates the document lifecycle.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "DRAFT"
	StatusValidated DocumentStatus = "VALIDATED"
	StatusCancelled DocumentStatus = "CANCELLED"
)

// LineItem is one row of a commercial document. Quantity may be
// fractional; unit price may be negative on credit notes.
type LineItem struct {
	ID           int64
	DocumentID   int64
	ProductID    int64
	Description  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	DiscountPct  decimal.Decimal
	TaxPct       decimal.Decimal
	TotalExclTax decimal.Decimal
}

// Modifiers are the document-level adjustments applied after line
// aggregation.
type Modifiers struct {
	GlobalDiscountPct decimal.Decimal
	FodecEnabled      bool
	FodecRatePct      decimal.Decimal
	StampEnabled      bool
	StampAmount       decimal.Decimal
}

// Totals is the reconciled monetary output of a document.
// TotalInclTax = TotalExclTax + TotalFodec + TotalTax + TotalStamp.
type Totals struct {
	TotalExclTax decimal.Decimal
	TotalFodec   decimal.Decimal
	TotalTax     decimal.Decimal
	TotalStamp   decimal.Decimal
	TotalInclTax decimal.Decimal
}

// Document models a commercial document header.
type Document struct {
	ID           int64
	Number       string
	Type         DocumentType
	PartnerID    int64
	Currency     string
	PaymentTerms string
	Status       DocumentStatus
	Modifiers    Modifiers
	Totals       Totals
	// SourceID links a converted document back to its origin
	// (delivery note for a sales invoice, reception for a purchase
	// invoice). Zero when the document was created directly.
	SourceID    int64
	IssuedAt    time.Time
	ValidatedAt *time.Time
	ValidatedBy *int64
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DocumentWithLines bundles a header with its lines for detail views.
type DocumentWithLines struct {
	Document
	Lines []LineItem
}

// IsInbound reports whether validating the document increases stock.
func (t DocumentType) IsInbound() bool {
	return t == TypePurchaseReception || t == TypePurchaseInvoice
}

// MovesStock reports whether the document type posts stock movements
// on validation. Credit notes adjust money only.
func (t DocumentType) MovesStock() bool {
	switch t {
	case TypePurchaseReception, TypePurchaseInvoice, TypeDeliveryNote, TypeSalesInvoice:
		return true
	}
	return false
}

// ConvertsTo returns the document type a conversion produces, or ""
// when the type cannot be converted.
func (t DocumentType) ConvertsTo() DocumentType {
	switch t {
	case TypeDeliveryNote:
		return TypeSalesInvoice
	case TypePurchaseReception:
		return TypePurchaseInvoice
	}
	return ""
}

// ErrDocumentNotFound indicates the document does not exist.
var ErrDocumentNotFound = errors.New("billing: document not found")

// ErrInvalidStatus indicates the document is not in a status that
// permits the requested transition.
var ErrInvalidStatus = errors.New("billing: invalid document status")

// ErrNegativeQuantity indicates a reception or delivery line with a
// negative quantity. Credit note lines are exempt.
var ErrNegativeQuantity = errors.New("billing: quantity must be >= 0")

// ErrNotConvertible indicates the document type has no conversion
// target.
var ErrNotConvertible = errors.New("billing: document type cannot be converted")
