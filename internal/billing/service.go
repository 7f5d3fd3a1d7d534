package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestcom-app/gestcom/internal/stock"
)

// RepositoryPort defines data access methods for documents.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64) (*Document, error)
	GetDocumentWithLines(ctx context.Context, id int64) (*DocumentWithLines, error)
	GetDocumentBySource(ctx context.Context, sourceID int64) (*Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error)
	NextSequence(ctx context.Context, docType DocumentType, year int) (int64, error)
}

// TxRepository exposes the write operations that must share one
// transaction.
type TxRepository interface {
	InsertDocument(ctx context.Context, doc Document) (int64, error)
	InsertLine(ctx context.Context, line LineItem) (int64, error)
	UpdateDocument(ctx context.Context, doc Document) error
	DeleteLines(ctx context.Context, documentID int64) error
	UpdateStatus(ctx context.Context, id int64, status DocumentStatus, validatedAt *time.Time, validatedBy *int64) error
}

// StockPort is the slice of the stock reconciler the billing service
// drives on validation, cancellation and conversion.
type StockPort interface {
	Upsert(ctx context.Context, key stock.MovementKey, qty decimal.Decimal, direction stock.Direction, movedAt time.Time) error
	Retarget(ctx context.Context, oldKey, newKey stock.MovementKey) (*stock.Anomaly, error)
	RemoveSource(ctx context.Context, sourceType string, sourceID int64) error
}

// CacheBumper invalidates derived read models after document writes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// ListFilter scopes document listing.
type ListFilter struct {
	Type      DocumentType
	Status    DocumentStatus
	PartnerID int64
	Limit     int
}

// LineInput is one requested document line.
type LineInput struct {
	ProductID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
	TaxPct      decimal.Decimal
}

// CreateDocumentInput describes a document to create.
type CreateDocumentInput struct {
	Type         DocumentType
	PartnerID    int64
	Currency     string
	PaymentTerms string
	IssuedAt     time.Time
	CreatedBy    int64
	Modifiers    Modifiers
	Lines        []LineInput
}

// UpdateDocumentInput carries replacement lines and modifiers.
type UpdateDocumentInput struct {
	PaymentTerms string
	Modifiers    Modifiers
	Lines        []LineInput
}

// ConversionResult reports a conversion outcome, including any stock
// anomalies encountered while retargeting movements.
type ConversionResult struct {
	Document  *DocumentWithLines
	Anomalies []stock.Anomaly
}

// ErrAlreadyConverted indicates the source document was converted
// before.
var ErrAlreadyConverted = errors.New("billing: document already converted")

// ErrUnknownType indicates an unrecognized document type.
var ErrUnknownType = errors.New("billing: unknown document type")

var numberPrefixes = map[DocumentType]string{
	TypePurchaseReception: "BR",
	TypePurchaseInvoice:   "FF",
	TypeDeliveryNote:      "BL",
	TypeSalesInvoice:      "FV",
	TypeCreditNote:        "AV",
}

// Service handles the document lifecycle: creation, validation with
// stock posting, cancellation and conversion.
type Service struct {
	repo  RepositoryPort
	stock StockPort
	cache CacheBumper
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, stockSvc StockPort, cache CacheBumper) *Service {
	return &Service{repo: repo, stock: stockSvc, cache: cache}
}

// CreateDocument creates a DRAFT document with totals computed by the
// shared aggregator.
func (s *Service) CreateDocument(ctx context.Context, input CreateDocumentInput) (*DocumentWithLines, error) {
	if _, ok := numberPrefixes[input.Type]; !ok {
		return nil, ErrUnknownType
	}
	lines, err := buildLines(input.Type, input.Lines)
	if err != nil {
		return nil, err
	}

	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}

	number, err := s.nextNumber(ctx, input.Type, issuedAt)
	if err != nil {
		return nil, err
	}

	doc := Document{
		Number:       number,
		Type:         input.Type,
		PartnerID:    input.PartnerID,
		Currency:     input.Currency,
		PaymentTerms: input.PaymentTerms,
		Status:       StatusDraft,
		Modifiers:    input.Modifiers,
		Totals:       Aggregate(lines, input.Modifiers),
		IssuedAt:     issuedAt,
		CreatedBy:    input.CreatedBy,
	}

	var docID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		docID = id
		for _, line := range lines {
			line.DocumentID = id
			if _, err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetDocumentWithLines(ctx, docID)
}

// UpdateDocument replaces a document's lines and modifiers and
// recomputes its totals. Updating a validated document rebuilds its
// stock movements from the new lines, so a product dropped by the edit
// loses its movement instead of leaving a stale stock effect behind.
// Cancelled documents are immutable, and so are documents that were
// already converted: their movements now belong to the target document.
func (s *Service) UpdateDocument(ctx context.Context, id int64, input UpdateDocumentInput) (*DocumentWithLines, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: cannot edit a cancelled document", ErrInvalidStatus)
	}
	if _, err := s.repo.GetDocumentBySource(ctx, id); err == nil {
		return nil, ErrAlreadyConverted
	} else if !errors.Is(err, ErrDocumentNotFound) {
		return nil, err
	}

	lines, err := buildLines(doc.Type, input.Lines)
	if err != nil {
		return nil, err
	}

	doc.PaymentTerms = input.PaymentTerms
	doc.Modifiers = input.Modifiers
	doc.Totals = Aggregate(lines, input.Modifiers)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateDocument(ctx, *doc); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		for _, line := range lines {
			line.DocumentID = id
			if _, err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if doc.Status == StatusValidated && doc.Type.MovesStock() {
		// Drop the previous movements first: a product removed by
		// the edit must not keep its stock effect.
		if err := s.stock.RemoveSource(ctx, string(doc.Type), id); err != nil {
			return nil, err
		}
		if err := s.postMovements(ctx, doc, lines); err != nil {
			return nil, err
		}
	}
	s.bump(ctx)
	return s.repo.GetDocumentWithLines(ctx, id)
}

// ValidateDocument moves a DRAFT document to VALIDATED and posts its
// stock movements. Validation is idempotent at the stock layer:
// re-posting upserts in place instead of duplicating.
func (s *Service) ValidateDocument(ctx context.Context, id int64, validatedBy int64) (*DocumentWithLines, error) {
	doc, err := s.repo.GetDocumentWithLines(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only DRAFT documents can be validated", ErrInvalidStatus)
	}

	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, StatusValidated, &now, &validatedBy)
	})
	if err != nil {
		return nil, err
	}

	if doc.Type.MovesStock() {
		if err := s.postMovements(ctx, &doc.Document, doc.Lines); err != nil {
			return nil, err
		}
	}
	s.bump(ctx)
	return s.repo.GetDocumentWithLines(ctx, id)
}

// CancelDocument moves a document to CANCELLED and removes its stock
// movements. Cancelled documents are excluded from balance reports.
func (s *Service) CancelDocument(ctx context.Context, id int64) (*Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: document already cancelled", ErrInvalidStatus)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, StatusCancelled, nil, nil)
	})
	if err != nil {
		return nil, err
	}

	if doc.Type.MovesStock() {
		if err := s.stock.RemoveSource(ctx, string(doc.Type), id); err != nil {
			return nil, err
		}
	}
	s.bump(ctx)
	return s.repo.GetDocument(ctx, id)
}

// ConvertDocument turns a validated delivery note into a sales invoice
// (or a reception into a purchase invoice). Lines are copied, totals
// recomputed with the shared aggregator, and existing stock movements
// are retargeted to the new document so stock is never depleted twice.
// Missing source movements are reported as anomalies in the result,
// not errors.
func (s *Service) ConvertDocument(ctx context.Context, id int64, createdBy int64) (*ConversionResult, error) {
	source, err := s.repo.GetDocumentWithLines(ctx, id)
	if err != nil {
		return nil, err
	}
	targetType := source.Type.ConvertsTo()
	if targetType == "" {
		return nil, ErrNotConvertible
	}
	if source.Status != StatusValidated {
		return nil, fmt.Errorf("%w: only VALIDATED documents can be converted", ErrInvalidStatus)
	}
	if existing, err := s.repo.GetDocumentBySource(ctx, id); err != nil && !errors.Is(err, ErrDocumentNotFound) {
		return nil, err
	} else if existing != nil {
		return nil, ErrAlreadyConverted
	}

	now := time.Now().UTC()
	number, err := s.nextNumber(ctx, targetType, now)
	if err != nil {
		return nil, err
	}

	lines := make([]LineItem, len(source.Lines))
	for i, line := range source.Lines {
		lines[i] = LineItem{
			ProductID:    line.ProductID,
			Description:  line.Description,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			DiscountPct:  line.DiscountPct,
			TaxPct:       line.TaxPct,
			TotalExclTax: ComputeLine(line),
		}
	}

	target := Document{
		Number:       number,
		Type:         targetType,
		PartnerID:    source.PartnerID,
		Currency:     source.Currency,
		PaymentTerms: source.PaymentTerms,
		Status:       StatusValidated,
		Modifiers:    source.Modifiers,
		Totals:       Aggregate(lines, source.Modifiers),
		SourceID:     id,
		IssuedAt:     now,
		ValidatedAt:  &now,
		ValidatedBy:  &createdBy,
		CreatedBy:    createdBy,
	}

	var targetID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		newID, err := tx.InsertDocument(ctx, target)
		if err != nil {
			return err
		}
		targetID = newID
		for _, line := range lines {
			line.DocumentID = newID
			if _, err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var anomalies []stock.Anomaly
	if source.Type.MovesStock() {
		for _, line := range source.Lines {
			oldKey := stock.MovementKey{SourceType: string(source.Type), SourceID: id, ProductID: line.ProductID}
			newKey := stock.MovementKey{SourceType: string(targetType), SourceID: targetID, ProductID: line.ProductID}
			anomaly, err := s.stock.Retarget(ctx, oldKey, newKey)
			if err != nil {
				return nil, err
			}
			if anomaly != nil {
				anomalies = append(anomalies, *anomaly)
			}
		}
	}

	s.bump(ctx)
	converted, err := s.repo.GetDocumentWithLines(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return &ConversionResult{Document: converted, Anomalies: anomalies}, nil
}

// GetDocument returns one document with its lines.
func (s *Service) GetDocument(ctx context.Context, id int64) (*DocumentWithLines, error) {
	return s.repo.GetDocumentWithLines(ctx, id)
}

// ListDocuments returns documents matching the filter.
func (s *Service) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 100
	}
	return s.repo.ListDocuments(ctx, filter)
}

func (s *Service) postMovements(ctx context.Context, doc *Document, lines []LineItem) error {
	direction := stock.DirectionOut
	if doc.Type.IsInbound() {
		direction = stock.DirectionIn
	}
	for _, line := range lines {
		key := stock.MovementKey{SourceType: string(doc.Type), SourceID: doc.ID, ProductID: line.ProductID}
		if err := s.stock.Upsert(ctx, key, line.Quantity, direction, doc.IssuedAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) nextNumber(ctx context.Context, docType DocumentType, issuedAt time.Time) (string, error) {
	seq, err := s.repo.NextSequence(ctx, docType, issuedAt.Year())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%05d", numberPrefixes[docType], issuedAt.Year(), seq), nil
}

func (s *Service) bump(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

func buildLines(docType DocumentType, inputs []LineInput) ([]LineItem, error) {
	lines := make([]LineItem, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity.IsNegative() && docType != TypeCreditNote {
			return nil, ErrNegativeQuantity
		}
		line := LineItem{
			ProductID:   in.ProductID,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			DiscountPct: in.DiscountPct,
			TaxPct:      in.TaxPct,
		}
		line.TotalExclTax = ComputeLine(line)
		lines = append(lines, line)
	}
	return lines, nil
}
