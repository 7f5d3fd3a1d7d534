package billing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gestcom-app/gestcom/internal/stock"
)

type memoryBillingRepo struct {
	documents map[int64]*Document
	lines     map[int64][]LineItem
	sequences map[string]int64
	nextDocID int64
	nextLine  int64
}

func newMemoryBillingRepo() *memoryBillingRepo {
	return &memoryBillingRepo{
		documents: make(map[int64]*Document),
		lines:     make(map[int64][]LineItem),
		sequences: make(map[string]int64),
	}
}

func (r *memoryBillingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryBillingRepo) GetDocument(ctx context.Context, id int64) (*Document, error) {
	doc, ok := r.documents[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *memoryBillingRepo) GetDocumentWithLines(ctx context.Context, id int64) (*DocumentWithLines, error) {
	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DocumentWithLines{
		Document: *doc,
		Lines:    append([]LineItem(nil), r.lines[id]...),
	}, nil
}

func (r *memoryBillingRepo) GetDocumentBySource(ctx context.Context, sourceID int64) (*Document, error) {
	for _, doc := range r.documents {
		if doc.SourceID == sourceID && doc.Status != StatusCancelled {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, ErrDocumentNotFound
}

func (r *memoryBillingRepo) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error) {
	var out []Document
	for _, doc := range r.documents {
		if filter.Type != "" && doc.Type != filter.Type {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.PartnerID != 0 && doc.PartnerID != filter.PartnerID {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryBillingRepo) NextSequence(ctx context.Context, docType DocumentType, year int) (int64, error) {
	key := string(docType) + ":" + decimal.NewFromInt(int64(year)).String()
	r.sequences[key]++
	return r.sequences[key], nil
}

func (r *memoryBillingRepo) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	r.nextDocID++
	doc.ID = r.nextDocID
	doc.CreatedAt = time.Now()
	r.documents[doc.ID] = &doc
	return doc.ID, nil
}

func (r *memoryBillingRepo) InsertLine(ctx context.Context, line LineItem) (int64, error) {
	r.nextLine++
	line.ID = r.nextLine
	r.lines[line.DocumentID] = append(r.lines[line.DocumentID], line)
	return line.ID, nil
}

func (r *memoryBillingRepo) UpdateDocument(ctx context.Context, doc Document) error {
	existing, ok := r.documents[doc.ID]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = existing.Status
	doc.CreatedAt = existing.CreatedAt
	r.documents[doc.ID] = &doc
	return nil
}

func (r *memoryBillingRepo) DeleteLines(ctx context.Context, documentID int64) error {
	delete(r.lines, documentID)
	return nil
}

func (r *memoryBillingRepo) UpdateStatus(ctx context.Context, id int64, status DocumentStatus, validatedAt *time.Time, validatedBy *int64) error {
	doc, ok := r.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = status
	if validatedAt != nil {
		doc.ValidatedAt = validatedAt
	}
	if validatedBy != nil {
		doc.ValidatedBy = validatedBy
	}
	return nil
}

type memoryStockPort struct {
	movements map[stock.MovementKey]decimal.Decimal
	anomalies []stock.MovementKey
}

func newMemoryStockPort() *memoryStockPort {
	return &memoryStockPort{movements: make(map[stock.MovementKey]decimal.Decimal)}
}

func (m *memoryStockPort) Upsert(ctx context.Context, key stock.MovementKey, qty decimal.Decimal, direction stock.Direction, movedAt time.Time) error {
	m.movements[key] = qty
	return nil
}

func (m *memoryStockPort) Retarget(ctx context.Context, oldKey, newKey stock.MovementKey) (*stock.Anomaly, error) {
	qty, ok := m.movements[oldKey]
	if !ok {
		m.anomalies = append(m.anomalies, oldKey)
		return &stock.Anomaly{Key: oldKey, Reason: "no movement found at retarget"}, nil
	}
	delete(m.movements, oldKey)
	m.movements[newKey] = qty
	return nil, nil
}

func (m *memoryStockPort) RemoveSource(ctx context.Context, sourceType string, sourceID int64) error {
	for key := range m.movements {
		if key.SourceType == sourceType && key.SourceID == sourceID {
			delete(m.movements, key)
		}
	}
	return nil
}

func deliveryInput(lines ...LineInput) CreateDocumentInput {
	return CreateDocumentInput{
		Type:      TypeDeliveryNote,
		PartnerID: 5,
		Currency:  "TND",
		CreatedBy: 1,
		Lines:     lines,
	}
}

func simpleLine(productID int64, qty, price string) LineInput {
	return LineInput{
		ProductID: productID,
		Quantity:  dec(qty),
		UnitPrice: dec(price),
		TaxPct:    dec("19"),
	}
}

func TestCreateDocumentComputesTotals(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, newMemoryStockPort(), nil)

	doc, err := svc.CreateDocument(ctx, CreateDocumentInput{
		Type:      TypeSalesInvoice,
		PartnerID: 5,
		CreatedBy: 1,
		Lines: []LineInput{
			{ProductID: 1, Quantity: dec("10"), UnitPrice: dec("100"), TaxPct: dec("19")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, doc.Status)
	require.Equal(t, "1000", doc.Totals.TotalExclTax.String())
	require.Equal(t, "1190", doc.Totals.TotalInclTax.String())
	require.Contains(t, doc.Number, "FV-")
	require.Len(t, doc.Lines, 1)
}

func TestCreateDocumentWithoutLines(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	svc := NewService(repo, newMemoryStockPort(), nil)

	// An empty draft is valid and owes nothing, stamp included.
	doc, err := svc.CreateDocument(ctx, CreateDocumentInput{
		Type:      TypeSalesInvoice,
		PartnerID: 5,
		CreatedBy: 1,
		Modifiers: Modifiers{StampEnabled: true, StampAmount: dec("1.000")},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, doc.Status)
	require.Empty(t, doc.Lines)
	require.True(t, doc.Totals.TotalStamp.IsZero())
	require.True(t, doc.Totals.TotalInclTax.IsZero())
}

func TestCreateDocumentRejectsNegativeQuantity(t *testing.T) {
	svc := NewService(newMemoryBillingRepo(), newMemoryStockPort(), nil)

	_, err := svc.CreateDocument(context.Background(), deliveryInput(
		LineInput{ProductID: 1, Quantity: dec("-3"), UnitPrice: dec("10")},
	))
	require.ErrorIs(t, err, ErrNegativeQuantity)
}

func TestCreateCreditNoteAllowsNegativeAmounts(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryBillingRepo(), newMemoryStockPort(), nil)

	doc, err := svc.CreateDocument(ctx, CreateDocumentInput{
		Type:      TypeCreditNote,
		PartnerID: 5,
		CreatedBy: 1,
		Lines: []LineInput{
			{ProductID: 1, Quantity: dec("2"), UnitPrice: dec("-100"), TaxPct: dec("19")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "-200", doc.Totals.TotalExclTax.String())
	require.Equal(t, "-238", doc.Totals.TotalInclTax.String())
}

func TestValidateDocumentPostsMovements(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	stockPort := newMemoryStockPort()
	svc := NewService(repo, stockPort, nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(simpleLine(1, "5", "100"), simpleLine(2, "3", "40")))
	require.NoError(t, err)

	validated, err := svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusValidated, validated.Status)
	require.NotNil(t, validated.ValidatedAt)

	require.Len(t, stockPort.movements, 2)
	key := stock.MovementKey{SourceType: string(TypeDeliveryNote), SourceID: doc.ID, ProductID: 1}
	require.Equal(t, "5", stockPort.movements[key].String())
}

func TestValidateDocumentTwiceRejected(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryBillingRepo(), newMemoryStockPort(), nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(simpleLine(1, "5", "100")))
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)

	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCreditNoteValidationSkipsStock(t *testing.T) {
	ctx := context.Background()
	stockPort := newMemoryStockPort()
	svc := NewService(newMemoryBillingRepo(), stockPort, nil)

	doc, err := svc.CreateDocument(ctx, CreateDocumentInput{
		Type:      TypeCreditNote,
		PartnerID: 5,
		CreatedBy: 1,
		Lines:     []LineInput{{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("-50")}},
	})
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)

	require.Empty(t, stockPort.movements)
}

func TestUpdateValidatedDocumentReupsertsMovements(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	stockPort := newMemoryStockPort()
	svc := NewService(repo, stockPort, nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(simpleLine(1, "5", "100")))
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)

	// Editing the quantity after validation must update the existing
	// movement, never add a second one.
	_, err = svc.UpdateDocument(ctx, doc.ID, UpdateDocumentInput{
		Lines: []LineInput{simpleLine(1, "8", "100")},
	})
	require.NoError(t, err)

	require.Len(t, stockPort.movements, 1)
	key := stock.MovementKey{SourceType: string(TypeDeliveryNote), SourceID: doc.ID, ProductID: 1}
	require.Equal(t, "8", stockPort.movements[key].String())
}

func TestUpdateValidatedDocumentDropsRemovedProductMovements(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	stockPort := newMemoryStockPort()
	svc := NewService(repo, stockPort, nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(
		simpleLine(1, "5", "100"),
		simpleLine(2, "3", "40"),
	))
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)
	require.Len(t, stockPort.movements, 2)

	// Removing product 2 from the document must also remove its
	// movement, not leave a stock effect with no backing line.
	_, err = svc.UpdateDocument(ctx, doc.ID, UpdateDocumentInput{
		Lines: []LineInput{simpleLine(1, "5", "100")},
	})
	require.NoError(t, err)

	require.Len(t, stockPort.movements, 1)
	removed := stock.MovementKey{SourceType: string(TypeDeliveryNote), SourceID: doc.ID, ProductID: 2}
	require.NotContains(t, stockPort.movements, removed)
	kept := stock.MovementKey{SourceType: string(TypeDeliveryNote), SourceID: doc.ID, ProductID: 1}
	require.Equal(t, "5", stockPort.movements[kept].String())
}

func TestUpdateConvertedDocumentRejected(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	stockPort := newMemoryStockPort()
	svc := NewService(repo, stockPort, nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(simpleLine(1, "5", "100")))
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)
	result, err := svc.ConvertDocument(ctx, doc.ID, 9)
	require.NoError(t, err)

	// The movements were retargeted to the invoice; editing the
	// delivery note would post them again under the old key.
	_, err = svc.UpdateDocument(ctx, doc.ID, UpdateDocumentInput{
		Lines: []LineInput{simpleLine(1, "8", "100")},
	})
	require.ErrorIs(t, err, ErrAlreadyConverted)

	require.Len(t, stockPort.movements, 1)
	invoiceKey := stock.MovementKey{SourceType: string(TypeSalesInvoice), SourceID: result.Document.ID, ProductID: 1}
	require.Equal(t, "5", stockPort.movements[invoiceKey].String())
}

func TestCancelDocumentRemovesMovements(t *testing.T) {
	ctx := context.Background()
	stockPort := newMemoryStockPort()
	svc := NewService(newMemoryBillingRepo(), stockPort, nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(simpleLine(1, "5", "100")))
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)

	cancelled, err := svc.CancelDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Empty(t, stockPort.movements)
}

func TestConvertDeliveryNoteRetargetsMovements(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	stockPort := newMemoryStockPort()
	svc := NewService(repo, stockPort, nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(simpleLine(1, "5", "100")))
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)

	result, err := svc.ConvertDocument(ctx, doc.ID, 9)
	require.NoError(t, err)
	require.Empty(t, result.Anomalies)

	invoice := result.Document
	require.Equal(t, TypeSalesInvoice, invoice.Type)
	require.Equal(t, StatusValidated, invoice.Status)
	require.Equal(t, doc.ID, invoice.SourceID)
	require.Equal(t, doc.Totals.TotalInclTax.String(), invoice.Totals.TotalInclTax.String())

	// The movement now points at the invoice; the old key is gone.
	require.Len(t, stockPort.movements, 1)
	newKey := stock.MovementKey{SourceType: string(TypeSalesInvoice), SourceID: invoice.ID, ProductID: 1}
	require.Equal(t, "5", stockPort.movements[newKey].String())
}

func TestConvertTwiceRejected(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryBillingRepo(), newMemoryStockPort(), nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(simpleLine(1, "5", "100")))
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)
	_, err = svc.ConvertDocument(ctx, doc.ID, 9)
	require.NoError(t, err)

	_, err = svc.ConvertDocument(ctx, doc.ID, 9)
	require.ErrorIs(t, err, ErrAlreadyConverted)
}

func TestConvertMissingMovementReportsAnomaly(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryBillingRepo()
	stockPort := newMemoryStockPort()
	svc := NewService(repo, stockPort, nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(simpleLine(1, "5", "100")))
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)

	// Simulate a movement lost before conversion.
	key := stock.MovementKey{SourceType: string(TypeDeliveryNote), SourceID: doc.ID, ProductID: 1}
	delete(stockPort.movements, key)

	result, err := svc.ConvertDocument(ctx, doc.ID, 9)
	require.NoError(t, err)
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, key, result.Anomalies[0].Key)
	// No replacement movement was created.
	require.Empty(t, stockPort.movements)
}

func TestConvertDraftRejected(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryBillingRepo(), newMemoryStockPort(), nil)

	doc, err := svc.CreateDocument(ctx, deliveryInput(simpleLine(1, "5", "100")))
	require.NoError(t, err)

	_, err = svc.ConvertDocument(ctx, doc.ID, 9)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestConvertCreditNoteRejected(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryBillingRepo(), newMemoryStockPort(), nil)

	doc, err := svc.CreateDocument(ctx, CreateDocumentInput{
		Type:      TypeCreditNote,
		PartnerID: 5,
		CreatedBy: 1,
		Lines:     []LineInput{{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("-50")}},
	})
	require.NoError(t, err)
	_, err = svc.ValidateDocument(ctx, doc.ID, 9)
	require.NoError(t, err)

	_, err = svc.ConvertDocument(ctx, doc.ID, 9)
	require.ErrorIs(t, err, ErrNotConvertible)
}
