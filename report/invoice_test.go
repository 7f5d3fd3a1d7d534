package report

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gestcom-app/gestcom/internal/billing"
)

func TestBuildDocumentHTML(t *testing.T) {
	doc := &billing.DocumentWithLines{
		Document: billing.Document{
			Type:     billing.TypeSalesInvoice,
			Number:   "FV-2026-00042",
			IssuedAt: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			Modifiers: billing.Modifiers{
				FodecEnabled: true,
				FodecRatePct: decimal.NewFromInt(1),
				StampEnabled: true,
				StampAmount:  decimal.RequireFromString("0.600"),
			},
			Totals: billing.Totals{
				TotalExclTax: decimal.NewFromInt(1000),
				TotalFodec:   decimal.NewFromInt(10),
				TotalTax:     decimal.RequireFromString("191.9"),
				TotalStamp:   decimal.RequireFromString("0.600"),
				TotalInclTax: decimal.RequireFromString("1202.5"),
			},
		},
		Lines: []billing.LineItem{
			{
				Description:  "Ciment 50kg",
				Quantity:     decimal.NewFromInt(10),
				UnitPrice:    decimal.NewFromInt(100),
				TaxPct:       decimal.NewFromInt(19),
				TotalExclTax: decimal.NewFromInt(1000),
			},
		},
	}

	html, err := BuildDocumentHTML(doc)
	require.NoError(t, err)

	require.Contains(t, html, "Facture FV-2026-00042")
	require.Contains(t, html, "10/03/2026")
	require.Contains(t, html, "Ciment 50kg")
	require.Contains(t, html, "FODEC")
	require.Contains(t, html, "Timbre fiscal")
	require.Contains(t, html, "191,900")
}

func TestBuildDocumentHTMLSkipsDisabledModifiers(t *testing.T) {
	doc := &billing.DocumentWithLines{
		Document: billing.Document{
			Type:     billing.TypeDeliveryNote,
			Number:   "BL-2026-00007",
			IssuedAt: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	html, err := BuildDocumentHTML(doc)
	require.NoError(t, err)

	require.Contains(t, html, "Bon de livraison BL-2026-00007")
	require.NotContains(t, html, "FODEC")
	require.NotContains(t, html, "Timbre fiscal")
}
