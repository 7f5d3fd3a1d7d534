package balance

import (
	"context"
	"strconv"
	"time"
)

// RepositoryPort loads the raw rows a report is derived from.
type RepositoryPort interface {
	ListPartnerInvoices(ctx context.Context, partnerID int64, role Role) ([]InvoiceRow, error)
	ListPartnerPayments(ctx context.Context, partnerID int64, role Role) ([]PaymentRow, error)
	ListActivePartnerIDs(ctx context.Context, role Role) ([]int64, error)
}

// Service coordinates balance report computation with the cache layer.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService wires a RepositoryPort with a Cache helper.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Report computes (or serves the cached) counterparty balance for one
// partner as of the given date.
func (s *Service) Report(ctx context.Context, partnerID int64, role Role, asOf time.Time) (CounterpartyBalance, error) {
	if !role.Valid() {
		return CounterpartyBalance{}, ErrUnknownRole
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC().Truncate(24 * time.Hour)
	}

	loader := func(ctx context.Context) (interface{}, error) {
		return s.compute(ctx, partnerID, role, asOf)
	}

	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return CounterpartyBalance{}, err
		}
		return value.(CounterpartyBalance), nil
	}

	key, err := s.cache.BuildKey(ctx, "balance", string(role),
		strconv.FormatInt(partnerID, 10), asOf.Format("2006-01-02"))
	if err != nil {
		return CounterpartyBalance{}, err
	}
	var result CounterpartyBalance
	if err := s.cache.FetchJSON(ctx, key, &result, loader); err != nil {
		return CounterpartyBalance{}, err
	}
	return result, nil
}

func (s *Service) compute(ctx context.Context, partnerID int64, role Role, asOf time.Time) (CounterpartyBalance, error) {
	invoices, err := s.repo.ListPartnerInvoices(ctx, partnerID, role)
	if err != nil {
		return CounterpartyBalance{}, err
	}
	payments, err := s.repo.ListPartnerPayments(ctx, partnerID, role)
	if err != nil {
		return CounterpartyBalance{}, err
	}
	return Compute(partnerID, role, asOf, invoices, payments), nil
}

// Invalidate drops every cached report. Called after any write that
// changes invoice totals, payment state or movements.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// WarmSnapshots recomputes and caches the balance of every active
// partner for the given role. Used by the nightly snapshot job.
func (s *Service) WarmSnapshots(ctx context.Context, role Role, asOf time.Time) (int, error) {
	ids, err := s.repo.ListActivePartnerIDs(ctx, role)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := s.Report(ctx, id, role, asOf); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
