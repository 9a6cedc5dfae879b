package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/domain/credit"
	"github.com/creditswap/creditswap-api/internal/domain/notification"
	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// Ledger is the part of the credit service purchases need.
type Ledger interface {
	Grant(ctx context.Context, userID uuid.UUID, amount int, typ credit.Type, meta credit.Meta) (*credit.Transaction, error)
	FindByReference(ctx context.Context, userID uuid.UUID, referenceID string) (*credit.Transaction, error)
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
}

// Receipt is the outcome of a purchase.
type Receipt struct {
	Payment     *Payment
	Transaction *credit.Transaction
	Balance     int
	Replayed    bool
}

// Service sells credit packages. Payment is simulated and always settles.
type Service struct {
	repo     Repository
	ledger   Ledger
	tx       database.Transactor
	notifier notification.Notifier
}

// NewService creates payment service
func NewService(repo Repository, ledger Ledger, tx database.Transactor, notifier notification.Notifier) *Service {
	if notifier == nil {
		notifier = notification.Discard
	}
	return &Service{repo: repo, ledger: ledger, tx: tx, notifier: notifier}
}

// ListPackages returns the packages on sale.
func (s *Service) ListPackages() []Package {
	return ListPackages()
}

// Purchase buys a package for userID. A purchase retried with the same
// reference returns the original receipt without granting again.
func (s *Service) Purchase(ctx context.Context, userID uuid.UUID, req *PurchaseRequest) (*Receipt, error) {
	pkg, ok := FindPackage(req.PackageID)
	if !ok {
		return nil, ErrUnknownPackage.WithDetails(map[string]any{"package_id": req.PackageID})
	}
	method := Method(req.Method)
	if !method.IsValid() {
		return nil, ErrUnknownMethod.WithDetails(map[string]any{"method": req.Method})
	}
	reference := strings.TrimSpace(req.ReferenceID)

	receipt, err := s.purchase(ctx, userID, pkg, method, reference)
	if errors.Is(err, errReferenceRace) {
		// A concurrent purchase committed the reference first. Retry once in a
		// fresh transaction so it replays or reports the reuse.
		receipt, err = s.purchase(ctx, userID, pkg, method, reference)
	}
	if errors.Is(err, errReferenceRace) {
		err = ErrReferenceReused
	}
	if err != nil {
		return nil, err
	}

	if receipt.Replayed {
		return receipt, nil
	}

	s.notifier.Notify(ctx, notification.Event{
		UserID: userID,
		Type:   notification.TypeCreditsPurchased,
		Title:  "Credits added",
		Body:   fmt.Sprintf("%d credits were added to your balance", pkg.Credits),
		Data: map[string]any{
			"payment_id":     receipt.Payment.ID.String(),
			"transaction_id": receipt.Transaction.ID.String(),
			"package_id":     pkg.ID,
			"credits":        pkg.Credits,
			"balance":        receipt.Balance,
		},
	})

	log.Info().
		Str("user_id", userID.String()).
		Str("package", pkg.ID).
		Str("method", string(method)).
		Int("credits", pkg.Credits).
		Msg("Credits purchased")
	return receipt, nil
}

// purchase runs one attempt in its own transaction.
func (s *Service) purchase(ctx context.Context, userID uuid.UUID, pkg Package, method Method, reference string) (*Receipt, error) {
	receipt := &Receipt{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if reference != "" {
			existing, err := s.repo.GetByReference(ctx, reference)
			if err != nil {
				return err
			}
			if existing != nil {
				if !existing.Matches(userID, pkg, method) {
					return ErrReferenceReused
				}
				entry, err := s.ledger.FindByReference(ctx, userID, reference)
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("payment %s has no ledger entry", existing.ID)
				}
				receipt.Payment, receipt.Transaction, receipt.Replayed = existing, entry, true
				receipt.Balance, err = s.ledger.Balance(ctx, userID)
				return err
			}
		}

		p := newPayment(userID, pkg, method, reference)
		entry, err := s.ledger.Grant(ctx, userID, pkg.Credits, credit.TypeCreditPurchase, credit.Meta{
			RelatedEntityType: "payment",
			RelatedEntityID:   p.ID,
			ReferenceID:       reference,
			Description:       fmt.Sprintf("Purchased %s package (%d credits) by %s", pkg.Name, pkg.Credits, method),
		})
		if err != nil {
			if errors.Is(err, credit.ErrReferenceConflict) {
				return errReferenceRace
			}
			return err
		}

		p.TransactionID = entry.ID
		if err := s.repo.Create(ctx, p); err != nil {
			if errors.Is(err, ErrReferenceReused) {
				return errReferenceRace
			}
			return err
		}
		receipt.Payment, receipt.Transaction = p, entry
		receipt.Balance, err = s.ledger.Balance(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// History returns userID's purchases, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
