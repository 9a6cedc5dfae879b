package credit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/creditswap/creditswap-api/internal/pkg/database"
)

// Service moves credits and keeps the ledger in step with balances.
type Service struct {
	repo Repository
	tx   database.Transactor
}

// NewService creates a credit service
func NewService(repo Repository, tx database.Transactor) *Service {
	return &Service{repo: repo, tx: tx}
}

// Transfer debits from and credits to by amount and records one entry.
// When ctx already carries a transaction the transfer joins it.
func (s *Service) Transfer(ctx context.Context, from, to uuid.UUID, amount int, typ Type, meta Meta) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if from == to {
		return nil, ErrSelfTransfer
	}

	entry := newTransaction(uuid.NullUUID{UUID: from, Valid: true}, to, amount, typ, meta)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Debit(ctx, from, amount); err != nil {
			return err
		}
		if err := s.repo.Credit(ctx, to, amount); err != nil {
			return err
		}
		return s.repo.Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Int("amount", amount).
		Str("type", string(typ)).
		Msg("Credits transferred")
	return entry, nil
}

// Grant issues system credits to userID.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, amount int, typ Type, meta Meta) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	entry := newTransaction(uuid.NullUUID{}, userID, amount, typ, meta)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Credit(ctx, userID, amount); err != nil {
			return err
		}
		return s.repo.Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// FindByReference returns the entry userID received under referenceID, if any.
func (s *Service) FindByReference(ctx context.Context, userID uuid.UUID, referenceID string) (*Transaction, error) {
	if referenceID == "" {
		return nil, nil
	}
	return s.repo.GetByReference(ctx, userID, referenceID)
}

// Balance returns the current credit balance for a user
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.GetBalance(ctx, userID)
}

// History returns a page of ledger entries touching userID, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Reconcile checks that the stored balance equals the signed ledger sum.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	var rec *Reconciliation
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		balance, err := s.repo.GetBalance(ctx, userID)
		if err != nil {
			return err
		}
		sum, err := s.repo.LedgerSum(ctx, userID)
		if err != nil {
			return err
		}
		rec = &Reconciliation{UserID: userID, Balance: balance, LedgerSum: sum, Balanced: balance == sum}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !rec.Balanced {
		log.Error().
			Str("user_id", userID.String()).
			Int("balance", rec.Balance).
			Int("ledger_sum", rec.LedgerSum).
			Msg("Credit balance drifted from ledger")
	}
	return rec, nil
}
