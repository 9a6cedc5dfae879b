package credit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/creditswap/creditswap-api/internal/pkg/apperror"
)

type memLedger struct {
	balances  map[uuid.UUID]int
	entries   []*Transaction
	insertErr error
}

func newMemLedger(balances map[uuid.UUID]int) *memLedger {
	return &memLedger{balances: balances}
}

func (m *memLedger) snapshot() func() {
	balances := make(map[uuid.UUID]int, len(m.balances))
	for k, v := range m.balances {
		balances[k] = v
	}
	entries := append([]*Transaction(nil), m.entries...)
	return func() {
		m.balances = balances
		m.entries = entries
	}
}

func (m *memLedger) Debit(ctx context.Context, userID uuid.UUID, amount int) error {
	bal, ok := m.balances[userID]
	if !ok {
		return ErrUserNotFound
	}
	if bal < amount {
		return ErrInsufficientCredits
	}
	m.balances[userID] = bal - amount
	return nil
}

func (m *memLedger) Credit(ctx context.Context, userID uuid.UUID, amount int) error {
	if _, ok := m.balances[userID]; !ok {
		return ErrUserNotFound
	}
	m.balances[userID] += amount
	return nil
}

func (m *memLedger) Insert(ctx context.Context, t *Transaction) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.entries = append(m.entries, t)
	return nil
}

func (m *memLedger) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	bal, ok := m.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return bal, nil
}

func (m *memLedger) GetByReference(ctx context.Context, receiverID uuid.UUID, referenceID string) (*Transaction, error) {
	for _, t := range m.entries {
		if t.ReceiverID == receiverID && t.ReferenceID.Valid && t.ReferenceID.String == referenceID {
			return t, nil
		}
	}
	return nil, nil
}

func (m *memLedger) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, int, error) {
	var out []*Transaction
	for _, t := range m.entries {
		if t.SignedAmountFor(userID) != 0 || t.ReceiverID == userID {
			out = append(out, t)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *memLedger) LedgerSum(ctx context.Context, userID uuid.UUID) (int, error) {
	sum := 0
	for _, t := range m.entries {
		sum += t.SignedAmountFor(userID)
	}
	return sum, nil
}

// snapshotTx restores the in-memory ledger when the unit of work fails.
type snapshotTx struct{ m *memLedger }

func (s snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	restore := s.m.snapshot()
	if err := fn(ctx); err != nil {
		restore()
		return err
	}
	return nil
}

func TestTransferMovesCreditsAndRecordsEntry(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	ledger := newMemLedger(map[uuid.UUID]int{poster: 50, worker: 0})
	svc := NewService(ledger, snapshotTx{ledger})

	listingID := uuid.New()
	entry, err := svc.Transfer(context.Background(), poster, worker, 50, TypePayment, Meta{
		RelatedEntityType: "listing",
		RelatedEntityID:   listingID,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if ledger.balances[poster] != 0 || ledger.balances[worker] != 50 {
		t.Fatalf("unexpected balances %+v", ledger.balances)
	}
	if !entry.SenderID.Valid || entry.SenderID.UUID != poster || entry.ReceiverID != worker {
		t.Fatalf("unexpected parties %+v", entry)
	}
	if entry.Type != TypePayment || entry.Status != StatusCompleted || entry.Amount != 50 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !entry.RelatedEntityID.Valid || entry.RelatedEntityID.UUID != listingID {
		t.Fatalf("expected related listing")
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(ledger.entries))
	}
}

func TestTransferInsufficientLeavesBalancesUnchanged(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	ledger := newMemLedger(map[uuid.UUID]int{poster: 49, worker: 7})
	svc := NewService(ledger, snapshotTx{ledger})

	_, err := svc.Transfer(context.Background(), poster, worker, 50, TypePayment, Meta{})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if !errors.Is(err, apperror.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds kind")
	}
	if ledger.balances[poster] != 49 || ledger.balances[worker] != 7 || len(ledger.entries) != 0 {
		t.Fatalf("state changed: %+v %d", ledger.balances, len(ledger.entries))
	}
}

func TestTransferRollsBackWhenLedgerInsertFails(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	ledger := newMemLedger(map[uuid.UUID]int{poster: 80, worker: 0})
	ledger.insertErr = errors.New("disk full")
	svc := NewService(ledger, snapshotTx{ledger})

	if _, err := svc.Transfer(context.Background(), poster, worker, 30, TypePayment, Meta{}); err == nil {
		t.Fatal("expected error")
	}
	if ledger.balances[poster] != 80 || ledger.balances[worker] != 0 {
		t.Fatalf("balances must be restored, got %+v", ledger.balances)
	}
}

func TestTransferRejectsBadInput(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ledger := newMemLedger(map[uuid.UUID]int{a: 10, b: 10})
	svc := NewService(ledger, snapshotTx{ledger})

	if _, err := svc.Transfer(context.Background(), a, b, 0, TypePayment, Meta{}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Transfer(context.Background(), a, a, 5, TypePayment, Meta{}); !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
	if _, err := svc.Transfer(context.Background(), a, uuid.New(), 5, TypePayment, Meta{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if ledger.balances[a] != 10 {
		t.Fatalf("failed transfer to unknown user must not debit, got %d", ledger.balances[a])
	}
}

func TestGrantIsSystemIssued(t *testing.T) {
	userID := uuid.New()
	ledger := newMemLedger(map[uuid.UUID]int{userID: 0})
	svc := NewService(ledger, snapshotTx{ledger})

	entry, err := svc.Grant(context.Background(), userID, 50, TypeSignupBonus, Meta{Description: "Welcome bonus"})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if entry.SenderID.Valid {
		t.Fatal("system credits must have no sender")
	}
	if ledger.balances[userID] != 50 {
		t.Fatalf("expected 50, got %d", ledger.balances[userID])
	}
}

func TestReconcileHoldsAfterEveryOperation(t *testing.T) {
	poster, worker := uuid.New(), uuid.New()
	ledger := newMemLedger(map[uuid.UUID]int{poster: 0, worker: 0})
	svc := NewService(ledger, snapshotTx{ledger})
	ctx := context.Background()

	check := func(step string) {
		t.Helper()
		for _, id := range []uuid.UUID{poster, worker} {
			rec, err := svc.Reconcile(ctx, id)
			if err != nil {
				t.Fatalf("%s: reconcile: %v", step, err)
			}
			if !rec.Balanced {
				t.Fatalf("%s: drift for %s: balance=%d ledger=%d", step, id, rec.Balance, rec.LedgerSum)
			}
		}
	}

	svc.Grant(ctx, poster, 50, TypeSignupBonus, Meta{})
	svc.Grant(ctx, worker, 50, TypeSignupBonus, Meta{})
	check("signup")

	svc.Grant(ctx, poster, 250, TypeCreditPurchase, Meta{ReferenceID: "ref-1"})
	check("purchase")

	svc.Transfer(ctx, poster, worker, 120, TypePayment, Meta{})
	check("payment")

	svc.Transfer(ctx, worker, poster, 1000, TypePayment, Meta{})
	check("failed payment")

	if ledger.balances[poster] != 180 || ledger.balances[worker] != 170 {
		t.Fatalf("unexpected balances %+v", ledger.balances)
	}
}

func TestSignedAmountFor(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	tx := &Transaction{SenderID: uuid.NullUUID{UUID: a, Valid: true}, ReceiverID: b, Amount: 10}
	if tx.SignedAmountFor(a) != -10 || tx.SignedAmountFor(b) != 10 || tx.SignedAmountFor(uuid.New()) != 0 {
		t.Fatal("unexpected signed amounts")
	}
}
