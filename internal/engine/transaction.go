package engine

import (
	"context"
	"database/sql"
	"errors"

	"tourtrust/internal/domain"
	"tourtrust/internal/events"
	"tourtrust/internal/repo"
)

var txnKinds = map[string]bool{
	domain.TxnBooking: true,
	domain.TxnPayment: true,
	domain.TxnEscrow:  true,
	domain.TxnDispute: true,
}

// RecordTransactionOptions are parameters for recording a value transfer.
type RecordTransactionOptions struct {
	Kind       string
	Amount     int64
	From       string
	To         string
	ContractID string
}

// RecordTransaction appends a new pending transaction to the ledger.
func (e Engine) RecordTransaction(ctx context.Context, opts RecordTransactionOptions, actorID string) (domain.Transaction, error) {
	if !txnKinds[opts.Kind] {
		return domain.Transaction{}, validationf("unknown transaction kind %q", opts.Kind)
	}
	if opts.Amount < 0 {
		return domain.Transaction{}, validationf("amount must be >= 0")
	}
	if opts.From == "" || opts.To == "" {
		return domain.Transaction{}, validationf("from and to parties are required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer tx.Rollback()
	t, err := e.insertTransactionTx(ctx, tx, opts, actorID)
	if err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) insertTransactionTx(ctx context.Context, tx *sql.Tx, opts RecordTransactionOptions, actorID string) (domain.Transaction, error) {
	now := e.nowStr()
	t := domain.Transaction{
		ID:         newID(),
		Kind:       opts.Kind,
		Amount:     opts.Amount,
		Status:     domain.TxnPending,
		FromParty:  opts.From,
		ToParty:    opts.To,
		ContractID: optionalString(opts.ContractID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Repo.InsertTransaction(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:       "transaction.recorded",
		EntityKind: "transaction",
		EntityID:   t.ID,
		NewStatus:  t.Status,
		ActorID:    actorID,
		Payload:    events.EventPayload{"kind": t.Kind, "amount": t.Amount, "from": t.FromParty, "to": t.ToParty},
	}); err != nil {
		return t, err
	}
	return t, nil
}

// ConfirmTransaction moves pending -> confirmed.
func (e Engine) ConfirmTransaction(ctx context.Context, id, actorID string) (domain.Transaction, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer tx.Rollback()
	t, err := e.transitionTransactionTx(ctx, tx, id, domain.TxnPending, domain.TxnConfirmed, nil, actorID, "transaction.confirmed")
	if err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// CompleteTransaction moves confirmed -> completed and settles any plain
// booking riding on this transaction.
func (e Engine) CompleteTransaction(ctx context.Context, id, actorID string) (domain.Transaction, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer tx.Rollback()
	t, err := e.transitionTransactionTx(ctx, tx, id, domain.TxnConfirmed, domain.TxnCompleted, nil, actorID, "transaction.completed")
	if err != nil {
		return t, err
	}
	if err := e.settleLinkedBookingTx(ctx, tx, id, domain.BookingCompleted, actorID); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// FailTransaction moves any non-terminal transaction to failed, recording the
// reason. Failing an already failed transaction is a no-op.
func (e Engine) FailTransaction(ctx context.Context, id, reason, actorID string) (domain.Transaction, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer tx.Rollback()
	t, err := e.failTransactionTx(ctx, tx, id, reason, actorID)
	if err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) failTransactionTx(ctx context.Context, tx *sql.Tx, id, reason, actorID string) (domain.Transaction, error) {
	t, err := e.Repo.GetTransactionTx(ctx, tx, id)
	if err != nil {
		return t, err
	}
	switch t.Status {
	case domain.TxnFailed:
		return t, nil
	case domain.TxnCompleted:
		return t, invalidTransition("transaction", id, t.Status, domain.TxnFailed)
	}
	from := t.Status
	t, err = e.transitionTransactionTx(ctx, tx, id, from, domain.TxnFailed, optionalString(reason), actorID, "transaction.failed")
	if err != nil {
		return t, err
	}
	if err := e.settleLinkedBookingTx(ctx, tx, id, domain.BookingFailed, actorID); err != nil {
		return t, err
	}
	return t, nil
}

// transitionTransactionTx performs one compare-and-set status move and logs
// it. A row that exists but lost the guard means the caller raced another
// writer.
func (e Engine) transitionTransactionTx(ctx context.Context, tx *sql.Tx, id, from, to string, reason *string, actorID, eventType string) (domain.Transaction, error) {
	t, err := e.Repo.GetTransactionTx(ctx, tx, id)
	if err != nil {
		return t, err
	}
	if t.Status != from {
		return t, invalidTransition("transaction", id, t.Status, to)
	}
	now := e.nowStr()
	ok, err := e.Repo.UpdateTransactionCAS(ctx, tx, id, from, to, reason, now)
	if err != nil {
		return t, err
	}
	if !ok {
		return t, ConflictError{Entity: "transaction", ID: id}
	}
	t.Status = to
	t.UpdatedAt = now
	if reason != nil {
		t.Reason = reason
	}
	payload := events.EventPayload{"kind": t.Kind, "amount": t.Amount}
	if reason != nil {
		payload["reason"] = *reason
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           eventType,
		EntityKind:     "transaction",
		EntityID:       id,
		PreviousStatus: from,
		NewStatus:      to,
		ActorID:        actorID,
		Payload:        payload,
	}); err != nil {
		return t, err
	}
	return t, nil
}

// settleLinkedBookingTx settles a plain booking tied to the transaction, if
// one exists and is still active. Contract-covered bookings are settled by
// the contract engine instead.
func (e Engine) settleLinkedBookingTx(ctx context.Context, tx *sql.Tx, txnID, toStatus, actorID string) error {
	b, err := e.Repo.GetBookingByTransactionTx(ctx, tx, txnID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if b.Status != domain.BookingActive || b.ContractID != nil {
		return nil
	}
	return e.settleBookingTx(ctx, tx, b.ID, toStatus, actorID)
}

func (e Engine) settleBookingTx(ctx context.Context, tx *sql.Tx, bookingID, toStatus, actorID string) error {
	ok, err := e.Repo.UpdateBookingStatusCAS(ctx, tx, bookingID, domain.BookingActive, toStatus)
	if err != nil {
		return err
	}
	if !ok {
		// already settled by a concurrent path; the log keeps the first word
		return nil
	}
	return e.Events.Append(ctx, tx, events.Record{
		Type:           "booking." + toStatus,
		EntityKind:     "booking",
		EntityID:       bookingID,
		PreviousStatus: domain.BookingActive,
		NewStatus:      toStatus,
		ActorID:        actorID,
	})
}
