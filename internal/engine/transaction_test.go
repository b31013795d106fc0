package engine_test

import (
	"errors"
	"testing"

	"tourtrust/internal/domain"
	"tourtrust/internal/engine"
)

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	txn, err := env.Engine.RecordTransaction(env.Ctx, engine.RecordTransactionOptions{
		Kind: domain.TxnBooking, Amount: 2500, From: "guest-1", To: "provider-1",
	}, "guest-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if txn.Status != domain.TxnPending {
		t.Fatalf("expected pending, got %s", txn.Status)
	}
	txn, err = env.Engine.ConfirmTransaction(env.Ctx, txn.ID, "guest-1")
	if err != nil || txn.Status != domain.TxnConfirmed {
		t.Fatalf("confirm: %v (%s)", err, txn.Status)
	}
	txn, err = env.Engine.CompleteTransaction(env.Ctx, txn.ID, "guest-1")
	if err != nil || txn.Status != domain.TxnCompleted {
		t.Fatalf("complete: %v (%s)", err, txn.Status)
	}
	// completed is terminal
	_, err = env.Engine.FailTransaction(env.Ctx, txn.ID, "too late", "guest-1")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError failing a completed txn, got %v", err)
	}
	_, err = env.Engine.ConfirmTransaction(env.Ctx, txn.ID, "guest-1")
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError confirming a completed txn, got %v", err)
	}
}

func TestFailTransactionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	txn, err := env.Engine.RecordTransaction(env.Ctx, engine.RecordTransactionOptions{
		Kind: domain.TxnPayment, Amount: 900, From: "guest-1", To: "provider-1",
	}, "guest-1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	txn, err = env.Engine.FailTransaction(env.Ctx, txn.ID, "card declined", "guest-1")
	if err != nil || txn.Status != domain.TxnFailed {
		t.Fatalf("fail: %v (%s)", err, txn.Status)
	}
	if txn.Reason == nil || *txn.Reason != "card declined" {
		t.Fatalf("expected reason recorded, got %v", txn.Reason)
	}
	// second fail is a no-op keeping the original reason
	again, err := env.Engine.FailTransaction(env.Ctx, txn.ID, "other reason", "guest-1")
	if err != nil {
		t.Fatalf("second fail: %v", err)
	}
	if again.Reason == nil || *again.Reason != "card declined" {
		t.Fatalf("expected first reason kept, got %v", again.Reason)
	}
}

func TestRecordTransactionValidation(t *testing.T) {
	env := newTestEnv(t)
	var ve engine.ValidationError
	_, err := env.Engine.RecordTransaction(env.Ctx, engine.RecordTransactionOptions{
		Kind: "barter", Amount: 100, From: "a", To: "b",
	}, "a")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown kind, got %v", err)
	}
	_, err = env.Engine.RecordTransaction(env.Ctx, engine.RecordTransactionOptions{
		Kind: domain.TxnPayment, Amount: -1, From: "a", To: "b",
	}, "a")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for negative amount, got %v", err)
	}
	_, err = env.Engine.RecordTransaction(env.Ctx, engine.RecordTransactionOptions{
		Kind: domain.TxnPayment, Amount: 100, From: "", To: "b",
	}, "a")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for missing party, got %v", err)
	}
}

func TestCompleteSettlesPlainBooking(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Book(env.Ctx, engine.BookOptions{
		Listing: domain.Listing{
			ID: "listing-7", ProviderID: "provider-7",
			Kind: domain.ListingActivity, BasePrice: 800,
		},
		GuestCount: 3,
		StartDate:  "2026-05-10",
		EndDate:    "2026-05-10",
	}, "guest-2")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if res.ContractID != nil {
		t.Fatalf("expected plain booking without contract")
	}
	if _, err := env.Engine.ConfirmTransaction(env.Ctx, res.TransactionID, "guest-2"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := env.Engine.CompleteTransaction(env.Ctx, res.TransactionID, "guest-2"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	b, err := env.Engine.Repo.GetBooking(env.Ctx, res.Booking.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if b.Status != domain.BookingCompleted {
		t.Fatalf("expected booking completed with its transaction, got %s", b.Status)
	}
}

func TestFailSettlesPlainBookingAsFailed(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Book(env.Ctx, engine.BookOptions{
		Listing: domain.Listing{
			ID: "listing-8", ProviderID: "provider-8",
			Kind: domain.ListingExperience, BasePrice: 1200,
		},
		GuestCount: 1,
		StartDate:  "2026-05-11",
		EndDate:    "2026-05-12",
	}, "guest-3")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := env.Engine.FailTransaction(env.Ctx, res.TransactionID, "payment bounced", "guest-3"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	b, _ := env.Engine.Repo.GetBooking(env.Ctx, res.Booking.ID)
	if b.Status != domain.BookingFailed {
		t.Fatalf("expected booking failed with its transaction, got %s", b.Status)
	}
}
