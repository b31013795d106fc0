package engine_test

import (
	"errors"
	"testing"

	"tourtrust/internal/domain"
	"tourtrust/internal/engine"
)

func TestBookPricesAccommodationPerNight(t *testing.T) {
	env := newTestEnv(t)
	provider := verifiedProvider(t, env, "Pine Cottage")
	res, err := env.Engine.Book(env.Ctx, engine.BookOptions{
		Listing: domain.Listing{
			ID: "cottage-1", ProviderID: provider.ID,
			Kind: domain.ListingAccommodation, BasePrice: 2000, ContractCoverage: true,
		},
		GuestCount: 3,
		StartDate:  "2026-04-10",
		EndDate:    "2026-04-13",
	}, "guest-1")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	// 3 nights at 2000 plus the flat service fee
	if want := int64(3*2000 + 299); res.Booking.TotalAmount != want {
		t.Fatalf("expected total %d, got %d", want, res.Booking.TotalAmount)
	}
	if res.ContractID == nil {
		t.Fatalf("expected contract coverage")
	}
	c, _ := env.Engine.Repo.GetContract(env.Ctx, *res.ContractID)
	if c.Status != domain.ContractActive {
		t.Fatalf("expected active contract from checkout, got %s", c.Status)
	}
	escrow, _ := env.Engine.Repo.GetTransaction(env.Ctx, *c.EscrowTxnID)
	if escrow.Status != domain.TxnConfirmed || escrow.Amount != c.EscrowAmount {
		t.Fatalf("expected confirmed escrow of %d, got %s/%d", c.EscrowAmount, escrow.Status, escrow.Amount)
	}
}

func TestBookPricesOthersPerGuest(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Book(env.Ctx, engine.BookOptions{
		Listing: domain.Listing{
			ID: "walk-1", ProviderID: "provider-9",
			Kind: domain.ListingActivity, BasePrice: 500,
		},
		GuestCount: 4,
		StartDate:  "2026-04-10",
		EndDate:    "2026-04-10",
	}, "guest-1")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if want := int64(4*500 + 299); res.Booking.TotalAmount != want {
		t.Fatalf("expected total %d, got %d", want, res.Booking.TotalAmount)
	}
	txn, _ := env.Engine.Repo.GetTransaction(env.Ctx, res.TransactionID)
	if txn.Kind != domain.TxnBooking || txn.Status != domain.TxnPending {
		t.Fatalf("expected pending booking txn, got %s/%s", txn.Kind, txn.Status)
	}
}

func TestBookRejectsOverlap(t *testing.T) {
	env := newTestEnv(t)
	opts := engine.BookOptions{
		Listing: domain.Listing{
			ID: "room-1", ProviderID: "provider-2",
			Kind: domain.ListingAccommodation, BasePrice: 1000,
		},
		GuestCount: 2,
		StartDate:  "2026-05-01",
		EndDate:    "2026-05-05",
	}
	if _, err := env.Engine.Book(env.Ctx, opts, "guest-1"); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	// overlapping window on the same listing
	opts.StartDate = "2026-05-04"
	opts.EndDate = "2026-05-08"
	_, err := env.Engine.Book(env.Ctx, opts, "guest-2")
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError for overlap, got %v", err)
	}
	// adjacent but non-overlapping window passes
	opts.StartDate = "2026-05-06"
	opts.EndDate = "2026-05-09"
	if _, err := env.Engine.Book(env.Ctx, opts, "guest-2"); err != nil {
		t.Fatalf("non-overlapping booking: %v", err)
	}
}

func TestBookWithCoverageRequiresVerifiedProvider(t *testing.T) {
	env := newTestEnv(t)
	pending, _ := env.Engine.SubmitVerification(env.Ctx, "Unvetted Tours", domain.SubjectGuide, "admin")
	_, err := env.Engine.Book(env.Ctx, engine.BookOptions{
		Listing: domain.Listing{
			ID: "tour-1", ProviderID: pending.ID,
			Kind: domain.ListingGuide, BasePrice: 700, ContractCoverage: true,
		},
		GuestCount: 2,
		StartDate:  "2026-05-01",
		EndDate:    "2026-05-02",
	}, "guest-1")
	var pnv engine.ProviderNotVerifiedError
	if !errors.As(err, &pnv) {
		t.Fatalf("expected ProviderNotVerifiedError, got %v", err)
	}

	// the refused checkout leaves nothing behind
	for table, want := range map[string]int{"bookings": 0, "contracts": 0, "milestones": 0, "transactions": 0} {
		var n int
		if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM `+table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != want {
			t.Fatalf("expected %d rows in %s, got %d", want, table, n)
		}
	}
}

func TestBookValidation(t *testing.T) {
	env := newTestEnv(t)
	base := engine.BookOptions{
		Listing: domain.Listing{
			ID: "l-1", ProviderID: "p-1",
			Kind: domain.ListingGuide, BasePrice: 100,
		},
		GuestCount: 1,
		StartDate:  "2026-05-01",
		EndDate:    "2026-05-02",
	}
	var ve engine.ValidationError

	opts := base
	opts.GuestCount = 0
	if _, err := env.Engine.Book(env.Ctx, opts, "g"); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for zero guests, got %v", err)
	}
	opts = base
	opts.EndDate = "2026-04-30"
	if _, err := env.Engine.Book(env.Ctx, opts, "g"); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for reversed dates, got %v", err)
	}
	opts = base
	opts.StartDate = "May 1st"
	if _, err := env.Engine.Book(env.Ctx, opts, "g"); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for bad date, got %v", err)
	}
	opts = base
	opts.Listing.Kind = "cruise"
	if _, err := env.Engine.Book(env.Ctx, opts, "g"); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown kind, got %v", err)
	}
	opts = base
	opts.PaymentPreference = "cash"
	if _, err := env.Engine.Book(env.Ctx, opts, "g"); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown preference, got %v", err)
	}
}
