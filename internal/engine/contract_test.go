package engine_test

import (
	"errors"
	"testing"

	"tourtrust/internal/domain"
	"tourtrust/internal/engine"
)

func TestCreateContractValidatesMilestoneSum(t *testing.T) {
	env := newTestEnv(t)
	var ve engine.ValidationError
	_, err := env.Engine.CreateContract(env.Ctx, engine.CreateContractOptions{
		Type:        domain.ContractGuide,
		TotalAmount: 10000,
		Parties:     []string{"guest-1", "provider-1"},
		Milestones: []engine.MilestoneInput{
			{Description: "deposit", Amount: 2000},
			{Description: "rest", Amount: 7000},
		},
	}, "guest-1")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for sum mismatch, got %v", err)
	}
	_, err = env.Engine.CreateContract(env.Ctx, engine.CreateContractOptions{
		Type:        domain.ContractGuide,
		TotalAmount: 10000,
		Parties:     []string{"guest-1"},
		Milestones:  []engine.MilestoneInput{{Description: "all", Amount: 10000}},
	}, "guest-1")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for single party, got %v", err)
	}
	_, err = env.Engine.CreateContract(env.Ctx, engine.CreateContractOptions{
		Type:        "timeshare",
		TotalAmount: 10000,
		Parties:     []string{"guest-1", "provider-1"},
		Milestones:  []engine.MilestoneInput{{Description: "all", Amount: 10000}},
	}, "guest-1")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown type, got %v", err)
	}
}

func TestActivateContractRequiresEscrowFunding(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateContract(env.Ctx, engine.CreateContractOptions{
		Type:        domain.ContractTransport,
		TotalAmount: 10000,
		Parties:     []string{"guest-1", "provider-1"},
		Milestones: []engine.MilestoneInput{
			{Description: "pickup", Amount: 4000},
			{Description: "dropoff", Amount: 6000},
		},
	}, "guest-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != domain.ContractDraft || c.EscrowAmount != 1000 {
		t.Fatalf("expected draft with escrow 1000, got %s/%d", c.Status, c.EscrowAmount)
	}

	// no confirmed funding yet
	_, err = env.Engine.ActivateContract(env.Ctx, c.ID, "guest-1")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError without funding, got %v", err)
	}

	txn, err := env.Engine.RecordTransaction(env.Ctx, engine.RecordTransactionOptions{
		Kind: domain.TxnEscrow, Amount: 1000, From: "guest-1", To: "provider-1", ContractID: c.ID,
	}, "guest-1")
	if err != nil {
		t.Fatalf("record escrow: %v", err)
	}
	// pending funding is not enough
	_, err = env.Engine.ActivateContract(env.Ctx, c.ID, "guest-1")
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError with pending funding, got %v", err)
	}
	if _, err := env.Engine.ConfirmTransaction(env.Ctx, txn.ID, "guest-1"); err != nil {
		t.Fatalf("confirm escrow: %v", err)
	}
	c, err = env.Engine.ActivateContract(env.Ctx, c.ID, "guest-1")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if c.Status != domain.ContractActive {
		t.Fatalf("expected active, got %s", c.Status)
	}
	if c.EscrowTxnID == nil || *c.EscrowTxnID != txn.ID {
		t.Fatalf("expected escrow txn linked, got %v", c.EscrowTxnID)
	}
}

func TestCompletingLastMilestoneSettlesContract(t *testing.T) {
	env := newTestEnv(t)
	provider := verifiedProvider(t, env, "Hill Treks")
	res, err := env.Engine.Book(env.Ctx, engine.BookOptions{
		Listing: domain.Listing{
			ID: "trek-1", ProviderID: provider.ID,
			Kind: domain.ListingGuide, BasePrice: 1500, ContractCoverage: true,
		},
		GuestCount: 2,
		StartDate:  "2026-04-01",
		EndDate:    "2026-04-03",
	}, "guest-1")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	c, err := env.Engine.Repo.GetContract(env.Ctx, *res.ContractID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if len(c.Milestones) != 2 {
		t.Fatalf("expected two milestones, got %d", len(c.Milestones))
	}
	var sum int64
	for _, m := range c.Milestones {
		sum += m.Amount
	}
	if sum != c.TotalAmount {
		t.Fatalf("milestones sum %d, total %d", sum, c.TotalAmount)
	}

	c, err = env.Engine.CompleteMilestone(env.Ctx, c.ID, c.Milestones[0].ID, "admin")
	if err != nil {
		t.Fatalf("first milestone: %v", err)
	}
	if c.Status != domain.ContractActive {
		t.Fatalf("expected contract still active, got %s", c.Status)
	}
	// a completed milestone cannot advance again
	_, err = env.Engine.CompleteMilestone(env.Ctx, c.ID, c.Milestones[0].ID, "admin")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}

	c, err = env.Engine.CompleteMilestone(env.Ctx, c.ID, c.Milestones[1].ID, "admin")
	if err != nil {
		t.Fatalf("last milestone: %v", err)
	}
	if c.Status != domain.ContractCompleted {
		t.Fatalf("expected contract completed, got %s", c.Status)
	}
	escrow, err := env.Engine.Repo.GetTransaction(env.Ctx, *c.EscrowTxnID)
	if err != nil || escrow.Status != domain.TxnCompleted {
		t.Fatalf("expected escrow completed, got %s (%v)", escrow.Status, err)
	}
	b, _ := env.Engine.Repo.GetBooking(env.Ctx, res.Booking.ID)
	if b.Status != domain.BookingCompleted {
		t.Fatalf("expected booking completed, got %s", b.Status)
	}
	score, _ := env.Engine.ScoreOf(env.Ctx, provider.ID)
	if score != 86 {
		t.Fatalf("expected completion bonus to lift score to 86, got %d", score)
	}
}

func TestDisputeAndRefund(t *testing.T) {
	env := newTestEnv(t)
	provider := verifiedProvider(t, env, "Lakeview Homestay")
	res, err := env.Engine.Book(env.Ctx, engine.BookOptions{
		Listing: domain.Listing{
			ID: "stay-1", ProviderID: provider.ID,
			Kind: domain.ListingAccommodation, BasePrice: 2000, ContractCoverage: true,
		},
		GuestCount: 2,
		StartDate:  "2026-06-01",
		EndDate:    "2026-06-04",
	}, "guest-5")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	c, _ := env.Engine.Repo.GetContract(env.Ctx, *res.ContractID)

	c, err = env.Engine.DisputeMilestone(env.Ctx, c.ID, c.Milestones[1].ID, "room was not as listed", "guest-5")
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if c.Status != domain.ContractDisputed {
		t.Fatalf("expected contract disputed, got %s", c.Status)
	}
	// disputed contracts accept no milestone work
	_, err = env.Engine.CompleteMilestone(env.Ctx, c.ID, c.Milestones[0].ID, "admin")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError on disputed contract, got %v", err)
	}
	var ve engine.ValidationError
	_, err = env.Engine.ResolveDispute(env.Ctx, c.ID, "split", "", "admin")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown outcome, got %v", err)
	}

	c, err = env.Engine.ResolveDispute(env.Ctx, c.ID, domain.OutcomeRefund, "refund agreed", "admin")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.Status != domain.ContractCompleted {
		t.Fatalf("expected contract completed after resolution, got %s", c.Status)
	}
	escrow, _ := env.Engine.Repo.GetTransaction(env.Ctx, *c.EscrowTxnID)
	if escrow.Status != domain.TxnFailed {
		t.Fatalf("expected escrow refunded as failed, got %s", escrow.Status)
	}
	b, _ := env.Engine.Repo.GetBooking(env.Ctx, res.Booking.ID)
	if b.Status != domain.BookingFailed {
		t.Fatalf("expected booking failed after refund, got %s", b.Status)
	}
	score, _ := env.Engine.ScoreOf(env.Ctx, provider.ID)
	if score != 80 {
		t.Fatalf("expected dispute penalty to drop score to 80, got %d", score)
	}
	// resolution is terminal
	_, err = env.Engine.ResolveDispute(env.Ctx, c.ID, domain.OutcomeRelease, "", "admin")
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError resolving twice, got %v", err)
	}
}

func TestResolveReleasePaysOut(t *testing.T) {
	env := newTestEnv(t)
	provider := verifiedProvider(t, env, "Desert Safaris")
	res, err := env.Engine.Book(env.Ctx, engine.BookOptions{
		Listing: domain.Listing{
			ID: "safari-1", ProviderID: provider.ID,
			Kind: domain.ListingExperience, BasePrice: 3000, ContractCoverage: true,
		},
		GuestCount: 4,
		StartDate:  "2026-07-01",
		EndDate:    "2026-07-02",
	}, "guest-6")
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	c, _ := env.Engine.Repo.GetContract(env.Ctx, *res.ContractID)
	c, err = env.Engine.DisputeMilestone(env.Ctx, c.ID, c.Milestones[0].ID, "late start", "guest-6")
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	c, err = env.Engine.ResolveDispute(env.Ctx, c.ID, domain.OutcomeRelease, "service was delivered", "admin")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	escrow, _ := env.Engine.Repo.GetTransaction(env.Ctx, *c.EscrowTxnID)
	if escrow.Status != domain.TxnCompleted {
		t.Fatalf("expected escrow released, got %s", escrow.Status)
	}
	b, _ := env.Engine.Repo.GetBooking(env.Ctx, res.Booking.ID)
	if b.Status != domain.BookingCompleted {
		t.Fatalf("expected booking completed after release, got %s", b.Status)
	}
}
