package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tourtrust/internal/domain"
	"tourtrust/internal/events"
	"tourtrust/internal/repo"
)

const dateLayout = "2006-01-02"

var listingKinds = map[string]bool{
	domain.ListingAccommodation: true,
	domain.ListingGuide:         true,
	domain.ListingTransport:     true,
	domain.ListingActivity:      true,
	domain.ListingExperience:    true,
}

// BookOptions carry one booking request. The listing is passed by value: the
// orchestrator prices it and never stores it.
type BookOptions struct {
	Listing    domain.Listing
	GuestCount int
	StartDate  string
	EndDate    string
	// PaymentPreference is "direct" or "escrow"; empty follows the listing's
	// contract coverage flag.
	PaymentPreference string
}

// Book runs the whole checkout in one transaction: price, gate on provider
// verification, reject overlapping stays, then cut either a plain booking
// transaction or an escrow contract with its funding transaction. A failure
// at any step leaves no rows behind.
func (e Engine) Book(ctx context.Context, opts BookOptions, actorID string) (domain.BookingResult, error) {
	var res domain.BookingResult
	l := opts.Listing
	if l.ID == "" || l.ProviderID == "" {
		return res, validationf("listing id and provider id are required")
	}
	if !listingKinds[l.Kind] {
		return res, validationf("unknown listing kind %q", l.Kind)
	}
	if l.BasePrice < 0 {
		return res, validationf("listing base price must be >= 0")
	}
	if opts.GuestCount < 1 {
		return res, validationf("guest count must be >= 1")
	}
	switch opts.PaymentPreference {
	case "", "direct", "escrow":
	default:
		return res, validationf("unknown payment preference %q", opts.PaymentPreference)
	}
	start, err := time.Parse(dateLayout, opts.StartDate)
	if err != nil {
		return res, validationf("start date %q: want YYYY-MM-DD", opts.StartDate)
	}
	end, err := time.Parse(dateLayout, opts.EndDate)
	if err != nil {
		return res, validationf("end date %q: want YYYY-MM-DD", opts.EndDate)
	}
	if end.Before(start) {
		return res, validationf("end date precedes start date")
	}

	nights := int64(end.Sub(start) / (24 * time.Hour))
	if nights < 1 {
		nights = 1
	}
	var total int64
	if l.Kind == domain.ListingAccommodation {
		total = l.BasePrice * nights
	} else {
		total = l.BasePrice * int64(opts.GuestCount)
	}
	total += e.Config.Policies.Pricing.ServiceFee
	useContract := l.ContractCoverage || opts.PaymentPreference == "escrow"

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if useContract {
		v, err := e.Repo.GetVerificationTx(ctx, tx, l.ProviderID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && v.Status != domain.VerificationVerified) {
			return res, ProviderNotVerifiedError{ProviderID: l.ProviderID}
		}
		if err != nil {
			return res, err
		}
	}
	overlap, err := e.Repo.ActiveBookingOverlap(ctx, tx, l.ID, opts.StartDate, opts.EndDate)
	if err != nil {
		return res, err
	}
	if overlap {
		return res, ConflictError{Entity: "listing", ID: l.ID}
	}

	b := domain.Booking{
		ID:          newID(),
		ListingID:   l.ID,
		GuestCount:  opts.GuestCount,
		StartDate:   opts.StartDate,
		EndDate:     opts.EndDate,
		Status:      domain.BookingActive,
		TotalAmount: total,
		CreatedAt:   e.nowStr(),
	}

	if useContract {
		c, err := e.createContractTx(ctx, tx, CreateContractOptions{
			BookingID:   b.ID,
			Type:        contractTypeFor(l.Kind),
			TotalAmount: total,
			Parties:     []string{actorID, l.ProviderID},
			Milestones:  e.defaultMilestones(total, opts.StartDate, opts.EndDate),
			Terms:       []string{fmt.Sprintf("listing %s, %d guest(s), %s to %s", l.ID, opts.GuestCount, opts.StartDate, opts.EndDate)},
		}, actorID)
		if err != nil {
			return res, err
		}
		escrow, err := e.insertTransactionTx(ctx, tx, RecordTransactionOptions{
			Kind:       domain.TxnEscrow,
			Amount:     c.EscrowAmount,
			From:       actorID,
			To:         l.ProviderID,
			ContractID: c.ID,
		}, actorID)
		if err != nil {
			return res, err
		}
		if _, err := e.transitionTransactionTx(ctx, tx, escrow.ID, domain.TxnPending, domain.TxnConfirmed, nil, actorID, "transaction.confirmed"); err != nil {
			return res, err
		}
		ok, err := e.Repo.UpdateContractStatusCAS(ctx, tx, c.ID, domain.ContractDraft, domain.ContractActive)
		if err != nil {
			return res, err
		}
		if !ok {
			return res, ConflictError{Entity: "contract", ID: c.ID}
		}
		if err := e.Repo.SetContractEscrowTxn(ctx, tx, c.ID, escrow.ID); err != nil {
			return res, err
		}
		if err := e.Events.Append(ctx, tx, events.Record{
			Type:           "contract.activated",
			EntityKind:     "contract",
			EntityID:       c.ID,
			PreviousStatus: domain.ContractDraft,
			NewStatus:      domain.ContractActive,
			ActorID:        actorID,
			Payload:        events.EventPayload{"escrow_txn_id": escrow.ID},
		}); err != nil {
			return res, err
		}
		b.TransactionID = escrow.ID
		b.ContractID = &c.ID
		res.ContractID = &c.ID
	} else {
		t, err := e.insertTransactionTx(ctx, tx, RecordTransactionOptions{
			Kind:   domain.TxnBooking,
			Amount: total,
			From:   actorID,
			To:     l.ProviderID,
		}, actorID)
		if err != nil {
			return res, err
		}
		b.TransactionID = t.ID
	}

	if err := e.Repo.InsertBooking(ctx, tx, b); err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:       "booking.created",
		EntityKind: "booking",
		EntityID:   b.ID,
		NewStatus:  b.Status,
		ActorID:    actorID,
		Payload: events.EventPayload{
			"listing_id":   l.ID,
			"guest_count":  opts.GuestCount,
			"total_amount": total,
			"covered":      useContract,
		},
	}); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	res.Booking = b
	res.TransactionID = b.TransactionID
	return res, nil
}

// defaultMilestones splits the total into a confirmation portion due at the
// start of the stay and a delivery portion due at its end.
func (e Engine) defaultMilestones(total int64, startDate, endDate string) []MilestoneInput {
	confirm := int64(float64(total) * e.Config.Policies.Milestones.ConfirmationFraction)
	if confirm < 0 {
		confirm = 0
	}
	if confirm > total {
		confirm = total
	}
	return []MilestoneInput{
		{Description: "booking confirmation", Amount: confirm, DueDate: startDate},
		{Description: "service delivery", Amount: total - confirm, DueDate: endDate},
	}
}

func contractTypeFor(listingKind string) string {
	switch listingKind {
	case domain.ListingAccommodation:
		return domain.ContractAccommodation
	case domain.ListingGuide:
		return domain.ContractGuide
	case domain.ListingTransport:
		return domain.ContractTransport
	default:
		return domain.ContractFullPackage
	}
}
