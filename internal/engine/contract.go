package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"tourtrust/internal/domain"
	"tourtrust/internal/events"
	"tourtrust/internal/repo"
)

var contractTypes = map[string]bool{
	domain.ContractAccommodation: true,
	domain.ContractGuide:         true,
	domain.ContractTransport:     true,
	domain.ContractFullPackage:   true,
}

// MilestoneInput describes one milestone of a contract schedule.
type MilestoneInput struct {
	Description string
	Amount      int64
	DueDate     string
}

// CreateContractOptions are parameters for creating an escrow contract.
type CreateContractOptions struct {
	BookingID   string
	Type        string
	TotalAmount int64
	// Parties is ordered payer first; milestone payouts run from the first
	// party to the second.
	Parties    []string
	Milestones []MilestoneInput
	Terms      []string
	ExpiresAt  string
}

// escrowAmount maps a contract total to the reserved escrow portion.
func (e Engine) escrowAmount(total int64) int64 {
	reserved := int64(math.Round(float64(total) * e.Config.Policies.Escrow.ReserveFraction))
	if reserved > total {
		reserved = total
	}
	return reserved
}

// CreateContract creates a draft contract whose milestone schedule partitions
// the total amount exactly.
func (e Engine) CreateContract(ctx context.Context, opts CreateContractOptions, actorID string) (domain.SmartContract, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SmartContract{}, err
	}
	defer tx.Rollback()
	c, err := e.createContractTx(ctx, tx, opts, actorID)
	if err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

func (e Engine) createContractTx(ctx context.Context, tx *sql.Tx, opts CreateContractOptions, actorID string) (domain.SmartContract, error) {
	var c domain.SmartContract
	if !contractTypes[opts.Type] {
		return c, validationf("unknown contract type %q", opts.Type)
	}
	if len(opts.Parties) < 2 {
		return c, validationf("a contract needs at least two parties")
	}
	if len(opts.Milestones) == 0 {
		return c, validationf("a contract needs at least one milestone")
	}
	var sum int64
	for _, m := range opts.Milestones {
		if m.Amount < 0 {
			return c, validationf("milestone amounts must be >= 0")
		}
		sum += m.Amount
	}
	if sum != opts.TotalAmount {
		return c, validationf("milestone amounts sum to %d, want total %d", sum, opts.TotalAmount)
	}
	now := e.nowStr()
	c = domain.SmartContract{
		ID:           newID(),
		BookingID:    opts.BookingID,
		Type:         opts.Type,
		Status:       domain.ContractDraft,
		TotalAmount:  opts.TotalAmount,
		EscrowAmount: e.escrowAmount(opts.TotalAmount),
		Parties:      opts.Parties,
		Terms:        opts.Terms,
		CreatedAt:    now,
		ExpiresAt:    optionalString(opts.ExpiresAt),
	}
	for _, m := range opts.Milestones {
		c.Milestones = append(c.Milestones, domain.Milestone{
			ID:          newID(),
			ContractID:  c.ID,
			Description: m.Description,
			Amount:      m.Amount,
			Status:      domain.MilestonePending,
			DueDate:     m.DueDate,
		})
	}
	if err := e.Repo.InsertContract(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:       "contract.created",
		EntityKind: "contract",
		EntityID:   c.ID,
		NewStatus:  c.Status,
		ActorID:    actorID,
		Payload:    events.EventPayload{"booking_id": c.BookingID, "type": c.Type, "total_amount": c.TotalAmount, "escrow_amount": c.EscrowAmount},
	}); err != nil {
		return c, err
	}
	for _, m := range c.Milestones {
		if err := e.Events.Append(ctx, tx, events.Record{
			Type:       "milestone.created",
			EntityKind: "milestone",
			EntityID:   m.ID,
			NewStatus:  m.Status,
			ActorID:    actorID,
			Payload:    events.EventPayload{"contract_id": c.ID, "description": m.Description, "amount": m.Amount},
		}); err != nil {
			return c, err
		}
	}
	return c, nil
}

// ActivateContract moves draft -> active once a confirmed transaction covers
// at least the escrow amount.
func (e Engine) ActivateContract(ctx context.Context, contractID, actorID string) (domain.SmartContract, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SmartContract{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, contractID)
	if err != nil {
		return c, err
	}
	if c.Status != domain.ContractDraft {
		return c, invalidTransition("contract", contractID, c.Status, domain.ContractActive)
	}
	escrowTxn, err := e.Repo.ConfirmedTransactionForContract(ctx, tx, contractID, c.EscrowAmount)
	if errors.Is(err, repo.ErrNotFound) {
		return c, InvalidStateError{Entity: "contract", ID: contractID, Msg: fmt.Sprintf("no confirmed transaction covers the escrow amount %d", c.EscrowAmount)}
	}
	if err != nil {
		return c, err
	}
	ok, err := e.Repo.UpdateContractStatusCAS(ctx, tx, contractID, domain.ContractDraft, domain.ContractActive)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, ConflictError{Entity: "contract", ID: contractID}
	}
	if err := e.Repo.SetContractEscrowTxn(ctx, tx, contractID, escrowTxn.ID); err != nil {
		return c, err
	}
	c.Status = domain.ContractActive
	c.EscrowTxnID = &escrowTxn.ID
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           "contract.activated",
		EntityKind:     "contract",
		EntityID:       contractID,
		PreviousStatus: domain.ContractDraft,
		NewStatus:      domain.ContractActive,
		ActorID:        actorID,
		Payload:        events.EventPayload{"escrow_txn_id": escrowTxn.ID},
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// CompleteMilestone marks a pending milestone completed and moves its portion
// of funds through the transaction ledger. Completing the last milestone
// settles the whole contract and nudges the parties' trust scores.
func (e Engine) CompleteMilestone(ctx context.Context, contractID, milestoneID, actorID string) (domain.SmartContract, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SmartContract{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, contractID)
	if err != nil {
		return c, err
	}
	if c.Status != domain.ContractActive {
		return c, InvalidStateError{Entity: "contract", ID: contractID, Msg: fmt.Sprintf("is %s; milestones advance only on active contracts", c.Status)}
	}
	m, err := findMilestone(c, milestoneID)
	if err != nil {
		return c, err
	}
	if m.Status != domain.MilestonePending {
		return c, invalidTransition("milestone", milestoneID, m.Status, domain.MilestoneCompleted)
	}
	ok, err := e.Repo.UpdateMilestoneStatusCAS(ctx, tx, milestoneID, domain.MilestonePending, domain.MilestoneCompleted)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, ConflictError{Entity: "milestone", ID: milestoneID}
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           "milestone.completed",
		EntityKind:     "milestone",
		EntityID:       milestoneID,
		PreviousStatus: domain.MilestonePending,
		NewStatus:      domain.MilestoneCompleted,
		ActorID:        actorID,
		Payload:        events.EventPayload{"contract_id": contractID, "amount": m.Amount},
	}); err != nil {
		return c, err
	}

	// release the milestone's portion: recorded, confirmed and completed in
	// one ledger-local commit
	payout, err := e.insertTransactionTx(ctx, tx, RecordTransactionOptions{
		Kind:       domain.TxnPayment,
		Amount:     m.Amount,
		From:       c.Parties[0],
		To:         c.Parties[1],
		ContractID: contractID,
	}, actorID)
	if err != nil {
		return c, err
	}
	if _, err := e.transitionTransactionTx(ctx, tx, payout.ID, domain.TxnPending, domain.TxnConfirmed, nil, actorID, "transaction.confirmed"); err != nil {
		return c, err
	}
	if _, err := e.transitionTransactionTx(ctx, tx, payout.ID, domain.TxnConfirmed, domain.TxnCompleted, nil, actorID, "transaction.completed"); err != nil {
		return c, err
	}

	remaining, err := e.Repo.CountMilestonesNotCompleted(ctx, tx, contractID)
	if err != nil {
		return c, err
	}
	settled := remaining == 0
	if settled {
		if err := e.finishContractTx(ctx, tx, c, actorID); err != nil {
			return c, err
		}
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	if settled {
		e.adjustPartiesScore(ctx, c.Parties, e.Config.Policies.Scoring.CompletionBonus, actorID, "contract completed")
	}
	return e.Repo.GetContract(ctx, contractID)
}

// finishContractTx moves an active contract to completed, releases the
// remaining escrow and settles the covered booking.
func (e Engine) finishContractTx(ctx context.Context, tx *sql.Tx, c domain.SmartContract, actorID string) error {
	ok, err := e.Repo.UpdateContractStatusCAS(ctx, tx, c.ID, domain.ContractActive, domain.ContractCompleted)
	if err != nil {
		return err
	}
	if !ok {
		return ConflictError{Entity: "contract", ID: c.ID}
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           "contract.completed",
		EntityKind:     "contract",
		EntityID:       c.ID,
		PreviousStatus: domain.ContractActive,
		NewStatus:      domain.ContractCompleted,
		ActorID:        actorID,
	}); err != nil {
		return err
	}
	if c.EscrowTxnID != nil {
		t, err := e.Repo.GetTransactionTx(ctx, tx, *c.EscrowTxnID)
		if err != nil {
			return err
		}
		if t.Status == domain.TxnConfirmed {
			if _, err := e.transitionTransactionTx(ctx, tx, t.ID, domain.TxnConfirmed, domain.TxnCompleted, nil, actorID, "transaction.completed"); err != nil {
				return err
			}
		}
	}
	return e.settleContractBookingTx(ctx, tx, c.ID, domain.BookingCompleted, actorID)
}

// DisputeMilestone contests a pending milestone, moving both the milestone
// and the contract to disputed. The contract is terminal from here except for
// the single resolve edge.
func (e Engine) DisputeMilestone(ctx context.Context, contractID, milestoneID, reason, actorID string) (domain.SmartContract, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SmartContract{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, contractID)
	if err != nil {
		return c, err
	}
	if c.Status != domain.ContractActive {
		return c, InvalidStateError{Entity: "contract", ID: contractID, Msg: fmt.Sprintf("is %s; only active contracts can be disputed", c.Status)}
	}
	m, err := findMilestone(c, milestoneID)
	if err != nil {
		return c, err
	}
	if m.Status != domain.MilestonePending {
		return c, invalidTransition("milestone", milestoneID, m.Status, domain.MilestoneDisputed)
	}
	ok, err := e.Repo.UpdateMilestoneStatusCAS(ctx, tx, milestoneID, domain.MilestonePending, domain.MilestoneDisputed)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, ConflictError{Entity: "milestone", ID: milestoneID}
	}
	ok, err = e.Repo.UpdateContractStatusCAS(ctx, tx, contractID, domain.ContractActive, domain.ContractDisputed)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, ConflictError{Entity: "contract", ID: contractID}
	}
	terms := append(c.Terms, fmt.Sprintf("disputed: %s", reason))
	if err := e.Repo.UpdateContractTerms(ctx, tx, contractID, terms); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           "milestone.disputed",
		EntityKind:     "milestone",
		EntityID:       milestoneID,
		PreviousStatus: domain.MilestonePending,
		NewStatus:      domain.MilestoneDisputed,
		ActorID:        actorID,
		Payload:        events.EventPayload{"contract_id": contractID, "reason": reason},
	}); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           "contract.disputed",
		EntityKind:     "contract",
		EntityID:       contractID,
		PreviousStatus: domain.ContractActive,
		NewStatus:      domain.ContractDisputed,
		ActorID:        actorID,
		Payload:        events.EventPayload{"milestone_id": milestoneID, "reason": reason},
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return e.Repo.GetContract(ctx, contractID)
}

// ResolveDispute applies the external arbitration outcome to a disputed
// contract: release pays out the remaining escrow, refund fails it back to
// the payer. Either way the contract ends completed with the outcome on
// record in its terms.
func (e Engine) ResolveDispute(ctx context.Context, contractID, outcome, note, actorID string) (domain.SmartContract, error) {
	if outcome != domain.OutcomeRelease && outcome != domain.OutcomeRefund {
		return domain.SmartContract{}, validationf("unknown dispute outcome %q", outcome)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SmartContract{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContractTx(ctx, tx, contractID)
	if err != nil {
		return c, err
	}
	if c.Status != domain.ContractDisputed {
		return c, InvalidStateError{Entity: "contract", ID: contractID, Msg: fmt.Sprintf("is %s; only disputed contracts can be resolved", c.Status)}
	}
	ok, err := e.Repo.UpdateContractStatusCAS(ctx, tx, contractID, domain.ContractDisputed, domain.ContractCompleted)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, ConflictError{Entity: "contract", ID: contractID}
	}
	term := fmt.Sprintf("resolution: %s", outcome)
	if note != "" {
		term += " (" + note + ")"
	}
	if err := e.Repo.UpdateContractTerms(ctx, tx, contractID, append(c.Terms, term)); err != nil {
		return c, err
	}
	bookingStatus := domain.BookingCompleted
	if c.EscrowTxnID != nil {
		switch outcome {
		case domain.OutcomeRefund:
			reason := "refunded: " + note
			if note == "" {
				reason = "refunded"
			}
			if _, err := e.failTransactionTx(ctx, tx, *c.EscrowTxnID, reason, actorID); err != nil {
				return c, err
			}
		case domain.OutcomeRelease:
			t, err := e.Repo.GetTransactionTx(ctx, tx, *c.EscrowTxnID)
			if err != nil {
				return c, err
			}
			if t.Status == domain.TxnConfirmed {
				if _, err := e.transitionTransactionTx(ctx, tx, t.ID, domain.TxnConfirmed, domain.TxnCompleted, nil, actorID, "transaction.completed"); err != nil {
					return c, err
				}
			}
		}
	}
	if outcome == domain.OutcomeRefund {
		bookingStatus = domain.BookingFailed
	}
	if err := e.settleContractBookingTx(ctx, tx, contractID, bookingStatus, actorID); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           "contract.resolved",
		EntityKind:     "contract",
		EntityID:       contractID,
		PreviousStatus: domain.ContractDisputed,
		NewStatus:      domain.ContractCompleted,
		ActorID:        actorID,
		Payload:        events.EventPayload{"outcome": outcome, "note": note},
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	if outcome == domain.OutcomeRefund {
		e.adjustPartiesScore(ctx, c.Parties, -e.Config.Policies.Scoring.DisputePenalty, actorID, "dispute refunded")
	}
	return e.Repo.GetContract(ctx, contractID)
}

func (e Engine) settleContractBookingTx(ctx context.Context, tx *sql.Tx, contractID, toStatus, actorID string) error {
	b, err := e.Repo.GetBookingByContractTx(ctx, tx, contractID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if b.Status != domain.BookingActive {
		return nil
	}
	return e.settleBookingTx(ctx, tx, b.ID, toStatus, actorID)
}

// adjustPartiesScore applies the trust-score policy hook to every party that
// holds a verified record. Ledger-local commits happened already; this
// dependent update is retried once per party and never re-ordered.
func (e Engine) adjustPartiesScore(ctx context.Context, parties []string, delta int, actorID, cause string) {
	for _, p := range parties {
		err := e.adjustTrustScore(ctx, p, delta, actorID, cause)
		if err == nil || errors.Is(err, repo.ErrNotFound) {
			continue
		}
		_ = e.adjustTrustScore(ctx, p, delta, actorID, cause)
	}
}

func findMilestone(c domain.SmartContract, milestoneID string) (domain.Milestone, error) {
	for _, m := range c.Milestones {
		if m.ID == milestoneID {
			return m, nil
		}
	}
	return domain.Milestone{}, fmt.Errorf("milestone %s: %w", milestoneID, repo.ErrNotFound)
}
