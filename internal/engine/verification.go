package engine

import (
	"context"
	"fmt"

	"tourtrust/internal/domain"
	"tourtrust/internal/events"
)

var subjectTypes = map[string]bool{
	domain.SubjectGuide:     true,
	domain.SubjectArtisan:   true,
	domain.SubjectHomestay:  true,
	domain.SubjectTransport: true,
	domain.SubjectEquipment: true,
}

// SubmitVerification creates a pending record with trust score zero.
func (e Engine) SubmitVerification(ctx context.Context, subjectName, subjectType, actorID string) (domain.VerificationRecord, error) {
	if subjectName == "" {
		return domain.VerificationRecord{}, validationf("subject name is required")
	}
	if !subjectTypes[subjectType] {
		return domain.VerificationRecord{}, validationf("unknown subject type %q", subjectType)
	}
	v := domain.VerificationRecord{
		ID:          newID(),
		SubjectName: subjectName,
		SubjectType: subjectType,
		Status:      domain.VerificationPending,
		TrustScore:  0,
		SubmittedAt: e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return v, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertVerification(ctx, tx, v); err != nil {
		return v, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:       "verification.submitted",
		EntityKind: "verification",
		EntityID:   v.ID,
		NewStatus:  v.Status,
		ActorID:    actorID,
		Payload:    events.EventPayload{"subject_name": v.SubjectName, "subject_type": v.SubjectType},
	}); err != nil {
		return v, err
	}
	if err := tx.Commit(); err != nil {
		return v, err
	}
	return v, nil
}

// DecideVerification settles a pending record. On approve it draws a trust
// score from the configured band and obtains an attestation proof BEFORE any
// write, so an unavailable attestation backend leaves the record pending and
// retryable.
func (e Engine) DecideVerification(ctx context.Context, id string, approve bool, actorID string) (domain.VerificationRecord, error) {
	v, err := e.Repo.GetVerification(ctx, id)
	if err != nil {
		return v, err
	}
	if v.Status != domain.VerificationPending {
		return v, InvalidStateError{Entity: "verification", ID: id, Msg: fmt.Sprintf("already %s; only pending records can be decided", v.Status)}
	}
	now := e.nowStr()
	if approve {
		proof, err := e.Attester.IssueProof(ctx, id)
		if err != nil {
			return v, fmt.Errorf("issue attestation proof: %w", err)
		}
		band := e.Config.Policies.Scoring
		v.Status = domain.VerificationVerified
		v.TrustScore = e.ScoreDraw(band.Min, band.Max)
		v.AttestationProof = &proof
		v.VerifiedAt = &now
	} else {
		v.Status = domain.VerificationRejected
		v.TrustScore = 0
		v.AttestationProof = nil
		v.VerifiedAt = nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return v, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateVerificationCAS(ctx, tx, v, domain.VerificationPending)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, ConflictError{Entity: "verification", ID: id}
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           "verification.decided",
		EntityKind:     "verification",
		EntityID:       id,
		PreviousStatus: domain.VerificationPending,
		NewStatus:      v.Status,
		ActorID:        actorID,
		Payload:        events.EventPayload{"approve": approve, "trust_score": v.TrustScore},
	}); err != nil {
		return v, err
	}
	if err := tx.Commit(); err != nil {
		return v, err
	}
	return v, nil
}

// ScoreOf returns the current trust score; zero for any non-verified record.
func (e Engine) ScoreOf(ctx context.Context, id string) (int, error) {
	v, err := e.Repo.GetVerification(ctx, id)
	if err != nil {
		return 0, err
	}
	if v.Status != domain.VerificationVerified {
		return 0, nil
	}
	return v.TrustScore, nil
}

// ExpireVerification moves a verified record to expired once its validity
// window lapses. The trigger is external policy; the ledger only enforces the
// transition.
func (e Engine) ExpireVerification(ctx context.Context, id, actorID string) (domain.VerificationRecord, error) {
	v, err := e.Repo.GetVerification(ctx, id)
	if err != nil {
		return v, err
	}
	if v.Status != domain.VerificationVerified {
		return v, invalidTransition("verification", id, v.Status, domain.VerificationExpired)
	}
	v.Status = domain.VerificationExpired
	v.TrustScore = 0
	v.AttestationProof = nil
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return v, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateVerificationCAS(ctx, tx, v, domain.VerificationVerified)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, ConflictError{Entity: "verification", ID: id}
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           "verification.expired",
		EntityKind:     "verification",
		EntityID:       id,
		PreviousStatus: domain.VerificationVerified,
		NewStatus:      domain.VerificationExpired,
		ActorID:        actorID,
	}); err != nil {
		return v, err
	}
	if err := tx.Commit(); err != nil {
		return v, err
	}
	return v, nil
}

// adjustTrustScore nudges a verified subject's score by delta, clamped to
// [0,100]. Subjects without a verified record are skipped: guests appear in
// contract parties but hold no verification.
func (e Engine) adjustTrustScore(ctx context.Context, subjectID string, delta int, actorID, cause string) error {
	v, err := e.Repo.GetVerification(ctx, subjectID)
	if err != nil {
		return err
	}
	if v.Status != domain.VerificationVerified || delta == 0 {
		return nil
	}
	prev := v.TrustScore
	next := prev + delta
	if next > 100 {
		next = 100
	}
	if next < 1 {
		// a verified record keeps a positive score; expiry and rejection are
		// the only paths back to zero
		next = 1
	}
	v.TrustScore = next
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateVerificationCAS(ctx, tx, v, domain.VerificationVerified)
	if err != nil {
		return err
	}
	if !ok {
		return ConflictError{Entity: "verification", ID: subjectID}
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:           "verification.score_adjusted",
		EntityKind:     "verification",
		EntityID:       subjectID,
		PreviousStatus: domain.VerificationVerified,
		NewStatus:      domain.VerificationVerified,
		ActorID:        actorID,
		Payload:        events.EventPayload{"from": prev, "to": next, "cause": cause},
	}); err != nil {
		return err
	}
	return tx.Commit()
}
