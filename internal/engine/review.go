package engine

import (
	"context"

	"tourtrust/internal/domain"
	"tourtrust/internal/events"
)

// AddReviewOptions carry one review submission. The proof, if present, is
// checked against the subject's attestation; a match marks the review
// verified.
type AddReviewOptions struct {
	SubjectID string
	Rating    int
	Comment   string
	Proof     string
}

// AddReview records a review against a verification subject. Verified status
// is earned, never claimed: it is set only when the supplied proof equals the
// attestation proof held by the subject's verified record.
func (e Engine) AddReview(ctx context.Context, opts AddReviewOptions, actorID string) (domain.Review, error) {
	var rv domain.Review
	if opts.Rating < 1 || opts.Rating > 5 {
		return rv, validationf("rating must be between 1 and 5")
	}
	if opts.SubjectID == "" {
		return rv, validationf("subject id is required")
	}
	v, err := e.Repo.GetVerification(ctx, opts.SubjectID)
	if err != nil {
		return rv, err
	}
	verified := opts.Proof != "" &&
		v.Status == domain.VerificationVerified &&
		v.AttestationProof != nil &&
		*v.AttestationProof == opts.Proof
	rv = domain.Review{
		ID:               newID(),
		Rating:           opts.Rating,
		Comment:          opts.Comment,
		ReviewerID:       actorID,
		SubjectID:        opts.SubjectID,
		AttestationProof: opts.Proof,
		Verified:         verified,
		CreatedAt:        e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rv, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReview(ctx, tx, rv); err != nil {
		return rv, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{
		Type:       "review.added",
		EntityKind: "review",
		EntityID:   rv.ID,
		ActorID:    actorID,
		Payload:    events.EventPayload{"subject_id": rv.SubjectID, "rating": rv.Rating, "verified": rv.Verified},
	}); err != nil {
		return rv, err
	}
	if err := tx.Commit(); err != nil {
		return rv, err
	}
	return rv, nil
}

// ReviewsFor lists the most recent reviews for a subject.
func (e Engine) ReviewsFor(ctx context.Context, subjectID string, limit int) ([]domain.Review, error) {
	if subjectID == "" {
		return nil, validationf("subject id is required")
	}
	if _, err := e.Repo.GetVerification(ctx, subjectID); err != nil {
		return nil, err
	}
	return e.Repo.ListReviews(ctx, subjectID, limit)
}
