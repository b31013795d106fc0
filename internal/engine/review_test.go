package engine_test

import (
	"errors"
	"testing"

	"tourtrust/internal/engine"
	"tourtrust/internal/repo"
)

func TestReviewVerifiedOnlyWithMatchingProof(t *testing.T) {
	env := newTestEnv(t)
	provider := verifiedProvider(t, env, "Spice Trail Walks")

	rv, err := env.Engine.AddReview(env.Ctx, engine.AddReviewOptions{
		SubjectID: provider.ID,
		Rating:    5,
		Comment:   "great walk",
		Proof:     *provider.AttestationProof,
	}, "guest-1")
	if err != nil {
		t.Fatalf("add review: %v", err)
	}
	if !rv.Verified {
		t.Fatalf("expected review verified with matching proof")
	}

	rv, err = env.Engine.AddReview(env.Ctx, engine.AddReviewOptions{
		SubjectID: provider.ID,
		Rating:    1,
		Comment:   "never went",
		Proof:     "0xdeadbeef",
	}, "guest-2")
	if err != nil {
		t.Fatalf("add review: %v", err)
	}
	if rv.Verified {
		t.Fatalf("expected mismatched proof to stay unverified")
	}

	rv, err = env.Engine.AddReview(env.Ctx, engine.AddReviewOptions{
		SubjectID: provider.ID,
		Rating:    4,
	}, "guest-3")
	if err != nil {
		t.Fatalf("add review: %v", err)
	}
	if rv.Verified {
		t.Fatalf("expected proofless review to stay unverified")
	}

	reviews, err := env.Engine.ReviewsFor(env.Ctx, provider.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reviews) != 3 {
		t.Fatalf("expected 3 reviews, got %d", len(reviews))
	}
}

func TestReviewValidation(t *testing.T) {
	env := newTestEnv(t)
	provider := verifiedProvider(t, env, "Coastal Rides")
	var ve engine.ValidationError
	_, err := env.Engine.AddReview(env.Ctx, engine.AddReviewOptions{SubjectID: provider.ID, Rating: 6}, "g")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for rating 6, got %v", err)
	}
	_, err = env.Engine.AddReview(env.Ctx, engine.AddReviewOptions{SubjectID: provider.ID, Rating: 0}, "g")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for rating 0, got %v", err)
	}
	_, err = env.Engine.AddReview(env.Ctx, engine.AddReviewOptions{SubjectID: "missing", Rating: 3}, "g")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown subject, got %v", err)
	}
}
