package engine_test

import (
	"errors"
	"testing"

	"tourtrust/internal/attest"
	"tourtrust/internal/domain"
	"tourtrust/internal/engine"
)

func TestApproveAssignsScoreAndProof(t *testing.T) {
	env := newTestEnv(t)
	v, err := env.Engine.SubmitVerification(env.Ctx, "Meena Homestay", domain.SubjectHomestay, "admin")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if v.Status != domain.VerificationPending || v.TrustScore != 0 {
		t.Fatalf("expected pending with score 0, got %s/%d", v.Status, v.TrustScore)
	}
	v, err = env.Engine.DecideVerification(env.Ctx, v.ID, true, "admin")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if v.Status != domain.VerificationVerified {
		t.Fatalf("expected verified, got %s", v.Status)
	}
	if v.TrustScore != 85 {
		t.Fatalf("expected pinned score 85, got %d", v.TrustScore)
	}
	if v.AttestationProof == nil || len(*v.AttestationProof) < 4 || (*v.AttestationProof)[:2] != "0x" {
		t.Fatalf("expected hex proof, got %v", v.AttestationProof)
	}
	if v.VerifiedAt == nil {
		t.Fatalf("expected verified_at to be set")
	}
}

func TestRejectZeroesScore(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.SubmitVerification(env.Ctx, "Unknown Transport", domain.SubjectTransport, "admin")
	v, err := env.Engine.DecideVerification(env.Ctx, v.ID, false, "admin")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if v.Status != domain.VerificationRejected || v.TrustScore != 0 || v.AttestationProof != nil {
		t.Fatalf("expected rejected with no score or proof, got %+v", v)
	}
	// a settled record cannot be decided again
	_, err = env.Engine.DecideVerification(env.Ctx, v.ID, true, "admin")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestAttestationOutageLeavesPending(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.SubmitVerification(env.Ctx, "Flaky Artisan", domain.SubjectArtisan, "admin")

	env.Engine.Attester = attest.Simulated{Fail: true}
	_, err := env.Engine.DecideVerification(env.Ctx, v.ID, true, "admin")
	if !errors.Is(err, attest.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	got, err := env.Engine.Repo.GetVerification(env.Ctx, v.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.VerificationPending {
		t.Fatalf("expected record still pending after outage, got %s", got.Status)
	}

	// retry once the backend recovers
	env.Engine.Attester = attest.Simulated{}
	got, err = env.Engine.DecideVerification(env.Ctx, v.ID, true, "admin")
	if err != nil {
		t.Fatalf("retry approve: %v", err)
	}
	if got.Status != domain.VerificationVerified {
		t.Fatalf("expected verified after retry, got %s", got.Status)
	}
}

func TestExpireVerification(t *testing.T) {
	env := newTestEnv(t)
	v := verifiedProvider(t, env, "Old Guide Co")
	score, err := env.Engine.ScoreOf(env.Ctx, v.ID)
	if err != nil || score != 85 {
		t.Fatalf("expected score 85, got %d (%v)", score, err)
	}
	v, err = env.Engine.ExpireVerification(env.Ctx, v.ID, "admin")
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if v.Status != domain.VerificationExpired || v.AttestationProof != nil {
		t.Fatalf("expected expired without proof, got %+v", v)
	}
	score, err = env.Engine.ScoreOf(env.Ctx, v.ID)
	if err != nil || score != 0 {
		t.Fatalf("expected score 0 after expiry, got %d (%v)", score, err)
	}
	// pending records do not expire
	p, _ := env.Engine.SubmitVerification(env.Ctx, "New Guide Co", domain.SubjectGuide, "admin")
	_, err = env.Engine.ExpireVerification(env.Ctx, p.ID, "admin")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	var ve engine.ValidationError
	_, err := env.Engine.SubmitVerification(env.Ctx, "", domain.SubjectGuide, "admin")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty name, got %v", err)
	}
	_, err = env.Engine.SubmitVerification(env.Ctx, "Someone", "plumber", "admin")
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown type, got %v", err)
	}
}
