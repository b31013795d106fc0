package attest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is returned when the attestation backend cannot issue a
// proof. Callers must leave the subject's verification pending and allow the
// authorizing actor to retry.
var ErrUnavailable = errors.New("attestation service unavailable")

// Service issues opaque attestation proofs for verified subjects. The default
// implementation simulates an anchoring backend; a real signature scheme can
// be swapped in without touching the trust ledger's state machine.
type Service interface {
	IssueProof(ctx context.Context, subjectID string) (string, error)
}

// Simulated issues random hex proofs after an optional fixed latency.
type Simulated struct {
	Latency time.Duration
	// Fail forces ErrUnavailable; used to exercise the rollback path.
	Fail bool
}

func (s Simulated) IssueProof(ctx context.Context, subjectID string) (string, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.Fail {
		return "", ErrUnavailable
	}
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}
