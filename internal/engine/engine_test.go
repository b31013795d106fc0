package engine_test

import (
	"context"
	"testing"
	"time"

	"tourtrust/internal/config"
	"tourtrust/internal/db"
	"tourtrust/internal/domain"
	"tourtrust/internal/engine"
	"tourtrust/internal/events"
	"tourtrust/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	eng.ScoreDraw = func(min, max int) int { return min + 5 }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

// verifiedProvider submits and approves a verification, returning the record.
func verifiedProvider(t *testing.T, env testEnv, name string) domain.VerificationRecord {
	t.Helper()
	v, err := env.Engine.SubmitVerification(env.Ctx, name, domain.SubjectGuide, "admin")
	if err != nil {
		t.Fatalf("submit verification: %v", err)
	}
	v, err = env.Engine.DecideVerification(env.Ctx, v.ID, true, "admin")
	if err != nil {
		t.Fatalf("approve verification: %v", err)
	}
	return v
}

func TestReplayMatchesLiveState(t *testing.T) {
	env := newTestEnv(t)
	provider := verifiedProvider(t, env, "Ravi Guide Services")

	// mixed workload across all four ledgers
	rejected, _ := env.Engine.SubmitVerification(env.Ctx, "Shady Rentals", domain.SubjectEquipment, "admin")
	if _, err := env.Engine.DecideVerification(env.Ctx, rejected.ID, false, "admin"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	txn, err := env.Engine.RecordTransaction(env.Ctx, engine.RecordTransactionOptions{
		Kind: domain.TxnPayment, Amount: 5000, From: "guest-1", To: provider.ID,
	}, "guest-1")
	if err != nil {
		t.Fatalf("record txn: %v", err)
	}
	if _, err := env.Engine.ConfirmTransaction(env.Ctx, txn.ID, "guest-1"); err != nil {
		t.Fatalf("confirm txn: %v", err)
	}
	res, err := env.Engine.Book(env.Ctx, engine.BookOptions{
		Listing: domain.Listing{
			ID: "listing-1", ProviderID: provider.ID,
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
	if _, err := env.Engine.CompleteMilestone(env.Ctx, c.ID, c.Milestones[0].ID, "admin"); err != nil {
		t.Fatalf("complete milestone: %v", err)
	}

	replayed, err := events.Replay(env.Ctx, env.Engine.DB)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	live, err := env.Engine.Repo.StatusSnapshot(env.Ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(replayed) != len(live) {
		t.Fatalf("replay has %d entities, live has %d", len(replayed), len(live))
	}
	for key, status := range live {
		got := replayed[events.EntityRef{Kind: key[0], ID: key[1]}]
		if got != status {
			t.Fatalf("%s %s: replayed %q, live %q", key[0], key[1], got, status)
		}
	}
}
