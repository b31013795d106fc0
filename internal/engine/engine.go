package engine

import (
	"database/sql"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"tourtrust/internal/attest"
	"tourtrust/internal/config"
	"tourtrust/internal/events"
	"tourtrust/internal/repo"
)

// Engine drives the trust, transaction and contract ledgers plus the booking
// orchestration on top of them. Every mutation commits ledger-locally with an
// event row in the same transaction; cross-ledger effects run afterwards and
// are retried, never re-ordered.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Attester attest.Service
	Now      func() time.Time
	// ScoreDraw picks the initial trust score within [min,max]. The source
	// system samples uniformly; tests pin it.
	ScoreDraw func(min, max int) int
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Attester: attest.Simulated{},
		Now:      time.Now,
		ScoreDraw: func(min, max int) int {
			if max <= min {
				return min
			}
			return min + rand.IntN(max-min+1)
		},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID() string {
	return uuid.New().String()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
