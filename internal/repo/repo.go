package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tourtrust/internal/config"
	"tourtrust/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

// --- verifications ---

func (r Repo) InsertVerification(ctx context.Context, tx *sql.Tx, v domain.VerificationRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO verifications(id,subject_name,subject_type,status,trust_score,attestation_proof,submitted_at,verified_at) VALUES (?,?,?,?,?,?,?,?)`,
		v.ID, v.SubjectName, v.SubjectType, v.Status, v.TrustScore, nullableStringPtr(v.AttestationProof), v.SubmittedAt, nullableStringPtr(v.VerifiedAt))
	return err
}

func scanVerification(scan func(dest ...any) error) (domain.VerificationRecord, error) {
	var v domain.VerificationRecord
	var proof, verifiedAt sql.NullString
	err := scan(&v.ID, &v.SubjectName, &v.SubjectType, &v.Status, &v.TrustScore, &proof, &v.SubmittedAt, &verifiedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if proof.Valid {
		v.AttestationProof = &proof.String
	}
	if verifiedAt.Valid {
		v.VerifiedAt = &verifiedAt.String
	}
	return v, nil
}

const verificationCols = `id,subject_name,subject_type,status,trust_score,attestation_proof,submitted_at,verified_at`

func (r Repo) getVerification(ctx context.Context, q querier, id string) (domain.VerificationRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+verificationCols+` FROM verifications WHERE id=?`, id)
	return scanVerification(row.Scan)
}

func (r Repo) GetVerification(ctx context.Context, id string) (domain.VerificationRecord, error) {
	return r.getVerification(ctx, r.DB, id)
}

func (r Repo) GetVerificationTx(ctx context.Context, tx *sql.Tx, id string) (domain.VerificationRecord, error) {
	return r.getVerification(ctx, tx, id)
}

type VerificationFilters struct {
	Status      string
	SubjectType string
	Limit       int
}

func (r Repo) ListVerifications(ctx context.Context, f VerificationFilters) ([]domain.VerificationRecord, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.SubjectType != "" {
		clauses = append(clauses, "subject_type=?")
		args = append(args, f.SubjectType)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + verificationCols + ` FROM verifications ` + where + ` ORDER BY submitted_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.VerificationRecord
	for rows.Next() {
		v, err := scanVerification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// UpdateVerificationCAS writes the new verification state only if the row is
// still in fromStatus. Returns false when the row exists but the guard lost.
func (r Repo) UpdateVerificationCAS(ctx context.Context, tx *sql.Tx, v domain.VerificationRecord, fromStatus string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE verifications SET status=?, trust_score=?, attestation_proof=?, verified_at=? WHERE id=? AND status=?`,
		v.Status, v.TrustScore, nullableStringPtr(v.AttestationProof), nullableStringPtr(v.VerifiedAt), v.ID, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) VerificationStats(ctx context.Context) (domain.VerificationStats, error) {
	var s domain.VerificationStats
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM verifications GROUP BY status`)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return s, err
		}
		s.Total += count
		switch status {
		case domain.VerificationPending:
			s.Pending = count
		case domain.VerificationVerified:
			s.Verified = count
		case domain.VerificationRejected:
			s.Rejected = count
		case domain.VerificationExpired:
			s.Expired = count
		}
	}
	if err := rows.Err(); err != nil {
		return s, err
	}
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(AVG(trust_score),0) FROM verifications WHERE trust_score > 0`)
	if err := row.Scan(&s.AverageTrustScore); err != nil {
		return s, err
	}
	return s, nil
}

// --- transactions ---

const transactionCols = `id,kind,amount,status,from_party,to_party,contract_id,reason,created_at,updated_at`

func (r Repo) InsertTransaction(ctx context.Context, tx *sql.Tx, t domain.Transaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO transactions(`+transactionCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Kind, t.Amount, t.Status, t.FromParty, t.ToParty, nullableStringPtr(t.ContractID), nullableStringPtr(t.Reason), t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTransaction(scan func(dest ...any) error) (domain.Transaction, error) {
	var t domain.Transaction
	var contractID, reason sql.NullString
	err := scan(&t.ID, &t.Kind, &t.Amount, &t.Status, &t.FromParty, &t.ToParty, &contractID, &reason, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if contractID.Valid {
		t.ContractID = &contractID.String
	}
	if reason.Valid {
		t.Reason = &reason.String
	}
	return t, nil
}

func (r Repo) getTransaction(ctx context.Context, q querier, id string) (domain.Transaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionCols+` FROM transactions WHERE id=?`, id)
	return scanTransaction(row.Scan)
}

func (r Repo) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return r.getTransaction(ctx, r.DB, id)
}

func (r Repo) GetTransactionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Transaction, error) {
	return r.getTransaction(ctx, tx, id)
}

type TransactionFilters struct {
	Kind       string
	Status     string
	ContractID string
	Limit      int
}

func (r Repo) ListTransactions(ctx context.Context, f TransactionFilters) ([]domain.Transaction, error) {
	var clauses []string
	var args []any
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ContractID != "" {
		clauses = append(clauses, "contract_id=?")
		args = append(args, f.ContractID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + transactionCols + ` FROM transactions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTransactionCAS moves a transaction from fromStatus to toStatus,
// optionally recording a failure reason.
func (r Repo) UpdateTransactionCAS(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus string, reason *string, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE transactions SET status=?, reason=COALESCE(?,reason), updated_at=? WHERE id=? AND status=?`,
		toStatus, nullableStringPtr(reason), updatedAt, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ConfirmedTransactionForContract returns a confirmed transaction linked to
// the contract covering at least minAmount, if one exists.
func (r Repo) ConfirmedTransactionForContract(ctx context.Context, tx *sql.Tx, contractID string, minAmount int64) (domain.Transaction, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+transactionCols+` FROM transactions WHERE contract_id=? AND status=? AND amount>=? ORDER BY created_at ASC LIMIT 1`,
		contractID, domain.TxnConfirmed, minAmount)
	return scanTransaction(row.Scan)
}

// --- contracts ---

const contractCols = `id,booking_id,type,status,total_amount,escrow_amount,parties_json,terms_json,escrow_txn_id,created_at,expires_at`

func (r Repo) InsertContract(ctx context.Context, tx *sql.Tx, c domain.SmartContract) error {
	parties, err := json.Marshal(c.Parties)
	if err != nil {
		return err
	}
	var terms any
	if len(c.Terms) > 0 {
		b, err := json.Marshal(c.Terms)
		if err != nil {
			return err
		}
		terms = string(b)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO contracts(`+contractCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.BookingID, c.Type, c.Status, c.TotalAmount, c.EscrowAmount, string(parties), terms, nullableStringPtr(c.EscrowTxnID), c.CreatedAt, nullableStringPtr(c.ExpiresAt)); err != nil {
		return err
	}
	for i, m := range c.Milestones {
		if _, err := tx.ExecContext(ctx, `INSERT INTO milestones(id,contract_id,position,description,amount,status,due_date) VALUES (?,?,?,?,?,?,?)`,
			m.ID, c.ID, i, m.Description, m.Amount, m.Status, nullable(m.DueDate)); err != nil {
			return err
		}
	}
	return nil
}

func scanContract(scan func(dest ...any) error) (domain.SmartContract, error) {
	var c domain.SmartContract
	var parties string
	var terms, escrowTxn, expiresAt sql.NullString
	err := scan(&c.ID, &c.BookingID, &c.Type, &c.Status, &c.TotalAmount, &c.EscrowAmount, &parties, &terms, &escrowTxn, &c.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(parties), &c.Parties); err != nil {
		return c, fmt.Errorf("contract %s parties: %w", c.ID, err)
	}
	if terms.Valid && terms.String != "" {
		if err := json.Unmarshal([]byte(terms.String), &c.Terms); err != nil {
			return c, fmt.Errorf("contract %s terms: %w", c.ID, err)
		}
	}
	if escrowTxn.Valid {
		c.EscrowTxnID = &escrowTxn.String
	}
	if expiresAt.Valid {
		c.ExpiresAt = &expiresAt.String
	}
	return c, nil
}

func (r Repo) listMilestones(ctx context.Context, q querier, contractID string) ([]domain.Milestone, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,contract_id,description,amount,status,COALESCE(due_date,'') FROM milestones WHERE contract_id=? ORDER BY position ASC`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Milestone
	for rows.Next() {
		var m domain.Milestone
		if err := rows.Scan(&m.ID, &m.ContractID, &m.Description, &m.Amount, &m.Status, &m.DueDate); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) getContract(ctx context.Context, q querier, id string) (domain.SmartContract, error) {
	row := q.QueryRowContext(ctx, `SELECT `+contractCols+` FROM contracts WHERE id=?`, id)
	c, err := scanContract(row.Scan)
	if err != nil {
		return c, err
	}
	c.Milestones, err = r.listMilestones(ctx, q, id)
	return c, err
}

func (r Repo) GetContract(ctx context.Context, id string) (domain.SmartContract, error) {
	return r.getContract(ctx, r.DB, id)
}

func (r Repo) GetContractTx(ctx context.Context, tx *sql.Tx, id string) (domain.SmartContract, error) {
	return r.getContract(ctx, tx, id)
}

type ContractFilters struct {
	Status    string
	BookingID string
	Limit     int
}

func (r Repo) ListContracts(ctx context.Context, f ContractFilters) ([]domain.SmartContract, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.BookingID != "" {
		clauses = append(clauses, "booking_id=?")
		args = append(args, f.BookingID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + contractCols + ` FROM contracts ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SmartContract
	for rows.Next() {
		c, err := scanContract(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Milestones, err = r.listMilestones(ctx, r.DB, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// UpdateContractStatusCAS moves a contract from fromStatus to toStatus.
func (r Repo) UpdateContractStatusCAS(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE contracts SET status=? WHERE id=? AND status=?`, toStatus, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) SetContractEscrowTxn(ctx context.Context, tx *sql.Tx, contractID, txnID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE contracts SET escrow_txn_id=? WHERE id=?`, txnID, contractID)
	return err
}

func (r Repo) UpdateContractTerms(ctx context.Context, tx *sql.Tx, contractID string, terms []string) error {
	b, err := json.Marshal(terms)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE contracts SET terms_json=? WHERE id=?`, string(b), contractID)
	return err
}

// UpdateMilestoneStatusCAS moves one milestone from fromStatus to toStatus.
func (r Repo) UpdateMilestoneStatusCAS(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE milestones SET status=? WHERE id=? AND status=?`, toStatus, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) CountMilestonesNotCompleted(ctx context.Context, tx *sql.Tx, contractID string) (int, error) {
	row := tx.QueryRowContext(ctx, `SELECT count(*) FROM milestones WHERE contract_id=? AND status != ?`, contractID, domain.MilestoneCompleted)
	var n int
	err := row.Scan(&n)
	return n, err
}

// --- bookings ---

const bookingCols = `id,listing_id,guest_count,start_date,end_date,status,total_amount,transaction_id,contract_id,created_at`

func (r Repo) InsertBooking(ctx context.Context, tx *sql.Tx, b domain.Booking) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bookings(`+bookingCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.ListingID, b.GuestCount, b.StartDate, b.EndDate, b.Status, b.TotalAmount, b.TransactionID, nullableStringPtr(b.ContractID), b.CreatedAt)
	return err
}

func scanBooking(scan func(dest ...any) error) (domain.Booking, error) {
	var b domain.Booking
	var contractID sql.NullString
	err := scan(&b.ID, &b.ListingID, &b.GuestCount, &b.StartDate, &b.EndDate, &b.Status, &b.TotalAmount, &b.TransactionID, &contractID, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if contractID.Valid {
		b.ContractID = &contractID.String
	}
	return b, nil
}

func (r Repo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id=?`, id)
	return scanBooking(row.Scan)
}

func (r Repo) ListBookings(ctx context.Context, listingID string, limit int) ([]domain.Booking, error) {
	clauses := []string{"1=1"}
	var args []any
	if listingID != "" {
		clauses = append(clauses, "listing_id=?")
		args = append(args, listingID)
	}
	query := `SELECT ` + bookingCols + ` FROM bookings WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// ActiveBookingOverlap reports whether a non-terminal booking already covers
// an overlapping date range for the listing. Two ranges [s1,e1] and [s2,e2]
// overlap when s1 <= e2 and s2 <= e1.
func (r Repo) ActiveBookingOverlap(ctx context.Context, tx *sql.Tx, listingID, startDate, endDate string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT count(*) FROM bookings WHERE listing_id=? AND status=? AND start_date <= ? AND ? <= end_date`,
		listingID, domain.BookingActive, endDate, startDate)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) UpdateBookingStatusCAS(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE bookings SET status=? WHERE id=? AND status=?`, toStatus, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) GetBookingByTransactionTx(ctx context.Context, tx *sql.Tx, txnID string) (domain.Booking, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE transaction_id=?`, txnID)
	return scanBooking(row.Scan)
}

func (r Repo) GetBookingByContractTx(ctx context.Context, tx *sql.Tx, contractID string) (domain.Booking, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE contract_id=?`, contractID)
	return scanBooking(row.Scan)
}

// --- reviews ---

func (r Repo) InsertReview(ctx context.Context, tx *sql.Tx, rv domain.Review) error {
	verified := 0
	if rv.Verified {
		verified = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO reviews(id,rating,comment,reviewer_id,subject_id,attestation_proof,verified,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		rv.ID, rv.Rating, nullable(rv.Comment), rv.ReviewerID, rv.SubjectID, nullable(rv.AttestationProof), verified, rv.CreatedAt)
	return err
}

func (r Repo) ListReviews(ctx context.Context, subjectID string, limit int) ([]domain.Review, error) {
	clauses := []string{"1=1"}
	var args []any
	if subjectID != "" {
		clauses = append(clauses, "subject_id=?")
		args = append(args, subjectID)
	}
	query := `SELECT id,rating,COALESCE(comment,''),reviewer_id,subject_id,COALESCE(attestation_proof,''),verified,created_at FROM reviews WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		var rv domain.Review
		var verified int
		if err := rows.Scan(&rv.ID, &rv.Rating, &rv.Comment, &rv.ReviewerID, &rv.SubjectID, &rv.AttestationProof, &verified, &rv.CreatedAt); err != nil {
			return nil, err
		}
		rv.Verified = verified != 0
		res = append(res, rv)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,ts,type,entity_kind,entity_id,COALESCE(previous_status,''),COALESCE(new_status,''),actor_id,payload_json FROM events ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.PreviousStatus, &e.NewStatus, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// StatusSnapshot returns the current status of every entity that carries one,
// keyed by (entityKind, id). Used to check log replay against live state.
func (r Repo) StatusSnapshot(ctx context.Context) (map[[2]string]string, error) {
	snapshot := map[[2]string]string{}
	queries := map[string]string{
		"verification": `SELECT id, status FROM verifications`,
		"transaction":  `SELECT id, status FROM transactions`,
		"contract":     `SELECT id, status FROM contracts`,
		"milestone":    `SELECT id, status FROM milestones`,
		"booking":      `SELECT id, status FROM bookings`,
	}
	for kind, q := range queries {
		rows, err := r.DB.QueryContext(ctx, q)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id, status string
			if err := rows.Scan(&id, &status); err != nil {
				rows.Close()
				return nil, err
			}
			snapshot[[2]string{kind, id}] = status
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return snapshot, nil
}

// --- ledger config ---

func (r Repo) UpsertLedgerConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO ledger_configs(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

func (r Repo) GetLedgerConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM ledger_configs WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}
