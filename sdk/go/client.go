package tourtrustsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal TourTrust HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Verification represents a verification record (partial).
type Verification struct {
	ID               string  `json:"id"`
	SubjectName      string  `json:"subject_name"`
	SubjectType      string  `json:"subject_type"`
	Status           string  `json:"status"`
	TrustScore       int     `json:"trust_score"`
	AttestationProof *string `json:"attestation_proof,omitempty"`
}

// Transaction represents a ledger transaction.
type Transaction struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Amount     int64   `json:"amount"`
	Status     string  `json:"status"`
	FromParty  string  `json:"from"`
	ToParty    string  `json:"to"`
	ContractID *string `json:"contract_id,omitempty"`
	Reason     *string `json:"reason,omitempty"`
}

// Milestone is one entry of a contract schedule.
type Milestone struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
}

// Contract represents an escrow contract.
type Contract struct {
	ID           string      `json:"id"`
	BookingID    string      `json:"booking_id"`
	Type         string      `json:"type"`
	Status       string      `json:"status"`
	TotalAmount  int64       `json:"total_amount"`
	EscrowAmount int64       `json:"escrow_amount"`
	Parties      []string    `json:"parties"`
	Milestones   []Milestone `json:"milestones"`
	EscrowTxnID  *string     `json:"escrow_txn_id,omitempty"`
}

// Listing is the value object a booking request carries.
type Listing struct {
	ID               string `json:"id"`
	ProviderID       string `json:"provider_id"`
	Kind             string `json:"kind"`
	BasePrice        int64  `json:"base_price"`
	ContractCoverage bool   `json:"contract_coverage"`
}

// Booking represents a booking row.
type Booking struct {
	ID            string  `json:"id"`
	ListingID     string  `json:"listing_id"`
	Status        string  `json:"status"`
	TotalAmount   int64   `json:"total_amount"`
	TransactionID string  `json:"transaction_id"`
	ContractID    *string `json:"contract_id,omitempty"`
}

// BookingResult is what one booking attempt created.
type BookingResult struct {
	Booking       Booking `json:"booking"`
	TransactionID string  `json:"transaction_id"`
	ContractID    *string `json:"contract_id,omitempty"`
}

// Event represents one log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	NewStatus  string `json:"new_status,omitempty"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SubmitVerification submits a provider for vetting.
func (c *Client) SubmitVerification(ctx context.Context, subjectName, subjectType string) (Verification, error) {
	body := map[string]any{
		"subject_name": subjectName,
		"subject_type": subjectType,
	}
	var resp Verification
	err := c.do(ctx, http.MethodPost, "v0/verifications", body, &resp)
	return resp, err
}

// DecideVerification approves or rejects a pending verification.
func (c *Client) DecideVerification(ctx context.Context, id string, approve bool) (Verification, error) {
	var resp Verification
	endpoint := fmt.Sprintf("v0/verifications/%s/decision", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"approve": approve}, &resp)
	return resp, err
}

// TrustScore returns the subject's current score.
func (c *Client) TrustScore(ctx context.Context, id string) (int, error) {
	var resp struct {
		TrustScore int `json:"trust_score"`
	}
	endpoint := fmt.Sprintf("v0/verifications/%s/score", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.TrustScore, err
}

// RecordTransaction appends a pending transaction.
func (c *Client) RecordTransaction(ctx context.Context, kind string, amount int64, from, to, contractID string) (Transaction, error) {
	body := map[string]any{
		"kind":   kind,
		"amount": amount,
		"from":   from,
		"to":     to,
	}
	if contractID != "" {
		body["contract_id"] = contractID
	}
	var resp Transaction
	err := c.do(ctx, http.MethodPost, "v0/transactions", body, &resp)
	return resp, err
}

// ConfirmTransaction moves pending -> confirmed.
func (c *Client) ConfirmTransaction(ctx context.Context, id string) (Transaction, error) {
	var resp Transaction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/transactions/%s/confirm", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// CompleteTransaction moves confirmed -> completed.
func (c *Client) CompleteTransaction(ctx context.Context, id string) (Transaction, error) {
	var resp Transaction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/transactions/%s/complete", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// FailTransaction fails a transaction with a reason.
func (c *Client) FailTransaction(ctx context.Context, id, reason string) (Transaction, error) {
	var resp Transaction
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/transactions/%s/fail", url.PathEscape(id)), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// Book runs one checkout.
func (c *Client) Book(ctx context.Context, listing Listing, guestCount int, startDate, endDate string) (BookingResult, error) {
	body := map[string]any{
		"listing":     listing,
		"guest_count": guestCount,
		"start_date":  startDate,
		"end_date":    endDate,
	}
	var resp BookingResult
	err := c.do(ctx, http.MethodPost, "v0/bookings", body, &resp)
	return resp, err
}

// GetContract fetches a contract with its milestones.
func (c *Client) GetContract(ctx context.Context, id string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/contracts/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// CompleteMilestone completes one milestone of a contract.
func (c *Client) CompleteMilestone(ctx context.Context, contractID, milestoneID string) (Contract, error) {
	var resp Contract
	endpoint := fmt.Sprintf("v0/contracts/%s/milestones/%s/complete", url.PathEscape(contractID), url.PathEscape(milestoneID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// DisputeMilestone contests a milestone.
func (c *Client) DisputeMilestone(ctx context.Context, contractID, milestoneID, reason string) (Contract, error) {
	var resp Contract
	endpoint := fmt.Sprintf("v0/contracts/%s/milestones/%s/dispute", url.PathEscape(contractID), url.PathEscape(milestoneID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"reason": reason}, &resp)
	return resp, err
}

// ResolveDispute applies an arbitration outcome (release or refund).
func (c *Client) ResolveDispute(ctx context.Context, contractID, outcome, note string) (Contract, error) {
	var resp Contract
	endpoint := fmt.Sprintf("v0/contracts/%s/resolve", url.PathEscape(contractID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"outcome": outcome, "note": note}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	} else if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
