package server

import "tourtrust/internal/domain"

type SubmitVerificationRequest struct {
	SubjectName string `json:"subject_name" example:"Ravi Guide Services"`
	SubjectType string `json:"subject_type" enum:"guide,artisan,homestay,transport,equipment"`
}

type DecideVerificationRequest struct {
	Approve bool `json:"approve"`
}

type RecordTransactionRequest struct {
	Kind       string `json:"kind" enum:"booking,payment,escrow,dispute"`
	Amount     int64  `json:"amount" minimum:"0"`
	From       string `json:"from"`
	To         string `json:"to"`
	ContractID string `json:"contract_id,omitempty"`
}

type FailTransactionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type MilestoneRequest struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount" minimum:"0"`
	DueDate     string `json:"due_date,omitempty"`
}

type CreateContractRequest struct {
	BookingID   string             `json:"booking_id,omitempty"`
	Type        string             `json:"type" enum:"accommodation,guide,transport,full-package"`
	TotalAmount int64              `json:"total_amount" minimum:"0"`
	Parties     []string           `json:"parties"`
	Milestones  []MilestoneRequest `json:"milestones"`
	Terms       []string           `json:"terms,omitempty"`
	ExpiresAt   string             `json:"expires_at,omitempty"`
}

type DisputeMilestoneRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" enum:"release,refund"`
	Note    string `json:"note,omitempty"`
}

type BookRequest struct {
	Listing           domain.Listing `json:"listing"`
	GuestCount        int            `json:"guest_count" minimum:"1"`
	StartDate         string         `json:"start_date" example:"2026-04-01"`
	EndDate           string         `json:"end_date" example:"2026-04-03"`
	PaymentPreference string         `json:"payment_preference,omitempty" enum:",direct,escrow"`
}

type AddReviewRequest struct {
	SubjectID string `json:"subject_id"`
	Rating    int    `json:"rating" minimum:"1" maximum:"5"`
	Comment   string `json:"comment,omitempty"`
	Proof     string `json:"proof,omitempty"`
}

type ScoreResponse struct {
	SubjectID  string `json:"subject_id"`
	TrustScore int    `json:"trust_score"`
}
