package domain

// Subject types accepted by the trust ledger.
const (
	SubjectGuide     = "guide"
	SubjectArtisan   = "artisan"
	SubjectHomestay  = "homestay"
	SubjectTransport = "transport"
	SubjectEquipment = "equipment"
)

// Verification statuses.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
	VerificationExpired  = "expired"
)

// Transaction kinds and statuses.
const (
	TxnBooking = "booking"
	TxnPayment = "payment"
	TxnEscrow  = "escrow"
	TxnDispute = "dispute"

	TxnPending   = "pending"
	TxnConfirmed = "confirmed"
	TxnCompleted = "completed"
	TxnFailed    = "failed"
)

// Contract types and statuses. Completed and disputed are terminal, except
// for the single resolve edge out of disputed.
const (
	ContractAccommodation = "accommodation"
	ContractGuide         = "guide"
	ContractTransport     = "transport"
	ContractFullPackage   = "full-package"

	ContractDraft     = "draft"
	ContractActive    = "active"
	ContractCompleted = "completed"
	ContractDisputed  = "disputed"
)

// Milestone statuses.
const (
	MilestonePending   = "pending"
	MilestoneCompleted = "completed"
	MilestoneDisputed  = "disputed"
)

// Listing kinds accepted by the booking orchestrator.
const (
	ListingAccommodation = "accommodation"
	ListingGuide         = "guide"
	ListingTransport     = "transport"
	ListingActivity      = "activity"
	ListingExperience    = "experience"
)

// Booking statuses.
const (
	BookingActive    = "active"
	BookingCompleted = "completed"
	BookingFailed    = "failed"
)

// Dispute resolution outcomes.
const (
	OutcomeRelease = "release"
	OutcomeRefund  = "refund"
)

type VerificationRecord struct {
	ID               string  `json:"id"`
	SubjectName      string  `json:"subject_name"`
	SubjectType      string  `json:"subject_type" enum:"guide,artisan,homestay,transport,equipment"`
	Status           string  `json:"status" enum:"pending,verified,rejected,expired"`
	TrustScore       int     `json:"trust_score"`
	AttestationProof *string `json:"attestation_proof,omitempty"`
	SubmittedAt      string  `json:"submitted_at" format:"date-time"`
	VerifiedAt       *string `json:"verified_at,omitempty" format:"date-time"`
}

type Transaction struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind" enum:"booking,payment,escrow,dispute"`
	Amount     int64   `json:"amount"`
	Status     string  `json:"status" enum:"pending,confirmed,completed,failed"`
	FromParty  string  `json:"from"`
	ToParty    string  `json:"to"`
	ContractID *string `json:"contract_id,omitempty"`
	Reason     *string `json:"reason,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

type Milestone struct {
	ID          string `json:"id"`
	ContractID  string `json:"contract_id"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status" enum:"pending,completed,disputed"`
	DueDate     string `json:"due_date,omitempty" format:"date-time"`
}

type SmartContract struct {
	ID           string      `json:"id"`
	BookingID    string      `json:"booking_id"`
	Type         string      `json:"type" enum:"accommodation,guide,transport,full-package"`
	Status       string      `json:"status" enum:"draft,active,completed,disputed"`
	TotalAmount  int64       `json:"total_amount"`
	EscrowAmount int64       `json:"escrow_amount"`
	Parties      []string    `json:"parties"`
	Terms        []string    `json:"terms,omitempty"`
	Milestones   []Milestone `json:"milestones"`
	EscrowTxnID  *string     `json:"escrow_txn_id,omitempty"`
	CreatedAt    string      `json:"created_at" format:"date-time"`
	ExpiresAt    *string     `json:"expires_at,omitempty" format:"date-time"`
}

type Review struct {
	ID               string `json:"id"`
	Rating           int    `json:"rating" minimum:"1" maximum:"5"`
	Comment          string `json:"comment,omitempty"`
	ReviewerID       string `json:"reviewer_id"`
	SubjectID        string `json:"subject_id"`
	AttestationProof string `json:"attestation_proof,omitempty"`
	Verified         bool   `json:"verified"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

// Listing is the value object a booking request carries. Pricing is a
// first-class numeric field; the core never parses display strings.
type Listing struct {
	ID               string `json:"id"`
	ProviderID       string `json:"provider_id"`
	Kind             string `json:"kind" enum:"accommodation,guide,transport,activity,experience"`
	BasePrice        int64  `json:"base_price"`
	ContractCoverage bool   `json:"contract_coverage"`
}

type Booking struct {
	ID            string  `json:"id"`
	ListingID     string  `json:"listing_id"`
	GuestCount    int     `json:"guest_count"`
	StartDate     string  `json:"start_date" format:"date"`
	EndDate       string  `json:"end_date" format:"date"`
	Status        string  `json:"status" enum:"active,completed,failed"`
	TotalAmount   int64   `json:"total_amount"`
	TransactionID string  `json:"transaction_id"`
	ContractID    *string `json:"contract_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

// BookingResult references what the orchestrator created for one booking
// attempt: the booking row, its transaction and, when contract coverage was
// requested, the escrow contract.
type BookingResult struct {
	Booking       Booking `json:"booking"`
	TransactionID string  `json:"transaction_id"`
	ContractID    *string `json:"contract_id,omitempty"`
}

type Event struct {
	ID             int64  `json:"id"`
	TS             string `json:"ts" format:"date-time"`
	Type           string `json:"type"`
	EntityKind     string `json:"entity_kind"`
	EntityID       string `json:"entity_id"`
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	ActorID        string `json:"actor_id"`
	Payload        string `json:"payload_json"`
}

type VerificationStats struct {
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	Verified          int     `json:"verified"`
	Rejected          int     `json:"rejected"`
	Expired           int     `json:"expired"`
	AverageTrustScore float64 `json:"average_trust_score"`
}
