package engine

import "fmt"

// ValidationError marks malformed input. Never retried automatically.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidStateError marks an illegal transition attempt: the caller's view of
// the entity was stale and it should re-query.
type InvalidStateError struct {
	Entity string
	ID     string
	Msg    string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Msg)
}

func invalidTransition(entity, id, from, to string) error {
	return InvalidStateError{Entity: entity, ID: id, Msg: fmt.Sprintf("invalid transition %s -> %s", from, to)}
}

// ConflictError marks a mutation that lost a concurrent race. Safe to retry
// once after re-reading state.
type ConflictError struct {
	Entity string
	ID     string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s: concurrent update lost the race", e.Entity, e.ID)
}

// ProviderNotVerifiedError blocks bookings against providers whose
// verification is not in the verified state.
type ProviderNotVerifiedError struct {
	ProviderID string
}

func (e ProviderNotVerifiedError) Error() string {
	return fmt.Sprintf("provider %s is not verified", e.ProviderID)
}
