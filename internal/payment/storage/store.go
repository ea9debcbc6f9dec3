package storage

import (
	"ticket-runners/internal/models"
)

// OutcomeStatus tracks how far the gateway got with one payment outcome.
type OutcomeStatus string

const (
	StatusReceived  OutcomeStatus = "received"
	StatusForwarded OutcomeStatus = "forwarded"
	StatusFailed    OutcomeStatus = "failed"
)

// StoredOutcome is the audit row the gateway keeps for every callback.
type StoredOutcome struct {
	Outcome     models.PaymentOutcome
	Status      OutcomeStatus
	LastError   string
	ForwardedAt string
}

type Store interface {
	SaveOutcome(outcome models.PaymentOutcome) error
	GetOutcome(transactionID string) (*StoredOutcome, error)
	MarkForwarded(transactionID string) error
	MarkFailed(transactionID, reason string) error
	ListPending(limit int) ([]StoredOutcome, error)

	Close() error
	HealthCheck() error
}
