package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferCancelled TransferStatus = "cancelled"
)

// TransferRecord is an append-only ledger entry. A completed record with a
// given (ticket_id, from_holder_id) pair is the authoritative signal that the
// ticket left that holder, regardless of what the ticket row says.
type TransferRecord struct {
	bun.BaseModel `bun:"table:transfer_records"`

	ID           string `bun:"id,pk" json:"id"`
	TicketID     string `bun:"ticket_id,notnull" json:"ticket_id"`
	FromHolderID string `bun:"from_holder_id,notnull" json:"from_holder_id"`

	// ToHolderID stays empty until the recipient phone registers an
	// account; ToPhone is kept so reconciliation can resolve it later.
	ToHolderID string `bun:"to_holder_id,nullzero" json:"to_holder_id,omitempty"`
	ToPhone    string `bun:"to_phone,nullzero" json:"to_phone,omitempty"`
	ToName     string `bun:"to_name,nullzero" json:"to_name,omitempty"`

	Status TransferStatus `bun:"status,notnull" json:"status"`

	// PaymentRef is the fee payment transaction id. Transfer processing is
	// idempotent on this value.
	PaymentRef string          `bun:"payment_ref,notnull" json:"payment_ref"`
	Fee        decimal.Decimal `bun:"fee,notnull" json:"fee"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
