package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	PaymentBooking  PaymentKind = "booking"
	PaymentTransfer PaymentKind = "transfer"
)

// PaymentOutcome is the normalized "payment completed" result delivered by the
// gateway. The same transaction id may be delivered more than once (redirect
// callback and webhook both firing); consumers must treat repeats as no-ops.
type PaymentOutcome struct {
	TransactionID string           `json:"transaction_id"`
	PayerID       string           `json:"payer_account"`
	Amount        decimal.Decimal  `json:"amount"`
	Kind          PaymentKind      `json:"kind"`
	Booking       *BookingPayload  `json:"booking,omitempty"`
	Transfer      *TransferPayload `json:"transfer,omitempty"`
	ReceivedAt    time.Time        `json:"received_at"`
}

// BookingPayload carries the per-slot manifest of a completed booking payment.
type BookingPayload struct {
	EventID string         `json:"event_id"`
	Slots   []SlotManifest `json:"slots"`
}

// SlotManifest describes one ticket slot in a booking. A slot marked IsOwner
// goes to the buyer; any other slot is earmarked for the given phone.
type SlotManifest struct {
	IsOwner  bool            `json:"is_owner"`
	Name     string          `json:"name,omitempty"`
	Phone    string          `json:"phone,omitempty"`
	Email    string          `json:"email,omitempty"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	HasChild bool            `json:"has_child,omitempty"`
	ChildAge int             `json:"child_age,omitempty"`
}

// TransferPayload carries the intent of a paid peer-to-peer transfer.
type TransferPayload struct {
	TicketID       string `json:"ticket_id"`
	FromHolderID   string `json:"from_holder_id"`
	RecipientPhone string `json:"recipient_phone"`
	RecipientName  string `json:"recipient_name,omitempty"`
}

// RawPayload re-marshals the outcome for the audit store.
func (o PaymentOutcome) RawPayload() []byte {
	b, _ := json.Marshal(o)
	return b
}
