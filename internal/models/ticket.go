package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketValid    TicketStatus = "valid"
	TicketUsed     TicketStatus = "used"
	TicketRefunded TicketStatus = "refunded"
	TicketBanned   TicketStatus = "banned"
)

// Terminal reports whether a ticket in this status can never change again.
func (s TicketStatus) Terminal() bool {
	return s == TicketRefunded || s == TicketBanned
}

// Contact is the person a ticket is earmarked for while no account with
// that phone exists yet.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID       string          `bun:"id,pk" json:"id"`
	EventID  string          `bun:"event_id,notnull" json:"event_id"`
	Category string          `bun:"category,notnull" json:"category"`
	Price    decimal.Decimal `bun:"price,notnull" json:"price"`
	Status   TicketStatus    `bun:"status,notnull" json:"status"`

	// HolderID is the account currently entitled to use the ticket. It may
	// keep pointing at the previous holder after a transfer to an
	// unregistered phone; the transfer ledger is authoritative there.
	HolderID string `bun:"holder_id,nullzero" json:"holder_id,omitempty"`

	// PayerID is set once at creation and never overwritten.
	PayerID string `bun:"payer_id,notnull" json:"payer_id"`

	PendingName  string `bun:"pending_name,nullzero" json:"pending_name,omitempty"`
	PendingPhone string `bun:"pending_phone,nullzero" json:"pending_phone,omitempty"`
	PendingEmail string `bun:"pending_email,nullzero" json:"pending_email,omitempty"`

	// BookingRef is the payment transaction id the ticket was created
	// under. Booking creation is idempotent on this value.
	BookingRef string `bun:"booking_ref,notnull" json:"booking_ref"`

	PurchasedAt time.Time `bun:"purchased_at,notnull" json:"purchased_at"`
	CheckedInAt time.Time `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`

	ChildFlag bool `bun:"child_flag" json:"child_flag"`
	ChildAge  int  `bun:"child_age,nullzero" json:"child_age,omitempty"`

	// Version backs the optimistic concurrency check in the ticket store.
	Version int64 `bun:"version,notnull" json:"-"`
}

// PendingContact returns the earmarked contact, or nil when the ticket is not
// waiting on a phone number.
func (t *Ticket) PendingContact() *Contact {
	if t.PendingPhone == "" {
		return nil
	}
	return &Contact{Name: t.PendingName, Phone: t.PendingPhone, Email: t.PendingEmail}
}

func (t *Ticket) SetPendingContact(c Contact) {
	t.PendingName = c.Name
	t.PendingPhone = c.Phone
	t.PendingEmail = c.Email
}

func (t *Ticket) ClearPendingContact() {
	t.PendingName = ""
	t.PendingPhone = ""
	t.PendingEmail = ""
}

type OwnershipKind string

const (
	OwnershipOwned             OwnershipKind = "owned"
	OwnershipPendingAssignment OwnershipKind = "pending_assignment"
)

// OwnershipState is the tagged view over the holder/pending fields. The
// transfer ledger stays authoritative for "this ticket left account X".
type OwnershipState struct {
	Kind     OwnershipKind `json:"kind"`
	HolderID string        `json:"holder_id,omitempty"`
	Contact  *Contact      `json:"contact,omitempty"`
}

func (t *Ticket) OwnershipState() OwnershipState {
	if c := t.PendingContact(); c != nil {
		return OwnershipState{Kind: OwnershipPendingAssignment, HolderID: t.HolderID, Contact: c}
	}
	return OwnershipState{Kind: OwnershipOwned, HolderID: t.HolderID}
}
