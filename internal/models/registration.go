package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RegistrationToken is a one-time credential linking a future account to a
// ticket pre-assigned to its phone number. Expired tokens are kept for audit.
type RegistrationToken struct {
	bun.BaseModel `bun:"table:registration_tokens"`

	ID        string    `bun:"id,pk" json:"id"`
	Token     string    `bun:"token,notnull,unique" json:"token"`
	TicketID  string    `bun:"ticket_id,notnull" json:"ticket_id"`
	Phone     string    `bun:"phone,notnull" json:"phone"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`
	Used      bool      `bun:"used,notnull" json:"used"`
}

func (t *RegistrationToken) Active(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// DraftProfile holds contact details captured before the phone number has a
// registered account. Lives in the ephemeral draft cache, keyed by phone.
type DraftProfile struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
