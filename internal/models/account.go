package models

import "github.com/uptrace/bun"

// Account is the customer aggregate. This service only reads it; the portal
// owns writes.
type Account struct {
	bun.BaseModel `bun:"table:customers"`

	ID     string `bun:"id,pk" json:"id"`
	Name   string `bun:"name,notnull" json:"name"`
	Phone  string `bun:"phone,notnull,unique" json:"phone"`
	Email  string `bun:"email,nullzero" json:"email,omitempty"`
	Active bool   `bun:"active,notnull" json:"active"`
}

// CallerContext carries the authenticated caller into every operation instead
// of ambient framework state.
type CallerContext struct {
	AccountID string `json:"account_id"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}
