package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type FeeType string

const (
	FeePercentage FeeType = "percentage"
	FeeFlat       FeeType = "flat"
)

// Event is the catalog aggregate, referenced by id only. The fields carried
// here are the ones ticket ownership needs: transferability and fee policy.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID               string          `bun:"id,pk" json:"id"`
	Name             string          `bun:"name,notnull" json:"name"`
	StartsAt         time.Time       `bun:"starts_at,notnull" json:"starts_at"`
	TransferEnabled  bool            `bun:"transfer_enabled,notnull" json:"transfer_enabled"`
	TransferFeeType  FeeType         `bun:"transfer_fee_type,nullzero" json:"transfer_fee_type,omitempty"`
	TransferFeeValue decimal.Decimal `bun:"transfer_fee_value,nullzero" json:"transfer_fee_value"`
}
