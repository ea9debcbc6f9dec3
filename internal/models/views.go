package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingGroupStatus string

const (
	BookingConfirmed BookingGroupStatus = "confirmed"
	BookingRefunded  BookingGroupStatus = "refunded"
)

// BookingGroup aggregates the caller's tickets for one event bought on one
// day. Refunded wins over confirmed when any member ticket was refunded.
type BookingGroup struct {
	EventID     string             `json:"event_id"`
	PurchaseDay time.Time          `json:"purchase_day"`
	Quantity    int                `json:"quantity"`
	Amount      decimal.Decimal    `json:"amount"`
	Status      BookingGroupStatus `json:"status"`
	Tickets     []Ticket           `json:"tickets"`
}

// PurchasedForOther is one entry of the "tickets I bought for others" view.
// Claimed tickets do not appear; the view only tracks waiting recipients.
type PurchasedForOther struct {
	Ticket  Ticket  `json:"ticket"`
	Contact Contact `json:"contact"`
}
