package models

import "errors"

// Error taxonomy for the ownership subsystem. Services wrap these with
// fmt.Errorf("...: %w", err) and the API layer maps them to status codes with
// errors.Is. A duplicated payment outcome is deliberately absent: it is a
// logged no-op, not an error.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid ticket state")
	ErrInvalidSlotData        = errors.New("invalid slot data")
	ErrAlreadyTransferred     = errors.New("ticket already transferred from this holder")
	ErrAlreadyClaimed         = errors.New("ticket already claimed")
	ErrNotAssignedToYou       = errors.New("ticket is not assigned to this phone")
	ErrTransferDisabled       = errors.New("transfers are disabled for this event")
	ErrSelfTransfer           = errors.New("cannot transfer a ticket to its current holder")
	ErrFeeChargeFailed        = errors.New("transfer fee charge failed")
	ErrConcurrentModification = errors.New("concurrent modification")
)
