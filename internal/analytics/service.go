package analytics

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// EventOwnershipStats summarizes where an event's tickets currently stand.
type EventOwnershipStats struct {
	EventID            string         `json:"event_id"`
	TotalTickets       int            `json:"total_tickets"`
	ByStatus           map[string]int `json:"by_status"`
	Unclaimed          int            `json:"unclaimed"`
	CheckedIn          int            `json:"checked_in"`
	CompletedTransfers int            `json:"completed_transfers"`
	TransferFees       float64        `json:"transfer_fees"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// Service assembles ownership statistics from the database.
type Service struct {
	db *DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: NewDB(db)}
}

// EventOwnershipStats aggregates ticket and transfer metrics for one event.
func (s *Service) EventOwnershipStats(ctx context.Context, eventID string) (*EventOwnershipStats, error) {
	statusRows, err := s.db.GetTicketStatusCounts(ctx, eventID)
	if err != nil {
		return nil, err
	}

	stats := &EventOwnershipStats{
		EventID:     eventID,
		ByStatus:    make(map[string]int, len(statusRows)),
		GeneratedAt: time.Now(),
	}
	for _, row := range statusRows {
		stats.ByStatus[row.Status] = row.Count
		stats.TotalTickets += row.Count
	}

	stats.Unclaimed, err = s.db.GetUnclaimedCount(ctx, eventID)
	if err != nil {
		return nil, err
	}

	stats.CheckedIn, err = s.db.GetCheckedInCount(ctx, eventID)
	if err != nil {
		return nil, err
	}

	transfers, err := s.db.GetTransferTotals(ctx, eventID)
	if err != nil {
		return nil, err
	}
	stats.CompletedTransfers = transfers.Count
	stats.TransferFees = transfers.Fees

	return stats, nil
}
