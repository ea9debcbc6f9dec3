package analytics

import (
	"context"

	"github.com/uptrace/bun"

	"ticket-runners/internal/models"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// StatusCountRow is one row of the per-status ticket breakdown.
type StatusCountRow struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

// GetTicketStatusCounts groups an event's tickets by status.
func (db *DB) GetTicketStatusCounts(ctx context.Context, eventID string) ([]StatusCountRow, error) {
	var rows []StatusCountRow
	err := db.bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		Where("event_id = ?", eventID).
		GroupExpr("status").
		Scan(ctx, &rows)

	return rows, err
}

// GetUnclaimedCount counts tickets still earmarked for a contact without an
// account attached.
func (db *DB) GetUnclaimedCount(ctx context.Context, eventID string) (int, error) {
	count, err := db.bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("pending_phone IS NOT NULL AND pending_phone != ''").
		Count(ctx)

	return count, err
}

// GetCheckedInCount counts tickets already used at the gate.
func (db *DB) GetCheckedInCount(ctx context.Context, eventID string) (int, error) {
	count, err := db.bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.TicketUsed).
		Count(ctx)

	return count, err
}

// TransferTotalsRow holds aggregate transfer metrics for an event.
type TransferTotalsRow struct {
	Count int     `bun:"transfer_count"`
	Fees  float64 `bun:"fee_total"`
}

// GetTransferTotals counts completed transfers for an event and sums the fees
// collected on them.
func (db *DB) GetTransferTotals(ctx context.Context, eventID string) (TransferTotalsRow, error) {
	var row TransferTotalsRow
	err := db.bun.NewRaw(`
		SELECT
			COUNT(r.id) AS transfer_count,
			COALESCE(SUM(r.fee), 0) AS fee_total
		FROM
			transfer_records r
		JOIN
			tickets t ON r.ticket_id = t.id
		WHERE
			t.event_id = ? AND r.status = ?`, eventID, models.TransferCompleted).
		Scan(ctx, &row)

	return row, err
}
