package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ticket-runners/internal/analytics"
	"ticket-runners/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupStatsDB(t *testing.T) (*analytics.Service, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Ticket)(nil), (*models.TransferRecord)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return analytics.NewService(bunDB), bunDB
}

func statTicket(id, eventID string, status models.TicketStatus) models.Ticket {
	return models.Ticket{
		ID:          id,
		EventID:     eventID,
		Category:    "regular",
		Price:       decimal.NewFromInt(200),
		Status:      status,
		HolderID:    "acct-holder",
		PayerID:     "acct-payer",
		BookingRef:  "txn-stats",
		PurchasedAt: time.Now(),
	}
}

func TestEventOwnershipStats(t *testing.T) {
	svc, bunDB := setupStatsDB(t)
	ctx := context.Background()

	tickets := []models.Ticket{
		statTicket("t-1", "event-1", models.TicketValid),
		statTicket("t-2", "event-1", models.TicketValid),
		statTicket("t-3", "event-1", models.TicketUsed),
		statTicket("t-4", "event-1", models.TicketRefunded),
		statTicket("t-5", "event-2", models.TicketValid),
	}
	tickets[1].SetPendingContact(models.Contact{Name: "Laila", Phone: "+201000000002"})
	_, err := bunDB.NewInsert().Model(&tickets).Exec(ctx)
	require.NoError(t, err)

	records := []models.TransferRecord{
		{
			ID:           "rec-1",
			TicketID:     "t-1",
			FromHolderID: "acct-old",
			ToHolderID:   "acct-holder",
			Status:       models.TransferCompleted,
			PaymentRef:   "txn-fee-1",
			Fee:          decimal.NewFromInt(20),
			CreatedAt:    time.Now(),
		},
		{
			ID:           "rec-2",
			TicketID:     "t-3",
			FromHolderID: "acct-old",
			ToPhone:      "+201000000002",
			Status:       models.TransferCompleted,
			PaymentRef:   "txn-fee-2",
			Fee:          decimal.NewFromInt(30),
			CreatedAt:    time.Now(),
		},
		{
			ID:           "rec-3",
			TicketID:     "t-5",
			FromHolderID: "acct-old",
			ToPhone:      "+201000000003",
			Status:       models.TransferCompleted,
			PaymentRef:   "txn-fee-3",
			Fee:          decimal.NewFromInt(50),
			CreatedAt:    time.Now(),
		},
	}
	_, err = bunDB.NewInsert().Model(&records).Exec(ctx)
	require.NoError(t, err)

	stats, err := svc.EventOwnershipStats(ctx, "event-1")
	require.NoError(t, err)

	assert.Equal(t, "event-1", stats.EventID)
	assert.Equal(t, 4, stats.TotalTickets)
	assert.Equal(t, 2, stats.ByStatus[string(models.TicketValid)])
	assert.Equal(t, 1, stats.ByStatus[string(models.TicketUsed)])
	assert.Equal(t, 1, stats.ByStatus[string(models.TicketRefunded)])
	assert.Equal(t, 1, stats.Unclaimed)
	assert.Equal(t, 1, stats.CheckedIn)
	assert.Equal(t, 2, stats.CompletedTransfers)
	assert.InDelta(t, 50.0, stats.TransferFees, 0.001)
}

func TestEventOwnershipStatsEmptyEvent(t *testing.T) {
	svc, _ := setupStatsDB(t)

	stats, err := svc.EventOwnershipStats(context.Background(), "event-none")
	require.NoError(t, err)

	assert.Zero(t, stats.TotalTickets)
	assert.Zero(t, stats.CompletedTransfers)
	assert.Empty(t, stats.ByStatus)
}
