package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ticket-runners/internal/models"
	"ticket-runners/internal/tickets/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.Ticket)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}
}

func sampleTicket(id string) models.Ticket {
	return models.Ticket{
		ID:          id,
		EventID:     "event-1",
		Category:    "Regular",
		Price:       decimal.NewFromInt(200),
		Status:      models.TicketValid,
		HolderID:    "acct-payer",
		PayerID:     "acct-payer",
		BookingRef:  "txn-1",
		PurchasedAt: time.Now(),
	}
}

func TestCreateAndGetTickets(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	first := sampleTicket("t-1")
	second := sampleTicket("t-2")
	second.SetPendingContact(models.Contact{Name: "Friend", Phone: "+201000000002"})

	require.NoError(t, store.CreateTickets(ctx, []models.Ticket{first, second}))

	got, err := store.GetTicketByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "event-1", got.EventID)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(200)))
	assert.Nil(t, got.PendingContact())

	byRef, err := store.GetTicketsByBookingRef(ctx, "txn-1")
	require.NoError(t, err)
	assert.Len(t, byRef, 2)

	byPhone, err := store.GetTicketsByPendingPhone(ctx, "+201000000002")
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, "t-2", byPhone[0].ID)

	_, err = store.GetTicketByID(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateTicketCASConflict(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := sampleTicket("t-cas")
	require.NoError(t, store.CreateTickets(ctx, []models.Ticket{ticket}))

	// Two readers pick up version 0.
	readerA, err := store.GetTicketByID(ctx, "t-cas")
	require.NoError(t, err)
	readerB, err := store.GetTicketByID(ctx, "t-cas")
	require.NoError(t, err)

	readerA.HolderID = "acct-a"
	require.NoError(t, store.UpdateTicketCAS(ctx, *readerA))

	readerB.HolderID = "acct-b"
	err = store.UpdateTicketCAS(ctx, *readerB)
	assert.ErrorIs(t, err, models.ErrConcurrentModification)

	final, err := store.GetTicketByID(ctx, "t-cas")
	require.NoError(t, err)
	assert.Equal(t, "acct-a", final.HolderID)
	assert.Equal(t, int64(1), final.Version)
}

func TestAdoptTicket(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := sampleTicket("t-adopt")
	ticket.SetPendingContact(models.Contact{Name: "Friend", Phone: "+201000000002"})
	require.NoError(t, store.CreateTickets(ctx, []models.Ticket{ticket}))

	adopted, err := store.AdoptTicket(ctx, "t-adopt", "acct-friend")
	require.NoError(t, err)
	assert.Equal(t, "acct-friend", adopted.HolderID)
	assert.Nil(t, adopted.PendingContact())

	// A repeat adoption by the same account is a no-op, not a conflict.
	again, err := store.AdoptTicket(ctx, "t-adopt", "acct-friend")
	require.NoError(t, err)
	assert.Equal(t, adopted.Version, again.Version)
}

func TestRecordCheckIn(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ticket := sampleTicket("t-gate")
	require.NoError(t, store.CreateTickets(ctx, []models.Ticket{ticket}))

	at := time.Now()
	require.NoError(t, store.RecordCheckIn(ctx, "t-gate", at))

	got, err := store.GetTicketByID(ctx, "t-gate")
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, got.Status)
	assert.False(t, got.CheckedInAt.IsZero())

	// A used ticket cannot pass the gate a second time.
	err = store.RecordCheckIn(ctx, "t-gate", time.Now())
	assert.True(t, errors.Is(err, models.ErrInvalidState))
}
