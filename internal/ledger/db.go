package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ticket-runners/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

// Store is the only writer of transfer_records. Rows are append-only; the one
// mutation allowed is filling in to_holder_id once the recipient phone
// registers an account.
type Store struct {
	Bun *bun.DB
}

// isUniqueViolation matches the duplicate-key errors of both the Postgres
// driver and the sqlite shim used in tests.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Insert appends one departure. A unique index on (ticket_id, from_holder_id)
// for completed rows backs invariant checks done in the engine, so a racing
// second departure surfaces as ErrAlreadyTransferred here.
func (s *Store) Insert(ctx context.Context, record models.TransferRecord) error {
	_, err := s.Bun.NewInsert().Model(&record).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("ticket %s already left holder %s: %w", record.TicketID, record.FromHolderID, models.ErrAlreadyTransferred)
	}
	return err
}

// Cancel voids a departure that could not take effect on the ticket row. The
// row stays behind for audit; a cancelled record no longer counts as the
// ticket having left the holder.
func (s *Store) Cancel(ctx context.Context, id string) error {
	_, err := s.Bun.NewUpdate().
		Model((*models.TransferRecord)(nil)).
		Set("status = ?", models.TransferCancelled).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.TransferRecord, error) {
	var record models.TransferRecord
	err := s.Bun.NewSelect().
		Model(&record).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transfer %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByPaymentRef looks up the ledger row created for a fee payment
// transaction. Used for the idempotency short-circuit at transfer time.
func (s *Store) GetByPaymentRef(ctx context.Context, paymentRef string) (*models.TransferRecord, error) {
	var record models.TransferRecord
	err := s.Bun.NewSelect().
		Model(&record).
		Where("payment_ref = ?", paymentRef).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// HasCompletedFrom reports whether the ticket already left the given holder.
func (s *Store) HasCompletedFrom(ctx context.Context, ticketID, fromHolderID string) (bool, error) {
	count, err := s.Bun.NewSelect().
		Model((*models.TransferRecord)(nil)).
		Where("ticket_id = ?", ticketID).
		Where("from_holder_id = ?", fromHolderID).
		Where("status = ?", models.TransferCompleted).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AwaitingRecipient reports whether a completed departure of the ticket is
// still waiting for the given phone to register an account.
func (s *Store) AwaitingRecipient(ctx context.Context, ticketID, phone string) (bool, error) {
	count, err := s.Bun.NewSelect().
		Model((*models.TransferRecord)(nil)).
		Where("ticket_id = ?", ticketID).
		Where("to_phone = ?", phone).
		Where("status = ?", models.TransferCompleted).
		Where("to_holder_id IS NULL OR to_holder_id = ''").
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CompletedFromHolder returns the ids of all tickets that left the account,
// for ledger-aware exclusion in the ownership views.
func (s *Store) CompletedFromHolder(ctx context.Context, accountID string) (map[string]bool, error) {
	var ticketIDs []string
	err := s.Bun.NewSelect().
		Model((*models.TransferRecord)(nil)).
		Column("ticket_id").
		Where("from_holder_id = ?", accountID).
		Where("status = ?", models.TransferCompleted).
		Scan(ctx, &ticketIDs)
	if err != nil {
		return nil, err
	}

	left := make(map[string]bool, len(ticketIDs))
	for _, id := range ticketIDs {
		left[id] = true
	}
	return left, nil
}

// ResolveRecipient fills in to_holder_id on every record still waiting for
// the given phone to register. Safe to run repeatedly.
func (s *Store) ResolveRecipient(ctx context.Context, phone, accountID string) (int64, error) {
	res, err := s.Bun.NewUpdate().
		Model((*models.TransferRecord)(nil)).
		Set("to_holder_id = ?", accountID).
		Where("to_phone = ?", phone).
		Where("to_holder_id IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
