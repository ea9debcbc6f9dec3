package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticket-runners/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- TICKETS ----------------

// CreateTickets inserts the full ticket set of one booking in a single
// statement.
func (d *DB) CreateTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&tickets).Exec(ctx)
	return err
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketsByBookingRef returns every ticket created under one payment
// transaction id. Used for the idempotency short-circuit at booking time.
func (d *DB) GetTicketsByBookingRef(ctx context.Context, bookingRef string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("booking_ref = ?", bookingRef).
		Order("purchased_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketsByHolder(ctx context.Context, accountID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("holder_id = ?", accountID).
		Order("purchased_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketsByPayer(ctx context.Context, accountID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("payer_id = ?", accountID).
		Order("purchased_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketsByPendingPhone(ctx context.Context, phone string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("pending_phone = ?", phone).
		Order("purchased_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// UpdateTicketCAS writes the ticket back only if its version is unchanged
// since the read, bumping the version on success. Zero affected rows means a
// concurrent writer got there first.
func (d *DB) UpdateTicketCAS(ctx context.Context, ticket models.Ticket) error {
	readVersion := ticket.Version
	ticket.Version = readVersion + 1

	res, err := d.Bun.NewUpdate().
		Model(&ticket).
		Column("status", "holder_id", "pending_name", "pending_phone", "pending_email",
			"checked_in_at", "child_flag", "child_age", "version").
		Where("id = ?", ticket.ID).
		Where("version = ?", readVersion).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("ticket %s: %w", ticket.ID, models.ErrConcurrentModification)
	}
	return nil
}

// AdoptTicket is the shared atomic update behind both the explicit claim and
// the automatic registration reconciliation: it points the ticket at the
// account and clears the earmarked contact. One internal retry absorbs a
// single racing writer.
func (d *DB) AdoptTicket(ctx context.Context, ticketID, accountID string) (*models.Ticket, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ticket, err := d.GetTicketByID(ctx, ticketID)
		if err != nil {
			return nil, err
		}

		if ticket.HolderID == accountID && ticket.PendingContact() == nil {
			return ticket, nil
		}

		ticket.HolderID = accountID
		ticket.ClearPendingContact()

		err = d.UpdateTicketCAS(ctx, *ticket)
		if err == nil {
			ticket.Version++
			return ticket, nil
		}
		if !errors.Is(err, models.ErrConcurrentModification) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("ticket %s: %w", ticketID, models.ErrConcurrentModification)
}

// RecordCheckIn flips a valid ticket to used and stamps the gate time.
func (d *DB) RecordCheckIn(ctx context.Context, ticketID string, at time.Time) error {
	ticket, err := d.GetTicketByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status != models.TicketValid {
		return fmt.Errorf("ticket %s has status %s: %w", ticketID, ticket.Status, models.ErrInvalidState)
	}

	ticket.Status = models.TicketUsed
	ticket.CheckedInAt = at
	return d.UpdateTicketCAS(ctx, *ticket)
}
