package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ticket-runners/internal/models"

	"github.com/uptrace/bun"
)

// Directory reads the customer and event aggregates owned elsewhere. No
// writes happen through this package.
type Directory struct {
	Bun *bun.DB
}

// LookupByPhone returns the active account registered with the phone, or nil
// when no such account exists.
func (d *Directory) LookupByPhone(ctx context.Context, phone string) (*models.Account, error) {
	var account models.Account
	err := d.Bun.NewSelect().
		Model(&account).
		Where("phone = ?", phone).
		Where("active = ?", true).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (d *Directory) AccountByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := d.Bun.NewSelect().
		Model(&account).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CurrentPhone returns the phone presently linked to an account.
func (d *Directory) CurrentPhone(ctx context.Context, accountID string) (string, error) {
	account, err := d.AccountByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	return account.Phone, nil
}

func (d *Directory) EventByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}
