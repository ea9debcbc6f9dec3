package views

import (
	"context"
	"sort"
	"time"

	"ticket-runners/internal/models"

	"github.com/shopspring/decimal"
)

type TicketStore interface {
	GetTicketsByHolder(ctx context.Context, accountID string) ([]models.Ticket, error)
	GetTicketsByPayer(ctx context.Context, accountID string) ([]models.Ticket, error)
	GetTicketsByPendingPhone(ctx context.Context, phone string) ([]models.Ticket, error)
}

type Ledger interface {
	CompletedFromHolder(ctx context.Context, accountID string) (map[string]bool, error)
}

// Builder assembles the ownership views. Tickets that left the account per
// the transfer ledger are filtered out even when the ticket row still points
// at the old holder.
type Builder struct {
	Tickets  TicketStore
	Ledger   Ledger
	PageSize int
}

func NewBuilder(tickets TicketStore, ledger Ledger, pageSize int) *Builder {
	return &Builder{Tickets: tickets, Ledger: ledger, PageSize: pageSize}
}

// ListMyTickets returns every ticket the caller can use or claim: held
// tickets plus tickets earmarked for the caller's phone, minus tickets the
// caller already transferred away.
func (b *Builder) ListMyTickets(ctx context.Context, caller models.CallerContext) ([]models.Ticket, error) {
	held, err := b.Tickets.GetTicketsByHolder(ctx, caller.AccountID)
	if err != nil {
		return nil, err
	}
	earmarked, err := b.Tickets.GetTicketsByPendingPhone(ctx, caller.Phone)
	if err != nil {
		return nil, err
	}
	left, err := b.Ledger.CompletedFromHolder(ctx, caller.AccountID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(held)+len(earmarked))
	out := make([]models.Ticket, 0, len(held)+len(earmarked))
	for _, t := range held {
		if left[t.ID] || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	for _, t := range earmarked {
		if left[t.ID] || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].PurchasedAt.After(out[j].PurchasedAt)
	})
	return out, nil
}

// ListMyBookings groups the caller's paid-for tickets by event and purchase
// day. A group containing any refunded ticket reports refunded.
func (b *Builder) ListMyBookings(ctx context.Context, caller models.CallerContext, page int) ([]models.BookingGroup, error) {
	tickets, err := b.Tickets.GetTicketsByPayer(ctx, caller.AccountID)
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		eventID string
		day     time.Time
	}
	groups := make(map[groupKey]*models.BookingGroup)
	var order []groupKey
	for _, t := range tickets {
		key := groupKey{eventID: t.EventID, day: t.PurchasedAt.Truncate(24 * time.Hour)}
		g, ok := groups[key]
		if !ok {
			g = &models.BookingGroup{
				EventID:     t.EventID,
				PurchaseDay: key.day,
				Amount:      decimal.Zero,
				Status:      models.BookingConfirmed,
			}
			groups[key] = g
			order = append(order, key)
		}
		g.Quantity++
		g.Amount = g.Amount.Add(t.Price)
		g.Tickets = append(g.Tickets, t)
		if t.Status == models.TicketRefunded {
			g.Status = models.BookingRefunded
		}
	}

	out := make([]models.BookingGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchaseDay.Equal(out[j].PurchaseDay) {
			return out[i].PurchaseDay.After(out[j].PurchaseDay)
		}
		return out[i].EventID < out[j].EventID
	})

	return paginate(out, page, b.PageSize), nil
}

// ListTicketsBoughtForOthers returns the tickets the caller paid for on
// behalf of someone else and that are still waiting to be claimed. A ticket
// drops off the list the moment the recipient adopts it.
func (b *Builder) ListTicketsBoughtForOthers(ctx context.Context, caller models.CallerContext, page int) ([]models.PurchasedForOther, error) {
	tickets, err := b.Tickets.GetTicketsByPayer(ctx, caller.AccountID)
	if err != nil {
		return nil, err
	}
	left, err := b.Ledger.CompletedFromHolder(ctx, caller.AccountID)
	if err != nil {
		return nil, err
	}

	var out []models.PurchasedForOther
	for _, t := range tickets {
		if left[t.ID] {
			continue
		}
		state := t.OwnershipState()
		if state.Kind != models.OwnershipPendingAssignment {
			continue
		}
		if state.Contact.Phone == caller.Phone {
			// Earmarked for the payer themselves, shown under my-tickets.
			continue
		}
		out = append(out, models.PurchasedForOther{Ticket: t, Contact: *state.Contact})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Ticket.PurchasedAt.After(out[j].Ticket.PurchasedAt)
	})
	return paginate(out, page, b.PageSize), nil
}

func paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
