package claim

import (
	"context"
	"fmt"

	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"
)

type TicketStore interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	AdoptTicket(ctx context.Context, ticketID, accountID string) (*models.Ticket, error)
}

type Tokens interface {
	ActiveByPhone(ctx context.Context, phone string) ([]models.RegistrationToken, error)
	MarkUsed(ctx context.Context, id string) error
}

type Ledger interface {
	ResolveRecipient(ctx context.Context, phone, accountID string) (int64, error)
	AwaitingRecipient(ctx context.Context, ticketID, phone string) (bool, error)
}

type Publisher interface {
	PublishOwnershipChange(ctx context.Context, ticket models.Ticket, reason string) error
}

// Resolver handles the user-initiated claim of a single assigned ticket. It
// rides on the same atomic ticket adoption as registration reconciliation, so
// a claim and a background reconcile on the same ticket cannot both win.
type Resolver struct {
	Tickets   TicketStore
	Tokens    Tokens
	Ledger    Ledger
	Publisher Publisher
	Logger    *logger.Logger
}

func NewResolver(tickets TicketStore, tokens Tokens, ledger Ledger, publisher Publisher, log *logger.Logger) *Resolver {
	return &Resolver{
		Tickets:   tickets,
		Tokens:    tokens,
		Ledger:    ledger,
		Publisher: publisher,
		Logger:    log,
	}
}

// ClaimTicket pulls one assigned ticket into the caller's account.
func (r *Resolver) ClaimTicket(ctx context.Context, caller models.CallerContext, ticketID string) (*models.Ticket, error) {
	ticket, err := r.Tickets.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if ticket.HolderID == caller.AccountID && ticket.PendingContact() == nil {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, models.ErrAlreadyClaimed)
	}

	contact := ticket.PendingContact()
	if contact == nil || contact.Phone != caller.Phone {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, models.ErrNotAssignedToYou)
	}

	if ticket.Status != models.TicketValid {
		return nil, fmt.Errorf("ticket %s has status %s: %w", ticketID, ticket.Status, models.ErrInvalidState)
	}

	if ticket.HolderID != "" && ticket.HolderID != caller.AccountID && ticket.HolderID != ticket.PayerID {
		// Linked to another account already; the audit contact alone does
		// not make the ticket claimable. A pending transfer departure does.
		awaiting, err := r.Ledger.AwaitingRecipient(ctx, ticketID, caller.Phone)
		if err != nil {
			return nil, fmt.Errorf("failed to check transfer history for ticket %s: %w", ticketID, err)
		}
		if !awaiting {
			return nil, fmt.Errorf("ticket %s is linked to another account: %w", ticketID, models.ErrAlreadyClaimed)
		}
	}

	claimed, err := r.Tickets.AdoptTicket(ctx, ticketID, caller.AccountID)
	if err != nil {
		return nil, err
	}
	r.Logger.LogTicket("CLAIM", ticketID, fmt.Sprintf("claimed by account %s", caller.AccountID))

	tokens, err := r.Tokens.ActiveByPhone(ctx, caller.Phone)
	if err != nil {
		r.Logger.Error("CLAIM", fmt.Sprintf("Failed to load tokens for %s: %v", caller.Phone, err))
	} else {
		for _, token := range tokens {
			if token.TicketID != ticketID {
				continue
			}
			if err := r.Tokens.MarkUsed(ctx, token.ID); err != nil {
				r.Logger.Error("CLAIM", fmt.Sprintf("Failed to consume token %s: %v", token.ID, err))
			}
		}
	}

	if _, err := r.Ledger.ResolveRecipient(ctx, caller.Phone, caller.AccountID); err != nil {
		r.Logger.Error("CLAIM", fmt.Sprintf("Failed to resolve transfer recipients for %s: %v", caller.Phone, err))
	}

	if err := r.Publisher.PublishOwnershipChange(ctx, *claimed, "claim"); err != nil {
		r.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish ownership change for ticket %s: %v", ticketID, err))
	}

	return claimed, nil
}
