package registration

import (
	"context"
	"fmt"

	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"
)

type TicketStore interface {
	GetTicketsByPendingPhone(ctx context.Context, phone string) ([]models.Ticket, error)
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

type Drafts interface {
	TakeDraftProfile(ctx context.Context, phone string) (*models.DraftProfile, error)
}

type Publisher interface {
	PublishOwnershipChange(ctx context.Context, ticket models.Ticket, reason string) error
}

// Resolver links tickets and transfer records earmarked for a phone number to
// the account that just registered or logged in with it. The whole operation
// is idempotent: a second run finds nothing left to link.
type Resolver struct {
	Tickets   TicketStore
	Tokens    Tokens
	Ledger    Ledger
	Drafts    Drafts
	Publisher Publisher
	Logger    *logger.Logger
}

func NewResolver(tickets TicketStore, tokens Tokens, ledger Ledger, drafts Drafts, publisher Publisher, log *logger.Logger) *Resolver {
	return &Resolver{
		Tickets:   tickets,
		Tokens:    tokens,
		Ledger:    ledger,
		Drafts:    drafts,
		Publisher: publisher,
		Logger:    log,
	}
}

// ReconcileAccountTickets pulls every ticket still pointed at the account's
// phone into the account, consumes the matching registration tokens, and
// resolves any transfer records waiting on the phone.
func (r *Resolver) ReconcileAccountTickets(ctx context.Context, account models.Account) ([]models.Ticket, error) {
	pending, err := r.Tickets.GetTicketsByPendingPhone(ctx, account.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets pending for phone: %w", err)
	}

	var adopted []models.Ticket
	for _, ticket := range pending {
		if ticket.Status != models.TicketValid {
			continue
		}

		if ticket.HolderID != "" && ticket.HolderID != ticket.PayerID {
			// The holder was linked at assignment time and the contact kept
			// for audit, or a transfer left the sender as placeholder holder.
			// Only the latter may be pulled over by a fresh registration; a
			// recycled phone must not steal a linked ticket.
			awaiting, err := r.Ledger.AwaitingRecipient(ctx, ticket.ID, account.Phone)
			if err != nil {
				r.Logger.Error("RECONCILE", fmt.Sprintf("Failed to check transfer history for ticket %s: %v", ticket.ID, err))
				continue
			}
			if !awaiting {
				continue
			}
		}

		linked, err := r.Tickets.AdoptTicket(ctx, ticket.ID, account.ID)
		if err != nil {
			r.Logger.Error("RECONCILE", fmt.Sprintf("Failed to link ticket %s to account %s: %v", ticket.ID, account.ID, err))
			continue
		}
		adopted = append(adopted, *linked)
		r.Logger.LogTicket("LINK", ticket.ID, fmt.Sprintf("linked to account %s via phone %s", account.ID, account.Phone))
	}

	tokens, err := r.Tokens.ActiveByPhone(ctx, account.Phone)
	if err != nil {
		return adopted, fmt.Errorf("failed to load registration tokens: %w", err)
	}
	for _, token := range tokens {
		if err := r.Tokens.MarkUsed(ctx, token.ID); err != nil {
			r.Logger.Error("RECONCILE", fmt.Sprintf("Failed to consume token %s: %v", token.ID, err))
		}
	}

	resolved, err := r.Ledger.ResolveRecipient(ctx, account.Phone, account.ID)
	if err != nil {
		return adopted, fmt.Errorf("failed to resolve transfer recipients: %w", err)
	}
	if resolved > 0 {
		r.Logger.Info("RECONCILE", fmt.Sprintf("Resolved %d transfer record(s) to account %s", resolved, account.ID))
	}

	if draft, err := r.Drafts.TakeDraftProfile(ctx, account.Phone); err != nil {
		r.Logger.Warn("RECONCILE", fmt.Sprintf("Draft profile lookup failed for %s: %v", account.Phone, err))
	} else if draft != nil {
		r.Logger.Info("RECONCILE", fmt.Sprintf("Consumed draft profile for %s (%s)", account.Phone, draft.Name))
	}

	for _, ticket := range adopted {
		if err := r.Publisher.PublishOwnershipChange(ctx, ticket, "registration_link"); err != nil {
			r.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish ownership change for ticket %s: %v", ticket.ID, err))
		}
	}

	return adopted, nil
}
