package assignment

import (
	"context"
	"fmt"
	"time"

	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"

	"github.com/google/uuid"
)

type TicketStore interface {
	CreateTickets(ctx context.Context, tickets []models.Ticket) error
	GetTicketsByBookingRef(ctx context.Context, bookingRef string) ([]models.Ticket, error)
}

type TokenMinter interface {
	Mint(ctx context.Context, ticketID, phone string) (*models.RegistrationToken, error)
}

type AccountDirectory interface {
	LookupByPhone(ctx context.Context, phone string) (*models.Account, error)
}

type EventCatalog interface {
	EventByID(ctx context.Context, id string) (*models.Event, error)
}

type DraftWriter interface {
	StoreDraftProfile(ctx context.Context, phone string, profile models.DraftProfile) error
}

type Notifier interface {
	TicketAssigned(ctx context.Context, contact models.Contact, ticket models.Ticket, token string)
	PublishOwnershipChange(ctx context.Context, ticket models.Ticket, reason string) error
}

// Service splits a completed booking payment into ticket rows. It is the only
// writer of tickets at creation time.
type Service struct {
	Tickets   TicketStore
	Tokens    TokenMinter
	Directory AccountDirectory
	Catalog   EventCatalog
	Drafts    DraftWriter
	Notifier  Notifier
	Logger    *logger.Logger
}

func NewService(tickets TicketStore, tokens TokenMinter, directory AccountDirectory, catalog EventCatalog, drafts DraftWriter, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		Tickets:   tickets,
		Tokens:    tokens,
		Directory: directory,
		Catalog:   catalog,
		Drafts:    drafts,
		Notifier:  notifier,
		Logger:    log,
	}
}

// CreateTicketsFromBooking turns a completed booking payment into one ticket
// per manifest slot. Idempotent on the payment transaction id: a redelivered
// outcome returns the already-created set untouched.
func (s *Service) CreateTicketsFromBooking(ctx context.Context, outcome models.PaymentOutcome) ([]models.Ticket, error) {
	if outcome.Kind != models.PaymentBooking || outcome.Booking == nil {
		return nil, fmt.Errorf("outcome %s is not a booking payment: %w", outcome.TransactionID, models.ErrInvalidState)
	}

	existing, err := s.Tickets.GetTicketsByBookingRef(ctx, outcome.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check booking ref %s: %w", outcome.TransactionID, err)
	}
	if len(existing) > 0 {
		s.Logger.Info("BOOKING", fmt.Sprintf("Duplicate payment outcome %s, returning %d existing ticket(s)", outcome.TransactionID, len(existing)))
		return existing, nil
	}

	event, err := s.Catalog.EventByID(ctx, outcome.Booking.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event for booking %s: %w", outcome.TransactionID, err)
	}

	for i, slot := range outcome.Booking.Slots {
		if slot.Category == "" || !slot.Price.IsPositive() {
			return nil, fmt.Errorf("slot %d has unresolvable category or price: %w", i, models.ErrInvalidSlotData)
		}
		if !slot.IsOwner && slot.Phone == "" {
			return nil, fmt.Errorf("slot %d is assigned but has no phone: %w", i, models.ErrInvalidSlotData)
		}
	}

	now := time.Now()
	tickets := make([]models.Ticket, 0, len(outcome.Booking.Slots))
	type mintJob struct {
		ticketIdx int
		contact   models.Contact
	}
	var mintJobs []mintJob
	type assignedNote struct {
		ticketIdx int
		contact   models.Contact
	}
	var notes []assignedNote

	for _, slot := range outcome.Booking.Slots {
		ticket := models.Ticket{
			ID:          uuid.NewString(),
			EventID:     event.ID,
			Category:    slot.Category,
			Price:       slot.Price,
			Status:      models.TicketValid,
			PayerID:     outcome.PayerID,
			BookingRef:  outcome.TransactionID,
			PurchasedAt: now,
		}

		if slot.IsOwner {
			ticket.HolderID = outcome.PayerID
			ticket.ChildFlag = slot.HasChild
			ticket.ChildAge = slot.ChildAge
			tickets = append(tickets, ticket)
			continue
		}

		contact := models.Contact{Name: slot.Name, Phone: slot.Phone, Email: slot.Email}
		ticket.SetPendingContact(contact)

		account, err := s.Directory.LookupByPhone(ctx, slot.Phone)
		if err != nil {
			return nil, fmt.Errorf("failed to look up phone %s: %w", slot.Phone, err)
		}

		if account != nil {
			// The phone already has an account; the contact stays on the
			// row for audit but the ticket is theirs immediately.
			ticket.HolderID = account.ID
		} else {
			ticket.HolderID = outcome.PayerID
			mintJobs = append(mintJobs, mintJob{ticketIdx: len(tickets), contact: contact})
		}
		notes = append(notes, assignedNote{ticketIdx: len(tickets), contact: contact})
		tickets = append(tickets, ticket)
	}

	if err := s.Tickets.CreateTickets(ctx, tickets); err != nil {
		return nil, fmt.Errorf("failed to create tickets for booking %s: %w", outcome.TransactionID, err)
	}
	s.Logger.Info("BOOKING", fmt.Sprintf("Created %d ticket(s) for booking %s", len(tickets), outcome.TransactionID))

	tokens := make(map[int]string)
	for _, job := range mintJobs {
		ticket := tickets[job.ticketIdx]
		token, err := s.Tokens.Mint(ctx, ticket.ID, job.contact.Phone)
		if err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to mint registration token for ticket %s: %v", ticket.ID, err))
			continue
		}
		tokens[job.ticketIdx] = token.Token

		draft := models.DraftProfile{Name: job.contact.Name, Email: job.contact.Email}
		if err := s.Drafts.StoreDraftProfile(ctx, job.contact.Phone, draft); err != nil {
			s.Logger.Warn("BOOKING", fmt.Sprintf("Failed to cache draft profile for %s: %v", job.contact.Phone, err))
		}
	}

	for _, note := range notes {
		s.Notifier.TicketAssigned(ctx, note.contact, tickets[note.ticketIdx], tokens[note.ticketIdx])
	}
	for _, ticket := range tickets {
		if err := s.Notifier.PublishOwnershipChange(ctx, ticket, "booking"); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish ownership change for ticket %s: %v", ticket.ID, err))
		}
	}

	return tickets, nil
}
