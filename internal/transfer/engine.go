package transfer

import (
	"context"
	"fmt"
	"time"

	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TicketStore interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	UpdateTicketCAS(ctx context.Context, ticket models.Ticket) error
}

type Ledger interface {
	Insert(ctx context.Context, record models.TransferRecord) error
	Cancel(ctx context.Context, id string) error
	GetByPaymentRef(ctx context.Context, paymentRef string) (*models.TransferRecord, error)
	HasCompletedFrom(ctx context.Context, ticketID, fromHolderID string) (bool, error)
}

type AccountDirectory interface {
	LookupByPhone(ctx context.Context, phone string) (*models.Account, error)
	CurrentPhone(ctx context.Context, accountID string) (string, error)
}

type EventCatalog interface {
	EventByID(ctx context.Context, id string) (*models.Event, error)
}

type FeeCharger interface {
	ChargeFee(ctx context.Context, accountID string, amount decimal.Decimal, ticketID string) error
}

type TokenMinter interface {
	Mint(ctx context.Context, ticketID, phone string) (*models.RegistrationToken, error)
}

type Notifier interface {
	TransferReceived(ctx context.Context, contact models.Contact, ticket models.Ticket, token string)
	PublishOwnershipChange(ctx context.Context, ticket models.Ticket, reason string) error
}

// Engine moves a ticket between holders. It is the only writer of the
// transfer ledger, and the ledger row always commits before the ticket row
// changes, so a reader can never see a transferred ticket still owned by the
// sender.
type Engine struct {
	Tickets   TicketStore
	Ledger    Ledger
	Directory AccountDirectory
	Catalog   EventCatalog
	Fees      FeeCharger
	Tokens    TokenMinter
	Notifier  Notifier
	Logger    *logger.Logger
}

func NewEngine(tickets TicketStore, ledger Ledger, directory AccountDirectory, catalog EventCatalog, fees FeeCharger, tokens TokenMinter, notifier Notifier, log *logger.Logger) *Engine {
	return &Engine{
		Tickets:   tickets,
		Ledger:    ledger,
		Directory: directory,
		Catalog:   catalog,
		Fees:      fees,
		Tokens:    tokens,
		Notifier:  notifier,
		Logger:    log,
	}
}

// ComputeFee applies the event's fee policy to a ticket price.
func ComputeFee(event *models.Event, price decimal.Decimal) decimal.Decimal {
	switch event.TransferFeeType {
	case models.FeePercentage:
		return price.Mul(event.TransferFeeValue).Div(decimal.NewFromInt(100))
	case models.FeeFlat:
		return event.TransferFeeValue
	default:
		return decimal.Zero
	}
}

// ProcessTransferPayment executes a paid transfer once the fee payment
// completed. Idempotent on the payment transaction id.
func (e *Engine) ProcessTransferPayment(ctx context.Context, outcome models.PaymentOutcome) (*models.TransferRecord, error) {
	if outcome.Kind != models.PaymentTransfer || outcome.Transfer == nil {
		return nil, fmt.Errorf("outcome %s is not a transfer payment: %w", outcome.TransactionID, models.ErrInvalidState)
	}
	intent := outcome.Transfer

	if existing, err := e.Ledger.GetByPaymentRef(ctx, outcome.TransactionID); err != nil {
		return nil, fmt.Errorf("failed to check payment ref %s: %w", outcome.TransactionID, err)
	} else if existing != nil {
		e.Logger.LogTransfer("DUPLICATE", existing.ID, fmt.Sprintf("payment outcome %s already processed", outcome.TransactionID))
		return existing, nil
	}

	ticket, err := e.Tickets.GetTicketByID(ctx, intent.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.TicketValid {
		return nil, fmt.Errorf("ticket %s has status %s: %w", ticket.ID, ticket.Status, models.ErrInvalidState)
	}
	if ticket.HolderID != intent.FromHolderID {
		return nil, fmt.Errorf("account %s does not hold ticket %s: %w", intent.FromHolderID, ticket.ID, models.ErrInvalidState)
	}

	event, err := e.Catalog.EventByID(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	if !event.TransferEnabled {
		return nil, fmt.Errorf("event %s: %w", event.ID, models.ErrTransferDisabled)
	}

	senderPhone, err := e.Directory.CurrentPhone(ctx, intent.FromHolderID)
	if err != nil {
		return nil, err
	}
	if senderPhone == intent.RecipientPhone {
		return nil, fmt.Errorf("ticket %s: %w", ticket.ID, models.ErrSelfTransfer)
	}

	transferred, err := e.Ledger.HasCompletedFrom(ctx, ticket.ID, intent.FromHolderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check transfer history for ticket %s: %w", ticket.ID, err)
	}
	if transferred {
		return nil, fmt.Errorf("ticket %s: %w", ticket.ID, models.ErrAlreadyTransferred)
	}

	fee := ComputeFee(event, ticket.Price)
	if fee.IsPositive() {
		if err := e.Fees.ChargeFee(ctx, intent.FromHolderID, fee, ticket.ID); err != nil {
			return nil, fmt.Errorf("fee %s for ticket %s: %v: %w", fee, ticket.ID, err, models.ErrFeeChargeFailed)
		}
	}

	recipient, err := e.Directory.LookupByPhone(ctx, intent.RecipientPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up recipient phone: %w", err)
	}

	record := models.TransferRecord{
		ID:           uuid.NewString(),
		TicketID:     ticket.ID,
		FromHolderID: intent.FromHolderID,
		ToPhone:      intent.RecipientPhone,
		ToName:       intent.RecipientName,
		Status:       models.TransferCompleted,
		PaymentRef:   outcome.TransactionID,
		Fee:          fee,
		CreatedAt:    time.Now(),
	}
	if recipient != nil {
		record.ToHolderID = recipient.ID
	}

	// The ledger row is the authoritative "ticket left the sender" signal
	// and must be durable before the ticket row changes.
	if err := e.Ledger.Insert(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record transfer for ticket %s: %w", ticket.ID, err)
	}
	e.Logger.LogTransfer("RECORD", record.ID, fmt.Sprintf("ticket %s from %s to %s", ticket.ID, intent.FromHolderID, intent.RecipientPhone))

	contact := models.Contact{Name: intent.RecipientName, Phone: intent.RecipientPhone}
	if recipient != nil {
		ticket.HolderID = recipient.ID
		ticket.ClearPendingContact()
	} else {
		// Holder keeps pointing at the sender until the phone registers;
		// views rely on the ledger, not this field.
		ticket.SetPendingContact(contact)
	}

	if err := e.Tickets.UpdateTicketCAS(ctx, *ticket); err != nil {
		// The departure did not take effect; void the ledger row so the
		// ticket is not stranded between a recorded departure and an
		// unchanged holder.
		if cancelErr := e.Ledger.Cancel(ctx, record.ID); cancelErr != nil {
			e.Logger.Error("TRANSFER", fmt.Sprintf("Failed to cancel transfer record %s after ticket update failure: %v", record.ID, cancelErr))
		} else {
			e.Logger.LogTransfer("CANCEL", record.ID, fmt.Sprintf("ticket %s update lost, departure voided", ticket.ID))
		}
		return nil, err
	}

	var token string
	if recipient == nil {
		minted, err := e.Tokens.Mint(ctx, ticket.ID, intent.RecipientPhone)
		if err != nil {
			e.Logger.Error("TRANSFER", fmt.Sprintf("Failed to mint registration token for ticket %s: %v", ticket.ID, err))
		} else {
			token = minted.Token
		}
	}

	e.Notifier.TransferReceived(ctx, contact, *ticket, token)
	if err := e.Notifier.PublishOwnershipChange(ctx, *ticket, "transfer"); err != nil {
		e.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish ownership change for ticket %s: %v", ticket.ID, err))
	}

	return &record, nil
}
