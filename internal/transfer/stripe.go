package transfer

import (
	"context"
	"errors"
	"fmt"

	"ticket-runners/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeFeeCharger charges transfer fees against the sender's saved payment
// method through Stripe.
type StripeFeeCharger struct {
	client   *client.API
	currency string
	log      *logger.Logger
}

func NewStripeFeeCharger(secretKey, currency string, log *logger.Logger) (*StripeFeeCharger, error) {
	if secretKey == "" {
		log.Error("STRIPE", "Stripe secret key not configured")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeFeeCharger{
		client:   sc,
		currency: currency,
		log:      log,
	}, nil
}

// ChargeFee creates and confirms a payment intent for the transfer fee. The
// sender's account id is carried in metadata so the charge can be traced back.
func (s *StripeFeeCharger) ChargeFee(ctx context.Context, accountID string, amount decimal.Decimal, ticketID string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("invalid fee amount: %s", amount)
	}

	// Stripe bills in the smallest currency unit.
	amountInCents := amount.Mul(decimal.NewFromInt(100)).IntPart()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(s.currency),
		Customer: stripe.String(accountID),
		Metadata: map[string]string{
			"ticket_id": ticketID,
			"kind":      "transfer_fee",
		},
		Description:        stripe.String(fmt.Sprintf("Transfer fee for ticket %s", ticketID)),
		ConfirmationMethod: stripe.String("automatic"),
		Confirm:            stripe.Bool(true),
		OffSession:         stripe.Bool(true),
	}

	s.log.Info("STRIPE", fmt.Sprintf("Charging transfer fee %s %s for ticket %s (account: %s)", amount, s.currency, ticketID, accountID))
	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Fee charge failed for ticket %s: %v", ticketID, err))
		return err
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		s.log.Info("STRIPE", fmt.Sprintf("Fee charge succeeded for ticket %s (intent: %s)", ticketID, pi.ID))
		return nil
	default:
		s.log.Error("STRIPE", fmt.Sprintf("Fee charge for ticket %s ended with status %s (intent: %s)", ticketID, pi.Status, pi.ID))
		return fmt.Errorf("payment intent %s has status %s", pi.ID, pi.Status)
	}
}
