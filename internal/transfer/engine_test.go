package transfer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"
	"ticket-runners/internal/transfer"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTicketStore struct {
	mock.Mock
}

func (m *MockTicketStore) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketStore) UpdateTicketCAS(ctx context.Context, ticket models.Ticket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Insert(ctx context.Context, record models.TransferRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockLedger) Cancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLedger) GetByPaymentRef(ctx context.Context, paymentRef string) (*models.TransferRecord, error) {
	args := m.Called(ctx, paymentRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TransferRecord), args.Error(1)
}

func (m *MockLedger) HasCompletedFrom(ctx context.Context, ticketID, fromHolderID string) (bool, error) {
	args := m.Called(ctx, ticketID, fromHolderID)
	return args.Bool(0), args.Error(1)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) LookupByPhone(ctx context.Context, phone string) (*models.Account, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockDirectory) CurrentPhone(ctx context.Context, accountID string) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) EventByID(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

type MockFeeCharger struct {
	mock.Mock
}

func (m *MockFeeCharger) ChargeFee(ctx context.Context, accountID string, amount decimal.Decimal, ticketID string) error {
	args := m.Called(ctx, accountID, amount, ticketID)
	return args.Error(0)
}

type MockTokenMinter struct {
	mock.Mock
}

func (m *MockTokenMinter) Mint(ctx context.Context, ticketID, phone string) (*models.RegistrationToken, error) {
	args := m.Called(ctx, ticketID, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RegistrationToken), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TransferReceived(ctx context.Context, contact models.Contact, ticket models.Ticket, token string) {
	m.Called(ctx, contact, ticket, token)
}

func (m *MockNotifier) PublishOwnershipChange(ctx context.Context, ticket models.Ticket, reason string) error {
	args := m.Called(ctx, ticket, reason)
	return args.Error(0)
}

type engineMocks struct {
	tickets  *MockTicketStore
	ledger   *MockLedger
	dir      *MockDirectory
	catalog  *MockCatalog
	fees     *MockFeeCharger
	tokens   *MockTokenMinter
	notifier *MockNotifier
}

func newEngine() (*transfer.Engine, *engineMocks) {
	m := &engineMocks{
		tickets:  new(MockTicketStore),
		ledger:   new(MockLedger),
		dir:      new(MockDirectory),
		catalog:  new(MockCatalog),
		fees:     new(MockFeeCharger),
		tokens:   new(MockTokenMinter),
		notifier: new(MockNotifier),
	}
	engine := transfer.NewEngine(m.tickets, m.ledger, m.dir, m.catalog, m.fees, m.tokens, m.notifier, logger.NewLogger())
	return engine, m
}

func heldTicket() *models.Ticket {
	return &models.Ticket{
		ID:          "t-1",
		EventID:     "event-1",
		Category:    "Regular",
		Price:       decimal.NewFromInt(200),
		Status:      models.TicketValid,
		HolderID:    "acct-sender",
		PayerID:     "acct-sender",
		BookingRef:  "txn-0",
		PurchasedAt: time.Now(),
	}
}

func transferOutcome(txn string) models.PaymentOutcome {
	return models.PaymentOutcome{
		TransactionID: txn,
		PayerID:       "acct-sender",
		Amount:        decimal.NewFromInt(20),
		Kind:          models.PaymentTransfer,
		Transfer: &models.TransferPayload{
			TicketID:       "t-1",
			FromHolderID:   "acct-sender",
			RecipientPhone: "+201000000009",
			RecipientName:  "Recipient",
		},
		ReceivedAt: time.Now(),
	}
}

func TestComputeFee(t *testing.T) {
	percentage := &models.Event{TransferFeeType: models.FeePercentage, TransferFeeValue: decimal.NewFromInt(10)}
	fee := transfer.ComputeFee(percentage, decimal.NewFromInt(200))
	assert.True(t, fee.Equal(decimal.NewFromInt(20)), "10%% of 200 should be 20, got %s", fee)

	flat := &models.Event{TransferFeeType: models.FeeFlat, TransferFeeValue: decimal.NewFromInt(50)}
	fee = transfer.ComputeFee(flat, decimal.NewFromInt(200))
	assert.True(t, fee.Equal(decimal.NewFromInt(50)))

	// Same inputs always produce the same fee.
	again := transfer.ComputeFee(percentage, decimal.NewFromInt(200))
	assert.True(t, again.Equal(decimal.NewFromInt(20)))

	none := &models.Event{}
	assert.True(t, transfer.ComputeFee(none, decimal.NewFromInt(200)).IsZero())
}

func TestProcessTransferToUnregisteredPhone(t *testing.T) {
	engine, m := newEngine()
	outcome := transferOutcome("txn-1")

	m.ledger.On("GetByPaymentRef", mock.Anything, "txn-1").Return(nil, nil)
	m.tickets.On("GetTicketByID", mock.Anything, "t-1").Return(heldTicket(), nil)
	m.catalog.On("EventByID", mock.Anything, "event-1").Return(&models.Event{
		ID: "event-1", TransferEnabled: true,
		TransferFeeType: models.FeePercentage, TransferFeeValue: decimal.NewFromInt(10),
	}, nil)
	m.dir.On("CurrentPhone", mock.Anything, "acct-sender").Return("+201000000001", nil)
	m.ledger.On("HasCompletedFrom", mock.Anything, "t-1", "acct-sender").Return(false, nil)
	m.fees.On("ChargeFee", mock.Anything, "acct-sender", mock.Anything, "t-1").Return(nil)
	m.dir.On("LookupByPhone", mock.Anything, "+201000000009").Return(nil, nil)
	m.ledger.On("Insert", mock.Anything, mock.Anything).Return(nil)
	m.tickets.On("UpdateTicketCAS", mock.Anything, mock.Anything).Return(nil)
	m.tokens.On("Mint", mock.Anything, "t-1", "+201000000009").Return(&models.RegistrationToken{Token: "TOKEN9"}, nil)
	m.notifier.On("TransferReceived", mock.Anything, mock.Anything, mock.Anything, "TOKEN9").Return()
	m.notifier.On("PublishOwnershipChange", mock.Anything, mock.Anything, "transfer").Return(nil)

	record, err := engine.ProcessTransferPayment(context.Background(), outcome)
	require.NoError(t, err)

	assert.Equal(t, "t-1", record.TicketID)
	assert.Equal(t, "acct-sender", record.FromHolderID)
	assert.Empty(t, record.ToHolderID)
	assert.Equal(t, "+201000000009", record.ToPhone)
	assert.Equal(t, models.TransferCompleted, record.Status)
	assert.Equal(t, "txn-1", record.PaymentRef)
	assert.True(t, record.Fee.Equal(decimal.NewFromInt(20)))

	// The unresolved recipient leaves the holder untouched but earmarks
	// the ticket for the phone.
	updated := m.tickets.Calls[1].Arguments.Get(1).(models.Ticket)
	assert.Equal(t, "acct-sender", updated.HolderID)
	require.NotNil(t, updated.PendingContact())
	assert.Equal(t, "+201000000009", updated.PendingContact().Phone)

	m.ledger.AssertExpectations(t)
	m.fees.AssertExpectations(t)
}

func TestProcessTransferToRegisteredAccount(t *testing.T) {
	engine, m := newEngine()
	outcome := transferOutcome("txn-2")

	m.ledger.On("GetByPaymentRef", mock.Anything, "txn-2").Return(nil, nil)
	m.tickets.On("GetTicketByID", mock.Anything, "t-1").Return(heldTicket(), nil)
	m.catalog.On("EventByID", mock.Anything, "event-1").Return(&models.Event{
		ID: "event-1", TransferEnabled: true,
		TransferFeeType: models.FeeFlat, TransferFeeValue: decimal.NewFromInt(50),
	}, nil)
	m.dir.On("CurrentPhone", mock.Anything, "acct-sender").Return("+201000000001", nil)
	m.ledger.On("HasCompletedFrom", mock.Anything, "t-1", "acct-sender").Return(false, nil)
	m.fees.On("ChargeFee", mock.Anything, "acct-sender", mock.Anything, "t-1").Return(nil)
	m.dir.On("LookupByPhone", mock.Anything, "+201000000009").Return(&models.Account{ID: "acct-recipient", Phone: "+201000000009", Active: true}, nil)
	m.ledger.On("Insert", mock.Anything, mock.Anything).Return(nil)
	m.tickets.On("UpdateTicketCAS", mock.Anything, mock.Anything).Return(nil)
	m.notifier.On("TransferReceived", mock.Anything, mock.Anything, mock.Anything, "").Return()
	m.notifier.On("PublishOwnershipChange", mock.Anything, mock.Anything, "transfer").Return(nil)

	record, err := engine.ProcessTransferPayment(context.Background(), outcome)
	require.NoError(t, err)
	assert.Equal(t, "acct-recipient", record.ToHolderID)
	assert.True(t, record.Fee.Equal(decimal.NewFromInt(50)))

	updated := m.tickets.Calls[1].Arguments.Get(1).(models.Ticket)
	assert.Equal(t, "acct-recipient", updated.HolderID)
	assert.Nil(t, updated.PendingContact())

	// No registration token for an already-registered recipient.
	m.tokens.AssertNotCalled(t, "Mint", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessTransferIdempotentOnPaymentRef(t *testing.T) {
	engine, m := newEngine()
	outcome := transferOutcome("txn-dup")

	existing := &models.TransferRecord{ID: "tr-1", TicketID: "t-1", PaymentRef: "txn-dup", Status: models.TransferCompleted}
	m.ledger.On("GetByPaymentRef", mock.Anything, "txn-dup").Return(existing, nil)

	record, err := engine.ProcessTransferPayment(context.Background(), outcome)
	require.NoError(t, err)
	assert.Equal(t, existing, record)

	m.fees.AssertNotCalled(t, "ChargeFee", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.ledger.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	m.tickets.AssertNotCalled(t, "UpdateTicketCAS", mock.Anything, mock.Anything)
}

func TestProcessTransferGuards(t *testing.T) {
	t.Run("already transferred", func(t *testing.T) {
		engine, m := newEngine()
		outcome := transferOutcome("txn-3")

		m.ledger.On("GetByPaymentRef", mock.Anything, "txn-3").Return(nil, nil)
		m.tickets.On("GetTicketByID", mock.Anything, "t-1").Return(heldTicket(), nil)
		m.catalog.On("EventByID", mock.Anything, "event-1").Return(&models.Event{ID: "event-1", TransferEnabled: true}, nil)
		m.dir.On("CurrentPhone", mock.Anything, "acct-sender").Return("+201000000001", nil)
		m.ledger.On("HasCompletedFrom", mock.Anything, "t-1", "acct-sender").Return(true, nil)

		_, err := engine.ProcessTransferPayment(context.Background(), outcome)
		assert.ErrorIs(t, err, models.ErrAlreadyTransferred)
	})

	t.Run("self transfer", func(t *testing.T) {
		engine, m := newEngine()
		outcome := transferOutcome("txn-4")

		m.ledger.On("GetByPaymentRef", mock.Anything, "txn-4").Return(nil, nil)
		m.tickets.On("GetTicketByID", mock.Anything, "t-1").Return(heldTicket(), nil)
		m.catalog.On("EventByID", mock.Anything, "event-1").Return(&models.Event{ID: "event-1", TransferEnabled: true}, nil)
		m.dir.On("CurrentPhone", mock.Anything, "acct-sender").Return("+201000000009", nil)

		_, err := engine.ProcessTransferPayment(context.Background(), outcome)
		assert.ErrorIs(t, err, models.ErrSelfTransfer)
	})

	t.Run("transfers disabled", func(t *testing.T) {
		engine, m := newEngine()
		outcome := transferOutcome("txn-5")

		m.ledger.On("GetByPaymentRef", mock.Anything, "txn-5").Return(nil, nil)
		m.tickets.On("GetTicketByID", mock.Anything, "t-1").Return(heldTicket(), nil)
		m.catalog.On("EventByID", mock.Anything, "event-1").Return(&models.Event{ID: "event-1", TransferEnabled: false}, nil)

		_, err := engine.ProcessTransferPayment(context.Background(), outcome)
		assert.ErrorIs(t, err, models.ErrTransferDisabled)
	})

	t.Run("not the holder", func(t *testing.T) {
		engine, m := newEngine()
		outcome := transferOutcome("txn-6")
		ticket := heldTicket()
		ticket.HolderID = "acct-other"

		m.ledger.On("GetByPaymentRef", mock.Anything, "txn-6").Return(nil, nil)
		m.tickets.On("GetTicketByID", mock.Anything, "t-1").Return(ticket, nil)

		_, err := engine.ProcessTransferPayment(context.Background(), outcome)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})
}

func TestProcessTransferCancelsLedgerRowWhenTicketUpdateLoses(t *testing.T) {
	engine, m := newEngine()
	outcome := transferOutcome("txn-8")

	m.ledger.On("GetByPaymentRef", mock.Anything, "txn-8").Return(nil, nil)
	m.tickets.On("GetTicketByID", mock.Anything, "t-1").Return(heldTicket(), nil)
	m.catalog.On("EventByID", mock.Anything, "event-1").Return(&models.Event{ID: "event-1", TransferEnabled: true}, nil)
	m.dir.On("CurrentPhone", mock.Anything, "acct-sender").Return("+201000000001", nil)
	m.ledger.On("HasCompletedFrom", mock.Anything, "t-1", "acct-sender").Return(false, nil)
	m.dir.On("LookupByPhone", mock.Anything, "+201000000009").Return(nil, nil)
	m.ledger.On("Insert", mock.Anything, mock.Anything).Return(nil)
	m.tickets.On("UpdateTicketCAS", mock.Anything, mock.Anything).Return(models.ErrConcurrentModification)
	m.ledger.On("Cancel", mock.Anything, mock.Anything).Return(nil)

	_, err := engine.ProcessTransferPayment(context.Background(), outcome)
	assert.ErrorIs(t, err, models.ErrConcurrentModification)

	// The losing departure is voided, not left behind as completed.
	inserted := m.ledger.Calls[2].Arguments.Get(1).(models.TransferRecord)
	m.ledger.AssertCalled(t, "Cancel", mock.Anything, inserted.ID)
	m.notifier.AssertNotCalled(t, "TransferReceived", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.notifier.AssertNotCalled(t, "PublishOwnershipChange", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessTransferFeeChargeFailureLeavesStateUntouched(t *testing.T) {
	engine, m := newEngine()
	outcome := transferOutcome("txn-7")

	m.ledger.On("GetByPaymentRef", mock.Anything, "txn-7").Return(nil, nil)
	m.tickets.On("GetTicketByID", mock.Anything, "t-1").Return(heldTicket(), nil)
	m.catalog.On("EventByID", mock.Anything, "event-1").Return(&models.Event{
		ID: "event-1", TransferEnabled: true,
		TransferFeeType: models.FeeFlat, TransferFeeValue: decimal.NewFromInt(50),
	}, nil)
	m.dir.On("CurrentPhone", mock.Anything, "acct-sender").Return("+201000000001", nil)
	m.ledger.On("HasCompletedFrom", mock.Anything, "t-1", "acct-sender").Return(false, nil)
	m.fees.On("ChargeFee", mock.Anything, "acct-sender", mock.Anything, "t-1").Return(errors.New("card declined"))

	_, err := engine.ProcessTransferPayment(context.Background(), outcome)
	assert.ErrorIs(t, err, models.ErrFeeChargeFailed)

	m.ledger.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	m.tickets.AssertNotCalled(t, "UpdateTicketCAS", mock.Anything, mock.Anything)
	m.notifier.AssertNotCalled(t, "PublishOwnershipChange", mock.Anything, mock.Anything, mock.Anything)
}
