package assignment_test

import (
	"context"
	"testing"
	"time"

	"ticket-runners/internal/assignment"
	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations
type MockTicketStore struct {
	mock.Mock
}

func (m *MockTicketStore) CreateTickets(ctx context.Context, tickets []models.Ticket) error {
	args := m.Called(ctx, tickets)
	return args.Error(0)
}

func (m *MockTicketStore) GetTicketsByBookingRef(ctx context.Context, bookingRef string) ([]models.Ticket, error) {
	args := m.Called(ctx, bookingRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
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

type MockDraftWriter struct {
	mock.Mock
}

func (m *MockDraftWriter) StoreDraftProfile(ctx context.Context, phone string, profile models.DraftProfile) error {
	args := m.Called(ctx, phone, profile)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TicketAssigned(ctx context.Context, contact models.Contact, ticket models.Ticket, token string) {
	m.Called(ctx, contact, ticket, token)
}

func (m *MockNotifier) PublishOwnershipChange(ctx context.Context, ticket models.Ticket, reason string) error {
	args := m.Called(ctx, ticket, reason)
	return args.Error(0)
}

func newService(tickets *MockTicketStore, tokens *MockTokenMinter, dir *MockDirectory, catalog *MockCatalog, drafts *MockDraftWriter, notifier *MockNotifier) *assignment.Service {
	return assignment.NewService(tickets, tokens, dir, catalog, drafts, notifier, logger.NewLogger())
}

func bookingOutcome(txn string, slots []models.SlotManifest) models.PaymentOutcome {
	return models.PaymentOutcome{
		TransactionID: txn,
		PayerID:       "acct-payer",
		Amount:        decimal.NewFromInt(500),
		Kind:          models.PaymentBooking,
		Booking:       &models.BookingPayload{EventID: "event-1", Slots: slots},
		ReceivedAt:    time.Now(),
	}
}

func TestCreateTicketsFromBookingMixedSlots(t *testing.T) {
	tickets := new(MockTicketStore)
	tokens := new(MockTokenMinter)
	dir := new(MockDirectory)
	catalog := new(MockCatalog)
	drafts := new(MockDraftWriter)
	notifier := new(MockNotifier)
	svc := newService(tickets, tokens, dir, catalog, drafts, notifier)

	outcome := bookingOutcome("txn-100", []models.SlotManifest{
		{IsOwner: true, Category: "VIP", Price: decimal.NewFromInt(300), HasChild: true, ChildAge: 8},
		{Name: "Registered Friend", Phone: "+201000000002", Category: "Regular", Price: decimal.NewFromInt(100)},
		{Name: "New Friend", Phone: "+201000000003", Email: "new@friend.example", Category: "Regular", Price: decimal.NewFromInt(100)},
	})

	tickets.On("GetTicketsByBookingRef", mock.Anything, "txn-100").Return([]models.Ticket{}, nil)
	catalog.On("EventByID", mock.Anything, "event-1").Return(&models.Event{ID: "event-1", TransferEnabled: true}, nil)
	dir.On("LookupByPhone", mock.Anything, "+201000000002").Return(&models.Account{ID: "acct-friend", Phone: "+201000000002", Active: true}, nil)
	dir.On("LookupByPhone", mock.Anything, "+201000000003").Return(nil, nil)
	tickets.On("CreateTickets", mock.Anything, mock.Anything).Return(nil)
	tokens.On("Mint", mock.Anything, mock.Anything, "+201000000003").Return(&models.RegistrationToken{Token: "TOKEN3"}, nil)
	drafts.On("StoreDraftProfile", mock.Anything, "+201000000003", models.DraftProfile{Name: "New Friend", Email: "new@friend.example"}).Return(nil)
	notifier.On("TicketAssigned", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
	notifier.On("PublishOwnershipChange", mock.Anything, mock.Anything, "booking").Return(nil)

	created, err := svc.CreateTicketsFromBooking(context.Background(), outcome)
	require.NoError(t, err)
	require.Len(t, created, 3)

	owner := created[0]
	assert.Equal(t, "acct-payer", owner.HolderID)
	assert.Equal(t, "acct-payer", owner.PayerID)
	assert.True(t, owner.ChildFlag)
	assert.Equal(t, 8, owner.ChildAge)
	assert.Nil(t, owner.PendingContact())

	registered := created[1]
	assert.Equal(t, "acct-friend", registered.HolderID)
	assert.Equal(t, "acct-payer", registered.PayerID)
	require.NotNil(t, registered.PendingContact())
	assert.Equal(t, "+201000000002", registered.PendingContact().Phone)

	unregistered := created[2]
	assert.Equal(t, "acct-payer", unregistered.HolderID)
	require.NotNil(t, unregistered.PendingContact())
	assert.Equal(t, "+201000000003", unregistered.PendingContact().Phone)

	for _, ticket := range created {
		assert.Equal(t, "txn-100", ticket.BookingRef)
		assert.Equal(t, models.TicketValid, ticket.Status)
	}

	tickets.AssertExpectations(t)
	tokens.AssertExpectations(t)
	dir.AssertExpectations(t)
	drafts.AssertExpectations(t)
}

func TestCreateTicketsFromBookingIdempotent(t *testing.T) {
	tickets := new(MockTicketStore)
	tokens := new(MockTokenMinter)
	dir := new(MockDirectory)
	catalog := new(MockCatalog)
	drafts := new(MockDraftWriter)
	notifier := new(MockNotifier)
	svc := newService(tickets, tokens, dir, catalog, drafts, notifier)

	existing := []models.Ticket{{ID: "t-1", BookingRef: "txn-dup", PayerID: "acct-payer", Status: models.TicketValid}}
	tickets.On("GetTicketsByBookingRef", mock.Anything, "txn-dup").Return(existing, nil)

	outcome := bookingOutcome("txn-dup", []models.SlotManifest{
		{IsOwner: true, Category: "VIP", Price: decimal.NewFromInt(300)},
	})

	created, err := svc.CreateTicketsFromBooking(context.Background(), outcome)
	require.NoError(t, err)
	assert.Equal(t, existing, created)

	// No tickets were created, no tokens minted, nothing published.
	tickets.AssertNotCalled(t, "CreateTickets", mock.Anything, mock.Anything)
	tokens.AssertNotCalled(t, "Mint", mock.Anything, mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "PublishOwnershipChange", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateTicketsFromBookingRejectsBadSlots(t *testing.T) {
	tickets := new(MockTicketStore)
	tokens := new(MockTokenMinter)
	dir := new(MockDirectory)
	catalog := new(MockCatalog)
	drafts := new(MockDraftWriter)
	notifier := new(MockNotifier)
	svc := newService(tickets, tokens, dir, catalog, drafts, notifier)

	tickets.On("GetTicketsByBookingRef", mock.Anything, mock.Anything).Return([]models.Ticket{}, nil)
	catalog.On("EventByID", mock.Anything, "event-1").Return(&models.Event{ID: "event-1"}, nil)

	cases := []struct {
		name  string
		slots []models.SlotManifest
	}{
		{"missing category", []models.SlotManifest{{IsOwner: true, Price: decimal.NewFromInt(100)}}},
		{"non-positive price", []models.SlotManifest{{IsOwner: true, Category: "VIP", Price: decimal.Zero}}},
		{"assigned without phone", []models.SlotManifest{{Name: "Friend", Category: "VIP", Price: decimal.NewFromInt(100)}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := bookingOutcome("txn-bad-"+tc.name, tc.slots)
			_, err := svc.CreateTicketsFromBooking(context.Background(), outcome)
			assert.ErrorIs(t, err, models.ErrInvalidSlotData)
		})
	}

	tickets.AssertNotCalled(t, "CreateTickets", mock.Anything, mock.Anything)
}
