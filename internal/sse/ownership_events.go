package sse

import (
	"context"
	"sync"
	"time"

	"ticket-runners/internal/models"
)

// OwnershipEvent is the payload streamed to connected clients when a ticket
// they hold or paid for changes hands.
type OwnershipEvent struct {
	TicketID string    `json:"ticket_id"`
	EventID  string    `json:"event_id"`
	HolderID string    `json:"holder_id,omitempty"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// OwnershipEventEmitter manages SSE connections and broadcasts ownership
// changes to the accounts affected by them.
type OwnershipEventEmitter struct {
	// key: accountID, value: slice of client channels
	clients map[string][]chan OwnershipEvent
	mutex   sync.RWMutex
}

// NewOwnershipEventEmitter creates a new SSE event emitter for ownership changes.
func NewOwnershipEventEmitter() *OwnershipEventEmitter {
	return &OwnershipEventEmitter{
		clients: make(map[string][]chan OwnershipEvent),
	}
}

// Subscribe adds a client listening for changes to the account's tickets.
// The channel is removed when the context is done.
func (e *OwnershipEventEmitter) Subscribe(ctx context.Context, accountID string) chan OwnershipEvent {
	clientChan := make(chan OwnershipEvent, 10)

	e.mutex.Lock()
	e.clients[accountID] = append(e.clients[accountID], clientChan)
	e.mutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(accountID, clientChan)
	}()

	return clientChan
}

// EmitOwnershipChange notifies the ticket's holder and payer. A slow client
// with a full buffer misses the event rather than blocking the emitter.
func (e *OwnershipEventEmitter) EmitOwnershipChange(ticket models.Ticket, reason string) {
	event := OwnershipEvent{
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		HolderID: ticket.HolderID,
		Status:   string(ticket.Status),
		Reason:   reason,
		At:       time.Now(),
	}

	accounts := []string{ticket.HolderID}
	if ticket.PayerID != ticket.HolderID {
		accounts = append(accounts, ticket.PayerID)
	}

	e.mutex.RLock()
	defer e.mutex.RUnlock()
	for _, accountID := range accounts {
		if accountID == "" {
			continue
		}
		for _, clientChan := range e.clients[accountID] {
			select {
			case clientChan <- event:
			default:
			}
		}
	}
}

// ClientCount returns the number of connected clients for an account.
func (e *OwnershipEventEmitter) ClientCount(accountID string) int {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return len(e.clients[accountID])
}

func (e *OwnershipEventEmitter) removeClient(accountID string, clientChan chan OwnershipEvent) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	channels := e.clients[accountID]
	for i, ch := range channels {
		if ch == clientChan {
			e.clients[accountID] = append(channels[:i], channels[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[accountID]) == 0 {
		delete(e.clients, accountID)
	}
}
