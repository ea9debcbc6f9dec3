package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ticket-runners/internal/config"
	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"
)

type Producer interface {
	Publish(topic string, key string, value []byte) error
}

// NopProducer drops every message. Used when Kafka is disabled.
type NopProducer struct{}

func (NopProducer) Publish(topic string, key string, value []byte) error { return nil }

// Emitter pushes ownership changes to connected SSE clients.
type Emitter interface {
	EmitOwnershipChange(ticket models.Ticket, reason string)
}

// Notifier dispatches notification requests over Kafka. Delivery is
// fire-and-forget: a broken channel is logged and never fails the operation
// that triggered it.
type Notifier struct {
	Producer       Producer
	Topics         config.TopicConfig
	DomesticPrefix string
	Logger         *logger.Logger

	// Emitter is optional; when set, ownership changes are also pushed to
	// live SSE subscribers.
	Emitter Emitter
}

func NewNotifier(producer Producer, topics config.TopicConfig, domesticPrefix string, log *logger.Logger) *Notifier {
	return &Notifier{
		Producer:       producer,
		Topics:         topics,
		DomesticPrefix: domesticPrefix,
		Logger:         log,
	}
}

type notification struct {
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	TicketID  string    `json:"ticket_id"`
	EventID   string    `json:"event_id,omitempty"`
	Token     string    `json:"registration_token,omitempty"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// routable reports whether the SMS channel can reach the phone number.
func (n *Notifier) routable(phone string) bool {
	return strings.HasPrefix(phone, n.DomesticPrefix)
}

// send picks SMS for domestically routable phones, falls back to email when
// an address is present, and drops the request otherwise.
func (n *Notifier) send(kind string, contact models.Contact, note notification) {
	note.Kind = kind
	note.Name = contact.Name
	note.Timestamp = time.Now()

	var topic string
	switch {
	case contact.Phone != "" && n.routable(contact.Phone):
		topic = n.Topics.NotifySMS
		note.Target = contact.Phone
	case contact.Email != "":
		topic = n.Topics.NotifyEmail
		note.Target = contact.Email
	default:
		n.Logger.Warn("NOTIFY", fmt.Sprintf("No reachable channel for %s notification (ticket %s)", kind, note.TicketID))
		return
	}

	payload, err := json.Marshal(note)
	if err != nil {
		n.Logger.Error("NOTIFY", fmt.Sprintf("Failed to marshal %s notification: %v", kind, err))
		return
	}

	if err := n.Producer.Publish(topic, note.Target, payload); err != nil {
		n.Logger.Error("NOTIFY", fmt.Sprintf("Failed to publish %s notification to %s: %v", kind, topic, err))
		return
	}
	n.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("%s notification for ticket %s", kind, note.TicketID))
}

// TicketAssigned tells a contact a ticket was bought for them, carrying the
// registration token when their phone has no account yet.
func (n *Notifier) TicketAssigned(ctx context.Context, contact models.Contact, ticket models.Ticket, token string) {
	n.send("ticket_assigned", contact, notification{
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		Token:    token,
	})
}

// TransferReceived tells a contact a ticket was transferred to them.
func (n *Notifier) TransferReceived(ctx context.Context, contact models.Contact, ticket models.Ticket, token string) {
	n.send("transfer_received", contact, notification{
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		Token:    token,
	})
}

type ownershipEvent struct {
	TicketID string    `json:"ticket_id"`
	EventID  string    `json:"event_id"`
	HolderID string    `json:"holder_id,omitempty"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// PublishOwnershipChange streams a ticket ownership change for downstream
// consumers. Failures are the caller's to log; nothing rolls back.
func (n *Notifier) PublishOwnershipChange(ctx context.Context, ticket models.Ticket, reason string) error {
	if n.Emitter != nil {
		n.Emitter.EmitOwnershipChange(ticket, reason)
	}
	payload, err := json.Marshal(ownershipEvent{
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		HolderID: ticket.HolderID,
		Reason:   reason,
		At:       time.Now(),
	})
	if err != nil {
		return err
	}
	return n.Producer.Publish(n.Topics.OwnershipEvents, ticket.ID, payload)
}
