package events

import (
	"encoding/json"
	"time"
)

// Type identifies a class of inbound server event.
type Type string

// Connection pseudo-events. Emitted by the connection manager on state
// transitions so the UI can render a connectivity indicator; they are not
// part of the server's domain catalog and never reach the invalidation
// router.
const (
	Connect    Type = "connect"
	Disconnect Type = "disconnect"
)

// Domain event catalog. Every type the server can push into the "admin"
// room must be listed here; the invalidation router asserts at startup
// that its routing table covers all of them.
const (
	OrderStatusUpdate Type = "order_status_update"
	NewOrderAvailable Type = "new_order_available"
	KYCSubmitted      Type = "kyc_submitted"
	PaymentCompleted  Type = "payment_completed"
	RiderStatusUpdate Type = "rider_status_update"
	NewTicketCreated  Type = "new_ticket_created"
	TicketResponse    Type = "ticket_response"
	TicketStatusUpdate Type = "ticket_status_update"
	TicketUserResponse Type = "ticket_user_response"
)

// Catalog returns all domain event types the server emits.
func Catalog() []Type {
	return []Type{
		OrderStatusUpdate,
		NewOrderAvailable,
		KYCSubmitted,
		PaymentCompleted,
		RiderStatusUpdate,
		NewTicketCreated,
		TicketResponse,
		TicketStatusUpdate,
		TicketUserResponse,
	}
}

// Event is one inbound message from the server. The payload shape is
// event-type specific; it is decoded by whoever consumes the event and
// not retained after dispatch.
type Event struct {
	Type       Type            `json:"event"`
	Payload    json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// TicketPayload is the payload carried by ticket-scoped events.
type TicketPayload struct {
	TicketID string `json:"ticketId"`
}
