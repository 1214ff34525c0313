package domain

// Domain event types emitted for notification consumers.
const (
	EventPaymentRecorded = "payment.recorded"
	EventInvoiceCreated  = "invoice.created"
	EventInvoicePaid     = "invoice.paid"
	EventInvoiceLate     = "invoice.late"
	EventMandateActive   = "mandate.active"
)

// EventResource identifies an entity an event refers to.
type EventResource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Event is the envelope handed to the notification/event-stream
// collaborator. The core only emits; fan-out happens elsewhere.
type Event struct {
	Type       string                 `json:"type"`
	LandlordID string                 `json:"landlord_id"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	Resources  []EventResource        `json:"resources"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}
