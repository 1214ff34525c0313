package domain

import "time"

// WebhookLog is the append-only audit row for every received webhook,
// written before dispatch. Failed events stay inspectable here for manual
// replay; a failed insert never blocks processing.
type WebhookLog struct {
	ID         string    `json:"id" db:"id"`
	Provider   string    `json:"provider" db:"provider"`
	EventID    string    `json:"event_id" db:"event_id"`
	Resource   string    `json:"resource" db:"resource"`
	Action     string    `json:"action" db:"action"`
	Payload    []byte    `json:"-" db:"payload"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

// Tenancy is the slice of the tenancy aggregate the billing core needs for
// ownership checks. CRUD for tenancies lives outside this core.
type Tenancy struct {
	ID         string `json:"id" db:"id"`
	LandlordID string `json:"landlord_id" db:"landlord_id"`
	PropertyID string `json:"property_id" db:"property_id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`
}
