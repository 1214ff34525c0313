package domain

import "time"

// MandateStatus is the internal mandate vocabulary.
type MandateStatus string

const (
	MandatePendingApproval   MandateStatus = "PENDING_CUSTOMER_APPROVAL"
	MandatePendingSubmission MandateStatus = "PENDING_SUBMISSION"
	MandateSubmitted         MandateStatus = "SUBMITTED"
	MandateActive            MandateStatus = "ACTIVE"
	MandateFailed            MandateStatus = "FAILED"
	MandateCancelled         MandateStatus = "CANCELLED"
)

// Mandate is a standing authorization for a provider to pull recurring
// payments. Status moves only via provider webhook events or explicit
// cancellation; ActivatedAt is stamped on the transition to ACTIVE.
type Mandate struct {
	ID          string        `json:"id" db:"id"`
	LandlordID  string        `json:"landlord_id" db:"landlord_id"`
	TenantID    string        `json:"tenant_id" db:"tenant_id"`
	Provider    string        `json:"provider" db:"provider"`
	ProviderRef string        `json:"provider_ref" db:"provider_ref"`
	Status      MandateStatus `json:"status" db:"status"`
	ActivatedAt *time.Time    `json:"activated_at,omitempty" db:"activated_at"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}
