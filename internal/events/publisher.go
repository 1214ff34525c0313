package events

import (
	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

// Publisher hands domain events to the notification/event-stream
// collaborator. Publishing is fire-and-forget from the core's point of
// view; a consumer failure never affects financial processing.
type Publisher interface {
	Publish(event domain.Event)
}

// LogPublisher is the default sink: it records every event as a structured
// log line. Deployments wire a real fan-out in its place.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(event domain.Event) {
	logger.GetLogger().WithFields(map[string]interface{}{
		"event_type":  event.Type,
		"landlord_id": event.LandlordID,
		"tenant_id":   event.TenantID,
		"resources":   event.Resources,
	}).Info("Domain event published")
}

// Multi fans one event out to several publishers in order.
type Multi []Publisher

func (m Multi) Publish(event domain.Event) {
	for _, p := range m {
		p.Publish(event)
	}
}
