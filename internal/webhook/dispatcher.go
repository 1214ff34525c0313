package webhook

import (
	"errors"
	"fmt"
	"time"

	"rentledger/internal/domain"
	"rentledger/internal/events"
	"rentledger/internal/provider"
	"rentledger/internal/repository"
	"rentledger/pkg/logger"
)

// Dispatcher verifies, logs and applies provider webhook deliveries.
// Everything after signature verification is idempotent: lookups go by
// stable external reference and status transitions are compare-then-set,
// so at-least-once and out-of-order delivery converge to the same state.
type Dispatcher struct {
	providers map[string]provider.Provider
	secrets   map[string]string
	payments  repository.PaymentRepository
	mandates  repository.MandateRepository
	invoices  repository.InvoiceRepository
	logs      repository.WebhookLogRepository
	events    events.Publisher
	now       func() time.Time
}

func NewDispatcher(
	providers map[string]provider.Provider,
	secrets map[string]string,
	payments repository.PaymentRepository,
	mandates repository.MandateRepository,
	invoices repository.InvoiceRepository,
	logs repository.WebhookLogRepository,
	publisher events.Publisher,
) *Dispatcher {
	return &Dispatcher{
		providers: providers,
		secrets:   secrets,
		payments:  payments,
		mandates:  mandates,
		invoices:  invoices,
		logs:      logs,
		events:    publisher,
		now:       time.Now,
	}
}

// Handle processes one delivery. It returns ErrUnauthorized for a bad
// signature and ErrNotFound for an unknown provider; errors inside event
// processing are logged and swallowed so the provider gets its
// acknowledgement and does not retry into a broken state.
func (d *Dispatcher) Handle(providerName string, payload []byte, signature string) error {
	adapter, ok := d.providers[providerName]
	if !ok {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrNotFound, providerName)
	}

	if !adapter.VerifyWebhookSignature(payload, signature, d.secrets[providerName]) {
		logger.GetLogger().WithField("provider", providerName).Warn("Webhook signature verification failed")
		return domain.ErrUnauthorized
	}

	parsed, err := adapter.ParseWebhookEvents(payload)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("provider", providerName).Error("Failed to parse webhook payload")
		return nil
	}

	for _, event := range parsed {
		// Audit first; a log failure must not abort processing.
		if err := d.logs.Insert(&domain.WebhookLog{
			Provider: providerName,
			EventID:  event.ID,
			Resource: event.ResourceType,
			Action:   event.Action,
			Payload:  payload,
		}); err != nil {
			logger.GetLogger().WithError(err).Warn("Failed to log webhook event; continuing")
		}

		if err := d.dispatch(adapter, event); err != nil {
			logger.GetLogger().WithError(err).WithFields(map[string]interface{}{
				"provider": providerName,
				"event_id": event.ID,
				"resource": event.ResourceType,
				"action":   event.Action,
			}).Error("Webhook event processing failed; acknowledged anyway")
		}
	}

	return nil
}

// RecentLogs returns the latest audit rows for one provider.
func (d *Dispatcher) RecentLogs(providerName string, limit int) ([]domain.WebhookLog, error) {
	if _, ok := d.providers[providerName]; !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrNotFound, providerName)
	}
	return d.logs.ListByProvider(providerName, limit)
}

func (d *Dispatcher) dispatch(adapter provider.Provider, event provider.Event) error {
	switch event.ResourceType {
	case provider.ResourcePayments:
		return d.applyPaymentEvent(adapter, event)
	case provider.ResourceMandates:
		return d.applyMandateEvent(adapter, event)
	case provider.ResourceRefunds, provider.ResourcePayouts:
		// Audit-only; no state mutation in this core.
		logger.GetLogger().WithFields(map[string]interface{}{
			"resource": event.ResourceType,
			"action":   event.Action,
			"ref":      event.ProviderRef,
		}).Info("Webhook event logged without state change")
		return nil
	}

	logger.GetLogger().WithField("resource", event.ResourceType).Info("Unhandled webhook resource type")
	return nil
}

func (d *Dispatcher) applyPaymentEvent(adapter provider.Provider, event provider.Event) error {
	payment, err := d.payments.GetByProviderRef(event.ProviderRef)
	if errors.Is(err, domain.ErrNotFound) {
		// Webhooks alone never fabricate a payment.
		logger.GetLogger().WithField("provider_ref", event.ProviderRef).Info("Webhook for unknown payment; ignoring")
		return nil
	}
	if err != nil {
		return err
	}

	status, ok := adapter.MapPaymentStatus(event.Action)
	if !ok {
		logger.GetLogger().WithFields(map[string]interface{}{
			"provider": adapter.Name(),
			"action":   event.Action,
		}).Warn("Unrecognized payment status; leaving stored status unchanged")
		return nil
	}

	if status == payment.Status {
		return nil
	}

	updated, err := d.payments.UpdateStatus(payment.ID, payment.Status, status)
	if err != nil {
		return err
	}
	if !updated {
		// Lost a race with another delivery; that delivery owns the change.
		return nil
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"payment_id": payment.ID,
		"from":       string(payment.Status),
		"to":         string(status),
	}).Info("Payment status updated from webhook")

	return d.recomputeInvoice(payment.InvoiceID, payment.LandlordID)
}

func (d *Dispatcher) applyMandateEvent(adapter provider.Provider, event provider.Event) error {
	mandate, err := d.mandates.GetByProviderRef(event.ProviderRef)
	if errors.Is(err, domain.ErrNotFound) {
		logger.GetLogger().WithField("provider_ref", event.ProviderRef).Info("Webhook for unknown mandate; ignoring")
		return nil
	}
	if err != nil {
		return err
	}

	status, ok := adapter.MapMandateStatus(event.Action)
	if !ok {
		logger.GetLogger().WithFields(map[string]interface{}{
			"provider": adapter.Name(),
			"action":   event.Action,
		}).Warn("Unrecognized mandate status; leaving stored status unchanged")
		return nil
	}

	if status == mandate.Status {
		return nil
	}

	var activatedAt *time.Time
	if status == domain.MandateActive {
		now := d.now()
		activatedAt = &now
	}

	updated, err := d.mandates.UpdateStatus(mandate.ID, mandate.Status, status, activatedAt)
	if err != nil {
		return err
	}
	if !updated {
		return nil
	}

	if status == domain.MandateActive {
		d.events.Publish(domain.Event{
			Type:       domain.EventMandateActive,
			LandlordID: mandate.LandlordID,
			TenantID:   mandate.TenantID,
			Resources:  []domain.EventResource{{Type: "mandate", ID: mandate.ID}},
		})
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"mandate_id": mandate.ID,
		"from":       string(mandate.Status),
		"to":         string(status),
	}).Info("Mandate status updated from webhook")

	return nil
}

func (d *Dispatcher) recomputeInvoice(invoiceID, landlordID string) error {
	invoice, err := d.invoices.GetByID(invoiceID, landlordID)
	if err != nil {
		return err
	}

	next := domain.DeriveInvoiceStatus(invoice.Status, invoice.PaidAmount, invoice.GrandTotal, invoice.DueDate, d.now())
	if next == invoice.Status {
		return nil
	}

	if _, err := d.invoices.UpdateStatus(invoice.ID, invoice.Status, next); err != nil {
		return err
	}

	if next == domain.InvoicePaid {
		d.events.Publish(domain.Event{
			Type:       domain.EventInvoicePaid,
			LandlordID: landlordID,
			Resources:  []domain.EventResource{{Type: domain.RefInvoice, ID: invoice.ID}},
			Payload:    map[string]interface{}{"number": invoice.Number},
		})
	}

	return nil
}
