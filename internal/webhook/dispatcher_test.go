package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentledger/internal/config"
	"rentledger/internal/domain"
	"rentledger/internal/provider"
	"rentledger/internal/repository"
)

type fakePaymentRepo struct {
	payments map[string]*domain.Payment // keyed by provider ref
}

func (f *fakePaymentRepo) WithTx(tx *sql.Tx) repository.PaymentRepository { return f }
func (f *fakePaymentRepo) Create(p *domain.Payment) error                 { return nil }
func (f *fakePaymentRepo) GetByID(id, landlordID string) (*domain.Payment, error) {
	return nil, domain.ErrNotFound
}
func (f *fakePaymentRepo) GetForUpdate(id string) (*domain.Payment, error) {
	for _, p := range f.payments {
		if p.ID == id {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (f *fakePaymentRepo) GetByProviderRef(ref string) (*domain.Payment, error) {
	p, ok := f.payments[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *p
	return &clone, nil
}
func (f *fakePaymentRepo) ListByInvoice(invoiceID, landlordID string) ([]domain.Payment, error) {
	return nil, nil
}
func (f *fakePaymentRepo) UpdateStatus(id string, from, to domain.PaymentStatus) (bool, error) {
	for _, p := range f.payments {
		if p.ID == id && p.Status == from {
			p.Status = to
			return true, nil
		}
	}
	return false, nil
}

type fakeMandateRepo struct {
	mandates map[string]*domain.Mandate // keyed by provider ref
}

func (f *fakeMandateRepo) WithTx(tx *sql.Tx) repository.MandateRepository { return f }
func (f *fakeMandateRepo) Create(m *domain.Mandate) error                 { return nil }
func (f *fakeMandateRepo) GetByID(id, landlordID string) (*domain.Mandate, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeMandateRepo) GetByProviderRef(ref string) (*domain.Mandate, error) {
	m, ok := f.mandates[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *m
	return &clone, nil
}
func (f *fakeMandateRepo) UpdateStatus(id string, from, to domain.MandateStatus, activatedAt *time.Time) (bool, error) {
	for _, m := range f.mandates {
		if m.ID == id && m.Status == from {
			m.Status = to
			if activatedAt != nil {
				m.ActivatedAt = activatedAt
			}
			return true, nil
		}
	}
	return false, nil
}

type fakeInvoiceRepo struct {
	invoices map[string]*domain.Invoice
}

func (f *fakeInvoiceRepo) WithTx(tx *sql.Tx) repository.InvoiceRepository { return f }
func (f *fakeInvoiceRepo) NextSequence(landlordID string, year int) (int64, error) {
	return 0, nil
}
func (f *fakeInvoiceRepo) Create(inv *domain.Invoice) error { return nil }
func (f *fakeInvoiceRepo) GetByID(id, landlordID string) (*domain.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok || inv.LandlordID != landlordID {
		return nil, domain.ErrNotFound
	}
	clone := *inv
	return &clone, nil
}
func (f *fakeInvoiceRepo) GetForUpdate(id string) (*domain.Invoice, error) {
	return f.GetByID(id, f.invoices[id].LandlordID)
}
func (f *fakeInvoiceRepo) List(landlordID string) ([]domain.Invoice, error) { return nil, nil }
func (f *fakeInvoiceRepo) ListOpenByTenancy(tenancyID string) ([]domain.Invoice, error) {
	return nil, nil
}
func (f *fakeInvoiceRepo) UpdateStatus(id string, from, to domain.InvoiceStatus) (bool, error) {
	inv, ok := f.invoices[id]
	if !ok || inv.Status != from {
		return false, nil
	}
	inv.Status = to
	return true, nil
}
func (f *fakeInvoiceRepo) FindCandidates(landlordID string, amount, tolerance decimal.Decimal, from, to time.Time) ([]domain.Invoice, error) {
	return nil, nil
}

type fakeWebhookLogRepo struct {
	logs []domain.WebhookLog
}

func (f *fakeWebhookLogRepo) WithTx(tx *sql.Tx) repository.WebhookLogRepository { return f }
func (f *fakeWebhookLogRepo) Insert(log *domain.WebhookLog) error {
	f.logs = append(f.logs, *log)
	return nil
}
func (f *fakeWebhookLogRepo) ListByProvider(providerName string, limit int) ([]domain.WebhookLog, error) {
	return f.logs, nil
}

type capturePublisher struct {
	events []domain.Event
}

func (c *capturePublisher) Publish(event domain.Event) {
	c.events = append(c.events, event)
}

func (c *capturePublisher) countByType(eventType string) int {
	n := 0
	for _, e := range c.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

const testSecret = "test-webhook-secret"

func signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestDispatcher(payments *fakePaymentRepo, mandates *fakeMandateRepo, invoices *fakeInvoiceRepo, logs *fakeWebhookLogRepo, publisher *capturePublisher) *Dispatcher {
	providers := map[string]provider.Provider{
		provider.DirectDebitName: provider.NewDirectDebitProvider(config.ProviderConfig{}),
	}
	secrets := map[string]string{provider.DirectDebitName: testSecret}
	return NewDispatcher(providers, secrets, payments, mandates, invoices, logs, publisher)
}

func TestDispatcher_PaymentConfirmedReplayConverges(t *testing.T) {
	due := time.Now().Add(30 * 24 * time.Hour)
	payments := &fakePaymentRepo{payments: map[string]*domain.Payment{
		"PM123": {
			ID:          "pay-1",
			LandlordID:  "ll-1",
			InvoiceID:   "inv-1",
			ProviderRef: "PM123",
			Status:      domain.PaymentPending,
			Amount:      decimal.NewFromInt(1200),
		},
	}}
	invoices := &fakeInvoiceRepo{invoices: map[string]*domain.Invoice{
		"inv-1": {
			ID:         "inv-1",
			LandlordID: "ll-1",
			Number:     "INV-2025-000001",
			Status:     domain.InvoicePartPaid,
			GrandTotal: decimal.NewFromInt(1200),
			PaidAmount: decimal.NewFromInt(1200),
			DueDate:    due,
		},
	}}
	logs := &fakeWebhookLogRepo{}
	publisher := &capturePublisher{}
	d := newTestDispatcher(payments, &fakeMandateRepo{}, invoices, logs, publisher)

	payload := []byte(`{"events":[{
		"id": "EV001",
		"created_at": "2025-03-01T10:00:00Z",
		"resource_type": "payments",
		"action": "confirmed",
		"links": {"payment": "PM123"}
	}]}`)
	signature := signPayload(payload)

	// At-least-once delivery: the same event arrives three times.
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Handle(provider.DirectDebitName, payload, signature))
	}

	assert.Equal(t, domain.PaymentSettled, payments.payments["PM123"].Status)
	assert.Equal(t, domain.InvoicePaid, invoices.invoices["inv-1"].Status)
	assert.Len(t, logs.logs, 3, "every delivery is audited")
	assert.Equal(t, 1, publisher.countByType(domain.EventInvoicePaid), "the transition fires once")
}

func TestDispatcher_MandateActivation(t *testing.T) {
	mandates := &fakeMandateRepo{mandates: map[string]*domain.Mandate{
		"MD456": {
			ID:          "mandate-1",
			LandlordID:  "ll-1",
			TenantID:    "tenant-1",
			ProviderRef: "MD456",
			Status:      domain.MandateSubmitted,
		},
	}}
	logs := &fakeWebhookLogRepo{}
	publisher := &capturePublisher{}
	d := newTestDispatcher(&fakePaymentRepo{}, mandates, &fakeInvoiceRepo{}, logs, publisher)

	payload := []byte(`{"events":[{
		"id": "EV002",
		"created_at": "2025-03-01T10:00:00Z",
		"resource_type": "mandates",
		"action": "active",
		"links": {"mandate": "MD456"}
	}]}`)
	signature := signPayload(payload)

	require.NoError(t, d.Handle(provider.DirectDebitName, payload, signature))
	require.NoError(t, d.Handle(provider.DirectDebitName, payload, signature))

	mandate := mandates.mandates["MD456"]
	assert.Equal(t, domain.MandateActive, mandate.Status)
	assert.NotNil(t, mandate.ActivatedAt)
	assert.Equal(t, 1, publisher.countByType(domain.EventMandateActive))
}

func TestDispatcher_BadSignature(t *testing.T) {
	logs := &fakeWebhookLogRepo{}
	d := newTestDispatcher(&fakePaymentRepo{}, &fakeMandateRepo{}, &fakeInvoiceRepo{}, logs, &capturePublisher{})

	payload := []byte(`{"events":[]}`)

	err := d.Handle(provider.DirectDebitName, payload, "deadbeef")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, logs.logs, "nothing is logged before the signature check passes")
}

func TestDispatcher_UnknownProvider(t *testing.T) {
	d := newTestDispatcher(&fakePaymentRepo{}, &fakeMandateRepo{}, &fakeInvoiceRepo{}, &fakeWebhookLogRepo{}, &capturePublisher{})

	err := d.Handle("paperchecks", []byte(`{}`), "sig")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDispatcher_UnknownPaymentRefIgnored(t *testing.T) {
	payments := &fakePaymentRepo{payments: map[string]*domain.Payment{}}
	logs := &fakeWebhookLogRepo{}
	d := newTestDispatcher(payments, &fakeMandateRepo{}, &fakeInvoiceRepo{}, logs, &capturePublisher{})

	payload := []byte(`{"events":[{
		"id": "EV003",
		"created_at": "2025-03-01T10:00:00Z",
		"resource_type": "payments",
		"action": "confirmed",
		"links": {"payment": "PM999"}
	}]}`)

	err := d.Handle(provider.DirectDebitName, payload, signPayload(payload))
	assert.NoError(t, err, "unknown references are acknowledged, never fabricated")
	assert.Len(t, logs.logs, 1)
}

func TestDispatcher_UnmappedStatusLeavesStateAlone(t *testing.T) {
	payments := &fakePaymentRepo{payments: map[string]*domain.Payment{
		"PM123": {
			ID:          "pay-1",
			LandlordID:  "ll-1",
			InvoiceID:   "inv-1",
			ProviderRef: "PM123",
			Status:      domain.PaymentPending,
		},
	}}
	d := newTestDispatcher(payments, &fakeMandateRepo{}, &fakeInvoiceRepo{}, &fakeWebhookLogRepo{}, &capturePublisher{})

	payload := []byte(`{"events":[{
		"id": "EV004",
		"created_at": "2025-03-01T10:00:00Z",
		"resource_type": "payments",
		"action": "quantum_flagged",
		"links": {"payment": "PM123"}
	}]}`)

	require.NoError(t, d.Handle(provider.DirectDebitName, payload, signPayload(payload)))
	assert.Equal(t, domain.PaymentPending, payments.payments["PM123"].Status)
}
