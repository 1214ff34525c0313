package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"rentledger/internal/config"
	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

const DirectDebitName = "directdebit"

// DirectDebitProvider integrates the bank-to-bank direct debit provider.
// Webhooks carry an events array and are signed with an HMAC-SHA256 hex
// digest over the raw payload.
type DirectDebitProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewDirectDebitProvider(cfg config.ProviderConfig) *DirectDebitProvider {
	return &DirectDebitProvider{
		baseURL: cfg.BaseURL,
		token:   cfg.AccessToken,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *DirectDebitProvider) Name() string { return DirectDebitName }

type ddCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"given_name"`
}

type ddMandate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ddPayment struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
}

type ddRefund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Links  struct {
		Payment string `json:"payment"`
	} `json:"links"`
}

func (p *DirectDebitProvider) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	body := map[string]interface{}{
		"customers": map[string]string{"email": params.Email, "given_name": params.Name},
	}
	var resp struct {
		Customers ddCustomer `json:"customers"`
	}
	if err := p.do(ctx, http.MethodPost, "/customers", body, &resp); err != nil {
		return nil, err
	}
	return &Customer{ID: resp.Customers.ID, Email: resp.Customers.Email, Name: resp.Customers.Name}, nil
}

func (p *DirectDebitProvider) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var resp struct {
		Customers ddCustomer `json:"customers"`
	}
	if err := p.do(ctx, http.MethodGet, "/customers/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &Customer{ID: resp.Customers.ID, Email: resp.Customers.Email, Name: resp.Customers.Name}, nil
}

func (p *DirectDebitProvider) CreateMandate(ctx context.Context, params MandateParams) (*MandateRef, error) {
	body := map[string]interface{}{
		"mandates": map[string]interface{}{
			"scheme": params.Scheme,
			"links":  map[string]string{"customer": params.CustomerID},
		},
	}
	var resp struct {
		Mandates ddMandate `json:"mandates"`
	}
	if err := p.do(ctx, http.MethodPost, "/mandates", body, &resp); err != nil {
		return nil, err
	}
	return &MandateRef{ID: resp.Mandates.ID, Status: resp.Mandates.Status}, nil
}

func (p *DirectDebitProvider) GetMandate(ctx context.Context, id string) (*MandateRef, error) {
	var resp struct {
		Mandates ddMandate `json:"mandates"`
	}
	if err := p.do(ctx, http.MethodGet, "/mandates/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &MandateRef{ID: resp.Mandates.ID, Status: resp.Mandates.Status}, nil
}

func (p *DirectDebitProvider) CancelMandate(ctx context.Context, id string) error {
	return p.do(ctx, http.MethodPost, "/mandates/"+id+"/actions/cancel", nil, nil)
}

func (p *DirectDebitProvider) CreatePayment(ctx context.Context, params PaymentParams) (*PaymentRef, error) {
	body := map[string]interface{}{
		"payments": map[string]interface{}{
			"amount":      params.Amount.Mul(minorUnits).IntPart(),
			"currency":    params.Currency,
			"description": params.Description,
			"metadata":    params.Metadata,
			"links":       map[string]string{"mandate": params.MandateID},
		},
	}
	var resp struct {
		Payments ddPayment `json:"payments"`
	}
	if err := p.do(ctx, http.MethodPost, "/payments", body, &resp); err != nil {
		return nil, err
	}
	return ddPaymentRef(resp.Payments), nil
}

func (p *DirectDebitProvider) GetPayment(ctx context.Context, id string) (*PaymentRef, error) {
	var resp struct {
		Payments ddPayment `json:"payments"`
	}
	if err := p.do(ctx, http.MethodGet, "/payments/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return ddPaymentRef(resp.Payments), nil
}

func (p *DirectDebitProvider) CancelPayment(ctx context.Context, id string) error {
	return p.do(ctx, http.MethodPost, "/payments/"+id+"/actions/cancel", nil, nil)
}

func (p *DirectDebitProvider) CreateRefund(ctx context.Context, params RefundParams) (*RefundRef, error) {
	body := map[string]interface{}{
		"refunds": map[string]interface{}{
			"amount": params.Amount.Mul(minorUnits).IntPart(),
			"links":  map[string]string{"payment": params.PaymentID},
		},
	}
	var resp struct {
		Refunds ddRefund `json:"refunds"`
	}
	if err := p.do(ctx, http.MethodPost, "/refunds", body, &resp); err != nil {
		return nil, err
	}
	return &RefundRef{
		ID:        resp.Refunds.ID,
		PaymentID: resp.Refunds.Links.Payment,
		Amount:    fromMinorUnits(resp.Refunds.Amount),
	}, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 digest of the raw
// payload against the signature header.
func (p *DirectDebitProvider) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

type ddEventEnvelope struct {
	Events []struct {
		ID           string    `json:"id"`
		CreatedAt    time.Time `json:"created_at"`
		ResourceType string    `json:"resource_type"`
		Action       string    `json:"action"`
		Links        struct {
			Payment string `json:"payment"`
			Mandate string `json:"mandate"`
			Refund  string `json:"refund"`
			Payout  string `json:"payout"`
		} `json:"links"`
	} `json:"events"`
}

// ParseWebhookEvents decodes the provider's events array. One delivery can
// carry many events.
func (p *DirectDebitProvider) ParseWebhookEvents(payload []byte) ([]Event, error) {
	var envelope ddEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	events := make([]Event, 0, len(envelope.Events))
	for _, e := range envelope.Events {
		ref := e.Links.Payment
		switch e.ResourceType {
		case ResourceMandates:
			ref = e.Links.Mandate
		case ResourceRefunds:
			ref = e.Links.Refund
		case ResourcePayouts:
			ref = e.Links.Payout
		}

		events = append(events, Event{
			ID:           e.ID,
			CreatedAt:    e.CreatedAt,
			ResourceType: e.ResourceType,
			Action:       e.Action,
			ProviderRef:  ref,
		})
	}

	return events, nil
}

// MapPaymentStatus translates the provider's payment actions/statuses.
func (p *DirectDebitProvider) MapPaymentStatus(status string) (domain.PaymentStatus, bool) {
	switch status {
	case "pending_submission", "pending_customer_approval", "created":
		return domain.PaymentPending, true
	case "submitted":
		return domain.PaymentSubmitted, true
	case "confirmed":
		return domain.PaymentSettled, true
	case "paid_out":
		return domain.PaymentPaidOut, true
	case "cancelled", "customer_approval_denied":
		return domain.PaymentCancelled, true
	case "failed", "charged_back":
		return domain.PaymentFailed, true
	}
	return domain.PaymentPending, false
}

func (p *DirectDebitProvider) MapMandateStatus(status string) (domain.MandateStatus, bool) {
	switch status {
	case "pending_customer_approval", "created":
		return domain.MandatePendingApproval, true
	case "pending_submission", "customer_approval_granted":
		return domain.MandatePendingSubmission, true
	case "submitted":
		return domain.MandateSubmitted, true
	case "active", "reinstated":
		return domain.MandateActive, true
	case "failed":
		return domain.MandateFailed, true
	case "cancelled", "expired":
		return domain.MandateCancelled, true
	}
	return domain.MandatePendingSubmission, false
}

func (p *DirectDebitProvider) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("path", path).Error("Direct debit provider call failed")
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		logger.GetLogger().WithField("status", resp.StatusCode).WithField("path", path).Error("Direct debit provider returned error")
		return fmt.Errorf("%w: %s returned %d: %s", domain.ErrUpstream, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", domain.ErrUpstream, err)
	}
	return nil
}
