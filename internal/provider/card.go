package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rentledger/internal/config"
	"rentledger/internal/domain"
	"rentledger/pkg/logger"
)

const CardName = "card"

// CardProvider integrates the card/SEPA provider. Webhook signatures come
// in a "t=<unix>,v1=<hex>" header; the digest covers "{timestamp}.{payload}".
// The API is form-encoded on the way in, JSON on the way out.
type CardProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewCardProvider(cfg config.ProviderConfig) *CardProvider {
	return &CardProvider{
		baseURL: cfg.BaseURL,
		token:   cfg.AccessToken,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *CardProvider) Name() string { return CardName }

type cardObject struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (p *CardProvider) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	form := url.Values{}
	form.Set("email", params.Email)
	form.Set("name", params.Name)

	var resp cardObject
	if err := p.do(ctx, http.MethodPost, "/v1/customers", form, &resp); err != nil {
		return nil, err
	}
	return &Customer{ID: resp.ID, Email: resp.Email, Name: resp.Name}, nil
}

func (p *CardProvider) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var resp cardObject
	if err := p.do(ctx, http.MethodGet, "/v1/customers/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &Customer{ID: resp.ID, Email: resp.Email, Name: resp.Name}, nil
}

// CreateMandate sets up the recurring authorization (a setup intent in the
// provider's terms).
func (p *CardProvider) CreateMandate(ctx context.Context, params MandateParams) (*MandateRef, error) {
	form := url.Values{}
	form.Set("customer", params.CustomerID)
	form.Set("payment_method_types[]", params.Scheme)

	var resp cardObject
	if err := p.do(ctx, http.MethodPost, "/v1/setup_intents", form, &resp); err != nil {
		return nil, err
	}
	return &MandateRef{ID: resp.ID, Status: resp.Status}, nil
}

func (p *CardProvider) GetMandate(ctx context.Context, id string) (*MandateRef, error) {
	var resp cardObject
	if err := p.do(ctx, http.MethodGet, "/v1/setup_intents/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &MandateRef{ID: resp.ID, Status: resp.Status}, nil
}

func (p *CardProvider) CancelMandate(ctx context.Context, id string) error {
	return p.do(ctx, http.MethodPost, "/v1/setup_intents/"+id+"/cancel", nil, nil)
}

func (p *CardProvider) CreatePayment(ctx context.Context, params PaymentParams) (*PaymentRef, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount.Mul(minorUnits).IntPart(), 10))
	form.Set("currency", strings.ToLower(params.Currency))
	form.Set("customer", params.CustomerID)
	form.Set("description", params.Description)
	if params.MandateID != "" {
		form.Set("payment_method", params.MandateID)
		form.Set("off_session", "true")
		form.Set("confirm", "true")
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var resp cardObject
	if err := p.do(ctx, http.MethodPost, "/v1/payment_intents", form, &resp); err != nil {
		return nil, err
	}
	return cardPaymentRef(resp), nil
}

func (p *CardProvider) GetPayment(ctx context.Context, id string) (*PaymentRef, error) {
	var resp cardObject
	if err := p.do(ctx, http.MethodGet, "/v1/payment_intents/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return cardPaymentRef(resp), nil
}

func (p *CardProvider) CancelPayment(ctx context.Context, id string) error {
	return p.do(ctx, http.MethodPost, "/v1/payment_intents/"+id+"/cancel", nil, nil)
}

func (p *CardProvider) CreateRefund(ctx context.Context, params RefundParams) (*RefundRef, error) {
	form := url.Values{}
	form.Set("payment_intent", params.PaymentID)
	form.Set("amount", strconv.FormatInt(params.Amount.Mul(minorUnits).IntPart(), 10))

	var resp cardObject
	if err := p.do(ctx, http.MethodPost, "/v1/refunds", form, &resp); err != nil {
		return nil, err
	}
	return &RefundRef{ID: resp.ID, PaymentID: params.PaymentID, Amount: fromMinorUnits(resp.Amount)}, nil
}

// VerifyWebhookSignature parses the "t=...,v1=..." header and checks the
// HMAC-SHA256 digest of "{timestamp}.{payload}".
func (p *CardProvider) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	timestamp, provided := parseSignatureHeader(signature)
	if timestamp == "" || provided == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func parseSignatureHeader(header string) (timestamp, signature string) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signature = kv[1]
		}
	}
	return timestamp, signature
}

type cardEventEnvelope struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			ID     string `json:"id"`
			Object string `json:"object"`
		} `json:"object"`
	} `json:"data"`
}

// ParseWebhookEvents decodes the provider's single-event envelope. The
// event type is "<object>.<action>", e.g. "payment_intent.succeeded".
func (p *CardProvider) ParseWebhookEvents(payload []byte) ([]Event, error) {
	var envelope cardEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	object, action := splitEventType(envelope.Type)

	return []Event{{
		ID:           envelope.ID,
		CreatedAt:    time.Unix(envelope.Created, 0).UTC(),
		ResourceType: cardResourceType(object),
		Action:       action,
		ProviderRef:  envelope.Data.Object.ID,
	}}, nil
}

func splitEventType(eventType string) (object, action string) {
	idx := strings.LastIndex(eventType, ".")
	if idx < 0 {
		return eventType, ""
	}
	return eventType[:idx], eventType[idx+1:]
}

func cardResourceType(object string) string {
	switch object {
	case "payment_intent", "charge":
		return ResourcePayments
	case "setup_intent", "mandate":
		return ResourceMandates
	case "refund":
		return ResourceRefunds
	case "payout":
		return ResourcePayouts
	}
	return object
}

// MapPaymentStatus translates the provider's intent statuses and webhook
// actions.
func (p *CardProvider) MapPaymentStatus(status string) (domain.PaymentStatus, bool) {
	switch status {
	case "requires_payment_method", "requires_confirmation", "requires_action", "created":
		return domain.PaymentPending, true
	case "processing":
		return domain.PaymentSubmitted, true
	case "succeeded", "confirmed":
		return domain.PaymentSettled, true
	case "paid", "paid_out":
		return domain.PaymentPaidOut, true
	case "canceled", "cancelled":
		return domain.PaymentCancelled, true
	case "payment_failed", "failed":
		return domain.PaymentFailed, true
	}
	return domain.PaymentPending, false
}

func (p *CardProvider) MapMandateStatus(status string) (domain.MandateStatus, bool) {
	switch status {
	case "requires_action", "requires_confirmation":
		return domain.MandatePendingApproval, true
	case "requires_payment_method", "created":
		return domain.MandatePendingSubmission, true
	case "processing":
		return domain.MandateSubmitted, true
	case "succeeded", "active", "updated":
		return domain.MandateActive, true
	case "failed":
		return domain.MandateFailed, true
	case "canceled", "cancelled", "inactive":
		return domain.MandateCancelled, true
	}
	return domain.MandatePendingSubmission, false
}

func (p *CardProvider) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("path", path).Error("Card provider call failed")
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		logger.GetLogger().WithField("status", resp.StatusCode).WithField("path", path).Error("Card provider returned error")
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

func cardPaymentRef(o cardObject) *PaymentRef {
	return &PaymentRef{
		ID:       o.ID,
		Status:   o.Status,
		Amount:   fromMinorUnits(o.Amount),
		Currency: o.Currency,
	}
}
