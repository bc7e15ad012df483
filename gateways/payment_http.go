package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"experience-backend/protocols"
)

// HTTPPaymentGateway talks to the payment provider's REST API.
type HTTPPaymentGateway struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
	now           func() time.Time
}

func NewHTTPPaymentGateway(baseURL, apiKey, webhookSecret string) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 15 * time.Second},
		now:           time.Now,
	}
}

type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %d %s: %s", e.Status, e.Code, e.Message)
}

func (g *HTTPPaymentGateway) post(ctx context.Context, path, idempotencyKey string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment provider request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &ProviderError{Status: resp.StatusCode, Code: e.Error.Code, Message: e.Error.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (g *HTTPPaymentGateway) CreatePaymentLink(ctx context.Context, req protocols.PaymentLinkRequest) (protocols.PaymentLink, error) {
	body := map[string]interface{}{
		"amount":      req.AmountCents,
		"currency":    strings.ToLower(req.Currency),
		"description": req.Description,
		"success_url": req.SuccessURL,
		"cancel_url":  req.CancelURL,
		"metadata":    map[string]string{"reservation_id": req.ReservationID},
	}
	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := g.post(ctx, "/v1/checkout/sessions", "link-"+req.ReservationID, body, &out); err != nil {
		return protocols.PaymentLink{}, err
	}
	return protocols.PaymentLink{ID: out.ID, URL: out.URL}, nil
}

func (g *HTTPPaymentGateway) CreateRefund(ctx context.Context, chargeID string) error {
	err := g.post(ctx, "/v1/refunds", "refund-"+chargeID, map[string]string{"charge": chargeID}, nil)
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code == "charge_already_refunded" {
		return protocols.ErrAlreadyRefunded
	}
	return err
}

func (g *HTTPPaymentGateway) CreateTransfer(ctx context.Context, req protocols.TransferRequest) (string, error) {
	body := map[string]interface{}{
		"amount":      req.AmountCents,
		"currency":    strings.ToLower(req.Currency),
		"destination": req.DestinationAccount,
		"metadata":    map[string]string{"booking_id": req.BookingID},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := g.post(ctx, "/v1/transfers", req.IdempotencyKey, body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (g *HTTPPaymentGateway) VerifyWebhook(payload []byte, signatureHeader string) (protocols.PaymentEvent, error) {
	if err := verifyWebhookSignature(g.webhookSecret, payload, signatureHeader, g.now()); err != nil {
		return protocols.PaymentEvent{}, err
	}
	return decodeWebhookEvent(payload)
}
