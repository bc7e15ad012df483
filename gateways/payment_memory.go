package gateways

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"experience-backend/protocols"
)

// MemoryPaymentGateway stands in for the provider when PAYMENT_API_URL is unset.
// It records every call so tests can assert on them.
type MemoryPaymentGateway struct {
	mu            sync.Mutex
	webhookSecret string
	now           func() time.Time
	seq           int

	Links     []protocols.PaymentLinkRequest
	Refunds   []string
	Transfers []protocols.TransferRequest
	refunded  map[string]bool

	LinkErr     error
	RefundErr   error
	TransferErr error
}

func NewMemoryPaymentGateway(webhookSecret string) *MemoryPaymentGateway {
	return &MemoryPaymentGateway{webhookSecret: webhookSecret, now: time.Now, refunded: map[string]bool{}}
}

func (g *MemoryPaymentGateway) CreatePaymentLink(_ context.Context, req protocols.PaymentLinkRequest) (protocols.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.LinkErr != nil {
		return protocols.PaymentLink{}, g.LinkErr
	}
	g.seq++
	g.Links = append(g.Links, req)
	id := fmt.Sprintf("link_%d", g.seq)
	log.Printf("[MOCK PAYMENT] link %s reservation:%s amount:%d %s", id, req.ReservationID, req.AmountCents, req.Currency)
	return protocols.PaymentLink{ID: id, URL: "https://pay.local/" + id}, nil
}

func (g *MemoryPaymentGateway) CreateRefund(_ context.Context, chargeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RefundErr != nil {
		return g.RefundErr
	}
	if g.refunded[chargeID] {
		return protocols.ErrAlreadyRefunded
	}
	g.refunded[chargeID] = true
	g.Refunds = append(g.Refunds, chargeID)
	log.Printf("[MOCK PAYMENT] refund charge:%s", chargeID)
	return nil
}

// MarkRefunded simulates a refund issued from the provider dashboard.
func (g *MemoryPaymentGateway) MarkRefunded(chargeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunded[chargeID] = true
}

func (g *MemoryPaymentGateway) CreateTransfer(_ context.Context, req protocols.TransferRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.TransferErr != nil {
		return "", g.TransferErr
	}
	for i, t := range g.Transfers {
		if t.IdempotencyKey == req.IdempotencyKey {
			return fmt.Sprintf("tr_%d", i+1), nil
		}
	}
	g.Transfers = append(g.Transfers, req)
	log.Printf("[MOCK PAYMENT] transfer %d %s to %s", req.AmountCents, req.Currency, req.DestinationAccount)
	return fmt.Sprintf("tr_%d", len(g.Transfers)), nil
}

func (g *MemoryPaymentGateway) VerifyWebhook(payload []byte, signatureHeader string) (protocols.PaymentEvent, error) {
	if err := verifyWebhookSignature(g.webhookSecret, payload, signatureHeader, g.now()); err != nil {
		return protocols.PaymentEvent{}, err
	}
	return decodeWebhookEvent(payload)
}

var _ protocols.PaymentGateway = (*MemoryPaymentGateway)(nil)
var _ protocols.PaymentGateway = (*HTTPPaymentGateway)(nil)
