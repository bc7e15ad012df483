package protocols

import (
	"context"
	"errors"
)

// Webhook event types the settlement handler dispatches on.
const (
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventChargeRefunded    = "charge.refunded"
	EventAccountUpdated    = "account.updated"
	EventTransferCreated   = "transfer.created"
)

var (
	ErrAlreadyRefunded  = errors.New("charge already refunded")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

type PaymentLinkRequest struct {
	ReservationID string
	AmountCents   int64
	Currency      string
	Description   string
	SuccessURL    string
	CancelURL     string
}

type PaymentLink struct {
	ID  string
	URL string
}

type TransferRequest struct {
	AmountCents        int64
	Currency           string
	DestinationAccount string
	IdempotencyKey     string
	BookingID          string
}

// PaymentEvent is a verified webhook delivery flattened to the fields we use.
type PaymentEvent struct {
	ID              string
	Type            string
	ReservationID   string
	BookingID       string
	AmountCents     int64
	Currency        string
	PaymentIntentID string
	ChargeID        string
	AccountID       string
	PayoutsEnabled  bool
	TransferID      string
	FailureMessage  string
	Raw             []byte
}

type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error)
	// CreateRefund refunds a charge in full; ErrAlreadyRefunded when it was refunded before.
	CreateRefund(ctx context.Context, chargeID string) error
	CreateTransfer(ctx context.Context, req TransferRequest) (string, error)
	// VerifyWebhook checks the signature header and decodes the event.
	VerifyWebhook(payload []byte, signatureHeader string) (PaymentEvent, error)
}
