package gateways

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"experience-backend/protocols"
)

const signatureTolerance = 5 * time.Minute

// SignWebhook builds the "t=<unix>,v1=<hex>" header for payload.
func SignWebhook(secret string, payload []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", t, webhookMAC(secret, t, payload))
}

func webhookMAC(secret, t string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(t))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyWebhookSignature(secret string, payload []byte, header string, now time.Time) error {
	if secret == "" || header == "" {
		return protocols.ErrInvalidSignature
	}
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || len(sigs) == 0 {
		return protocols.ErrInvalidSignature
	}
	if d := now.Sub(time.Unix(unix, 0)); d > signatureTolerance || d < -signatureTolerance {
		return protocols.ErrInvalidSignature
	}
	want, _ := hex.DecodeString(webhookMAC(secret, ts, payload))
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err == nil && hmac.Equal(got, want) {
			return nil
		}
	}
	return protocols.ErrInvalidSignature
}

type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object webhookObject `json:"object"`
	} `json:"data"`
}

type webhookObject struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountTotal      int64             `json:"amount_total"`
	Currency         string            `json:"currency"`
	PaymentIntent    string            `json:"payment_intent"`
	LatestCharge     string            `json:"latest_charge"`
	Destination      string            `json:"destination"`
	PayoutsEnabled   bool              `json:"payouts_enabled"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func decodeWebhookEvent(payload []byte) (protocols.PaymentEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return protocols.PaymentEvent{}, fmt.Errorf("decode webhook: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return protocols.PaymentEvent{}, fmt.Errorf("decode webhook: missing id or type")
	}
	obj := env.Data.Object
	ev := protocols.PaymentEvent{
		ID:            env.ID,
		Type:          env.Type,
		Currency:      strings.ToUpper(obj.Currency),
		ReservationID: obj.Metadata["reservation_id"],
		BookingID:     obj.Metadata["booking_id"],
		Raw:           payload,
	}
	switch env.Type {
	case protocols.EventPaymentSucceeded:
		ev.PaymentIntentID = obj.ID
		ev.ChargeID = obj.LatestCharge
		ev.AmountCents = obj.Amount
	case protocols.EventCheckoutCompleted:
		ev.PaymentIntentID = obj.PaymentIntent
		ev.ChargeID = obj.LatestCharge
		ev.AmountCents = obj.AmountTotal
	case protocols.EventPaymentFailed:
		ev.PaymentIntentID = obj.ID
		ev.AmountCents = obj.Amount
		if obj.LastPaymentError != nil {
			ev.FailureMessage = obj.LastPaymentError.Message
		}
	case protocols.EventChargeRefunded:
		ev.ChargeID = obj.ID
		ev.PaymentIntentID = obj.PaymentIntent
		ev.AmountCents = obj.Amount
	case protocols.EventAccountUpdated:
		ev.AccountID = obj.ID
		ev.PayoutsEnabled = obj.PayoutsEnabled
	case protocols.EventTransferCreated:
		ev.TransferID = obj.ID
		ev.AccountID = obj.Destination
		ev.AmountCents = obj.Amount
	}
	return ev, nil
}
