package controllers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"experience-backend/models"
	"experience-backend/protocols"
	"experience-backend/repository"
	"experience-backend/services"
	"experience-backend/utils"
)

const (
	SignatureHeader     = "Payment-Signature"
	maxWebhookBodyBytes = 1 << 20
)

// WebhookController receives payment provider events. Nothing in the body is
// trusted before the signature is verified.
type WebhookController struct {
	Payments   protocols.PaymentGateway
	Dedup      protocols.WebhookDeduper
	Events     repository.WebhookEventRepository
	Settlement *services.SettlementService
}

func NewWebhookController(payments protocols.PaymentGateway, dedup protocols.WebhookDeduper,
	events repository.WebhookEventRepository, settlement *services.SettlementService) *WebhookController {
	return &WebhookController{Payments: payments, Dedup: dedup, Events: events, Settlement: settlement}
}

func (wc *WebhookController) HandlePayment(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "error.invalidPayload", "could not read body")
		return
	}
	ev, err := wc.Payments.VerifyWebhook(payload, c.GetHeader(SignatureHeader))
	if err != nil {
		log.Printf("webhook: rejected delivery: %v", err)
		utils.JSONError(c, http.StatusBadRequest, "error.invalidSignature", "invalid webhook signature")
		return
	}
	ctx := c.Request.Context()

	fresh, err := wc.Dedup.Reserve(ctx, ev.ID)
	if err != nil {
		// The booking guards still make a re-delivery harmless.
		log.Printf("webhook %s: dedup unavailable: %v", ev.ID, err)
		fresh = true
	}
	if !fresh {
		c.JSON(http.StatusOK, gin.H{"received": true, "status": "already_processed"})
		return
	}

	res, err := wc.Settlement.Dispatch(ctx, ev)
	if err != nil && !permanent(err) {
		log.Printf("webhook %s (%s): %v", ev.ID, ev.Type, err)
		if relErr := wc.Dedup.Release(ctx, ev.ID); relErr != nil {
			log.Printf("webhook %s: release: %v", ev.ID, relErr)
		}
		utils.JSONError(c, http.StatusInternalServerError, "error.webhookFailed", "event could not be processed")
		return
	}
	if err != nil {
		log.Printf("webhook %s (%s) dropped: %v", ev.ID, ev.Type, err)
	}

	wc.record(ctx, ev, payload)
	if err := wc.Dedup.MarkDone(ctx, ev.ID); err != nil {
		log.Printf("webhook %s: mark done: %v", ev.ID, err)
	}

	status := "processed"
	switch {
	case err != nil || res.Ignored:
		status = "ignored"
	case res.AlreadyProcessed:
		status = "already_processed"
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "status": status})
}

// permanent errors will not improve on retry, so the event is acknowledged.
func permanent(err error) bool {
	return errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrNotFound)
}

func (wc *WebhookController) record(ctx context.Context, ev protocols.PaymentEvent, payload []byte) {
	err := wc.Events.RecordWebhookEvent(ctx, &models.WebhookEvent{
		ID:         ev.ID,
		Type:       ev.Type,
		Payload:    datatypes.JSON(payload),
		ReceivedAt: time.Now(),
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicate) {
		log.Printf("webhook %s: record: %v", ev.ID, err)
	}
}
