package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"experience-backend/models"
	"experience-backend/protocols"
	"experience-backend/utils"
)

// Notifier is the single outbound notification port. Every method is best-effort:
// failures are logged and counted, never returned.
type Notifier struct {
	mailer      protocols.Mailer
	events      protocols.EventPublisher
	signer      *utils.ActionSigner
	frontendURL string
	now         func() time.Time
}

func NewNotifier(mailer protocols.Mailer, events protocols.EventPublisher, signer *utils.ActionSigner, frontendURL string, opts ...Option) *Notifier {
	o := newOptions(opts)
	return &Notifier{
		mailer:      mailer,
		events:      events,
		signer:      signer,
		frontendURL: frontendURL,
		now:         o.now,
	}
}

func (n *Notifier) send(ctx context.Context, to, subject, body string) {
	if n.mailer == nil || to == "" {
		return
	}
	if err := n.mailer.Send(ctx, to, subject, body); err != nil {
		notificationFailures.WithLabelValues("email").Inc()
		log.Printf("notify: email %q to %s failed: %v", subject, utils.MaskEmail(to), err)
	}
}

func (n *Notifier) publish(ctx context.Context, typ, id string, data map[string]interface{}) {
	if n.events == nil {
		return
	}
	ev := protocols.DomainEvent{Type: typ, EntityID: id, OccurredAt: n.now(), Data: data}
	if err := n.events.Publish(ctx, ev); err != nil {
		notificationFailures.WithLabelValues("event").Inc()
		log.Printf("notify: publish %s %s failed: %v", typ, id, err)
	}
}

func (n *Notifier) actionLink(path, id, action string) string {
	token, err := n.signer.Sign(id, action)
	if err != nil {
		log.Printf("notify: sign %s for %s failed: %v", action, id, err)
		return ""
	}
	return utils.BuildActionLink(n.frontendURL, path, token)
}

func page(title string, paragraphs ...string) string {
	var sb strings.Builder
	sb.WriteString("<!doctype html><html><body>")
	sb.WriteString("<h2>" + html.EscapeString(title) + "</h2>")
	for _, p := range paragraphs {
		sb.WriteString("<p>" + p + "</p>")
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func button(label, href string) string {
	if href == "" {
		return ""
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(label))
}

func slotText(r models.Reservation) string {
	if r.RequestedDate != nil && r.RequestedTime != nil {
		return *r.RequestedDate + " " + *r.RequestedTime
	}
	return ""
}

// ReservationRequested asks the supplier to decide on a custom request.
func (n *Notifier) ReservationRequested(ctx context.Context, r models.Reservation, exp models.Experience, sup models.Supplier) {
	base := "/actions/reservations/" + r.ID
	n.send(ctx, sup.Email, "New request: "+exp.Title, page("New reservation request",
		html.EscapeString(fmt.Sprintf("%s asks for %s on %s for %d participant(s), total %s.",
			r.GuestName, exp.Title, slotText(r), r.Participants, utils.FormatCents(r.TotalCents, r.Currency))),
		button("Accept", n.actionLink(base+"/accept", r.ID, utils.ActionAcceptReservation)),
		button("Decline", n.actionLink(base+"/decline", r.ID, utils.ActionDeclineReservation)),
	))
	n.send(ctx, r.GuestEmail, "We received your request", page("Request received",
		html.EscapeString(fmt.Sprintf("Your request for %s on %s was sent to the organiser.", exp.Title, slotText(r)))))
	n.publish(ctx, protocols.EventReservationCreated, r.ID, map[string]interface{}{"status": r.Status, "experience_id": r.ExperienceID})
}

// ReservationPending tells a guest their spot waits for the session minimum.
func (n *Notifier) ReservationPending(ctx context.Context, r models.Reservation, exp models.Experience) {
	n.send(ctx, r.GuestEmail, "Your spot is reserved", page("Waiting for more participants",
		html.EscapeString(fmt.Sprintf("Your reservation for %s is confirmed once the session reaches its minimum group size. We will email you a payment link.", exp.Title))))
	n.publish(ctx, protocols.EventReservationCreated, r.ID, map[string]interface{}{"status": r.Status, "session_id": r.SessionID})
}

// ReservationApproved sends the guest the payment link.
func (n *Notifier) ReservationApproved(ctx context.Context, r models.Reservation, exp models.Experience) {
	n.send(ctx, r.GuestEmail, "Complete your booking: "+exp.Title, page("Your reservation is approved",
		html.EscapeString(fmt.Sprintf("Pay %s to confirm %s.", utils.FormatCents(r.TotalCents, r.Currency), exp.Title)),
		button("Pay now", r.PaymentURL),
	))
	n.publish(ctx, protocols.EventReservationApproved, r.ID, map[string]interface{}{"payment_link_id": r.PaymentLinkID})
}

func (n *Notifier) ReservationDeclined(ctx context.Context, r models.Reservation, exp models.Experience) {
	msg := "The organiser could not accommodate your request."
	if r.SupplierMessage != "" {
		msg = r.SupplierMessage
	}
	n.send(ctx, r.GuestEmail, "Update on your request: "+exp.Title, page("Request declined", html.EscapeString(msg)))
	n.publish(ctx, protocols.EventReservationDeclined, r.ID, nil)
}

// ReservationProposed lists the alternative slots with one respond link per slot.
func (n *Notifier) ReservationProposed(ctx context.Context, r models.Reservation, exp models.Experience) {
	token, err := n.signer.Sign(r.ID, utils.ActionRespondProposal)
	if err != nil {
		log.Printf("notify: sign proposal for %s failed: %v", r.ID, err)
	}
	base := utils.BuildActionLink(n.frontendURL, "/actions/reservations/"+r.ID+"/respond", token)
	parts := []string{html.EscapeString(fmt.Sprintf("The organiser of %s suggested other times:", exp.Title))}
	if r.SupplierMessage != "" {
		parts = append(parts, html.EscapeString(r.SupplierMessage))
	}
	for i, s := range r.ProposedSlots {
		parts = append(parts, button(s.Date+" "+s.Time, fmt.Sprintf("%s&slot=%d", base, i)))
	}
	parts = append(parts, button("None of these work", base+"&decline=1"))
	n.send(ctx, r.GuestEmail, "New times proposed: "+exp.Title, page("Alternative times", parts...))
	n.publish(ctx, protocols.EventReservationProposed, r.ID, map[string]interface{}{"slots": len(r.ProposedSlots)})
}

// ReservationExpired informs the guest, and the supplier when one is given.
func (n *Notifier) ReservationExpired(ctx context.Context, r models.Reservation, exp models.Experience, sup *models.Supplier) {
	n.send(ctx, r.GuestEmail, "Your reservation expired", page("Reservation expired",
		html.EscapeString(fmt.Sprintf("Your reservation for %s expired.", exp.Title))))
	if sup != nil {
		n.send(ctx, sup.Email, "Unpaid reservation expired", page("Reservation expired",
			html.EscapeString(fmt.Sprintf("The reservation of %s for %s was not paid in time and has been released.", r.GuestName, exp.Title))))
	}
	n.publish(ctx, protocols.EventReservationExpired, r.ID, nil)
}

func (n *Notifier) PaymentFailed(ctx context.Context, r models.Reservation, reason string) {
	n.send(ctx, r.GuestEmail, "Payment failed", page("Payment failed",
		html.EscapeString("Your payment did not go through. "+reason),
		button("Try again", r.PaymentURL)))
}

// LatePaymentRefunded tells the guest a payment arrived after their slot was given away.
func (n *Notifier) LatePaymentRefunded(ctx context.Context, r models.Reservation, exp models.Experience) {
	n.send(ctx, r.GuestEmail, "Your payment was refunded", page("Payment refunded",
		html.EscapeString(fmt.Sprintf("Your payment for %s arrived after the reservation expired and the slot is no longer available. We refunded %s.",
			exp.Title, utils.FormatCents(r.TotalCents, r.Currency)))))
	n.publish(ctx, protocols.EventPaymentRefunded, r.ID, map[string]interface{}{"session_id": r.SessionID})
}

// BookingConfirmed sends the guest a cancel link and tells the supplier.
func (n *Notifier) BookingConfirmed(ctx context.Context, b models.Booking, exp models.Experience, sup models.Supplier) {
	n.send(ctx, b.GuestEmail, "Booking confirmed: "+exp.Title, page("You're booked",
		html.EscapeString(fmt.Sprintf("%s on %s %s for %d participant(s).", exp.Title, b.ExperienceDate, b.ExperienceTime, b.Participants)),
		button("Cancel booking", n.actionLink("/actions/bookings/"+b.ID+"/cancel", b.ID, utils.ActionCancelBooking)),
	))
	n.send(ctx, sup.Email, "New booking: "+exp.Title, page("New booking",
		html.EscapeString(fmt.Sprintf("%s booked %s on %s %s. Your share: %s.", b.GuestName, exp.Title, b.ExperienceDate, b.ExperienceTime,
			utils.FormatCents(b.SupplierAmountCents, b.Currency)))))
	n.publish(ctx, protocols.EventBookingConfirmed, b.ID, map[string]interface{}{
		"reservation_id": b.ReservationID, "total_amount_cents": b.TotalAmountCents, "channel_id": b.ChannelID,
	})
}

func (n *Notifier) BookingCancelled(ctx context.Context, b models.Booking, exp models.Experience, sup models.Supplier, reason string) {
	text := html.EscapeString(fmt.Sprintf("The booking for %s on %s was cancelled (%s).", exp.Title, b.ExperienceDate, reason))
	n.send(ctx, b.GuestEmail, "Booking cancelled: "+exp.Title, page("Booking cancelled", text))
	n.send(ctx, sup.Email, "Booking cancelled: "+exp.Title, page("Booking cancelled", text))
	n.publish(ctx, protocols.EventBookingCancelled, b.ID, map[string]interface{}{"reason": reason})
}

func (n *Notifier) BookingCompleted(ctx context.Context, b models.Booking) {
	n.publish(ctx, protocols.EventBookingCompleted, b.ID, map[string]interface{}{"transfer_id": b.TransferID})
}

// CompletionCheck asks the supplier whether the experience took place.
func (n *Notifier) CompletionCheck(ctx context.Context, b models.Booking, exp models.Experience, sup models.Supplier) {
	base := "/actions/bookings/" + b.ID
	n.send(ctx, sup.Email, "Did it happen? "+exp.Title, page("How did it go?",
		html.EscapeString(fmt.Sprintf("Please confirm %s with %s on %s took place.", exp.Title, b.GuestName, b.ExperienceDate)),
		button("It happened", n.actionLink(base+"/complete", b.ID, utils.ActionCompleteBooking)),
		button("It did not happen", n.actionLink(base+"/no-experience", b.ID, utils.ActionNoExperience)),
	))
}

func (n *Notifier) PayoutCreated(ctx context.Context, p models.Payout, ch models.Channel) {
	n.send(ctx, ch.Email, "Payout statement", page("Payout",
		html.EscapeString(fmt.Sprintf("%d booking(s) between %s and %s: %s.", p.BookingCount, p.PeriodFrom, p.PeriodTo, utils.FormatCents(p.AmountCents, p.Currency)))))
	n.publish(ctx, protocols.EventPayoutCreated, p.ID, map[string]interface{}{"channel_id": p.ChannelID, "amount_cents": p.AmountCents})
}
