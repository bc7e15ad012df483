package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"experience-backend/services"
	"experience-backend/utils"
)

// ActionController handles the links sent by email. Each call carries an
// action token bound to the entity id and the action.
type ActionController struct {
	Signer       *utils.ActionSigner
	Reservations *services.ReservationService
	Bookings     *services.BookingService
}

func NewActionController(signer *utils.ActionSigner, reservations *services.ReservationService, bookings *services.BookingService) *ActionController {
	return &ActionController{Signer: signer, Reservations: reservations, Bookings: bookings}
}

type actionBody struct {
	Message   string `json:"message"`
	SlotIndex *int   `json:"slot_index"`
	Decline   bool   `json:"decline"`
}

// authorize verifies ?token= against the path id and the expected action.
func (ac *ActionController) authorize(c *gin.Context, action string) (string, bool) {
	id := c.Param("id")
	if _, err := ac.Signer.Verify(c.Query("token"), id, action); err != nil {
		respondForbidden(c)
		return "", false
	}
	return id, true
}

// body reads the optional JSON body; query parameters from the email links win.
func body(c *gin.Context) (actionBody, error) {
	var b actionBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&b); err != nil {
			return b, err
		}
	}
	if raw := c.Query("slot"); raw != "" {
		i, err := strconv.Atoi(raw)
		if err != nil {
			return b, err
		}
		b.SlotIndex = &i
	}
	if c.Query("decline") == "1" {
		b.Decline = true
	}
	return b, nil
}

func (ac *ActionController) AcceptReservation(c *gin.Context) {
	id, ok := ac.authorize(c, utils.ActionAcceptReservation)
	if !ok {
		return
	}
	b, err := body(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := ac.Reservations.Accept(c.Request.Context(), id, "", b.SlotIndex)
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Reservation)
}

func (ac *ActionController) DeclineReservation(c *gin.Context) {
	id, ok := ac.authorize(c, utils.ActionDeclineReservation)
	if !ok {
		return
	}
	b, err := body(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := ac.Reservations.Decline(c.Request.Context(), id, "", b.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Reservation)
}

// RespondToProposal is the guest picking one of the proposed slots, or none.
func (ac *ActionController) RespondToProposal(c *gin.Context) {
	id, ok := ac.authorize(c, utils.ActionRespondProposal)
	if !ok {
		return
	}
	b, err := body(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	slot := -1
	if b.SlotIndex != nil {
		slot = *b.SlotIndex
	}
	if !b.Decline && b.SlotIndex == nil {
		respondError(c, services.ErrInvalidSlot)
		return
	}
	res, err := ac.Reservations.RespondToProposal(c.Request.Context(), id, !b.Decline, slot)
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Reservation)
}

func (ac *ActionController) CancelBooking(c *gin.Context) {
	id, ok := ac.authorize(c, utils.ActionCancelBooking)
	if !ok {
		return
	}
	res, err := ac.Bookings.CancelByGuest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Booking)
}

func (ac *ActionController) CompleteBooking(c *gin.Context) {
	id, ok := ac.authorize(c, utils.ActionCompleteBooking)
	if !ok {
		return
	}
	res, err := ac.Bookings.Complete(c.Request.Context(), id, "")
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Booking)
}

func (ac *ActionController) ReportNoExperience(c *gin.Context) {
	id, ok := ac.authorize(c, utils.ActionNoExperience)
	if !ok {
		return
	}
	res, err := ac.Bookings.ReportNoExperience(c.Request.Context(), id, "")
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Booking)
}
