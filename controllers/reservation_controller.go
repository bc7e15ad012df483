package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"experience-backend/models"
	"experience-backend/services"
	"experience-backend/utils"
)

// ReservationController serves the guest-facing embed API.
type ReservationController struct {
	Reservations *services.ReservationService
	Sessions     *services.SessionService
}

func NewReservationController(reservations *services.ReservationService, sessions *services.SessionService) *ReservationController {
	return &ReservationController{Reservations: reservations, Sessions: sessions}
}

type quoteRequest struct {
	SessionID    string `json:"session_id"`
	Participants int    `json:"participants" binding:"required"`
	Days         int    `json:"days"`
}

func (rc *ReservationController) GetSessions(c *gin.Context) {
	sessions, err := rc.Sessions.GetAvailableSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, sessions)
}

func (rc *ReservationController) Quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	q, err := rc.Reservations.Quote(c.Request.Context(), c.Param("id"), req.SessionID, req.Participants, req.Days)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, q)
}

func (rc *ReservationController) Create(c *gin.Context) {
	var in services.CreateReservationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	r, err := rc.Reservations.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, r)
}

// Get returns a reservation by id with the guest's email masked.
func (rc *ReservationController) Get(c *gin.Context) {
	r, err := rc.Reservations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, publicReservation(r))
}

func publicReservation(r models.Reservation) models.Reservation {
	r.GuestEmail = utils.MaskEmail(r.GuestEmail)
	r.GuestPhone = ""
	return r
}
