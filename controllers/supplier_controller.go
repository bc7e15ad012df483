package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"experience-backend/middleware"
	"experience-backend/models"
	"experience-backend/services"
	"experience-backend/utils"
)

// SupplierController is the dashboard API. Every route runs behind
// middleware.SupplierAuth, and services check ownership with the supplier id.
type SupplierController struct {
	Reservations  *services.ReservationService
	Sessions      *services.SessionService
	Approvals     *services.AutoApprovalService
	Bookings      *services.BookingService
	Distributions *services.DistributionService
}

func NewSupplierController(
	reservations *services.ReservationService,
	sessions *services.SessionService,
	approvals *services.AutoApprovalService,
	bookings *services.BookingService,
	distributions *services.DistributionService,
) *SupplierController {
	return &SupplierController{
		Reservations:  reservations,
		Sessions:      sessions,
		Approvals:     approvals,
		Bookings:      bookings,
		Distributions: distributions,
	}
}

func supplierID(c *gin.Context) string {
	return c.GetString(middleware.SupplierIDKey)
}

type acceptRequest struct {
	SlotIndex *int `json:"slot_index"`
}

type declineRequest struct {
	Message string `json:"message"`
}

type proposeRequest struct {
	Slots   []models.ProposedSlot `json:"slots" binding:"required"`
	Message string                `json:"message"`
}

type distributionRequest struct {
	ExperienceID string `json:"experience_id" binding:"required"`
	ChannelID    string `json:"channel_id" binding:"required"`
}

// bindOptional binds JSON only when a body was sent.
func bindOptional(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func (sc *SupplierController) AcceptReservation(c *gin.Context) {
	var req acceptRequest
	if !bindOptional(c, &req) {
		return
	}
	res, err := sc.Reservations.Accept(c.Request.Context(), c.Param("id"), supplierID(c), req.SlotIndex)
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Reservation)
}

func (sc *SupplierController) DeclineReservation(c *gin.Context) {
	var req declineRequest
	if !bindOptional(c, &req) {
		return
	}
	res, err := sc.Reservations.Decline(c.Request.Context(), c.Param("id"), supplierID(c), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Reservation)
}

func (sc *SupplierController) ProposeReservation(c *gin.Context) {
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := sc.Reservations.Propose(c.Request.Context(), c.Param("id"), supplierID(c), req.Slots, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Reservation)
}

func (sc *SupplierController) CreateSession(c *gin.Context) {
	var in services.CreateSessionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	session, err := sc.Sessions.CreateSession(c.Request.Context(), supplierID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, session)
}

func (sc *SupplierController) CancelSession(c *gin.Context) {
	if err := sc.Sessions.CancelSession(c.Request.Context(), supplierID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"id": c.Param("id"), "status": models.SessionCancelled})
}

// ConfirmSession approves a group session's waiting reservations below the minimum.
func (sc *SupplierController) ConfirmSession(c *gin.Context) {
	res, err := sc.Approvals.ApproveSession(c.Request.Context(), c.Param("id"), supplierID(c), true)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, res)
}

func (sc *SupplierController) CancelBooking(c *gin.Context) {
	res, err := sc.Bookings.CancelBySupplier(c.Request.Context(), c.Param("id"), supplierID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Booking)
}

func (sc *SupplierController) CompleteBooking(c *gin.Context) {
	res, err := sc.Bookings.Complete(c.Request.Context(), c.Param("id"), supplierID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Booking)
}

func (sc *SupplierController) ReportNoExperience(c *gin.Context) {
	res, err := sc.Bookings.ReportNoExperience(c.Request.Context(), c.Param("id"), supplierID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondResult(c, res.AlreadyProcessed, res.Booking)
}

func (sc *SupplierController) CreateDistribution(c *gin.Context) {
	var req distributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := sc.Distributions.Create(c.Request.Context(), supplierID(c), req.ExperienceID, req.ChannelID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, d)
}
