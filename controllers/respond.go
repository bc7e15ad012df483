package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"experience-backend/services"
	"experience-backend/utils"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorTable = []errorMapping{
	{services.ErrNotFound, http.StatusNotFound, "error.notFound"},
	{services.ErrPriceMismatch, http.StatusBadRequest, "error.priceMismatch"},
	{services.ErrInvalidSlot, http.StatusBadRequest, "error.invalidSlot"},
	{services.ErrValidation, http.StatusBadRequest, "error.validation"},
	{services.ErrSessionUnavailable, http.StatusConflict, "error.sessionUnavailable"},
	{services.ErrSupplierNotOnboarded, http.StatusConflict, "error.supplierNotOnboarded"},
	{services.ErrOutsideCancellationWindow, http.StatusUnprocessableEntity, "error.outsideCancellationWindow"},
	{services.ErrNoActiveDistribution, http.StatusUnprocessableEntity, "error.noActiveDistribution"},
	{services.ErrPaymentProvider, http.StatusBadGateway, "error.paymentProvider"},
}

// respondError maps a service error onto the API error shape. Forbidden never
// says why; unknown errors are logged and hidden.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrForbidden) {
		respondForbidden(c)
		return
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			utils.JSONError(c, m.status, m.code, err.Error())
			return
		}
	}
	log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	utils.JSONError(c, http.StatusInternalServerError, "error.internal", "internal server error")
}

func respondForbidden(c *gin.Context) {
	utils.JSONError(c, http.StatusForbidden, "error.forbidden", "forbidden")
}

func badRequest(c *gin.Context, err error) {
	utils.JSONError(c, http.StatusBadRequest, "error.validation", err.Error())
}

// respondResult renders an operation outcome; an already processed one is still a 200.
func respondResult(c *gin.Context, already bool, data interface{}) {
	if already {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "already_processed", "data": data})
		return
	}
	utils.JSONSuccess(c, http.StatusOK, data)
}
