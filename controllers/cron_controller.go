package controllers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"experience-backend/services"
	"experience-backend/utils"
)

// CronController exposes the sweeps to the external scheduler.
type CronController struct {
	Expiration *services.ExpirationService
	Bookings   *services.BookingService
	Payouts    *services.PayoutService
}

func NewCronController(expiration *services.ExpirationService, bookings *services.BookingService, payouts *services.PayoutService) *CronController {
	return &CronController{Expiration: expiration, Bookings: bookings, Payouts: payouts}
}

type sweepFunc func(ctx context.Context) (services.SweepResult, error)

func runSweep(name string, sweep sweepFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := sweep(c.Request.Context())
		if err != nil {
			log.Printf("cron %s: %v", name, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"code": "error.sweepFailed", "message": err.Error()},
				"data":  res,
			})
			return
		}
		log.Printf("cron %s: processed=%d expired=%d completed=%d sent=%d skipped=%d failed=%d",
			name, res.Processed, res.Expired, res.Completed, res.Sent, res.Skipped, res.Failed)
		utils.JSONSuccess(c, http.StatusOK, res)
	}
}

func (cc *CronController) ExpirePendingRequests() gin.HandlerFunc {
	return runSweep("expire-pending-requests", cc.Expiration.ExpirePendingRequests)
}

func (cc *CronController) ExpireUnpaidApprovals() gin.HandlerFunc {
	return runSweep("expire-unpaid-approvals", cc.Expiration.ExpireUnpaidApprovals)
}

func (cc *CronController) AutoCompletePast() gin.HandlerFunc {
	return runSweep("auto-complete-past-experiences", cc.Bookings.AutoCompletePast)
}

func (cc *CronController) SendCompletionChecks() gin.HandlerFunc {
	return runSweep("send-completion-check", cc.Bookings.SendCompletionChecks)
}

func (cc *CronController) CreatePayouts() gin.HandlerFunc {
	return runSweep("create-payouts", cc.Payouts.CreateMonthlyPayouts)
}
