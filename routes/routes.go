package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"experience-backend/controllers"
	"experience-backend/middleware"
)

// Controllers bundles the handlers the router mounts.
type Controllers struct {
	Reservations *controllers.ReservationController
	Actions      *controllers.ActionController
	Supplier     *controllers.SupplierController
	Cron         *controllers.CronController
	Webhooks     *controllers.WebhookController
}

// Secrets are the shared secrets checked by the auth middlewares.
type Secrets struct {
	SupplierJWT string
	Cron        string
}

func parseCorsOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"*"}
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func SetupRouter(ctl Controllers, secrets Secrets, corsOrigins string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Tracing(), middleware.Metrics(), middleware.Logger())

	origins := parseCorsOrigins(corsOrigins)
	allowCredentials := true
	for _, origin := range origins {
		if origin == "*" {
			allowCredentials = false
			break
		}
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: allowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		experiences := api.Group("/experiences")
		{
			experiences.GET("/:id/sessions", ctl.Reservations.GetSessions)
			experiences.POST("/:id/quote", ctl.Reservations.Quote)
		}

		reservations := api.Group("/reservations")
		{
			reservations.POST("", ctl.Reservations.Create)
			reservations.GET("/:id", ctl.Reservations.Get)
		}

		// Email links: ?token= carries the authorization.
		actions := api.Group("/actions")
		{
			actions.POST("/reservations/:id/accept", ctl.Actions.AcceptReservation)
			actions.POST("/reservations/:id/decline", ctl.Actions.DeclineReservation)
			actions.POST("/reservations/:id/respond", ctl.Actions.RespondToProposal)
			actions.POST("/bookings/:id/cancel", ctl.Actions.CancelBooking)
			actions.POST("/bookings/:id/complete", ctl.Actions.CompleteBooking)
			actions.POST("/bookings/:id/no-experience", ctl.Actions.ReportNoExperience)
		}

		supplier := api.Group("/supplier", middleware.SupplierAuth(secrets.SupplierJWT))
		{
			supplier.POST("/reservations/:id/accept", ctl.Supplier.AcceptReservation)
			supplier.POST("/reservations/:id/decline", ctl.Supplier.DeclineReservation)
			supplier.POST("/reservations/:id/propose", ctl.Supplier.ProposeReservation)

			supplier.POST("/sessions", ctl.Supplier.CreateSession)
			supplier.DELETE("/sessions/:id", ctl.Supplier.CancelSession)
			supplier.POST("/sessions/:id/confirm", ctl.Supplier.ConfirmSession)

			supplier.POST("/bookings/:id/cancel", ctl.Supplier.CancelBooking)
			supplier.POST("/bookings/:id/complete", ctl.Supplier.CompleteBooking)
			supplier.POST("/bookings/:id/no-experience", ctl.Supplier.ReportNoExperience)

			supplier.POST("/distributions", ctl.Supplier.CreateDistribution)
		}

		cron := api.Group("/cron", middleware.CronAuth(secrets.Cron))
		{
			sweeps := map[string]gin.HandlerFunc{
				"/expire-pending-requests":        ctl.Cron.ExpirePendingRequests(),
				"/expire-unpaid-approvals":        ctl.Cron.ExpireUnpaidApprovals(),
				"/auto-complete-past-experiences": ctl.Cron.AutoCompletePast(),
				"/send-completion-check":          ctl.Cron.SendCompletionChecks(),
				"/create-payouts":                 ctl.Cron.CreatePayouts(),
			}
			for path, handler := range sweeps {
				cron.GET(path, handler)
				cron.POST(path, handler)
			}
		}

		api.POST("/webhooks/payments", ctl.Webhooks.HandlePayment)
	}

	return r
}
