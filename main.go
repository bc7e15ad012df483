package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"experience-backend/config"
	"experience-backend/controllers"
	"experience-backend/gateways"
	"experience-backend/middleware"
	"experience-backend/protocols"
	"experience-backend/repository"
	"experience-backend/routes"
	"experience-backend/services"
	"experience-backend/utils"
)

const serviceName = "experience-backend"

func main() {
	// Load .env (optional)
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found; continuing with environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		config.Exitf("config: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	if lw := middleware.NewLokiWriter(cfg.LokiURL, serviceName); lw != nil {
		log.SetOutput(io.MultiWriter(os.Stderr, lw))
		defer lw.Close()
	}
	if shutdown := middleware.InitTracing(serviceName, cfg.OTLPEndpoint); shutdown != nil {
		defer shutdown()
	}

	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		config.Exitf("database: %v", err)
	}
	store := repository.NewGormStore(db)
	log.Printf("Database connected (%s), migrations applied", cfg.DBDriver)

	signer, err := utils.NewActionSigner(cfg.ActionTokenSecret, cfg.ActionTokenTTL)
	if err != nil {
		config.Exitf("action tokens: %v", err)
	}

	var payments protocols.PaymentGateway
	if cfg.PaymentAPIURL != "" {
		payments = gateways.NewHTTPPaymentGateway(cfg.PaymentAPIURL, cfg.PaymentAPIKey, cfg.PaymentWebhookSecret)
	} else {
		log.Println("PAYMENT_API_URL not set; using the in-memory payment provider")
		payments = gateways.NewMemoryPaymentGateway(cfg.PaymentWebhookSecret)
	}

	var events protocols.EventPublisher = gateways.LogEventPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := gateways.NewKafkaEventPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		events = kp
	}

	var dedup protocols.WebhookDeduper = gateways.NewMemoryWebhookDeduper()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		dedup = gateways.NewRedisWebhookDeduper(rdb)
	}

	opts := []services.Option{
		services.WithResponseWindow(cfg.ResponseWindow),
		services.WithPaymentWindow(cfg.PaymentWindow),
		services.WithAutoCompleteAfter(cfg.AutoCompleteAfter),
		services.WithFrontendURL(cfg.FrontendURL),
	}

	// Initialize services
	notifier := services.NewNotifier(gateways.NewSMTPMailer(cfg.SMTP()), events, signer, cfg.FrontendURL, opts...)
	sessions := services.NewSessionService(store, opts...)
	approvals := services.NewAutoApprovalService(store, payments, notifier, opts...)
	reservations := services.NewReservationService(store, sessions, approvals, payments, notifier, opts...)
	settlement := services.NewSettlementService(store, sessions, payments, notifier, opts...)
	expiration := services.NewExpirationService(store, sessions, notifier, opts...)
	bookings := services.NewBookingService(store, sessions, payments, notifier, opts...)
	payouts := services.NewPayoutService(store, notifier, opts...)
	distributions := services.NewDistributionService(store)

	// Build router
	router := routes.SetupRouter(routes.Controllers{
		Reservations: controllers.NewReservationController(reservations, sessions),
		Actions:      controllers.NewActionController(signer, reservations, bookings),
		Supplier:     controllers.NewSupplierController(reservations, sessions, approvals, bookings, distributions),
		Cron:         controllers.NewCronController(expiration, bookings, payouts),
		Webhooks:     controllers.NewWebhookController(payments, dedup, store, settlement),
	}, routes.Secrets{SupplierJWT: cfg.SupplierJWTSecret, Cron: cfg.CronSecret}, cfg.CorsOrigins)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped gracefully")
}
