// cmd/server wires the reservation engine together and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"eventbooking/config"
	_ "eventbooking/docs"
	"eventbooking/internal/adapters/auth"
	"eventbooking/internal/adapters/email"
	delivery "eventbooking/internal/delivery/http"
	"eventbooking/internal/delivery/http/controllers"
	"eventbooking/internal/delivery/http/middleware"
	"eventbooking/internal/domain"
	"eventbooking/internal/notify"
	"eventbooking/internal/repository/postgres"
	"eventbooking/internal/services"
)

const serviceTimeout = 10 * time.Second

// @title Event Booking Reservation API
// @version 1.0
// @description Reservation engine: capacity-bounded, duplicate-free seat booking with real-time occupancy updates.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := config.NewLogger()

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Error("ping database", "err", err)
		os.Exit(1)
	}

	// Repositories and the capacity ledger share one pool; the ledger is the
	// only writer of booked_count.
	eventRepo := postgres.NewEventRepository(db)
	userRepo := postgres.NewUserRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	ledger := postgres.NewCapacityLedger(db)

	var broadcaster domain.Broadcaster
	switch cfg.NotifyProvider {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		broadcaster = notify.NewRedisBroadcaster(client, logger)
		logger.Info("occupancy broadcaster: redis", "addr", cfg.RedisAddr)
	default:
		broadcaster = notify.NewHub()
		logger.Info("occupancy broadcaster: in-memory")
	}
	defer broadcaster.Close()

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Email.Provider,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		SES: email.SESConfig{
			Region:          cfg.Email.SESRegion,
			AccessKeyID:     cfg.Email.SESAccessKeyID,
			SecretAccessKey: cfg.Email.SESSecretKey,
		},
	})
	if err != nil {
		logger.Error("create mailer", "err", err)
		os.Exit(1)
	}
	emailService := services.NewEmailService(mailer, email.NewTemplateRenderer())

	bookingService := services.NewBookingService(
		eventRepo, userRepo, bookingRepo, ledger,
		broadcaster, emailService, logger, serviceTimeout,
	)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	bookingController := controllers.NewBookingController(logger, bookingService)
	occupancyController := controllers.NewOccupancyController(logger, eventRepo, broadcaster)

	mux := delivery.NewRouter(delivery.RouterConfig{
		Verifier:           verifier,
		Logger:             logger,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}, bookingController, occupancyController)

	handler := middleware.CORS(cfg.CORSAllowedOrigins, middleware.LoggingMiddleware(logger, mux))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// No WriteTimeout: the occupancy stream is long-lived.
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
