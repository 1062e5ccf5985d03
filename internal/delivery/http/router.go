package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"eventbooking/internal/delivery/http/controllers"
	"eventbooking/internal/delivery/http/middleware"
	"eventbooking/internal/domain"
)

// RouterConfig bundles what the router needs beyond the controllers.
type RouterConfig struct {
	Verifier           domain.TokenVerifier
	Logger             *slog.Logger
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(
	cfg RouterConfig,
	bookingController *controllers.BookingController,
	occupancyController *controllers.OccupancyController,
) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(cfg.Verifier, cfg.Logger)
	limited := middleware.RateLimitByUser(cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	// Bookings
	mux.HandleFunc("POST /bookings", auth(limited(bookingController.CreateBooking)))
	mux.HandleFunc("GET /bookings", auth(middleware.RequireAdmin(bookingController.ListBookings)))
	mux.HandleFunc("GET /bookings/me", auth(bookingController.ListMyBookings))
	mux.HandleFunc("GET /bookings/check/{eventID}", auth(bookingController.CheckBookingStatus))
	mux.HandleFunc("GET /bookings/{bookingID}", auth(bookingController.GetBooking))
	mux.HandleFunc("DELETE /bookings/{bookingID}", auth(bookingController.CancelBooking))

	// Occupancy
	mux.HandleFunc("GET /events/{eventID}/occupancy", auth(occupancyController.GetOccupancy))
	mux.HandleFunc("GET /occupancy/stream", auth(occupancyController.StreamOccupancy))

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
