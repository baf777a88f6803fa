package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/hotel-booking/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бронирования.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(custommiddleware.Recovery(h.logger))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", h.SearchRooms)
			r.Post("/", h.AddRoom)
			r.Get("/{roomID}", h.GetRoom)
			r.Get("/{roomID}/availability", h.RoomAvailability)
			r.Put("/{roomID}/status", h.SetRoomStatus)
		})

		r.Post("/discounts", h.CreateDiscount)
		r.Post("/bookings/import", h.ImportBookings)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.Identity)

			r.Get("/discounts/{code}", h.CheckDiscount)

			r.Post("/bookings", h.CreateBooking)
			r.Get("/bookings", h.ListBookings)
			r.Get("/bookings/{bookingID}", h.GetBooking)
			r.Post("/bookings/{bookingID}/pay", h.PayBooking)
			r.Post("/bookings/{bookingID}/check-in", h.CheckIn)
			r.Post("/bookings/{bookingID}/check-out", h.CheckOut)
			r.Post("/bookings/{bookingID}/cancel", h.CancelBooking)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
