package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/hotel-booking/internal/middleware"
	"github.com/mmeshcher/hotel-booking/internal/model"
	"github.com/mmeshcher/hotel-booking/internal/payment"
)

type createBookingRequest struct {
	RoomID       int64  `json:"room_id" validate:"required,gt=0"`
	CheckIn      string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut     string `json:"check_out" validate:"required,datetime=2006-01-02"`
	DiscountCode string `json:"discount_code" validate:"omitempty,max=32"`
}

type bookingResponse struct {
	ID             string `json:"id"`
	UserID         int64  `json:"user_id"`
	RoomID         int64  `json:"room_id"`
	CheckIn        string `json:"check_in"`
	CheckOut       string `json:"check_out"`
	Nights         int    `json:"nights"`
	TotalPrice     int64  `json:"total_price"`
	DiscountCode   string `json:"discount_code,omitempty"`
	DiscountAmount int64  `json:"discount_amount"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	ExpiresAt      string `json:"expires_at,omitempty"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	resp := bookingResponse{
		ID:             b.ID,
		UserID:         b.UserID,
		RoomID:         b.RoomID,
		CheckIn:        b.CheckIn.Format(time.DateOnly),
		CheckOut:       b.CheckOut.Format(time.DateOnly),
		Nights:         b.Nights(),
		TotalPrice:     b.TotalPrice,
		DiscountCode:   b.DiscountCode,
		DiscountAmount: b.DiscountAmount,
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.Format(time.RFC3339),
	}
	if b.Status == model.BookingStatusPending {
		resp.ExpiresAt = b.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}

type summaryResponse struct {
	bookingResponse
	RoomNumber string `json:"room_number"`
	RoomType   string `json:"room_type"`
	BasePrice  int64  `json:"base_price"`
}

// CreateBooking резервирует номер для текущего пользователя.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createBookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	in, err := parseDate(req.CheckIn)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "check_in must be a YYYY-MM-DD date")
		return
	}
	out, err := parseDate(req.CheckOut)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "check_out must be a YYYY-MM-DD date")
		return
	}

	b, err := h.bookings.Create(r.Context(), userID, req.RoomID, in, out, req.DiscountCode)
	if err != nil {
		h.writeError(w, r, "create booking", err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

// ListBookings возвращает историю бронирований текущего пользователя.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	bookings, err := h.bookings.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "list bookings", err)
		return
	}

	if len(bookings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		resp = append(resp, toBookingResponse(&bookings[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetBooking возвращает бронь текущего пользователя с данными номера и расчётом стоимости.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}

	summary, err := h.bookings.Summary(r.Context(), b.ID)
	if err != nil {
		h.writeError(w, r, "booking summary", err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		bookingResponse: toBookingResponse(&summary.Booking),
		RoomNumber:      summary.RoomNumber,
		RoomType:        summary.RoomType,
		BasePrice:       summary.BasePrice,
	})
}

type payRequest struct {
	Amount int64  `json:"amount" validate:"gte=0"`
	Method string `json:"method" validate:"required,max=64"`
}

type paymentResponse struct {
	Status        string           `json:"status"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Booking       *bookingResponse `json:"booking,omitempty"`
}

// PayBooking оплачивает бронь и подтверждает её.
func (h *Handler) PayBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}

	var req payRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.payments.Charge(r.Context(), b.ID, req.Amount, req.Method)
	if err != nil {
		if res != nil && res.Outcome == payment.OutcomePaid {
			h.logger.Warn("charged booking was not confirmed",
				zap.Error(err),
				zap.String("booking_id", b.ID),
				zap.String("transaction_id", res.TransactionID),
			)
		}
		h.writeError(w, r, "pay booking", err)
		return
	}

	resp := paymentResponse{Status: string(res.Outcome), TransactionID: res.TransactionID}
	if res.Booking != nil {
		confirmed := toBookingResponse(res.Booking)
		resp.Booking = &confirmed
	}

	writeJSON(w, http.StatusOK, resp)
}

// CheckIn заселяет гостя по подтверждённой брони.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "check in", h.bookings.CheckIn)
}

// CheckOut выселяет гостя.
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "check out", h.bookings.CheckOut)
}

// CancelBooking отменяет бронь.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel booking", h.bookings.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, apply func(context.Context, string) (*model.Booking, error)) {
	b, ok := h.ownedBooking(w, r)
	if !ok {
		return
	}

	updated, err := apply(r.Context(), b.ID)
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookingResponse(updated))
}

// ownedBooking загружает бронь из URL и проверяет, что она принадлежит текущему пользователю.
// Чужая бронь неотличима от несуществующей.
func (h *Handler) ownedBooking(w http.ResponseWriter, r *http.Request) (*model.Booking, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}

	id := chi.URLParam(r, "bookingID")
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get booking", err)
		return nil, false
	}
	if b.UserID != userID {
		h.writeError(w, r, "get booking", fmt.Errorf("%w: booking %s", model.ErrNotFound, id))
		return nil, false
	}

	return b, true
}

type importResponse struct {
	Imported int    `json:"imported"`
	Error    string `json:"error,omitempty"`
}

// ImportBookings переносит брони из старого формата.
func (h *Handler) ImportBookings(w http.ResponseWriter, r *http.Request) {
	var records []model.LegacyBooking
	if !decodeJSON(w, r, &records) {
		return
	}

	n, err := h.bookings.Import(r.Context(), records)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("import bookings error", zap.Error(err), zap.Int("imported", n))
			writeJSON(w, status, importResponse{Imported: n, Error: http.StatusText(status)})
			return
		}
		writeJSON(w, status, importResponse{Imported: n, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, importResponse{Imported: n})
}
