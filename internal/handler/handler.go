// Package handler содержит HTTP-обработчики API сервиса бронирования.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/hotel-booking/internal/model"
	"github.com/mmeshcher/hotel-booking/internal/repository"
	"github.com/mmeshcher/hotel-booking/internal/service"
)

// RoomService определяет операции реестра номеров.
type RoomService interface {
	Add(ctx context.Context, room *model.Room) error
	Get(ctx context.Context, id int64) (*model.Room, error)
	SetStatus(ctx context.Context, id int64, status model.RoomStatus) error
}

// AvailabilityService определяет операции проверки доступности и поиска.
type AvailabilityService interface {
	IsAvailable(ctx context.Context, roomID int64, checkIn, checkOut time.Time, excludeBookingID string) (bool, error)
	FindAvailableRooms(ctx context.Context, filter model.RoomFilter, checkIn, checkOut *time.Time) ([]model.RoomAvailability, error)
}

// BookingService определяет операции жизненного цикла брони.
type BookingService interface {
	Create(ctx context.Context, userID, roomID int64, checkIn, checkOut time.Time, discountCode string) (*model.Booking, error)
	Get(ctx context.Context, id string) (*model.Booking, error)
	Summary(ctx context.Context, id string) (*model.BookingSummary, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Booking, error)
	CheckIn(ctx context.Context, id string) (*model.Booking, error)
	CheckOut(ctx context.Context, id string) (*model.Booking, error)
	Cancel(ctx context.Context, id string) (*model.Booking, error)
	Import(ctx context.Context, records []model.LegacyBooking) (int, error)
}

// PaymentService определяет оплату брони.
type PaymentService interface {
	Charge(ctx context.Context, bookingID string, amount int64, method string) (*service.PaymentResult, error)
}

// DiscountService определяет операции с промокодами.
type DiscountService interface {
	Create(ctx context.Context, d *model.Discount) error
	Check(ctx context.Context, code string, userID int64) (int, error)
}

// Services объединяет зависимости обработчиков.
type Services struct {
	Rooms        RoomService
	Availability AvailabilityService
	Bookings     BookingService
	Payments     PaymentService
	Discounts    DiscountService
}

// Handler реализует HTTP-обработчики API сервиса бронирования.
type Handler struct {
	rooms        RoomService
	availability AvailabilityService
	bookings     BookingService
	payments     PaymentService
	discounts    DiscountService
	validate     *validator.Validate
	logger       *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Services, logger *zap.Logger) *Handler {
	return &Handler{
		rooms:        s.Rooms,
		availability: s.Availability,
		bookings:     s.Bookings,
		payments:     s.Payments,
		discounts:    s.Discounts,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRange), errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidDiscount), service.IsDiscountError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRoomUnavailable),
		errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, repository.ErrRoomExists),
		errors.Is(err, repository.ErrBookingExists),
		errors.Is(err, repository.ErrDiscountExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrPaymentGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err), zap.String("uri", r.RequestURI))
		writeMessage(w, status, http.StatusText(status))
		return
	}
	writeMessage(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// decode читает JSON-тело запроса в структуру и проверяет её теги validate.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeMessage(w, http.StatusBadRequest, "invalid field "+verrs[0].Field()+": "+verrs[0].Tag())
			return false
		}
		writeMessage(w, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Join(model.ErrValidation, err)
	}
	return t, nil
}

func roomIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
