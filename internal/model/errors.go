package model

import "errors"

// ErrNotFound возвращается для неизвестного номера, бронирования или промокода.
var (
	ErrNotFound = errors.New("not found")
	// ErrValidation возвращается для некорректных входных данных.
	ErrValidation = errors.New("validation error")
	// ErrInvalidRange возвращается, если дата выезда не позже даты заезда.
	ErrInvalidRange = errors.New("check-out must be after check-in")
)

var (
	// ErrRoomUnavailable возвращается, если номер занят или закрыт на обслуживание.
	ErrRoomUnavailable = errors.New("room is unavailable for the requested dates")
	// ErrConflict возвращается, если при подтверждении оплаты обнаружено пересечение.
	ErrConflict = errors.New("booking conflicts with another reservation")
	// ErrInvalidTransition возвращается при недопустимом переходе состояния брони.
	ErrInvalidTransition = errors.New("invalid booking status transition")
)

// ErrInvalidDiscount оборачивает конкретную причину отказа в применении промокода.
var ErrInvalidDiscount = errors.New("invalid discount")

var (
	ErrDiscountNotFound        = errors.New("discount code not found")
	ErrDiscountInactive        = errors.New("discount code is inactive")
	ErrDiscountExpired         = errors.New("discount code is outside its validity window")
	ErrDiscountAlreadyRedeemed = errors.New("discount code already redeemed by user")
)

var (
	// ErrPaymentDeclined возвращается, если платёжный шлюз отклонил списание.
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentGateway возвращается при ошибке обращения к платёжному шлюзу.
	ErrPaymentGateway = errors.New("payment gateway error")
)
