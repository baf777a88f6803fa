package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/hotel-booking/internal/model"
	"github.com/mmeshcher/hotel-booking/internal/payment"
	"github.com/mmeshcher/hotel-booking/internal/validation"
)

// Gateway описывает внешний платёжный шлюз.
type Gateway interface {
	Charge(ctx context.Context, amount int64, method, reference string) (*payment.ChargeResult, error)
}

// PaymentResult содержит итог оплаты брони.
type PaymentResult struct {
	Outcome       payment.Outcome
	TransactionID string
	Booking       *model.Booking
}

// PaymentAdapter связывает платёжный шлюз с подтверждением брони.
// Собственного состояния брони у адаптера нет.
type PaymentAdapter struct {
	gateway  Gateway
	bookings *BookingManager
	clock    model.Clock
	logger   *zap.Logger
}

// NewPaymentAdapter создаёт адаптер оплаты.
func NewPaymentAdapter(gateway Gateway, bookings *BookingManager, clock model.Clock, logger *zap.Logger) *PaymentAdapter {
	return &PaymentAdapter{
		gateway:  gateway,
		bookings: bookings,
		clock:    clock,
		logger:   logger,
	}
}

// Charge списывает стоимость брони и при успехе подтверждает её. При отказе или сбое
// шлюза бронь остаётся в статусе PENDING.
func (a *PaymentAdapter) Charge(ctx context.Context, bookingID string, amount int64, method string) (*PaymentResult, error) {
	if !validation.IsValidPaymentMethod(method) {
		return nil, fmt.Errorf("%w: unsupported payment method", model.ErrValidation)
	}

	b, err := a.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingStatusPending || b.Expired(a.clock.Now()) {
		return nil, fmt.Errorf("%w: booking %s is not awaiting payment", model.ErrInvalidTransition, b.ID)
	}
	if amount != b.TotalPrice {
		return nil, fmt.Errorf("%w: amount %d does not match booking total %d", model.ErrValidation, amount, b.TotalPrice)
	}

	if amount == 0 {
		confirmed, err := a.bookings.ConfirmPayment(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		return &PaymentResult{Outcome: payment.OutcomePaid, Booking: confirmed}, nil
	}

	res, err := a.gateway.Charge(ctx, amount, method, b.ID)
	if err != nil {
		a.logger.Error("payment gateway failed", zap.Error(err), zap.String("booking_id", b.ID))
		return nil, fmt.Errorf("%w: %w", model.ErrPaymentGateway, err)
	}

	if res.Status == payment.OutcomeDeclined {
		a.logger.Info("payment declined", zap.String("booking_id", b.ID))
		return &PaymentResult{Outcome: res.Status, TransactionID: res.TransactionID},
			fmt.Errorf("%w: booking %s", model.ErrPaymentDeclined, b.ID)
	}

	confirmed, err := a.bookings.ConfirmPayment(ctx, b.ID)
	if err != nil {
		if errors.Is(err, model.ErrConflict) ||
			errors.Is(err, model.ErrInvalidTransition) ||
			errors.Is(err, model.ErrInvalidDiscount) {
			a.logger.Warn("payment captured but booking not confirmed, refund required",
				zap.Error(err),
				zap.String("booking_id", b.ID),
				zap.String("transaction_id", res.TransactionID),
				zap.Int64("amount", amount),
			)
		}
		return &PaymentResult{Outcome: res.Status, TransactionID: res.TransactionID}, err
	}

	return &PaymentResult{Outcome: res.Status, TransactionID: res.TransactionID, Booking: confirmed}, nil
}
