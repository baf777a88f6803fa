package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/hotel-booking/internal/model"
	"github.com/mmeshcher/hotel-booking/internal/validation"
)

// DiscountValidator проверяет и погашает промокоды.
type DiscountValidator struct {
	store DiscountStore
	clock model.Clock
}

// NewDiscountValidator создаёт валидатор промокодов.
func NewDiscountValidator(store DiscountStore, clock model.Clock) *DiscountValidator {
	return &DiscountValidator{store: store, clock: clock}
}

// Create регистрирует промокод. Нулевые границы окна действия означают отсутствие ограничения.
func (v *DiscountValidator) Create(ctx context.Context, d *model.Discount) error {
	d.Code = validation.NormalizeDiscountCode(d.Code)

	switch {
	case !validation.IsValidDiscountCode(d.Code):
		return fmt.Errorf("%w: malformed discount code %q", model.ErrValidation, d.Code)
	case d.Percent < 0 || d.Percent > 100:
		return fmt.Errorf("%w: discount percent must be within 0..100", model.ErrValidation)
	case !d.ValidFrom.IsZero() && !d.ValidTo.IsZero() && d.ValidTo.Before(d.ValidFrom):
		return fmt.Errorf("%w: discount validity window is empty", model.ErrValidation)
	}

	return v.store.CreateDiscount(ctx, d)
}

// Validate проверяет, что пользователь может применить промокод в момент at, и возвращает
// процент скидки. Промокод не погашается.
func (v *DiscountValidator) Validate(ctx context.Context, code string, userID int64, at time.Time) (int, error) {
	code = validation.NormalizeDiscountCode(code)
	if code == "" {
		return 0, model.ErrDiscountNotFound
	}

	d, err := v.store.GetDiscount(ctx, code)
	if err != nil {
		return 0, err
	}

	switch {
	case !d.Active:
		return 0, fmt.Errorf("%w: %s", model.ErrDiscountInactive, code)
	case !d.ValidFrom.IsZero() && at.Before(d.ValidFrom),
		!d.ValidTo.IsZero() && at.After(d.ValidTo):
		return 0, fmt.Errorf("%w: %s", model.ErrDiscountExpired, code)
	case d.RedeemedByUser(userID):
		return 0, fmt.Errorf("%w: %s", model.ErrDiscountAlreadyRedeemed, code)
	}

	return d.Percent, nil
}

// Redeem погашает промокод для пользователя в момент at. Погашение атомарно на уровне
// хранилища: из нескольких одновременных попыток одного пользователя успешна только одна.
func (v *DiscountValidator) Redeem(ctx context.Context, code string, userID int64, at time.Time) error {
	code = validation.NormalizeDiscountCode(code)

	if _, err := v.Validate(ctx, code, userID, at); err != nil {
		return err
	}

	return v.store.RedeemDiscount(ctx, code, userID, at)
}

// Check проверяет промокод на текущий момент.
func (v *DiscountValidator) Check(ctx context.Context, code string, userID int64) (int, error) {
	return v.Validate(ctx, code, userID, v.clock.Now())
}

// Release отменяет погашение, если подтверждение брони не состоялось.
func (v *DiscountValidator) Release(ctx context.Context, code string, userID int64) error {
	return v.store.ReleaseRedemption(ctx, validation.NormalizeDiscountCode(code), userID)
}

// IsDiscountError сообщает, что err является отказом в применении промокода, а не сбой хранилища.
func IsDiscountError(err error) bool {
	return errors.Is(err, model.ErrDiscountNotFound) ||
		errors.Is(err, model.ErrDiscountInactive) ||
		errors.Is(err, model.ErrDiscountExpired) ||
		errors.Is(err, model.ErrDiscountAlreadyRedeemed)
}
