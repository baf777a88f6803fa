package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/hotel-booking/internal/cache"
	"github.com/mmeshcher/hotel-booking/internal/model"
	"github.com/mmeshcher/hotel-booking/internal/repository"
	"github.com/mmeshcher/hotel-booking/internal/validation"
)

const expireBatchSize = 100

// BookingManager владеет конечным автоматом брони:
// PENDING → CONFIRMED → CHECKED_IN → CHECKED_OUT, с отменой из PENDING и CONFIRMED.
// Все переходы выполняются условным обновлением по ожидаемому текущему статусу.
type BookingManager struct {
	rooms        RoomStore
	bookings     BookingStore
	availability *AvailabilityChecker
	discounts    *DiscountValidator
	cache        cache.RoomCache
	clock        model.Clock
	ttl          time.Duration
	logger       *zap.Logger
}

// NewBookingManager создаёт менеджер жизненного цикла брони. ttl задаёт время, в течение
// которого неоплаченная бронь удерживает номер.
func NewBookingManager(
	rooms RoomStore,
	bookings BookingStore,
	availability *AvailabilityChecker,
	discounts *DiscountValidator,
	roomCache cache.RoomCache,
	clock model.Clock,
	ttl time.Duration,
	logger *zap.Logger,
) *BookingManager {
	return &BookingManager{
		rooms:        rooms,
		bookings:     bookings,
		availability: availability,
		discounts:    discounts,
		cache:        roomCache,
		clock:        clock,
		ttl:          ttl,
		logger:       logger,
	}
}

// Create резервирует номер и сохраняет бронь в статусе PENDING. Промокод только
// проверяется: погашение происходит при подтверждении оплаты.
func (m *BookingManager) Create(ctx context.Context, userID, roomID int64, checkIn, checkOut time.Time, discountCode string) (*model.Booking, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", model.ErrValidation)
	}

	checkIn, checkOut, err := model.NormalizeRange(checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()

	var (
		code    string
		percent int
	)
	if discountCode != "" {
		code = validation.NormalizeDiscountCode(discountCode)
		percent, err = m.discounts.Validate(ctx, code, userID, now)
		if err != nil {
			if IsDiscountError(err) {
				return nil, fmt.Errorf("%w: %w", model.ErrInvalidDiscount, err)
			}
			return nil, fmt.Errorf("validate discount: %w", err)
		}
	}

	ctx, unlock, err := m.bookings.LockRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	room, err := m.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	free, err := m.availability.roomFree(ctx, room, checkIn, checkOut, "")
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, fmt.Errorf("%w: room %d", model.ErrRoomUnavailable, room.ID)
	}

	total, discount := model.Quote(model.Nights(checkIn, checkOut), room.Price, percent)

	b := &model.Booking{
		ID:             uuid.New().String(),
		UserID:         userID,
		RoomID:         room.ID,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		TotalPrice:     total,
		DiscountCode:   code,
		DiscountAmount: discount,
		Status:         model.BookingStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
	}
	if err := m.bookings.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	invalidate(ctx, m.cache, m.logger)

	m.logger.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.Int64("room_id", b.RoomID),
		zap.Int64("user_id", b.UserID),
		zap.Int64("total_price", b.TotalPrice),
		zap.Time("expires_at", b.ExpiresAt),
	)

	return b, nil
}

// ConfirmPayment переводит оплаченную бронь в CONFIRMED. Доступность номера проверяется
// повторно под блокировкой номера: если за время оплаты интервал занят, бронь отменяется
// и возвращается ErrConflict, а возврат средств остаётся за платёжным шлюзом.
func (m *BookingManager) ConfirmPayment(ctx context.Context, bookingID string) (*model.Booking, error) {
	b, err := m.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingStatusPending {
		return nil, fmt.Errorf("%w: booking %s is %s", model.ErrInvalidTransition, b.ID, b.Status)
	}

	if b.Expired(m.clock.Now()) {
		return nil, m.cancelExpired(ctx, b)
	}

	ctx, unlock, err := m.bookings.LockRoom(ctx, b.RoomID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Срок мог истечь, пока ждали блокировку.
	if b.Expired(m.clock.Now()) {
		return nil, m.cancelExpired(ctx, b)
	}

	free, err := m.availability.IsAvailable(ctx, b.RoomID, b.CheckIn, b.CheckOut, b.ID)
	if err != nil {
		return nil, err
	}
	if !free {
		if _, err := m.transition(ctx, b.ID, model.BookingStatusPending, model.BookingStatusCancelled); err != nil {
			return nil, err
		}
		m.logger.Warn("booking cancelled on confirmation conflict",
			zap.String("booking_id", b.ID),
			zap.Int64("room_id", b.RoomID),
		)
		return nil, fmt.Errorf("%w: booking %s", model.ErrConflict, b.ID)
	}

	if b.DiscountCode != "" {
		if err := m.discounts.Redeem(ctx, b.DiscountCode, b.UserID, m.clock.Now()); err != nil {
			if !IsDiscountError(err) {
				return nil, fmt.Errorf("redeem discount: %w", err)
			}
			if _, cerr := m.transition(ctx, b.ID, model.BookingStatusPending, model.BookingStatusCancelled); cerr != nil {
				return nil, cerr
			}
			return nil, fmt.Errorf("%w: %w", model.ErrInvalidDiscount, err)
		}
	}

	confirmed, err := m.transition(ctx, b.ID, model.BookingStatusPending, model.BookingStatusConfirmed)
	if err != nil {
		if b.DiscountCode != "" {
			if rerr := m.discounts.Release(ctx, b.DiscountCode, b.UserID); rerr != nil {
				m.logger.Error("release discount redemption failed",
					zap.Error(rerr),
					zap.String("booking_id", b.ID),
					zap.String("code", b.DiscountCode),
				)
			}
		}
		return nil, err
	}

	m.logger.Info("booking confirmed",
		zap.String("booking_id", confirmed.ID),
		zap.Int64("room_id", confirmed.RoomID),
		zap.Int64("user_id", confirmed.UserID),
	)

	return confirmed, nil
}

// cancelExpired отменяет просроченную бронь и возвращает ошибку для вызывающего.
func (m *BookingManager) cancelExpired(ctx context.Context, b *model.Booking) error {
	if _, err := m.transition(ctx, b.ID, model.BookingStatusPending, model.BookingStatusCancelled); err != nil &&
		!errors.Is(err, model.ErrInvalidTransition) {
		return err
	}
	return fmt.Errorf("%w: booking %s expired at %s", model.ErrInvalidTransition, b.ID, b.ExpiresAt.Format(time.RFC3339))
}

// CheckIn заселяет гостя: бронь должна быть подтверждена, а текущая дата попадать в [CheckIn, CheckOut).
func (m *BookingManager) CheckIn(ctx context.Context, bookingID string) (*model.Booking, error) {
	b, err := m.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingStatusConfirmed {
		return nil, fmt.Errorf("%w: booking %s is %s", model.ErrInvalidTransition, b.ID, b.Status)
	}

	today := model.NormalizeDate(m.clock.Now())
	if today.Before(b.CheckIn) || !today.Before(b.CheckOut) {
		return nil, fmt.Errorf("%w: check-in is allowed from %s until %s",
			model.ErrInvalidTransition, b.CheckIn.Format(time.DateOnly), b.CheckOut.Format(time.DateOnly))
	}

	return m.transition(ctx, b.ID, model.BookingStatusConfirmed, model.BookingStatusCheckedIn)
}

// CheckOut выселяет гостя.
func (m *BookingManager) CheckOut(ctx context.Context, bookingID string) (*model.Booking, error) {
	return m.transition(ctx, bookingID, model.BookingStatusCheckedIn, model.BookingStatusCheckedOut)
}

// Cancel отменяет бронь в статусе PENDING или CONFIRMED.
func (m *BookingManager) Cancel(ctx context.Context, bookingID string) (*model.Booking, error) {
	b, err := m.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransitionTo(model.BookingStatusCancelled) {
		return nil, fmt.Errorf("%w: booking %s is %s", model.ErrInvalidTransition, b.ID, b.Status)
	}

	return m.transition(ctx, b.ID, b.Status, model.BookingStatusCancelled)
}

// ExpireStale отменяет все неоплаченные брони с истёкшим сроком ожидания.
// Брони, статус которых успел измениться, пропускаются, поэтому обход безопасно
// выполнять параллельно с подтверждением оплаты.
func (m *BookingManager) ExpireStale(ctx context.Context) ([]model.Booking, error) {
	var expired []model.Booking

	for {
		stale, err := m.bookings.ListExpiredPending(ctx, m.clock.Now(), expireBatchSize)
		if err != nil {
			return expired, fmt.Errorf("list expired bookings: %w", err)
		}

		for _, b := range stale {
			cancelled, err := m.transition(ctx, b.ID, model.BookingStatusPending, model.BookingStatusCancelled)
			if err != nil {
				if errors.Is(err, model.ErrInvalidTransition) {
					continue
				}
				return expired, err
			}
			expired = append(expired, *cancelled)
		}

		if len(stale) < expireBatchSize {
			break
		}
	}

	if len(expired) > 0 {
		m.logger.Info("expired bookings cancelled", zap.Int("count", len(expired)))
	}

	return expired, nil
}

// RunExpirySweeper периодически вызывает ExpireStale до отмены контекста.
func (m *BookingManager) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("expiry sweeper started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := m.ExpireStale(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("expire stale bookings", zap.Error(err))
			}
		}
	}
}

// Get возвращает бронь по идентификатору.
func (m *BookingManager) Get(ctx context.Context, bookingID string) (*model.Booking, error) {
	return m.bookings.GetBooking(ctx, bookingID)
}

// ListByUser возвращает историю бронирований пользователя.
func (m *BookingManager) ListByUser(ctx context.Context, userID int64) ([]model.Booking, error) {
	return m.bookings.ListBookingsByUser(ctx, userID)
}

// Import переносит брони из старого формата. Активные брони проверяются на пересечение
// так же, как новые; обработка останавливается на первой ошибке, уже перенесённые
// записи сохраняются.
func (m *BookingManager) Import(ctx context.Context, records []model.LegacyBooking) (imported int, err error) {
	defer func() {
		if imported > 0 {
			invalidate(ctx, m.cache, m.logger)
			m.logger.Info("legacy bookings imported", zap.Int("count", imported))
		}
	}()

	for i, rec := range records {
		b, err := rec.ToBooking()
		if err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
		if b.ID == "" {
			b.ID = uuid.New().String()
		}

		if err := m.importOne(ctx, &b); err != nil {
			return i, fmt.Errorf("record %d: %w", i, err)
		}
	}

	return len(records), nil
}

func (m *BookingManager) importOne(ctx context.Context, b *model.Booking) error {
	ctx, unlock, err := m.bookings.LockRoom(ctx, b.RoomID)
	if err != nil {
		return err
	}
	defer unlock()

	room, err := m.rooms.GetRoom(ctx, b.RoomID)
	if err != nil {
		return err
	}

	if b.Blocks(m.clock.Now()) {
		free, err := m.availability.roomFree(ctx, room, b.CheckIn, b.CheckOut, "")
		if err != nil {
			return err
		}
		if !free {
			return fmt.Errorf("%w: booking %s overlaps an existing reservation", model.ErrConflict, b.ID)
		}
	}

	if err := m.bookings.CreateBooking(ctx, b); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// Summary возвращает бронь с данными номера и расчётом стоимости.
func (m *BookingManager) Summary(ctx context.Context, bookingID string) (*model.BookingSummary, error) {
	b, err := m.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	room, err := m.rooms.GetRoom(ctx, b.RoomID)
	if err != nil {
		return nil, err
	}

	return &model.BookingSummary{
		Booking:    *b,
		RoomNumber: room.Number,
		RoomType:   room.Type,
		Nights:     b.Nights(),
		BasePrice:  b.TotalPrice + b.DiscountAmount,
	}, nil
}

// transition выполняет условный переход from → to. Проигравшая гонку сторона
// получает ErrInvalidTransition, состояние брони при этом не меняется.
func (m *BookingManager) transition(ctx context.Context, bookingID string, from, to model.BookingStatus) (*model.Booking, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
	}

	b, err := m.bookings.UpdateBookingStatus(ctx, bookingID, from, to, m.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, fmt.Errorf("%w: %w", model.ErrInvalidTransition, err)
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	invalidate(ctx, m.cache, m.logger)

	m.logger.Debug("booking status changed",
		zap.String("booking_id", b.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	return b, nil
}
