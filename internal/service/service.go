// Package service реализует движок бронирования номеров: реестр номеров, проверку
// доступности, промокоды, жизненный цикл брони и подтверждение оплаты.
package service

import (
	"context"
	"time"

	"github.com/mmeshcher/hotel-booking/internal/model"
)

// RoomStore описывает хранилище номеров.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, id int64) (*model.Room, error)
	ListRooms(ctx context.Context) ([]model.Room, error)
	UpdateRoomStatus(ctx context.Context, id int64, status model.RoomStatus) error
}

// BookingStore описывает хранилище бронирований.
// UpdateBookingStatus выполняет условное обновление, которое применяется, только если текущий статус равен from.
// LockRoom возвращает контекст критической секции: операции хранилища внутри неё
// должны выполняться с этим контекстом.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListBookingsByRoom(ctx context.Context, roomID int64, statuses []model.BookingStatus) ([]model.Booking, error)
	ListBookingsByUser(ctx context.Context, userID int64) ([]model.Booking, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, from, to model.BookingStatus, at time.Time) (*model.Booking, error)
	LockRoom(ctx context.Context, roomID int64) (context.Context, func(), error)
}

// DiscountStore описывает хранилище промокодов и их погашений.
type DiscountStore interface {
	CreateDiscount(ctx context.Context, d *model.Discount) error
	GetDiscount(ctx context.Context, code string) (*model.Discount, error)
	RedeemDiscount(ctx context.Context, code string, userID int64, at time.Time) error
	ReleaseRedemption(ctx context.Context, code string, userID int64) error
}

// Repository объединяет все хранилища, используемые сервисом.
type Repository interface {
	RoomStore
	BookingStore
	DiscountStore
	Close() error
}
