package model

import (
	"fmt"
	"strings"
	"time"
)

// LegacyBooking описывает запись бронирования в старом формате, где интервал дат
// хранился под разными именами полей.
type LegacyBooking struct {
	ID              string     `json:"_id"`
	UserID          int64      `json:"userId"`
	RoomID          int64      `json:"roomId"`
	Room            int64      `json:"room"`
	CheckIn         *time.Time `json:"checkIn"`
	CheckOut        *time.Time `json:"checkOut"`
	StartDate       *time.Time `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	TotalPrice      float64    `json:"totalPrice"`
	DiscountCode    *string    `json:"discountCode"`
	DiscountApplied float64    `json:"discountApplied"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
}

var legacyStatuses = map[string]BookingStatus{
	"pending":     BookingStatusPending,
	"confirmed":   BookingStatusConfirmed,
	"booked":      BookingStatusConfirmed,
	"checked_in":  BookingStatusCheckedIn,
	"checked_out": BookingStatusCheckedOut,
	"completed":   BookingStatusCheckedOut,
	"cancelled":   BookingStatusCancelled,
}

// ToBooking переводит старую запись в каноническую форму Booking.
// Денежные суммы старого формата указаны в основных единицах валюты.
func (l LegacyBooking) ToBooking() (Booking, error) {
	in, out := l.CheckIn, l.CheckOut
	if in == nil || out == nil {
		in, out = l.StartDate, l.EndDate
	}
	if in == nil || out == nil {
		return Booking{}, fmt.Errorf("legacy booking %s: %w", l.ID, ErrInvalidRange)
	}

	checkIn, checkOut, err := NormalizeRange(*in, *out)
	if err != nil {
		return Booking{}, fmt.Errorf("legacy booking %s: %w", l.ID, err)
	}

	status, ok := legacyStatuses[strings.ToLower(l.Status)]
	if !ok {
		return Booking{}, fmt.Errorf("%w: legacy booking %s has unknown status %q", ErrValidation, l.ID, l.Status)
	}

	roomID := l.RoomID
	if roomID == 0 {
		roomID = l.Room
	}

	b := Booking{
		ID:             l.ID,
		UserID:         l.UserID,
		RoomID:         roomID,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		TotalPrice:     int64(l.TotalPrice*100 + 0.5),
		DiscountAmount: int64(l.DiscountApplied*100 + 0.5),
		Status:         status,
		CreatedAt:      l.CreatedAt.UTC(),
		UpdatedAt:      l.CreatedAt.UTC(),
		ExpiresAt:      l.CreatedAt.UTC(),
	}
	if l.DiscountCode != nil {
		b.DiscountCode = strings.ToUpper(*l.DiscountCode)
	}

	return b, nil
}
