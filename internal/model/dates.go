package model

import (
	"math"
	"time"
)

// NormalizeDate приводит момент времени к полуночи UTC того же календарного дня.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeRange нормализует даты заезда и выезда и проверяет, что выезд позже заезда.
func NormalizeRange(checkIn, checkOut time.Time) (time.Time, time.Time, error) {
	in, out := NormalizeDate(checkIn), NormalizeDate(checkOut)
	if !out.After(in) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return in, out, nil
}

// Overlap проверяет пересечение полуоткрытых интервалов [aIn, aOut) и [bIn, bOut).
// Выезд в день заезда следующего гостя пересечением не считается.
func Overlap(aIn, aOut, bIn, bOut time.Time) bool {
	return aIn.Before(bOut) && aOut.After(bIn)
}

// Nights возвращает число ночей между датами, округлённое вверх, но не меньше одной.
func Nights(checkIn, checkOut time.Time) int {
	days := checkOut.Sub(checkIn).Hours() / 24
	n := int(math.Ceil(days))
	if n < 1 {
		n = 1
	}
	return n
}

// Quote считает стоимость проживания в минимальных единицах валюты.
// Скидка округляется до ближайшей единицы, половина вверх.
func Quote(nights int, pricePerNight int64, percent int) (total, discount int64) {
	base := int64(nights) * pricePerNight
	if percent > 0 {
		discount = (base*int64(percent) + 50) / 100
	}
	return base - discount, discount
}
