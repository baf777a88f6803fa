package model

import "time"

// Clock поставляет текущее время.
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает системное время в UTC.
type SystemClock struct{}

// Now возвращает текущее время.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
