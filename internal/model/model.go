// Package model содержит доменные сущности сервиса бронирования номеров.
package model

import "time"

// RoomStatus описывает эксплуатационный статус номера.
type RoomStatus string

const (
	RoomStatusAvailable   RoomStatus = "available"
	RoomStatusMaintenance RoomStatus = "maintenance"
)

// Valid сообщает, является ли статус номера допустимым.
func (s RoomStatus) Valid() bool {
	return s == RoomStatusAvailable || s == RoomStatusMaintenance
}

// Room описывает номер гостиницы и его статические атрибуты.
// Занятость номера не хранится в нём, а выводится из пересекающихся бронирований.
type Room struct {
	ID          int64      `json:"id"`
	Number      string     `json:"number"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Location    string     `json:"location"`
	Price       int64      `json:"price"`
	Capacity    int        `json:"capacity"`
	Status      RoomStatus `json:"status"`
	Amenities   []string   `json:"amenities,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UnderMaintenance сообщает, что номер закрыт на обслуживание.
func (r *Room) UnderMaintenance() bool {
	return r.Status == RoomStatusMaintenance
}

// Booking описывает бронирование номера на интервал [CheckIn, CheckOut).
type Booking struct {
	ID             string
	UserID         int64
	RoomID         int64
	CheckIn        time.Time
	CheckOut       time.Time
	TotalPrice     int64
	DiscountCode   string
	DiscountAmount int64
	Status         BookingStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// Nights возвращает количество ночей бронирования.
func (b *Booking) Nights() int {
	return Nights(b.CheckIn, b.CheckOut)
}

// Expired сообщает, что неоплаченная бронь просрочена на момент now.
func (b *Booking) Expired(now time.Time) bool {
	return b.Status == BookingStatusPending && !now.Before(b.ExpiresAt)
}

// Blocks сообщает, учитывается ли бронь при проверке доступности на момент now.
func (b *Booking) Blocks(now time.Time) bool {
	return b.Status.Active() && !b.Expired(now)
}

// Overlaps сообщает, пересекается ли бронь с полуоткрытым интервалом [checkIn, checkOut).
func (b *Booking) Overlaps(checkIn, checkOut time.Time) bool {
	return Overlap(b.CheckIn, b.CheckOut, checkIn, checkOut)
}

// Discount описывает промокод на скидку.
type Discount struct {
	Code       string
	Percent    int
	ValidFrom  time.Time
	ValidTo    time.Time
	Active     bool
	RedeemedBy map[int64]struct{}
	CreatedAt  time.Time
}

// RedeemedByUser сообщает, погашал ли пользователь этот код.
func (d *Discount) RedeemedByUser(userID int64) bool {
	_, ok := d.RedeemedBy[userID]
	return ok
}

// SortOrder задаёт порядок выдачи результатов поиска номеров.
type SortOrder string

const (
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
	SortNameAsc   SortOrder = "name_asc"
	SortNameDesc  SortOrder = "name_desc"
)

// DefaultSearchLimit ограничивает размер выдачи поиска, если лимит не задан.
const DefaultSearchLimit = 60

// RoomFilter содержит атрибутные фильтры поиска номеров.
type RoomFilter struct {
	Query    string
	Type     string
	Location string
	MinPrice *int64
	MaxPrice *int64
	Sort     SortOrder
	Limit    int

	// IncludeUnavailable оставляет занятые номера в выдаче с признаком Available=false.
	IncludeUnavailable bool
}

// RoomAvailability содержит проекцию номера с признаком доступности на запрошенные даты.
type RoomAvailability struct {
	Room      Room `json:"room"`
	Available bool `json:"available"`
}

// BookingSummary содержит проекцию бронирования для слоя представления.
type BookingSummary struct {
	Booking    Booking
	RoomNumber string
	RoomType   string
	Nights     int
	BasePrice  int64
}
