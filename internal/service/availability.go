package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmeshcher/hotel-booking/internal/cache"
	"github.com/mmeshcher/hotel-booking/internal/model"
)

// AvailabilityChecker определяет, свободен ли номер на интервал дат.
// Занятость выводится из активных бронирований, а не из флага номера.
type AvailabilityChecker struct {
	rooms    RoomStore
	bookings BookingStore
	cache    cache.RoomCache
	clock    model.Clock
}

// NewAvailabilityChecker создаёт проверку доступности.
func NewAvailabilityChecker(rooms RoomStore, bookings BookingStore, roomCache cache.RoomCache, clock model.Clock) *AvailabilityChecker {
	return &AvailabilityChecker{
		rooms:    rooms,
		bookings: bookings,
		cache:    roomCache,
		clock:    clock,
	}
}

// IsAvailable сообщает, свободен ли номер на [checkIn, checkOut). Бронь excludeBookingID
// не учитывается, это нужно при повторной проверке во время её собственного подтверждения.
// Номер на обслуживании недоступен независимо от дат.
func (c *AvailabilityChecker) IsAvailable(ctx context.Context, roomID int64, checkIn, checkOut time.Time, excludeBookingID string) (bool, error) {
	in, out, err := model.NormalizeRange(checkIn, checkOut)
	if err != nil {
		return false, err
	}

	room, err := c.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}

	return c.roomFree(ctx, room, in, out, excludeBookingID)
}

// roomFree ожидает уже нормализованный интервал.
func (c *AvailabilityChecker) roomFree(ctx context.Context, room *model.Room, in, out time.Time, excludeBookingID string) (bool, error) {
	if room.UnderMaintenance() {
		return false, nil
	}

	bookings, err := c.bookings.ListBookingsByRoom(ctx, room.ID, model.ActiveStatuses)
	if err != nil {
		return false, fmt.Errorf("list room bookings: %w", err)
	}

	now := c.clock.Now()
	for _, b := range bookings {
		if b.ID == excludeBookingID || !b.Blocks(now) {
			continue
		}
		if b.Overlaps(in, out) {
			return false, nil
		}
	}

	return true, nil
}

// FindAvailableRooms применяет атрибутные фильтры, а затем, если заданы обе даты,
// исключает номера, занятые на этот интервал. При filter.IncludeUnavailable занятые номера
// остаются в выдаче с признаком Available=false. Номера на обслуживании в выдачу не попадают.
func (c *AvailabilityChecker) FindAvailableRooms(ctx context.Context, filter model.RoomFilter, checkIn, checkOut *time.Time) ([]model.RoomAvailability, error) {
	if (checkIn == nil) != (checkOut == nil) {
		return nil, fmt.Errorf("%w: both check-in and check-out are required", model.ErrInvalidRange)
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, fmt.Errorf("%w: min price exceeds max price", model.ErrValidation)
	}

	var in, out time.Time
	if checkIn != nil {
		var err error
		in, out, err = model.NormalizeRange(*checkIn, *checkOut)
		if err != nil {
			return nil, err
		}
	}

	filter = normalizeFilter(filter)

	return c.cache.Fetch(ctx, searchKey(filter, in, out), func(ctx context.Context) ([]model.RoomAvailability, error) {
		return c.search(ctx, filter, in, out)
	})
}

func (c *AvailabilityChecker) search(ctx context.Context, filter model.RoomFilter, in, out time.Time) ([]model.RoomAvailability, error) {
	rooms, err := c.rooms.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	res := make([]model.RoomAvailability, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		if room.UnderMaintenance() || !matches(room, filter) {
			continue
		}

		available := true
		if !in.IsZero() {
			available, err = c.roomFree(ctx, room, in, out, "")
			if err != nil {
				return nil, err
			}
		}
		if !available && !filter.IncludeUnavailable {
			continue
		}

		res = append(res, model.RoomAvailability{Room: *room, Available: available})
	}

	sortRooms(res, filter.Sort)

	if len(res) > filter.Limit {
		res = res[:filter.Limit]
	}

	return res, nil
}

func normalizeFilter(f model.RoomFilter) model.RoomFilter {
	f.Query = strings.ToLower(strings.TrimSpace(f.Query))
	f.Type = strings.ToLower(strings.TrimSpace(f.Type))
	f.Location = strings.ToLower(strings.TrimSpace(f.Location))

	switch f.Sort {
	case model.SortPriceAsc, model.SortPriceDesc, model.SortNameAsc, model.SortNameDesc:
	default:
		f.Sort = model.SortPriceAsc
	}

	if f.Limit <= 0 {
		f.Limit = model.DefaultSearchLimit
	}

	return f
}

func matches(room *model.Room, f model.RoomFilter) bool {
	if f.Type != "" && !strings.Contains(strings.ToLower(room.Type), f.Type) {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(room.Location), f.Location) {
		return false
	}
	if f.MinPrice != nil && room.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && room.Price > *f.MaxPrice {
		return false
	}

	if f.Query == "" {
		return true
	}
	for _, field := range []string{room.Name, room.Type, room.Number, room.Location} {
		if strings.Contains(strings.ToLower(field), f.Query) {
			return true
		}
	}
	return false
}

// sortRooms упорядочивает выдачу; при равенстве ключа порядок задаёт идентификатор номера.
func sortRooms(rooms []model.RoomAvailability, order model.SortOrder) {
	sort.Slice(rooms, func(i, j int) bool {
		a, b := &rooms[i].Room, &rooms[j].Room

		switch order {
		case model.SortPriceDesc:
			if a.Price != b.Price {
				return a.Price > b.Price
			}
		case model.SortNameAsc, model.SortNameDesc:
			an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if an != bn {
				if order == model.SortNameDesc {
					return an > bn
				}
				return an < bn
			}
		default:
			if a.Price != b.Price {
				return a.Price < b.Price
			}
		}

		return a.ID < b.ID
	})
}

func searchKey(f model.RoomFilter, in, out time.Time) string {
	price := func(p *int64) string {
		if p == nil {
			return "-"
		}
		return fmt.Sprint(*p)
	}

	dates := "-"
	if !in.IsZero() {
		dates = in.Format(time.DateOnly) + ".." + out.Format(time.DateOnly)
	}

	return fmt.Sprintf("q=%q|type=%q|loc=%q|min=%s|max=%s|dates=%s|sort=%s|limit=%d|all=%t",
		f.Query, f.Type, f.Location, price(f.MinPrice), price(f.MaxPrice), dates, f.Sort, f.Limit, f.IncludeUnavailable)
}
