package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/hotel-booking/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется, когда БД не настроена,
// и в тестах. Контракты совпадают с PostgresRepository.
type MemoryRepository struct {
	mu          sync.RWMutex
	nextRoomID  int64
	rooms       map[int64]model.Room
	bookings    map[string]model.Booking
	discounts   map[string]model.Discount
	redemptions map[string]map[int64]time.Time

	locksMu sync.Mutex
	locks   map[int64]chan struct{}
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms:       make(map[int64]model.Room),
		bookings:    make(map[string]model.Booking),
		discounts:   make(map[string]model.Discount),
		redemptions: make(map[string]map[int64]time.Time),
		locks:       make(map[int64]chan struct{}),
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

// LockRoom захватывает эксклюзивную блокировку номера либо ждёт её до отмены ctx.
// Возвращённый контекст совпадает с ctx.
func (r *MemoryRepository) LockRoom(ctx context.Context, roomID int64) (context.Context, func(), error) {
	r.locksMu.Lock()
	ch, ok := r.locks[roomID]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[roomID] = ch
	}
	r.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("lock room %d: %w", roomID, ctx.Err())
	}

	var once sync.Once
	return ctx, func() {
		once.Do(func() { <-ch })
	}, nil
}

func cloneRoom(room model.Room) model.Room {
	room.Amenities = slices.Clone(room.Amenities)
	return room
}

// CreateRoom сохраняет номер и заполняет его идентификатор и дату создания.
func (r *MemoryRepository) CreateRoom(_ context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rooms {
		if existing.Number == room.Number {
			return fmt.Errorf("%w: %s", ErrRoomExists, room.Number)
		}
	}

	r.nextRoomID++
	room.ID = r.nextRoomID
	room.CreatedAt = time.Now().UTC()
	r.rooms[room.ID] = cloneRoom(*room)

	return nil
}

// GetRoom возвращает номер по идентификатору.
func (r *MemoryRepository) GetRoom(_ context.Context, id int64) (*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: room %d", model.ErrNotFound, id)
	}
	room = cloneRoom(room)
	return &room, nil
}

// ListRooms возвращает все номера в порядке идентификаторов.
func (r *MemoryRepository) ListRooms(_ context.Context) ([]model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		res = append(res, cloneRoom(room))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })

	return res, nil
}

// UpdateRoomStatus меняет эксплуатационный статус номера.
func (r *MemoryRepository) UpdateRoomStatus(_ context.Context, id int64, status model.RoomStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return fmt.Errorf("%w: room %d", model.ErrNotFound, id)
	}
	room.Status = status
	r.rooms[id] = room

	return nil
}

// CreateBooking сохраняет новое бронирование.
func (r *MemoryRepository) CreateBooking(_ context.Context, b *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[b.RoomID]; !ok {
		return fmt.Errorf("%w: room %d", model.ErrNotFound, b.RoomID)
	}
	if _, ok := r.bookings[b.ID]; ok {
		return fmt.Errorf("%w: %s", ErrBookingExists, b.ID)
	}
	r.bookings[b.ID] = *b

	return nil
}

// GetBooking возвращает бронирование по идентификатору.
func (r *MemoryRepository) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
	}
	return &b, nil
}

// ListBookingsByRoom возвращает бронирования номера с указанными статусами.
func (r *MemoryRepository) ListBookingsByRoom(_ context.Context, roomID int64, statuses []model.BookingStatus) ([]model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Booking
	for _, b := range r.bookings {
		if b.RoomID == roomID && slices.Contains(statuses, b.Status) {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CheckIn.Before(res[j].CheckIn) })

	return res, nil
}

// ListBookingsByUser возвращает историю бронирований пользователя.
func (r *MemoryRepository) ListBookingsByUser(_ context.Context, userID int64) ([]model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Booking
	for _, b := range r.bookings {
		if b.UserID == userID {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })

	return res, nil
}

// ListExpiredPending возвращает неоплаченные брони с истёкшим сроком ожидания.
func (r *MemoryRepository) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []model.Booking
	for _, b := range r.bookings {
		if b.Expired(now) {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ExpiresAt.Before(res[j].ExpiresAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}

	return res, nil
}

// UpdateBookingStatus переводит бронь из статуса from в to, только если текущий статус равен from.
func (r *MemoryRepository) UpdateBookingStatus(_ context.Context, id string, from, to model.BookingStatus, at time.Time) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
	}
	if b.Status != from {
		return nil, fmt.Errorf("%w: booking %s is %s, expected %s", ErrStatusChanged, id, b.Status, from)
	}

	b.Status = to
	b.UpdatedAt = at
	r.bookings[id] = b

	return &b, nil
}

// CreateDiscount сохраняет промокод.
func (r *MemoryRepository) CreateDiscount(_ context.Context, d *model.Discount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.discounts[d.Code]; ok {
		return fmt.Errorf("%w: %s", ErrDiscountExists, d.Code)
	}
	d.CreatedAt = time.Now().UTC()
	stored := *d
	stored.RedeemedBy = nil
	r.discounts[d.Code] = stored

	return nil
}

// GetDiscount возвращает промокод вместе с множеством погасивших его пользователей.
func (r *MemoryRepository) GetDiscount(_ context.Context, code string) (*model.Discount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.discounts[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrDiscountNotFound, code)
	}

	d.RedeemedBy = make(map[int64]struct{}, len(r.redemptions[code]))
	for u := range r.redemptions[code] {
		d.RedeemedBy[u] = struct{}{}
	}

	return &d, nil
}

// RedeemDiscount атомарно фиксирует погашение промокода пользователем.
func (r *MemoryRepository) RedeemDiscount(_ context.Context, code string, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.discounts[code]; !ok {
		return fmt.Errorf("%w: %s", model.ErrDiscountNotFound, code)
	}

	users, ok := r.redemptions[code]
	if !ok {
		users = make(map[int64]time.Time)
		r.redemptions[code] = users
	}
	if _, redeemed := users[userID]; redeemed {
		return fmt.Errorf("%w: %s", model.ErrDiscountAlreadyRedeemed, code)
	}
	users[userID] = at

	return nil
}

// ReleaseRedemption отменяет погашение промокода пользователем.
func (r *MemoryRepository) ReleaseRedemption(_ context.Context, code string, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.redemptions[code], userID)
	return nil
}
