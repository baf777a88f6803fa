package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/hotel-booking/internal/cache"
	"github.com/mmeshcher/hotel-booking/internal/model"
	"github.com/mmeshcher/hotel-booking/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type engine struct {
	repo         *repository.MemoryRepository
	clock        *fakeClock
	rooms        *RoomRegistry
	discounts    *DiscountValidator
	availability *AvailabilityChecker
	bookings     *BookingManager
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	return newEngineWithCache(t, cache.Nop{})
}

func newEngineWithCache(t *testing.T, roomCache cache.RoomCache) *engine {
	t.Helper()

	repo := repository.NewMemoryRepository()
	clock := newFakeClock(t0)
	logger := zap.NewNop()

	rooms := NewRoomRegistry(repo, roomCache, logger)
	discounts := NewDiscountValidator(repo, clock)
	availability := NewAvailabilityChecker(repo, repo, roomCache, clock)
	bookings := NewBookingManager(repo, repo, availability, discounts, roomCache, clock, 15*time.Minute, logger)

	return &engine{
		repo:         repo,
		clock:        clock,
		rooms:        rooms,
		discounts:    discounts,
		availability: availability,
		bookings:     bookings,
	}
}

func (e *engine) addRoom(t *testing.T, number, roomType string, price int64) model.Room {
	t.Helper()

	room := model.Room{Number: number, Type: roomType, Location: "Main building", Price: price}
	require.NoError(t, e.rooms.Add(context.Background(), &room))
	return room
}

func (e *engine) addDiscount(t *testing.T, code string, percent int) {
	t.Helper()

	d := model.Discount{Code: code, Percent: percent, Active: true}
	require.NoError(t, e.discounts.Create(context.Background(), &d))
}
