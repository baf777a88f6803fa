package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/hotel-booking/internal/cache"
	"github.com/mmeshcher/hotel-booking/internal/model"
)

func ptr[T any](v T) *T {
	return &v
}

func numbers(rooms []model.RoomAvailability) []string {
	res := make([]string, 0, len(rooms))
	for _, r := range rooms {
		res = append(res, r.Room.Number)
	}
	return res
}

func TestAvailabilityChecker_IsAvailable(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	room := e.addRoom(t, "101", "Deluxe", 10000)

	b, err := e.bookings.Create(ctx, 1, room.ID, day("2024-03-01"), day("2024-03-04"), "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      string
		out     string
		exclude string
		want    bool
	}{
		{name: "same range", in: "2024-03-01", out: "2024-03-04", want: false},
		{name: "partial overlap", in: "2024-03-03", out: "2024-03-05", want: false},
		{name: "check-in on check-out day", in: "2024-03-04", out: "2024-03-06", want: true},
		{name: "check-out on check-in day", in: "2024-02-28", out: "2024-03-01", want: true},
		{name: "own booking excluded", in: "2024-03-01", out: "2024-03-04", exclude: b.ID, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.availability.IsAvailable(ctx, room.ID, day(tt.in), day(tt.out), tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = e.availability.IsAvailable(ctx, room.ID, day("2024-03-04"), day("2024-03-01"), "")
	assert.ErrorIs(t, err, model.ErrInvalidRange)

	_, err = e.availability.IsAvailable(ctx, 42, day("2024-03-01"), day("2024-03-04"), "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAvailabilityChecker_CancelledAndCheckedOutDoNotBlock(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	room := e.addRoom(t, "101", "Deluxe", 10000)

	b, err := e.bookings.Create(ctx, 1, room.ID, day("2024-03-01"), day("2024-03-04"), "")
	require.NoError(t, err)
	_, err = e.bookings.Cancel(ctx, b.ID)
	require.NoError(t, err)

	free, err := e.availability.IsAvailable(ctx, room.ID, day("2024-03-01"), day("2024-03-04"), "")
	require.NoError(t, err)
	assert.True(t, free)
}

func TestAvailabilityChecker_MaintenanceBlocksAllDates(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	room := e.addRoom(t, "101", "Deluxe", 10000)
	require.NoError(t, e.rooms.SetStatus(ctx, room.ID, model.RoomStatusMaintenance))

	free, err := e.availability.IsAvailable(ctx, room.ID, day("2030-01-01"), day("2030-01-02"), "")
	require.NoError(t, err)
	assert.False(t, free)
}

func TestAvailabilityChecker_FindAvailableRooms(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	standard := model.Room{Number: "101", Name: "Garden view", Type: "Standard", Location: "North wing", Price: 8000}
	deluxe := model.Room{Number: "201", Name: "Sea view", Type: "Deluxe", Location: "South wing", Price: 15000}
	suite := model.Room{Number: "301", Name: "Atrium", Type: "Suite", Location: "South wing", Price: 30000}
	closed := model.Room{Number: "401", Name: "Attic", Type: "Deluxe", Location: "North wing", Price: 12000, Status: model.RoomStatusMaintenance}
	for _, r := range []*model.Room{&standard, &deluxe, &suite, &closed} {
		require.NoError(t, e.rooms.Add(ctx, r))
	}

	_, err := e.bookings.Create(ctx, 1, deluxe.ID, day("2024-03-02"), day("2024-03-05"), "")
	require.NoError(t, err)

	in, out := day("2024-03-01"), day("2024-03-03")

	tests := []struct {
		name   string
		filter model.RoomFilter
		in     *time.Time
		out    *time.Time
		want   []string
	}{
		{name: "no dates", filter: model.RoomFilter{}, want: []string{"101", "201", "301"}},
		{name: "dates exclude booked", filter: model.RoomFilter{}, in: &in, out: &out, want: []string{"101", "301"}},
		{name: "type filter", filter: model.RoomFilter{Type: "deluxe"}, want: []string{"201"}},
		{name: "location filter", filter: model.RoomFilter{Location: "SOUTH"}, want: []string{"201", "301"}},
		{name: "price range", filter: model.RoomFilter{MinPrice: ptr(int64(9000)), MaxPrice: ptr(int64(20000))}, want: []string{"201"}},
		{name: "query by name", filter: model.RoomFilter{Query: "view"}, want: []string{"101", "201"}},
		{name: "query by number", filter: model.RoomFilter{Query: "301"}, want: []string{"301"}},
		{name: "price desc", filter: model.RoomFilter{Sort: model.SortPriceDesc}, want: []string{"301", "201", "101"}},
		{name: "name asc", filter: model.RoomFilter{Sort: model.SortNameAsc}, want: []string{"301", "101", "201"}},
		{name: "name desc", filter: model.RoomFilter{Sort: model.SortNameDesc}, want: []string{"201", "101", "301"}},
		{name: "limit", filter: model.RoomFilter{Limit: 2}, want: []string{"101", "201"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.availability.FindAvailableRooms(ctx, tt.filter, tt.in, tt.out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, numbers(got))
		})
	}
}

func TestAvailabilityChecker_FindIncludeUnavailable(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	free := e.addRoom(t, "101", "Deluxe", 10000)
	busy := e.addRoom(t, "102", "Deluxe", 11000)

	_, err := e.bookings.Create(ctx, 1, busy.ID, day("2024-03-01"), day("2024-03-04"), "")
	require.NoError(t, err)

	in, out := day("2024-03-02"), day("2024-03-03")
	got, err := e.availability.FindAvailableRooms(ctx, model.RoomFilter{IncludeUnavailable: true}, &in, &out)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, free.ID, got[0].Room.ID)
	assert.True(t, got[0].Available)
	assert.Equal(t, busy.ID, got[1].Room.ID)
	assert.False(t, got[1].Available)
}

func TestAvailabilityChecker_FindRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	in := day("2024-03-01")
	_, err := e.availability.FindAvailableRooms(ctx, model.RoomFilter{}, &in, nil)
	assert.ErrorIs(t, err, model.ErrInvalidRange)

	_, err = e.availability.FindAvailableRooms(ctx, model.RoomFilter{}, &in, &in)
	assert.ErrorIs(t, err, model.ErrInvalidRange)

	_, err = e.availability.FindAvailableRooms(ctx, model.RoomFilter{MinPrice: ptr(int64(10)), MaxPrice: ptr(int64(5))}, nil, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAvailabilityChecker_CacheInvalidatedByBookingWrites(t *testing.T) {
	ctx := context.Background()
	e := newEngineWithCache(t, cache.NewMemory(time.Hour))
	room := e.addRoom(t, "101", "Deluxe", 10000)

	in, out := day("2024-03-01"), day("2024-03-04")

	got, err := e.availability.FindAvailableRooms(ctx, model.RoomFilter{}, &in, &out)
	require.NoError(t, err)
	require.Len(t, got, 1)

	b, err := e.bookings.Create(ctx, 1, room.ID, in, out, "")
	require.NoError(t, err)

	got, err = e.availability.FindAvailableRooms(ctx, model.RoomFilter{}, &in, &out)
	require.NoError(t, err)
	assert.Empty(t, got, "booking must evict cached search results")

	_, err = e.bookings.Cancel(ctx, b.ID)
	require.NoError(t, err)

	got, err = e.availability.FindAvailableRooms(ctx, model.RoomFilter{}, &in, &out)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, e.rooms.SetStatus(ctx, room.ID, model.RoomStatusMaintenance))
	got, err = e.availability.FindAvailableRooms(ctx, model.RoomFilter{}, &in, &out)
	require.NoError(t, err)
	assert.Empty(t, got)
}
