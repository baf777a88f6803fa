package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/hotel-booking/internal/model"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestWithRetry_RetriesTransientErrors(t *testing.T) {
	r := &PostgresRepository{retryBase: time.Millisecond}

	calls := 0
	err := r.withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = r.withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.UniqueViolation}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, isPgCode(err, pgerrcode.UniqueViolation))
}

// Интеграционный тест запускается при заданной переменной TEST_DATABASE_URI.
func TestPostgresRepository_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	ctx := context.Background()
	r, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	defer r.Close()

	room := model.Room{
		Number:   "it-" + uuid.NewString()[:8],
		Type:     "Suite",
		Price:    25000,
		Capacity: 3,
		Status:   model.RoomStatusAvailable,
	}
	require.NoError(t, r.CreateRoom(ctx, &room))
	require.NotZero(t, room.ID)

	dup := room
	assert.ErrorIs(t, r.CreateRoom(ctx, &dup), ErrRoomExists)

	now := time.Now().UTC().Truncate(time.Microsecond)
	b := model.Booking{
		ID:         uuid.NewString(),
		UserID:     1,
		RoomID:     room.ID,
		CheckIn:    model.NormalizeDate(now),
		CheckOut:   model.NormalizeDate(now).AddDate(0, 0, 2),
		TotalPrice: 50000,
		Status:     model.BookingStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(15 * time.Minute),
	}
	require.NoError(t, r.CreateBooking(ctx, &b))

	got, err := r.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.CheckIn, got.CheckIn.UTC())
	assert.Equal(t, model.BookingStatusPending, got.Status)

	active, err := r.ListBookingsByRoom(ctx, room.ID, model.ActiveStatuses)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, unlock, err := r.LockRoom(ctx, room.ID)
	require.NoError(t, err)
	unlock()

	_, err = r.UpdateBookingStatus(ctx, b.ID, model.BookingStatusPending, model.BookingStatusConfirmed, now)
	require.NoError(t, err)
	_, err = r.UpdateBookingStatus(ctx, b.ID, model.BookingStatusPending, model.BookingStatusCancelled, now)
	assert.ErrorIs(t, err, ErrStatusChanged)

	code := "IT" + uuid.NewString()[:6]
	require.NoError(t, r.CreateDiscount(ctx, &model.Discount{
		Code: code, Percent: 10, Active: true, ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour),
	}))
	require.NoError(t, r.RedeemDiscount(ctx, code, 1, now))
	assert.ErrorIs(t, r.RedeemDiscount(ctx, code, 1, now), model.ErrDiscountAlreadyRedeemed)

	d, err := r.GetDiscount(ctx, code)
	require.NoError(t, err)
	assert.True(t, d.RedeemedByUser(1))
}

func withMaxConns(dsn string, n int) string {
	param := fmt.Sprintf("pool_max_conns=%d", n)
	switch {
	case !strings.Contains(dsn, "://"):
		return dsn + " " + param
	case strings.Contains(dsn, "?"):
		return dsn + "&" + param
	default:
		return dsn + "?" + param
	}
}

// Владельцы блокировок номеров не должны ждать свободного соединения из пула,
// даже когда параллельных бронирований больше, чем соединений.
func TestPostgresRepository_LockedWritesDoNotExhaustPool(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	const maxConns = 2
	r, err := NewPostgresRepository(withMaxConns(dsn, maxConns))
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rooms := make([]model.Room, 3)
	for i := range rooms {
		rooms[i] = model.Room{Number: "it-" + uuid.NewString()[:8], Type: "Standard", Price: 10000, Status: model.RoomStatusAvailable}
		require.NoError(t, r.CreateRoom(ctx, &rooms[i]))
	}

	const workers = 4 * maxConns
	now := time.Now().UTC().Truncate(time.Microsecond)
	start := model.NormalizeDate(now)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			room := rooms[i%len(rooms)]
			lockedCtx, unlock, err := r.LockRoom(ctx, room.ID)
			if err != nil {
				errs <- err
				return
			}
			defer unlock()

			if _, err := r.GetRoom(lockedCtx, room.ID); err != nil {
				errs <- err
				return
			}
			if _, err := r.ListBookingsByRoom(lockedCtx, room.ID, model.ActiveStatuses); err != nil {
				errs <- err
				return
			}

			b := model.Booking{
				ID:        uuid.NewString(),
				UserID:    int64(i + 1),
				RoomID:    room.ID,
				CheckIn:   start.AddDate(0, 0, 2*i),
				CheckOut:  start.AddDate(0, 0, 2*i+1),
				Status:    model.BookingStatusPending,
				CreatedAt: now,
				UpdatedAt: now,
				ExpiresAt: now.Add(15 * time.Minute),
			}
			if err := r.CreateBooking(lockedCtx, &b); err != nil {
				errs <- err
				return
			}
			if _, err := r.UpdateBookingStatus(lockedCtx, b.ID, model.BookingStatusPending, model.BookingStatusConfirmed, now); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	var total int
	for _, room := range rooms {
		active, err := r.ListBookingsByRoom(ctx, room.ID, model.ActiveStatuses)
		require.NoError(t, err)
		total += len(active)
	}
	assert.Equal(t, workers, total)

	dup := model.Booking{ID: uuid.NewString(), RoomID: rooms[0].ID, CheckIn: start, CheckOut: start.AddDate(0, 0, 1),
		Status: model.BookingStatusCancelled, CreatedAt: now, UpdatedAt: now, ExpiresAt: now}
	require.NoError(t, r.CreateBooking(ctx, &dup))
	assert.ErrorIs(t, r.CreateBooking(ctx, &dup), ErrBookingExists)
}
