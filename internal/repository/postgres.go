// Package repository содержит реализации хранилища номеров, бронирований и промокодов.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/hotel-booking/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrRoomExists возвращается при попытке создать номер с уже существующим номером комнаты.
	ErrRoomExists = errors.New("room number already exists")
	// ErrDiscountExists возвращается при попытке создать уже существующий промокод.
	ErrDiscountExists = errors.New("discount code already exists")
	// ErrBookingExists возвращается при попытке сохранить бронь с уже занятым идентификатором.
	ErrBookingExists = errors.New("booking already exists")
	// ErrStatusChanged возвращается, если статус брони изменился до условного обновления.
	ErrStatusChanged = errors.New("booking status changed concurrently")
)

const bookingColumns = `id, user_id, room_id, check_in, check_out, total_price,
	discount_code, discount_amount, status, created_at, updated_at, expires_at`

const roomColumns = `id, number, name, type, location, price, capacity, status,
	amenities, description, created_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool      *pgxpool.Pool
	retryBase time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, retryBase: time.Second}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликте сериализации, дедлоке и обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(r.retryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// querier объединяет методы пула и отдельного соединения, через которые выполняются запросы.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type lockedConnKey struct{}

// db возвращает соединение, удерживающее блокировку номера, если ctx получен из LockRoom,
// иначе пул.
func (r *PostgresRepository) db(ctx context.Context) querier {
	if conn, ok := ctx.Value(lockedConnKey{}).(*pgxpool.Conn); ok {
		return conn
	}
	return r.pool
}

// LockRoom захватывает сессионную advisory-блокировку номера на выделенном соединении.
// Блокировка действует для всех экземпляров сервиса, работающих с этой БД.
// Все запросы с возвращённым контекстом выполняются на том же соединении, поэтому
// владелец блокировки не занимает из пула второе соединение.
func (r *PostgresRepository) LockRoom(ctx context.Context, roomID int64) (context.Context, func(), error) {
	if _, ok := ctx.Value(lockedConnKey{}).(*pgxpool.Conn); ok {
		return nil, nil, fmt.Errorf("lock room %d: another room lock is already held", roomID)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire conn: %w", err)
	}

	key := fmt.Sprintf("room:%d", roomID)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		conn.Release()
		return nil, nil, fmt.Errorf("lock room %d: %w", roomID, err)
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
				// Сессионная блокировка снимается вместе с соединением.
				_ = conn.Conn().Close(unlockCtx)
			}
			conn.Release()
		})
	}

	return context.WithValue(ctx, lockedConnKey{}, conn), unlock, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (model.Room, error) {
	var (
		room   model.Room
		status string
	)
	err := row.Scan(
		&room.ID, &room.Number, &room.Name, &room.Type, &room.Location,
		&room.Price, &room.Capacity, &status, &room.Amenities, &room.Description,
		&room.CreatedAt,
	)
	room.Status = model.RoomStatus(status)
	return room, err
}

func scanBooking(row scanner) (model.Booking, error) {
	var (
		b        model.Booking
		discount *string
		status   string
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.RoomID, &b.CheckIn, &b.CheckOut, &b.TotalPrice,
		&discount, &b.DiscountAmount, &status, &b.CreatedAt, &b.UpdatedAt, &b.ExpiresAt,
	)
	if discount != nil {
		b.DiscountCode = *discount
	}
	b.Status = model.BookingStatus(status)
	return b, err
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()

	var res []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func statusStrings(statuses []model.BookingStatus) []string {
	res := make([]string, 0, len(statuses))
	for _, s := range statuses {
		res = append(res, string(s))
	}
	return res
}

// CreateRoom сохраняет номер и заполняет его идентификатор и дату создания.
func (r *PostgresRepository) CreateRoom(ctx context.Context, room *model.Room) error {
	amenities := room.Amenities
	if amenities == nil {
		amenities = []string{}
	}

	err := r.db(ctx).QueryRow(ctx,
		`INSERT INTO rooms (number, name, type, location, price, capacity, status, amenities, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		room.Number, room.Name, room.Type, room.Location, room.Price, room.Capacity,
		string(room.Status), amenities, room.Description,
	).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return fmt.Errorf("%w: %s", ErrRoomExists, room.Number)
		}
		return fmt.Errorf("create room: %w", err)
	}

	return nil
}

// GetRoom возвращает номер по идентификатору.
func (r *PostgresRepository) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	var room model.Room
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		room, err = scanRoom(r.db(ctx).QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: room %d", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	return &room, nil
}

// ListRooms возвращает все номера в порядке идентификаторов.
func (r *PostgresRepository) ListRooms(ctx context.Context) ([]model.Room, error) {
	var res []model.Room
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.db(ctx).Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			room, err := scanRoom(rows)
			if err != nil {
				return fmt.Errorf("scan room: %w", err)
			}
			res = append(res, room)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}

	return res, nil
}

// UpdateRoomStatus меняет эксплуатационный статус номера.
func (r *PostgresRepository) UpdateRoomStatus(ctx context.Context, id int64, status model.RoomStatus) error {
	tag, err := r.db(ctx).Exec(ctx, `UPDATE rooms SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update room status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: room %d", model.ErrNotFound, id)
	}
	return nil
}

// CreateBooking сохраняет новое бронирование.
func (r *PostgresRepository) CreateBooking(ctx context.Context, b *model.Booking) error {
	var discount *string
	if b.DiscountCode != "" {
		discount = &b.DiscountCode
	}

	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.UserID, b.RoomID, b.CheckIn, b.CheckOut, b.TotalPrice,
		discount, b.DiscountAmount, string(b.Status), b.CreatedAt, b.UpdatedAt, b.ExpiresAt,
	)
	if err != nil {
		switch {
		case isPgCode(err, pgerrcode.ForeignKeyViolation):
			return fmt.Errorf("%w: room %d", model.ErrNotFound, b.RoomID)
		case isPgCode(err, pgerrcode.UniqueViolation):
			return fmt.Errorf("%w: %s", ErrBookingExists, b.ID)
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	return nil
}

// GetBooking возвращает бронирование по идентификатору.
func (r *PostgresRepository) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		b, err = scanBooking(r.db(ctx).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}

	return &b, nil
}

// ListBookingsByRoom возвращает бронирования номера с указанными статусами.
func (r *PostgresRepository) ListBookingsByRoom(ctx context.Context, roomID int64, statuses []model.BookingStatus) ([]model.Booking, error) {
	var res []model.Booking
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.db(ctx).Query(ctx,
			`SELECT `+bookingColumns+`
			 FROM bookings
			 WHERE room_id = $1 AND status = ANY($2)
			 ORDER BY check_in`,
			roomID, statusStrings(statuses),
		)
		if err != nil {
			return err
		}
		res, err = collectBookings(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select bookings by room: %w", err)
	}

	return res, nil
}

// ListBookingsByUser возвращает историю бронирований пользователя.
func (r *PostgresRepository) ListBookingsByUser(ctx context.Context, userID int64) ([]model.Booking, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select bookings by user: %w", err)
	}

	return collectBookings(rows)
}

// ListExpiredPending возвращает неоплаченные брони с истёкшим сроком ожидания.
func (r *PostgresRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE status = $1 AND expires_at <= $2
		 ORDER BY expires_at
		 LIMIT $3`,
		string(model.BookingStatusPending), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select expired bookings: %w", err)
	}

	return collectBookings(rows)
}

// UpdateBookingStatus переводит бронь из статуса from в to, только если текущий статус равен from.
func (r *PostgresRepository) UpdateBookingStatus(ctx context.Context, id string, from, to model.BookingStatus, at time.Time) (*model.Booking, error) {
	b, err := scanBooking(r.db(ctx).QueryRow(ctx,
		`UPDATE bookings SET status = $3, updated_at = $4
		 WHERE id = $1 AND status = $2
		 RETURNING `+bookingColumns,
		id, string(from), string(to), at,
	))
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	var current string
	err = r.db(ctx).QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("select booking status: %w", err)
	}

	return nil, fmt.Errorf("%w: booking %s is %s, expected %s", ErrStatusChanged, id, current, from)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// CreateDiscount сохраняет промокод.
func (r *PostgresRepository) CreateDiscount(ctx context.Context, d *model.Discount) error {
	err := r.db(ctx).QueryRow(ctx,
		`INSERT INTO discounts (code, percent, valid_from, valid_to, active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		d.Code, d.Percent, nullTime(d.ValidFrom), nullTime(d.ValidTo), d.Active,
	).Scan(&d.CreatedAt)
	if err != nil {
		if isPgCode(err, pgerrcode.UniqueViolation) {
			return fmt.Errorf("%w: %s", ErrDiscountExists, d.Code)
		}
		return fmt.Errorf("create discount: %w", err)
	}

	return nil
}

// GetDiscount возвращает промокод вместе с множеством погасивших его пользователей.
func (r *PostgresRepository) GetDiscount(ctx context.Context, code string) (*model.Discount, error) {
	var (
		d        model.Discount
		from, to *time.Time
		users    []int64
	)
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.db(ctx).QueryRow(ctx,
			`SELECT d.code, d.percent, d.valid_from, d.valid_to, d.active, d.created_at,
			        COALESCE(array_agg(rd.user_id) FILTER (WHERE rd.user_id IS NOT NULL), '{}')
			 FROM discounts d
			 LEFT JOIN discount_redemptions rd ON rd.code = d.code
			 WHERE d.code = $1
			 GROUP BY d.code`,
			code,
		).Scan(&d.Code, &d.Percent, &from, &to, &d.Active, &d.CreatedAt, &users)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", model.ErrDiscountNotFound, code)
		}
		return nil, fmt.Errorf("get discount: %w", err)
	}

	if from != nil {
		d.ValidFrom = *from
	}
	if to != nil {
		d.ValidTo = *to
	}

	d.RedeemedBy = make(map[int64]struct{}, len(users))
	for _, u := range users {
		d.RedeemedBy[u] = struct{}{}
	}

	return &d, nil
}

// RedeemDiscount атомарно фиксирует погашение промокода пользователем.
// Повторное погашение тем же пользователем отклоняется первичным ключом.
func (r *PostgresRepository) RedeemDiscount(ctx context.Context, code string, userID int64, at time.Time) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO discount_redemptions (code, user_id, redeemed_at) VALUES ($1, $2, $3)`,
		code, userID, at,
	)
	if err != nil {
		switch {
		case isPgCode(err, pgerrcode.UniqueViolation):
			return fmt.Errorf("%w: %s", model.ErrDiscountAlreadyRedeemed, code)
		case isPgCode(err, pgerrcode.ForeignKeyViolation):
			return fmt.Errorf("%w: %s", model.ErrDiscountNotFound, code)
		}
		return fmt.Errorf("insert redemption: %w", err)
	}

	return nil
}

// ReleaseRedemption отменяет погашение промокода пользователем.
func (r *PostgresRepository) ReleaseRedemption(ctx context.Context, code string, userID int64) error {
	_, err := r.db(ctx).Exec(ctx,
		`DELETE FROM discount_redemptions WHERE code = $1 AND user_id = $2`,
		code, userID,
	)
	if err != nil {
		return fmt.Errorf("delete redemption: %w", err)
	}
	return nil
}
