// Package cache содержит кэш результатов поиска номеров.
package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/hotel-booking/internal/model"
)

// sharedLoadTimeout ограничивает общую загрузку, которую ждут несколько запросов.
const sharedLoadTimeout = 30 * time.Second

// LoadFunc загружает результат поиска при промахе кэша.
type LoadFunc func(ctx context.Context) ([]model.RoomAvailability, error)

// RoomCache кэширует результаты поиска номеров по каноническому ключу запроса.
// Любая запись номера или бронирования должна вызывать Invalidate.
type RoomCache interface {
	Fetch(ctx context.Context, key string, load LoadFunc) ([]model.RoomAvailability, error)
	Invalidate(ctx context.Context) error
}

// Nop не кэширует ничего и всегда вызывает load.
type Nop struct{}

// Fetch вызывает load.
func (Nop) Fetch(ctx context.Context, _ string, load LoadFunc) ([]model.RoomAvailability, error) {
	return load(ctx)
}

// Invalidate ничего не делает.
func (Nop) Invalidate(context.Context) error {
	return nil
}

// shared выполняет загрузку один раз для всех одновременных вызовов с ключом key.
// Загрузка не отменяется вместе с контекстом вызвавшего её первым запроса, а каждый
// вызывающий ждёт результат не дольше, чем живёт его собственный ctx.
func shared(ctx context.Context, group *singleflight.Group, key string, load LoadFunc) ([]model.RoomAvailability, error) {
	ch := group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		return load(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.RoomAvailability), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
