package cache

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/hotel-booking/internal/model"
)

type memoryEntry struct {
	rooms     []model.RoomAvailability
	expiresAt time.Time
}

// Memory хранит результаты поиска в памяти процесса с фиксированным TTL.
type Memory struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu         sync.Mutex
	generation uint64
	entries    map[string]memoryEntry
}

// NewMemory создаёт кэш в памяти с указанным временем жизни записей.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Fetch возвращает закэшированный результат либо загружает его.
// Одновременные промахи по одному ключу выполняют одну загрузку.
func (c *Memory) Fetch(ctx context.Context, key string, load LoadFunc) ([]model.RoomAvailability, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	gen := c.generation
	c.mu.Unlock()

	if ok && c.now().Before(entry.expiresAt) {
		return slices.Clone(entry.rooms), nil
	}

	rooms, err := shared(ctx, &c.group, strconv.FormatUint(gen, 10)+"|"+key, func(ctx context.Context) ([]model.RoomAvailability, error) {
		rooms, err := load(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// Результат, загруженный до инвалидации, не сохраняется.
		if c.generation == gen {
			c.entries[key] = memoryEntry{rooms: rooms, expiresAt: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()

		return rooms, nil
	})
	if err != nil {
		return nil, err
	}

	return slices.Clone(rooms), nil
}

// Invalidate сбрасывает все записи.
func (c *Memory) Invalidate(context.Context) error {
	c.mu.Lock()
	c.generation++
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}
