package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/hotel-booking/internal/cache"
	"github.com/mmeshcher/hotel-booking/internal/model"
)

// RoomRegistry хранит номера, их атрибуты и эксплуатационный статус.
type RoomRegistry struct {
	store  RoomStore
	cache  cache.RoomCache
	logger *zap.Logger
}

// NewRoomRegistry создаёт реестр номеров.
func NewRoomRegistry(store RoomStore, roomCache cache.RoomCache, logger *zap.Logger) *RoomRegistry {
	return &RoomRegistry{store: store, cache: roomCache, logger: logger}
}

// Add регистрирует новый номер.
func (r *RoomRegistry) Add(ctx context.Context, room *model.Room) error {
	room.Number = strings.TrimSpace(room.Number)
	room.Type = strings.TrimSpace(room.Type)
	if room.Status == "" {
		room.Status = model.RoomStatusAvailable
	}
	if room.Capacity == 0 {
		room.Capacity = 2
	}
	if room.Name == "" {
		room.Name = fmt.Sprintf("%s - %s", room.Type, room.Number)
	}

	switch {
	case room.Number == "", room.Type == "":
		return fmt.Errorf("%w: room number and type are required", model.ErrValidation)
	case room.Price < 0:
		return fmt.Errorf("%w: room price must not be negative", model.ErrValidation)
	case room.Capacity < 0:
		return fmt.Errorf("%w: room capacity must be positive", model.ErrValidation)
	case !room.Status.Valid():
		return fmt.Errorf("%w: unknown room status %q", model.ErrValidation, room.Status)
	}

	if err := r.store.CreateRoom(ctx, room); err != nil {
		return err
	}

	invalidate(ctx, r.cache, r.logger)
	r.logger.Info("room added", zap.Int64("room_id", room.ID), zap.String("number", room.Number))

	return nil
}

// Get возвращает номер по идентификатору.
func (r *RoomRegistry) Get(ctx context.Context, id int64) (*model.Room, error) {
	return r.store.GetRoom(ctx, id)
}

// List возвращает все номера.
func (r *RoomRegistry) List(ctx context.Context) ([]model.Room, error) {
	return r.store.ListRooms(ctx)
}

// SetStatus переводит номер на обслуживание или возвращает его в работу.
func (r *RoomRegistry) SetStatus(ctx context.Context, id int64, status model.RoomStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown room status %q", model.ErrValidation, status)
	}

	if err := r.store.UpdateRoomStatus(ctx, id, status); err != nil {
		return err
	}

	invalidate(ctx, r.cache, r.logger)
	r.logger.Info("room status changed", zap.Int64("room_id", id), zap.String("status", string(status)))

	return nil
}

func invalidate(ctx context.Context, c cache.RoomCache, logger *zap.Logger) {
	if err := c.Invalidate(ctx); err != nil {
		logger.Error("room cache invalidation failed", zap.Error(err))
	}
}
