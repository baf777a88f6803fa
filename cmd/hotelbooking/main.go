// Package main запускает HTTP-сервер сервиса бронирования номеров.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/hotel-booking/internal/cache"
	"github.com/mmeshcher/hotel-booking/internal/config"
	"github.com/mmeshcher/hotel-booking/internal/handler"
	"github.com/mmeshcher/hotel-booking/internal/model"
	"github.com/mmeshcher/hotel-booking/internal/payment"
	"github.com/mmeshcher/hotel-booking/internal/repository"
	"github.com/mmeshcher/hotel-booking/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := newRepository(cfg)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}
	defer repo.Close()

	roomCache, closeCache, err := newRoomCache(cfg, logger)
	if err != nil {
		sugar.Fatalw("room cache initialization error", "error", err.Error())
	}
	defer closeCache()

	if cfg.PaymentGatewayAddress == "" {
		sugar.Warn("payment gateway address is not set, paid bookings cannot be confirmed")
	}
	gateway := payment.NewClient(cfg.PaymentGatewayAddress, cfg.PaymentRetryMax)

	clock := model.SystemClock{}

	rooms := service.NewRoomRegistry(repo, roomCache, logger)
	discounts := service.NewDiscountValidator(repo, clock)
	availability := service.NewAvailabilityChecker(repo, repo, roomCache, clock)
	bookings := service.NewBookingManager(repo, repo, availability, discounts, roomCache, clock, cfg.BookingTTL, logger)
	payments := service.NewPaymentAdapter(gateway, bookings, clock, logger)

	h := handler.NewHandler(handler.Services{
		Rooms:        rooms,
		Availability: availability,
		Bookings:     bookings,
		Payments:     payments,
		Discounts:    discounts,
	}, logger)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая отмена неоплаченных броней
	g.Go(func() error {
		bookings.RunExpirySweeper(ctx, cfg.ExpirySweepInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting hotel booking server",
			"addr", cfg.RunAddress,
			"booking_ttl", cfg.BookingTTL.String(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// newRepository выбирает PostgreSQL, если задан DATABASE_URI, иначе хранилище в памяти.
func newRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}

func newRoomCache(cfg *config.Config, logger *zap.Logger) (cache.RoomCache, func(), error) {
	switch {
	case cfg.RoomCacheTTL == 0:
		return cache.Nop{}, func() {}, nil
	case cfg.RedisAddress != "":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		c, err := cache.NewRedis(ctx, cfg.RedisAddress, cfg.RoomCacheTTL, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		return cache.NewMemory(cfg.RoomCacheTTL), func() {}, nil
	}
}
