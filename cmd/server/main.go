package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"foodDeliveryWs/internal/config"
	announcementsinfra "foodDeliveryWs/internal/modules/announcements/infrastructure"
	chatinfra "foodDeliveryWs/internal/modules/chat/infrastructure"
	notificationsinfra "foodDeliveryWs/internal/modules/notifications/infrastructure"
	handler "foodDeliveryWs/internal/modules/realtime/application/handler"
	usecase "foodDeliveryWs/internal/modules/realtime/application/usecase"
	"foodDeliveryWs/internal/modules/realtime/infrastructure"
	transport "foodDeliveryWs/internal/modules/realtime/interface"
	"foodDeliveryWs/internal/platform/broker"
	"foodDeliveryWs/internal/platform/database"
	"foodDeliveryWs/internal/platform/metrics"
	"foodDeliveryWs/internal/platform/tracing"
	"foodDeliveryWs/internal/shared/auth"
	"foodDeliveryWs/internal/shared/logging"
	"foodDeliveryWs/internal/shared/validation"
)

func main() {
	// .env is optional; local runs use it to override the environment.
	if err := godotenv.Overload(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, ".env load warning: %v\n", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logFile, logger, err := logging.Setup(cfg.Logging.Directory, logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(logger)
	slog.Info("logging initialized", slog.String("directory", cfg.Logging.Directory), slog.String("level", cfg.Logging.Level), slog.String("format", cfg.Logging.Format))

	if err := run(cfg, logger); err != nil {
		slog.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", slog.Any("error", err))
		}
	}()

	// Notifications use sqlx; chat and announcements use gorm on the same database.
	sqlDB, err := database.OpenSQL(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	notificationStore := notificationsinfra.NewSQLStore(sqlDB)
	if err := notificationStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("notification schema: %w", err)
	}

	gormDB, err := database.OpenGorm(cfg.Database)
	if err != nil {
		return err
	}
	chatStore := chatinfra.NewGormStore(gormDB)
	if err := chatStore.Migrate(ctx); err != nil {
		return fmt.Errorf("chat schema: %w", err)
	}
	announcementStore := announcementsinfra.NewGormStore(gormDB)
	if err := announcementStore.Migrate(ctx); err != nil {
		return fmt.Errorf("announcement schema: %w", err)
	}
	slog.Info("database ready", slog.String("driver", cfg.Database.Driver))

	hub := infrastructure.NewHub()
	v := validation.New()

	// Use cases
	dispatcher := usecase.NewNotificationDispatcher(notificationStore, hub)
	broadcastUC := usecase.NewBroadcastUseCase(hub)
	svc := &transport.Services{
		Dispatcher:    dispatcher,
		Broadcast:     broadcastUC,
		Chat:          usecase.NewChatUseCase(chatStore, hub),
		Announcements: usecase.NewAnnouncementUseCase(announcementStore, hub),
		Uploads:       usecase.NewUploadUseCase(hub, cfg.Uploads.Directory, cfg.Uploads.BaseURL, cfg.Uploads.MaxBytes),
		Validator:     v,
	}

	validator, err := auth.NewJWTValidatorWithPublicKey(cfg.Security.JWTSecret, cfg.Security.JWTPublicKey)
	if err != nil {
		return err
	}

	// Un handler por evento de negocio
	registry := infrastructure.NewHandlerRegistry()
	registry.Register(handler.NewOrderCreatedHandler(dispatcher, v))
	registry.Register(handler.NewOrderPaymentHandler(broadcastUC, v))
	registry.Register(handler.NewOrderStatusHandler(broadcastUC, v))
	registry.Register(handler.NewDriverLocationHandler(broadcastUC, v))

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetOutput(log.Writer())
	e.Use(middleware.Recover(), middleware.RequestID())
	transport.RegisterRoutes(ctx, e, hub, svc, validator, cfg)

	g, gctx := errgroup.WithContext(ctx)
	consumers := broker.StartKafkaConsumers(gctx, g, registry, cfg.Kafka)
	slog.Info("kafka config resolved", slog.Any("brokers", cfg.Kafka.Brokers), slog.String("group", cfg.Kafka.GroupID), slog.Int("consumers", consumers))

	g.Go(func() error {
		slog.Info("http server listening", slog.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
