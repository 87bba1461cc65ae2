package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pathakanu/myJournal/internal/config"
	"github.com/pathakanu/myJournal/internal/database"
	"github.com/pathakanu/myJournal/internal/dispatch"
	"github.com/pathakanu/myJournal/internal/handlers"
	"github.com/pathakanu/myJournal/internal/lock"
	myopenai "github.com/pathakanu/myJournal/internal/openai"
	"github.com/pathakanu/myJournal/internal/push"
	"github.com/pathakanu/myJournal/internal/reminder"
	"github.com/pathakanu/myJournal/internal/retention"
	"github.com/pathakanu/myJournal/internal/router"
	"github.com/pathakanu/myJournal/internal/scheduler"
	"github.com/pathakanu/myJournal/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "[myJournal] ", log.LstdFlags|log.Lshortfile)
	cfg := config.Load()
	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store init failed: %v", err)
	}

	channel, err := newPushChannel(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("push channel init failed: %v", err)
	}

	dispatcher := dispatch.New(channel, st, logger,
		dispatch.WithBatchSize(cfg.ReminderBatchSize),
		dispatch.WithAttemptTimeout(cfg.ReminderAttemptTimeout),
		dispatch.WithLocation(cfg.LocalTimezone),
	)
	cleaner := retention.New(st, cfg.ReminderRetention, logger)

	schedulerOpts := []scheduler.Option{
		scheduler.WithSpec(cfg.ReminderSchedule),
		scheduler.WithLocation(cfg.LocalTimezone),
	}
	var locker *lock.Redis
	if cfg.RedisURL != "" {
		locker, err = lock.NewRedis(ctx, cfg.RedisURL, lock.DefaultTTL)
		if err != nil {
			logger.Printf("redis tick lock disabled: %v", err)
		} else {
			schedulerOpts = append(schedulerOpts, scheduler.WithLocker(locker))
		}
	}

	reminderScheduler := scheduler.New(st, dispatcher, cleaner, logger, schedulerOpts...)
	if err := reminderScheduler.Start(); err != nil {
		// The API keeps serving without background delivery.
		logger.Printf("scheduler start: %v", err)
	}

	service := reminder.NewService(st, myopenai.New(cfg.OpenAIAPIKey), cfg.DefaultMessageID, logger)

	e := router.New()
	router.SetupRoutes(e, handlers.NewReminderHandler(service, logger), reminderScheduler, logger)

	go func() {
		logger.Printf("server starting on :%s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(e, reminderScheduler, logger)

	if locker != nil {
		_ = locker.Close()
	}
	closeStore()
}

// openStore uses MongoDB when MONGO_URI is set and GORM (PostgreSQL or SQLite) otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (reminder.Store, func(), error) {
	if cfg.MongoURI != "" {
		client, db, err := database.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		logger.Printf("database: connected to MongoDB %s", cfg.MongoDatabase)
		return store.NewMongo(db), func() { database.CloseMongo(client) }, nil
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return store.NewGorm(db), closeDB, nil
}

func newPushChannel(ctx context.Context, cfg *config.Config, logger *log.Logger) (push.Channel, error) {
	switch cfg.PushChannel {
	case "wechat":
		if cfg.WeChatAppID == "" || cfg.WeChatSecret == "" {
			return nil, fmt.Errorf("wechat push requires WX_APPID and WX_SECRET")
		}
		return push.NewWeChat(push.WeChatConfig{
			AppID:            cfg.WeChatAppID,
			Secret:           cfg.WeChatSecret,
			MiniprogramState: cfg.WeChatMiniprogramState,
			Lang:             cfg.WeChatLang,
		}, logger), nil
	case "twilio":
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioWhatsAppNumber == "" {
			return nil, fmt.Errorf("twilio push requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_NUMBER")
		}
		return push.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, logger), nil
	case "fcm":
		fcm, err := push.NewFCM(ctx, cfg.FirebaseCredentialsPath, logger)
		if err != nil {
			return nil, err
		}
		return fcm, nil
	case "log", "":
		return push.NewLogChannel(logger), nil
	default:
		return nil, fmt.Errorf("unknown PUSH_CHANNEL %q", cfg.PushChannel)
	}
}

func waitForShutdown(e *echo.Echo, reminderScheduler *scheduler.Scheduler, logger *log.Logger) {
	stopCtx := make(chan os.Signal, 1)
	signal.Notify(stopCtx, syscall.SIGINT, syscall.SIGTERM)
	<-stopCtx
	logger.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}

	select {
	case <-reminderScheduler.Stop().Done():
	case <-ctx.Done():
		logger.Printf("scheduler: tick still running at shutdown")
	}
}
