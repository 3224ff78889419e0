package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chartgate/config"
	"chartgate/internal/api"
	"chartgate/internal/memorystore"
	"chartgate/internal/reconcile"
	"chartgate/internal/reminder"
	"chartgate/logger"
	"chartgate/pkg/magiceden"
	"chartgate/pkg/mempool"
	"chartgate/pkg/notify"
	"chartgate/pkg/storage/postgres"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// viper config
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("invalid config: " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run server
	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// storage
	store, err := postgres.Initialize(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// external clients
	chain := mempool.NewRESTClient(cfg.Mempool.BaseURL, cfg.Mempool.Timeout)
	market := magiceden.NewRESTClient(cfg.MagicEden.REST.BaseURL, cfg.MagicEden.APIKey, cfg.MagicEden.REST.Timeout)

	sender, err := newSender(cfg, log)
	if err != nil {
		return err
	}

	// reminder dedupe
	var guard reminder.Guard = reminder.Noop{}
	if cfg.Subscription.DedupeReminders {
		rdb, err := reminder.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		guard = reminder.NewRedisGuard(rdb, cfg.Redis.Prefix, cfg.Subscription.ReminderCooldown)
	}

	g, gctx := errgroup.WithContext(ctx)

	// live prices
	memory := memorystore.NewPriceStore(96)
	hub := api.NewHub(memory, log)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	// sweeps
	verifier := &reconcile.Verifier{
		Store:       store,
		Chain:       chain,
		Pool:        chain,
		Notifier:    sender,
		Logger:      log.Named("verifier"),
		Window:      cfg.Subscription.VerifyWindow,
		Concurrency: cfg.Schedule.Concurrency,
	}
	expirer := &reconcile.Expirer{
		Store:          store,
		Notifier:       sender,
		Guard:          guard,
		Logger:         log.Named("expirer"),
		ReminderWindow: cfg.Subscription.ReminderWindow,
		NotifyExpired:  cfg.Subscription.NotifyExpired,
		Concurrency:    cfg.Schedule.Concurrency,
	}
	snapshotter := &reconcile.Snapshotter{
		Feed:      market,
		Store:     store,
		Memory:    memory,
		Publisher: hub,
		Logger:    log.Named("snapshot"),
		Window:    cfg.MagicEden.Window,
		Limit:     cfg.MagicEden.Limit,
		Retention: cfg.Schedule.SnapshotRetention,
	}
	repairer := &reconcile.Repairer{Store: store, Logger: log.Named("repair")}

	scheduler := reconcile.NewScheduler(ctx, log.Named("scheduler"), verifier, expirer, snapshotter, repairer)
	if err := scheduler.RegisterAll(cfg.Schedule); err != nil {
		return err
	}
	if cfg.Schedule.RunOnStart {
		go scheduler.RunNow()
	}
	scheduler.Start()
	defer scheduler.Stop()

	// verify on new blocks
	if cfg.Mempool.WatchBlocks {
		blocks := mempool.NewWSClient(cfg.Mempool.WSURL, log.Named("blocks"))
		blocks.SetBlockHandler(func(b mempool.Block) {
			if scheduler.TriggerVerify() {
				log.Info("new block, verifying pending transactions", zap.Int64("height", b.Height))
			}
		})
		if err := blocks.Connect(gctx); err != nil {
			log.Warn("block watcher unavailable, relying on the schedule", zap.Error(err))
		} else {
			g.Go(func() error {
				blocks.Listen(gctx)
				return nil
			})
		}
	}

	// http
	handler := api.NewHandler(store, market, memory, hub, log.Named("api"), api.Options{
		ChartSource: cfg.MagicEden.ChartSource,
	})
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler.Routes()}

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newSender mails users when SMTP is configured and mirrors every
// notification to Telegram when a bot token is set.
func newSender(cfg *config.Config, log *zap.Logger) (notify.Sender, error) {
	var senders notify.Fanout

	if cfg.Mail.Host != "" && cfg.Mail.Username != "" {
		senders = append(senders, notify.NewMailSender(cfg.Mail))
	} else {
		log.Warn("mail is not configured, notifications are only logged")
		senders = append(senders, notify.LogSender{Logger: log.Named("notify")})
	}

	if cfg.Telegram.BotToken != "" {
		b, err := bot.New(
			cfg.Telegram.BotToken,
			bot.WithHTTPClient(time.Minute, &http.Client{Timeout: 30 * time.Second}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
		senders = append(senders, notify.NewTelegramSender(b, cfg.Telegram.ChatID))
	}

	return senders, nil
}
