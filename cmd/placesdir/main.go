package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/config"
	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/reviews"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/domain/users"
	"github.com/Spok95/placesdir/internal/infra/db"
	httpx "github.com/Spok95/placesdir/internal/infra/http"
	"github.com/Spok95/placesdir/internal/infra/lock"
	"github.com/Spok95/placesdir/internal/infra/logger"
	"github.com/Spok95/placesdir/internal/infra/payments"
	"github.com/Spok95/placesdir/internal/notify"
	"github.com/Spok95/placesdir/internal/scheduler"
	"github.com/Spok95/placesdir/internal/search"
	"github.com/Spok95/placesdir/internal/store/memory"
	"github.com/Spok95/placesdir/internal/supervisor"
)

type placeStore interface {
	places.Store
	search.Store
	scheduler.Store
}

type userStore interface {
	httpx.UserStore
	scheduler.Admins
}

type stores struct {
	catalog      catalog.Store
	userPackages userpackages.Store
	places       placeStore
	reviews      reviews.Store
	users        userStore
	appConfig    appconfig.Store
	payments     payments.Store
}

func postgresStores(pool *pgxpool.Pool) stores {
	ups := userpackages.NewRepo(pool)
	pl := places.NewRepo(pool)
	return stores{
		catalog:      catalog.NewRepo(pool),
		userPackages: ups,
		places:       pl,
		reviews:      reviews.NewRepo(pool),
		users:        users.NewRepo(pool),
		appConfig:    appconfig.NewRepo(pool),
		payments:     payments.NewRepo(pool, ups, pl),
	}
}

func memoryStores() stores {
	m := memory.New()
	return stores{
		catalog:      m.Catalog(),
		userPackages: m.UserPackages(),
		places:       m.Places(),
		reviews:      m.Reviews(),
		users:        m.Users(),
		appConfig:    m.AppConfig(),
		payments:     m.Payments(),
	}
}

func main() {
	path := flag.String("config", "config/example.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("placesdir stopped", "err", err)
		os.Exit(1)
	}
	log.Info("graceful shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var st stores
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("using in-memory storage, data is not persisted")
		st = memoryStores()
	default:
		if err := db.Migrate(cfg.Postgres.DSN, log); err != nil {
			return err
		}
		pool, err := db.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info("db connected")
		st = postgresStores(pool)
	}

	az, err := authz.New()
	if err != nil {
		return err
	}

	var notifier notify.Dispatcher = notify.Noop{}
	if cfg.Telegram.Token != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return err
		}
		notifier = notify.NewTelegram(api, cfg.Telegram.AdminChatID, log)
		log.Info("telegram notifications enabled", "bot", api.Self.UserName)
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Addr != "" {
		client, err := lock.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		locker = lock.NewRedis(client)
	}

	policy := appconfig.NewService(st.appConfig, cfg.Policy())
	cat := catalog.New(st.catalog)
	ledger := userpackages.NewLedger(cat, st.userPackages, log)
	rv := reviews.NewService(st.reviews, st.places, policy, az, notifier, log)
	lifecycle := places.NewLifecycle(st.places, ledger, policy, rv, az, notifier, log)
	engine := search.NewEngine(st.places, cat, policy, log)

	var gateway payments.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payments.NewStripeGateway(cfg.Stripe.SecretKey)
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn("stripe webhook secret is empty, signatures are not verified")
	}
	pay := payments.NewService(st.payments, ledger, gateway, az, notifier, cfg.Stripe.Currency, log)

	router := httpx.NewRouter(httpx.Deps{
		Log:       log,
		Auth:      httpx.NewAuthenticator(cfg.Auth.JWTSecret, st.users, log),
		Authz:     az,
		Policy:    policy,
		Catalog:   cat,
		Ledger:    ledger,
		Places:    lifecycle,
		Reviews:   rv,
		Search:    engine,
		Payments:  pay,
		Webhook:   payments.NewHandler(log, payments.NewVerifier(cfg.Stripe.WebhookSecret), pay),
		Metrics:   cfg.Metrics.Enabled,
		RateLimit: cfg.HTTP.RateLimit,
	})

	tree := supervisor.New(log, supervisor.Config{ShutdownTimeout: cfg.HTTP.ShutdownTimeout})
	tree.AddAPI(httpx.New(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout))
	tree.AddJob(scheduler.New(st.places, st.users, locker, scheduler.Config{
		Interval:  cfg.Scheduler.Interval,
		BatchSize: cfg.Scheduler.BatchSize,
		LockTTL:   cfg.Scheduler.LockTTL,
	}, log))

	log.Info("placesdir started", "addr", cfg.HTTP.Addr, "storage", cfg.Storage.Driver)
	return tree.Serve(ctx)
}
