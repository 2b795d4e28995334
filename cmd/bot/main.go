package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/qsmarket/market-bot/internal/apperr"
	"github.com/qsmarket/market-bot/internal/bot"
	"github.com/qsmarket/market-bot/internal/database"
	"github.com/qsmarket/market-bot/internal/dispatch"
	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/flow"
	bidflow "github.com/qsmarket/market-bot/internal/flow/bid"
	exchangeflow "github.com/qsmarket/market-bot/internal/flow/exchange"
	financeflow "github.com/qsmarket/market-bot/internal/flow/finance"
	kycflow "github.com/qsmarket/market-bot/internal/flow/kyc"
	questionflow "github.com/qsmarket/market-bot/internal/flow/question"
	ticketflow "github.com/qsmarket/market-bot/internal/flow/ticket"
	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/idempotency"
	"github.com/qsmarket/market-bot/internal/msgstate"
	"github.com/qsmarket/market-bot/internal/notify"
	"github.com/qsmarket/market-bot/internal/ratelimit"
	"github.com/qsmarket/market-bot/internal/rates"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/repository"
	"github.com/qsmarket/market-bot/internal/stage"
	"github.com/qsmarket/market-bot/internal/state"
	"github.com/qsmarket/market-bot/internal/update"
	"github.com/qsmarket/market-bot/internal/verify"
	"github.com/qsmarket/market-bot/pkg/config"
	"github.com/qsmarket/market-bot/pkg/graceful"
	"github.com/qsmarket/market-bot/pkg/logger"
	"github.com/qsmarket/market-bot/pkg/metrics"
	pkgredis "github.com/qsmarket/market-bot/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LoggerOptions())
	log.Info("starting market bot", "env", cfg.AppEnv, "http_port", cfg.HTTPPort)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			log.Error("sentry init failed", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	config.Watch(v, log, func(updated *config.Config) {
		// Most settings need a restart; the reload keeps operators honest
		// about what the file now says.
		log.Info("config file changed", "log_level", updated.Log.Level)
	})

	if err := database.Migrate(cfg.Database, cfg.Paths.Migrations, log); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	rdb, err := pkgredis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	translations, err := i18n.LoadFromDir(cfg.I18n.Dir, cfg.I18n.DefaultLang)
	if err != nil {
		log.Error("i18n load failed", "error", err)
		os.Exit(1)
	}

	metrics.Register()

	// Repositories.
	users := repository.NewUsers(db)
	exchanges := repository.NewExchange(db)
	bids := repository.NewBids(db)
	wallets := repository.NewWallets(db)
	tickets := repository.NewTickets(db)
	stages := repository.NewStages(db)
	perms := repository.NewPermissions(db)
	settings := repository.NewSettings(db)

	// Redis-backed infrastructure.
	states := state.NewRedisStore(rdb, log, cfg.Session.TTL)
	tracker := msgstate.NewTracker(rdb, log, cfg.Session.TTL)
	guard := ratelimit.NewGuard(rdb, log)
	idem := idempotency.NewManager(idempotency.NewRedisStore(rdb, log), log, 0)

	tgBot, err := bot.New(bot.Options{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout,
	}, guard, translations, log)
	if err != nil {
		log.Error("telegram init failed", "error", err)
		os.Exit(1)
	}

	renderer := render.New(tgBot.Sender(), tracker, log)
	notifier := notify.New(tgBot.Sender(), log)
	stageService := stage.NewService(stages, perms, log)
	navigator := bot.NewStageNavigator(stageService, renderer, users, translations, log)
	ctrl := flow.NewController(states, renderer, translations, navigator, log)

	// Code delivery, wrapped with the provider timeout.
	sms := verify.WithTimeout(verify.NewSMSClient(cfg.Verify.SMSBaseURL, cfg.Verify.SMSAPIKey, nil, log))
	email := verify.WithTimeout(verify.NewEmailClient(
		cfg.Verify.SMTPAddr, cfg.Verify.SMTPFrom, cfg.Verify.SMTPUser, cfg.Verify.SMTPPass, cfg.Verify.SMTPHost, log))

	// Stateless handlers go first so their callbacks resolve even while a
	// wizard holds the user's session. Wizards decline foreign callbacks.
	handlers := []dispatch.Handler{
		navigator,
		bot.NewPreferences(users, renderer, translations, log),
		bidflow.NewResolution(bids, renderer, translations, notifier, log),
		kycflow.New(ctrl, users, sms, email, log),
		exchangeflow.New(ctrl, exchanges, settings, users, idem, log),
		bidflow.New(ctrl, &bidStore{exchanges: exchanges, bids: bids}, idem, notifier, log),
		financeflow.New(ctrl, wallets, idem, log),
		ticketflow.New(ctrl, tickets, idem, log),
		questionflow.New(ctrl, tickets, idem, log),
	}

	fallback := bot.NewFallback(renderer, stageService, translations, log)
	dispatcher := dispatch.New(log, fallback, handlers...)

	errs := apperr.NewHandler(log, cfg.Sentry.Enabled)
	dispatcher.SetErrorHandler(func(ctx context.Context, u *update.Context, err error) {
		userKey, _ := errs.Handle(ctx, err)
		tr := translations.Translator(u.Language)
		notifier.Send(ctx, u.ChatID, tr.T(userKey))
	})
	tgBot.SetDispatcher(dispatcher)

	// Background workers.
	cleaner := state.NewCleaner(states, log, cfg.Session.TTL, cfg.Session.CleanupInterval)
	go cleaner.Run(ctx)
	go metrics.NewSessionCollector(states, 10*time.Second).Run(ctx)
	if cfg.Rates.URL != "" {
		provider := rates.NewClient(cfg.Rates.URL, nil, log)
		go rates.NewRefresher(provider, exchanges, log, cfg.Rates.Interval).Run(ctx)
	}

	server := graceful.NewServer(log, &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: graceful.NewMux(),
	}, 10*time.Second)
	go func() {
		if err := server.ListenAndServe(ctx); err != nil {
			log.Error("http server stopped", "error", err)
		}
	}()

	tgBot.Start(ctx)
	log.Info("market bot stopped")
}

// bidStore narrows the exchange and bid repositories to the surface the bid
// wizard needs.
type bidStore struct {
	exchanges *repository.Exchange
	bids      *repository.Bids
}

func (s *bidStore) Create(ctx context.Context, bid *domain.Bid) (*domain.Bid, error) {
	return s.bids.Create(ctx, bid)
}

func (s *bidStore) RequestByID(ctx context.Context, id int64) (*domain.ExchangeRequest, error) {
	return s.exchanges.RequestByID(ctx, id)
}
