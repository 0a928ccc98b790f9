package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/carnimore/checkout/internal"
	"github.com/carnimore/checkout/internal/core/events"
	"github.com/carnimore/checkout/internal/notify"
	"github.com/carnimore/checkout/internal/order"
	orderPostgres "github.com/carnimore/checkout/internal/order/postgres"
	"github.com/carnimore/checkout/internal/payment"
	"github.com/carnimore/checkout/internal/paymentgateway"
	"github.com/carnimore/checkout/internal/transport"
	"github.com/carnimore/checkout/internal/transport/middleware"
	"github.com/carnimore/checkout/internal/transport/rest"
	"github.com/carnimore/checkout/internal/transport/swagger"
	"github.com/carnimore/checkout/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server for charges, gateway postbacks, status polling and the ops routes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Redis    *redis.Client
	Notifier *notify.Notifier
	EventBus *events.EventBus
	Router   *chi.Mux
	Logger   *slog.Logger
}

func startHTTPServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.close()

	if err := setupRoutes(deps); err != nil {
		return err
	}

	cfg := deps.Config.Server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           deps.Router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Logger.Info("starting HTTP server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		deps.Logger.Info("shutting down")

		shutdownTimeout := cfg.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		// let status notifications for the last postbacks go out
		if err := deps.EventBus.Drain(shutdownCtx); err != nil {
			deps.Logger.Warn("event handlers still running at shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	deps.Logger.Info("server stopped")
	return nil
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger

	if _, err := swagger.Document(context.Background()); err != nil {
		return err
	}

	repo := orderPostgres.NewOrderRepository(deps.Gorm)

	ids, err := payment.NewSnowflakeOrderIDs(cfg.Payment.SnowflakeNode)
	if err != nil {
		return err
	}

	gateway := paymentgateway.NewClient(paymentgateway.Config{
		URL:     cfg.Payment.GatewayURL,
		Timeout: cfg.Payment.GatewayTimeoutOrDefault(),
	}, lg)

	initiator := payment.NewInitiator(repo, gateway, deps.EventBus, ids, payment.InitiatorConfig{
		AccountID:               cfg.Payment.AccountID,
		RestrictKey:             cfg.Payment.RestrictKey,
		TransactionType:         cfg.Payment.TransactionType,
		TransactionIndustryType: cfg.Payment.TransactionIndustryType,
		PostbackURL:             cfg.Payment.Postback.URL,
		PostbackDescription:     cfg.Payment.Postback.Description,
	}, lg)

	ingestor := payment.NewIngestor(repo, deps.EventBus, payment.IngestorConfig{
		RestrictKey:        cfg.Payment.RestrictKey,
		RequireRestrictKey: cfg.Payment.Postback.RequireRestrictKey,
	}, lg)

	// a typed nil *Notifier would defeat the publisher's nil check
	var waiter payment.StatusWaiter
	if deps.Notifier != nil {
		waiter = deps.Notifier
	}
	statuses := payment.NewStatusPublisher(repo, waiter, cfg.Payment.StatusMaxWait, lg)

	base := transport.NewBaseHandler(lg)
	checks := map[string]rest.Pinger{"postgres": deps.DB.DB}
	if deps.Notifier != nil {
		checks["redis"] = rest.PingFunc(deps.Notifier.Ping)
	}

	var limiter *middleware.RateLimiter
	if cfg.Payment.Postback.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.Payment.Postback.RateLimitRPS, cfg.Payment.Postback.RateLimitBurst, lg)
	}

	rest.RegisterAllRoutes(deps.Router, rest.Routes{
		Payment:         payment.NewHandler(base, initiator, ingestor, statuses, cfg.Payment.Postback.MaxBodyBytes),
		Orders:          order.NewHandler(base, order.NewService(repo, lg)),
		Tokens:          middleware.NewTokenVerifier(cfg.Security.JWTSecret, lg),
		PostbackLimiter: limiter,
		Health:          rest.NewHealthHandler(checks),
	}, lg)
	return nil
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	deps := &Dependencies{
		Config:   config,
		DB:       db,
		Gorm:     gormDB,
		EventBus: events.NewEventBus(lg),
		Router:   chi.NewRouter(),
		Logger:   lg,
	}

	payment.NewEventHandler(lg).RegisterEventHandlers(deps.EventBus)

	if config.Redis.Enabled() {
		rdb, err := notify.Connect(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB)
		if err != nil {
			deps.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		deps.Redis = rdb
		deps.Notifier = notify.NewNotifier(rdb, lg)
		deps.Notifier.RegisterEventHandlers(deps.EventBus)
	} else {
		lg.Info("redis not configured; status polling will not wait for postbacks")
	}

	return deps, nil
}

func (d *Dependencies) close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}

// initDB opens the pgx pool through sqlx and verifies it.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm. TranslateError is required for
// duplicate order ids to surface as ErrOrderAlreadyExists.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}
	return gormDB, nil
}
