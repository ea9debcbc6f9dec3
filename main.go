package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ticket-runners/internal/analytics"
	"ticket-runners/internal/api"
	"ticket-runners/internal/assignment"
	"ticket-runners/internal/auth"
	"ticket-runners/internal/claim"
	"ticket-runners/internal/config"
	"ticket-runners/internal/database/migrations"
	"ticket-runners/internal/directory"
	"ticket-runners/internal/kafka"
	"ticket-runners/internal/ledger"
	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"
	"ticket-runners/internal/notify"
	"ticket-runners/internal/registration"
	"ticket-runners/internal/sse"
	ticket_db "ticket-runners/internal/tickets/db"
	"ticket-runners/internal/transfer"
	"ticket-runners/internal/views"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Ticket Ownership Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	var producer notify.Producer = notify.NopProducer{}
	if cfg.Kafka.Enabled {
		kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer kafkaProducer.Close()
		producer = kafkaProducer
		log.Info("KAFKA", "Kafka producer initialized successfully")

		requiredTopics := []string{
			cfg.Kafka.Topics.NotifySMS,
			cfg.Kafka.Topics.NotifyEmail,
			cfg.Kafka.Topics.OwnershipEvents,
			cfg.Kafka.Topics.AccountsRegistered,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, notifications will be dropped")
	}

	ticketStore := &ticket_db.DB{Bun: bunDB}
	ledgerStore := &ledger.Store{Bun: bunDB}
	dir := &directory.Directory{Bun: bunDB}
	tokenStore := &registration.TokenStore{Bun: bunDB, TokenTTL: cfg.Registration.TokenTTL}
	draftCache := registration.NewDraftCache(redisClient, cfg.Registration.DraftTTL)

	emitter := sse.NewOwnershipEventEmitter()
	notifier := notify.NewNotifier(producer, cfg.Kafka.Topics, cfg.Registration.DomesticPrefix, log)
	notifier.Emitter = emitter

	feeCharger, err := transfer.NewStripeFeeCharger(cfg.Stripe.SecretKey, cfg.Stripe.Currency, log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Stripe initialization failed: %v", err))
	}

	assignmentService := assignment.NewService(ticketStore, tokenStore, dir, dir, draftCache, notifier, log)
	claimResolver := claim.NewResolver(ticketStore, tokenStore, ledgerStore, notifier, log)
	transferEngine := transfer.NewEngine(ticketStore, ledgerStore, dir, dir, feeCharger, tokenStore, notifier, log)
	registrationResolver := registration.NewResolver(ticketStore, tokenStore, ledgerStore, draftCache, notifier, log)
	viewBuilder := views.NewBuilder(ticketStore, ledgerStore, cfg.Views.PageSize)
	statsService := analytics.NewService(bunDB)

	handler := api.NewHandler(assignmentService, claimResolver, transferEngine, registrationResolver, viewBuilder, ticketStore, statsService, emitter, log)

	authMiddleware, err := auth.Middleware(cfg.Auth.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("OIDC setup failed: %v", err))
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	handler.Routes(r, authMiddleware)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.AccountsRegistered, "ticket-ownership")
		defer consumer.Close()
		go consumer.Start(consumerCtx, func(account models.Account) {
			if _, err := registrationResolver.ReconcileAccountTickets(consumerCtx, account); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Reconcile for account %s failed: %v", account.ID, err))
			}
		})
		log.Info("KAFKA", "Account registration consumer started")
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Ticket Ownership Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancelConsumer()
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Ticket Ownership Service shutdown complete")
	}
}
