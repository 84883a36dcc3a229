// Command server runs the SmartBooking HTTP API together with its
// background workers: the confirmation/mail consumer and the janitor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/smartbooking/internal/config"
	"github.com/iliyamo/smartbooking/internal/database"
	"github.com/iliyamo/smartbooking/internal/handler"
	"github.com/iliyamo/smartbooking/internal/logger"
	"github.com/iliyamo/smartbooking/internal/queue"
	"github.com/iliyamo/smartbooking/internal/repository"
	"github.com/iliyamo/smartbooking/internal/router"
	"github.com/iliyamo/smartbooking/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile  string
		migrate  bool
		consumer bool
		logDir   string
	)
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.BoolVar(&migrate, "migrate", true, "apply the schema on startup")
	flags.BoolVar(&consumer, "consumer", true, "run the queue consumer in this process")
	flags.StringVar(&logDir, "log-dir", "logs", "directory of booking.log and mail.log")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	envErr := godotenv.Load(envFile)
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	if envErr != nil {
		log.Debug("no env file loaded", zap.String("path", envFile), zap.Error(envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unreachable, cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	gateway, err := service.NewStripeGateway(cfg.StripeSecretKey)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	resets := repository.NewPasswordResetRepo(db)
	shows := repository.NewShowRepo(db)
	reps := repository.NewRepresentationRepo(db)
	locations := repository.NewLocationRepo(db)
	artists := repository.NewArtistRepo(db)
	reservationRepo := repository.NewReservationRepo(db)
	reviews := repository.NewReviewRepo(db)

	publisher := service.NewPublisher(cfg.AMQPURL, log)
	reservations := &service.ReservationService{
		Store:      reservationRepo,
		Users:      users,
		Payments:   gateway,
		Events:     publisher,
		Log:        log.Named("reservations"),
		Currency:   cfg.Currency,
		TTL:        cfg.ReservationTTL,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL(),
	}
	sessions := &service.Sessions{
		Tokens:         tokens,
		Users:          users,
		Secret:         cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
	}
	accounts := &service.Accounts{
		Users:      users,
		Resets:     resets,
		Sessions:   tokens,
		Events:     publisher,
		Log:        log.Named("accounts"),
		BcryptCost: cfg.BcryptCost,
		TTL:        cfg.ResetTokenTTL,
		ResetURL:   cfg.ResetPasswordURL,
	}
	posters := &service.PosterStore{Dir: cfg.UploadDir, MaxBytes: cfg.UploadMaxBytes}

	e := router.New(router.Deps{
		Cfg:       cfg,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		Redis:     rdb,
		Refresher: sessions,
		Log:       log,
	}, router.Handlers{
		Auth:            handler.NewAuthHandler(cfg, users, sessions, accounts),
		Shows:           handler.NewShowHandler(shows, locations, artists, posters),
		Representations: handler.NewRepresentationHandler(reps, shows, locations),
		Locations:       handler.NewLocationHandler(locations),
		Artists:         handler.NewArtistHandler(artists),
		Reservations:    handler.NewReservationHandler(reservations, reservationRepo, users),
		Reviews:         handler.NewReviewHandler(reviews, shows),
		Admin: handler.NewAdminHandler(users, handler.StatsSources{
			Users:        users.Count,
			Shows:        shows.Count,
			Reservations: reservationRepo.Count,
			Locations:    locations.Count,
			Artists:      artists.Count,
			Reviews:      reviews.Stats,
		}),
		Webhooks: handler.NewWebhookHandler(cfg.StripeWebhookSecret, reservations, log),
	})

	janitor := &service.Janitor{
		Resets:       resets,
		Tokens:       tokens,
		Reservations: reservations,
		Interval:     cfg.CleanupInterval,
		Log:          log.Named("janitor"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return e.Shutdown(sctx)
	})
	g.Go(func() error { return janitor.Run(gctx) })
	if consumer {
		g.Go(func() error { return queue.StartConsumer(gctx, cfg.AMQPURL, logDir, log) })
	}
	return g.Wait()
}
