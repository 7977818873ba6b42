package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ankitchauhan1221/maluk-backend/internal/catalog"
	"github.com/ankitchauhan1221/maluk-backend/internal/config"
	"github.com/ankitchauhan1221/maluk-backend/internal/coupon"
	"github.com/ankitchauhan1221/maluk-backend/internal/db"
	"github.com/ankitchauhan1221/maluk-backend/internal/notify"
	"github.com/ankitchauhan1221/maluk-backend/internal/order"
	"github.com/ankitchauhan1221/maluk-backend/internal/payment"
	"github.com/ankitchauhan1221/maluk-backend/internal/shipping"
	"github.com/ankitchauhan1221/maluk-backend/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "maluk-backend").Logger()

	log.Info().Msg("Backend starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	database, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	orderRepo := order.NewRepository(database.Pool)
	couponRepo := coupon.NewRepository(database.Pool)
	couponSvc := coupon.NewService(couponRepo)

	orderSvc := order.NewService(order.Deps{
		Repo:       orderRepo,
		IDs:        order.NewIDGenerator(orderRepo),
		Catalog:    catalog.NewPostgresStore(database.Pool),
		Coupons:    couponSvc,
		Gateway:    payment.NewClient(cfg.PhonePe),
		Carrier:    shipping.NewClient(cfg.Shipsy),
		Notifier:   notify.NewSMTPMailer(cfg.SMTP),
		MinPayable: cfg.Order.MinPayable,
		BackendURL: cfg.App.BackendURL,
	})

	router := transport.NewRouter(orderSvc, couponSvc, cfg.App.FrontendURL)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
