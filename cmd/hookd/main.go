package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oson-apps/notify-engine/internal/carrier"
	"github.com/oson-apps/notify-engine/internal/challenge"
	"github.com/oson-apps/notify-engine/internal/config"
	"github.com/oson-apps/notify-engine/internal/gateway"
	"github.com/oson-apps/notify-engine/internal/hookserver"
	"github.com/oson-apps/notify-engine/internal/quota"
	"github.com/oson-apps/notify-engine/internal/repository/postgres"
	"github.com/oson-apps/notify-engine/pkg/envelope"
	"github.com/oson-apps/notify-engine/pkg/logger"
	"github.com/oson-apps/notify-engine/pkg/metrics"
)

func main() {
	log := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
	})

	cfg, secrets, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err, "failed to load config")
	}

	db, err := postgres.Connect(postgres.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	// The hook path is a single invocation at a time: the in-process counter
	// is enough even in multi-instance deployments, since challenge SMS
	// volume is negligible next to batch dispatch.
	authority := quota.NewWindowCounter(quota.Ceilings{Daily: cfg.Quota.Daily, Hourly: cfg.Quota.Hourly})

	retry := gateway.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay}

	playmobile, err := gateway.NewPlayMobile(gateway.PlayMobileConfig{
		Endpoint:       cfg.Gateways.PlayMobile.Endpoint,
		Username:       secrets.PlayMobileUsername,
		Password:       secrets.PlayMobilePassword,
		Originator:     cfg.Gateways.PlayMobile.Originator,
		MessageIDLimit: cfg.Gateways.PlayMobile.MessageIDLimit,
		Timeout:        cfg.Gateways.Timeout,
		Retry:          retry,
	}, authority, log)
	if err != nil {
		log.Fatal(err, "failed to build primary sms adapter")
	}

	infobip, err := gateway.NewInfobip(gateway.InfobipConfig{
		Endpoint: cfg.Gateways.Infobip.Endpoint,
		APIKey:   secrets.InfobipAPIKey,
		Sender:   cfg.Gateways.Infobip.Sender,
		Timeout:  cfg.Gateways.Timeout,
		Retry:    retry,
	}, authority, log)
	if err != nil {
		log.Fatal(err, "failed to build fallback sms adapter")
	}

	decryptor, err := envelope.NewHTTPDecryptor(envelope.Config{
		Endpoint: cfg.Envelope.Endpoint,
		KeyID:    cfg.Envelope.KeyID,
		Timeout:  cfg.Envelope.Timeout,
	})
	if err != nil {
		log.Fatal(err, "failed to build envelope decryptor")
	}

	router := carrier.NewRouterWithTable(cfg.Carrier.CountryCode, cfg.Carrier.Table)
	route := challenge.NewSMSRoute(router, playmobile, infobip, log)
	templates := challenge.NewTemplateCache(postgres.NewTemplateSource(db), cfg.Templates.Enabled, cfg.Templates.TTL, log)
	m := metrics.NewMetrics("notify", "hookd")
	handler := challenge.NewHandler(route, templates, decryptor, log, m)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      hookserver.NewServer(handler).Router(cfg.Server.MetricsEnabled),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting hook server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "hook server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("received signal, shutting down", "signal", s.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error(err, "graceful shutdown failed")
	}
}
