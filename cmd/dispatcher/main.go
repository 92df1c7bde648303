package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/oson-apps/notify-engine/internal/carrier"
	"github.com/oson-apps/notify-engine/internal/config"
	"github.com/oson-apps/notify-engine/internal/dispatch"
	"github.com/oson-apps/notify-engine/internal/gateway"
	"github.com/oson-apps/notify-engine/internal/quota"
	"github.com/oson-apps/notify-engine/internal/repository/postgres"
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

	authority, err := buildAuthority(cfg, log)
	if err != nil {
		log.Fatal(err, "failed to build quota authority")
	}

	m := metrics.NewMetrics("notify", "dispatcher")
	senders, err := buildSenders(cfg, secrets, authority, log)
	if err != nil {
		log.Fatal(err, "failed to build gateway adapters")
	}

	router := carrier.NewRouterWithTable(cfg.Carrier.CountryCode, cfg.Carrier.Table)
	orchestrator := dispatch.NewOrchestrator(
		postgres.NewTargetSource(db),
		router,
		senders,
		dispatch.Config{
			BatchSize:      cfg.Dispatch.BatchSize,
			MaxConcurrent:  cfg.Dispatch.MaxConcurrent,
			PollInterval:   cfg.Dispatch.PollInterval,
			ChannelTimeout: cfg.Dispatch.ChannelTimeout,
			SendRate:       cfg.Dispatch.SendRate,
			SendBurst:      cfg.Dispatch.SendBurst,
		},
		log,
		m,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startHealthServer(cfg, log)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		log.Info("received signal, shutting down", "signal", s.String())
		cancel()
	}()

	orchestrator.Run(ctx)
}

func buildAuthority(cfg *config.Config, log *logger.Logger) (quota.Authority, error) {
	ceilings := quota.Ceilings{Daily: cfg.Quota.Daily, Hourly: cfg.Quota.Hourly}

	if !cfg.Redis.Enabled {
		// In-process counter: correct for a single active instance only.
		return quota.NewWindowCounter(ceilings), nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return quota.NewRedisAuthority(client, ceilings, "notify:quota", log), nil
}

func buildSenders(cfg *config.Config, secrets *config.Secrets, authority quota.Authority, log *logger.Logger) (dispatch.Senders, error) {
	retry := gateway.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay}

	apns, err := gateway.NewAPNs(gateway.APNsConfig{
		Endpoint:   cfg.Gateways.APNs.Endpoint,
		TeamID:     secrets.APNsTeamID,
		KeyID:      secrets.APNsKeyID,
		SigningKey: secrets.APNsSigningKey,
		Topic:      cfg.Gateways.APNs.Topic,
		Timeout:    cfg.Gateways.Timeout,
		Retry:      retry,
	}, log)
	if err != nil {
		return dispatch.Senders{}, err
	}

	fcm, err := gateway.NewFCM(gateway.FCMConfig{
		Endpoint:  cfg.Gateways.FCM.Endpoint,
		ServerKey: secrets.FCMServerKey,
		Timeout:   cfg.Gateways.Timeout,
		Retry:     retry,
	}, log)
	if err != nil {
		return dispatch.Senders{}, err
	}

	expo := gateway.NewExpo(gateway.ExpoConfig{
		Endpoint:    cfg.Gateways.Expo.Endpoint,
		AccessToken: secrets.ExpoAccessToken,
		ChunkSize:   cfg.Gateways.Expo.ChunkSize,
		Timeout:     cfg.Gateways.Timeout,
		Retry:       retry,
	}, log)

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
		return dispatch.Senders{}, err
	}

	infobip, err := gateway.NewInfobip(gateway.InfobipConfig{
		Endpoint: cfg.Gateways.Infobip.Endpoint,
		APIKey:   secrets.InfobipAPIKey,
		Sender:   cfg.Gateways.Infobip.Sender,
		Timeout:  cfg.Gateways.Timeout,
		Retry:    retry,
	}, authority, log)
	if err != nil {
		return dispatch.Senders{}, err
	}

	telegram, err := gateway.NewTelegram(gateway.TelegramConfig{
		Token: secrets.TelegramToken,
		Retry: retry,
	}, log)
	if err != nil {
		return dispatch.Senders{}, err
	}

	return dispatch.Senders{
		PushAPNs:    apns,
		PushFCM:     fcm,
		PushRelay:   expo,
		SMSPrimary:  playmobile,
		SMSFallback: infobip,
		Chat:        telegram,
	}, nil
}

func startHealthServer(cfg *config.Config, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Server.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	port := cfg.Server.HealthPort
	if port == 0 {
		port = 8081
	}

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.ZL.Error().Err(err).Msg("health server failed")
			os.Exit(1)
		}
	}()
}
