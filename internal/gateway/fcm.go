package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/pkg/circuitbreaker"
	apperrors "github.com/oson-apps/notify-engine/pkg/errors"
	"github.com/oson-apps/notify-engine/pkg/logger"
)

const fcmProvider = "fcm"

type FCMConfig struct {
	Endpoint  string
	ServerKey string
	Timeout   time.Duration
	Retry     RetryPolicy
}

// FCM delivers mobile push over the FCM legacy HTTP API.
type FCM struct {
	cfg    FCMConfig
	client *http.Client
	cb     *circuitbreaker.CircuitBreaker
	log    *logger.Logger
}

func NewFCM(cfg FCMConfig, log *logger.Logger) (*FCM, error) {
	if cfg.ServerKey == "" {
		return nil, apperrors.Config("fcm server key is required", nil)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://fcm.googleapis.com/fcm/send"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &FCM{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: fcmProvider}),
		log:    log,
	}, nil
}

func (f *FCM) Provider() string { return fcmProvider }
func (f *FCM) Channel() string  { return model.ChannelPush }

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// Registration errors that mean this token will never work again.
var fcmPermanentErrors = map[string]bool{
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"MismatchSenderId":    true,
	"MissingRegistration": true,
}

func (f *FCM) Send(ctx context.Context, recipient string, msg Message) Outcome {
	if recipient == "" {
		return outcomeFromError(model.ChannelPush, fcmProvider, 0,
			apperrors.InvalidInput("empty registration token", nil))
	}

	priority := "normal"
	if msg.Priority == model.PriorityHigh {
		priority = "high"
	}
	payload := map[string]interface{}{
		"to": recipient,
		"notification": map[string]string{
			"title": msg.Title,
			"body":  msg.Body,
		},
		"priority": priority,
	}
	if len(msg.Data) > 0 {
		payload["data"] = msg.Data
	}
	if msg.TTL > 0 {
		payload["time_to_live"] = int(msg.TTL.Seconds())
	}

	headers := map[string]string{"Authorization": "key=" + f.cfg.ServerKey}

	id, attempts, err := attempt(ctx, f.cfg.Retry, f.cb, func(ctx context.Context) (string, error) {
		status, raw, err := postJSON(ctx, f.client, fcmProvider, f.cfg.Endpoint, headers, payload)
		if err != nil {
			return "", err
		}
		if err := classifyStatus(fcmProvider, status, raw); err != nil {
			return "", err
		}

		var resp fcmResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", apperrors.ProviderUnavailable(fcmProvider, fmt.Errorf("malformed response: %w", err))
		}
		if len(resp.Results) == 0 {
			return "", apperrors.ProviderUnavailable(fcmProvider, fmt.Errorf("empty results"))
		}

		res := resp.Results[0]
		if res.Error == "" {
			return res.MessageID, nil
		}
		if fcmPermanentErrors[res.Error] {
			return "", apperrors.ProviderRejected(fcmProvider, res.Error)
		}
		// Unavailable / InternalServerError come back inside a 200.
		return "", apperrors.ProviderUnavailable(fcmProvider, fmt.Errorf("%s", res.Error))
	})

	if err != nil {
		return outcomeFromError(model.ChannelPush, fcmProvider, attempts, err)
	}
	return Outcome{
		Success:           true,
		Channel:           model.ChannelPush,
		Provider:          fcmProvider,
		ProviderMessageID: id,
		Attempts:          attempts,
		Timestamp:         time.Now(),
	}
}
