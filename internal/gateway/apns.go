package gateway

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/pkg/circuitbreaker"
	apperrors "github.com/oson-apps/notify-engine/pkg/errors"
	"github.com/oson-apps/notify-engine/pkg/logger"
)

const apnsProvider = "apns"

// APNsConfig holds the provider-token credentials for the APNs HTTP/2 API.
type APNsConfig struct {
	Endpoint   string
	TeamID     string
	KeyID      string
	SigningKey string // PEM-encoded ES256 .p8 key
	Topic      string // app bundle id
	Timeout    time.Duration
	Retry      RetryPolicy
}

// APNs delivers mobile push over Apple's provider API.
type APNs struct {
	cfg    APNsConfig
	key    *ecdsa.PrivateKey
	client *http.Client
	cb     *circuitbreaker.CircuitBreaker
	log    *logger.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewAPNs(cfg APNsConfig, log *logger.Logger) (*APNs, error) {
	if cfg.TeamID == "" || cfg.KeyID == "" || cfg.SigningKey == "" || cfg.Topic == "" {
		return nil, apperrors.Config("apns requires team id, key id, signing key and topic", nil)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.push.apple.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	block, _ := pem.Decode([]byte(cfg.SigningKey))
	if block == nil {
		return nil, apperrors.Config("apns signing key is not valid PEM", nil)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, apperrors.Config("apns signing key parse failed", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, apperrors.Config("apns signing key must be an EC key", nil)
	}

	return &APNs{
		cfg:    cfg,
		key:    key,
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: apnsProvider}),
		log:    log,
	}, nil
}

func (a *APNs) Provider() string { return apnsProvider }
func (a *APNs) Channel() string  { return model.ChannelPush }

// providerToken returns a cached ES256 provider JWT, re-signed when it is
// within five minutes of Apple's one-hour validity limit.
func (a *APNs) providerToken() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.tokenExp) {
		return a.token, nil
	}

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": a.cfg.TeamID,
		"iat": now.Unix(),
	})
	tok.Header["kid"] = a.cfg.KeyID

	signed, err := tok.SignedString(a.key)
	if err != nil {
		return "", apperrors.ProviderUnavailable(apnsProvider, fmt.Errorf("provider token signing failed: %w", err))
	}
	a.token = signed
	a.tokenExp = now.Add(55 * time.Minute)
	return signed, nil
}

type apnsErrorBody struct {
	Reason string `json:"reason"`
}

func (a *APNs) Send(ctx context.Context, recipient string, msg Message) Outcome {
	if recipient == "" {
		return outcomeFromError(model.ChannelPush, apnsProvider, 0,
			apperrors.InvalidInput("empty device token", nil))
	}

	payload := map[string]interface{}{
		"aps": map[string]interface{}{
			"alert": map[string]string{
				"title": msg.Title,
				"body":  msg.Body,
			},
			"sound": "default",
		},
	}
	for k, v := range msg.Data {
		payload[k] = v
	}

	priority := "5"
	if msg.Priority == model.PriorityHigh {
		priority = "10"
	}
	expiration := "0"
	if msg.TTL > 0 {
		expiration = strconv.FormatInt(time.Now().Add(msg.TTL).Unix(), 10)
	}

	id, attempts, err := attempt(ctx, a.cfg.Retry, a.cb, func(ctx context.Context) (string, error) {
		bearer, err := a.providerToken()
		if err != nil {
			return "", err
		}

		url := fmt.Sprintf("%s/3/device/%s", a.cfg.Endpoint, recipient)
		headers := map[string]string{
			"authorization":   "bearer " + bearer,
			"apns-topic":      a.cfg.Topic,
			"apns-push-type":  "alert",
			"apns-priority":   priority,
			"apns-expiration": expiration,
		}

		status, raw, err := postJSON(ctx, a.client, apnsProvider, url, headers, payload)
		if err != nil {
			return "", err
		}
		if status == http.StatusOK {
			return msg.ID, nil
		}

		var body apnsErrorBody
		_ = json.Unmarshal(raw, &body)
		// 410 Unregistered and 400 BadDeviceToken are permanent for this
		// token; 429/5xx remain transient.
		if status >= 500 || status == http.StatusTooManyRequests {
			return "", apperrors.ProviderUnavailable(apnsProvider, fmt.Errorf("status %d: %s", status, body.Reason))
		}
		return "", apperrors.ProviderRejected(apnsProvider, fmt.Sprintf("status %d: %s", status, body.Reason))
	})

	if err != nil {
		return outcomeFromError(model.ChannelPush, apnsProvider, attempts, err)
	}
	return Outcome{
		Success:           true,
		Channel:           model.ChannelPush,
		Provider:          apnsProvider,
		ProviderMessageID: id,
		Attempts:          attempts,
		Timestamp:         time.Now(),
	}
}
