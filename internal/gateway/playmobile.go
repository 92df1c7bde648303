package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/internal/quota"
	"github.com/oson-apps/notify-engine/internal/sms"
	"github.com/oson-apps/notify-engine/pkg/circuitbreaker"
	apperrors "github.com/oson-apps/notify-engine/pkg/errors"
	"github.com/oson-apps/notify-engine/pkg/logger"
)

const playmobileProvider = "playmobile"

// PlayMobileConfig configures the primary (local) SMS broker.
type PlayMobileConfig struct {
	Endpoint       string
	Username       string
	Password       string
	Originator     string
	MessageIDLimit int
	Timeout        time.Duration
	Retry          RetryPolicy
}

// PlayMobile is the primary SMS gateway adapter. The broker wants recipient
// numbers WITHOUT a leading plus and caps the client message-id length.
type PlayMobile struct {
	cfg       PlayMobileConfig
	authority quota.Authority
	client    *http.Client
	cb        *circuitbreaker.CircuitBreaker
	log       *logger.Logger
}

func NewPlayMobile(cfg PlayMobileConfig, authority quota.Authority, log *logger.Logger) (*PlayMobile, error) {
	if cfg.Endpoint == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, apperrors.Config("playmobile requires endpoint, username and password", nil)
	}
	if cfg.Originator == "" {
		cfg.Originator = "3700"
	}
	if cfg.MessageIDLimit <= 0 {
		cfg.MessageIDLimit = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &PlayMobile{
		cfg:       cfg,
		authority: authority,
		client:    &http.Client{Timeout: cfg.Timeout},
		cb:        circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: playmobileProvider}),
		log:       log,
	}, nil
}

func (p *PlayMobile) Provider() string { return playmobileProvider }
func (p *PlayMobile) Channel() string  { return model.ChannelSMS }

type playmobileError struct {
	ErrorCode   int    `json:"error-code"`
	Description string `json:"error-description"`
}

// Broker error codes worth surfacing distinctly so operators can act.
var playmobileErrorReasons = map[int]string{
	101: "invalid originator",
	102: "account blocked",
	103: "empty recipient",
	104: "empty message text",
	105: "message-id too long",
	202: "too many message ids",
}

func (p *PlayMobile) Send(ctx context.Context, recipient string, msg Message) Outcome {
	number := strings.TrimPrefix(strings.TrimSpace(recipient), "+")
	if number == "" || !digitsOnly(number) {
		return outcomeFromError(model.ChannelSMS, playmobileProvider, 0,
			apperrors.InvalidInput(fmt.Sprintf("malformed recipient %q", recipient), nil))
	}

	messageID := msg.ID
	if messageID == "" {
		messageID = uuid.NewString()[:8]
	}
	if len(messageID) > p.cfg.MessageIDLimit {
		return outcomeFromError(model.ChannelSMS, playmobileProvider, 0,
			apperrors.InvalidInput(fmt.Sprintf("message-id exceeds %d characters", p.cfg.MessageIDLimit), nil))
	}

	if !p.authority.CanSend() {
		return outcomeFromError(model.ChannelSMS, playmobileProvider, 0, apperrors.QuotaExceeded("sms"))
	}

	warning := segmentWarning(msg.Body, p.log)

	smsBody := map[string]interface{}{
		"originator": p.cfg.Originator,
		"content":    map[string]string{"text": msg.Body},
	}
	if msg.TTL > 0 {
		smsBody["ttl"] = int(msg.TTL.Minutes())
	}
	payload := map[string]interface{}{
		"messages": []map[string]interface{}{{
			"recipient":  number,
			"message-id": messageID,
			"sms":        smsBody,
		}},
	}

	auth := base64.StdEncoding.EncodeToString([]byte(p.cfg.Username + ":" + p.cfg.Password))
	headers := map[string]string{"Authorization": "Basic " + auth}

	_, attempts, err := attempt(ctx, p.cfg.Retry, p.cb, func(ctx context.Context) (string, error) {
		status, raw, err := postJSON(ctx, p.client, playmobileProvider, p.cfg.Endpoint+"/broker-api/send", headers, payload)
		if err != nil {
			return "", err
		}
		if status >= 500 {
			return "", apperrors.ProviderUnavailable(playmobileProvider, fmt.Errorf("status %d", status))
		}
		if status != http.StatusOK {
			var body playmobileError
			_ = json.Unmarshal(raw, &body)
			reason := playmobileErrorReasons[body.ErrorCode]
			if reason == "" {
				reason = fmt.Sprintf("error-code %d: %s", body.ErrorCode, body.Description)
			}
			return "", apperrors.ProviderRejected(playmobileProvider, reason)
		}
		// The broker answers an accepted batch with a bare 200.
		return messageID, nil
	})

	if err != nil {
		out := outcomeFromError(model.ChannelSMS, playmobileProvider, attempts, err)
		out.SegmentWarning = warning
		return out
	}

	p.authority.Increment()
	return Outcome{
		Success:           true,
		Channel:           model.ChannelSMS,
		Provider:          playmobileProvider,
		ProviderMessageID: messageID,
		Attempts:          attempts,
		SegmentWarning:    warning,
		Timestamp:         time.Now(),
	}
}

func digitsOnly(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// segmentWarning surfaces multi-segment bodies as a cost signal, not a failure.
func segmentWarning(body string, log *logger.Logger) string {
	info := sms.Segments(body)
	if info.Segments <= 1 {
		return ""
	}
	warning := fmt.Sprintf("message needs %d segments (%s, %d chars)", info.Segments, info.Encoding, info.Length)
	if log != nil {
		log.Warn("multi-segment sms", "segments", info.Segments, "encoding", string(info.Encoding))
	}
	return warning
}
