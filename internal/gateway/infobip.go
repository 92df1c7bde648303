package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/internal/quota"
	"github.com/oson-apps/notify-engine/pkg/circuitbreaker"
	apperrors "github.com/oson-apps/notify-engine/pkg/errors"
	"github.com/oson-apps/notify-engine/pkg/logger"
)

const infobipProvider = "infobip"

// InfobipConfig configures the fallback (broad-coverage) SMS gateway.
type InfobipConfig struct {
	Endpoint string
	APIKey   string
	Sender   string
	Timeout  time.Duration
	Retry    RetryPolicy
}

// Infobip is the fallback SMS adapter: international coverage, numbers WITH a
// leading plus.
type Infobip struct {
	cfg       InfobipConfig
	authority quota.Authority
	client    *http.Client
	cb        *circuitbreaker.CircuitBreaker
	log       *logger.Logger
}

func NewInfobip(cfg InfobipConfig, authority quota.Authority, log *logger.Logger) (*Infobip, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, apperrors.Config("infobip requires endpoint and api key", nil)
	}
	if cfg.Sender == "" {
		cfg.Sender = "InfoSMS"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Infobip{
		cfg:       cfg,
		authority: authority,
		client:    &http.Client{Timeout: cfg.Timeout},
		cb:        circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: infobipProvider}),
		log:       log,
	}, nil
}

func (i *Infobip) Provider() string { return infobipProvider }
func (i *Infobip) Channel() string  { return model.ChannelSMS }

type infobipResponse struct {
	Messages []struct {
		MessageID string `json:"messageId"`
		Status    struct {
			GroupName string `json:"groupName"`
			Name      string `json:"name"`
		} `json:"status"`
	} `json:"messages"`
}

func (i *Infobip) Send(ctx context.Context, recipient string, msg Message) Outcome {
	number := strings.TrimSpace(recipient)
	if number == "" {
		return outcomeFromError(model.ChannelSMS, infobipProvider, 0,
			apperrors.InvalidInput("empty recipient", nil))
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	if !digitsOnly(number[1:]) {
		return outcomeFromError(model.ChannelSMS, infobipProvider, 0,
			apperrors.InvalidInput(fmt.Sprintf("malformed recipient %q", recipient), nil))
	}

	if !i.authority.CanSend() {
		return outcomeFromError(model.ChannelSMS, infobipProvider, 0, apperrors.QuotaExceeded("sms"))
	}

	warning := segmentWarning(msg.Body, i.log)

	message := map[string]interface{}{
		"destinations": []map[string]string{{"to": number}},
		"from":         i.cfg.Sender,
		"text":         msg.Body,
	}
	if msg.TTL > 0 {
		message["validityPeriod"] = int(msg.TTL.Minutes())
	}
	payload := map[string]interface{}{
		"messages": []map[string]interface{}{message},
	}

	headers := map[string]string{"Authorization": "App " + i.cfg.APIKey}

	id, attempts, err := attempt(ctx, i.cfg.Retry, i.cb, func(ctx context.Context) (string, error) {
		status, raw, err := postJSON(ctx, i.client, infobipProvider, i.cfg.Endpoint+"/sms/2/text/advanced", headers, payload)
		if err != nil {
			return "", err
		}
		if err := classifyStatus(infobipProvider, status, raw); err != nil {
			return "", err
		}

		var resp infobipResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", apperrors.ProviderUnavailable(infobipProvider, fmt.Errorf("malformed response: %w", err))
		}
		if len(resp.Messages) == 0 {
			return "", apperrors.ProviderUnavailable(infobipProvider, fmt.Errorf("empty response"))
		}

		m := resp.Messages[0]
		if m.Status.GroupName == "REJECTED" {
			return "", apperrors.ProviderRejected(infobipProvider, m.Status.Name)
		}
		return m.MessageID, nil
	})

	if err != nil {
		out := outcomeFromError(model.ChannelSMS, infobipProvider, attempts, err)
		out.SegmentWarning = warning
		return out
	}

	i.authority.Increment()
	return Outcome{
		Success:           true,
		Channel:           model.ChannelSMS,
		Provider:          infobipProvider,
		ProviderMessageID: id,
		Attempts:          attempts,
		SegmentWarning:    warning,
		Timestamp:         time.Now(),
	}
}
