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

const expoProvider = "expo"

type ExpoConfig struct {
	Endpoint    string
	AccessToken string
	ChunkSize   int
	Timeout     time.Duration
	Retry       RetryPolicy
}

// Expo is the push-relay adapter, only invoked for tokens the classifier marks
// as relay format. Supports single and chunked bulk submission.
type Expo struct {
	cfg    ExpoConfig
	client *http.Client
	cb     *circuitbreaker.CircuitBreaker
	log    *logger.Logger
}

func NewExpo(cfg ExpoConfig, log *logger.Logger) *Expo {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://exp.host/--/api/v2/push/send"
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > 100 {
		cfg.ChunkSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Expo{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: expoProvider}),
		log:    log,
	}
}

func (e *Expo) Provider() string { return expoProvider }
func (e *Expo) Channel() string  { return model.ChannelPush }

type expoTicket struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data []expoTicket `json:"data"`
}

func (e *Expo) item(recipient string, msg Message) map[string]interface{} {
	priority := "default"
	if msg.Priority == model.PriorityHigh {
		priority = "high"
	}
	item := map[string]interface{}{
		"to":       recipient,
		"title":    msg.Title,
		"body":     msg.Body,
		"priority": priority,
		"sound":    "default",
	}
	if len(msg.Data) > 0 {
		item["data"] = msg.Data
	}
	if msg.TTL > 0 {
		item["ttl"] = int(msg.TTL.Seconds())
	}
	return item
}

func (e *Expo) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if e.cfg.AccessToken != "" {
		h["Authorization"] = "Bearer " + e.cfg.AccessToken
	}
	return h
}

func (e *Expo) Send(ctx context.Context, recipient string, msg Message) Outcome {
	if recipient == "" {
		return outcomeFromError(model.ChannelPush, expoProvider, 0,
			apperrors.InvalidInput("empty relay token", nil))
	}

	id, attempts, err := attempt(ctx, e.cfg.Retry, e.cb, func(ctx context.Context) (string, error) {
		tickets, err := e.submit(ctx, []map[string]interface{}{e.item(recipient, msg)})
		if err != nil {
			return "", err
		}
		if len(tickets) == 0 {
			return "", apperrors.ProviderUnavailable(expoProvider, fmt.Errorf("no tickets returned"))
		}
		return ticketResult(tickets[0])
	})

	if err != nil {
		return outcomeFromError(model.ChannelPush, expoProvider, attempts, err)
	}
	return Outcome{
		Success:           true,
		Channel:           model.ChannelPush,
		Provider:          expoProvider,
		ProviderMessageID: id,
		Attempts:          attempts,
		Timestamp:         time.Now(),
	}
}

// SendBulk submits the same message to many relay tokens, chunked to the
// provider's per-request limit. One outcome per recipient, in order.
func (e *Expo) SendBulk(ctx context.Context, recipients []string, msg Message) []Outcome {
	outcomes := make([]Outcome, 0, len(recipients))

	for start := 0; start < len(recipients); start += e.cfg.ChunkSize {
		end := start + e.cfg.ChunkSize
		if end > len(recipients) {
			end = len(recipients)
		}
		chunk := recipients[start:end]

		items := make([]map[string]interface{}, len(chunk))
		for i, r := range chunk {
			items[i] = e.item(r, msg)
		}

		var tickets []expoTicket
		_, attempts, err := attempt(ctx, e.cfg.Retry, e.cb, func(ctx context.Context) (string, error) {
			var err error
			tickets, err = e.submit(ctx, items)
			return "", err
		})

		for i := range chunk {
			if err != nil || i >= len(tickets) {
				reason := "no ticket returned"
				if err != nil {
					reason = err.Error()
				}
				outcomes = append(outcomes, Outcome{
					Channel: model.ChannelPush, Provider: expoProvider,
					Reason: reason, Attempts: attempts, Timestamp: time.Now(),
				})
				continue
			}
			id, terr := ticketResult(tickets[i])
			out := Outcome{
				Channel: model.ChannelPush, Provider: expoProvider,
				Attempts: attempts, Timestamp: time.Now(),
			}
			if terr != nil {
				out.Reason = terr.Error()
			} else {
				out.Success = true
				out.ProviderMessageID = id
			}
			outcomes = append(outcomes, out)
		}
	}
	return outcomes
}

func (e *Expo) submit(ctx context.Context, items []map[string]interface{}) ([]expoTicket, error) {
	status, raw, err := postJSON(ctx, e.client, expoProvider, e.cfg.Endpoint, e.headers(), items)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(expoProvider, status, raw); err != nil {
		return nil, err
	}
	var resp expoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.ProviderUnavailable(expoProvider, fmt.Errorf("malformed response: %w", err))
	}
	return resp.Data, nil
}

func ticketResult(t expoTicket) (string, error) {
	if t.Status == "ok" {
		return t.ID, nil
	}
	// DeviceNotRegistered and friends are final for this token.
	if t.Details.Error != "" {
		return "", apperrors.ProviderRejected(expoProvider, t.Details.Error)
	}
	return "", apperrors.ProviderUnavailable(expoProvider, fmt.Errorf("%s", t.Message))
}
