package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/pkg/circuitbreaker"
	apperrors "github.com/oson-apps/notify-engine/pkg/errors"
)

// Message is the channel-agnostic payload handed to every adapter. Each
// adapter shapes it into its provider's envelope.
type Message struct {
	ID          string
	Title       string
	Body        string
	Data        map[string]string
	Priority    model.Priority
	TTL         time.Duration
	ActionURL   string
	ActionLabel string
	Language    string
}

// Outcome is the structured result of one adapter invocation. Adapters never
// return errors for expected provider failures; everything an operator needs
// is in here.
type Outcome struct {
	Success           bool
	Channel           string
	Provider          string
	ProviderMessageID string
	Reason            string
	Attempts          int
	SegmentWarning    string
	Timestamp         time.Time
}

// Sender is the uniform adapter contract: normalize the recipient, shape the
// payload, perform the call with bounded retries, report a structured outcome.
type Sender interface {
	Send(ctx context.Context, recipient string, msg Message) Outcome
	Provider() string
	Channel() string
}

// RetryPolicy bounds the internal retry loop of an adapter. MaxAttempts counts
// every attempt including the first; Delay is the fixed inter-attempt pause.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Delay <= 0 {
		p.Delay = 2 * time.Second
	}
	return p
}

// attempt runs fn under the retry policy. Transient failures (network, 5xx,
// timeout, open breaker) are retried up to MaxAttempts with a fixed delay;
// permanent failures stop immediately. Returns the provider message id, the
// number of attempts actually made and the final error, if any.
func attempt(ctx context.Context, policy RetryPolicy, cb *circuitbreaker.CircuitBreaker, fn func(context.Context) (string, error)) (string, int, error) {
	policy = policy.withDefaults()

	var lastErr error
	for n := 1; n <= policy.MaxAttempts; n++ {
		var id string
		call := func() error {
			var err error
			id, err = fn(ctx)
			return err
		}

		var err error
		if cb != nil {
			err = cb.Execute(call)
			if errors.Is(err, circuitbreaker.ErrOpen) {
				err = apperrors.ProviderUnavailable("gateway", err)
			}
		} else {
			err = call()
		}

		if err == nil {
			return id, n, nil
		}
		lastErr = err

		if !apperrors.IsTransient(err) {
			return "", n, err
		}
		if n == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", n, apperrors.ProviderUnavailable("gateway", ctx.Err())
		case <-time.After(policy.Delay):
		}
	}
	return "", policy.MaxAttempts, lastErr
}

// outcomeFromError folds a terminal adapter error into an Outcome.
func outcomeFromError(channel, provider string, attempts int, err error) Outcome {
	return Outcome{
		Success:   false,
		Channel:   channel,
		Provider:  provider,
		Reason:    err.Error(),
		Attempts:  attempts,
		Timestamp: time.Now(),
	}
}

// postJSON performs one JSON POST and returns the status code and response
// body. Transport-level failures come back as transient provider errors.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, apperrors.InvalidInput("payload marshal failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, apperrors.InvalidInput("request build failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, apperrors.ProviderUnavailable(provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, apperrors.ProviderUnavailable(provider, err)
	}
	return resp.StatusCode, raw, nil
}

// classifyStatus maps an HTTP status to the error taxonomy: 5xx and 429 are
// transient, other non-2xx are permanent rejections.
func classifyStatus(provider string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 500 || status == http.StatusTooManyRequests:
		return apperrors.ProviderUnavailable(provider, fmt.Errorf("status %d: %s", status, truncate(body, 256)))
	default:
		return apperrors.ProviderRejected(provider, fmt.Sprintf("status %d: %s", status, truncate(body, 256)))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
