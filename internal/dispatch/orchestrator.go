package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/oson-apps/notify-engine/internal/carrier"
	"github.com/oson-apps/notify-engine/internal/gateway"
	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/internal/repository"
	"github.com/oson-apps/notify-engine/internal/token"
	"github.com/oson-apps/notify-engine/pkg/logger"
	"github.com/oson-apps/notify-engine/pkg/metrics"
)

// Senders groups the gateway adapters the orchestrator fans out to. The push
// slot is picked by token family; the SMS slot by carrier routing.
type Senders struct {
	PushAPNs    gateway.Sender
	PushFCM     gateway.Sender
	PushRelay   gateway.Sender
	SMSPrimary  gateway.Sender
	SMSFallback gateway.Sender
	Chat        gateway.Sender
}

type Config struct {
	BatchSize      int
	MaxConcurrent  int
	ChannelTimeout time.Duration
	SendRate       float64
	SendBurst      int
	PollInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 16
	}
	if c.ChannelTimeout <= 0 {
		c.ChannelTimeout = 30 * time.Second
	}
	if c.SendRate <= 0 {
		c.SendRate = 50
	}
	if c.SendBurst <= 0 {
		c.SendBurst = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	return c
}

// Report summarizes one processing cycle.
type Report struct {
	Total      int
	Processed  int
	PerChannel map[string]int
}

// Orchestrator pulls pending targets and fans them out concurrently across
// the applicable channels. A target counts as processed when at least one
// channel succeeds; channels race independently and per-target failures never
// abort the batch.
type Orchestrator struct {
	source  repository.TargetSource
	router  *carrier.Router
	senders Senders
	cfg     Config
	limiter *rate.Limiter
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewOrchestrator(source repository.TargetSource, router *carrier.Router, senders Senders, cfg Config, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		source:  source,
		router:  router,
		senders: senders,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		log:     log,
		metrics: m,
	}
}

// Run processes batches on a fixed interval until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	o.log.Info("starting dispatch orchestrator", "batch_size", o.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			o.log.Info("shutting down dispatch orchestrator")
			return
		case <-ticker.C:
			report, err := o.ProcessBatch(ctx)
			if err != nil {
				o.log.Error(err, "dispatch cycle failed")
				continue
			}
			if report.Total > 0 {
				o.log.Info("dispatch cycle finished",
					"total", report.Total, "processed", report.Processed)
			}
		}
	}
}

// ProcessBatch runs one dispatch cycle: fetch, fan out, join, mark processed.
func (o *Orchestrator) ProcessBatch(ctx context.Context) (Report, error) {
	report := Report{PerChannel: make(map[string]int)}

	var timer *prometheus.Timer
	if o.metrics != nil {
		timer = prometheus.NewTimer(o.metrics.BatchDuration)
		defer timer.ObserveDuration()
	}

	targets, err := o.source.FetchPending(ctx, o.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to fetch pending targets: %w", err)
	}
	report.Total = len(targets)
	if len(targets) == 0 {
		return report, nil
	}

	type targetResult struct {
		id        uuid.UUID
		delivered bool
		outcomes  []model.DeliveryOutcome
	}

	results := make([]targetResult, len(targets))
	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t *model.NotificationTarget) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes := o.processTarget(ctx, t)
			delivered := false
			for _, out := range outcomes {
				if out.Success {
					delivered = true
					break
				}
			}
			results[i] = targetResult{id: t.ID, delivered: delivered, outcomes: outcomes}
		}(i, target)
	}
	// Join barrier: the completion report only happens after every channel
	// attempt in the batch has resolved.
	wg.Wait()

	var processed []uuid.UUID
	for _, res := range results {
		for _, out := range res.outcomes {
			o.observe(out)
			if out.Success {
				report.PerChannel[out.Channel]++
			}
		}
		if res.delivered {
			processed = append(processed, res.id)
			if o.metrics != nil {
				o.metrics.TargetsProcessed.Inc()
			}
		} else if o.metrics != nil {
			o.metrics.TargetsFailed.Inc()
		}
	}
	report.Processed = len(processed)

	if o.metrics != nil {
		o.metrics.BatchesProcessed.Inc()
	}

	if len(processed) > 0 {
		if err := o.source.MarkProcessed(ctx, processed); err != nil {
			return report, fmt.Errorf("failed to mark targets processed: %w", err)
		}
	}
	return report, nil
}

// processTarget attempts every applicable channel concurrently and returns
// all outcomes. Channel failures are isolated: each attempt runs in its own
// goroutine and only its outcome records the failure.
func (o *Orchestrator) processTarget(ctx context.Context, t *model.NotificationTarget) []model.DeliveryOutcome {
	msg := gateway.Message{
		ID:        shortID(t.ID),
		Title:     t.Title,
		Body:      t.Body,
		Priority:  t.Priority,
		ActionURL: t.ActionURL,
		Language:  t.Language,
	}

	type attempt struct {
		sender    gateway.Sender
		recipient string
	}
	var attempts []attempt

	if t.ChatID != 0 && o.senders.Chat != nil {
		attempts = append(attempts, attempt{o.senders.Chat, strconv.FormatInt(t.ChatID, 10)})
	}

	if t.PushCapable() {
		if sender := o.pushSender(t); sender != nil {
			attempts = append(attempts, attempt{sender, t.PushToken})
		}
	}

	if t.SMSEligible && t.Phone != "" {
		decision := o.router.Route(t.Phone)
		sender := o.senders.SMSFallback
		if decision.UsePrimaryGateway {
			sender = o.senders.SMSPrimary
		}
		if sender != nil {
			attempts = append(attempts, attempt{sender, t.Phone})
		}
	}

	outcomes := make([]model.DeliveryOutcome, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, a attempt) {
			defer wg.Done()
			if err := o.limiter.Wait(ctx); err != nil {
				outcomes[i] = model.DeliveryOutcome{
					TargetID: t.ID, Channel: a.sender.Channel(), Provider: a.sender.Provider(),
					Reason: err.Error(), Timestamp: time.Now(),
				}
				return
			}
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.ChannelTimeout)
			defer cancel()
			start := time.Now()
			out := a.sender.Send(callCtx, a.recipient, msg)
			if o.metrics != nil {
				o.metrics.SendLatency.WithLabelValues(a.sender.Channel(), a.sender.Provider()).
					Observe(time.Since(start).Seconds())
			}
			outcomes[i] = toDeliveryOutcome(t.ID, out)
		}(i, a)
	}
	wg.Wait()

	return outcomes
}

func toDeliveryOutcome(targetID uuid.UUID, out gateway.Outcome) model.DeliveryOutcome {
	return model.DeliveryOutcome{
		TargetID:          targetID,
		Channel:           out.Channel,
		Provider:          out.Provider,
		Success:           out.Success,
		ProviderMessageID: out.ProviderMessageID,
		Reason:            out.Reason,
		Attempts:          out.Attempts,
		SegmentWarning:    out.SegmentWarning,
		Timestamp:         out.Timestamp,
	}
}

// pushSender picks the adapter for the target's token family. The relay
// format is the only case where the family selects a different adapter rather
// than a different payload shape.
func (o *Orchestrator) pushSender(t *model.NotificationTarget) gateway.Sender {
	c := token.Classify(t.PushToken)
	if !c.Valid {
		o.log.Warn("invalid push token, skipping push channel", "target_id", t.ID.String())
		return nil
	}
	if c.Defaulted {
		o.log.Debug("unrecognized token format, assuming fcm", "target_id", t.ID.String())
	}
	switch c.Family {
	case token.FamilyRelay:
		return o.senders.PushRelay
	case token.FamilyAPNS:
		return o.senders.PushAPNs
	default:
		return o.senders.PushFCM
	}
}

func (o *Orchestrator) observe(out model.DeliveryOutcome) {
	status := "failure"
	if out.Success {
		status = "success"
	}
	if o.metrics != nil {
		o.metrics.ChannelSends.WithLabelValues(out.Channel, out.Provider, status).Inc()
		if out.SegmentWarning != "" {
			o.metrics.SegmentAlerts.Inc()
		}
		if out.Attempts > 1 {
			o.metrics.SendRetries.WithLabelValues(out.Provider).Add(float64(out.Attempts - 1))
		}
		if !out.Success && strings.Contains(out.Reason, "quota exhausted") {
			o.metrics.QuotaDenied.WithLabelValues(out.Channel).Inc()
		}
	}

	evt := o.log.ZL.Info()
	if !out.Success {
		evt = o.log.ZL.Warn()
	}
	evt.
		Str("target_id", out.TargetID.String()).
		Str("channel", out.Channel).
		Str("provider", out.Provider).
		Bool("success", out.Success).
		Int("attempts", out.Attempts).
		Str("reason", out.Reason).
		Msg("delivery outcome")
}

// shortID derives a broker-safe correlation id from the target id.
func shortID(id uuid.UUID) string {
	s := id.String()
	return s[:8] + s[9:13] + s[14:18]
}
