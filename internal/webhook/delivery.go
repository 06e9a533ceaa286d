package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/meetingbot/core/internal/models"
	"github.com/meetingbot/core/internal/store"
)

// DeliveryConfig configures the HTTP client and polling cadence of a
// Delivery worker pool.
type DeliveryConfig struct {
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
	WorkerCount    int
	MaxBodyBytes   int
	PollInterval   time.Duration
	ClaimBatch     int
}

// deliveryStore is the narrow slice of *internal/store.Store a Delivery
// worker pool needs, so drainOnce/deliverOne can be unit-tested against
// an in-memory fake instead of a live Postgres connection.
type deliveryStore interface {
	ClaimDeliveries(ctx context.Context, limit int) ([]models.WebhookDeliveryAttempt, error)
	GetSubscription(ctx context.Context, id string) (*models.WebhookSubscription, error)
	RecordDeliveryResult(ctx context.Context, attemptID string, success bool, responseBody string, nextAttemptAt *time.Time) error
}

// Delivery drains the claimed delivery queue with WorkerCount concurrent
// goroutines, serializing deliveries for the same (subscription, bot)
// pair so a subscriber never observes two in-flight requests racing.
type Delivery struct {
	store  deliveryStore
	cfg    DeliveryConfig
	client *http.Client
	log    *slog.Logger

	mu     sync.Mutex
	inFlight map[string]*sync.Mutex
}

// NewDelivery builds a Delivery worker pool.
func NewDelivery(s *store.Store, cfg DeliveryConfig, log *slog.Logger) *Delivery {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ClaimBatch == 0 {
		cfg.ClaimBatch = 20
	}
	return &Delivery{
		store: s,
		cfg:   cfg,
		client: &http.Client{
			Timeout: cfg.TotalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
		log:      log,
		inFlight: make(map[string]*sync.Mutex),
	}
}

// Run launches WorkerCount goroutines polling the claim queue until ctx is
// canceled.
func (d *Delivery) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.workerLoop(ctx)
		}()
	}
	wg.Wait()
}

func (d *Delivery) workerLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

func (d *Delivery) drainOnce(ctx context.Context) {
	attempts, err := d.store.ClaimDeliveries(ctx, d.cfg.ClaimBatch)
	if err != nil {
		d.log.Error("failed to claim webhook deliveries", "error", err)
		return
	}
	for _, a := range attempts {
		d.deliverSerialized(ctx, a)
	}
}

func (d *Delivery) lockFor(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.inFlight[key]
	if !ok {
		m = &sync.Mutex{}
		d.inFlight[key] = m
	}
	return m
}

// deliverSerialized locks the (subscription, bot) key before delivering,
// so a subscriber is never hit by two concurrent attempts for the same
// logical stream.
func (d *Delivery) deliverSerialized(ctx context.Context, a models.WebhookDeliveryAttempt) {
	key := a.SubscriptionID + ":" + a.BotID
	lock := d.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	d.deliverOne(ctx, a)
}

func (d *Delivery) deliverOne(ctx context.Context, a models.WebhookDeliveryAttempt) {
	sub, err := d.store.GetSubscription(ctx, a.SubscriptionID)
	if err != nil {
		d.log.Error("failed to load subscription for delivery", "subscription_id", a.SubscriptionID, "error", err)
		return
	}

	signature := Sign(sub.Secret, a.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(a.Payload))
	if err != nil {
		d.log.Error("failed to build webhook request", "attempt_id", a.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+signature)
	req.Header.Set("X-Meetingbot-Trigger", string(a.TriggerType))

	resp, err := d.client.Do(req)
	var status int
	var body string
	if err != nil {
		body = err.Error()
	} else {
		defer resp.Body.Close()
		status = resp.StatusCode
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, int64(d.cfg.MaxBodyBytes)))
		body = string(raw)
	}

	success := err == nil && status >= 200 && status < 300
	nextAttemptCount := a.AttemptCount + 1

	var nextAttemptAt *time.Time
	if !success {
		if offset, ok := NextAttemptOffset(nextAttemptCount); ok {
			t := time.Now().Add(offset)
			nextAttemptAt = &t
		}
	}

	summary := fmt.Sprintf("status=%d %s", status, body)
	if err := d.store.RecordDeliveryResult(ctx, a.ID, success, summary, nextAttemptAt); err != nil {
		d.log.Error("failed to record delivery result", "attempt_id", a.ID, "error", err)
	}
}
