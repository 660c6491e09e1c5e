package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novasend/novasend-platform/internal/observability/metrics"
	"github.com/novasend/novasend-platform/internal/provider"
	"github.com/novasend/novasend-platform/pkg/logging"
)

type queueStore interface {
	ListDue(ctx context.Context, limit int32) ([]DueItem, error)
	Claim(ctx context.Context, item DueItem, leaseFor time.Duration) (uuid.UUID, bool, error)
	CompleteSuccess(ctx context.Context, item DueItem, leaseToken uuid.UUID, providerMessageID string) error
	CompleteFailure(ctx context.Context, item DueItem, leaseToken uuid.UUID, code, message string, abortCampaign bool) error
	ScheduleRetry(ctx context.Context, item DueItem, leaseToken uuid.UUID, nextAt time.Time, reason string) error
	ReapExpired(ctx context.Context, limit int32) (int, error)
	SweepRetired(ctx context.Context, limit int32) (int, error)
}

type sender interface {
	Send(ctx context.Context, req provider.SendRequest) (*provider.SendResponse, error)
}

// Pool polls for due queue items and sends them through a fixed set of
// workers. Claims are leased, so multiple pool instances can share a queue.
type Pool struct {
	store   queueStore
	sender  sender
	limiter *ChannelLimiter
	logger  *logging.Logger
	metrics *metrics.DispatchMetrics

	workers        int
	pollInterval   time.Duration
	batchSize      int32
	sendTimeout    time.Duration
	leaseDuration  time.Duration
	reaperInterval time.Duration
	maxRetries     int
	backoff        Backoff
}

func NewPool(store queueStore, sender sender, limiter *ChannelLimiter, logger *logging.Logger) *Pool {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pool{
		store:          store,
		sender:         sender,
		limiter:        limiter,
		logger:         logger,
		workers:        4,
		pollInterval:   2 * time.Second,
		batchSize:      50,
		sendTimeout:    10 * time.Second,
		leaseDuration:  2 * time.Minute,
		reaperInterval: 30 * time.Second,
		maxRetries:     3,
		backoff:        Backoff{Base: 30 * time.Second, Max: time.Hour},
	}
}

func (p *Pool) WithWorkers(n int) *Pool {
	if n > 0 {
		p.workers = n
	}
	return p
}

func (p *Pool) WithPollInterval(d time.Duration) *Pool {
	if d > 0 {
		p.pollInterval = d
	}
	return p
}

func (p *Pool) WithBatchSize(n int32) *Pool {
	if n > 0 {
		p.batchSize = n
	}
	return p
}

func (p *Pool) WithSendTimeout(d time.Duration) *Pool {
	if d > 0 {
		p.sendTimeout = d
	}
	return p
}

func (p *Pool) WithLeaseDuration(d time.Duration) *Pool {
	if d > 0 {
		p.leaseDuration = d
	}
	return p
}

func (p *Pool) WithReaperInterval(d time.Duration) *Pool {
	if d > 0 {
		p.reaperInterval = d
	}
	return p
}

func (p *Pool) WithMaxRetries(n int) *Pool {
	if n >= 0 {
		p.maxRetries = n
	}
	return p
}

func (p *Pool) WithBackoff(b Backoff) *Pool {
	p.backoff = b
	return p
}

func (p *Pool) WithMetrics(m *metrics.DispatchMetrics) *Pool {
	p.metrics = m
	return p
}

// Run blocks until ctx is cancelled. In-flight sends finish before return.
func (p *Pool) Run(ctx context.Context) {
	if p.store == nil || p.sender == nil {
		return
	}

	items := make(chan DueItem)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				p.process(ctx, item)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reaperLoop(ctx)
	}()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.poll(ctx, items)
	for {
		select {
		case <-ctx.Done():
			close(items)
			wg.Wait()
			return
		case <-ticker.C:
			p.poll(ctx, items)
		}
	}
}

func (p *Pool) poll(ctx context.Context, items chan<- DueItem) {
	due, err := p.store.ListDue(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("dispatch poll failed", "error", err)
		}
		return
	}
	for _, item := range due {
		select {
		case items <- item:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(p.reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.store.ReapExpired(ctx, p.batchSize); err != nil {
				p.logger.Error("lease reap failed", "error", err)
			} else if n > 0 {
				p.metrics.ObserveReaped(n)
				p.logger.Info("reclaimed expired leases", "count", n)
			}
			if n, err := p.store.SweepRetired(ctx, p.batchSize); err != nil {
				p.logger.Error("retired sweep failed", "error", err)
			} else if n > 0 {
				p.logger.Info("retired inactive campaign items", "count", n)
			}
		}
	}
}

func (p *Pool) process(ctx context.Context, item DueItem) {
	// Budget check before claiming: a throttled item stays pending and is
	// picked up again on a later poll without burning a retry.
	if p.limiter != nil && !p.limiter.Allow(item.ChannelID.String()) {
		return
	}

	leaseToken, won, err := p.store.Claim(ctx, item, p.leaseDuration)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("claim failed", "error", err, "item_id", item.ID)
		}
		return
	}
	if !won {
		p.metrics.ObserveClaim("lost")
		return
	}
	p.metrics.ObserveClaim("won")

	body, err := RenderMessage(item.TemplateBody, item.RecipientName, item.Variables)
	if err != nil {
		p.logger.Error("template render failed", "error", err, "campaign_id", item.CampaignID, "phone", item.Phone)
		p.finishFailure(ctx, item, leaseToken, "template_error", err.Error(), false)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	start := time.Now()
	resp, sendErr := p.sender.Send(sendCtx, provider.SendRequest{
		ChannelID: item.ChannelID.String(),
		To:        item.Phone,
		Body:      body,
	})
	cancel()
	elapsed := time.Since(start).Seconds()

	if sendErr == nil {
		p.metrics.ObserveSend("success", elapsed)
		if err := p.store.CompleteSuccess(ctx, item, leaseToken, resp.MessageID); err != nil && !errors.Is(err, ErrLeaseLost) {
			p.logger.Error("failed to record send success", "error", err, "item_id", item.ID)
		}
		return
	}

	code := provider.ErrorCode(sendErr)
	switch {
	case code == provider.CodeChannelRevoked:
		p.metrics.ObserveSend("aborted", elapsed)
		p.logger.Error("channel revoked, aborting campaign",
			"campaign_id", item.CampaignID, "channel_id", item.ChannelID)
		p.finishFailure(ctx, item, leaseToken, code, sendErr.Error(), true)

	case provider.IsTransient(sendErr) && item.RetryCount < p.maxRetries:
		p.metrics.ObserveSend("retry", elapsed)
		p.metrics.ObserveRetry()
		delay := p.backoff.Next(item.RetryCount)
		p.logger.Warn("send failed, retry scheduled",
			"campaign_id", item.CampaignID, "phone", item.Phone,
			"retry_count", item.RetryCount+1, "delay", delay, "error", sendErr)
		if err := p.store.ScheduleRetry(ctx, item, leaseToken, time.Now().UTC().Add(delay), code); err != nil && !errors.Is(err, ErrLeaseLost) {
			p.logger.Error("failed to schedule retry", "error", err, "item_id", item.ID)
		}

	default:
		p.metrics.ObserveSend("failure", elapsed)
		p.logger.Warn("send failed permanently",
			"campaign_id", item.CampaignID, "phone", item.Phone, "code", code, "error", sendErr)
		p.finishFailure(ctx, item, leaseToken, code, sendErr.Error(), false)
	}
}

func (p *Pool) finishFailure(ctx context.Context, item DueItem, leaseToken uuid.UUID, code, message string, abort bool) {
	if err := p.store.CompleteFailure(ctx, item, leaseToken, code, message, abort); err != nil && !errors.Is(err, ErrLeaseLost) {
		p.logger.Error("failed to record send failure", "error", err, "item_id", item.ID)
	}
}
