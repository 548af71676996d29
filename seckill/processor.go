package seckill

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arunvm123/flashdeal/metrics"
	"github.com/arunvm123/flashdeal/model"
	"github.com/arunvm123/flashdeal/notification"
	"github.com/arunvm123/flashdeal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	minReadBackoff = 100 * time.Millisecond
	maxReadBackoff = 5 * time.Second
	readBatch      = 10
	claimBatch     = 100
)

// ProcessorConfig sizes the consumers of one process
type ProcessorConfig struct {
	ConsumerName     string
	Consumers        int
	Block            time.Duration
	RecoveryInterval time.Duration
	ClaimMinIdle     time.Duration
}

// OrderProcessor drains the order log into the relational store. Every entry
// is acknowledged only after its row is stored, so a crash leaves it pending
// for RecoverPending or a claim by another instance.
type OrderProcessor struct {
	orders    OrderLog
	repo      repository.VoucherRepository
	publisher notification.Publisher
	log       *logrus.Entry
	cfg       ProcessorConfig

	// Metrics
	processedCount int64
	failedCount    int64
}

func NewOrderProcessor(
	orders OrderLog,
	repo repository.VoucherRepository,
	publisher notification.Publisher,
	cfg ProcessorConfig,
	log *logrus.Entry,
) *OrderProcessor {
	if cfg.Consumers <= 0 {
		cfg.Consumers = 1
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "c1"
	}
	if publisher == nil {
		publisher = notification.NopPublisher{}
	}

	return &OrderProcessor{
		orders:    orders,
		repo:      repo,
		publisher: publisher,
		log:       log,
		cfg:       cfg,
	}
}

// ConsumerNames lists the group member names this processor reads as
func (p *OrderProcessor) ConsumerNames() []string {
	if p.cfg.Consumers == 1 {
		return []string{p.cfg.ConsumerName}
	}
	names := make([]string, p.cfg.Consumers)
	for i := range names {
		names[i] = fmt.Sprintf("%s-%d", p.cfg.ConsumerName, i)
	}
	return names
}

// Start runs the consumers and the recovery loop until ctx is cancelled
func (p *OrderProcessor) Start(ctx context.Context) error {
	if err := p.orders.EnsureGroup(ctx); err != nil {
		return err
	}

	names := p.ConsumerNames()
	p.log.Infof("Starting order processor with %d consumers...", len(names))

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			p.consume(ctx, name)
			return nil
		})
	}
	g.Go(func() error {
		p.recoveryLoop(ctx, names)
		return nil
	})
	g.Go(func() error {
		p.reportMetrics(ctx)
		return nil
	})

	g.Wait()
	p.log.Info("Order processor stopped")
	return ctx.Err()
}

// consume is one consumer's read loop. It returns only when ctx is done.
func (p *OrderProcessor) consume(ctx context.Context, consumer string) {
	log := p.log.WithField("consumer", consumer)

	if _, err := p.RecoverPending(ctx, consumer); err != nil {
		log.Warnf("Pending recovery incomplete: %v", err)
	}

	backoff := minReadBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := p.poll(ctx, consumer); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("Error reading order log, retrying in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxReadBackoff {
				backoff = maxReadBackoff
			}
			continue
		}
		backoff = minReadBackoff
	}
}

// poll reads one batch of new entries and handles them. Handling errors are
// logged and leave the entry pending; only read errors are returned.
func (p *OrderProcessor) poll(ctx context.Context, consumer string) (int, error) {
	entries, err := p.orders.Read(ctx, consumer, readBatch, p.cfg.Block)
	if err != nil {
		return 0, err
	}

	// a started entry is finished even when shutdown begins
	work := context.WithoutCancel(ctx)
	handled := 0
	for _, entry := range entries {
		if err := p.handle(work, entry, "live"); err != nil {
			p.log.WithField("consumer", consumer).Errorf("Failed to process order entry %s: %v", entry.StreamID, err)
			continue
		}
		handled++
	}
	return handled, nil
}

// RecoverPending re-handles every entry delivered to consumer but never
// acknowledged. Entries that fail again stay pending. Safe to run
// concurrently with consumption.
func (p *OrderProcessor) RecoverPending(ctx context.Context, consumer string) (int, error) {
	recovered := 0
	after := "0"
	var firstErr error

	for {
		entries, err := p.orders.ReadPending(ctx, consumer, after, readBatch)
		if err != nil {
			return recovered, err
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			after = entry.StreamID
			if err := p.handle(ctx, entry, "pending"); err != nil {
				p.log.WithField("consumer", consumer).Errorf("Failed to recover order entry %s: %v", entry.StreamID, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			recovered++
		}
	}

	if recovered > 0 {
		p.log.WithField("consumer", consumer).Infof("Recovered %d pending orders", recovered)
	}
	return recovered, firstErr
}

// ClaimStale takes over entries abandoned by crashed consumers and handles
// them as consumer.
func (p *OrderProcessor) ClaimStale(ctx context.Context, consumer string) (int, error) {
	entries, err := p.orders.ClaimStale(ctx, consumer, p.cfg.ClaimMinIdle, claimBatch)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, entry := range entries {
		if err := p.handle(ctx, entry, "claimed"); err != nil {
			p.log.WithField("consumer", consumer).Errorf("Failed to process claimed entry %s: %v", entry.StreamID, err)
			continue
		}
		claimed++
	}

	if claimed > 0 {
		p.log.WithField("consumer", consumer).Infof("Claimed %d stale orders", claimed)
	}
	return claimed, nil
}

func (p *OrderProcessor) recoveryLoop(ctx context.Context, names []string) {
	if p.cfg.RecoveryInterval <= 0 {
		return
	}

	ticker := time.NewTicker(p.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range names {
				if _, err := p.RecoverPending(ctx, name); err != nil && ctx.Err() == nil {
					p.log.Warnf("Pending recovery for %s incomplete: %v", name, err)
				}
			}
			if _, err := p.ClaimStale(ctx, names[0]); err != nil && ctx.Err() == nil {
				p.log.Warnf("Failed to claim stale orders: %v", err)
			}
		}
	}
}

// handle persists one entry and acknowledges it. Entries that can never
// succeed are acknowledged and dropped with a log line.
func (p *OrderProcessor) handle(ctx context.Context, entry Entry, source string) error {
	msg, err := model.OrderMessageFromValues(entry.StreamID, entry.Values)
	if err != nil {
		p.log.Errorf("Dropping malformed order entry %s: %v", entry.StreamID, err)
		metrics.OrdersProcessed.WithLabelValues(source, "malformed").Inc()
		return p.orders.Ack(ctx, entry.StreamID)
	}

	created, err := p.repo.CreateOrder(ctx, msg.ToVoucherOrder())
	if errors.Is(err, repository.ErrOutOfStock) {
		p.log.Errorf("Dropping order %d: durable stock of voucher %d exhausted", msg.ID, msg.VoucherID)
		metrics.OrdersProcessed.WithLabelValues(source, "out_of_stock").Inc()
		return p.orders.Ack(ctx, entry.StreamID)
	}
	if err != nil {
		atomic.AddInt64(&p.failedCount, 1)
		metrics.OrdersProcessed.WithLabelValues(source, "error").Inc()
		return fmt.Errorf("failed to save order %d: %w", msg.ID, err)
	}

	if created {
		p.publish(ctx, msg)
	}

	if err := p.orders.Ack(ctx, entry.StreamID); err != nil {
		return err
	}

	result := "created"
	if !created {
		result = "duplicate"
	}
	metrics.OrdersProcessed.WithLabelValues(source, result).Inc()
	atomic.AddInt64(&p.processedCount, 1)
	return nil
}

func (p *OrderProcessor) publish(ctx context.Context, msg *model.OrderMessage) {
	event := &model.OrderEvent{
		Type:      notification.OrderCreated,
		OrderID:   msg.ID,
		VoucherID: msg.VoucherID,
		UserID:    msg.UserID,
		Status:    msg.Status,
		Timestamp: time.Now(),
	}
	if err := p.publisher.PublishOrderEvent(ctx, event); err != nil {
		p.log.Warnf("Failed to publish event for order %d: %v", msg.ID, err)
	}
}

// Stats returns the number of entries stored and failed so far
func (p *OrderProcessor) Stats() (processed, failed int64) {
	return atomic.LoadInt64(&p.processedCount), atomic.LoadInt64(&p.failedCount)
}

// reportMetrics logs performance metrics
func (p *OrderProcessor) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, failed := p.Stats()
			p.log.Infof("Order Processor Metrics - Processed: %d, Failed: %d", processed, failed)
		}
	}
}
