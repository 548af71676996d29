package seckill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/arunvm123/flashdeal/metrics"
	"github.com/arunvm123/flashdeal/model"
	"github.com/arunvm123/flashdeal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// IDGenerator allocates order ids
type IDGenerator interface {
	NextID(ctx context.Context, name string) (int64, error)
}

// VoucherOrderService admits flash-sale orders on the request path. The
// order row itself is written later by the OrderProcessor.
type VoucherOrderService struct {
	client *redis.Client
	ids    IDGenerator
	repo   repository.VoucherRepository
	log    *logrus.Entry
	now    func() time.Time
}

func NewVoucherOrderService(client *redis.Client, ids IDGenerator, repo repository.VoucherRepository, log *logrus.Entry) *VoucherOrderService {
	return &VoucherOrderService{
		client: client,
		ids:    ids,
		repo:   repo,
		log:    log,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for the sale window check.
func (s *VoucherOrderService) WithClock(now func() time.Time) *VoucherOrderService {
	s.now = now
	return s
}

// PublishVoucher stores the voucher and seeds its admission stock and window
func (s *VoucherOrderService) PublishVoucher(ctx context.Context, voucher *model.SeckillVoucher) error {
	if voucher.Stock <= 0 {
		return fmt.Errorf("voucher %d: stock must be positive", voucher.VoucherID)
	}
	if !voucher.EndTime.After(voucher.BeginTime) {
		return fmt.Errorf("voucher %d: end time must be after begin time", voucher.VoucherID)
	}

	if err := s.repo.CreateVoucher(ctx, voucher); err != nil {
		return err
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, StockKey(voucher.VoucherID), voucher.Stock, 0)
		pipe.HSet(ctx, WindowKey(voucher.VoucherID),
			"begin", voucher.BeginTime.Unix(),
			"end", voucher.EndTime.Unix())
		return nil
	})
	if err != nil {
		// without its keys the voucher can never be sold, so drop the row and
		// leave the id free for a retry
		if delErr := s.repo.DeleteVoucher(context.WithoutCancel(ctx), voucher.VoucherID); delErr != nil {
			s.log.Errorf("Failed to roll back voucher %d after seeding failed: %v", voucher.VoucherID, delErr)
		}
		return fmt.Errorf("failed to seed voucher %d: %w", voucher.VoucherID, err)
	}

	s.log.Infof("Published voucher %d with stock %d", voucher.VoucherID, voucher.Stock)
	return nil
}

// PlaceOrder runs admission for one user. On success the returned id is
// final; the order row appears once the processor consumes the log entry.
// Business refusals are *RejectionError values.
func (s *VoucherOrderService) PlaceOrder(ctx context.Context, voucherID, userID int64) (int64, error) {
	orderID, err := s.ids.NextID(ctx, "order")
	if err != nil {
		metrics.Admissions.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to allocate order id: %w", err)
	}

	keys := []string{StockKey(voucherID), OrderSetKey(voucherID), StreamKey, WindowKey(voucherID)}
	args := []interface{}{
		strconv.FormatInt(voucherID, 10),
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(orderID, 10),
		s.now().Unix(),
	}

	code, err := admissionScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		metrics.Admissions.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to run admission for voucher %d: %w", voucherID, err)
	}

	if code != resultAdmitted {
		err := rejectionFor(code)
		label := "error"
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			label = rejectionLabel(rejection)
		}
		metrics.Admissions.WithLabelValues(label).Inc()
		return 0, err
	}

	metrics.Admissions.WithLabelValues("admitted").Inc()
	return orderID, nil
}

func rejectionLabel(err *RejectionError) string {
	switch err {
	case ErrSoldOut:
		return "sold_out"
	case ErrDuplicateOrder:
		return "duplicate"
	case ErrVoucherNotFound:
		return "not_found"
	case ErrNotStarted:
		return "not_started"
	case ErrEnded:
		return "ended"
	}
	return "rejected"
}
