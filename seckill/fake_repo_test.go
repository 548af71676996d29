package seckill

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/arunvm123/flashdeal/model"
	"github.com/arunvm123/flashdeal/repository"
)

// memRepo mirrors the transactional semantics of the gorm repository
type memRepo struct {
	mu       sync.Mutex
	vouchers map[int64]*model.SeckillVoucher
	orders   map[int64]*model.VoucherOrder
	failNext int
}

func newMemRepo() *memRepo {
	return &memRepo{
		vouchers: make(map[int64]*model.SeckillVoucher),
		orders:   make(map[int64]*model.VoucherOrder),
	}
}

var errInjected = errors.New("injected failure")

func (r *memRepo) CreateVoucher(ctx context.Context, voucher *model.SeckillVoucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *voucher
	r.vouchers[v.VoucherID] = &v
	return nil
}

func (r *memRepo) GetVoucherByID(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[voucherID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *v
	return &out, nil
}

func (r *memRepo) DeleteVoucher(ctx context.Context, voucherID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.vouchers, voucherID)
	return nil
}

func (r *memRepo) UpdateStockIfPositive(ctx context.Context, voucherID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decrementLocked(voucherID), nil
}

func (r *memRepo) decrementLocked(voucherID int64) bool {
	v, ok := r.vouchers[voucherID]
	if !ok || v.Stock <= 0 {
		return false
	}
	v.Stock--
	return true
}

func (r *memRepo) ExistsOrder(ctx context.Context, voucherID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.existsLocked(voucherID, userID), nil
}

func (r *memRepo) existsLocked(voucherID, userID int64) bool {
	for _, o := range r.orders {
		if o.VoucherID == voucherID && o.UserID == userID {
			return true
		}
	}
	return false
}

func (r *memRepo) CreateOrder(ctx context.Context, order *model.VoucherOrder) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failNext > 0 {
		r.failNext--
		return false, errInjected
	}
	if _, ok := r.orders[order.ID]; ok {
		return false, nil
	}
	if r.existsLocked(order.VoucherID, order.UserID) {
		return false, nil
	}
	if !r.decrementLocked(order.VoucherID) {
		return false, repository.ErrOutOfStock
	}
	o := *order
	r.orders[o.ID] = &o
	return true, nil
}

func (r *memRepo) failNextCreates(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

func (r *memRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *memRepo) stock(voucherID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vouchers[voucherID].Stock
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(ctx context.Context, event *model.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func mustDecode(t *testing.T, entry Entry) *model.OrderMessage {
	t.Helper()
	msg, err := model.OrderMessageFromValues(entry.StreamID, entry.Values)
	if err != nil {
		t.Fatalf("decode %s: %v", entry.StreamID, err)
	}
	return msg
}
