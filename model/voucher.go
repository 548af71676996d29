package model

import (
	"fmt"
	"strconv"
	"time"
)

// Order status values
const (
	StatusUnpaid    = 1
	StatusPaid      = 2
	StatusConsumed  = 3
	StatusCancelled = 4
	StatusRefunding = 5
	StatusRefunded  = 6
)

// ============================================================================
// DATABASE ENTITIES
// ============================================================================

// SeckillVoucher holds the durable stock and sale window of a flash-sale voucher
type SeckillVoucher struct {
	VoucherID  int64     `gorm:"primaryKey;autoIncrement:false"`
	Stock      int       `gorm:"not null"`
	BeginTime  time.Time `gorm:"not null"`
	EndTime    time.Time `gorm:"not null"`
	CreateTime time.Time `gorm:"autoCreateTime"`
	UpdateTime time.Time `gorm:"autoUpdateTime"`
}

// TableName sets the table name for GORM
func (SeckillVoucher) TableName() string {
	return "seckill_vouchers"
}

// VoucherOrder is one admitted flash-sale order. The id comes from the id
// worker; (voucher_id, user_id) is unique.
type VoucherOrder struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false"`
	VoucherID  int64     `gorm:"not null;uniqueIndex:idx_voucher_user"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_voucher_user"`
	Status     int       `gorm:"not null;default:1"`
	CreateTime time.Time `gorm:"autoCreateTime"`
	UpdateTime time.Time `gorm:"autoUpdateTime"`
}

// TableName sets the table name for GORM
func (VoucherOrder) TableName() string {
	return "voucher_orders"
}

// ============================================================================
// API DATA TRANSFER OBJECTS
// ============================================================================

// PublishVoucherRequest publishes a voucher for a flash sale
type PublishVoucherRequest struct {
	VoucherID int64     `json:"voucher_id" binding:"required"`
	Stock     int       `json:"stock" binding:"required,gt=0"`
	BeginTime time.Time `json:"begin_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required,gtfield=BeginTime"`
}

// ToSeckillVoucher converts the request to an entity
func (r *PublishVoucherRequest) ToSeckillVoucher() *SeckillVoucher {
	return &SeckillVoucher{
		VoucherID: r.VoucherID,
		Stock:     r.Stock,
		BeginTime: r.BeginTime,
		EndTime:   r.EndTime,
	}
}

// OrderResponse is returned when an order is admitted. The id is rendered as a
// string because it exceeds the safe integer range of JSON clients.
type OrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ============================================================================
// ORDER LOG MESSAGES
// ============================================================================

// OrderMessage is one entry of the order stream
type OrderMessage struct {
	// StreamID is the log position; empty until read back from the log.
	StreamID  string
	ID        int64
	VoucherID int64
	UserID    int64
	Status    int
}

// OrderMessageFromValues decodes stream entry fields written by the admission script
func OrderMessageFromValues(streamID string, values map[string]interface{}) (*OrderMessage, error) {
	msg := &OrderMessage{StreamID: streamID, Status: StatusUnpaid}

	var err error
	if msg.ID, err = int64Field(values, "id"); err != nil {
		return nil, err
	}
	if msg.VoucherID, err = int64Field(values, "voucherId"); err != nil {
		return nil, err
	}
	if msg.UserID, err = int64Field(values, "userId"); err != nil {
		return nil, err
	}
	if _, ok := values["status"]; ok {
		status, err := int64Field(values, "status")
		if err != nil {
			return nil, err
		}
		msg.Status = int(status)
	}

	return msg, nil
}

// ToVoucherOrder materializes the order row
func (m *OrderMessage) ToVoucherOrder() *VoucherOrder {
	return &VoucherOrder{
		ID:        m.ID,
		VoucherID: m.VoucherID,
		UserID:    m.UserID,
		Status:    m.Status,
	}
}

func int64Field(values map[string]interface{}, name string) (int64, error) {
	raw, ok := values[name]
	if !ok {
		return 0, fmt.Errorf("missing field %q", name)
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("field %q has type %T", name, raw)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", name, err)
	}
	return v, nil
}

// ============================================================================
// NOTIFICATION MESSAGES
// ============================================================================

// OrderEvent is published after an order row is persisted
type OrderEvent struct {
	Type      string    `json:"type"`
	OrderID   int64     `json:"order_id,string"`
	VoucherID int64     `json:"voucher_id"`
	UserID    int64     `json:"user_id"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
