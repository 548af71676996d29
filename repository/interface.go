package repository

import (
	"context"
	"errors"

	"github.com/arunvm123/flashdeal/model"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrOutOfStock means the durable stock of a voucher is exhausted
	ErrOutOfStock = errors.New("voucher stock exhausted")
)

// ShopRepository defines the catalogue operations behind the cache
type ShopRepository interface {
	CreateShop(ctx context.Context, shop *model.Shop) error
	GetShopByID(ctx context.Context, id int64) (*model.Shop, error)
	UpdateShop(ctx context.Context, shop *model.Shop) error
}

// VoucherRepository defines the flash-sale persistence operations
type VoucherRepository interface {
	CreateVoucher(ctx context.Context, voucher *model.SeckillVoucher) error
	GetVoucherByID(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error)
	DeleteVoucher(ctx context.Context, voucherID int64) error
	UpdateStockIfPositive(ctx context.Context, voucherID int64) (bool, error)
	ExistsOrder(ctx context.Context, voucherID, userID int64) (bool, error)

	// CreateOrder inserts the order and takes one unit of durable stock in a
	// single transaction. created is false when the order id or the
	// (voucher, user) pair was already stored, in which case stock is untouched.
	CreateOrder(ctx context.Context, order *model.VoucherOrder) (created bool, err error)
}

// Repository is the full persistence surface
type Repository interface {
	ShopRepository
	VoucherRepository

	// Health check
	GetDB() *gorm.DB
}
