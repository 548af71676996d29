package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/arunvm123/flashdeal/model"
	"github.com/arunvm123/flashdeal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresRepository struct {
	db *gorm.DB
}

func NewRepository(databaseURL string) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewRepositoryWithDB(db)
}

// NewRepositoryWithDB wraps an already opened connection and migrates the schema
func NewRepositoryWithDB(db *gorm.DB) (*PostgresRepository, error) {
	if err := db.AutoMigrate(&model.Shop{}, &model.SeckillVoucher{}, &model.VoucherOrder{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// CreateShop inserts a catalogue row
func (r *PostgresRepository) CreateShop(ctx context.Context, shop *model.Shop) error {
	if err := r.db.WithContext(ctx).Create(shop).Error; err != nil {
		return fmt.Errorf("failed to create shop: %w", err)
	}
	return nil
}

// GetShopByID retrieves a shop by its ID
func (r *PostgresRepository) GetShopByID(ctx context.Context, id int64) (*model.Shop, error) {
	var shop model.Shop
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&shop).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	return &shop, nil
}

// UpdateShop overwrites the mutable columns of a shop
func (r *PostgresRepository) UpdateShop(ctx context.Context, shop *model.Shop) error {
	updates := map[string]interface{}{
		"name":       shop.Name,
		"type_id":    shop.TypeID,
		"area":       shop.Area,
		"address":    shop.Address,
		"x":          shop.X,
		"y":          shop.Y,
		"avg_price":  shop.AvgPrice,
		"score":      shop.Score,
		"open_hours": shop.OpenHours,
	}

	res := r.db.WithContext(ctx).Model(&model.Shop{}).Where("id = ?", shop.ID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update shop: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// CreateVoucher stores a flash-sale voucher
func (r *PostgresRepository) CreateVoucher(ctx context.Context, voucher *model.SeckillVoucher) error {
	if err := r.db.WithContext(ctx).Create(voucher).Error; err != nil {
		return fmt.Errorf("failed to create voucher: %w", err)
	}
	return nil
}

// GetVoucherByID retrieves a flash-sale voucher
func (r *PostgresRepository) GetVoucherByID(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	var voucher model.SeckillVoucher
	err := r.db.WithContext(ctx).Where("voucher_id = ?", voucherID).First(&voucher).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}

	return &voucher, nil
}

// DeleteVoucher removes a voucher row; a missing row is not an error
func (r *PostgresRepository) DeleteVoucher(ctx context.Context, voucherID int64) error {
	err := r.db.WithContext(ctx).Where("voucher_id = ?", voucherID).Delete(&model.SeckillVoucher{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete voucher: %w", err)
	}
	return nil
}

// UpdateStockIfPositive takes one unit of stock; false when none is left
func (r *PostgresRepository) UpdateStockIfPositive(ctx context.Context, voucherID int64) (bool, error) {
	return decrementStock(r.db.WithContext(ctx), voucherID)
}

func decrementStock(db *gorm.DB, voucherID int64) (bool, error) {
	res := db.Model(&model.SeckillVoucher{}).
		Where("voucher_id = ? AND stock > 0", voucherID).
		UpdateColumn("stock", gorm.Expr("stock - 1"))
	if res.Error != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ExistsOrder reports whether the user already holds an order for the voucher
func (r *PostgresRepository) ExistsOrder(ctx context.Context, voucherID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.VoucherOrder{}).
		Where("voucher_id = ? AND user_id = ?", voucherID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count orders: %w", err)
	}
	return count > 0, nil
}

// CreateOrder persists an admitted order exactly once
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.VoucherOrder) (bool, error) {
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(order)
		if res.Error != nil {
			return fmt.Errorf("failed to insert order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		ok, err := decrementStock(tx, order.VoucherID)
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrOutOfStock
		}

		created = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return created, nil
}

// GetDB returns the database instance for health checks
func (r *PostgresRepository) GetDB() *gorm.DB {
	return r.db
}
