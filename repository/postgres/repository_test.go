package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arunvm123/flashdeal/model"
	"github.com/arunvm123/flashdeal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps every session on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo, err := NewRepositoryWithDB(db)
	require.NoError(t, err)
	return repo
}

func seedVoucher(t *testing.T, repo *PostgresRepository, voucherID int64, stock int) {
	t.Helper()
	now := time.Now()
	require.NoError(t, repo.CreateVoucher(context.Background(), &model.SeckillVoucher{
		VoucherID: voucherID,
		Stock:     stock,
		BeginTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}))
}

func TestShopRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateShop(ctx, &model.Shop{ID: 1, Name: "Tea House", TypeID: 2}))

	shop, err := repo.GetShopByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Tea House", shop.Name)

	shop.Name = "Tea House 2"
	require.NoError(t, repo.UpdateShop(ctx, shop))

	shop, err = repo.GetShopByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Tea House 2", shop.Name)
}

func TestShopNotFound(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.GetShopByID(ctx, 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = repo.UpdateShop(ctx, &model.Shop{ID: 99, Name: "ghost"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateStockIfPositiveStopsAtZero(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedVoucher(t, repo, 10, 2)

	for i := 0; i < 2; i++ {
		ok, err := repo.UpdateStockIfPositive(ctx, 10)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := repo.UpdateStockIfPositive(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	voucher, err := repo.GetVoucherByID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, voucher.Stock)
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedVoucher(t, repo, 10, 5)

	order := &model.VoucherOrder{ID: 1001, VoucherID: 10, UserID: 7, Status: model.StatusUnpaid}

	created, err := repo.CreateOrder(ctx, order)
	require.NoError(t, err)
	assert.True(t, created)

	// replay of the same message
	created, err = repo.CreateOrder(ctx, &model.VoucherOrder{ID: 1001, VoucherID: 10, UserID: 7, Status: model.StatusUnpaid})
	require.NoError(t, err)
	assert.False(t, created)

	// a different id for the same user and voucher
	created, err = repo.CreateOrder(ctx, &model.VoucherOrder{ID: 1002, VoucherID: 10, UserID: 7, Status: model.StatusUnpaid})
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := repo.ExistsOrder(ctx, 10, 7)
	require.NoError(t, err)
	assert.True(t, exists)

	voucher, err := repo.GetVoucherByID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, voucher.Stock)
}

func TestCreateOrderRollsBackWhenStockExhausted(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedVoucher(t, repo, 11, 0)

	_, err := repo.CreateOrder(ctx, &model.VoucherOrder{ID: 2001, VoucherID: 11, UserID: 3, Status: model.StatusUnpaid})
	assert.ErrorIs(t, err, repository.ErrOutOfStock)

	exists, err := repo.ExistsOrder(ctx, 11, 3)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateOrderConcurrentReplays(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedVoucher(t, repo, 12, 3)

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := repo.CreateOrder(ctx, &model.VoucherOrder{ID: 3001, VoucherID: 12, UserID: 9, Status: model.StatusUnpaid})
			if err != nil {
				t.Errorf("CreateOrder: %v", err)
				return
			}
			results <- created
		}()
	}
	wg.Wait()
	close(results)

	inserted := 0
	for created := range results {
		if created {
			inserted++
		}
	}
	assert.Equal(t, 1, inserted)

	var count int64
	require.NoError(t, repo.GetDB().Model(&model.VoucherOrder{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	voucher, err := repo.GetVoucherByID(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, voucher.Stock)
}

func TestDeleteVoucherFreesID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedVoucher(t, repo, 5, 2)

	require.NoError(t, repo.DeleteVoucher(ctx, 5))
	_, err := repo.GetVoucherByID(ctx, 5)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// missing rows are fine, and the id can be published again
	require.NoError(t, repo.DeleteVoucher(ctx, 5))
	seedVoucher(t, repo, 5, 2)
}
