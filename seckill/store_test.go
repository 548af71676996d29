package seckill

import (
	"context"
	"testing"

	"github.com/arunvm123/flashdeal/model"
	"github.com/arunvm123/flashdeal/repository/postgres"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newSQLStore(t *testing.T) *postgres.PostgresRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo, err := postgres.NewRepositoryWithDB(db)
	require.NoError(t, err)
	return repo
}

func storedOrders(t *testing.T, repo *postgres.PostgresRepository, voucherID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, repo.GetDB().WithContext(context.Background()).
		Model(&model.VoucherOrder{}).Where("voucher_id = ?", voucherID).Count(&n).Error)
	return n
}
