package service

import (
	"context"

	"github.com/arunvm123/flashdeal/model"
)

// ShopService serves catalogue reads through the cache
type ShopService interface {
	// QueryByID is the cache-aside read with null-marker protection
	QueryByID(ctx context.Context, id int64) (*model.Shop, error)

	// QueryLockedByID is the cache-aside read whose miss path is serialised
	// by a distributed lock. Returns cache.ErrBusy when the lock stays held.
	QueryLockedByID(ctx context.Context, id int64) (*model.Shop, error)

	// QueryHotByID serves pre-warmed hot keys with logical expiry
	QueryHotByID(ctx context.Context, id int64) (*model.Shop, error)

	// Update writes the store first, then drops the cached copy
	Update(ctx context.Context, shop *model.Shop) error

	// Warm loads a shop into the hot-key cache
	Warm(ctx context.Context, id int64) error
}
