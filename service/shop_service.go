package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/arunvm123/flashdeal/cache"
	cacheredis "github.com/arunvm123/flashdeal/cache/redis"
	"github.com/arunvm123/flashdeal/model"
	"github.com/arunvm123/flashdeal/repository"
	"github.com/sirupsen/logrus"
)

type CachedShopService struct {
	repo       repository.ShopRepository
	cache      *cacheredis.CacheClient
	ttl        time.Duration
	logicalTTL time.Duration
	log        *logrus.Entry
}

func NewCachedShopService(
	repo repository.ShopRepository,
	cache *cacheredis.CacheClient,
	ttl, logicalTTL time.Duration,
	log *logrus.Entry,
) *CachedShopService {
	return &CachedShopService{
		repo:       repo,
		cache:      cache,
		ttl:        ttl,
		logicalTTL: logicalTTL,
		log:        log,
	}
}

// load adapts the repository to the cache loader contract
func (s *CachedShopService) load(ctx context.Context, id int64) (*model.Shop, error) {
	shop, err := s.repo.GetShopByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, cache.ErrNotFound
	}
	return shop, err
}

func (s *CachedShopService) QueryByID(ctx context.Context, id int64) (*model.Shop, error) {
	return cacheredis.QueryWithPassThrough(ctx, s.cache, cache.ShopKeyPrefix, id, s.load, s.ttl)
}

func (s *CachedShopService) QueryLockedByID(ctx context.Context, id int64) (*model.Shop, error) {
	return cacheredis.QueryWithMutex(ctx, s.cache, cache.ShopKeyPrefix, id, s.load, s.ttl)
}

func (s *CachedShopService) QueryHotByID(ctx context.Context, id int64) (*model.Shop, error) {
	return cacheredis.QueryWithLogicalExpire(ctx, s.cache, cache.HotShopKeyPrefix, id, s.load, s.logicalTTL)
}

func (s *CachedShopService) Update(ctx context.Context, shop *model.Shop) error {
	if err := s.repo.UpdateShop(ctx, shop); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return cache.ErrNotFound
		}
		return err
	}

	key := cache.ShopKeyPrefix + strconv.FormatInt(shop.ID, 10)
	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("shop %d updated but cache not invalidated: %w", shop.ID, err)
	}

	s.log.Debugf("Invalidated %s after update", key)

	// hot keys are never left cold, so refresh instead of deleting
	hotKey := cache.HotShopKeyPrefix + strconv.FormatInt(shop.ID, 10)
	hot, err := s.cache.Exists(ctx, hotKey)
	if err != nil {
		return err
	}
	if hot {
		if err := s.Warm(ctx, shop.ID); err != nil {
			return fmt.Errorf("shop %d updated but hot cache not refreshed: %w", shop.ID, err)
		}
	}
	return nil
}

func (s *CachedShopService) Warm(ctx context.Context, id int64) error {
	return cacheredis.Warm(ctx, s.cache, cache.HotShopKeyPrefix, id, s.load, s.logicalTTL)
}
