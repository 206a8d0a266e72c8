package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(storeID, sku string) string {
	return fmt.Sprintf("stock:%s:%s", storeID, sku)
}

// ReserveStock atomically commits qty to online orders for one (store, SKU).
// Returns (true, nil) on success, (false, nil) when sellable stock is
// insufficient, and redis.Nil-wrapped errors only on transport failure. A
// missing key is reported as an error so the caller falls back to the
// database.
func (c *Client) ReserveStock(ctx context.Context, storeID, sku string, qty int) (bool, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(storeID, sku)}, qty).Result()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	status, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	if status == -1 {
		return false, fmt.Errorf("stock key not warmed for store=%s sku=%s", storeID, sku)
	}

	return status == 1, nil
}

// ReleaseStock atomically returns qty from online orders to sellable stock
func (c *Client) ReleaseStock(ctx context.Context, storeID, sku string, qty int) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{stockKey(storeID, sku)}, qty).Result()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// InitStock seeds the sellable/online counters for one (store, SKU)
func (c *Client) InitStock(ctx context.Context, storeID, sku string, sellable, online int) error {
	key := stockKey(storeID, sku)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "sellable", sellable)
	pipe.HSet(ctx, key, "online", online)

	_, err := pipe.Exec(ctx)
	return err
}

// GetStock retrieves the cached counters for one (store, SKU)
func (c *Client) GetStock(ctx context.Context, storeID, sku string) (sellable, online int, err error) {
	result, err := c.rdb.HGetAll(ctx, stockKey(storeID, sku)).Result()
	if err != nil {
		return 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, fmt.Errorf("stock not cached for store=%s sku=%s", storeID, sku)
	}

	fmt.Sscanf(result["sellable"], "%d", &sellable)
	fmt.Sscanf(result["online"], "%d", &online)
	return sellable, online, nil
}

// AcquireLock acquires a distributed lock, used to keep the hybrid recompute
// job single-flight across instances
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
