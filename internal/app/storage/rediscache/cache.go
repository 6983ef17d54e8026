// Package rediscache is a Redis-backed storage.DeviceCache.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/factory_os/internal/app/domain/device"
	"github.com/R3E-Network/factory_os/internal/app/storage"
)

// DefaultPrefix namespaces device keys.
const DefaultPrefix = "factory_os:device:"

// Cache stores devices as JSON values with a TTL.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ storage.DeviceCache = (*Cache)(nil)

// New wraps an existing client. A zero ttl stores keys without expiry.
func New(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, prefix: DefaultPrefix, ttl: ttl}
}

// NewFromURL connects using a redis:// URL and pings the server.
func NewFromURL(ctx context.Context, url string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, ttl), nil
}

func (c *Cache) key(id int64) string {
	return c.prefix + strconv.FormatInt(id, 10)
}

func (c *Cache) Get(ctx context.Context, id int64) (device.Device, bool, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return device.Device{}, false, nil
	}
	if err != nil {
		return device.Device{}, false, err
	}

	var d device.Device
	if err := json.Unmarshal(raw, &d); err != nil {
		// a corrupt entry behaves like a miss and is dropped
		_ = c.client.Del(ctx, c.key(id)).Err()
		return device.Device{}, false, nil
	}
	return d, true, nil
}

func (c *Cache) Set(ctx context.Context, d device.Device) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(d.ID), raw, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, id int64) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

// Ping checks the connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
