// Package redis provides the pub/sub fan-out for chat events and a small
// JSON read-through cache for the product catalog.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rfpflow/rfpflow/internal/domain"
)

type Client struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("redis.Client.Close: %w", err)
	}
	return nil
}

// Ping reports connectivity. Used by the readiness handler.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.Client.Ping: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Pub/Sub
// ---------------------------------------------------------------------------

func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.Client.Publish: %w", err)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := c.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.Client.Subscribe: receive confirmation: %w", err)
	}

	out := make(chan []byte, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// ---------------------------------------------------------------------------
// Catalog cache
// ---------------------------------------------------------------------------

// GetProduct returns the cached product for sku, or domain.ErrNotFound on a
// cache miss. Corrupt cache entries count as misses.
func (c *Client) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	raw, err := c.client.Get(ctx, productKey(sku)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis.Client.GetProduct: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis.Client.GetProduct: %w", err)
	}

	var p domain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("redis.Client.GetProduct: %w", domain.ErrNotFound)
	}
	return &p, nil
}

// SetProduct caches a product under its SKU for ttl.
func (c *Client) SetProduct(ctx context.Context, p *domain.Product, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis.Client.SetProduct: %w", err)
	}
	if err := c.client.Set(ctx, productKey(p.SKU), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis.Client.SetProduct: %w", err)
	}
	return nil
}

// DeleteProduct invalidates one cached product. Mutating catalog endpoints
// call this after every write.
func (c *Client) DeleteProduct(ctx context.Context, sku string) error {
	if err := c.client.Del(ctx, productKey(sku)).Err(); err != nil {
		return fmt.Errorf("redis.Client.DeleteProduct: %w", err)
	}
	return nil
}

func productKey(sku string) string {
	return "catalog:product:" + sku
}
