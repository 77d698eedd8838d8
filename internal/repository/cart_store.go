package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"omega-store/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxCartUpdateRetries = 5

var ErrCartConflict = errors.New("cart was modified concurrently")

// CartStore persists carts and checkout address snapshots keyed by cart id
type CartStore interface {
	Load(ctx context.Context, cartID string) (*domain.Cart, error)
	Update(ctx context.Context, cartID string, fn func(cart *domain.Cart) error) (*domain.Cart, error)
	Delete(ctx context.Context, cartID string) error
	LoadShipping(ctx context.Context, cartID string) (*domain.Address, error)
	SaveShipping(ctx context.Context, cartID string, address domain.Address) error
	DeleteShipping(ctx context.Context, cartID string) error
}

type redisCartStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCartStore creates a Redis backed CartStore. Keys expire after ttl of
// inactivity; a zero ttl keeps them forever.
func NewCartStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) CartStore {
	return &redisCartStore{client: client, ttl: ttl, logger: logger}
}

func cartKey(cartID string) string {
	return "cart:" + cartID
}

func shippingKey(cartID string) string {
	return "cart:" + cartID + ":shipping"
}

// Load returns the cart, or an empty cart when none is stored or the stored
// payload cannot be decoded
func (s *redisCartStore) Load(ctx context.Context, cartID string) (*domain.Cart, error) {
	return s.load(ctx, s.client, cartID)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *redisCartStore) load(ctx context.Context, c stringGetter, cartID string) (*domain.Cart, error) {
	cart := &domain.Cart{ID: cartID, Items: []domain.CartItem{}}

	raw, err := c.Get(ctx, cartKey(cartID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart, nil
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	var items []domain.CartItem
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Error("Discarding unreadable cart",
			zap.String("cart_id", cartID),
			zap.Error(err),
		)
		return cart, nil
	}
	if items != nil {
		cart.Items = items
	}
	return cart, nil
}

// Update applies fn to the current cart and writes the result back with
// optimistic locking. An emptied cart is deleted.
func (s *redisCartStore) Update(ctx context.Context, cartID string, fn func(cart *domain.Cart) error) (*domain.Cart, error) {
	key := cartKey(cartID)
	var updated *domain.Cart

	txf := func(tx *redis.Tx) error {
		cart, err := s.load(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if err := fn(cart); err != nil {
			return err
		}

		payload, err := json.Marshal(cart.Items)
		if err != nil {
			return fmt.Errorf("failed to encode cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if cart.IsEmpty() {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		updated = cart
		return nil
	}

	for i := 0; i < maxCartUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	return nil, ErrCartConflict
}

// Delete removes the cart
func (s *redisCartStore) Delete(ctx context.Context, cartID string) error {
	if err := s.client.Del(ctx, cartKey(cartID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

// LoadShipping returns the saved address, or nil when there is none or it
// cannot be decoded
func (s *redisCartStore) LoadShipping(ctx context.Context, cartID string) (*domain.Address, error) {
	raw, err := s.client.Get(ctx, shippingKey(cartID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load shipping address: %w", err)
	}

	address := &domain.Address{}
	if err := json.Unmarshal(raw, address); err != nil {
		s.logger.Error("Discarding unreadable shipping address",
			zap.String("cart_id", cartID),
			zap.Error(err),
		)
		return nil, nil
	}
	return address, nil
}

// SaveShipping stores the address snapshot next to the cart
func (s *redisCartStore) SaveShipping(ctx context.Context, cartID string, address domain.Address) error {
	payload, err := json.Marshal(address)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	if err := s.client.Set(ctx, shippingKey(cartID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save shipping address: %w", err)
	}
	return nil
}

// DeleteShipping removes the address snapshot
func (s *redisCartStore) DeleteShipping(ctx context.Context, cartID string) error {
	if err := s.client.Del(ctx, shippingKey(cartID)).Err(); err != nil {
		return fmt.Errorf("failed to delete shipping address: %w", err)
	}
	return nil
}
