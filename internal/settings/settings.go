package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flipline/crosslister/internal/pricing"
)

// Setting keys as stored by the extension frontend.
const (
	KeyMarkupPercentage = "markup-percentage"
	KeyEndPrice         = "end-price"

	selectedDomainPrefix = "selected-domain-"
	changeChannel        = "settings:changed"
)

// RedisClient is the subset of redis operations the store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Store is the key-value persistence collaborator for user settings. It
// offers last-write-wins semantics per key and nothing more.
type Store struct {
	rdb    RedisClient
	logger *slog.Logger
}

func NewStore(rdb RedisClient, logger *slog.Logger) *Store {
	return &Store{
		rdb:    rdb,
		logger: logger.With("component", "settings_store"),
	}
}

// Get returns the stored value, or empty string when the key is unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}

// Set stores a value and notifies change subscribers.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	if err := s.rdb.Publish(ctx, changeChannel, key).Err(); err != nil {
		s.logger.Warn("failed to publish setting change", "key", key, "error", err)
	}
	return nil
}

// OnChange invokes callback with the fresh value every time key changes.
// The subscription ends when ctx is cancelled.
func (s *Store) OnChange(ctx context.Context, key string, callback func(value string)) {
	sub := s.rdb.Subscribe(ctx, changeChannel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != key {
					continue
				}
				value, err := s.Get(ctx, key)
				if err != nil {
					s.logger.Warn("failed to read changed setting", "key", key, "error", err)
					continue
				}
				callback(value)
			}
		}
	}()
}

// MarkupPercentage returns the configured markup. A missing or invalid
// setting uniformly resolves to 0 (no markup).
func (s *Store) MarkupPercentage(ctx context.Context) float64 {
	return s.floatSetting(ctx, KeyMarkupPercentage)
}

// EndPriceAddition returns the flat amount added after markup; 0 when unset.
func (s *Store) EndPriceAddition(ctx context.Context) float64 {
	return s.floatSetting(ctx, KeyEndPrice)
}

func (s *Store) floatSetting(ctx context.Context, key string) float64 {
	raw, err := s.Get(ctx, key)
	if err != nil || raw == "" {
		return 0
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		s.logger.Warn("ignoring invalid setting value", "key", key, "value", raw)
		return 0
	}
	return value
}

// SelectedDomain returns the user's chosen marketplace domain, defaulting
// to USA when unset.
func (s *Store) SelectedDomain(ctx context.Context, user string) pricing.Domain {
	raw, err := s.Get(ctx, selectedDomainPrefix+user)
	if err != nil || raw == "" {
		return pricing.DomainUSA
	}
	return pricing.Domain(raw)
}

// PricingContext assembles the pricing configuration for one user from the
// individual settings keys.
func (s *Store) PricingContext(ctx context.Context, user string) pricing.Context {
	return pricing.Context{
		Domain:           s.SelectedDomain(ctx, user),
		MarkupPercentage: s.MarkupPercentage(ctx),
		EndPriceAddition: s.EndPriceAddition(ctx),
	}
}
