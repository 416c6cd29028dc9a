package cooldown

import (
	"context"
	"fmt"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const cooldownKeyPrefix = "load_balancing:cooldown:"

// Scope identifies the pool one cooldown entry belongs to.
type Scope struct {
	TenantID  string
	Provider  string
	ModelName string
	ModelType string
}

// Store tracks which load-balancing entries are cooling down after a rate
// limit. Expiry is delegated to Redis key TTLs, so reads never need cleanup.
type Store struct {
	redisClient *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	// Verify connection health up front so misconfiguration surfaces at boot
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		fiberlog.Errorf("Redis connection failed for cooldown store: %v", err)
	}

	return &Store{redisClient: redisClient}
}

func (s *Store) key(scope Scope, configID string) string {
	return cooldownKeyPrefix + strings.Join([]string{
		scope.TenantID, scope.Provider, scope.ModelType, scope.ModelName, configID,
	}, ":")
}

// SetCooldown removes the entry from rotation for the given number of seconds.
func (s *Store) SetCooldown(ctx context.Context, scope Scope, configID string, seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("cooldown seconds must be positive, got %d", seconds)
	}

	expiry := time.Duration(seconds) * time.Second
	if err := s.redisClient.Set(ctx, s.key(scope, configID), "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

// Cooldown reports whether the entry is cooling down and, if so, the remaining
// whole seconds.
func (s *Store) Cooldown(ctx context.Context, scope Scope, configID string) (bool, int, error) {
	ttl, err := s.redisClient.TTL(ctx, s.key(scope, configID)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read cooldown ttl: %w", err)
	}

	// Redis returns negative durations for missing keys and keys without
	// expiry; neither counts as an active cooldown.
	if ttl <= 0 {
		return false, 0, nil
	}
	return true, int(ttl.Seconds()), nil
}

// ClearCooldown returns the entry to rotation ahead of its expiry.
func (s *Store) ClearCooldown(ctx context.Context, scope Scope, configID string) error {
	if err := s.redisClient.Del(ctx, s.key(scope, configID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cooldown: %w", err)
	}
	return nil
}
