package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/repository"
)

// ErrPolicyNotFound signals the guild has no ticket policy configured.
var ErrPolicyNotFound = errors.New("guild policy not configured")

// ErrInvalidPolicy signals a stored policy failed boundary validation.
var ErrInvalidPolicy = errors.New("guild policy invalid")

// Provider resolves per-guild ticket policy.
type Provider interface {
	GetPolicy(ctx context.Context, guildID int64) (*domain.GuildPolicy, error)
}

type cachedProvider struct {
	repo   repository.PolicyRepository
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProvider builds a provider reading through a Redis cache into the
// policy repository. cache may be nil, in which case every read hits the
// repository.
func NewCachedProvider(repo repository.PolicyRepository, cache *redis.Client, ttl time.Duration, logger *zap.Logger) Provider {
	return &cachedProvider{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(guildID int64) string {
	return fmt.Sprintf("guild_policy:%d", guildID)
}

func (p *cachedProvider) GetPolicy(ctx context.Context, guildID int64) (*domain.GuildPolicy, error) {
	if cached := p.fromCache(ctx, guildID); cached != nil {
		return cached, nil
	}

	policy, err := p.repo.GetByGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load guild policy %d: %w", guildID, err)
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}
	if err := Validate(policy); err != nil {
		return nil, err
	}

	p.toCache(ctx, policy)
	return policy, nil
}

// Validate enforces the boundary contract: a usable policy names at least
// one staff role. Category references stay optional.
func Validate(policy *domain.GuildPolicy) error {
	if len(policy.StaffRoleIDs) == 0 {
		return fmt.Errorf("%w: guild %d has no staff roles", ErrInvalidPolicy, policy.GuildID)
	}
	return nil
}

func (p *cachedProvider) fromCache(ctx context.Context, guildID int64) *domain.GuildPolicy {
	if p.cache == nil {
		return nil
	}
	raw, err := p.cache.Get(ctx, cacheKey(guildID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.logger.Warn("policy cache read failed", zap.Int64("guild_id", guildID), zap.Error(err))
		}
		return nil
	}
	var policy domain.GuildPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		p.logger.Warn("policy cache entry corrupt", zap.Int64("guild_id", guildID), zap.Error(err))
		return nil
	}
	return &policy
}

func (p *cachedProvider) toCache(ctx context.Context, policy *domain.GuildPolicy) {
	if p.cache == nil {
		return
	}
	raw, err := json.Marshal(policy)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, cacheKey(policy.GuildID), raw, p.ttl).Err(); err != nil {
		p.logger.Warn("policy cache write failed", zap.Int64("guild_id", policy.GuildID), zap.Error(err))
	}
}
