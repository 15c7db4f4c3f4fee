package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// loginStore 是 loginGuard 用到的 Redis 命令子集，redis.UniversalClient 满足该接口。
type loginStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type loginVerdict int

const (
	loginAllowed loginVerdict = iota
	loginRateLimited
	loginLocked
)

// loginGuard 按 IP+用户名限制每小时登录次数，并在连续失败达到阈值后锁定用户名。
type loginGuard struct {
	store         loginStore
	limitPerHour  int
	lockThreshold int
	lockTTL       time.Duration
	now           func() time.Time
}

func newLoginGuard(store loginStore, limitPerHour, lockThreshold int, lockTTL time.Duration) *loginGuard {
	return &loginGuard{
		store:         store,
		limitPerHour:  limitPerHour,
		lockThreshold: lockThreshold,
		lockTTL:       lockTTL,
		now:           time.Now,
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (g *loginGuard) rateKey(ip, username string) string {
	return fmt.Sprintf("texresume:login:rate:%s:%s:%s", ip, normalizeUsername(username), g.now().UTC().Format("2006010215"))
}

func failKey(username string) string { return "texresume:login:fail:" + normalizeUsername(username) }
func lockKey(username string) string { return "texresume:login:lock:" + normalizeUsername(username) }

// check 计入一次登录尝试并返回是否放行。Redis 出错时返回错误，由调用方决定是否放行。
func (g *loginGuard) check(ctx context.Context, ip, username string) (loginVerdict, error) {
	locked, err := g.store.Exists(ctx, lockKey(username)).Result()
	if err != nil {
		return loginAllowed, fmt.Errorf("check login lock: %w", err)
	}
	if locked > 0 {
		return loginLocked, nil
	}

	count, err := incrWithTTL(ctx, g.store, g.rateKey(ip, username), time.Hour)
	if err != nil {
		return loginAllowed, fmt.Errorf("count login attempt: %w", err)
	}
	if count > int64(g.limitPerHour) {
		return loginRateLimited, nil
	}
	return loginAllowed, nil
}

// recordFailure 累加失败次数，达到阈值时写入锁定键。返回是否已锁定。
func (g *loginGuard) recordFailure(ctx context.Context, username string) (bool, error) {
	count, err := incrWithTTL(ctx, g.store, failKey(username), g.lockTTL)
	if err != nil {
		return false, fmt.Errorf("count login failure: %w", err)
	}
	if count < int64(g.lockThreshold) {
		return false, nil
	}
	if err := g.store.Set(ctx, lockKey(username), "1", g.lockTTL).Err(); err != nil {
		return false, fmt.Errorf("lock login: %w", err)
	}
	return true, nil
}

// reset 在登录成功后清除失败计数。
func (g *loginGuard) reset(ctx context.Context, username string) error {
	return g.store.Del(ctx, failKey(username)).Err()
}

func incrWithTTL(ctx context.Context, store loginStore, key string, ttl time.Duration) (int64, error) {
	count, err := store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = store.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}
