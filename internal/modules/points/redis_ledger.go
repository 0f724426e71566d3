// README: Points ledger on Redis (INCRBY balances, settlements applied by one Lua script).
package points

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rideshare/internal/types"
)

const (
	balanceKeyPrefix    = "rideshare:points:"
	settlementKeyPrefix = "rideshare:settlements:"
	// Claims outlive any realistic redelivery of a finalize for the same ride.
	settlementTTL = 30 * 24 * time.Hour
)

// settleScript checks both balances before writing anything, so a bad value leaves the
// claim and the balances untouched.
var settleScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 2, 3 do
  local v = redis.call('GET', KEYS[i])
  if v and not string.match(v, '^%-?%d+$') then
    return redis.error_reply('balance is not an integer: ' .. KEYS[i])
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
redis.call('INCRBY', KEYS[2], ARGV[3])
redis.call('DECRBY', KEYS[3], ARGV[3])
return 1
`)

type RedisLedger struct {
	redis *redis.Client
}

func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{redis: rdb}
}

func balanceKey(userID types.ID) string {
	return balanceKeyPrefix + string(userID)
}

func (l *RedisLedger) Open(ctx context.Context, userID types.ID, initial int64) error {
	ok, err := l.redis.SetNX(ctx, balanceKey(userID), initial, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccountExists
	}
	return nil
}

func (l *RedisLedger) Balance(ctx context.Context, userID types.ID) (int64, error) {
	b, err := l.redis.Get(ctx, balanceKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoAccount
	}
	return b, err
}

func (l *RedisLedger) Increment(ctx context.Context, userID types.ID, delta int64) error {
	return l.redis.IncrBy(ctx, balanceKey(userID), delta).Err()
}

func (l *RedisLedger) Settle(ctx context.Context, rideID, driverID, riderID types.ID, points int64) (bool, error) {
	keys := []string{settlementKeyPrefix + string(rideID), balanceKey(driverID), balanceKey(riderID)}
	ttl := strconv.FormatInt(int64(settlementTTL/time.Second), 10)
	n, err := settleScript.Run(ctx, l.redis, keys, time.Now().Unix(), ttl, points).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
