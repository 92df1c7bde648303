package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oson-apps/notify-engine/pkg/logger"
)

// checkScript reads both window counters in one round trip so two instances
// cannot interleave between the reads.
var checkScript = redis.NewScript(`
local d = tonumber(redis.call('GET', KEYS[1]) or '0')
local h = tonumber(redis.call('GET', KEYS[2]) or '0')
if d < tonumber(ARGV[1]) and h < tonumber(ARGV[2]) then
  return 1
end
return 0
`)

// RedisAuthority is the distributed Authority for multi-instance deployments.
// Window keys carry a TTL slightly past the window so stale buckets expire on
// their own.
type RedisAuthority struct {
	client   *redis.Client
	ceilings Ceilings
	prefix   string
	timeout  time.Duration
	now      func() time.Time
	log      *logger.Logger
}

func NewRedisAuthority(client *redis.Client, ceilings Ceilings, prefix string, log *logger.Logger) *RedisAuthority {
	if prefix == "" {
		prefix = "notify:quota"
	}
	return &RedisAuthority{
		client:   client,
		ceilings: ceilings,
		prefix:   prefix,
		timeout:  2 * time.Second,
		now:      time.Now,
		log:      log,
	}
}

func (a *RedisAuthority) keys(t time.Time) (day, hour string) {
	return fmt.Sprintf("%s:d:%s", a.prefix, dayKey(t)),
		fmt.Sprintf("%s:h:%s", a.prefix, hourKey(t))
}

func (a *RedisAuthority) CanSend() bool {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	day, hour := a.keys(a.now())
	ok, err := checkScript.Run(ctx, a.client, []string{day, hour},
		a.ceilings.Daily, a.ceilings.Hourly).Int()
	if err != nil {
		// Fail closed: an unreachable counter must not let senders blow past
		// the ceiling.
		a.log.Error(err, "quota check failed, denying send")
		return false
	}
	return ok == 1
}

func (a *RedisAuthority) Increment() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	day, hour := a.keys(a.now())
	pipe := a.client.TxPipeline()
	pipe.Incr(ctx, day)
	pipe.Expire(ctx, day, 25*time.Hour)
	pipe.Incr(ctx, hour)
	pipe.Expire(ctx, hour, 2*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		a.log.Error(err, "quota increment failed")
	}
}

func (a *RedisAuthority) Remaining() (daily, hourly int) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	day, hour := a.keys(a.now())
	vals, err := a.client.MGet(ctx, day, hour).Result()
	if err != nil {
		a.log.Error(err, "quota read failed")
		return 0, 0
	}
	used := func(v interface{}) int {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		var n int
		fmt.Sscanf(s, "%d", &n)
		return n
	}
	daily = a.ceilings.Daily - used(vals[0])
	hourly = a.ceilings.Hourly - used(vals[1])
	if daily < 0 {
		daily = 0
	}
	if hourly < 0 {
		hourly = 0
	}
	return daily, hourly
}
