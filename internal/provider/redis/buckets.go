package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// incrBucketScript bumps one field of the bucket hash, sets the TTL only when
// the key has none (i.e. the bucket was just created) and returns both counters.
const incrBucketScript = `
redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
if redis.call('TTL', KEYS[1]) < 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return redis.call('HMGET', KEYS[1], 'hits', 'misses')
`

const (
	fieldHits   = "hits"
	fieldMisses = "misses"
)

func (p *RedisProvider) bucketKey(family, hour string) string {
	return p.prefix + "cache:" + family + ":" + hour
}

// IncrBucket atomically increments the hit or miss counter of an hour bucket,
// creating the bucket with ttl when absent.
func (p *RedisProvider) IncrBucket(ctx context.Context, family, hour string, hit bool, ttl time.Duration) (types.HourBucket, error) {
	field := fieldMisses
	if hit {
		field = fieldHits
	}
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}

	res, err := p.bucketScript.Run(ctx, p.client, []string{p.bucketKey(family, hour)}, field, secs).Slice()
	if err != nil {
		return types.HourBucket{}, fmt.Errorf("incrementing bucket %s/%s: %w", family, hour, err)
	}
	if len(res) != 2 {
		return types.HourBucket{}, fmt.Errorf("incrementing bucket %s/%s: unexpected reply length %d", family, hour, len(res))
	}

	b := types.HourBucket{Family: family, Hour: hour}
	if b.Hits, err = parseCount(res[0]); err != nil {
		return types.HourBucket{}, fmt.Errorf("parsing hits: %w", err)
	}
	if b.Misses, err = parseCount(res[1]); err != nil {
		return types.HourBucket{}, fmt.Errorf("parsing misses: %w", err)
	}
	return b, nil
}

// GetBucket reads an hour bucket. A missing or expired bucket reads as zero.
func (p *RedisProvider) GetBucket(ctx context.Context, family, hour string) (types.HourBucket, error) {
	vals, err := p.client.HMGet(ctx, p.bucketKey(family, hour), fieldHits, fieldMisses).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return types.HourBucket{}, fmt.Errorf("reading bucket %s/%s: %w", family, hour, err)
	}

	b := types.HourBucket{Family: family, Hour: hour}
	if len(vals) == 2 {
		if b.Hits, err = parseCount(vals[0]); err != nil {
			return types.HourBucket{}, fmt.Errorf("parsing hits: %w", err)
		}
		if b.Misses, err = parseCount(vals[1]); err != nil {
			return types.HourBucket{}, fmt.Errorf("parsing misses: %w", err)
		}
	}
	return b, nil
}

func parseCount(v interface{}) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
