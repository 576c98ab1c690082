package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

func (p *RedisProvider) snapshotKey(name, id string) string {
	return p.prefix + "metric:" + name + ":" + id
}

// PutSnapshots writes every snapshot under its own TTL-bound key in one
// pipeline. Redis pipelines are not atomic: on error some keys may already
// be written. A snapshot that does not encode is logged and left out.
func (p *RedisProvider) PutSnapshots(ctx context.Context, snapshots []types.MetricSnapshot, ttl time.Duration) error {
	pipe := p.client.Pipeline()
	queued := 0
	for _, s := range snapshots {
		data, err := json.Marshal(s)
		if err != nil {
			p.logger.Warn("skipping unencodable snapshot", "metric", s.Metric.Name, "snapshotId", s.ID, "error", err)
			continue
		}
		pipe.Set(ctx, p.snapshotKey(s.Metric.Name, s.ID), data, ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing %d snapshots: %w", queued, err)
	}
	return nil
}
