package providertest_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetmon/internal/provider/providertest"
	"github.com/dwsmith1983/fleetmon/internal/testutil"
	"github.com/dwsmith1983/fleetmon/pkg/types"
)

func TestMockProvider_Conformance(t *testing.T) {
	providertest.RunAll(t, testutil.NewMockProvider())
}

func TestMockProvider_Expiry(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	prov := testutil.NewMockProvider()
	prov.Now = func() time.Time { return now }
	ctx := context.Background()

	_, err := prov.IncrBucket(ctx, "cache", "2026101509", true, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	b, err := prov.GetBucket(ctx, "cache", "2026101509")
	require.NoError(t, err)
	assert.Zero(t, b.Hits)

	b, err = prov.IncrBucket(ctx, "cache", "2026101509", false, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, b.Hits)
	assert.Equal(t, int64(1), b.Misses)
}

func TestMockProvider_SkipsUnencodableSnapshot(t *testing.T) {
	prov := testutil.NewMockProvider()
	now := time.Now().UTC()

	require.NoError(t, prov.PutSnapshots(context.Background(), []types.MetricSnapshot{
		{ID: "a", Metric: types.Metric{Name: "fleet_drivers_active", Value: 3, Timestamp: now}, Timestamp: now},
		{ID: "b", Metric: types.Metric{Name: "fleet_driver_score", Value: math.NaN(), Timestamp: now}, Timestamp: now},
	}, time.Hour))

	stored := prov.Snapshots()
	require.Len(t, stored, 1)
	assert.Equal(t, "a", stored[0].ID)
}
