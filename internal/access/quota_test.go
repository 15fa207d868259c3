package access

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuota(t *testing.T, loc *time.Location, now time.Time) (*Quota, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(now)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := NewQuota(client, loc)
	q.now = func() time.Time { return now }
	return q, mr
}

func TestQuotaConsumeUpToLimit(t *testing.T) {
	q, _ := newTestQuota(t, time.UTC, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		usage, err := q.Consume(ctx, 7, QuotaDownload, intPtr(3))
		require.NoError(t, err)
		assert.True(t, usage.Allowed)
		assert.Equal(t, i, usage.Used)
	}
	usage, err := q.Consume(ctx, 7, QuotaDownload, intPtr(3))
	require.NoError(t, err)
	assert.False(t, usage.Allowed)
	assert.Equal(t, 3, usage.Used)

	used, err := q.Used(ctx, 7, QuotaDownload)
	require.NoError(t, err)
	assert.Equal(t, 3, used, "refused attempts are rolled back")
}

func TestQuotaZeroLimitRefusesEverything(t *testing.T) {
	q, _ := newTestQuota(t, time.UTC, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	usage, err := q.Consume(context.Background(), 7, QuotaUpload, intPtr(0))
	require.NoError(t, err)
	assert.False(t, usage.Allowed)
	assert.Zero(t, usage.Used)
}

func TestQuotaNilLimitIsNotCounted(t *testing.T) {
	q, mr := newTestQuota(t, time.UTC, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	usage, err := q.Consume(context.Background(), 7, QuotaUpload, nil)
	require.NoError(t, err)
	assert.True(t, usage.Allowed)
	assert.Empty(t, mr.Keys())
}

func TestQuotaKindsAndUsersAreSeparate(t *testing.T) {
	q, _ := newTestQuota(t, time.UTC, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := q.Consume(ctx, 7, QuotaDownload, intPtr(1))
	require.NoError(t, err)

	usage, err := q.Consume(ctx, 7, QuotaUpload, intPtr(1))
	require.NoError(t, err)
	assert.True(t, usage.Allowed)
	usage, err = q.Consume(ctx, 8, QuotaDownload, intPtr(1))
	require.NoError(t, err)
	assert.True(t, usage.Allowed)
}

func TestQuotaResetsAtLocalMidnight(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	now := time.Date(2024, 3, 1, 23, 30, 0, 0, jakarta)
	q, mr := newTestQuota(t, jakarta, now)
	ctx := context.Background()

	usage, err := q.Consume(ctx, 7, QuotaDownload, intPtr(1))
	require.NoError(t, err)
	require.True(t, usage.Allowed)

	key := "access:quota:download:7:2024-03-01"
	require.True(t, mr.Exists(key))
	assert.Equal(t, 30*time.Minute, mr.TTL(key))

	mr.FastForward(31 * time.Minute)
	q.now = func() time.Time { return now.Add(31 * time.Minute) }

	usage, err = q.Consume(ctx, 7, QuotaDownload, intPtr(1))
	require.NoError(t, err)
	assert.True(t, usage.Allowed)
	assert.Equal(t, 1, usage.Used)
	assert.False(t, mr.Exists(key))
}

func TestQuotaUsesConfiguredLocationForTheDay(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	// 20:00 UTC on the 1st is 03:00 on the 2nd in Jakarta.
	q, mr := newTestQuota(t, jakarta, time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC))

	_, err := q.Consume(context.Background(), 7, QuotaUpload, intPtr(5))
	require.NoError(t, err)
	assert.True(t, mr.Exists("access:quota:upload:7:2024-03-02"))
}

func TestNewQuotaDefaultsToUTC(t *testing.T) {
	q := NewQuota(nil, nil)
	assert.Equal(t, time.UTC, q.location)
}
