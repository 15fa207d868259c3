package access

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-dms/odyssey-dms/internal/shared"
)

// QuotaKind names a daily transfer counter.
type QuotaKind string

// Quota kinds.
const (
	QuotaDownload QuotaKind = "download"
	QuotaUpload   QuotaKind = "upload"
)

// Permission returns the permission a transfer of this kind requires.
func (k QuotaKind) Permission() string {
	switch k {
	case QuotaDownload:
		return shared.PermDocumentsDownload
	case QuotaUpload:
		return shared.PermDocumentsUpload
	}
	return ""
}

// QuotaUsage reports the state of a counter after a consumption attempt.
type QuotaUsage struct {
	Used    int
	Limit   *int
	Allowed bool
}

// Quota counts daily transfers per user in Redis. Counters reset at midnight in the
// configured location.
type Quota struct {
	client   *redis.Client
	location *time.Location
	now      func() time.Time
}

// NewQuota builds a quota counter. A nil location means UTC.
func NewQuota(client *redis.Client, location *time.Location) *Quota {
	if location == nil {
		location = time.UTC
	}
	return &Quota{client: client, location: location, now: time.Now}
}

// Consume records one transfer unless it would exceed limit. A nil limit is unlimited and
// is not counted.
func (q *Quota) Consume(ctx context.Context, userID int64, kind QuotaKind, limit *int) (QuotaUsage, error) {
	if limit == nil {
		return QuotaUsage{Allowed: true}, nil
	}
	now := q.now().In(q.location)
	key := q.key(kind, userID, now)

	var incr *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, nextMidnight(now))
		return nil
	})
	if err != nil {
		return QuotaUsage{Limit: limit}, fmt.Errorf("access: quota incr: %w", err)
	}
	used := int(incr.Val())
	if used > *limit {
		if err := q.client.Decr(ctx, key).Err(); err != nil {
			return QuotaUsage{Used: used, Limit: limit}, fmt.Errorf("access: quota rollback: %w", err)
		}
		return QuotaUsage{Used: used - 1, Limit: limit}, nil
	}
	return QuotaUsage{Used: used, Limit: limit, Allowed: true}, nil
}

// Used returns today's count for the user.
func (q *Quota) Used(ctx context.Context, userID int64, kind QuotaKind) (int, error) {
	used, err := q.client.Get(ctx, q.key(kind, userID, q.now().In(q.location))).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("access: quota get: %w", err)
	}
	return used, nil
}

func (q *Quota) key(kind QuotaKind, userID int64, day time.Time) string {
	return "access:quota:" + string(kind) + ":" + strconv.FormatInt(userID, 10) + ":" + day.Format("2006-01-02")
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
