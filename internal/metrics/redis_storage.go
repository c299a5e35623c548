package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps chart history in one sorted set per metric, scored by
// unix seconds.
type RedisStorage struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStorage connects to url and checks the connection.
func NewRedisStorage(url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStorage{
		client:    client,
		prefix:    "support:metrics:",
		retention: 24 * time.Hour,
	}, nil
}

var _ HistoryStore = (*RedisStorage)(nil)

// member encodes the timestamp too so equal values in different buckets do
// not collapse into one sorted-set member.
func member(dp DataPoint) string {
	return strconv.FormatInt(dp.Timestamp.Unix(), 10) + ":" + strconv.FormatFloat(dp.Value, 'f', -1, 64)
}

func parseMember(raw string) (float64, bool) {
	_, value, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(value, 64)
	return v, err == nil
}

// SaveDataPoint adds dp and drops points older than the retention window.
func (rs *RedisStorage) SaveDataPoint(ctx context.Context, metric string, dp DataPoint) error {
	key := rs.prefix + metric

	pipe := rs.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(dp.Timestamp.Unix()), Member: member(dp)})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(time.Now().Add(-rs.retention).Unix(), 10))
	pipe.Expire(ctx, key, rs.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving %s data point: %w", metric, err)
	}
	return nil
}

// LoadHistory returns points at or after since, oldest first.
func (rs *RedisStorage) LoadHistory(ctx context.Context, metric string, since time.Time) ([]DataPoint, error) {
	results, err := rs.client.ZRangeByScoreWithScores(ctx, rs.prefix+metric, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading %s history: %w", metric, err)
	}

	points := make([]DataPoint, 0, len(results))
	for _, z := range results {
		raw, ok := z.Member.(string)
		if !ok {
			continue
		}
		v, ok := parseMember(raw)
		if !ok {
			continue
		}
		points = append(points, DataPoint{Timestamp: time.Unix(int64(z.Score), 0), Value: v})
	}
	return points, nil
}

// DeleteMetric removes all points of one metric.
func (rs *RedisStorage) DeleteMetric(ctx context.Context, metric string) error {
	if err := rs.client.Del(ctx, rs.prefix+metric).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", metric, err)
	}
	return nil
}

// SetRetention changes how long points are kept.
func (rs *RedisStorage) SetRetention(d time.Duration) {
	rs.retention = d
}

// Close closes the Redis connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
