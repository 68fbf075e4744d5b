package archive

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
)

const defaultRedisPrefix = "calls:"

// Redis stores each ended call as a JSON string keyed by session id and
// indexes it per owner in a sorted set scored by end time.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// OpenRedis accepts a redis:// URL or a bare host:port.
func OpenRedis(rawURL, prefix string, ttl time.Duration) *Redis {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		slog.Warn("redis url not parseable, using it as address", "error", err)
		opt = &redis.Options{Addr: rawURL}
	}
	return NewRedis(redis.NewClient(opt), prefix, ttl)
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) Save(ctx context.Context, s session.CallSession) error {
	rec := NewRecord(s)
	data, err := rec.marshal()
	if err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonArchiveWrite, "encode call %s", s.ID)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.prefix+rec.ID, data, r.ttl)
	pipe.ZAdd(ctx, r.prefix+"owner:"+rec.OwnerID, redis.Z{Score: float64(rec.EndedAt.Unix()), Member: rec.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return errorsx.Wrapf(err, errorsx.ReasonArchiveWrite, "store call %s", s.ID)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.rdb.Close() }
