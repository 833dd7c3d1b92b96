//go:build !tinygo

package telemetry

import (
	"context"
	"errors"
	"time"

	"envmon-go/types"

	"github.com/redis/go-redis/v9"
)

func init() { RegisterSink("redis", newRedisSink) }

const redisPingEvery = 5 * time.Second

// redisClient is the subset of *redis.Client the sink uses.
type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// redisSink publishes every message on a channel named after its topic and
// keeps the latest payload under a key of the same name, so late readers can
// GET what a broker would have retained.
type redisSink struct {
	c      redisClient
	cfg    types.TelemetryConfig
	prefix string
}

func newRedisSink(cfg types.TelemetryConfig) (Sink, error) {
	if cfg.Redis == nil || cfg.Redis.Addr == "" {
		return nil, errors.New("redis sink requires an address")
	}
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &redisSink{c: c, cfg: cfg, prefix: cfg.Redis.Prefix}, nil
}

func (r *redisSink) Name() string { return "redis" }

func (r *redisSink) key(topic string) string {
	if r.prefix == "" {
		return topic
	}
	return r.prefix + "/" + topic
}

// Run pings the server and reports reachability changes.
func (r *redisSink) Run(ctx context.Context, report func(SinkState)) {
	backoff := backoffSeq(500*time.Millisecond, 10*time.Second)
	reported, up := false, false
	for {
		err := r.c.Ping(ctx).Err()
		if ctx.Err() != nil {
			return
		}
		wait := redisPingEvery
		if err != nil {
			wait = backoff()
			if !reported || up {
				report(SinkState{Status: "ping_failed", Err: err.Error()})
			}
			up = false
		} else {
			if !reported || !up {
				report(SinkState{Up: true, Status: "connected"})
			}
			up = true
			backoff = backoffSeq(500*time.Millisecond, 10*time.Second)
		}
		reported = true
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (r *redisSink) Announce(ctx context.Context, ds []Discovery) error {
	msgs, err := discoveryMessages(ds)
	if err != nil {
		return err
	}
	return r.send(ctx, msgs)
}

func (r *redisSink) Publish(ctx context.Context, rd Reading) error {
	return r.send(ctx, StateMessages(r.cfg, rd))
}

func (r *redisSink) send(ctx context.Context, msgs []Message) error {
	for _, m := range msgs {
		k := r.key(m.Topic)
		if err := r.c.Set(ctx, k, m.Payload, 0).Err(); err != nil {
			return err
		}
		if err := r.c.Publish(ctx, k, m.Payload).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *redisSink) Close() error { return r.c.Close() }
