package feed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConfig configures a Redis Streams source.
type RedisConfig struct {
	Stream   string        // Default: "propslip:payouts"
	Group    string        // Default: "propslip"
	Consumer string        // Default: random
	Field    string        // Message field holding the frame. Default: "data"
	Count    int64         // Default: 100
	Block    time.Duration // Default: 1s
}

func (c *RedisConfig) setDefaults() {
	if c.Stream == "" {
		c.Stream = "propslip:payouts"
	}
	if c.Group == "" {
		c.Group = "propslip"
	}
	if c.Consumer == "" {
		c.Consumer = "slipd-" + uuid.NewString()[:8]
	}
	if c.Field == "" {
		c.Field = "data"
	}
	if c.Count <= 0 {
		c.Count = 100
	}
	if c.Block <= 0 {
		c.Block = time.Second
	}
}

// streamClient is the part of *redis.Client the source uses.
type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// RedisSource consumes frames from a Redis stream through a consumer group.
// Every message is acknowledged once handed off, including ones with no
// frame field.
type RedisSource struct {
	client streamClient
	cfg    RedisConfig
}

// NewRedisSource creates a source on client.
func NewRedisSource(client *redis.Client, cfg RedisConfig) *RedisSource {
	return newRedisSource(client, cfg)
}

func newRedisSource(client streamClient, cfg RedisConfig) *RedisSource {
	cfg.setDefaults()
	return &RedisSource{client: client, cfg: cfg}
}

func (s *RedisSource) Name() string { return "redis" }

// Run creates the consumer group if needed and reads until ctx is done.
// Read errors are logged and retried after a second.
func (s *RedisSource) Run(ctx context.Context, handle func([]byte)) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}

	log.Info().
		Str("stream", s.cfg.Stream).
		Str("group", s.cfg.Group).
		Str("consumer", s.cfg.Consumer).
		Msg("feed: consuming redis stream")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			Streams:  []string{s.cfg.Stream, ">"},
			Count:    s.cfg.Count,
			Block:    s.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("stream", s.cfg.Stream).Msg("feed: stream read error")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, st := range streams {
			for _, msg := range st.Messages {
				s.process(ctx, st.Stream, msg, handle)
			}
		}
	}
}

func (s *RedisSource) process(ctx context.Context, stream string, msg redis.XMessage, handle func([]byte)) {
	switch v := msg.Values[s.cfg.Field].(type) {
	case string:
		handle([]byte(v))
	case []byte:
		handle(v)
	default:
		log.Debug().Str("stream", stream).Str("id", msg.ID).Msg("feed: message without frame field")
	}

	if err := s.client.XAck(ctx, stream, s.cfg.Group, msg.ID).Err(); err != nil {
		log.Warn().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("feed: ack failed")
	}
}
