// internal/infra/pushsource/redis.go
package pushsource

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/push"
)

// Handler presents a raw push body.
type Handler interface {
	HandlePush(ctx context.Context, raw []byte) (push.Notification, error)
}

// RedisSource feeds messages published on a Redis channel to the push
// presenter. Each message body is one push payload.
type RedisSource struct {
	rdb     *redis.Client
	channel string
	handler Handler
	log     *logrus.Entry
	ready   chan struct{}
}

func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: 0})
}

func NewRedisSource(rdb *redis.Client, channel string, handler Handler, log *logrus.Entry) *RedisSource {
	return &RedisSource{
		rdb:     rdb,
		channel: channel,
		handler: handler,
		log:     log.WithField("channel", channel),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed.
func (s *RedisSource) Ready() <-chan struct{} {
	return s.ready
}

// Run subscribes and handles messages until ctx is done.
func (s *RedisSource) Run(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	close(s.ready)
	s.log.Info("Listening for push messages")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := s.handler.HandlePush(ctx, []byte(msg.Payload)); err != nil {
				s.log.WithError(err).Error("Failed to present push message")
			}
		}
	}
}
