package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/pkg/logger"
	"github.com/lumnicode/engine/pkg/progress"
)

const channelPrefix = "lumnicode:progress:"

// Channel is the pub/sub channel carrying updates of one session.
func Channel(sessionID string) string { return channelPrefix + sessionID }

type Publisher interface {
	Publish(ctx context.Context, sessionID string, u progress.Update) error
}

type Broker interface {
	Publisher
	Subscribe(ctx context.Context, sessionID string) (*Subscription, error)
}

// Subscription delivers updates until Close is called or its context ends.
type Subscription struct {
	C <-chan progress.Update

	ps   *redis.PubSub
	once sync.Once
}

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}

// RedisBroker fans progress updates out between the worker and API processes.
type RedisBroker struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb, log: logger.Named("broker")}
}

func (b *RedisBroker) Publish(ctx context.Context, sessionID string, u progress.Update) error {
	if u.SessionID == "" {
		u.SessionID = sessionID
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, Channel(sessionID))
	// wait for the subscription to be confirmed so no update published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan progress.Update, 32)
	sub := &Subscription{C: out, ps: ps}
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var u progress.Update
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				b.log.Warn("drop undecodable update", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
				_ = sub.Close()
				return
			}
		}
	}()
	return sub, nil
}
