package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"roomsync/internal/domain"
	"roomsync/pkg/logger"
)

// relayEnvelope - событие в канале pub/sub с id инстанса-отправителя
type relayEnvelope struct {
	Origin string       `json:"origin"`
	Event  domain.Event `json:"event"`
}

// RedisRelay связывает несколько инстансов: публикует локальные события в канал
// и доставляет чужие события в локальный транспорт (обычно Hub).
type RedisRelay struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	local      SyncTransport
	log        logger.Logger
}

func NewRedisRelay(rdb *redis.Client, channel, instanceID string, local SyncTransport, log logger.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:        rdb,
		channel:    channel,
		instanceID: instanceID,
		local:      local,
		log:        log,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run читает канал до отмены ctx. ready закрывается, когда подписка установлена.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	r.log.Info("Redis relay subscribed", "channel", r.channel, "instance", r.instanceID)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn("Skipping malformed relay message", "error", err)
		return
	}
	if env.Origin == r.instanceID {
		return
	}
	if err := r.local.Publish(ctx, env.Event); err != nil {
		r.log.Error("Failed to deliver relayed event", "type", env.Event.Type, "room", env.Event.Room, "error", err)
	}
}
