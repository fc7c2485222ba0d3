package subscription

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// SubscribeUpdates bridges the storage layer's change events to the
// broker. It holds one long-lived pub/sub listener on the updates channel
// and reconnects with a short backoff when the channel drops; listeners
// keep showing their last-known snapshot in the meantime.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, broker *Broker) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev struct {
					BoardID string `json:"boardId"`
				}
				if err := sonic.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.WithError(err).Error("unable to parse change event")
					continue
				}
				if ev.BoardID == "" {
					logger.Warn("change event without board id - ignoring it")
					continue
				}
				broker.Notify(ev.BoardID)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
