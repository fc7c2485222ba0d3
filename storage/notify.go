package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ChangeEvent describes one committed mutation. Subscribers treat it as a
// wake-up signal only and re-fetch the full snapshot; the event never
// carries enough state to merge from.
type ChangeEvent struct {
	BoardID    string `json:"boardId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId,omitempty"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
}

const (
	EntityBoard  = "board"
	EntityNote   = "note"
	EntityAction = "action"
)

// Notifier publishes change events to a Redis pub/sub channel through a
// small worker pool so the mutation path never blocks on fan-out. A
// publish failure only delays listeners, it never fails the mutation.
type Notifier struct {
	rc      *redis.Client
	channel string
	logger  *log.Logger
	timeout time.Duration

	jobs chan ChangeEvent
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewNotifier starts a notifier with the given worker count and buffer.
func NewNotifier(rc *redis.Client, channel string, workers, buffer int, timeout time.Duration, logger *log.Logger) *Notifier {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	n := &Notifier{
		rc:      rc,
		channel: channel,
		logger:  logger,
		timeout: timeout,
		jobs:    make(chan ChangeEvent, buffer),
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

// Channel returns the pub/sub channel the notifier publishes on.
func (n *Notifier) Channel() string { return n.channel }

// Publish hands the event to a worker. When the buffer is saturated the
// event is published inline so listeners are delayed rather than starved.
func (n *Notifier) Publish(ev ChangeEvent) {
	select {
	case n.jobs <- ev:
		return
	default:
	}
	if n.logger != nil {
		n.logger.WithField("board", ev.BoardID).Warn("notifier buffer saturated; publishing inline")
	}
	n.send(ev)
}

// Close stops the workers after draining buffered events.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() { close(n.jobs) })
	n.wg.Wait()
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for ev := range n.jobs {
		n.send(ev)
	}
}

func (n *Notifier) send(ev ChangeEvent) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		if n.logger != nil {
			n.logger.WithError(err).Error("marshal change event")
		}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.rc.Publish(ctx, n.channel, data).Err(); err != nil {
		if n.logger != nil {
			n.logger.WithError(err).WithFields(log.Fields{
				"board":  ev.BoardID,
				"entity": ev.EntityType,
				"type":   ev.Type,
			}).Error("publish change event")
		}
	}
}
