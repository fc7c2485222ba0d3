package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"retro-api/domain"
)

// Storage provides access to the board document store. Documents live in
// Redis hashes, membership sets in Redis sets; multi-key commits go
// through MULTI/EXEC so concurrent readers never observe a partial write.
type Storage struct {
	rc           *redis.Client
	notifier     *Notifier
	maxTxRetries int
}

const defaultMaxTxRetries = 16

// New creates a Storage instance on the given Redis client. The notifier
// is optional; when nil no change events are published.
func New(rc *redis.Client, notifier *Notifier) *Storage {
	if rc == nil {
		panic("storage.New: redis client is nil")
	}
	return &Storage{rc: rc, notifier: notifier, maxTxRetries: defaultMaxTxRetries}
}

func boardKey(boardID string) string        { return "board:" + boardID }
func participantsKey(boardID string) string { return "board:" + boardID + ":participants" }
func notesIndexKey(boardID string) string   { return "board:" + boardID + ":notes" }
func noteKey(boardID, noteID string) string {
	return "board:" + boardID + ":note:" + noteID
}
func votersKey(boardID, noteID string) string {
	return "board:" + boardID + ":note:" + noteID + ":voters"
}
func actionsIndexKey(boardID string) string { return "board:" + boardID + ":actions" }
func actionKey(boardID, actionID string) string {
	return "board:" + boardID + ":action:" + actionID
}

// watch runs txf under WATCH on the given keys, retrying on transaction
// conflicts up to the configured budget.
func (s *Storage) watch(ctx context.Context, txf func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < s.maxTxRetries; i++ {
		err := s.rc.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return domain.ErrConcurrencyConflict
}

func (s *Storage) publish(ev ChangeEvent) {
	if s.notifier != nil {
		s.notifier.Publish(ev)
	}
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decodeBool(s string) bool { return s == "1" }

// decodeInt and decodeInt64 treat an absent field as zero but refuse to
// guess on a corrupted one.
func decodeInt(field, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("storage: decode field %s from %q: %w", field, s, err)
	}
	return n, nil
}

func decodeInt64(field, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("storage: decode field %s from %q: %w", field, s, err)
	}
	return n, nil
}

var lastTimestamp int64

// nextTimestamp returns a strictly monotonic creation timestamp. The
// store, not the caller, assigns createdAt so ordering stays stable under
// clock jitter within one process.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
