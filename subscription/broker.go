package subscription

import "sync"

// Broker delivers per-board wake-up signals to in-process listeners. Each
// SSE handler holds one subscription per (board, connection) and must
// release it on every exit path.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers a listener for the board and returns its signal
// channel. The channel has capacity one: coalesced notifications are fine
// because listeners re-fetch the full snapshot on every wake-up.
func (b *Broker) Subscribe(boardID string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	boardSubs, ok := b.subs[boardID]
	if !ok {
		boardSubs = make(map[chan struct{}]struct{})
		b.subs[boardID] = boardSubs
	}
	boardSubs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe releases a listener previously returned by Subscribe.
func (b *Broker) Unsubscribe(boardID string, ch chan struct{}) {
	b.mu.Lock()
	if boardSubs, ok := b.subs[boardID]; ok {
		delete(boardSubs, ch)
		if len(boardSubs) == 0 {
			delete(b.subs, boardID)
		}
	}
	b.mu.Unlock()
}

// Notify wakes every listener of the board without blocking; a listener
// that is still processing keeps its single pending signal.
func (b *Broker) Notify(boardID string) {
	b.mu.Lock()
	for ch := range b.subs[boardID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// Listeners reports the number of active listeners for the board.
func (b *Broker) Listeners(boardID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[boardID])
}
