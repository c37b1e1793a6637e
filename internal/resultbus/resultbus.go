// Package resultbus fans the aggregator's merged results out to external
// subscribers (routing, haptics, dashboard, logging).
//
// Subscribers choose a drop policy:
//   - DropNew: the subscriber supplies a bounded channel; a full buffer
//     drops the incoming result (backpressure stays at the subscriber).
//   - DropOld: the bus keeps only the latest result; Receive always sees
//     the freshest state.
//
// Publishing never blocks on any subscriber. A slow dashboard cannot stall
// the safety-haptic consumer.
package resultbus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/aggregate"
)

var (
	ErrBusClosed          = errors.New("resultbus: bus is closed")
	ErrSubscriberExists   = errors.New("resultbus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("resultbus: subscriber not found")
	ErrNilChannel         = errors.New("resultbus: nil channel provided")
)

// SubscriberStats tracks per-subscriber delivery metrics.
type SubscriberStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

type policy int

const (
	dropNew policy = iota
	dropOld
)

type subscriber struct {
	id     string
	policy policy
	stats  SubscriberStats

	ch     chan<- aggregate.FrameResult // dropNew
	latest *LatestReceiver              // dropOld
}

// Bus distributes merged frame results to named subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	published   uint64
	closed      bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers a DropNew subscriber delivering into ch. The caller
// sizes ch; a full buffer drops results and counts them.
func (b *Bus) Subscribe(id string, ch chan<- aggregate.FrameResult) error {
	if ch == nil {
		return ErrNilChannel
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	b.subscribers[id] = &subscriber{id: id, policy: dropNew, ch: ch}
	return nil
}

// SubscribeLatest registers a DropOld subscriber and returns its receiver.
func (b *Bus) SubscribeLatest(id string) (*LatestReceiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}
	sub := &subscriber{id: id, policy: dropOld, latest: newLatestReceiver()}
	b.subscribers[id] = sub
	return sub.latest, nil
}

// Publish delivers res to every subscriber under its policy. Non-blocking.
func (b *Bus) Publish(res aggregate.FrameResult) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	atomic.AddUint64(&b.published, 1)

	for _, sub := range b.subscribers {
		switch sub.policy {
		case dropNew:
			select {
			case sub.ch <- res:
				atomic.AddUint64(&sub.stats.Sent, 1)
			default:
				atomic.AddUint64(&sub.stats.Dropped, 1)
			}
		case dropOld:
			sub.latest.set(res)
			atomic.AddUint64(&sub.stats.Sent, 1)
		}
	}
}

// Unsubscribe removes a subscriber, waking a blocked DropOld receiver.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	if sub.latest != nil {
		sub.latest.Close()
	}
	delete(b.subscribers, id)
	return nil
}

// Stats returns delivery metrics for one subscriber.
func (b *Bus) Stats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sub, exists := b.subscribers[id]
	if !exists {
		return SubscriberStats{}, ErrSubscriberNotFound
	}
	return SubscriberStats{
		Sent:    atomic.LoadUint64(&sub.stats.Sent),
		Dropped: atomic.LoadUint64(&sub.stats.Dropped),
	}, nil
}

// Close shuts the bus down and wakes every DropOld receiver.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		if sub.latest != nil {
			sub.latest.Close()
		}
	}
	b.subscribers = nil
}

// LatestReceiver hands out the most recent result for DropOld subscribers.
type LatestReceiver struct {
	mu     sync.Mutex
	cond   *sync.Cond
	result *aggregate.FrameResult
	closed bool
}

func newLatestReceiver() *LatestReceiver {
	r := &LatestReceiver{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *LatestReceiver) set(res aggregate.FrameResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.result = &res
	r.cond.Broadcast()
}

// Receive blocks until a result is available or the receiver closes.
// ok=false means closed.
func (r *LatestReceiver) Receive() (aggregate.FrameResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.result == nil && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		return aggregate.FrameResult{}, false
	}
	res := *r.result
	r.result = nil
	return res, true
}

// TryReceive returns the pending result without blocking.
func (r *LatestReceiver) TryReceive() (aggregate.FrameResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return aggregate.FrameResult{}, false
	}
	res := *r.result
	r.result = nil
	return res, true
}

// Close wakes a blocked Receive. Idempotent.
func (r *LatestReceiver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}
