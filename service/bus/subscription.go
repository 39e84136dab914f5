package bus

import (
	"context"
	"sync"

	"github.com/viant/docuflow/internal/idgen"
	"github.com/viant/docuflow/model"
)

type queued struct {
	seq     int64
	message *model.Message
}

// Subscription is a handler bound to one topic. Each subscription keeps a
// FIFO per correlation id; at most one delivery per correlation is in flight
// at any time, which is what preserves per-correlation publish order across
// the concurrent dispatch workers.
type Subscription struct {
	id      string
	topic   string
	handler Handler
	bus     *Service

	mu      sync.Mutex
	cond    *sync.Cond
	seq     int64
	pending map[string][]*queued
	active  map[string]bool
	closed  bool
}

func newSubscription(bus *Service, topic string, handler Handler) *Subscription {
	ret := &Subscription{
		id:      idgen.New(),
		topic:   topic,
		handler: handler,
		bus:     bus,
		pending: make(map[string][]*queued),
		active:  make(map[string]bool),
	}
	ret.cond = sync.NewCond(&ret.mu)
	return ret
}

// ID returns the subscription handle identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Close revokes the subscription. Deliveries already dispatched to the
// handler run to completion; queued messages are discarded.
func (s *Subscription) Close() {
	s.mu.Lock()
	s.closed = true
	s.pending = make(map[string][]*queued)
	s.cond.Broadcast()
	s.mu.Unlock()
	s.bus.remove(s)
}

func (s *Subscription) wake() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Subscription) enqueue(message *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	key := message.CorrelationID
	s.pending[key] = append(s.pending[key], &queued{seq: s.seq, message: message})
	s.cond.Signal()
}

// next pops the head of the best ready correlation: highest head priority
// first, oldest enqueue order on ties. Correlations with an in-flight
// delivery are skipped. Returns ok=false when nothing is ready.
func (s *Subscription) next() (string, *model.Message, bool) {
	var bestKey string
	var best *queued
	for key, queue := range s.pending {
		if s.active[key] || len(queue) == 0 {
			continue
		}
		head := queue[0]
		if best == nil ||
			head.message.Priority > best.message.Priority ||
			(head.message.Priority == best.message.Priority && head.seq < best.seq) {
			bestKey, best = key, head
		}
	}
	if best == nil {
		return "", nil, false
	}
	s.pending[bestKey] = s.pending[bestKey][1:]
	if len(s.pending[bestKey]) == 0 {
		delete(s.pending, bestKey)
	}
	s.active[bestKey] = true
	return bestKey, best.message, true
}

// run is one dispatch worker; Concurrency of them share the subscription.
func (s *Subscription) run(ctx context.Context) {
	defer s.bus.wg.Done()
	for {
		s.mu.Lock()
		var key string
		var message *model.Message
		var ok bool
		for {
			if s.closed || ctx.Err() != nil {
				s.mu.Unlock()
				return
			}
			if key, message, ok = s.next(); ok {
				break
			}
			s.cond.Wait()
		}
		s.mu.Unlock()

		s.bus.deliver(ctx, s, message)

		s.mu.Lock()
		delete(s.active, key)
		s.cond.Signal()
		s.mu.Unlock()
	}
}
