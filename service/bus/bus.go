package bus

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/viant/docuflow/internal/clock"
	"github.com/viant/docuflow/internal/idgen"
	"github.com/viant/docuflow/model"
)

// Config controls delivery, retry and history behaviour.
type Config struct {
	// DeliveryTimeout bounds a single handler invocation; an overrun counts
	// as a failed delivery attempt.
	DeliveryTimeout time.Duration

	// MaxRetries is the number of redeliveries after the first failure before
	// a message moves to the dead-letter log.
	MaxRetries int

	// RetryBaseDelay, RetryFactor and RetryMaxDelay shape the exponential
	// backoff between redeliveries; RetryJitter is the +/- fraction applied
	// to each delay.
	RetryBaseDelay time.Duration
	RetryFactor    float64
	RetryMaxDelay  time.Duration
	RetryJitter    float64

	// HistoryLimit bounds the retained message log used for audit/replay.
	HistoryLimit int

	// Concurrency is the number of dispatch workers per subscription; ready
	// correlations are served in parallel, messages within one correlation
	// strictly in publish order.
	Concurrency int
}

// DefaultConfig returns the standard bus configuration.
func DefaultConfig() Config {
	return Config{
		DeliveryTimeout: 5 * time.Second,
		MaxRetries:      3,
		RetryBaseDelay:  20 * time.Millisecond,
		RetryFactor:     2,
		RetryMaxDelay:   2 * time.Second,
		RetryJitter:     0.2,
		HistoryLimit:    1000,
		Concurrency:     4,
	}
}

// Handler consumes one delivered message. A non-nil error (including a
// context deadline) counts as a failed attempt and triggers redelivery.
type Handler func(ctx context.Context, message *model.Message) error

// Receipt acknowledges a publish.
type Receipt struct {
	MessageID   string
	Subscribers int
	PublishedAt time.Time
}

// Stats holds cumulative bus counters.
type Stats struct {
	Published    int
	Delivered    int
	Retried      int
	DeadLettered int
	Expired      int
}

// Service is an in-process topic bus with at-least-once delivery, ordered
// per correlation id. It is explicitly constructed and injected; there is no
// ambient global instance.
type Service struct {
	config Config

	mu      sync.RWMutex
	subs    map[string][]*Subscription
	history []*model.Message
	dead    []*model.Message
	stats   Stats

	onDeadLetter func(*model.Message)

	ctx      context.Context
	cancelFn context.CancelFunc
	wg       sync.WaitGroup
}

// Option customises the bus.
type Option func(*Service)

// WithDeadLetterHook registers a callback invoked for every dead-lettered
// message, e.g. to persist it to the audit archive.
func WithDeadLetterHook(fn func(*model.Message)) Option {
	return func(s *Service) {
		s.onDeadLetter = fn
	}
}

// New creates a bus with the supplied configuration.
func New(config Config, options ...Option) *Service {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.RetryFactor <= 1 {
		config.RetryFactor = DefaultConfig().RetryFactor
	}
	ctx, cancel := context.WithCancel(context.Background())
	ret := &Service{
		config:   config,
		subs:     make(map[string][]*Subscription),
		ctx:      ctx,
		cancelFn: cancel,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Start ties the bus lifetime to ctx; cancelling ctx shuts the bus down.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.ctx.Done():
		}
	}()
	return nil
}

// Shutdown stops dispatching and waits for in-flight deliveries to finish.
func (s *Service) Shutdown() {
	s.cancelFn()
	s.mu.RLock()
	for _, subs := range s.subs {
		for _, sub := range subs {
			sub.wake()
		}
	}
	s.mu.RUnlock()
	s.wg.Wait()
}

// Publish delivers the message to every current subscriber of its topic.
// Messages sharing a correlation id reach each subscriber in publish order;
// the priority field only reorders ready messages across correlation ids.
func (s *Service) Publish(ctx context.Context, message *model.Message) (*Receipt, error) {
	if message == nil {
		return nil, fmt.Errorf("bus: message cannot be nil")
	}
	if message.Topic == "" {
		return nil, fmt.Errorf("bus: message topic cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if message.ID == "" {
		message.ID = idgen.New()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = clock.Now()
	}

	s.mu.Lock()
	s.stats.Published++
	s.history = append(s.history, message)
	if limit := s.config.HistoryLimit; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	targets := append([]*Subscription(nil), s.subs[message.Topic]...)
	s.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(message)
	}
	return &Receipt{MessageID: message.ID, Subscribers: len(targets), PublishedAt: message.Timestamp}, nil
}

// Subscribe registers a handler for a topic and starts its dispatch workers.
func (s *Service) Subscribe(topic string, handler Handler) *Subscription {
	sub := newSubscription(s, topic, handler)
	s.mu.Lock()
	s.subs[topic] = append(s.subs[topic], sub)
	s.mu.Unlock()

	for i := 0; i < s.config.Concurrency; i++ {
		s.wg.Add(1)
		go sub.run(s.ctx)
	}
	return sub
}

func (s *Service) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.subs[sub.topic]
	for i, candidate := range current {
		if candidate == sub {
			s.subs[sub.topic] = append(current[:i], current[i+1:]...)
			break
		}
	}
	if len(s.subs[sub.topic]) == 0 {
		delete(s.subs, sub.topic)
	}
}

// deliver runs the retry loop for one message on one subscription.
func (s *Service) deliver(ctx context.Context, sub *Subscription, message *model.Message) {
	if message.Expired(clock.Now()) {
		s.count(func(st *Stats) { st.Expired++ })
		return
	}
	attempt := 0
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
		err := sub.handler(attemptCtx, message)
		cancel()
		if err == nil {
			s.count(func(st *Stats) { st.Delivered++ })
			return
		}
		attempt++
		if attempt > s.config.MaxRetries {
			s.deadLetter(ctx, message, err)
			return
		}
		s.count(func(st *Stats) { st.Retried++ })
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff(attempt)):
		}
	}
}

// backoff computes base*factor^(attempt-1) capped at RetryMaxDelay with
// +/-RetryJitter randomisation.
func (s *Service) backoff(attempt int) time.Duration {
	delay := float64(s.config.RetryBaseDelay) * math.Pow(s.config.RetryFactor, float64(attempt-1))
	if max := float64(s.config.RetryMaxDelay); max > 0 && delay > max {
		delay = max
	}
	if jitter := s.config.RetryJitter; jitter > 0 {
		delay *= 1 + jitter*(2*rand.Float64()-1)
	}
	return time.Duration(delay)
}

func (s *Service) deadLetter(ctx context.Context, message *model.Message, cause error) {
	s.mu.Lock()
	s.stats.DeadLettered++
	s.dead = append(s.dead, message)
	hook := s.onDeadLetter
	s.mu.Unlock()

	log.Printf("bus: message %s (%s) exhausted delivery retries: %v", message.ID, message.Type, cause)
	if hook != nil {
		hook(message)
	}
	// Surface exhaustion as an event; a failing delivery.failed consumer must
	// not spawn another one.
	if message.Type == model.MessageTypeDeliveryFailed {
		return
	}
	notice := &model.Message{
		ID:            idgen.New(),
		Type:          model.MessageTypeDeliveryFailed,
		CorrelationID: message.CorrelationID,
		Sender:        "bus",
		Topic:         model.TopicDeliveryFailed,
		Priority:      model.PriorityHigh,
		Payload:       message,
		Timestamp:     clock.Now(),
	}
	if _, err := s.Publish(ctx, notice); err != nil {
		log.Printf("bus: failed to publish delivery.failed for %s: %v", message.ID, err)
	}
}

func (s *Service) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Stats returns a snapshot of the cumulative counters.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// History returns retained messages for one correlation id, oldest first.
func (s *Service) History(correlationID string) []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Message
	for _, message := range s.history {
		if correlationID == "" || message.CorrelationID == correlationID {
			out = append(out, message)
		}
	}
	return out
}

// DeadLetters returns messages that exhausted delivery retries.
func (s *Service) DeadLetters() []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*model.Message(nil), s.dead...)
}
