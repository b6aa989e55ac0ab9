package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBufferFull is returned by the memory bus when a topic queue is saturated.
var ErrBufferFull = errors.New("memory bus topic buffer full")

// Memory is an in-process bus used for local runs and tests. Each topic is a
// single queue shared by its subscribers.
type Memory struct {
	mu        sync.Mutex
	buffer    int
	queues    map[string]chan Message
	published map[string][]Message
	failure   error
}

func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Memory{
		buffer:    buffer,
		queues:    make(map[string]chan Message),
		published: make(map[string][]Message),
	}
}

// SetFailure makes every Publish return err until cleared with nil.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

func (m *Memory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Topic == "" {
		return errors.New("topic is required")
	}
	m.mu.Lock()
	if m.failure != nil {
		err := m.failure
		m.mu.Unlock()
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	queue := m.queueLocked(msg.Topic)
	select {
	case queue <- msg:
	default:
		m.mu.Unlock()
		return ErrBufferFull
	}
	m.published[msg.Topic] = append(m.published[msg.Topic], msg)
	m.mu.Unlock()
	return nil
}

// Published returns a copy of every message accepted on topic.
func (m *Memory) Published(topic string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.published[topic]))
	copy(out, m.published[topic])
	return out
}

// Subscriber returns a consumer for topic.
func (m *Memory) Subscriber(topic string) Subscriber {
	return &memorySubscriber{bus: m, topic: topic}
}

func (m *Memory) queue(topic string) chan Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueLocked(topic)
}

func (m *Memory) queueLocked(topic string) chan Message {
	queue, ok := m.queues[topic]
	if !ok {
		queue = make(chan Message, m.buffer)
		m.queues[topic] = queue
	}
	return queue
}

type memorySubscriber struct {
	bus   *Memory
	topic string
}

func (s *memorySubscriber) Receive(ctx context.Context, handler Handler) error {
	queue := s.bus.queue(s.topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-queue:
			d := &memoryDelivery{msg: msg, queue: queue}
			handler(ctx, d)
		}
	}
}

type memoryDelivery struct {
	once  sync.Once
	msg   Message
	queue chan Message
}

func (d *memoryDelivery) Message() Message { return d.msg }

func (d *memoryDelivery) Ack() {
	d.once.Do(func() {})
}

func (d *memoryDelivery) Nack() {
	d.once.Do(func() {
		go func() { d.queue <- d.msg }()
	})
}
