package events

import (
	"context"
	"encoding/json"
	"server/config"
	"server/internal/database"
	"server/internal/logger"
	"sync"

	"github.com/valkey-io/valkey-go"
)

const channel = "vitally.events"

const (
	TypeRequestUpdated = "request.updated"
)

type Event struct {
	Type      string `json:"type"`
	DoctorID  string `json:"doctorId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Status    string `json:"status,omitempty"`
}

type Handler func(event Event)

// EventBus fans application events out over the cache's pub/sub channel, so
// every server instance sees updates regardless of which one handled the
// originating HTTP request.
type EventBus struct {
	client   database.CacheClient
	log      logger.Logger
	cancel   context.CancelFunc
	mu       sync.RWMutex
	handlers []Handler
	started  bool
}

func New(client database.CacheClient, config config.Config) *EventBus {
	return &EventBus{
		client: client,
		log:    logger.New("EventBus"),
	}
}

func (b *EventBus) Publish(ctx context.Context, event Event) error {
	log := b.log.Function("Publish")

	if b.client == nil {
		b.dispatch(event)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return log.Err("failed to marshal event", err, "type", event.Type)
	}

	if err := b.client.Do(ctx, b.client.B().Publish().Channel(channel).Message(string(payload)).Build()).Error(); err != nil {
		return log.Err("failed to publish event", err, "type", event.Type)
	}

	return nil
}

// Subscribe registers a handler and lazily starts the receive loop.
func (b *EventBus) Subscribe(handler Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	shouldStart := !b.started && b.client != nil
	if shouldStart {
		b.started = true
	}
	b.mu.Unlock()

	if shouldStart {
		ctx, cancel := context.WithCancel(context.Background())
		b.cancel = cancel
		go b.receive(ctx)
	}
}

func (b *EventBus) receive(ctx context.Context) {
	log := b.log.Function("receive")

	err := b.client.Receive(ctx, b.client.B().Subscribe().Channel(channel).Build(), func(msg valkey.PubSubMessage) {
		var event Event
		if err := json.Unmarshal([]byte(msg.Message), &event); err != nil {
			log.Er("failed to decode event", err)
			return
		}
		b.dispatch(event)
	})
	if err != nil && ctx.Err() == nil {
		log.Er("event subscription ended", err)
	}
}

func (b *EventBus) dispatch(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (b *EventBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}
