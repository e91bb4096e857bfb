// Package bus implements the kernel's single in-process message router:
// targeted delivery to a named actor's inbox, topic fan-out, and global
// fan-out.
package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/valerka1292/conclave/pkg/models"
)

// Inbox is the minimal surface the bus needs to deliver a Message to an
// actor. internal/actor.Actor satisfies this.
type Inbox interface {
	Deliver(msg models.Message)
}

// Handler receives every message published to a topic or globally.
// A Handler must not block the publisher for long; handlers are invoked
// synchronously and their failures are isolated from the publisher.
type Handler func(msg models.Message)

// Bus is the event bus. The zero value is not usable; use New.
type Bus struct {
	mu       sync.RWMutex
	targets  map[string]Inbox
	topics   map[models.MessageType][]Handler
	global   []Handler
	logger   *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		targets: make(map[string]Inbox),
		topics:  make(map[models.MessageType][]Handler),
		logger:  logger.With("component", "bus"),
	}
}

// Register associates a name with an inbox so that later publishes whose
// Target equals name are delivered there. Registering an already-registered
// name fails.
func (b *Bus) Register(name string, inbox Inbox) error {
	if name == "" {
		return fmt.Errorf("bus: register: name must not be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.targets[name]; exists {
		return fmt.Errorf("bus: register: %q is already registered", name)
	}
	b.targets[name] = inbox
	return nil
}

// Unregister removes a name from the target table. Publishing to an
// unregistered name is treated as a drop, not an error.
func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.targets, name)
}

// Subscribe registers handler to receive every message whose Type equals
// topic.
func (b *Bus) Subscribe(topic models.MessageType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], handler)
}

// SubscribeGlobal registers handler to receive every published message,
// regardless of type or target.
func (b *Bus) SubscribeGlobal(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, handler)
}

// Publish fans a message out in order: targeted delivery (if Target is set
// and registered), then topic subscribers for msg.Type, then global
// subscribers. A missing target is logged and dropped — it is never an
// error returned to the publisher. A panicking or failing handler is
// isolated: it cannot prevent delivery to subsequent subscribers or cause
// Publish itself to fail.
func (b *Bus) Publish(msg models.Message) {
	b.mu.RLock()
	var target Inbox
	if msg.Target != "" {
		target = b.targets[msg.Target]
	}
	topicHandlers := append([]Handler(nil), b.topics[msg.Type]...)
	globalHandlers := append([]Handler(nil), b.global...)
	b.mu.RUnlock()

	if msg.Target != "" {
		if target != nil {
			b.safeDeliver(target, msg)
		} else {
			b.logger.Warn("dropping message: target not registered",
				"target", msg.Target, "type", string(msg.Type))
		}
	}

	for _, h := range topicHandlers {
		b.safeInvoke(h, msg)
	}
	for _, h := range globalHandlers {
		b.safeInvoke(h, msg)
	}
}

func (b *Bus) safeDeliver(inbox Inbox, msg models.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("inbox delivery panicked", "target", msg.Target, "panic", r)
		}
	}()
	inbox.Deliver(msg)
}

func (b *Bus) safeInvoke(h Handler, msg models.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus subscriber handler panicked", "type", string(msg.Type), "panic", r)
		}
	}()
	h(msg)
}
