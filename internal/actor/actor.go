// Package actor implements the base Actor abstraction shared by every
// named participant in the kernel: a FIFO inbox, a budget counter, and a
// cooperative run loop. Agents and shadow observers specialize
// Actor via composition rather than inheritance.
package actor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/valerka1292/conclave/pkg/models"
)

// WorkHandler is implemented by the subclass (e.g. an Agent) to process
// any message that is neither a control signal nor a budget update.
// HandleWork is only invoked when the actor's budget is positive; a
// panic inside it is not recovered here — it propagates to Run's caller,
// which the kernel treats as an uncaught crash.
type WorkHandler interface {
	HandleWork(ctx context.Context, msg models.Message) error
}

// BudgetAccount is the work-credit surface a handler draws on: one credit
// per reasoning step. *Actor implements it.
type BudgetAccount interface {
	TryConsume() bool
}

// BudgetBound is implemented by work handlers that meter their own
// reasoning steps against the owning actor's budget. Whoever constructs
// the actor binds it to the handler before starting the run loop.
type BudgetBound interface {
	BindBudget(BudgetAccount)
}

// InterruptHook lets a subclass persist partial work before the loop moves
// on to the next message. It must not block for long.
type InterruptHook func(ctx context.Context, reason string)

// Publisher is the narrow surface Actor needs from the bus: only Publish.
// internal/bus.Bus satisfies this.
type Publisher interface {
	Publish(msg models.Message)
}

const defaultInboxCapacity = 256

// Actor is the base actor: named, with an inbox, a budget, and a running
// flag, driven by a single-consumer loop over its own inbox.
type Actor struct {
	Name       string
	Supervisor string // actor name notified of budget-exhausted / crashes

	bus     Publisher
	handler WorkHandler
	onInterrupt InterruptHook

	inbox   chan models.Message
	budget  int64 // atomic
	running int32 // atomic bool
	logger  *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// Config configures a new Actor.
type Config struct {
	Name        string
	Supervisor  string
	Bus         Publisher
	Handler     WorkHandler
	OnInterrupt InterruptHook
	Budget      int
	Logger      *slog.Logger
	InboxSize   int
}

// New creates an Actor. The actor is not running until Start is called.
func New(cfg Config) *Actor {
	size := cfg.InboxSize
	if size <= 0 {
		size = defaultInboxCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		Name:        cfg.Name,
		Supervisor:  cfg.Supervisor,
		bus:         cfg.Bus,
		handler:     cfg.Handler,
		onInterrupt: cfg.OnInterrupt,
		inbox:       make(chan models.Message, size),
		budget:      int64(cfg.Budget),
		logger:      logger.With("actor", cfg.Name),
		done:        make(chan struct{}),
	}
}

// Deliver enqueues msg on the actor's inbox. It satisfies bus.Inbox.
// A full inbox is a configuration error; Deliver blocks the publishing
// goroutine until space frees rather than dropping the message.
func (a *Actor) Deliver(msg models.Message) {
	a.inbox <- msg
}

// Budget returns the current budget value.
func (a *Actor) Budget() int {
	return int(atomic.LoadInt64(&a.budget))
}

// TryConsume atomically spends one work-credit, reporting false when none
// remain. The run loop never calls this itself: consumption belongs to the
// work handler, one credit per reasoning-oracle call, so a single inbound
// message that triggers several oracle calls is charged for each of them.
func (a *Actor) TryConsume() bool {
	for {
		cur := atomic.LoadInt64(&a.budget)
		if cur <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&a.budget, cur, cur-1) {
			return true
		}
	}
}

// IsRunning reports whether the actor's loop is active.
func (a *Actor) IsRunning() bool {
	return atomic.LoadInt32(&a.running) == 1
}

// Stop enqueues a poison message; the loop terminates when it reaches it,
// after any messages already queued ahead of it. It is idempotent.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() {
		a.inbox <- models.Message{Type: models.MsgPoison, Target: a.Name}
	})
}

// Done returns a channel closed when the run loop has exited.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// Run drives the actor's single-consumer loop until a poison message is
// received or ctx is cancelled. It must be run in its own goroutine; the
// kernel is responsible for observing its return (including panics via
// recover in the caller) and publishing actor-crashed on uncaught failure.
func (a *Actor) Run(ctx context.Context) {
	atomic.StoreInt32(&a.running, 1)
	defer func() {
		atomic.StoreInt32(&a.running, 0)
		close(a.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.inbox:
			if a.handleControlSignal(ctx, msg) {
				continue
			}
			switch {
			case msg.Type == models.MsgPoison:
				return
			}
			if a.Budget() <= 0 {
				a.reportBudgetExhausted(msg)
				continue
			}
			if a.handler != nil {
				if err := a.handler.HandleWork(ctx, msg); err != nil {
					a.logger.Error("work handler returned error", "error", err)
				}
			}
		}
	}
}

// handleControlSignal handles interrupt/budget-update before any work
// accounting. It returns true if msg was an interrupt or budget-update
// signal. Poison is not handled here and returns false, so the caller still
// sees it and stops the loop.
func (a *Actor) handleControlSignal(ctx context.Context, msg models.Message) bool {
	switch msg.Type {
	case models.MsgInterrupt:
		if a.onInterrupt != nil {
			a.onInterrupt(ctx, msg.Content)
		}
		return true
	case models.MsgBudgetUpdate:
		atomic.AddInt64(&a.budget, int64(msg.Amount))
		return true
	default:
		return false
	}
}

func (a *Actor) reportBudgetExhausted(msg models.Message) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(models.Message{
		Type:    models.MsgBudgetExhausted,
		From:    a.Name,
		Target:  a.Supervisor,
		Content: "budget exhausted",
	})
	a.bus.Publish(models.Message{
		Type:          models.MsgWorkFailed,
		From:          a.Name,
		Target:        msg.From,
		CorrelationID: msg.CorrelationID,
		Error:         "BudgetExhausted",
	})
}
