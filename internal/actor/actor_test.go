package actor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerka1292/conclave/pkg/models"
)

type recordingBus struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (r *recordingBus) Publish(msg models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingBus) all() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Message(nil), r.msgs...)
}

// countingHandler meters itself like a real Agent would: one credit drawn
// from the bound account per handled message.
type countingHandler struct {
	mu     sync.Mutex
	calls  int
	budget BudgetAccount
}

func (h *countingHandler) BindBudget(b BudgetAccount) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.budget = b
}

func (h *countingHandler) HandleWork(ctx context.Context, msg models.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.budget != nil && !h.budget.TryConsume() {
		return nil
	}
	h.calls++
	return nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestBudgetZeroSkipsWorkAndReportsFailure(t *testing.T) {
	b := &recordingBus{}
	h := &countingHandler{}
	a := New(Config{Name: "worker", Supervisor: "leader", Bus: b, Handler: h, Budget: 0})

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	a.Deliver(models.Message{Type: models.MsgWorkSubmitted, From: "caller", CorrelationID: "c1"})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, h.count())
	msgs := b.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.MsgBudgetExhausted, msgs[0].Type)
	assert.Equal(t, models.MsgWorkFailed, msgs[1].Type)
	assert.Equal(t, "c1", msgs[1].CorrelationID)

	a.Stop()
	cancel()
}

func TestBudgetUpdateRestoresWork(t *testing.T) {
	b := &recordingBus{}
	h := &countingHandler{}
	a := New(Config{Name: "worker", Supervisor: "leader", Bus: b, Handler: h, Budget: 0})
	h.BindBudget(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Deliver(models.Message{Type: models.MsgBudgetUpdate, Amount: 5})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 5, a.Budget())

	a.Deliver(models.Message{Type: models.MsgWorkSubmitted})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, h.count())
	assert.Equal(t, 4, a.Budget())

	a.Stop()
}

func TestTryConsumeStopsAtZero(t *testing.T) {
	a := New(Config{Name: "worker", Budget: 2})

	assert.True(t, a.TryConsume())
	assert.True(t, a.TryConsume())
	assert.False(t, a.TryConsume())
	assert.Equal(t, 0, a.Budget())
}

func TestInterruptHookInvokedBeforeWork(t *testing.T) {
	var gotReason string
	a := New(Config{
		Name:   "worker",
		Budget: 1,
		OnInterrupt: func(ctx context.Context, reason string) {
			gotReason = reason
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Deliver(models.Message{Type: models.MsgInterrupt, Content: "Loop Detected"})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, "Loop Detected", gotReason)
	// budget must be untouched by an interrupt
	assert.Equal(t, 1, a.Budget())

	a.Stop()
}

func TestPoisonStopsLoop(t *testing.T) {
	a := New(Config{Name: "worker", Budget: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Stop()
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("actor did not stop on poison")
	}
	assert.False(t, a.IsRunning())
}
