package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/bgshop/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu   sync.Mutex
	msgs []domain.OutboxMessage
	err  error
}

func (r *recorder) Publish(_ context.Context, msg domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestOutboxQueue_EnqueueIsDispatchedByWorker(t *testing.T) {
	store := memory.NewStore()
	queue := NewOutboxQueue(store.Outbox(), nil)

	task, err := NewTask(domain.TaskOrderConfirmed, "7", OrderConfirmed{OrderID: 7, UserID: 1, TotalCost: "245.00"})
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(context.Background(), task))

	confirmed := &recorder{}
	simulate := &recorder{}
	dispatcher := NewDispatcher(nil).
		Handle(domain.TaskOrderConfirmed, confirmed).
		Handle(domain.TaskPaymentSimulate, simulate)

	worker := outbox.NewWorker(store.Outbox(), dispatcher, outbox.WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	require.Equal(t, 1, confirmed.count())
	require.Equal(t, 0, simulate.count())
	require.Equal(t, "7", confirmed.msgs[0].AggregateID)
	require.JSONEq(t, `{"orderId":7,"userId":1,"totalCost":"245.00"}`, string(confirmed.msgs[0].Payload))

	stats, err := store.Outbox().Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestOutboxQueue_RequiresType(t *testing.T) {
	queue := NewOutboxQueue(memory.NewStore().Outbox(), nil)
	require.Error(t, queue.Enqueue(context.Background(), domain.Task{}))
}

func TestDispatcher_UnknownTypeIsPermanent(t *testing.T) {
	err := NewDispatcher(nil).Publish(context.Background(), domain.OutboxMessage{ID: "x", EventType: "unknown"})
	require.Error(t, err)
	require.True(t, outbox.IsPermanent(err))
}

func TestDispatcher_PropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	dispatcher := NewDispatcher(nil).Handle("a", PublisherFunc(func(context.Context, domain.OutboxMessage) error {
		return boom
	}))
	require.ErrorIs(t, dispatcher.Publish(context.Background(), domain.OutboxMessage{EventType: "a"}), boom)
}

func TestLogNotifier(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	notifier := NewLogNotifier(log.NewEntry(logger))

	require.NoError(t, notifier.Publish(context.Background(), domain.OutboxMessage{
		Payload: []byte(`{"orderId":3,"userId":9,"totalCost":"10.00"}`),
	}))
	require.Equal(t, "order confirmed notification", hook.LastEntry().Message)
	require.Equal(t, int64(3), hook.LastEntry().Data["order_id"])

	err := notifier.Publish(context.Background(), domain.OutboxMessage{Payload: []byte(`not-json`)})
	require.True(t, outbox.IsPermanent(err))
}

func TestWorkerRun_DeliversTasksUntilCanceled(t *testing.T) {
	store := memory.NewStore()
	queue := NewOutboxQueue(store.Outbox(), nil)
	confirmed := &recorder{}

	worker := outbox.NewWorker(
		store.Outbox(),
		NewDispatcher(nil).Handle(domain.TaskOrderConfirmed, confirmed),
		outbox.WithPollInterval(5*time.Millisecond),
		outbox.WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	task, err := NewTask(domain.TaskOrderConfirmed, "1", OrderConfirmed{OrderID: 1})
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(context.Background(), task))

	require.Eventually(t, func() bool { return confirmed.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
