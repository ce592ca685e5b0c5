package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
	"github.com/vladislavdragonenkov/bgshop/internal/storage/memory"
)

var _ domain.OutboxPurger = (*stubPurger)(nil)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCleanupWorker_Purge_Batches(t *testing.T) {
	t.Parallel()

	purger := &stubPurger{deleteResults: []int{2, 2, 1}}
	worker := NewCleanupWorker(purger, WithBatchSize(2))

	deleted, err := worker.Purge(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("unexpected deleted total: got=%d want=5", deleted)
	}
	if calls := purger.calls(); calls != 3 {
		t.Fatalf("unexpected purge calls: got=%d want=3", calls)
	}
}

func TestCleanupWorker_Purge_Error(t *testing.T) {
	t.Parallel()

	purger := &stubPurger{deleteErrors: []error{errors.New("boom")}}
	worker := NewCleanupWorker(purger, WithBatchSize(10))

	deleted, err := worker.Purge(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected Purge error")
	}
	if deleted != 0 {
		t.Fatalf("unexpected deleted total: got=%d want=0", deleted)
	}
}

func TestCleanupWorker_Run_UsesRetentionCutoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	purger := &stubPurger{}
	worker := NewCleanupWorker(
		purger,
		WithInterval(time.Hour),
		WithRetention(2*time.Hour),
		WithClock(func() time.Time { return now }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker.cleanup(ctx)
	if purger.calls() != 0 {
		t.Fatal("cancelled context must not reach the purger")
	}

	worker.cleanup(context.Background())
	if got := purger.lastBefore(); !got.Equal(now.Add(-2 * time.Hour)) {
		t.Fatalf("unexpected cutoff: got=%s", got)
	}
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	purger := &stubPurger{}
	worker := NewCleanupWorker(purger, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
	if calls := purger.calls(); calls == 0 {
		t.Fatal("expected purge to be called at least once")
	}
}

func TestCleanupWorker_MemoryStoreKeepsPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	outbox := store.Outbox()

	sent, err := outbox.Enqueue(ctx, domain.OutboxMessage{EventType: domain.TaskOrderConfirmed, Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := outbox.Enqueue(ctx, domain.OutboxMessage{EventType: domain.TaskPaymentSimulate, Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := outbox.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	worker := NewCleanupWorker(store, WithBatchSize(10))
	deleted, err := worker.Purge(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("unexpected deleted total: got=%d want=1", deleted)
	}

	stats, err := outbox.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Fatalf("pending message must survive cleanup, got %d pending", stats.PendingCount)
	}
}

type stubPurger struct {
	mu sync.Mutex

	deleteResults []int
	deleteErrors  []error
	callCount     int
	before        time.Time
}

func (s *stubPurger) PurgeSent(_ context.Context, before time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.before = before

	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubPurger) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPurger) lastBefore() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.before
}
