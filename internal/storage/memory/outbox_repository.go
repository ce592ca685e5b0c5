package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bgshop/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	seq        int64
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxRepositoryInMemory работает с outbox внутри транзакции.
type outboxRepositoryInMemory struct {
	st *state
}

// Enqueue сохраняет событие со статусом `pending`.
func (r *outboxRepositoryInMemory) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.st.outboxSeq++
	r.st.outbox[msg.ID] = outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		seq:       r.st.outboxSeq,
		createdAt: now,
		updatedAt: now,
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений `pending` в порядке постановки.
func (r *outboxRepositoryInMemory) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := r.pendingRecords()
	if len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

func (r *outboxRepositoryInMemory) Stats(context.Context) (domain.OutboxStats, error) {
	pending := r.pendingRecords()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepositoryInMemory) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepositoryInMemory) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxRepositoryInMemory) mark(id, status string) error {
	record, ok := r.st.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = time.Now().UTC()
	r.st.outbox[id] = record
	return nil
}

func (r *outboxRepositoryInMemory) pendingRecords() []outboxRecord {
	result := make([]outboxRecord, 0)
	for _, rec := range r.st.outbox {
		if rec.status == outboxStatusPending {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

// autoCommitOutbox выполняет каждую операцию outbox в отдельной транзакции Store.
type autoCommitOutbox struct {
	store *Store
}

func (o *autoCommitOutbox) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	var stored domain.OutboxMessage
	err := o.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		stored, err = tx.Outbox().Enqueue(ctx, msg)
		return err
	})
	return stored, err
}

func (o *autoCommitOutbox) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var msgs []domain.OutboxMessage
	err := o.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		msgs, err = tx.Outbox().PullPending(ctx, limit)
		return err
	})
	return msgs, err
}

func (o *autoCommitOutbox) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := o.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		stats, err = tx.Outbox().Stats(ctx)
		return err
	})
	return stats, err
}

func (o *autoCommitOutbox) MarkSent(ctx context.Context, id string) error {
	return o.store.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.Outbox().MarkSent(ctx, id)
	})
}

func (o *autoCommitOutbox) MarkFailed(ctx context.Context, id string) error {
	return o.store.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.Outbox().MarkFailed(ctx, id)
	})
}

var (
	_ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
	_ domain.OutboxRepository = (*autoCommitOutbox)(nil)
)

// PurgeSent удаляет до limit доставленных сообщений, начиная с самых старых.
func (s *Store) PurgeSent(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sent := make([]outboxRecord, 0)
	for _, rec := range s.st.outbox {
		if rec.status == outboxStatusSent && rec.updatedAt.Before(before) {
			sent = append(sent, rec)
		}
	}
	sort.Slice(sent, func(i, j int) bool { return sent[i].seq < sent[j].seq })
	if limit > 0 && len(sent) > limit {
		sent = sent[:limit]
	}

	for _, rec := range sent {
		delete(s.st.outbox, rec.msg.ID)
	}
	return len(sent), nil
}

var _ domain.OutboxPurger = (*Store)(nil)
