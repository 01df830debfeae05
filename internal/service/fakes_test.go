package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kursadbilgin/notify-daemon/internal/domain"
	"github.com/kursadbilgin/notify-daemon/internal/queue"
	"github.com/kursadbilgin/notify-daemon/internal/repository"
)

type fakeClientRepo struct {
	claimBatchFn func(ctx context.Context, limit int, procName string) ([]domain.Client, error)
	finalizeFn   func(ctx context.Context, outcome domain.Outcome) error
}

func (f *fakeClientRepo) ClaimBatch(ctx context.Context, limit int, procName string) ([]domain.Client, error) {
	if f.claimBatchFn == nil {
		return nil, nil
	}
	return f.claimBatchFn(ctx, limit, procName)
}

func (f *fakeClientRepo) Finalize(ctx context.Context, outcome domain.Outcome) error {
	if f.finalizeFn == nil {
		return nil
	}
	return f.finalizeFn(ctx, outcome)
}

func (f *fakeClientRepo) Create(context.Context, *domain.Client) error { return nil }

func (f *fakeClientRepo) GetByID(context.Context, int64) (*domain.Client, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeClientRepo) CountByStatus(context.Context) ([]repository.StatusCount, error) {
	return nil, nil
}

type fakeChannel struct {
	name      domain.Channel
	deliverFn func(ctx context.Context, client domain.Client) error
}

func (f *fakeChannel) Name() domain.Channel { return f.name }

func (f *fakeChannel) Deliver(ctx context.Context, client domain.Client) error {
	if f.deliverFn == nil {
		return nil
	}
	return f.deliverFn(ctx, client)
}

func pushChannel(fn func(ctx context.Context, client domain.Client) error) *fakeChannel {
	return &fakeChannel{name: domain.ChannelPush, deliverFn: fn}
}

func emailChannel(fn func(ctx context.Context, client domain.Client) error) *fakeChannel {
	return &fakeChannel{name: domain.ChannelEmail, deliverFn: fn}
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []queue.OutcomeMessage
	err      error
}

func (f *fakePublisher) PublishOutcome(_ context.Context, msg queue.OutcomeMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []queue.OutcomeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.OutcomeMessage(nil), f.messages...)
}

// memClientStore mimics the claim and finalize semantics of the clients table.
type memClientStore struct {
	fakeClientRepo

	mu        sync.Mutex
	rows      map[int64]*domain.Client
	finalized map[int64]int
}

func newMemClientStore(clients ...domain.Client) *memClientStore {
	s := &memClientStore{
		rows:      make(map[int64]*domain.Client, len(clients)),
		finalized: make(map[int64]int),
	}
	for i := range clients {
		c := clients[i]
		if c.Status == "" {
			c.Status = domain.StatusPending
		}
		if c.IsPushSent == "" {
			c.IsPushSent = domain.SentNo
		}
		if c.IsEmailSent == "" {
			c.IsEmailSent = domain.SentNo
		}
		s.rows[c.ID] = &c
	}
	return s
}

func (s *memClientStore) ClaimBatch(_ context.Context, limit int, procName string) ([]domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.rows))
	for id, row := range s.rows {
		if row.Status == domain.StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}

	claimed := make([]domain.Client, 0, len(ids))
	for _, id := range ids {
		row := s.rows[id]
		claimed = append(claimed, *row)
		row.Status = domain.StatusProcessing
		row.ProcName = procName
	}
	return claimed, nil
}

func (s *memClientStore) Finalize(_ context.Context, outcome domain.Outcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[outcome.ClientID]
	if !ok {
		return fmt.Errorf("client %d: %w", outcome.ClientID, domain.ErrNotFound)
	}
	row.Status = outcome.Status
	row.IsPushSent = domain.FlagFromBool(outcome.PushSent)
	row.IsEmailSent = domain.FlagFromBool(outcome.EmailSent)
	s.finalized[outcome.ClientID]++
	return nil
}

func (s *memClientStore) get(id int64) domain.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *memClientStore) finalizeCount(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized[id]
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, channel)
}
