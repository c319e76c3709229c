package conversations

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/model"
	logx "github.com/hrassist/server/pkg/logger"
)

// Manager owns the checkpoint store and serializes turns per thread: a turn
// holds its thread's lock from Begin until Release, so a second turn for the
// same thread waits until the first one has committed or given up. Distinct
// threads never contend.
type Manager struct {
	store model.CheckpointStore

	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	ch   chan struct{}
	refs int
}

func NewManager(store model.CheckpointStore) *Manager {
	return &Manager{
		store: store,
		locks: map[string]*threadLock{},
	}
}

// Turn is the exclusive handle of one in-flight turn.
type Turn struct {
	ThreadID string
	// State is a private copy of the latest checkpoint.
	State *model.ConversationState

	m        *Manager
	baseLen  int
	unlock   func()
	released bool
}

// Begin waits for the thread lock, honoring ctx while waiting, then loads the
// latest snapshot. The caller must Release the turn.
func (m *Manager) Begin(ctx context.Context, threadID string) (*Turn, error) {
	unlock, err := m.acquire(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("wait for thread %q: %w", threadID, err)
	}

	state, err := m.store.Load(ctx, threadID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if state == nil {
		state = model.NewConversationState()
	}

	logx.Debug().Str("thread_id", threadID).Int("message_count", len(state.Messages)).Msg("turn started")
	return &Turn{
		ThreadID: threadID,
		State:    state.Clone(),
		m:        m,
		baseLen:  len(state.Messages),
		unlock:   unlock,
	}, nil
}

// Commit checkpoints the final state of a successful turn. History must only
// have grown and every tool result must pair with an earlier call.
func (t *Turn) Commit(ctx context.Context, final *model.ConversationState) error {
	if t.released {
		return fmt.Errorf("turn for thread %q already released", t.ThreadID)
	}
	if final == nil || len(final.Messages) < t.baseLen {
		return fmt.Errorf("turn for thread %q would shrink its history", t.ThreadID)
	}
	if err := model.ValidateToolPairing(final.Messages); err != nil {
		return fmt.Errorf("invalid history: %w", err)
	}
	if err := t.m.store.Save(ctx, t.ThreadID, final); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	logx.Debug().Str("thread_id", t.ThreadID).Int("message_count", len(final.Messages)).Msg("turn committed")
	return nil
}

// Release unlocks the thread. It is safe to call more than once.
func (t *Turn) Release() {
	if t.released {
		return
	}
	t.released = true
	t.unlock()
}

// Reset drops the thread's checkpoint once no turn is running on it.
func (m *Manager) Reset(ctx context.Context, threadID string) error {
	unlock, err := m.acquire(ctx, threadID)
	if err != nil {
		return fmt.Errorf("wait for thread %q: %w", threadID, err)
	}
	defer unlock()

	if err := m.store.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	logx.Info().Str("thread_id", threadID).Msg("conversation reset")
	return nil
}

// Snapshot returns the latest checkpoint without taking the thread lock.
func (m *Manager) Snapshot(ctx context.Context, threadID string) (*model.ConversationState, error) {
	return m.store.Load(ctx, threadID)
}

func (m *Manager) acquire(ctx context.Context, threadID string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[threadID]
	if !ok {
		l = &threadLock{ch: make(chan struct{}, 1)}
		m.locks[threadID] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			m.unref(threadID, l)
		}, nil
	case <-ctx.Done():
		m.unref(threadID, l)
		return nil, ctx.Err()
	}
}

func (m *Manager) unref(threadID string, l *threadLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, threadID)
	}
}

// ====================== Helper function ======================

// TrimTail returns a copy of the last maxMessages messages.
func TrimTail(messages []*schema.Message, maxMessages int) []*schema.Message {
	if maxMessages <= 0 {
		return []*schema.Message{}
	}
	if len(messages) <= maxMessages {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxMessages:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
