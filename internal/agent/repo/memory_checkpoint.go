package repo

import (
	"context"
	"sync"

	"github.com/hrassist/server/internal/agent/model"
)

// MemoryCheckpointStore keeps snapshots for the lifetime of the process.
// Snapshots are cloned on the way in and out so callers never share state.
type MemoryCheckpointStore struct {
	mu        sync.RWMutex
	snapshots map[string]*model.ConversationState
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{snapshots: map[string]*model.ConversationState{}}
}

func (s *MemoryCheckpointStore) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.snapshots[threadID]; ok {
		return st.Clone(), nil
	}
	return model.NewConversationState(), nil
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, threadID string, state *model.ConversationState) error {
	snapshot := state.Clone()
	if snapshot == nil {
		snapshot = model.NewConversationState()
	}
	// scratch is turn-local
	snapshot.ToolRounds = nil
	snapshot.ToolErrors = nil
	snapshot.TotalCostUSD = 0

	s.mu.Lock()
	s.snapshots[threadID] = snapshot
	s.mu.Unlock()
	return nil
}

func (s *MemoryCheckpointStore) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	delete(s.snapshots, threadID)
	s.mu.Unlock()
	return nil
}

var _ model.CheckpointStore = (*MemoryCheckpointStore)(nil)
