package scoring

import (
	"context"
	"sync"

	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// ScoreStore persists the one live ComplianceScore row per client. Replace
// is a full overwrite: last write wins, no partial merge.
type ScoreStore interface {
	Replace(ctx context.Context, score ComplianceScore) error
	Get(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (ComplianceScore, error)
}

// MemoryScoreStore backs unit tests.
type MemoryScoreStore struct {
	mu     sync.RWMutex
	scores map[id.ClientID]ComplianceScore
}

func NewMemoryScoreStore() *MemoryScoreStore {
	return &MemoryScoreStore{scores: make(map[id.ClientID]ComplianceScore)}
}

func (s *MemoryScoreStore) Replace(ctx context.Context, score ComplianceScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[score.ClientID] = score
	return nil
}

func (s *MemoryScoreStore) Get(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (ComplianceScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[clientID]
	if !ok || score.TenantID != tenantID {
		return ComplianceScore{}, sentinel.ErrNotFound
	}
	return score, nil
}

// Len reports how many clients currently have a persisted score.
func (s *MemoryScoreStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores)
}
