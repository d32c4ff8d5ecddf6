package stub

import (
	"strings"
	"sync"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
)

// memoryStore keeps subscription state in memory. The stub exists for
// sandbox runs and e2e tests, so there is deliberately no durable storage.
type memoryStore struct {
	mu   sync.RWMutex
	subs map[string]entity.Subscription
}

func newMemoryStore() *memoryStore {
	return &memoryStore{subs: make(map[string]entity.Subscription)}
}

func (m *memoryStore) get(userID string) (entity.Subscription, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[userID]
	return sub, ok
}

func (m *memoryStore) put(userID string, sub entity.Subscription) {
	m.mu.Lock()
	m.subs[userID] = sub
	m.mu.Unlock()
}

func (m *memoryStore) delete(userID string) {
	m.mu.Lock()
	delete(m.subs, userID)
	m.mu.Unlock()
}

// receiptVerdict is the stub's validation rule: receipts prefixed "invalid"
// are rejected, everything else is accepted. Validating the same receipt
// twice is naturally idempotent.
func receiptVerdict(receipt string) bool {
	return receipt != "" && !strings.HasPrefix(receipt, "invalid")
}
