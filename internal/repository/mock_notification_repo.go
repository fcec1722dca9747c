package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/notifyhub/quicksched/internal/domain"
)

// MockNotificationRepository is the in-memory NotificationRepository used in
// unit tests.
type MockNotificationRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.ArchivedNotification

	ArchiveErr        error
	DeleteBySourceErr error
	// AfterArchive runs after a successful Archive call, outside the lock.
	// Tests use it to interleave a concurrent user action.
	AfterArchive func(n *domain.ArchivedNotification)
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{records: make(map[string]*domain.ArchivedNotification)}
}

func (m *MockNotificationRepository) Archive(_ context.Context, n *domain.ArchivedNotification) (bool, error) {
	if m.ArchiveErr != nil {
		return false, m.ArchiveErr
	}
	m.mu.Lock()
	created := true
	for _, existing := range m.records {
		if existing.SourceID == n.SourceID {
			created = false
			break
		}
	}
	if created {
		m.records[n.ID] = cloneNotification(n)
	}
	m.mu.Unlock()

	if m.AfterArchive != nil {
		m.AfterArchive(n)
	}
	return created, nil
}

func (m *MockNotificationRepository) GetByID(_ context.Context, id string) (*domain.ArchivedNotification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneNotification(n), nil
}

func (m *MockNotificationRepository) List(_ context.Context) ([]*domain.ArchivedNotification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.ArchivedNotification, 0, len(m.records))
	for _, n := range m.records {
		result = append(result, cloneNotification(n))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ArchivedAt.After(result[j].ArchivedAt) })
	return result, nil
}

func (m *MockNotificationRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MockNotificationRepository) DeleteBySource(_ context.Context, sourceID string) error {
	if m.DeleteBySourceErr != nil {
		return m.DeleteBySourceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.records {
		if n.SourceID == sourceID {
			delete(m.records, id)
		}
	}
	return nil
}

// CountBySource returns how many records were archived from sourceID.
func (m *MockNotificationRepository) CountBySource(sourceID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.records {
		if n.SourceID == sourceID {
			count++
		}
	}
	return count
}

// Len returns the number of archive records.
func (m *MockNotificationRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func cloneNotification(n *domain.ArchivedNotification) *domain.ArchivedNotification {
	clone := *n
	clone.MediaRefs = append([]string(nil), n.MediaRefs...)
	return &clone
}
