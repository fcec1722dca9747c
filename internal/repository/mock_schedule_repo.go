package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/quicksched/internal/domain"
)

// MockScheduleRepository is a hand-written, in-memory implementation of
// ScheduleRepository used in unit tests. No mock-generation library needed.
type MockScheduleRepository struct {
	mu    sync.RWMutex
	posts map[string]*domain.ScheduledPost

	// Optional error overrides, set in tests to simulate failure paths.
	CreateErr      error
	ListPendingErr error
	// DeleteHook runs before every Delete; a non-nil result fails the call
	// without touching the stored post.
	DeleteHook func(id string) error
}

func NewMockScheduleRepository() *MockScheduleRepository {
	return &MockScheduleRepository{posts: make(map[string]*domain.ScheduledPost)}
}

func (m *MockScheduleRepository) Create(_ context.Context, p *domain.ScheduledPost) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = clonePost(p)
	return nil
}

func (m *MockScheduleRepository) GetByID(_ context.Context, id string) (*domain.ScheduledPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePost(p), nil
}

func (m *MockScheduleRepository) List(_ context.Context) ([]*domain.ScheduledPost, error) {
	return m.filter(func(*domain.ScheduledPost) bool { return true }), nil
}

func (m *MockScheduleRepository) ListByCategory(_ context.Context, c domain.Category) ([]*domain.ScheduledPost, error) {
	return m.filter(func(p *domain.ScheduledPost) bool { return p.Category == c }), nil
}

func (m *MockScheduleRepository) ListPending(_ context.Context) ([]*domain.ScheduledPost, error) {
	if m.ListPendingErr != nil {
		return nil, m.ListPendingErr
	}
	return m.filter(func(p *domain.ScheduledPost) bool { return !p.IsDraft() }), nil
}

func (m *MockScheduleRepository) Update(_ context.Context, id string, u domain.PostUpdate) (*domain.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.Apply(p)
	p.UpdatedAt = time.Now().UTC()
	return clonePost(p), nil
}

func (m *MockScheduleRepository) SetExternalRef(_ context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !p.IsDraft() {
		return domain.ErrAlreadySubmitted
	}
	p.ExternalRef = &ref
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockScheduleRepository) Delete(_ context.Context, id string) error {
	if m.DeleteHook != nil {
		if err := m.DeleteHook(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

// Len returns the number of stored posts.
func (m *MockScheduleRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.posts)
}

func (m *MockScheduleRepository) filter(keep func(*domain.ScheduledPost) bool) []*domain.ScheduledPost {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.ScheduledPost, 0, len(m.posts))
	for _, p := range m.posts {
		if keep(p) {
			result = append(result, clonePost(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PublishAt.Equal(result[j].PublishAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].PublishAt.Before(result[j].PublishAt)
	})
	return result
}

func clonePost(p *domain.ScheduledPost) *domain.ScheduledPost {
	clone := *p
	clone.MediaRefs = append([]string(nil), p.MediaRefs...)
	if p.ExternalRef != nil {
		ref := *p.ExternalRef
		clone.ExternalRef = &ref
	}
	return &clone
}
