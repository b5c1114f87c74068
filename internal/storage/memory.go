// Package storage contains the in-memory submission store used for local runs
// and tests.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/DocScrub/internal/model"
)

// MemoryStore keeps submissions in a map guarded by an RWMutex. Reads take
// the shared lock, so listing never blocks behind other readers.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.Submission
	now     func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.Submission),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a queued record. The caller's struct is updated with the
// assigned status and timestamps.
func (m *MemoryStore) Create(ctx context.Context, rec *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("insert submission %s: duplicate id", rec.ID)
	}
	now := m.now()
	rec.Status = model.StatusQueued
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns a copy of the record.
func (m *MemoryStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns copies ordered by creation time, newest first.
func (m *MemoryStore) List(ctx context.Context, limit, offset int) ([]*model.Submission, error) {
	m.mu.RLock()
	all := make([]*model.Submission, 0, len(m.records))
	for _, rec := range m.records {
		all = append(all, rec.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if offset >= len(all) {
		return []*model.Submission{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// MarkProcessing moves a queued record to processing.
func (m *MemoryStore) MarkProcessing(ctx context.Context, id string) error {
	return m.transition(id, model.StatusProcessing, func(rec *model.Submission) {})
}

// MarkDone records the output location and replacement count.
func (m *MemoryStore) MarkDone(ctx context.Context, id, location string, replaced int) error {
	return m.transition(id, model.StatusDone, func(rec *model.Submission) {
		rec.OutputLocation = &location
		rec.ReplacedCount = &replaced
		rec.ErrorKind = nil
		rec.ErrorMessage = nil
	})
}

// MarkFailed records why processing failed.
func (m *MemoryStore) MarkFailed(ctx context.Context, id string, kind model.ErrorKind, msg string) error {
	return m.transition(id, model.StatusFailed, func(rec *model.Submission) {
		rec.ErrorKind = &kind
		rec.ErrorMessage = &msg
		rec.OutputLocation = nil
		rec.ReplacedCount = nil
	})
}

// Rate stores a rating on a record in any status.
func (m *MemoryStore) Rate(ctx context.Context, id string, rating int, note *string) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	rec.Rating = &rating
	if note != nil {
		n := *note
		rec.RatingNote = &n
	} else {
		rec.RatingNote = nil
	}
	rec.UpdatedAt = m.touch(rec.UpdatedAt)
	return rec.Clone(), nil
}

func (m *MemoryStore) transition(id string, to model.Status, mutate func(*model.Submission)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return model.ErrNotFound
	}
	if !model.CanTransition(rec.Status, to) {
		return fmt.Errorf("submission %s %s -> %s: %w", id, rec.Status, to, model.ErrInvalidTransition)
	}
	mutate(rec)
	rec.Status = to
	rec.UpdatedAt = m.touch(rec.UpdatedAt)
	return nil
}

// touch returns a timestamp strictly after prev so updated_at advances on
// every mutation even when the clock has not.
func (m *MemoryStore) touch(prev time.Time) time.Time {
	now := m.now()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}
