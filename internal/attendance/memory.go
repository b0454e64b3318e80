package attendance

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps members and logs in process memory. It backs unit tests
// and STORE_BACKEND=memory dev runs. The single mutex serializes every
// mutation, which trivially satisfies the per-member exclusivity contract;
// mutations are staged on copies and only assigned back once every callback
// has succeeded, so batches are all-or-nothing.
type MemoryStore struct {
	mu        sync.RWMutex
	members   map[int64]*Member
	logs      []LogEntry
	nextLogID int64
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{members: make(map[int64]*Member)}
}

// Seed replaces the stored state for the given members. Test and dev helper.
func (s *MemoryStore) Seed(members ...Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range members {
		cp := m
		s.members[m.ID] = &cp
	}
}

// GetMember implements Store.
func (s *MemoryStore) GetMember(ctx context.Context, id int64) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

// UpsertMember implements Store.
func (s *MemoryStore) UpsertMember(ctx context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.members[m.ID]; ok {
		existing.FirstName = m.FirstName
		existing.LastName = m.LastName
		existing.Active = m.Active
		return nil
	}
	cp := m
	s.members[m.ID] = &cp
	return nil
}

// ListMembers implements Store.
func (s *MemoryStore) ListMembers(ctx context.Context, filter MemberFilter) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.selectLocked(filter)
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Mutate implements Store.
func (s *MemoryStore) Mutate(ctx context.Context, id int64, fn MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return ErrMemberNotFound
	}
	cp := *m
	entries, err := fn(&cp)
	if err != nil {
		return err
	}
	*m = cp
	s.appendLocked(entries)
	return nil
}

// MutateAll implements Store.
func (s *MemoryStore) MutateAll(ctx context.Context, filter MemberFilter, fn MutateFunc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := s.selectLocked(filter)
	sort.Slice(selected, func(i, j int) bool { return selected[i].ID < selected[j].ID })

	staged := make([]Member, 0, len(selected))
	var entries []LogEntry
	for _, m := range selected {
		cp := m
		es, err := fn(&cp)
		if err != nil {
			return 0, err
		}
		staged = append(staged, cp)
		entries = append(entries, es...)
	}

	for _, m := range staged {
		cp := m
		s.members[m.ID] = &cp
	}
	s.appendLocked(entries)
	return len(staged), nil
}

// AppendLog implements Store.
func (s *MemoryStore) AppendLog(ctx context.Context, e LogEntry) (LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked([]LogEntry{e})
	return s.logs[len(s.logs)-1], nil
}

// CountCheckedIn implements Store.
func (s *MemoryStore) CountCheckedIn(ctx context.Context, activeOnly bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, m := range s.members {
		if !m.CheckedIn {
			continue
		}
		if activeOnly && !m.Active {
			continue
		}
		count++
	}
	return count, nil
}

// RecentLogs implements Store.
func (s *MemoryStore) RecentLogs(ctx context.Context, limit, offset int) ([]LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []LogEntry
	for i := len(s.logs) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

func (s *MemoryStore) selectLocked(filter MemberFilter) []Member {
	var idSet map[int64]bool
	if filter.IDs != nil {
		idSet = make(map[int64]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			idSet[id] = true
		}
	}
	var out []Member
	for _, m := range s.members {
		if idSet != nil && !idSet[m.ID] {
			continue
		}
		if filter.Active != nil && m.Active != *filter.Active {
			continue
		}
		if filter.CheckedIn != nil && m.CheckedIn != *filter.CheckedIn {
			continue
		}
		out = append(out, *m)
	}
	return out
}

func (s *MemoryStore) appendLocked(entries []LogEntry) {
	for _, e := range entries {
		s.nextLogID++
		e.ID = s.nextLogID
		s.logs = append(s.logs, e)
	}
}
