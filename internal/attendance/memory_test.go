package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreMutateAllIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	lastIn := baseTime
	for id := int64(1); id <= 5; id++ {
		m := member(id, true, true)
		m.LastIn = &lastIn
		store.Seed(m)
	}
	ctx := context.Background()

	boom := errors.New("boom")
	visited := 0
	_, err := store.MutateAll(ctx, MemberFilter{}, func(m *Member) ([]LogEntry, error) {
		visited++
		if visited == 3 {
			return nil, boom
		}
		m.CheckedIn = false
		return []LogEntry{{MemberID: &m.ID, Operation: OpCheckOut, Status: StatusSuccess, Timestamp: baseTime}}, nil
	})
	require.ErrorIs(t, err, boom)

	// A fault mid-batch leaves zero members mutated and zero logs written.
	for id := int64(1); id <= 5; id++ {
		m, err := store.GetMember(ctx, id)
		require.NoError(t, err)
		require.True(t, m.CheckedIn)
	}
	logs, err := store.RecentLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestMemoryStoreMutateRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(member(1, true, true))
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Mutate(ctx, 1, func(m *Member) ([]LogEntry, error) {
		m.CheckedIn = false
		m.TotalSeconds = 999
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	m, err := store.GetMember(ctx, 1)
	require.NoError(t, err)
	require.True(t, m.CheckedIn)
	require.Zero(t, m.TotalSeconds)
}

func TestMemoryStoreMutateUnknownMember(t *testing.T) {
	store := NewMemoryStore()
	err := store.Mutate(context.Background(), 404, func(m *Member) ([]LogEntry, error) {
		t.Fatal("callback must not run for a missing member")
		return nil, nil
	})
	require.ErrorIs(t, err, ErrMemberNotFound)
}

func TestMemoryStoreUpsertPreservesAttendanceState(t *testing.T) {
	store := NewMemoryStore()
	lastIn := baseTime
	m := member(1, true, true)
	m.LastIn = &lastIn
	m.TotalSeconds = 600
	store.Seed(m)
	ctx := context.Background()

	require.NoError(t, store.UpsertMember(ctx, Member{ID: 1, FirstName: "New", LastName: "Name", Active: false}))

	got, err := store.GetMember(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "New", got.FirstName)
	require.False(t, got.Active)
	require.True(t, got.CheckedIn, "upsert must not touch attendance state")
	require.Equal(t, float64(600), got.TotalSeconds)
}

func TestMemoryStoreRecentLogsPaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.AppendLog(ctx, LogEntry{
			Entered:   string(rune('a' + i)),
			Operation: OpNone,
			Status:    StatusInvalidInput,
			Timestamp: baseTime.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	page, err := store.RecentLogs(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "e", page[0].Entered)
	require.Equal(t, "d", page[1].Entered)

	page, err = store.RecentLogs(ctx, 2, 2)
	require.NoError(t, err)
	require.Equal(t, "c", page[0].Entered)
	require.Equal(t, "b", page[1].Entered)

	page, err = store.RecentLogs(ctx, 10, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "a", page[0].Entered)
}

func TestMemoryStoreListMembersRosterOrder(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(
		Member{ID: 3, FirstName: "Ada", LastName: "Young", Active: true},
		Member{ID: 1, FirstName: "Ben", LastName: "Able", Active: true},
		Member{ID: 2, FirstName: "Amy", LastName: "Able", Active: false},
	)

	all, err := store.ListMembers(context.Background(), MemberFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, int64(2), all[0].ID) // Able, Amy
	require.Equal(t, int64(1), all[1].ID) // Able, Ben
	require.Equal(t, int64(3), all[2].ID) // Young, Ada

	active := true
	onlyActive, err := store.ListMembers(context.Background(), MemberFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, onlyActive, 2)
}

func TestMemoryStoreFilterByIDs(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(member(1, true, false), member(2, true, false), member(3, true, false))

	n, err := store.MutateAll(context.Background(), MemberFilter{IDs: []int64{1, 3}}, func(m *Member) ([]LogEntry, error) {
		m.CheckedIn = true
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	m, err := store.GetMember(context.Background(), 2)
	require.NoError(t, err)
	require.False(t, m.CheckedIn)
}
