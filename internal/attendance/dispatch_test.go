package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, debug bool, members ...Member) (*Dispatcher, *MemoryStore) {
	t.Helper()
	engine, store := seededEngine(t, debug, members...)
	return NewDispatcher(engine), store
}

func TestDispatchEmptyInput(t *testing.T) {
	d, store := newDispatcher(t, false)

	for _, input := range []string{"", "   ", "\t\n"} {
		_, err := d.Dispatch(context.Background(), input, baseTime)
		require.ErrorIs(t, err, ErrEmptyInput)
	}

	logs, err := store.RecentLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Empty(t, logs, "blank input must not leave an audit entry")
}

func TestDispatchControlTokens(t *testing.T) {
	d, store := newDispatcher(t, false)
	ctx := context.Background()

	cases := map[string]ControlAction{
		"+00":   ControlRefresh,
		"+01":   ControlRefresh,
		"*":     ControlRefresh,
		"admin": ControlAdmin,
		"---":   ControlLogout,
		"Send":  ControlSend,
	}
	for input, want := range cases {
		outcome, err := d.Dispatch(ctx, input, baseTime)
		require.NoError(t, err, input)
		require.Equal(t, OutcomeControl, outcome.Kind, input)
		require.Equal(t, want, outcome.Control, input)
	}

	logs, err := store.RecentLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Empty(t, logs, "control tokens never touch the stores")
}

func TestDispatchTrimsWhitespace(t *testing.T) {
	d, store := newDispatcher(t, false, member(42, true, false))

	outcome, err := d.Dispatch(context.Background(), "  42\n", baseTime)
	require.NoError(t, err)
	require.Equal(t, OutcomeTransition, outcome.Kind)
	require.Equal(t, StatusSuccess, outcome.Status)

	m, err := store.GetMember(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, m.CheckedIn)
}

func TestDispatchInvalidInputIsAudited(t *testing.T) {
	d, store := newDispatcher(t, false)

	outcome, err := d.Dispatch(context.Background(), "abc123", baseTime)
	require.NoError(t, err)
	require.Equal(t, StatusInvalidInput, outcome.Status)
	require.Equal(t, OpNone, outcome.Operation)
	require.NotNil(t, outcome.Entry)
	require.Nil(t, outcome.Entry.MemberID)
	require.Equal(t, "abc123", outcome.Entry.Entered)

	logs, err := store.RecentLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, StatusInvalidInput, logs[0].Status)
}

func TestDispatchUnknownMember(t *testing.T) {
	d, store := newDispatcher(t, false, member(1, true, false))

	outcome, err := d.Dispatch(context.Background(), "9999", baseTime)
	require.NoError(t, err)
	require.Equal(t, StatusUserNotFound, outcome.Status)
	require.Nil(t, outcome.Entry.MemberID)

	m, err := store.GetMember(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, m.CheckedIn)
	require.Zero(t, m.TotalSeconds)
}

// Full kiosk round trip: check in at T, check out at T+1h.
func TestDispatchCheckInThenOutScenario(t *testing.T) {
	d, store := newDispatcher(t, false, member(1001, true, false))
	ctx := context.Background()

	outcome, err := d.Dispatch(ctx, "1001", baseTime)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, outcome.Status)
	require.Equal(t, OpCheckIn, outcome.Operation)
	require.True(t, *outcome.CheckedIn)
	require.Equal(t, 1, outcome.Count)

	later := baseTime.Add(time.Hour)
	outcome, err = d.Dispatch(ctx, "1001", later)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, outcome.Status)
	require.Equal(t, OpCheckOut, outcome.Operation)
	require.False(t, *outcome.CheckedIn)
	require.Equal(t, 0, outcome.Count)

	m, err := store.GetMember(ctx, 1001)
	require.NoError(t, err)
	require.Equal(t, float64(3600), m.TotalSeconds)
	require.True(t, m.LastOut.Equal(later))

	logs, err := store.RecentLogs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, OpCheckOut, logs[0].Operation)
	require.Equal(t, OpCheckIn, logs[1].Operation)
}

func TestDispatchBulkCheckOutToken(t *testing.T) {
	lastIn := baseTime.Add(-time.Hour)
	var members []Member
	for id := int64(1); id <= 5; id++ {
		m := member(id, true, true)
		m.LastIn = &lastIn
		members = append(members, m)
	}
	d, store := newDispatcher(t, false, members...)

	outcome, err := d.Dispatch(context.Background(), "+404", baseTime)
	require.NoError(t, err)
	require.Equal(t, OutcomeBulk, outcome.Kind)
	require.Equal(t, StatusSuccess, outcome.Status)
	require.Equal(t, 0, outcome.Count)

	logs, err := store.RecentLogs(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 5)
}

func TestDispatchBulkCheckInTokenGatedByDebug(t *testing.T) {
	ctx := context.Background()

	d, store := newDispatcher(t, false, member(1, true, false))
	outcome, err := d.Dispatch(ctx, "-404", baseTime)
	require.NoError(t, err)
	require.Equal(t, OutcomeBulk, outcome.Kind)
	require.Equal(t, StatusSuccess, outcome.Status)
	m, err := store.GetMember(ctx, 1)
	require.NoError(t, err)
	require.False(t, m.CheckedIn)

	d, store = newDispatcher(t, true, member(1, true, false))
	outcome, err = d.Dispatch(ctx, "-404", baseTime)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Count)
	m, err = store.GetMember(ctx, 1)
	require.NoError(t, err)
	require.True(t, m.CheckedIn)
}

func TestDispatchConcurrentSameMember(t *testing.T) {
	d, store := newDispatcher(t, false, member(1, true, false))
	ctx := context.Background()

	const attempts = 20
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := d.Dispatch(ctx, "1", baseTime)
			errs <- err
		}()
	}
	for i := 0; i < attempts; i++ {
		require.NoError(t, <-errs)
	}

	// An even number of transitions lands back on checked out with no
	// accumulated drift; interleaved read-modify-writes would corrupt this.
	m, err := store.GetMember(ctx, 1)
	require.NoError(t, err)
	require.False(t, m.CheckedIn)
	require.Zero(t, m.TotalSeconds)

	logs, err := store.RecentLogs(ctx, attempts+1, 0)
	require.NoError(t, err)
	require.Len(t, logs, attempts)
}
