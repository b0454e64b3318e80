package attendance

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/FRC5892/HeroHours/internal/observe"
)

// ErrUnknownDirection is returned for a bulk direction the engine does not
// recognize.
var ErrUnknownDirection = errors.New("unknown bulk direction")

// Direction selects which members a bulk transition targets.
type Direction string

const (
	// CheckOutAll checks out every active, checked-in member.
	CheckOutAll Direction = "check_out_all"
	// CheckInAll checks in every active, checked-out member. Debug mode only.
	CheckInAll Direction = "check_in_all"
)

// TransitionResult reports the outcome of a single member transition.
// CheckedIn is nil when no state change happened (unknown or inactive
// member). Count is the caller-supplied checked-in count with this
// transition's delta applied.
type TransitionResult struct {
	Status    Status
	Operation Operation
	CheckedIn *bool
	Entry     *LogEntry
	Count     int
}

// Engine applies check-in/check-out transitions against a Store. The debug
// flag gating bulk check-in is injected here so the engine never reads
// ambient process state.
type Engine struct {
	store Store
	debug bool
}

// NewEngine creates an engine over a store.
func NewEngine(store Store, debug bool) *Engine {
	return &Engine{store: store, debug: debug}
}

// Transition flips one member between checked in and checked out.
//
// Business-rule failures (unknown id, inactive member) come back as typed
// statuses with a durable log entry, never as a Go error. A non-nil error
// means an infrastructure fault; the store guarantees no partial state was
// left behind, and the result still carries StatusError for the caller.
// count is the caller's pre-fetched checked-in count; the result applies
// this transition's delta to it.
func (e *Engine) Transition(ctx context.Context, memberID int64, now time.Time, count int) (TransitionResult, error) {
	entered := strconv.FormatInt(memberID, 10)

	m, err := e.store.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			entry, logErr := e.store.AppendLog(ctx, LogEntry{
				Entered:   entered,
				Operation: OpNone,
				Status:    StatusUserNotFound,
				Timestamp: now,
			})
			if logErr != nil {
				return e.fault(ctx, entered, now, count, logErr)
			}
			observe.Transitions.WithLabelValues(string(OpNone), string(StatusUserNotFound)).Inc()
			return TransitionResult{Status: StatusUserNotFound, Operation: OpNone, Entry: &entry, Count: count}, nil
		}
		return e.fault(ctx, entered, now, count, err)
	}

	if !m.Active {
		entry, logErr := e.store.AppendLog(ctx, LogEntry{
			MemberID:  &m.ID,
			Entered:   entered,
			Operation: OpNone,
			Status:    StatusInactiveUser,
			Timestamp: now,
		})
		if logErr != nil {
			return e.fault(ctx, entered, now, count, logErr)
		}
		observe.Transitions.WithLabelValues(string(OpNone), string(StatusInactiveUser)).Inc()
		return TransitionResult{Status: StatusInactiveUser, Operation: OpNone, Entry: &entry, Count: count}, nil
	}

	var (
		state bool
		op    Operation
		entry LogEntry
	)
	err = e.store.Mutate(ctx, memberID, func(m *Member) ([]LogEntry, error) {
		// The pre-lock read only decided active/not-found; the checked-in
		// flag is re-read here under the lock, where it is authoritative.
		if m.CheckedIn {
			entry = applyCheckOut(m, now)
		} else {
			entry = applyCheckIn(m, now)
		}
		state = m.CheckedIn
		op = entry.Operation
		return []LogEntry{entry}, nil
	})
	if err != nil {
		return e.fault(ctx, entered, now, count, err)
	}

	if state {
		count++
	} else {
		count--
	}
	observe.Transitions.WithLabelValues(string(op), string(StatusSuccess)).Inc()
	observe.CheckedIn.Set(float64(count))
	return TransitionResult{
		Status:    StatusSuccess,
		Operation: op,
		CheckedIn: &state,
		Entry:     &entry,
		Count:     count,
	}, nil
}

// BulkTransition applies one transition to every qualifying member as a
// single atomic batch. CheckInAll outside debug mode is a silent no-op, not
// an error. Returns how many members transitioned.
func (e *Engine) BulkTransition(ctx context.Context, direction Direction, now time.Time) (int, error) {
	active := true
	var filter MemberFilter
	var apply func(m *Member, now time.Time) LogEntry
	switch direction {
	case CheckInAll:
		if !e.debug {
			return 0, nil
		}
		checkedIn := false
		filter = MemberFilter{Active: &active, CheckedIn: &checkedIn}
		apply = applyCheckIn
	case CheckOutAll:
		checkedIn := true
		filter = MemberFilter{Active: &active, CheckedIn: &checkedIn}
		apply = applyCheckOut
	default:
		return 0, ErrUnknownDirection
	}

	n, err := e.store.MutateAll(ctx, filter, func(m *Member) ([]LogEntry, error) {
		return []LogEntry{apply(m, now)}, nil
	})
	if err != nil {
		return 0, err
	}
	observe.BulkBatchSize.WithLabelValues(string(direction)).Observe(float64(n))
	return n, nil
}

// Reset checks out any selected member that is still checked in (with its
// own audit entry), then zeroes accumulated time and clears timestamps. The
// whole selection commits as one batch.
func (e *Engine) Reset(ctx context.Context, memberIDs []int64, now time.Time) error {
	if len(memberIDs) == 0 {
		return nil
	}
	_, err := e.store.MutateAll(ctx, MemberFilter{IDs: memberIDs}, func(m *Member) ([]LogEntry, error) {
		var entries []LogEntry
		if m.CheckedIn {
			m.CheckedIn = false
			entries = append(entries, LogEntry{
				MemberID:  &m.ID,
				Entered:   strconv.FormatInt(m.ID, 10),
				Operation: OpCheckOut,
				Status:    StatusSuccess,
				Timestamp: now,
			})
		}
		m.TotalSeconds = 0
		m.LastIn = nil
		m.LastOut = nil
		entries = append(entries, LogEntry{
			MemberID:  &m.ID,
			Entered:   strconv.FormatInt(m.ID, 10),
			Operation: OpReset,
			Status:    StatusSuccess,
			Timestamp: now,
		})
		return entries, nil
	})
	return err
}

// CountCheckedIn reports how many members are currently checked in.
func (e *Engine) CountCheckedIn(ctx context.Context, activeOnly bool) (int, error) {
	return e.store.CountCheckedIn(ctx, activeOnly)
}

// RecentLogs returns audit entries newest first.
func (e *Engine) RecentLogs(ctx context.Context, limit, offset int) ([]LogEntry, error) {
	return e.store.RecentLogs(ctx, limit, offset)
}

// fault records an unexpected failure in the audit trail on a best-effort
// basis and reports it as a generic Error status alongside the Go error.
func (e *Engine) fault(ctx context.Context, entered string, now time.Time, count int, err error) (TransitionResult, error) {
	entry := LogEntry{
		Entered:   entered,
		Operation: OpNone,
		Status:    StatusError,
		Message:   err.Error(),
		Timestamp: now,
	}
	if logged, logErr := e.store.AppendLog(ctx, entry); logErr == nil {
		entry = logged
	}
	observe.Transitions.WithLabelValues(string(OpNone), string(StatusError)).Inc()
	return TransitionResult{Status: StatusError, Operation: OpNone, Entry: &entry, Count: count}, err
}

// applyCheckIn mutates a member into the checked-in state.
func applyCheckIn(m *Member, now time.Time) LogEntry {
	t := now
	m.LastIn = &t
	m.CheckedIn = true
	return LogEntry{
		MemberID:  &m.ID,
		Entered:   strconv.FormatInt(m.ID, 10),
		Operation: OpCheckIn,
		Status:    StatusSuccess,
		Timestamp: now,
	}
}

// applyCheckOut mutates a member into the checked-out state, accumulating
// the completed session. A missing last_in never blocks the check-out (now
// substitutes for it) and clock skew never subtracts time (delta clamps to
// zero).
func applyCheckOut(m *Member, now time.Time) LogEntry {
	effectiveLastIn := now
	if m.LastIn != nil {
		effectiveLastIn = *m.LastIn
	} else {
		t := now
		m.LastIn = &t
	}
	delta := now.Sub(effectiveLastIn).Seconds()
	if delta < 0 {
		delta = 0
	}
	m.TotalSeconds += delta
	t := now
	m.LastOut = &t
	m.CheckedIn = false
	return LogEntry{
		MemberID:  &m.ID,
		Entered:   strconv.FormatInt(m.ID, 10),
		Operation: OpCheckOut,
		Status:    StatusSuccess,
		Timestamp: now,
	}
}
