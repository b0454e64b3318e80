package attendance

import (
	"context"
	"errors"
)

// ErrMemberNotFound is returned by store lookups when no member matches.
var ErrMemberNotFound = errors.New("member not found")

// ErrLockTimeout indicates the per-member lock could not be acquired within
// the bounded wait. Callers surface it as a generic Error status.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// MemberFilter selects a subset of members for bulk mutation. Nil fields
// match everything; IDs, when set, restricts to an explicit id set.
type MemberFilter struct {
	Active    *bool
	CheckedIn *bool
	IDs       []int64
}

// MutateFunc computes the mutation for one member. It runs with exclusive
// access to the member record: the *Member it receives is the authoritative
// current state, and any log entries it returns are appended in the same
// atomic unit as the member write. Returning an error aborts the whole unit.
type MutateFunc func(m *Member) ([]LogEntry, error)

// Store abstracts member and activity-log persistence. Implementations must
// guarantee that Mutate serializes concurrent calls for the same member id,
// and that member writes and their log entries commit together or not at all.
type Store interface {
	// GetMember returns the member or ErrMemberNotFound.
	GetMember(ctx context.Context, id int64) (*Member, error)

	// UpsertMember creates or replaces the identity fields of a member,
	// leaving attendance state untouched on update.
	UpsertMember(ctx context.Context, m Member) error

	// ListMembers returns members matching the filter, ordered by last
	// name then first name (roster order).
	ListMembers(ctx context.Context, filter MemberFilter) ([]Member, error)

	// Mutate runs fn under the member's exclusive lock and commits the
	// member write plus returned log entries as one atomic unit.
	Mutate(ctx context.Context, id int64, fn MutateFunc) error

	// MutateAll runs fn for every member matching the filter inside a
	// single atomic unit and reports how many members were visited.
	// Partial application is forbidden: an error from any fn leaves every
	// member untouched.
	MutateAll(ctx context.Context, filter MemberFilter, fn MutateFunc) (int, error)

	// AppendLog durably appends a standalone entry (failure audit paths
	// that mutate no member).
	AppendLog(ctx context.Context, e LogEntry) (LogEntry, error)

	// CountCheckedIn returns how many members are currently checked in,
	// optionally restricted to active members.
	CountCheckedIn(ctx context.Context, activeOnly bool) (int, error)

	// RecentLogs returns entries newest first, offset for paging.
	RecentLogs(ctx context.Context, limit, offset int) ([]LogEntry, error)
}
