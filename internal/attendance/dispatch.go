package attendance

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/FRC5892/HeroHours/internal/observe"
)

// ErrEmptyInput is returned for blank input. No log entry is written in this
// case: there is no member context to audit, and the surrounding layer
// reports the error code directly.
var ErrEmptyInput = errors.New("no input provided")

// ControlAction identifies a reserved command that routes outside the
// attendance stores entirely.
type ControlAction string

const (
	ControlRefresh ControlAction = "refresh"
	ControlAdmin   ControlAction = "admin"
	ControlLogout  ControlAction = "logout"
	ControlSend    ControlAction = "send"
)

// Reserved input tokens. Kept byte-for-byte compatible with the kiosk
// keypads already in the field.
const (
	tokenSend         = "Send"
	tokenAdmin        = "admin"
	tokenLogout       = "---"
	tokenBulkCheckIn  = "-404"
	tokenBulkCheckOut = "+404"
)

var refreshTokens = map[string]bool{
	"+00": true,
	"+01": true,
	"*":   true,
}

// OutcomeKind says which path a dispatch took.
type OutcomeKind string

const (
	OutcomeControl    OutcomeKind = "control"
	OutcomeBulk       OutcomeKind = "bulk"
	OutcomeTransition OutcomeKind = "transition"
)

// Outcome is the structured result of one dispatch attempt.
type Outcome struct {
	Kind    OutcomeKind
	Control ControlAction
	TransitionResult
}

// Dispatcher classifies raw kiosk input and routes it to the transition or
// bulk engine. It is the single entry point for interactive member input.
type Dispatcher struct {
	engine *Engine
}

// NewDispatcher creates a dispatcher over an engine.
func NewDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// Dispatch trims and classifies input, then routes it.
//
// Control tokens return without touching the stores. Bulk tokens run a whole
// batch. Anything else is treated as a member id: a parse failure is audited
// as Invalid Input, a valid id goes to the transition engine. Blank input
// fails with ErrEmptyInput and leaves no audit entry.
func (d *Dispatcher) Dispatch(ctx context.Context, rawInput string, now time.Time) (Outcome, error) {
	input := strings.TrimSpace(rawInput)
	if input == "" {
		return Outcome{}, ErrEmptyInput
	}

	if action, ok := controlAction(input); ok {
		return Outcome{Kind: OutcomeControl, Control: action}, nil
	}

	if input == tokenBulkCheckIn || input == tokenBulkCheckOut {
		direction := CheckOutAll
		if input == tokenBulkCheckIn {
			direction = CheckInAll
		}
		if _, err := d.engine.BulkTransition(ctx, direction, now); err != nil {
			return Outcome{Kind: OutcomeBulk, TransitionResult: TransitionResult{Status: StatusError, Operation: OpNone}}, err
		}
		count, err := d.engine.CountCheckedIn(ctx, true)
		if err != nil {
			return Outcome{Kind: OutcomeBulk, TransitionResult: TransitionResult{Status: StatusError, Operation: OpNone}}, err
		}
		return Outcome{Kind: OutcomeBulk, TransitionResult: TransitionResult{Status: StatusSuccess, Count: count}}, nil
	}

	// Fetch the count once up front; the transition result adjusts it by
	// its own delta instead of re-counting the roster.
	count, err := d.engine.CountCheckedIn(ctx, true)
	if err != nil {
		res, ferr := d.engine.fault(ctx, input, now, 0, err)
		return Outcome{Kind: OutcomeTransition, TransitionResult: res}, ferr
	}

	memberID, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		entry, logErr := d.engine.store.AppendLog(ctx, LogEntry{
			Entered:   input,
			Operation: OpNone,
			Status:    StatusInvalidInput,
			Timestamp: now,
		})
		if logErr != nil {
			res, ferr := d.engine.fault(ctx, input, now, count, logErr)
			return Outcome{Kind: OutcomeTransition, TransitionResult: res}, ferr
		}
		observe.Transitions.WithLabelValues(string(OpNone), string(StatusInvalidInput)).Inc()
		return Outcome{
			Kind: OutcomeTransition,
			TransitionResult: TransitionResult{
				Status:    StatusInvalidInput,
				Operation: OpNone,
				Entry:     &entry,
				Count:     count,
			},
		}, nil
	}

	res, err := d.engine.Transition(ctx, memberID, now, count)
	return Outcome{Kind: OutcomeTransition, TransitionResult: res}, err
}

func controlAction(input string) (ControlAction, bool) {
	if refreshTokens[input] {
		return ControlRefresh, true
	}
	switch input {
	case tokenSend:
		return ControlSend, true
	case tokenAdmin:
		return ControlAdmin, true
	case tokenLogout:
		return ControlLogout, true
	}
	return "", false
}
