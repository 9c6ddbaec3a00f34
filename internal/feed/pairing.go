package feed

import (
	"log/slog"
	"time"

	"github.com/bwsync/bwsync/internal/brightwheel"
)

// HalfEvent is one side of a two-sided interval event: a check-in or
// check-out for attendance, a fall-asleep or wake-up for naps.
type HalfEvent struct {
	Time   time.Time
	Open   bool
	Note   string
	Report *brightwheel.DropoffReport
}

// Interval is a completed pairing of an adjacent open and close
// half-event. Report is only set for attendance intervals.
type Interval struct {
	Start     time.Time
	End       time.Time
	StartNote string
	EndNote   string
	Report    *brightwheel.DropoffReport
}

type pairState int

const (
	expectOpen pairState = iota
	awaitingClose
)

// Pair reduces an ordered half-event sequence into completed
// intervals. Malformed positions (a close with no open, two opens in
// a row, a trailing open) are logged and skipped; they never abort
// the reduction. The output is deterministic for a given input and
// holds at most floor(n/2) intervals.
func Pair(events []HalfEvent, logger *slog.Logger) []Interval {
	intervals := make([]Interval, 0, len(events)/2)

	state := expectOpen
	var open HalfEvent

	for _, ev := range events {
		switch state {
		case expectOpen:
			if !ev.Open {
				logger.Warn("mismatched half-event: close with no preceding open, skipping",
					"time", ev.Time)
				continue
			}
			open = ev
			state = awaitingClose

		case awaitingClose:
			if ev.Open {
				// The skipped open is re-examined as a new start.
				logger.Warn("mismatched half-event: open followed by open, skipping the first",
					"skipped", open.Time, "next", ev.Time)
				open = ev
				continue
			}
			intervals = append(intervals, Interval{
				Start:     open.Time,
				End:       ev.Time,
				StartNote: open.Note,
				EndNote:   ev.Note,
				Report:    reportWithDefaults(open.Report, open.Time),
			})
			state = expectOpen
		}
	}

	if state == awaitingClose {
		logger.Warn("mismatched half-event: trailing open with no close, dropping",
			"time", open.Time)
	}

	return intervals
}

// reportWithDefaults copies a dropoff report, filling its optional
// timestamps with the open event's own time when the school left them
// blank. The original report is never mutated.
func reportWithDefaults(report *brightwheel.DropoffReport, openTime time.Time) *brightwheel.DropoffReport {
	if report == nil {
		return nil
	}

	filled := *report
	if filled.WokeUp == nil {
		t := openTime
		filled.WokeUp = &t
	}
	if filled.LastAte == nil {
		t := openTime
		filled.LastAte = &t
	}
	if filled.LastPotty == nil {
		t := openTime
		filled.LastPotty = &t
	}
	return &filled
}
