package feed

import (
	"time"

	"github.com/bwsync/bwsync/internal/brightwheel"
)

// ActionKind routes an activity to its handler.
type ActionKind int

const (
	// ActionIgnore covers every discriminator this tool does not
	// translate. It is the default, never an error.
	ActionIgnore ActionKind = iota
	ActionPhoto
	ActionVideo
	ActionAttendance
	ActionNap
	ActionFeeding
	ActionPotty
	ActionObservation
)

func (k ActionKind) String() string {
	switch k {
	case ActionPhoto:
		return "photo"
	case ActionVideo:
		return "video"
	case ActionAttendance:
		return "attendance"
	case ActionNap:
		return "nap"
	case ActionFeeding:
		return "feeding"
	case ActionPotty:
		return "potty"
	case ActionObservation:
		return "observation"
	default:
		return "ignore"
	}
}

// Action is the classifier's verdict for one activity. Open is only
// meaningful for the two-sided kinds (attendance, nap).
type Action struct {
	Kind ActionKind
	Open bool
}

// Classify inspects an activity and decides how it is handled. Media
// presence wins over the action type discriminator: the feed attaches
// photos and videos to activities of several types.
func Classify(a *brightwheel.Activity) Action {
	if a.Media != nil && a.Media.ImageURL != "" {
		return Action{Kind: ActionPhoto}
	}
	if a.VideoInfo != nil && a.VideoInfo.DownloadableURL != "" {
		return Action{Kind: ActionVideo}
	}

	switch a.ActionType {
	case brightwheel.ActionTypeCheckin:
		return Action{Kind: ActionAttendance, Open: a.State == brightwheel.StateCheckin}
	case brightwheel.ActionTypeNap:
		return Action{Kind: ActionNap, Open: a.State == brightwheel.StateNapAsleep}
	case brightwheel.ActionTypeFood:
		return Action{Kind: ActionFeeding}
	case brightwheel.ActionTypePotty:
		return Action{Kind: ActionPotty}
	case brightwheel.ActionTypeObservation:
		return Action{Kind: ActionObservation}
	default:
		return Action{Kind: ActionIgnore}
	}
}

// Window restricts processing to a date range at day granularity.
// Zero bounds are open. Activities outside the window still reach the
// raw log; they are only excluded from dispatch.
type Window struct {
	Since  time.Time
	Before time.Time
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// TooEarly reports whether t falls strictly before the window.
func (w Window) TooEarly(t time.Time) bool {
	return !w.Since.IsZero() && dayOf(t).Before(dayOf(w.Since))
}

// TooLate reports whether t falls strictly after the window. With an
// ascending feed this is also the short-circuit condition: everything
// after the first too-late activity is too late as well.
func (w Window) TooLate(t time.Time) bool {
	return !w.Before.IsZero() && dayOf(t).After(dayOf(w.Before))
}
