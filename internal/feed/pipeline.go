// Package feed runs the one-way batch pass over a student's activity
// feed: raw-log every activity, classify it, and dispatch it to media
// download, an immediate sink write, or the deferred interval buffers
// that are paired and drained after the feed is exhausted.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bwsync/bwsync/internal/babybuddy"
	"github.com/bwsync/bwsync/internal/brightwheel"
	"github.com/bwsync/bwsync/internal/media"
)

// Source yields activities in chronological order, oldest first.
type Source interface {
	Next(ctx context.Context) bool
	Activity() *brightwheel.Activity
	Err() error
}

// MediaFetcher stores photo and video assets locally.
type MediaFetcher interface {
	FetchPhoto(ctx context.Context, a *brightwheel.Activity) (media.Result, error)
	FetchVideo(ctx context.Context, a *brightwheel.Activity) (media.Result, error)
}

// SinkWriter writes translated records to the destination log.
type SinkWriter interface {
	CreateNote(ctx context.Context, note babybuddy.Note, skipExisting bool) (babybuddy.WriteResult, error)
	CreateSleep(ctx context.Context, sleep babybuddy.Sleep, skipExisting bool) (babybuddy.WriteResult, error)
	CreateFeeding(ctx context.Context, feeding babybuddy.Feeding, skipExisting bool) (babybuddy.WriteResult, error)
	CreateChange(ctx context.Context, change babybuddy.Change, skipExisting bool) (babybuddy.WriteResult, error)
}

// Options controls one pipeline run. Immutable once constructed.
type Options struct {
	Window           Window
	SkipExisting     bool
	IgnoreSinkErrors bool
}

// Stats counts what a run did.
type Stats struct {
	Fetched          int
	Filtered         int
	Photos           int
	Videos           int
	MediaSkipped     int
	Written          int
	SinkSkipped      int
	ConflictsIgnored int
	PairWarnings     int
	Ignored          int
}

// Pipeline is the single-pass batch orchestrator. Strictly
// sequential: one activity is fully handled before the next is
// fetched. The two half-event buffers are the only deferred work.
type Pipeline struct {
	source  Source
	media   MediaFetcher
	sink    SinkWriter
	rawLog  *RawLog
	logger  *slog.Logger
	opts    Options
	insOuts []HalfEvent
	naps    []HalfEvent
	stored  []string
	stats   Stats
}

// New assembles a pipeline. The raw log must be open; the pipeline
// does not close it.
func New(source Source, fetcher MediaFetcher, sink SinkWriter, rawLog *RawLog, logger *slog.Logger, opts Options) *Pipeline {
	return &Pipeline{
		source: source,
		media:  fetcher,
		sink:   sink,
		rawLog: rawLog,
		logger: logger,
		opts:   opts,
	}
}

var tracer = otel.Tracer("bwsync/feed")

// Run consumes the whole feed and then drains the interval buffers.
// Feed errors are fatal; sink conflicts are soft when configured;
// pairing mismatches are only ever warnings.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	ctx, span := tracer.Start(ctx, "feed.run")
	defer span.End()

	if err := p.pass(ctx); err != nil {
		return p.stats, err
	}
	if err := p.drainAttendance(ctx); err != nil {
		return p.stats, err
	}
	if err := p.drainNaps(ctx); err != nil {
		return p.stats, err
	}

	span.SetAttributes(
		attribute.Int("fetched", p.stats.Fetched),
		attribute.Int("written", p.stats.Written),
	)
	return p.stats, nil
}

// StoredMedia returns the paths of media files stored during this
// run, in download order. Skipped (pre-existing) files are excluded.
func (p *Pipeline) StoredMedia() []string {
	return p.stored
}

func (p *Pipeline) pass(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "feed.pass")
	defer span.End()

	for p.source.Next(ctx) {
		a := p.source.Activity()

		// The raw log gets every fetched activity before any
		// interpretation, window filtering included.
		if err := p.rawLog.Append(a.Raw); err != nil {
			return err
		}
		p.stats.Fetched++

		action := Classify(a)

		if p.opts.Window.TooLate(a.EventDate) {
			// Ascending feed: everything from here on is out of range.
			p.logger.Info("reached activities past the window, stopping",
				"event_date", a.EventDate)
			p.stats.Filtered++
			break
		}
		if p.opts.Window.TooEarly(a.EventDate) {
			p.stats.Filtered++
			continue
		}

		if err := p.dispatch(ctx, a, action); err != nil {
			return err
		}
	}

	if err := p.source.Err(); err != nil {
		return fmt.Errorf("reading activity feed: %w", err)
	}
	return nil
}

func (p *Pipeline) dispatch(ctx context.Context, a *brightwheel.Activity, action Action) error {
	switch action.Kind {
	case ActionPhoto:
		res, err := p.media.FetchPhoto(ctx, a)
		if err != nil {
			return err
		}
		if res.Skipped {
			p.stats.MediaSkipped++
		} else {
			p.stats.Photos++
			p.stored = append(p.stored, res.Path)
		}
		return nil

	case ActionVideo:
		res, err := p.media.FetchVideo(ctx, a)
		if err != nil {
			return err
		}
		if res.Skipped {
			p.stats.MediaSkipped++
		} else {
			p.stats.Videos++
			p.stored = append(p.stored, res.Path)
		}
		return nil

	case ActionAttendance:
		p.insOuts = append(p.insOuts, HalfEvent{
			Time:   a.EventDate,
			Open:   action.Open,
			Report: a.DropoffReport,
		})
		return nil

	case ActionNap:
		p.naps = append(p.naps, HalfEvent{
			Time: a.EventDate,
			Open: action.Open,
			Note: a.Note,
		})
		return nil

	case ActionFeeding:
		return p.writeFeeding(ctx, a)

	case ActionPotty:
		return p.writePotty(ctx, a)

	case ActionObservation:
		note := babybuddy.Note{
			Time: babybuddy.Timestamp(a.EventDate),
			Tags: []string{babybuddy.ProvenanceTag},
			Note: fmt.Sprintf("%s: Observation: %s", babybuddy.NotePrefix, a.Note),
		}
		return p.writeRecord(ctx, "observation", func() (babybuddy.WriteResult, error) {
			return p.sink.CreateNote(ctx, note, p.opts.SkipExisting)
		})

	default:
		p.stats.Ignored++
		return nil
	}
}

func (p *Pipeline) writeFeeding(ctx context.Context, a *brightwheel.Activity) error {
	details, err := a.FoodDetails()
	if err != nil {
		// Unrecognized payload shape; treat as an ignorable activity.
		p.logger.Warn("food activity with unrecognized details payload, ignoring",
			"id", a.ObjectID, "error", err)
		p.stats.Ignored++
		return nil
	}

	isMilk := details.FoodType == "bottle"
	feeding := babybuddy.Feeding{
		Start:  babybuddy.Timestamp(a.EventDate),
		End:    babybuddy.Timestamp(a.EventDate),
		Amount: details.Amount,
		Tags:   []string{babybuddy.ProvenanceTag},
		Notes: fmt.Sprintf("%s: %s\n\n%s", babybuddy.NotePrefix, a.Note,
			strings.Join(a.MenuItemNames(), ",")),
	}
	if isMilk {
		feeding.Type = "breast milk"
		feeding.Method = "bottle"
	} else {
		feeding.Type = "solid food"
		feeding.Method = "self fed"
	}

	return p.writeRecord(ctx, "feeding", func() (babybuddy.WriteResult, error) {
		return p.sink.CreateFeeding(ctx, feeding, p.opts.SkipExisting)
	})
}

func (p *Pipeline) writePotty(ctx context.Context, a *brightwheel.Activity) error {
	details, err := a.PottyDetails()
	if err != nil {
		p.logger.Warn("potty activity with unrecognized details payload, ignoring",
			"id", a.ObjectID, "error", err)
		p.stats.Ignored++
		return nil
	}

	change := babybuddy.Change{
		Time:  babybuddy.Timestamp(a.EventDate),
		Wet:   contains(details.PottyExtras, "wet"),
		Solid: contains(details.PottyExtras, "bm"),
		Tags:  []string{babybuddy.ProvenanceTag},
		Notes: fmt.Sprintf("%s: %s", babybuddy.NotePrefix, a.Note),
	}

	return p.writeRecord(ctx, "change", func() (babybuddy.WriteResult, error) {
		return p.sink.CreateChange(ctx, change, p.opts.SkipExisting)
	})
}

func (p *Pipeline) drainAttendance(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "feed.pair_attendance")
	defer span.End()

	intervals := Pair(p.insOuts, p.logger)
	p.stats.PairWarnings += len(p.insOuts) - 2*len(intervals)

	for _, iv := range intervals {
		note := babybuddy.Note{
			Time: babybuddy.Timestamp(iv.End),
			Tags: []string{babybuddy.ProvenanceTag},
			Note: attendanceNote(iv),
		}
		err := p.writeRecord(ctx, "attendance", func() (babybuddy.WriteResult, error) {
			return p.sink.CreateNote(ctx, note, p.opts.SkipExisting)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) drainNaps(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "feed.pair_naps")
	defer span.End()

	intervals := Pair(p.naps, p.logger)
	p.stats.PairWarnings += len(p.naps) - 2*len(intervals)

	for _, iv := range intervals {
		sleep := babybuddy.Sleep{
			Start: babybuddy.Timestamp(iv.Start),
			End:   babybuddy.Timestamp(iv.End),
			Nap:   true,
			Tags:  []string{babybuddy.ProvenanceTag},
			Notes: fmt.Sprintf("%s: %s", babybuddy.NotePrefix, napNotes(iv)),
		}
		err := p.writeRecord(ctx, "nap", func() (babybuddy.WriteResult, error) {
			return p.sink.CreateSleep(ctx, sleep, p.opts.SkipExisting)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeRecord performs one sink write, downgrading conflict
// rejections to a logged skip when ignore mode is on. Any other
// failure is fatal to the run.
func (p *Pipeline) writeRecord(ctx context.Context, kind string, write func() (babybuddy.WriteResult, error)) error {
	_, span := tracer.Start(ctx, "sink.write",
		trace.WithAttributes(attribute.String("kind", kind)))
	defer span.End()

	result, err := write()
	if err != nil {
		var se *babybuddy.StatusError
		if p.opts.IgnoreSinkErrors && errors.As(err, &se) && se.IsConflict() {
			p.logger.Warn("sink rejected record, assuming it already exists",
				"kind", kind, "error", err)
			p.stats.ConflictsIgnored++
			return nil
		}
		return fmt.Errorf("writing %s record: %w", kind, err)
	}

	switch result {
	case babybuddy.Skipped:
		p.stats.SinkSkipped++
	default:
		p.stats.Written++
		p.logger.Info("wrote record", "kind", kind)
	}
	return nil
}

func attendanceNote(iv Interval) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: daycare check in at: %s, check out at: %s.",
		babybuddy.NotePrefix, localTime(iv.Start), localTime(iv.End))

	if iv.Report == nil {
		b.WriteString("\nDropoff report was blank")
		return b.String()
	}

	b.WriteString("\nDropoff report:")
	fmt.Fprintf(&b, "\n    Woke up at: %s", localTimePtr(iv.Report.WokeUp))
	fmt.Fprintf(&b, "\n    Last ate at: %s", localTimePtr(iv.Report.LastAte))
	fmt.Fprintf(&b, "\n    Last potty: %s", localTimePtr(iv.Report.LastPotty))
	fmt.Fprintf(&b, "\n    Pickup time: %s", localTimePtr(iv.Report.PickupTime))
	return b.String()
}

func napNotes(iv Interval) string {
	var parts []string
	if iv.StartNote != "" {
		parts = append(parts, "Start nap note: "+iv.StartNote)
	}
	if iv.EndNote != "" {
		parts = append(parts, "End nap note: "+iv.EndNote)
	}
	if len(parts) == 0 {
		return "No notes from daycare"
	}
	return strings.Join(parts, " ")
}

func localTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05 MST")
}

func localTimePtr(t *time.Time) string {
	if t == nil {
		return "not recorded"
	}
	return localTime(*t)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
