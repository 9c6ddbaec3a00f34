package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwsync/bwsync/internal/babybuddy"
	"github.com/bwsync/bwsync/internal/brightwheel"
	"github.com/bwsync/bwsync/internal/media"
)

type fakeSource struct {
	activities []*brightwheel.Activity
	pos        int
	err        error
}

func (s *fakeSource) Next(ctx context.Context) bool {
	if s.pos >= len(s.activities) {
		return false
	}
	s.pos++
	return true
}

func (s *fakeSource) Activity() *brightwheel.Activity { return s.activities[s.pos-1] }
func (s *fakeSource) Err() error                      { return s.err }

type fakeMedia struct {
	photos  int
	videos  int
	skipAll bool
}

func (m *fakeMedia) FetchPhoto(ctx context.Context, a *brightwheel.Activity) (media.Result, error) {
	m.photos++
	return media.Result{Path: fmt.Sprintf("photo-%d.jpg", m.photos), Skipped: m.skipAll}, nil
}

func (m *fakeMedia) FetchVideo(ctx context.Context, a *brightwheel.Activity) (media.Result, error) {
	m.videos++
	return media.Result{Path: fmt.Sprintf("video-%d.mp4", m.videos), Skipped: m.skipAll}, nil
}

type sinkCall struct {
	kind    string
	note    babybuddy.Note
	sleep   babybuddy.Sleep
	feeding babybuddy.Feeding
	change  babybuddy.Change
}

type fakeSink struct {
	calls  []sinkCall
	result babybuddy.WriteResult
	err    error
}

func (s *fakeSink) CreateNote(ctx context.Context, note babybuddy.Note, skipExisting bool) (babybuddy.WriteResult, error) {
	s.calls = append(s.calls, sinkCall{kind: "note", note: note})
	return s.result, s.err
}

func (s *fakeSink) CreateSleep(ctx context.Context, sleep babybuddy.Sleep, skipExisting bool) (babybuddy.WriteResult, error) {
	s.calls = append(s.calls, sinkCall{kind: "sleep", sleep: sleep})
	return s.result, s.err
}

func (s *fakeSink) CreateFeeding(ctx context.Context, feeding babybuddy.Feeding, skipExisting bool) (babybuddy.WriteResult, error) {
	s.calls = append(s.calls, sinkCall{kind: "feeding", feeding: feeding})
	return s.result, s.err
}

func (s *fakeSink) CreateChange(ctx context.Context, change babybuddy.Change, skipExisting bool) (babybuddy.WriteResult, error) {
	s.calls = append(s.calls, sinkCall{kind: "change", change: change})
	return s.result, s.err
}

func tempRawLog(t *testing.T) *RawLog {
	t.Helper()
	log, err := OpenRawLog(filepath.Join(t.TempDir(), "raw.jsonl"))
	if err != nil {
		t.Fatalf("OpenRawLog: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func activity(action, state string, eventDate time.Time) *brightwheel.Activity {
	a := &brightwheel.Activity{
		ObjectID:   fmt.Sprintf("%s-%s-%d", action, state, eventDate.Unix()),
		ActionType: action,
		State:      state,
		EventDate:  eventDate,
	}
	a.Raw, _ = json.Marshal(a)
	return a
}

func TestPipeline_FullDay(t *testing.T) {
	day := time.Date(2025, 8, 4, 0, 0, 0, 0, time.UTC)

	checkin := activity(brightwheel.ActionTypeCheckin, brightwheel.StateCheckin, day.Add(8*time.Hour))
	checkin.DropoffReport = &brightwheel.DropoffReport{}
	napStart := activity(brightwheel.ActionTypeNap, brightwheel.StateNapAsleep, day.Add(12*time.Hour))
	napStart.Note = "went down easy"
	napEnd := activity(brightwheel.ActionTypeNap, brightwheel.StateNapWakeUp, day.Add(13*time.Hour))
	food := activity(brightwheel.ActionTypeFood, "", day.Add(11*time.Hour))
	food.DetailsBlob = json.RawMessage(`{"amount":4,"food_type":"bottle","amount_type":"oz"}`)
	potty := activity(brightwheel.ActionTypePotty, "", day.Add(10*time.Hour))
	potty.DetailsBlob = json.RawMessage(`{"potty":"diaper","potty_extras":["wet","bm"]}`)
	photo := activity("ac_photo", "", day.Add(9*time.Hour))
	photo.Media = &brightwheel.Media{ImageURL: "https://cdn.example.com/p.jpg"}
	ignored := activity("ac_temperature", "", day.Add(9*time.Hour))
	checkout := activity(brightwheel.ActionTypeCheckin, "2", day.Add(17*time.Hour))

	source := &fakeSource{activities: []*brightwheel.Activity{
		checkin, photo, ignored, potty, food, napStart, napEnd, checkout,
	}}
	fetcher := &fakeMedia{}
	sink := &fakeSink{result: babybuddy.Written}

	pipeline := New(source, fetcher, sink, tempRawLog(t), testLogger(), Options{})
	stats, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Fetched != 8 {
		t.Errorf("Fetched = %d, want 8", stats.Fetched)
	}
	if stats.Photos != 1 || fetcher.photos != 1 {
		t.Errorf("Photos = %d (fetcher saw %d), want 1", stats.Photos, fetcher.photos)
	}
	if stats.Ignored != 1 {
		t.Errorf("Ignored = %d, want 1", stats.Ignored)
	}
	// potty + feeding during the pass, attendance note + nap sleep after.
	if stats.Written != 4 {
		t.Errorf("Written = %d, want 4", stats.Written)
	}
	if stats.PairWarnings != 0 {
		t.Errorf("PairWarnings = %d, want 0", stats.PairWarnings)
	}
	if got := pipeline.StoredMedia(); len(got) != 1 || got[0] != "photo-1.jpg" {
		t.Errorf("StoredMedia() = %v, want the one photo", got)
	}

	var kinds []string
	for _, c := range sink.calls {
		kinds = append(kinds, c.kind)
	}
	want := []string{"change", "feeding", "note", "sleep"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("sink calls = %v, want %v", kinds, want)
	}

	feeding := sink.calls[1].feeding
	if feeding.Type != "breast milk" || feeding.Method != "bottle" {
		t.Errorf("bottle feeding translated as %q/%q", feeding.Type, feeding.Method)
	}
	if feeding.Amount != 4 {
		t.Errorf("feeding amount = %v, want 4", feeding.Amount)
	}

	change := sink.calls[0].change
	if !change.Wet || !change.Solid {
		t.Errorf("change wet=%v solid=%v, want both true", change.Wet, change.Solid)
	}

	attendance := sink.calls[2].note
	if !strings.Contains(attendance.Note, "daycare check in at:") {
		t.Errorf("attendance note missing the check-in line: %q", attendance.Note)
	}
	if !strings.Contains(attendance.Note, "Woke up at:") {
		t.Errorf("attendance note missing the dropoff report: %q", attendance.Note)
	}

	sleep := sink.calls[3].sleep
	if !sleep.Nap {
		t.Error("nap interval written with Nap=false")
	}
	if !strings.Contains(sleep.Notes, "Start nap note: went down easy") {
		t.Errorf("sleep notes = %q, want the start nap note", sleep.Notes)
	}
}

func TestPipeline_RawLogBeforeFilter(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 8, d, 9, 0, 0, 0, time.UTC) }

	early := activity(brightwheel.ActionTypePotty, "", day(1))
	early.DetailsBlob = json.RawMessage(`{"potty_extras":["wet"]}`)
	inside := activity(brightwheel.ActionTypePotty, "", day(10))
	inside.DetailsBlob = json.RawMessage(`{"potty_extras":["wet"]}`)
	late := activity(brightwheel.ActionTypePotty, "", day(25))
	unreached := activity(brightwheel.ActionTypePotty, "", day(26))

	path := filepath.Join(t.TempDir(), "raw.jsonl")
	rawLog, err := OpenRawLog(path)
	if err != nil {
		t.Fatal(err)
	}

	source := &fakeSource{activities: []*brightwheel.Activity{early, inside, late, unreached}}
	sink := &fakeSink{result: babybuddy.Written}
	opts := Options{Window: Window{
		Since:  time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC),
		Before: time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
	}}

	pipeline := New(source, &fakeMedia{}, sink, rawLog, testLogger(), opts)
	stats, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rawLog.Close()

	// The too-early activity is filtered but still logged; the first
	// too-late one stops the pass, so the fourth is never fetched.
	if stats.Fetched != 3 {
		t.Errorf("Fetched = %d, want 3", stats.Fetched)
	}
	if stats.Filtered != 2 {
		t.Errorf("Filtered = %d, want 2", stats.Filtered)
	}
	if stats.Written != 1 {
		t.Errorf("Written = %d, want 1", stats.Written)
	}
	if len(sink.calls) != 1 {
		t.Fatalf("sink saw %d calls, want only the in-window change", len(sink.calls))
	}

	data, err := readLines(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 3 {
		t.Errorf("raw log holds %d lines, want 3 (every fetched activity)", len(data))
	}
}

func TestPipeline_ConflictHandling(t *testing.T) {
	day := time.Date(2025, 8, 4, 9, 0, 0, 0, time.UTC)
	obs := activity(brightwheel.ActionTypeObservation, "", day)
	obs.Note = "stacked blocks"

	conflict := &babybuddy.StatusError{StatusCode: 400, URL: "http://sink/api/notes/"}

	t.Run("fatal by default", func(t *testing.T) {
		source := &fakeSource{activities: []*brightwheel.Activity{obs}}
		sink := &fakeSink{err: conflict}
		pipeline := New(source, &fakeMedia{}, sink, tempRawLog(t), testLogger(), Options{})

		_, err := pipeline.Run(context.Background())
		if err == nil {
			t.Fatal("conflict did not fail the run")
		}
	})

	t.Run("downgraded when ignoring", func(t *testing.T) {
		source := &fakeSource{activities: []*brightwheel.Activity{obs}}
		sink := &fakeSink{err: conflict}
		pipeline := New(source, &fakeMedia{}, sink, tempRawLog(t), testLogger(),
			Options{IgnoreSinkErrors: true})

		stats, err := pipeline.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if stats.ConflictsIgnored != 1 {
			t.Errorf("ConflictsIgnored = %d, want 1", stats.ConflictsIgnored)
		}
		if stats.Written != 0 {
			t.Errorf("Written = %d, want 0", stats.Written)
		}
	})
}

func TestPipeline_SkippedMediaNotStored(t *testing.T) {
	day := time.Date(2025, 8, 4, 9, 0, 0, 0, time.UTC)
	photo := activity("ac_photo", "", day)
	photo.Media = &brightwheel.Media{ImageURL: "https://cdn.example.com/p.jpg"}

	source := &fakeSource{activities: []*brightwheel.Activity{photo}}
	pipeline := New(source, &fakeMedia{skipAll: true}, &fakeSink{}, tempRawLog(t), testLogger(), Options{})

	stats, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.MediaSkipped != 1 || stats.Photos != 0 {
		t.Errorf("MediaSkipped = %d, Photos = %d, want 1 and 0", stats.MediaSkipped, stats.Photos)
	}
	if got := pipeline.StoredMedia(); len(got) != 0 {
		t.Errorf("StoredMedia() = %v, want empty for a skipped download", got)
	}
}

func TestPipeline_MalformedFoodPayloadIgnored(t *testing.T) {
	day := time.Date(2025, 8, 4, 9, 0, 0, 0, time.UTC)
	food := activity(brightwheel.ActionTypeFood, "", day)
	food.DetailsBlob = json.RawMessage(`"not an object"`)

	source := &fakeSource{activities: []*brightwheel.Activity{food}}
	sink := &fakeSink{result: babybuddy.Written}
	pipeline := New(source, &fakeMedia{}, sink, tempRawLog(t), testLogger(), Options{})

	stats, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Ignored != 1 {
		t.Errorf("Ignored = %d, want 1", stats.Ignored)
	}
	if len(sink.calls) != 0 {
		t.Errorf("sink saw %d calls for a malformed payload", len(sink.calls))
	}
}

func TestPipeline_UnmatchedHalfEventsWarned(t *testing.T) {
	day := time.Date(2025, 8, 4, 0, 0, 0, 0, time.UTC)
	napStart := activity(brightwheel.ActionTypeNap, brightwheel.StateNapAsleep, day.Add(12*time.Hour))
	checkin := activity(brightwheel.ActionTypeCheckin, brightwheel.StateCheckin, day.Add(8*time.Hour))

	source := &fakeSource{activities: []*brightwheel.Activity{checkin, napStart}}
	sink := &fakeSink{result: babybuddy.Written}
	pipeline := New(source, &fakeMedia{}, sink, tempRawLog(t), testLogger(), Options{})

	stats, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PairWarnings != 2 {
		t.Errorf("PairWarnings = %d, want 2 (one dangling open per buffer)", stats.PairWarnings)
	}
	if len(sink.calls) != 0 {
		t.Errorf("sink saw %d calls, want none from unpaired halves", len(sink.calls))
	}
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}
