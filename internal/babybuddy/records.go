package babybuddy

import "time"

// ProvenanceTag marks every record written by this tool so later runs
// can find them with the existence query.
const ProvenanceTag = "Brightwheel"

// NotePrefix opens every free-text note body written to the sink.
const NotePrefix = "Imported from Brightwheel"

// Timestamp renders times the way the upstream feed does: UTC with
// millisecond precision and a Z suffix.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Note is a free-text note record (observations, attendance days).
type Note struct {
	Child int      `json:"child"`
	Time  string   `json:"time"`
	Tags  []string `json:"tags"`
	Note  string   `json:"note"`
}

// Sleep is one sleep interval.
type Sleep struct {
	Child int      `json:"child"`
	Start string   `json:"start"`
	End   string   `json:"end"`
	Nap   bool     `json:"nap"`
	Tags  []string `json:"tags"`
	Notes string   `json:"notes"`
}

// Feeding is one feeding event. The destination wants an interval, so
// point-in-time feedings use the same start and end.
type Feeding struct {
	Child  int      `json:"child"`
	Start  string   `json:"start"`
	End    string   `json:"end"`
	Type   string   `json:"type"`
	Method string   `json:"method"`
	Amount float64  `json:"amount"`
	Tags   []string `json:"tags"`
	Notes  string   `json:"notes"`
}

// Change is one diaper change.
type Change struct {
	Child int      `json:"child"`
	Time  string   `json:"time"`
	Wet   bool     `json:"wet"`
	Solid bool     `json:"solid"`
	Tags  []string `json:"tags"`
	Notes string   `json:"notes"`
}
