// Package tui renders the CLI's user-facing output: styled narration,
// download progress bars, and the end-of-run summary. Structured logs
// go to stderr; this package owns stdout.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
)

// Colors
var (
	accent  = lipgloss.Color("#5FAFFF")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	warning = lipgloss.Color("#FFAF00")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(warning)
)

// PrintHeader renders the run banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  BWSYNC") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Brightwheel → Baby Buddy activity sync"))
	fmt.Println()
}

// Info narrates one progress line.
func Info(msg string) {
	fmt.Println(mutedStyle.Render("  " + msg))
}

// Warn narrates a non-fatal problem.
func Warn(msg string) {
	fmt.Println(warnStyle.Render("  ! " + msg))
}

// Student is one candidate subject for the pick-a-student listing.
type Student struct {
	ID        string
	FirstName string
	LastName  string
}

// PrintStudents lists candidate students so the caller can re-invoke
// with an explicit id.
func PrintStudents(students []Student) {
	fmt.Println()
	fmt.Println(accentStyle.Render("▸ STUDENTS"))
	for _, s := range students {
		fmt.Printf("  %s  %s\n",
			titleStyle.Render(s.ID),
			mutedStyle.Render(s.FirstName+" "+s.LastName))
	}
	fmt.Println()
}

// Summary holds the counters shown at the end of a run.
type Summary struct {
	Fetched          int
	Photos           int
	Videos           int
	MediaSkipped     int
	Written          int
	SinkSkipped      int
	ConflictsIgnored int
	PairWarnings     int
	Duration         time.Duration
}

// PrintSummary renders the end-of-run counters.
func PrintSummary(s Summary) {
	fmt.Println()
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Printf("  %s %s\n", successStyle.Render("✓"), titleStyle.Render("Sync complete"))
	fmt.Printf("  %s %d activities in %s\n", mutedStyle.Render("Fetched:"), s.Fetched, formatDuration(s.Duration))
	fmt.Printf("  %s %d photos, %d videos (%d already present)\n",
		mutedStyle.Render("Media:"), s.Photos, s.Videos, s.MediaSkipped)
	fmt.Printf("  %s %d written, %d skipped, %d conflicts ignored\n",
		mutedStyle.Render("Sink:"), s.Written, s.SinkSkipped, s.ConflictsIgnored)
	if s.PairWarnings > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  %d mismatched half-events dropped", s.PairWarnings)))
	}
	fmt.Println(mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Println()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// ShowProgress creates a progress bar for a byte transfer.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
