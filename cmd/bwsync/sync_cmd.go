package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bwsync/bwsync/internal/archive"
	"github.com/bwsync/bwsync/internal/babybuddy"
	"github.com/bwsync/bwsync/internal/brightwheel"
	"github.com/bwsync/bwsync/internal/feed"
	"github.com/bwsync/bwsync/internal/media"
	"github.com/bwsync/bwsync/pkg/config"
	"github.com/bwsync/bwsync/pkg/logging"
	"github.com/bwsync/bwsync/pkg/telemetry"
	"github.com/bwsync/bwsync/pkg/tui"
)

var (
	syncEmail        string
	syncPassword     string
	syncDirectory    string
	syncBabyURL      string
	syncBabyToken    string
	syncBabyChildID  int
	syncStudentID    string
	syncSince        string
	syncBefore       string
	syncSkipExisting bool
	syncIgnoreErrors bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one batch pass over the activity feed",
	Long: `Run a single batch pass: fetch every activity for the student,
append each one to the raw log, download media, and write normalized
events to Baby Buddy. Attendance and nap half-events are buffered
during the pass and paired into completed intervals at the end.

Examples:
  # Everything, with credentials from the config file
  bwsync sync

  # A bounded re-run that skips anything already present
  bwsync sync --since 2025-08-01 --before 2025-08-31 --skip-existing

  # Tolerate duplicate rejections from Baby Buddy
  bwsync sync --skip-existing --ignore-errors`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncEmail, "email", "", "Brightwheel account email")
	syncCmd.Flags().StringVar(&syncPassword, "password", "", "Brightwheel account password")
	syncCmd.Flags().StringVarP(&syncDirectory, "directory", "d", "", "Directory for downloaded media")
	syncCmd.Flags().StringVar(&syncBabyURL, "babybuddy-url", "", "Baby Buddy base URL, e.g. https://baby.example.com")
	syncCmd.Flags().StringVar(&syncBabyToken, "babybuddy-token", "", "Baby Buddy API token")
	syncCmd.Flags().IntVar(&syncBabyChildID, "babybuddy-child-id", 0, "Baby Buddy child id")
	syncCmd.Flags().StringVar(&syncStudentID, "student-id", "", "Brightwheel student id (required when the account has several)")
	syncCmd.Flags().StringVar(&syncSince, "since", "", "Skip activities before this date (YYYY-MM-DD)")
	syncCmd.Flags().StringVar(&syncBefore, "before", "", "Stop at activities after this date (YYYY-MM-DD)")
	syncCmd.Flags().BoolVar(&syncSkipExisting, "skip-existing", false, "Skip media and records that already exist")
	syncCmd.Flags().BoolVar(&syncIgnoreErrors, "ignore-errors", false, "Treat Baby Buddy 400 rejections as already-synced")

	rootCmd.AddCommand(syncCmd)
}

func syncConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if syncEmail != "" {
		cfg.Brightwheel.Email = syncEmail
	}
	if syncPassword != "" {
		cfg.Brightwheel.Password = syncPassword
	}
	if syncDirectory != "" {
		cfg.Media.Directory = syncDirectory
	}
	if syncBabyURL != "" {
		cfg.BabyBuddy.URL = syncBabyURL
	}
	if syncBabyToken != "" {
		cfg.BabyBuddy.Token = syncBabyToken
	}
	if syncBabyChildID != 0 {
		cfg.BabyBuddy.ChildID = syncBabyChildID
	}
	if syncStudentID != "" {
		cfg.Brightwheel.StudentID = syncStudentID
	}
	if syncSince != "" {
		cfg.Sync.Since = syncSince
	}
	if syncBefore != "" {
		cfg.Sync.Before = syncBefore
	}
	if cmd.Flags().Changed("skip-existing") {
		cfg.Sync.SkipExisting = syncSkipExisting
	}
	if cmd.Flags().Changed("ignore-errors") {
		cfg.Sync.IgnoreErrors = syncIgnoreErrors
	}

	return cfg, cfg.ValidateSync()
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := syncConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	logger = logger.With("run_id", runID)

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version, runID)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	tui.PrintHeader(version)
	start := time.Now()

	if err := os.MkdirAll(cfg.Media.Directory, 0o755); err != nil {
		return fmt.Errorf("creating media directory: %w", err)
	}

	client, err := login(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, brightwheel.ErrAuthFailed) {
			return fmt.Errorf("login failed: %w", err)
		}
		return err
	}

	studentID, err := resolveStudent(ctx, client, cfg.Brightwheel.StudentID)
	if err != nil {
		return err
	}
	tui.Info("syncing student " + studentID)

	rawLog, err := feed.OpenRawLog(feed.RawLogPath(studentID))
	if err != nil {
		return err
	}
	defer rawLog.Close()

	since, _ := config.ParseDate(cfg.Sync.Since)
	before, _ := config.ParseDate(cfg.Sync.Before)

	fetcher := media.NewFetcher(media.Config{
		Directory:    cfg.Media.Directory,
		SkipExisting: cfg.Sync.SkipExisting,
		ShowProgress: true,
	}, client, logger)

	sink := babybuddy.NewClient(babybuddy.Config{
		BaseURL: cfg.BabyBuddy.URL,
		Token:   cfg.BabyBuddy.Token,
		ChildID: cfg.BabyBuddy.ChildID,
	}, logger)

	pipeline := feed.New(client.Activities(studentID), fetcher, sink, rawLog, logger, feed.Options{
		Window:           feed.Window{Since: since, Before: before},
		SkipExisting:     cfg.Sync.SkipExisting,
		IgnoreSinkErrors: cfg.Sync.IgnoreErrors,
	})

	stats, runErr := pipeline.Run(ctx)

	tui.PrintSummary(tui.Summary{
		Fetched:          stats.Fetched,
		Photos:           stats.Photos,
		Videos:           stats.Videos,
		MediaSkipped:     stats.MediaSkipped,
		Written:          stats.Written,
		SinkSkipped:      stats.SinkSkipped,
		ConflictsIgnored: stats.ConflictsIgnored,
		PairWarnings:     stats.PairWarnings,
		Duration:         time.Since(start),
	})
	if runErr != nil {
		return runErr
	}

	// The mirror is best-effort: a failed upload must not turn a
	// completed sync into a failed run.
	if cfg.Archive.Enabled {
		archiver, err := archive.New(ctx, cfg.Archive, logger)
		if err != nil {
			logger.Warn("archive setup failed", "error", err)
			tui.Warn("archive mirror skipped: " + err.Error())
			return nil
		}
		artifacts := append(pipeline.StoredMedia(), feed.RawLogPath(studentID))
		if err := archiver.Mirror(ctx, artifacts); err != nil {
			logger.Warn("archive mirror failed", "error", err)
			tui.Warn("archive mirror failed: " + err.Error())
			return nil
		}
		tui.Info(fmt.Sprintf("mirrored %d artifacts to s3://%s", len(artifacts), cfg.Archive.Bucket))
	}

	return nil
}

// resolveStudent picks the student to sync. With no explicit id and
// several candidates, the tool lists them and stops so the caller can
// re-invoke with --student-id.
func resolveStudent(ctx context.Context, client *brightwheel.Client, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	students, err := client.Students(ctx)
	if err != nil {
		return "", err
	}
	if len(students) == 0 {
		return "", fmt.Errorf("no students associated with this account")
	}
	if len(students) > 1 {
		listing := make([]tui.Student, 0, len(students))
		for _, s := range students {
			listing = append(listing, tui.Student{ID: s.ObjectID, FirstName: s.FirstName, LastName: s.LastName})
		}
		tui.PrintStudents(listing)
		return "", fmt.Errorf("multiple students found: re-run with --student-id")
	}
	return students[0].ObjectID, nil
}
