// bwsync - Brightwheel to Baby Buddy activity sync.
// Downloads a child's photos and videos with capture-time metadata
// and mirrors daily events (attendance, naps, meals, diaper changes,
// observations) into a Baby Buddy instance.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bwsync/bwsync/internal/brightwheel"
	"github.com/bwsync/bwsync/pkg/config"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bwsync",
	Short: "Sync a Brightwheel activity feed into Baby Buddy",
	Long: `bwsync logs into the Brightwheel childcare service, walks a child's
activity feed oldest-first, downloads photos and videos with the
original capture time embedded as EXIF metadata, and re-posts
normalized events (attendance days, naps, feedings, diaper changes,
observations) into a Baby Buddy instance.

Every fetched activity is also appended verbatim to a per-student
JSONL raw log before interpretation, so a run can always be replayed
by hand.

Configuration is layered: defaults, then ~/.bwsync/config.yaml (or
--config), then BWSYNC_*/BABYBUDDY_* environment variables, then
flags.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.bwsync/config.yaml)")
}

// login runs the 2FA probe and the session login, prompting on stdin
// for a code when the account requires one.
func login(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*brightwheel.Client, error) {
	bwCfg := brightwheel.DefaultConfig()
	if cfg.Brightwheel.PageSize > 0 {
		bwCfg.PageSize = cfg.Brightwheel.PageSize
	}

	client, err := brightwheel.NewClient(bwCfg, logger)
	if err != nil {
		return nil, err
	}

	challenge, err := client.Trigger2FA(ctx, cfg.Brightwheel.Email, cfg.Brightwheel.Password)
	if err != nil {
		return nil, err
	}

	var code string
	if challenge.Required {
		hint := ""
		if len(challenge.SentTo) > 0 {
			hint = " (sent to " + challenge.SentTo[0] + ")"
		}
		fmt.Printf("Enter 2FA code%s: ", hint)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading 2fa code: %w", err)
		}
		code = strings.TrimSpace(line)
	}

	if err := client.Login(ctx, cfg.Brightwheel.Email, cfg.Brightwheel.Password, code); err != nil {
		return nil, err
	}
	return client, nil
}
