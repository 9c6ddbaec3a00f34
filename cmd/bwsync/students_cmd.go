package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bwsync/bwsync/pkg/config"
	"github.com/bwsync/bwsync/pkg/logging"
	"github.com/bwsync/bwsync/pkg/tui"
)

var (
	studentsEmail    string
	studentsPassword string
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List the students associated with the account",
	Long: `Log in and list every student the account can see, with the ids
accepted by sync --student-id.`,
	RunE: runStudents,
}

func init() {
	studentsCmd.Flags().StringVar(&studentsEmail, "email", "", "Brightwheel account email")
	studentsCmd.Flags().StringVar(&studentsPassword, "password", "", "Brightwheel account password")

	rootCmd.AddCommand(studentsCmd)
}

func runStudents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if studentsEmail != "" {
		cfg.Brightwheel.Email = studentsEmail
	}
	if studentsPassword != "" {
		cfg.Brightwheel.Password = studentsPassword
	}
	if err := cfg.ValidateLogin(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := login(ctx, cfg, logger)
	if err != nil {
		return err
	}

	students, err := client.Students(ctx)
	if err != nil {
		return err
	}

	listing := make([]tui.Student, 0, len(students))
	for _, s := range students {
		listing = append(listing, tui.Student{ID: s.ObjectID, FirstName: s.FirstName, LastName: s.LastName})
	}
	tui.PrintStudents(listing)
	return nil
}
