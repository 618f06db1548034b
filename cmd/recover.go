package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/likhithmdev/Final-Sic/internal/checkin"
	"github.com/likhithmdev/Final-Sic/internal/journal"
	"github.com/likhithmdev/Final-Sic/internal/logging"
	"github.com/likhithmdev/Final-Sic/internal/session"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Check out a session left behind by a crashed run",
	Long: `Read the session journal and, if a previous run exited without checking
out, check that session out now and clear the journal. Requires JOURNAL_PATH.`,
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Journal.Path == "" {
		return errors.New("JOURNAL_PATH is not set")
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	client, err := checkin.New(cfg.API.BaseURL, cfg.API.Timeout, cfg.API.CaptureDir)
	if err != nil {
		return fmt.Errorf("failed to create check-in client: %w", err)
	}
	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entry, found, err := session.Recover(ctx, store, client, log)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("No unfinished session.")
		return nil
	}
	fmt.Printf("Recovered session %s for %s (started %s)\n",
		entry.SessionID, entry.Identity, entry.StartedAt.Format("2006-01-02 15:04:05"))
	return nil
}
