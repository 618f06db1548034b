package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/likhithmdev/Final-Sic/internal/logging"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Compute reference embeddings and report per identity",
	Long: `Run enrollment over the faces directory without opening the camera.
Prints how many images and embeddings each configured identity has, so missing
or unusable reference photos can be fixed before running.`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	logWarnings(cfg, log)

	ext, err := newExtractor(cfg)
	if err != nil {
		return fmt.Errorf("failed to create face extractor: %w", err)
	}
	defer ext.Close()

	_, report, enrollErr := enroll(ctx, cfg, ext, log)

	fmt.Printf("\n%-24s %8s %12s %8s\n", "IDENTITY", "IMAGES", "EMBEDDINGS", "SKIPPED")
	for _, r := range report.Identities {
		fmt.Printf("%-24s %8d %12d %8d\n", r.Identity, r.Images, r.Embeddings, r.Skipped)
	}
	fmt.Printf("\nTotal embeddings: %d\n", report.Total())

	return enrollErr
}
