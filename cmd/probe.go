package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/likhithmdev/Final-Sic/internal/logging"
	"github.com/likhithmdev/Final-Sic/internal/recognition"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe camera backends and report which one works",
	Long: `Try the camera backends in order, print the outcome of every attempt and
the backend that was selected. With --snapshot, one frame is saved as JPEG.`,
	Example: `  face-checkin probe
  face-checkin probe --snapshot frame.jpg`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().String("snapshot", "", "Save one captured frame to this JPEG file")
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	source := newCamera(cfg, log)
	openErr := source.Open(ctx)
	defer func() {
		if err := source.Release(); err != nil {
			log.Warn("camera release failed", zap.Error(err))
		}
	}()

	for _, p := range source.Probes() {
		line := fmt.Sprintf("%-10s %s", p.Backend, p.Outcome)
		if p.Err != nil {
			line += ": " + p.Err.Error()
		}
		fmt.Println(line)
	}
	if openErr != nil {
		return openErr
	}
	fmt.Printf("\nActive backend: %s\n", source.Backend())

	snapshot := mustGetString(cmd, "snapshot")
	if snapshot == "" {
		return nil
	}
	frame, err := source.CaptureFrame(ctx)
	if err != nil {
		return err
	}
	data, err := recognition.EncodeJPEG(frame)
	if err != nil {
		return err
	}
	if err := os.WriteFile(snapshot, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	b := frame.Bounds()
	fmt.Printf("Saved %dx%d frame to %s\n", b.Dx(), b.Dy(), snapshot)
	return nil
}
