package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/likhithmdev/Final-Sic/internal/camera"
	"github.com/likhithmdev/Final-Sic/internal/camera/gocvcam"
	"github.com/likhithmdev/Final-Sic/internal/config"
	"github.com/likhithmdev/Final-Sic/internal/recognition"
	"github.com/likhithmdev/Final-Sic/internal/recognition/dlibext"
)

// loadConfig loads the configuration and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if captureDir != "" {
		cfg.API.CaptureDir = captureDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// logWarnings reports configuration that is valid but unlikely to work.
func logWarnings(cfg *config.Config, logger *zap.Logger) {
	for _, w := range cfg.Warnings() {
		logger.Warn("suspicious configuration", zap.String("detail", w),
			zap.String("extractor", cfg.Recognition.Extractor), zap.String("metric", cfg.Recognition.Metric),
			zap.Float64("tolerance", cfg.Recognition.Tolerance))
	}
}

// extractor is a recognition.Extractor that may hold native resources.
type extractor interface {
	recognition.Extractor
	Close() error
}

type httpExtractor struct {
	*recognition.HTTPExtractor
}

func (httpExtractor) Close() error { return nil }

// newExtractor creates the configured face embedding extractor.
func newExtractor(cfg *config.Config) (extractor, error) {
	switch cfg.Recognition.Extractor {
	case "dlib":
		ext, err := dlibext.New(cfg.Recognition.DlibModelsDir)
		if err != nil {
			return nil, err
		}
		return ext, nil
	default:
		return httpExtractor{recognition.NewHTTPExtractor(cfg.Recognition.EmbeddingURL, cfg.API.Timeout)}, nil
	}
}

// enroll builds the reference set with a progress bar on stderr.
func enroll(ctx context.Context, cfg *config.Config, ext recognition.Extractor, logger *zap.Logger) (*recognition.ReferenceSet, recognition.EnrollReport, error) {
	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Enrolling faces"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("images"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	refs, report, err := recognition.LoadReferenceSet(ctx, cfg.Recognition.FacesDir, cfg.Identities.Keys(), ext,
		recognition.EnrollOptions{Logger: logger, Progress: progress, CreateMissing: true})
	if bar != nil {
		_ = bar.Finish()
	}
	return refs, report, err
}

// newMatcher wires a matcher from configuration.
func newMatcher(cfg *config.Config, ext recognition.Extractor, refs *recognition.ReferenceSet, logger *zap.Logger) (*recognition.Matcher, error) {
	metric, err := recognition.ParseMetric(cfg.Recognition.Metric)
	if err != nil {
		return nil, err
	}
	return recognition.NewMatcher(ext, refs, recognition.MatcherOptions{
		Tolerance: cfg.Recognition.Tolerance,
		Metric:    metric,
		Downscale: cfg.Recognition.Downscale,
		Logger:    logger,
	}), nil
}

// newCamera creates the camera source. The generic frame grabber is probed
// first, then the sensor streaming tool.
func newCamera(cfg *config.Config, logger *zap.Logger) *camera.Source {
	return camera.NewSource(camera.Settings{
		DeviceID:      cfg.Camera.DeviceID,
		Width:         cfg.Camera.Width,
		Height:        cfg.Camera.Height,
		FPS:           cfg.Camera.FPS,
		StreamCommand: cfg.Camera.StreamCommand,
		ProbeTimeout:  cfg.Camera.ProbeTimeout,
	}, logger, gocvcam.New(), camera.NewStreamBackend(logger))
}
