package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/likhithmdev/Final-Sic/internal/constants"
)

type Config struct {
	API         APIConfig
	Session     SessionConfig
	Recognition RecognitionConfig
	Camera      CameraConfig
	Loop        LoopConfig
	Journal     JournalConfig
	Status      StatusConfig
	Log         LogConfig
	Identities  Identities
}

type APIConfig struct {
	BaseURL    string        // check-in service base, e.g. http://localhost:3000/api
	Timeout    time.Duration // per-call timeout for login, check-in and check-out
	CaptureDir string        // optional directory where raw API responses are saved
}

type SessionConfig struct {
	Timeout              time.Duration
	RefreshOnRescan      bool // re-recognizing the active identity restarts the timeout window
	CheckoutBeforeSwitch bool // check out the previous identity before checking in a new one
}

type RecognitionConfig struct {
	Tolerance      float64
	Metric         string  // euclidean or cosine
	Downscale      float64 // linear scale applied before detection, in (0, 1]
	Extractor      string  // http or dlib
	EmbeddingURL   string
	DlibModelsDir  string
	FacesDir       string
	IdentitiesFile string
}

type CameraConfig struct {
	DeviceID      int
	Width         int
	Height        int
	FPS           int
	StreamCommand string
	ProbeTimeout  time.Duration
}

type LoopConfig struct {
	FrameStride int
	RetryDelay  time.Duration
}

type JournalConfig struct {
	Path string // SQLite file; empty disables crash recovery
}

type StatusConfig struct {
	Addr string // listen address of the status server; empty disables it
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envNonNegInt is envInt that also accepts zero (camera device 0 is the usual webcam).
func envNonNegInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float. Invalid values fall back to the default.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envSeconds reads a duration expressed either as whole seconds ("30") or as a
// Go duration string ("30s", "1m").
func envSeconds(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// defaultMetric pairs each extractor with the distance its embeddings are
// trained for: dlib descriptors are compared by Euclidean distance, the
// embedding server's ArcFace vectors by cosine distance.
func defaultMetric(extractor string) string {
	if extractor == "dlib" {
		return "euclidean"
	}
	return "cosine"
}

func defaultTolerance(metric string) float64 {
	if metric == "cosine" {
		return constants.DefaultCosineTolerance
	}
	return constants.DefaultTolerance
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// Load builds the configuration from the environment and the identities file.
// A missing identities file is not an error here; Validate reports the empty set.
func Load() (*Config, error) {
	extractor := strings.ToLower(envString("EXTRACTOR", "http"))
	metric := strings.ToLower(envString("FACE_METRIC", defaultMetric(extractor)))

	cfg := &Config{
		API: APIConfig{
			BaseURL:    strings.TrimSuffix(envString("SMART_BIN_API", constants.DefaultAPIBase), "/"),
			Timeout:    envSeconds("HTTP_TIMEOUT", constants.DefaultHTTPTimeout),
			CaptureDir: os.Getenv("CAPTURE_DIR"),
		},
		Session: SessionConfig{
			Timeout:              envSeconds("CHECKIN_TIMEOUT", constants.DefaultCheckInTimeout),
			RefreshOnRescan:      envBool("REFRESH_ON_RESCAN", false),
			CheckoutBeforeSwitch: envBool("CHECKOUT_BEFORE_SWITCH", true),
		},
		Recognition: RecognitionConfig{
			Tolerance:      envFloat("FACE_TOLERANCE", defaultTolerance(metric)),
			Metric:         metric,
			Downscale:      envFloat("DOWNSCALE", constants.DefaultDownscale),
			Extractor:      extractor,
			EmbeddingURL:   envString("EMBEDDING_URL", constants.DefaultEmbeddingURL),
			DlibModelsDir:  envString("DLIB_MODELS_DIR", "models"),
			FacesDir:       envString("FACES_DIR", constants.DefaultFacesDir),
			IdentitiesFile: envString("IDENTITIES_FILE", constants.DefaultIdentitiesFile),
		},
		Camera: CameraConfig{
			DeviceID:      envNonNegInt("CAMERA_DEVICE", 0),
			Width:         envInt("CAMERA_WIDTH", constants.DefaultCameraWidth),
			Height:        envInt("CAMERA_HEIGHT", constants.DefaultCameraHeight),
			FPS:           envInt("CAMERA_FPS", constants.DefaultCameraFPS),
			StreamCommand: envString("STREAM_COMMAND", constants.DefaultStreamCommand),
			ProbeTimeout:  envSeconds("CAMERA_PROBE_TIMEOUT", constants.DefaultProbeTimeout),
		},
		Loop: LoopConfig{
			FrameStride: envInt("FRAME_STRIDE", constants.DefaultFrameStride),
			RetryDelay:  constants.FrameRetryDelay,
		},
		Journal: JournalConfig{
			Path: os.Getenv("JOURNAL_PATH"),
		},
		Status: StatusConfig{
			Addr: os.Getenv("STATUS_ADDR"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "console"),
		},
	}

	identities, err := LoadIdentities(cfg.Recognition.IdentitiesFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg.Identities = identities
	return cfg, nil
}

// Warnings reports settings that are valid but unlikely to work.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Recognition.Extractor == "http" && c.Recognition.Metric == "euclidean" {
		warnings = append(warnings, "the embedding server returns ArcFace vectors; "+
			"euclidean distance with a dlib tolerance will rarely match, use FACE_METRIC=cosine")
	}
	if c.Recognition.Extractor == "dlib" && c.Recognition.Metric == "cosine" {
		warnings = append(warnings, "dlib descriptors are trained for euclidean distance, "+
			"cosine tolerances do not carry over")
	}
	return warnings
}

// Validate checks the values the control loop cannot run without.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("API base URL is required")
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("invalid check-in timeout: %s", c.Session.Timeout)
	}
	if c.Recognition.Tolerance < 0 {
		return fmt.Errorf("invalid tolerance: %v", c.Recognition.Tolerance)
	}
	if c.Recognition.Downscale <= 0 || c.Recognition.Downscale > 1 {
		return fmt.Errorf("downscale must be in (0, 1], got %v", c.Recognition.Downscale)
	}
	switch c.Recognition.Metric {
	case "euclidean", "cosine":
	default:
		return fmt.Errorf("unknown distance metric %q", c.Recognition.Metric)
	}
	switch c.Recognition.Extractor {
	case "http", "dlib":
	default:
		return fmt.Errorf("unknown extractor %q", c.Recognition.Extractor)
	}
	if c.Loop.FrameStride <= 0 {
		return fmt.Errorf("invalid frame stride: %d", c.Loop.FrameStride)
	}
	if len(c.Identities) == 0 {
		return fmt.Errorf("no identities configured (see %s)", c.Recognition.IdentitiesFile)
	}
	return nil
}
