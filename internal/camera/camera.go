// Package camera hides the capture hardware behind a single Source. At open
// time the backends are probed in a fixed order and the first one that both
// opens and delivers a readable frame is kept for the lifetime of the process.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/likhithmdev/Final-Sic/internal/constants"
)

var (
	// ErrNoCameraAvailable is returned by Open when no backend is usable.
	ErrNoCameraAvailable = errors.New("no camera available")
	// ErrFrameRead marks a single failed capture. It is transient.
	ErrFrameRead = errors.New("frame read failed")
)

// BackendKind names a capture backend.
type BackendKind string

const (
	BackendGeneric   BackendKind = "generic"
	BackendStreaming BackendKind = "streaming"
)

// ProbeOutcome is the result of trying one backend during Open.
type ProbeOutcome int

const (
	OpenFailed ProbeOutcome = iota
	Unreadable
	Opened
)

func (o ProbeOutcome) String() string {
	switch o {
	case Opened:
		return "opened"
	case Unreadable:
		return "unreadable"
	default:
		return "open_failed"
	}
}

// ProbeResult records one backend attempt.
type ProbeResult struct {
	Backend BackendKind
	Outcome ProbeOutcome
	Err     error
}

// Settings are the capture parameters shared by all backends.
type Settings struct {
	DeviceID      int
	Width         int
	Height        int
	FPS           int
	StreamCommand string
	// ProbeTimeout bounds how long a backend may take to deliver a frame.
	ProbeTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Width <= 0 {
		s.Width = constants.DefaultCameraWidth
	}
	if s.Height <= 0 {
		s.Height = constants.DefaultCameraHeight
	}
	if s.FPS <= 0 {
		s.FPS = constants.DefaultCameraFPS
	}
	if s.StreamCommand == "" {
		s.StreamCommand = constants.DefaultStreamCommand
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = constants.DefaultProbeTimeout
	}
	return s
}

// Backend opens a capture device.
type Backend interface {
	Kind() BackendKind
	Open(ctx context.Context, settings Settings) (Handle, error)
}

// Handle is an open capture device. Frames are always RGBA so callers never
// depend on the backend's native color order.
type Handle interface {
	Read(ctx context.Context) (*image.RGBA, error)
	Close() error
}

// Source owns exactly one open Handle. It is used from a single goroutine.
type Source struct {
	settings Settings
	backends []Backend
	log      *zap.Logger

	handle Handle
	active BackendKind
	probes []ProbeResult
}

// NewSource creates a camera source that probes backends in the given order.
func NewSource(settings Settings, logger *zap.Logger, backends ...Backend) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		settings: settings.withDefaults(),
		backends: backends,
		log:      logger,
	}
}

// Open probes the backends in order and keeps the first one that opens and
// returns a frame. A backend that opens but can not be read is closed again.
// When every backend fails the returned error wraps ErrNoCameraAvailable.
func (s *Source) Open(ctx context.Context) error {
	if s.handle != nil {
		return nil
	}

	s.probes = s.probes[:0]
	var errs []error
	for _, b := range s.backends {
		res, h := s.probe(ctx, b)
		s.probes = append(s.probes, res)

		if res.Outcome == Opened {
			s.handle = h
			s.active = b.Kind()
			s.log.Info("camera opened", zap.String("backend", string(b.Kind())),
				zap.Int("width", s.settings.Width), zap.Int("height", s.settings.Height))
			return nil
		}

		s.log.Warn("camera backend rejected", zap.String("backend", string(b.Kind())),
			zap.Stringer("outcome", res.Outcome), zap.Error(res.Err))
		errs = append(errs, fmt.Errorf("%s: %w", b.Kind(), res.Err))

		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
	}

	if len(errs) == 0 {
		return fmt.Errorf("%w: no backends configured", ErrNoCameraAvailable)
	}
	return fmt.Errorf("%w: %w", ErrNoCameraAvailable, errors.Join(errs...))
}

func (s *Source) probe(ctx context.Context, b Backend) (ProbeResult, Handle) {
	res := ProbeResult{Backend: b.Kind(), Outcome: OpenFailed}

	h, err := b.Open(ctx, s.settings)
	if err != nil {
		res.Err = err
		return res, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, s.settings.ProbeTimeout)
	defer cancel()

	frame, err := h.Read(readCtx)
	if err == nil && (frame == nil || frame.Bounds().Empty()) {
		err = errors.New("empty frame")
	}
	if err != nil {
		if cerr := h.Close(); cerr != nil {
			s.log.Debug("closing unreadable backend", zap.String("backend", string(b.Kind())), zap.Error(cerr))
		}
		res.Outcome = Unreadable
		res.Err = err
		return res, nil
	}

	res.Outcome = Opened
	return res, h
}

// CaptureFrame reads one frame from the active backend. Failures wrap
// ErrFrameRead and should be retried on the next cycle.
func (s *Source) CaptureFrame(ctx context.Context) (*image.RGBA, error) {
	if s.handle == nil {
		return nil, fmt.Errorf("%w: camera is not open", ErrFrameRead)
	}

	frame, err := s.handle.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFrameRead, err)
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrFrameRead)
	}
	return frame, nil
}

// Release closes the active backend. It is safe to call more than once and
// before or after a failed Open.
func (s *Source) Release() error {
	if s.handle == nil {
		return nil
	}

	h := s.handle
	s.handle = nil
	if err := h.Close(); err != nil {
		return fmt.Errorf("release %s camera: %w", s.active, err)
	}
	s.log.Info("camera released", zap.String("backend", string(s.active)))
	return nil
}

// Backend returns the active backend, or "" when nothing is open.
func (s *Source) Backend() BackendKind {
	if s.handle == nil {
		return ""
	}
	return s.active
}

// Probes returns the results of the last Open in probing order.
func (s *Source) Probes() []ProbeResult {
	return append([]ProbeResult(nil), s.probes...)
}

// Settings returns the effective capture settings.
func (s *Source) Settings() Settings {
	return s.settings
}

// ToRGBA converts any image into a zero-origin RGBA image.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
