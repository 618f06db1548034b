// Package loop runs the capture, recognize, check-in cycle until stopped.
package loop

import (
	"context"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/likhithmdev/Final-Sic/internal/camera"
	"github.com/likhithmdev/Final-Sic/internal/constants"
	"github.com/likhithmdev/Final-Sic/internal/metrics"
	"github.com/likhithmdev/Final-Sic/internal/recognition"
	"github.com/likhithmdev/Final-Sic/internal/session"
)

// FrameSource produces frames.
type FrameSource interface {
	CaptureFrame(ctx context.Context) (*image.RGBA, error)
	Backend() camera.BackendKind
}

// Matcher identifies the person in a frame.
type Matcher interface {
	Match(ctx context.Context, frame image.Image) (recognition.Result, error)
}

// Controller is the session state machine.
type Controller interface {
	Recognize(ctx context.Context, identity string) session.Outcome
	Expire(ctx context.Context) bool
	Shutdown(ctx context.Context) error
	Status() session.Status
}

// Loop wires a frame source, a matcher and a session controller together.
// Everything runs on the caller's goroutine.
type Loop struct {
	Source     FrameSource
	Matcher    Matcher
	Controller Controller

	// Stride runs recognition on every Stride-th captured frame.
	Stride int
	// RetryDelay is the pause after a failed capture.
	RetryDelay time.Duration
	// ShutdownTimeout bounds the final check-out.
	ShutdownTimeout time.Duration

	Board    *Board
	Renderer Renderer
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time

	frames    uint64
	failures  uint64
	lastMatch *Match
}

func (l *Loop) defaults() {
	if l.Stride <= 0 {
		l.Stride = constants.DefaultFrameStride
	}
	if l.RetryDelay <= 0 {
		l.RetryDelay = constants.FrameRetryDelay
	}
	if l.ShutdownTimeout <= 0 {
		l.ShutdownTimeout = constants.ShutdownTimeout
	}
	if l.Board == nil {
		l.Board = NewBoard()
	}
	if l.Logger == nil {
		l.Logger = zap.NewNop()
	}
	if l.Now == nil {
		l.Now = time.Now
	}
}

// Run loops until ctx is done. Capture, recognition and remote failures never
// end the loop. On every exit path, a panic included, the active session gets
// one best-effort check-out.
func (l *Loop) Run(ctx context.Context) error {
	l.defaults()

	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.ShutdownTimeout)
		defer cancel()
		if err := l.Controller.Shutdown(sctx); err != nil {
			l.Logger.Warn("check-out on shutdown failed", zap.Error(err))
		}
		l.publish()
	}()

	l.Logger.Info("control loop started", zap.Int("stride", l.Stride),
		zap.String("backend", string(l.Source.Backend())))

	for {
		if ctx.Err() != nil {
			l.Logger.Info("control loop stopped")
			return nil
		}
		l.step(ctx)
	}
}

// step runs one iteration.
func (l *Loop) step(ctx context.Context) {
	frame, err := l.Source.CaptureFrame(ctx)
	if err != nil && ctx.Err() != nil {
		// Shutdown checks out whatever is still active.
		return
	}
	if err != nil {
		l.failures++
		l.Metrics.FrameFailed()
		l.Logger.Warn("failed to read frame", zap.Error(err))
		l.Controller.Expire(ctx)
		l.publish()
		sleep(ctx, l.RetryDelay)
		return
	}

	l.frames++
	l.Metrics.FrameCaptured()

	if l.frames%uint64(l.Stride) == 0 {
		l.recognize(ctx, frame)
	}
	l.Controller.Expire(ctx)
	l.publish()
}

func (l *Loop) recognize(ctx context.Context, frame *image.RGBA) {
	res, err := l.Matcher.Match(ctx, frame)
	switch {
	case err != nil:
		l.Metrics.Recognized(metrics.ResultError)
		l.Logger.Warn("recognition failed", zap.Error(err))
	case res.Matched():
		l.Metrics.Recognized(metrics.ResultMatch)
		l.lastMatch = &Match{Identity: res.Identity, Distance: res.Distance, At: l.Now()}
		outcome := l.Controller.Recognize(ctx, res.Identity)
		l.Logger.Debug("face recognized", zap.String("identity", res.Identity),
			zap.Float64("distance", res.Distance), zap.Stringer("outcome", outcome))
	default:
		l.Metrics.Recognized(metrics.ResultNoMatch)
	}
}

// publish builds the snapshot, stores it on the board and renders it.
func (l *Loop) publish() {
	st := l.Controller.Status()
	s := Status{
		Active:           st.Active,
		Identity:         st.Identity,
		Remaining:        st.Remaining,
		RemainingSeconds: int(st.Remaining.Round(time.Second) / time.Second),
		Backend:          string(l.Source.Backend()),
		FramesCaptured:   l.frames,
		FrameFailures:    l.failures,
		UpdatedAt:        l.Now(),
	}
	if l.lastMatch != nil {
		m := *l.lastMatch
		s.LastMatch = &m
	}

	l.Board.Publish(s)
	if l.Renderer != nil {
		l.Renderer.Render(s)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
