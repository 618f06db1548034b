// Package session owns "who is checked in" on this device. The Controller is
// a two-state machine (idle, active) whose transitions drive the remote
// login, check-in and check-out calls. It is not safe for concurrent use; the
// control loop is its only caller.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/likhithmdev/Final-Sic/internal/config"
	"github.com/likhithmdev/Final-Sic/internal/constants"
	"github.com/likhithmdev/Final-Sic/internal/journal"
	"github.com/likhithmdev/Final-Sic/internal/metrics"
)

// Service is the remote session service.
type Service interface {
	Login(ctx context.Context, email, password string) (string, error)
	CheckIn(ctx context.Context, token string) error
	CheckOut(ctx context.Context, token string) error
}

// Directory resolves an identity to its credentials.
type Directory interface {
	Lookup(identity string) (config.Credentials, bool)
}

// Journal persists the active session.
type Journal interface {
	Save(ctx context.Context, e journal.Entry) error
	Clear(ctx context.Context) error
}

// Session is an active check-in. A Controller holds either a complete
// Session or none, so identity, token and start time change together.
type Session struct {
	ID        string
	Identity  string
	Token     string
	StartedAt time.Time
}

// Outcome describes what Recognize did.
type Outcome int

const (
	// Unchanged: the identity is already checked in.
	Unchanged Outcome = iota
	// CheckedIn: idle to active.
	CheckedIn
	// Switched: active with another identity.
	Switched
	// Failed: login or check-in failed; no new session was created.
	Failed
	// Unknown: the identity has no credentials.
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case CheckedIn:
		return "checked_in"
	case Switched:
		return "switched"
	case Failed:
		return "failed"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Options configures a Controller.
type Options struct {
	Timeout time.Duration
	// RefreshOnRescan restarts the timeout window when the active identity is
	// recognized again. Off by default: the window counts from check-in.
	RefreshOnRescan bool
	// CheckoutBeforeSwitch checks out the active identity before another one
	// is checked in.
	CheckoutBeforeSwitch bool
	Now                  func() time.Time

	Journal Journal
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Controller is the session state machine.
type Controller struct {
	svc  Service
	dir  Directory
	opts Options
	log  *zap.Logger

	current *Session
}

// NewController creates an idle controller.
func NewController(svc Service, dir Directory, opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultCheckInTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		svc:  svc,
		dir:  dir,
		opts: opts,
		log:  opts.Logger,
	}
}

// Recognize handles a matched identity.
func (c *Controller) Recognize(ctx context.Context, identity string) Outcome {
	if c.current != nil && c.current.Identity == identity {
		if c.opts.RefreshOnRescan {
			refreshed := *c.current
			refreshed.StartedAt = c.opts.Now()
			c.current = &refreshed
			c.save(ctx)
		}
		return Unchanged
	}

	creds, ok := c.dir.Lookup(identity)
	if !ok {
		c.log.Warn("recognized identity has no credentials", zap.String("identity", identity))
		return Unknown
	}

	previous := c.current
	if previous != nil && c.opts.CheckoutBeforeSwitch {
		_ = c.end(ctx, "switch")
	}

	next, err := c.start(ctx, identity, creds)
	if err != nil {
		c.opts.Metrics.Transition(metrics.TransitionFailed)
		c.log.Error("check-in failed", zap.String("identity", identity), zap.Error(err))
		return Failed
	}

	if previous != nil && !c.opts.CheckoutBeforeSwitch {
		c.log.Warn("previous session abandoned without check-out",
			zap.String("identity", previous.Identity), zap.String("session", previous.ID))
	}

	c.current = next
	c.save(ctx)
	c.opts.Metrics.SetActive(true)

	if previous != nil {
		c.opts.Metrics.Transition(metrics.TransitionSwitch)
		c.log.Info("switched session", zap.String("from", previous.Identity), zap.String("to", identity),
			zap.String("session", next.ID))
		return Switched
	}
	c.opts.Metrics.Transition(metrics.TransitionCheckIn)
	c.log.Info("checked in", zap.String("identity", identity), zap.String("session", next.ID))
	return CheckedIn
}

// start logs in and checks in. The token is dropped when check-in fails.
func (c *Controller) start(ctx context.Context, identity string, creds config.Credentials) (*Session, error) {
	token, err := c.svc.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		c.opts.Metrics.RemoteFailed(metrics.CallLogin)
		return nil, err
	}
	if err := c.svc.CheckIn(ctx, token); err != nil {
		c.opts.Metrics.RemoteFailed(metrics.CallCheckIn)
		return nil, err
	}
	return &Session{
		ID:        uuid.New().String(),
		Identity:  identity,
		Token:     token,
		StartedAt: c.opts.Now(),
	}, nil
}

// Expire ends the active session once more than Timeout has elapsed since it
// started. The local state is reset even when the remote check-out fails.
func (c *Controller) Expire(ctx context.Context) bool {
	if c.current == nil {
		return false
	}
	if c.opts.Now().Sub(c.current.StartedAt) <= c.opts.Timeout {
		return false
	}
	c.log.Info("check-in timed out", zap.String("identity", c.current.Identity),
		zap.Duration("timeout", c.opts.Timeout))
	c.opts.Metrics.Transition(metrics.TransitionTimeout)
	_ = c.end(ctx, "timeout")
	return true
}

// Shutdown performs one best-effort check-out of the active session. The
// returned error is informational; the controller is idle afterwards.
func (c *Controller) Shutdown(ctx context.Context) error {
	if c.current == nil {
		return nil
	}
	c.opts.Metrics.Transition(metrics.TransitionShutdown)
	return c.end(ctx, "shutdown")
}

// end clears the session and checks it out.
func (c *Controller) end(ctx context.Context, reason string) error {
	sess := c.current
	c.current = nil
	c.opts.Metrics.SetActive(false)

	err := c.svc.CheckOut(ctx, sess.Token)
	if err != nil {
		c.opts.Metrics.RemoteFailed(metrics.CallCheckOut)
		c.log.Error("check-out failed", zap.String("identity", sess.Identity),
			zap.String("session", sess.ID), zap.String("reason", reason), zap.Error(err))
	} else {
		c.log.Info("checked out", zap.String("identity", sess.Identity),
			zap.String("session", sess.ID), zap.String("reason", reason))
	}

	if c.opts.Journal != nil {
		if jerr := c.opts.Journal.Clear(ctx); jerr != nil {
			c.log.Warn("could not clear session journal", zap.Error(jerr))
		}
	}
	return err
}

func (c *Controller) save(ctx context.Context) {
	if c.opts.Journal == nil || c.current == nil {
		return
	}
	err := c.opts.Journal.Save(ctx, journal.Entry{
		SessionID: c.current.ID,
		Identity:  c.current.Identity,
		Token:     c.current.Token,
		StartedAt: c.current.StartedAt,
	})
	if err != nil {
		c.log.Warn("could not journal session", zap.Error(err))
	}
}

// Current returns a copy of the active session.
func (c *Controller) Current() (Session, bool) {
	if c.current == nil {
		return Session{}, false
	}
	return *c.current, true
}

// Status is a point-in-time view of the controller for display.
type Status struct {
	Active    bool
	Identity  string
	StartedAt time.Time
	Remaining time.Duration
}

// Status reports the active identity and the time left before automatic
// check-out.
func (c *Controller) Status() Status {
	if c.current == nil {
		return Status{}
	}
	remaining := c.opts.Timeout - c.opts.Now().Sub(c.current.StartedAt)
	return Status{
		Active:    true,
		Identity:  c.current.Identity,
		StartedAt: c.current.StartedAt,
		Remaining: max(remaining, 0),
	}
}

// Timeout returns the configured check-in timeout.
func (c *Controller) Timeout() time.Duration {
	return c.opts.Timeout
}
