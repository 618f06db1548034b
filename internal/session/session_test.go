package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/likhithmdev/Final-Sic/internal/config"
	"github.com/likhithmdev/Final-Sic/internal/journal"
	"github.com/likhithmdev/Final-Sic/internal/metrics"
)

type fakeService struct {
	loginErr    error
	checkInErr  error
	checkOutErr error
	calls       []string
}

func (f *fakeService) Login(_ context.Context, email, _ string) (string, error) {
	f.calls = append(f.calls, "login:"+email)
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "tok-" + email, nil
}

func (f *fakeService) CheckIn(_ context.Context, token string) error {
	f.calls = append(f.calls, "check-in:"+token)
	return f.checkInErr
}

func (f *fakeService) CheckOut(_ context.Context, token string) error {
	f.calls = append(f.calls, "check-out:"+token)
	return f.checkOutErr
}

type fakeJournal struct {
	entry   *journal.Entry
	saves   int
	clears  int
	loadErr error
}

func (j *fakeJournal) Save(_ context.Context, e journal.Entry) error {
	j.saves++
	j.entry = &e
	return nil
}

func (j *fakeJournal) Load(context.Context) (journal.Entry, bool, error) {
	if j.loadErr != nil {
		return journal.Entry{}, false, j.loadErr
	}
	if j.entry == nil {
		return journal.Entry{}, false, nil
	}
	return *j.entry, true, nil
}

func (j *fakeJournal) Clear(context.Context) error {
	j.clears++
	j.entry = nil
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var testIdentities = config.Identities{
	"alice": {Email: "alice@x", Password: "pw-a"},
	"bob":   {Email: "bob@x", Password: "pw-b"},
}

type fixture struct {
	svc     *fakeService
	journal *fakeJournal
	clock   *clock
	metrics *metrics.Metrics
	ctrl    *Controller
}

func newFixture(mutate ...func(*Options)) *fixture {
	f := &fixture{
		svc:     &fakeService{},
		journal: &fakeJournal{},
		clock:   &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		metrics: metrics.New(),
	}
	opts := Options{
		Timeout:              30 * time.Second,
		CheckoutBeforeSwitch: true,
		Now:                  f.clock.Now,
		Journal:              f.journal,
		Metrics:              f.metrics,
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.ctrl = NewController(f.svc, testIdentities, opts)
	return f
}

// assertJointState checks that identity, token and start time are all set or all empty.
func assertJointState(t *testing.T, c *Controller) {
	t.Helper()
	sess, ok := c.Current()
	if ok {
		assert.NotEmpty(t, sess.Identity)
		assert.NotEmpty(t, sess.Token)
		assert.False(t, sess.StartedAt.IsZero())
		return
	}
	assert.Equal(t, Session{}, sess)
	assert.False(t, c.Status().Active)
}

func TestRecognize_ChecksIn(t *testing.T) {
	f := newFixture()

	outcome := f.ctrl.Recognize(context.Background(), "alice")
	assert.Equal(t, CheckedIn, outcome)

	sess, ok := f.ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, "alice", sess.Identity)
	assert.Equal(t, "tok-alice@x", sess.Token)
	assert.Equal(t, f.clock.now, sess.StartedAt)
	assert.NotEmpty(t, sess.ID)

	status := f.ctrl.Status()
	assert.True(t, status.Active)
	assert.Equal(t, "alice", status.Identity)
	assert.Equal(t, 30*time.Second, status.Remaining)

	assert.Equal(t, []string{"login:alice@x", "check-in:tok-alice@x"}, f.svc.calls)
	require.NotNil(t, f.journal.entry)
	assert.Equal(t, "alice", f.journal.entry.Identity)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionActive))
	assertJointState(t, f.ctrl)
}

func TestRecognize_CheckInFailureLeavesIdle(t *testing.T) {
	f := newFixture()
	f.svc.checkInErr = errors.New("status 500")

	outcome := f.ctrl.Recognize(context.Background(), "alice")
	assert.Equal(t, Failed, outcome)

	_, ok := f.ctrl.Current()
	assert.False(t, ok, "no session after a failed check-in")
	assert.Nil(t, f.journal.entry, "nothing journaled")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RemoteFailures.WithLabelValues(metrics.CallCheckIn)))
	assertJointState(t, f.ctrl)
}

func TestRecognize_LoginFailureLeavesIdle(t *testing.T) {
	f := newFixture()
	f.svc.loginErr = errors.New("invalid credentials")

	assert.Equal(t, Failed, f.ctrl.Recognize(context.Background(), "alice"))
	_, ok := f.ctrl.Current()
	assert.False(t, ok)
	assert.Equal(t, []string{"login:alice@x"}, f.svc.calls, "no check-in without a token")
	assertJointState(t, f.ctrl)
}

func TestRecognize_UnknownIdentity(t *testing.T) {
	f := newFixture()

	assert.Equal(t, Unknown, f.ctrl.Recognize(context.Background(), "mallory"))
	assert.Empty(t, f.svc.calls)
	_, ok := f.ctrl.Current()
	assert.False(t, ok)
}

func TestExpire_ChecksOutAfterTimeoutEvenWhenCheckOutFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.Equal(t, CheckedIn, f.ctrl.Recognize(ctx, "alice"))

	f.clock.Advance(30 * time.Second)
	assert.False(t, f.ctrl.Expire(ctx), "exactly at the timeout the session is still active")

	f.svc.checkOutErr = errors.New("network unreachable")
	f.clock.Advance(1 * time.Second)
	assert.True(t, f.ctrl.Expire(ctx))

	_, ok := f.ctrl.Current()
	assert.False(t, ok, "local state resets even though check-out failed")
	assert.Contains(t, f.svc.calls, "check-out:tok-alice@x")
	assert.Nil(t, f.journal.entry)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.SessionActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues(metrics.TransitionTimeout)))
	assertJointState(t, f.ctrl)

	assert.False(t, f.ctrl.Expire(ctx), "nothing to expire when idle")
}

func TestRecognize_RescanDoesNotRefresh(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.Equal(t, CheckedIn, f.ctrl.Recognize(ctx, "alice"))
	t0 := f.clock.now

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, Unchanged, f.ctrl.Recognize(ctx, "alice"))

	sess, ok := f.ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, t0, sess.StartedAt)
	assert.Equal(t, 20*time.Second, f.ctrl.Status().Remaining)
	assert.Len(t, f.svc.calls, 2, "no further remote calls")
}

func TestRecognize_RescanRefreshesWhenEnabled(t *testing.T) {
	f := newFixture(func(o *Options) { o.RefreshOnRescan = true })
	ctx := context.Background()
	require.Equal(t, CheckedIn, f.ctrl.Recognize(ctx, "alice"))

	f.clock.Advance(10 * time.Second)
	assert.Equal(t, Unchanged, f.ctrl.Recognize(ctx, "alice"))

	sess, _ := f.ctrl.Current()
	assert.Equal(t, f.clock.now, sess.StartedAt)
	assert.Equal(t, f.clock.now, f.journal.entry.StartedAt)
}

func TestRecognize_SwitchChecksOutPrevious(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.Equal(t, CheckedIn, f.ctrl.Recognize(ctx, "alice"))

	assert.Equal(t, Switched, f.ctrl.Recognize(ctx, "bob"))

	sess, ok := f.ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, "bob", sess.Identity)
	assert.Equal(t, []string{
		"login:alice@x", "check-in:tok-alice@x",
		"check-out:tok-alice@x",
		"login:bob@x", "check-in:tok-bob@x",
	}, f.svc.calls)
	assert.Equal(t, "bob", f.journal.entry.Identity)
	assertJointState(t, f.ctrl)
}

func TestRecognize_SwitchFailureLeavesIdle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.Equal(t, CheckedIn, f.ctrl.Recognize(ctx, "alice"))

	f.svc.loginErr = errors.New("invalid credentials")
	assert.Equal(t, Failed, f.ctrl.Recognize(ctx, "bob"))

	_, ok := f.ctrl.Current()
	assert.False(t, ok, "alice was already checked out")
	assert.Nil(t, f.journal.entry)
	assertJointState(t, f.ctrl)
}

func TestRecognize_SwitchWithoutCheckout(t *testing.T) {
	f := newFixture(func(o *Options) { o.CheckoutBeforeSwitch = false })
	ctx := context.Background()
	require.Equal(t, CheckedIn, f.ctrl.Recognize(ctx, "alice"))

	assert.Equal(t, Switched, f.ctrl.Recognize(ctx, "bob"))
	assert.NotContains(t, f.svc.calls, "check-out:tok-alice@x")

	f.svc.checkInErr = errors.New("status 500")
	assert.Equal(t, Failed, f.ctrl.Recognize(ctx, "alice"))
	sess, ok := f.ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, "bob", sess.Identity, "failed switch keeps the active session")
}

func TestShutdown(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.NoError(t, f.ctrl.Shutdown(ctx), "idle shutdown is a no-op")
	assert.Empty(t, f.svc.calls)

	require.Equal(t, CheckedIn, f.ctrl.Recognize(ctx, "alice"))
	f.svc.checkOutErr = errors.New("timeout")
	assert.Error(t, f.ctrl.Shutdown(ctx))

	_, ok := f.ctrl.Current()
	assert.False(t, ok)
	assert.Equal(t, "check-out:tok-alice@x", f.svc.calls[len(f.svc.calls)-1])
	assert.Nil(t, f.journal.entry)
}

func TestStatus_RemainingNeverNegative(t *testing.T) {
	f := newFixture()
	require.Equal(t, CheckedIn, f.ctrl.Recognize(context.Background(), "alice"))

	f.clock.Advance(45 * time.Second)
	assert.Equal(t, time.Duration(0), f.ctrl.Status().Remaining)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "checked_in", CheckedIn.String())
	assert.Equal(t, "invalid", Outcome(42).String())
}
