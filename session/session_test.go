package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/urlgrab/browser/browsertest"
	"github.com/use-agent/urlgrab/config"
	"github.com/use-agent/urlgrab/models"
)

const target = "https://example.com/"

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 1,
		MaxBackoff:        time.Millisecond,
		SettleMin:         6 * time.Second,
		SettleMax:         9 * time.Second,
		NavigationTimeout: time.Second,
	}
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestManager(d *browsertest.Driver) (*Manager, *sleepRecorder) {
	rec := &sleepRecorder{}
	m := NewManager(d, testConfig(),
		WithSleep(rec.sleep),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return m, rec
}

func fakeDriver() *browsertest.Driver {
	return &browsertest.Driver{
		Pages: map[string]browsertest.Page{
			target: {Title: "Example Domain", HTML: "<html><head><title>Example Domain</title></head></html>", Text: "Example"},
		},
	}
}

func TestAcquireIsLazy(t *testing.T) {
	d := fakeDriver()
	m, _ := newTestManager(d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, d.Launches())
	assert.Equal(t, 1, m.Stats().Active)

	m.Release(s)
	m.Release(s)
	assert.Equal(t, 0, d.Launches())
	assert.Equal(t, 0, m.Stats().Active)
}

func TestNavigateSuccess(t *testing.T) {
	d := fakeDriver()
	m, rec := newTestManager(d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer m.Release(s)

	snap, err := m.Navigate(context.Background(), s, target)
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", snap.Title)
	assert.Equal(t, target, snap.RequestedURL)
	assert.Equal(t, target, snap.FinalURL)
	assert.Contains(t, snap.HTML, "<title>Example Domain</title>")
	assert.Equal(t, []string{target}, s.Navigations())

	require.Len(t, rec.delays, 1)
	assert.GreaterOrEqual(t, rec.delays[0], 6*time.Second)
	assert.LessOrEqual(t, rec.delays[0], 9*time.Second)
}

func TestLaunchFailsTwiceThenSucceeds(t *testing.T) {
	d := fakeDriver()
	d.LaunchErrs = []error{errors.New("chrome exited"), errors.New("chrome exited")}
	m, _ := newTestManager(d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer m.Release(s)

	snap, err := m.Navigate(context.Background(), s, target)
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", snap.Title)
	assert.Equal(t, 3, d.Launches())
	assert.Equal(t, 1, s.Launches())
}

func TestLaunchFailsThreeTimes(t *testing.T) {
	d := fakeDriver()
	d.LaunchErrs = []error{errors.New("e1"), errors.New("e2"), errors.New("e3"), nil}
	m, _ := newTestManager(d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer m.Release(s)

	_, err = m.Navigate(context.Background(), s, target)
	require.Error(t, err)
	assert.Equal(t, 3, d.Launches())
	assert.Equal(t, models.ErrCodeSession, models.CodeOf(err))
	assert.Equal(t, "session failed after 3 attempts: e3", models.Describe(err))
}

func TestCrashedInstanceIsReplaced(t *testing.T) {
	d := fakeDriver()
	d.NavigateErrs = []error{errors.New("target crashed")}
	d.CrashOnNavigateError = true
	m, _ := newTestManager(d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)

	_, err = m.Navigate(context.Background(), s, target)
	require.NoError(t, err)

	instances := d.Instances()
	require.Len(t, instances, 2)
	assert.True(t, instances[0].Closed(), "crashed instance must be closed")
	assert.False(t, instances[1].Closed())
	assert.Equal(t, 1, m.Stats().Crashed)

	m.Release(s)
	assert.True(t, instances[1].Closed())
}

func TestLiveInstanceIsKeptAfterFailure(t *testing.T) {
	d := fakeDriver()
	d.NavigateErrs = []error{errors.New("net::ERR_CONNECTION_RESET")}
	m, _ := newTestManager(d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer m.Release(s)

	_, err = m.Navigate(context.Background(), s, target)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Launches())
	assert.Equal(t, 0, m.Stats().Crashed)
}

func TestNavigateStopsOnCancel(t *testing.T) {
	d := fakeDriver()
	d.LaunchErrs = []error{errors.New("e1"), errors.New("e2"), errors.New("e3")}
	m, _ := newTestManager(d)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := m.Acquire(ctx)
	require.NoError(t, err)
	defer m.Release(s)

	cancel()
	_, err = m.Navigate(ctx, s, target)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
	assert.LessOrEqual(t, d.Launches(), 1)
}

func TestAcquireCanceled(t *testing.T) {
	m, _ := newTestManager(fakeDriver())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Acquire(ctx)
	assert.Equal(t, models.ErrCodeTimeout, models.CodeOf(err))
}

func TestReleasedSessionIsUnusable(t *testing.T) {
	d := fakeDriver()
	m, _ := newTestManager(d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(s)

	_, err = m.Navigate(context.Background(), s, target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, 0, d.Launches())
}

func TestReadsBeforeNavigation(t *testing.T) {
	m, _ := newTestManager(fakeDriver())
	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer m.Release(s)

	_, err = s.Title(context.Background())
	assert.ErrorIs(t, err, ErrNoPage)
	_, err = s.Text(context.Background())
	assert.ErrorIs(t, err, ErrNoPage)
}

func TestSettleDelayBounds(t *testing.T) {
	m, _ := newTestManager(fakeDriver())
	for range 100 {
		d := m.settleDelay()
		assert.GreaterOrEqual(t, d, 6*time.Second)
		assert.LessOrEqual(t, d, 9*time.Second)
	}

	m.settleMax = m.settleMin
	assert.Equal(t, 6*time.Second, m.settleDelay())
}

func TestPolicyNormalisation(t *testing.T) {
	m := NewManager(fakeDriver(), config.SessionConfig{})
	p := m.Policy()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, DefaultRetryPolicy.InitialBackoff, p.InitialBackoff)
	assert.GreaterOrEqual(t, p.MaxBackoff, p.InitialBackoff)
}

func TestFailedReadIsNotRecordedAsNavigation(t *testing.T) {
	d := fakeDriver()
	d.TitleErrs = []error{errors.New("execution context was destroyed")}
	m, _ := newTestManager(d)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer m.Release(s)

	snap, err := m.Navigate(context.Background(), s, target)
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", snap.Title)

	require.Len(t, d.Instances(), 1)
	assert.Len(t, d.Instances()[0].Navigations(), 2, "the browser loaded the page twice")
	assert.Equal(t, []string{target}, s.Navigations())
}
