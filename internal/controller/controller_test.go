package controller

import (
	"context"
	"ctchen222/tictactoe-solo/internal/controller/mock_controller"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/internal/game"
	"ctchen222/tictactoe-solo/pkg/proto"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeClock hands out timers that only fire when the test says so.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{c: make(chan time.Time, 1), delay: d}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeClock) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// fire fires the most recently created timer.
func (f *fakeClock) fire(t *testing.T) *fakeTimer {
	t.Helper()

	f.mu.Lock()
	require.NotEmpty(t, f.timers, "no timer scheduled")
	timer := f.timers[len(f.timers)-1]
	f.mu.Unlock()

	timer.c <- time.Now()
	return timer
}

type fakeTimer struct {
	c       chan time.Time
	delay   time.Duration
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// recorder collects published views.
type recorder struct {
	mu    sync.Mutex
	views []proto.View
}

func (r *recorder) Publish(_ context.Context, _ string, ev events.Event) error {
	var view proto.View
	if err := json.Unmarshal(ev.Payload, &view); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, view)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *recorder) last() proto.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

func startController(t *testing.T, opts ...Option) *Controller {
	t.Helper()

	c := New("session-1", opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c
}

func snapshot(t *testing.T, c *Controller) State {
	t.Helper()

	var s State
	_, _, err := c.do(context.Background(), "View", func(cur State) (State, bool) {
		s = cur
		return cur, false
	})
	require.NoError(t, err)
	return s
}

// waitPhase polls until the controller reaches phase.
func waitPhase(t *testing.T, c *Controller, phase Phase) State {
	t.Helper()

	var s State
	require.Eventually(t, func() bool {
		s = snapshot(t, c)
		return s.Phase == phase
	}, 2*time.Second, time.Millisecond)
	return s
}

func boardOf(view proto.View) game.Board {
	var b game.Board
	for _, cell := range view.Cells {
		b[cell.Index] = cell.Mark
	}
	return b
}

func countMarks(b game.Board, mark game.Mark) int {
	n := 0
	for _, cell := range b {
		if cell == mark {
			n++
		}
	}
	return n
}

func TestController_PlayerMoveThenComputerReply(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rec := &recorder{}
	c := startController(t, WithClock(clock), WithPublisher(rec), WithSource(fixedSource(0)))

	view, applied, err := c.StartGame(ctx)
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, "game", view.Screen)

	view, applied, err = c.Click(ctx, 0)
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, string(PhaseComputerThinking), view.Phase)
	assert.Equal(t, game.Board{x}, boardOf(view))
	require.Equal(t, 1, clock.pending())
	assert.Equal(t, DefaultComputerDelay, clock.timers[0].delay)

	// While the computer thinks, clicks are ignored.
	view, applied, err = c.Click(ctx, 1)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, game.Board{x}, boardOf(view))

	clock.fire(t)
	s := waitPhase(t, c, PhaseAwaitingPlayer)

	// fixedSource(0) picks the first empty cell.
	assert.Equal(t, game.Board{x, o}, s.Board)
	assert.Equal(t, 1, countMarks(s.Board, o))

	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, game.Board{x, o}, boardOf(rec.last()))
}

func TestController_VersionCountsAppliedTransitions(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rec := &recorder{}
	c := startController(t, WithClock(clock), WithPublisher(rec), WithSource(fixedSource(0)))

	view, err := c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Version)

	view, _, err = c.StartGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Version)

	view, _, err = c.Click(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Version)

	// A rejected click answers with the current version.
	view, applied, err := c.Click(ctx, 0)
	require.NoError(t, err)
	require.False(t, applied)
	assert.Equal(t, 2, view.Version)

	clock.fire(t)
	waitPhase(t, c, PhaseAwaitingPlayer)

	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, v := range rec.views {
		assert.Equal(t, i+1, v.Version, "update %d", i)
	}
}

func TestController_RandomReplyOnlyAddsOneMark(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := startController(t, WithClock(clock))

	_, _, err := c.StartGame(ctx)
	require.NoError(t, err)
	_, _, err = c.Click(ctx, 0)
	require.NoError(t, err)

	clock.fire(t)
	s := waitPhase(t, c, PhaseAwaitingPlayer)

	assert.Equal(t, x, s.Board[0])
	assert.Equal(t, 1, countMarks(s.Board, x))
	assert.Equal(t, 1, countMarks(s.Board, o))
	assert.Equal(t, 7, countMarks(s.Board, e))
}

func TestController_PlayerWinShowsModal(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	// The computer always takes the first empty cell: X plays 0, O takes 1,
	// X plays 3, O takes 2, X plays 6 and completes the left column.
	c := startController(t, WithClock(clock), WithSource(fixedSource(0)))

	_, _, err := c.StartGame(ctx)
	require.NoError(t, err)

	for _, cell := range []int{0, 3} {
		_, applied, err := c.Click(ctx, cell)
		require.NoError(t, err)
		require.True(t, applied)
		clock.fire(t)
		waitPhase(t, c, PhaseAwaitingPlayer)
	}

	view, applied, err := c.Click(ctx, 6)
	require.NoError(t, err)
	require.True(t, applied)

	assert.Equal(t, string(PhaseRoundOver), view.Phase)
	assert.Equal(t, game.OutcomeX, view.Outcome)
	require.NotNil(t, view.Modal)
	assert.Equal(t, "You Win!", view.Modal.Message)
	assert.Equal(t, 2, clock.pending(), "no computer move is scheduled after a win")

	// No more moves until reset.
	_, applied, err = c.Click(ctx, 8)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestController_TryAgainAndExit(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := startController(t, WithClock(clock), WithSource(fixedSource(0)))

	playToWin := func() {
		_, _, err := c.StartGame(ctx)
		require.NoError(t, err)
		for _, cell := range []int{0, 3} {
			_, _, err := c.Click(ctx, cell)
			require.NoError(t, err)
			clock.fire(t)
			waitPhase(t, c, PhaseAwaitingPlayer)
		}
		_, _, err = c.Click(ctx, 6)
		require.NoError(t, err)
	}

	playToWin()

	view, applied, err := c.TryAgain(ctx)
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, "game", view.Screen)
	assert.Equal(t, game.Board{}, boardOf(view))
	assert.Nil(t, view.Modal)
	assert.Equal(t, game.OutcomeNone, view.Outcome)
	assert.Equal(t, game.PlayerX, view.Turn)

	// Start Game is not available on the game screen.
	_, applied, err = c.StartGame(ctx)
	require.NoError(t, err)
	assert.False(t, applied)

	for _, cell := range []int{0, 3} {
		_, _, err := c.Click(ctx, cell)
		require.NoError(t, err)
		clock.fire(t)
		waitPhase(t, c, PhaseAwaitingPlayer)
	}
	_, _, err = c.Click(ctx, 6)
	require.NoError(t, err)

	view, applied, err = c.Exit(ctx)
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, "start", view.Screen)

	view, applied, err = c.StartGame(ctx)
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, game.Board{}, boardOf(view))
	assert.Nil(t, view.Modal)
}

func TestController_TryAgainIgnoredWhileRunning(t *testing.T) {
	ctx := context.Background()
	c := startController(t, WithClock(newFakeClock()))

	_, applied, err := c.TryAgain(ctx)
	require.NoError(t, err)
	assert.False(t, applied)

	_, applied, err = c.Exit(ctx)
	require.NoError(t, err)
	assert.False(t, applied)

	view, err := c.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "start", view.Screen)
}

func TestController_CloseDiscardsPendingComputerMove(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rec := &recorder{}
	c := New("session-1", WithClock(clock), WithPublisher(rec))
	go c.Run(context.Background())

	_, _, err := c.StartGame(ctx)
	require.NoError(t, err)
	_, _, err = c.Click(ctx, 4)
	require.NoError(t, err)
	published := rec.count()

	c.Close()
	<-c.Done()

	timer := clock.timers[0]
	assert.True(t, timer.isStopped())

	// The timer firing after teardown has nobody to mutate.
	timer.c <- time.Now()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, published, rec.count())

	_, _, err = c.Click(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.View(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// Close is idempotent.
	c.Close()
}

func TestController_RunContextCancel(t *testing.T) {
	runCtx, cancel := context.WithCancel(context.Background())
	c := New("session-1", WithClock(newFakeClock()))
	go c.Run(runCtx)

	cancel()
	<-c.Done()

	_, err := c.View(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestController_CallerContext(t *testing.T) {
	// Run is never started, so the command cannot be delivered.
	c := New("session-1")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.View(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestController_PublishesEveryAcceptedTransition(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mock_controller.NewMockPublisher(ctrl)
	ctx := context.Background()

	pub.EXPECT().
		Publish(gomock.Any(), "session-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, ev events.Event) error {
			assert.Equal(t, events.TypeUpdate, ev.Type)
			return nil
		}).
		Times(2)

	c := startController(t, WithClock(newFakeClock()), WithPublisher(pub))

	_, _, err := c.StartGame(ctx)
	require.NoError(t, err)
	_, _, err = c.Click(ctx, 0)
	require.NoError(t, err)

	// Rejected input publishes nothing.
	_, applied, err := c.Click(ctx, 0)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestController_PublishErrorDoesNotRollBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mock_controller.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down")).AnyTimes()

	c := startController(t, WithClock(newFakeClock()), WithPublisher(pub))

	view, applied, err := c.StartGame(context.Background())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "game", view.Screen)
}

func TestController_LastActive(t *testing.T) {
	clock := newFakeClock()
	c := startController(t, WithClock(clock))
	before := c.LastActive()
	assert.Equal(t, clock.Now(), before)

	clock.mu.Lock()
	clock.now = clock.now.Add(time.Minute)
	clock.mu.Unlock()

	_, err := c.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Add(time.Minute), c.LastActive())
}

func TestController_WithComputerDelay(t *testing.T) {
	clock := newFakeClock()
	c := startController(t, WithClock(clock), WithComputerDelay(25*time.Millisecond))

	_, _, err := c.StartGame(context.Background())
	require.NoError(t, err)
	_, _, err = c.Click(context.Background(), 0)
	require.NoError(t, err)

	require.Equal(t, 1, clock.pending())
	assert.Equal(t, 25*time.Millisecond, clock.timers[0].delay)
}

func TestController_RealClock(t *testing.T) {
	c := startController(t, WithComputerDelay(5*time.Millisecond))

	_, _, err := c.StartGame(context.Background())
	require.NoError(t, err)
	_, _, err = c.Click(context.Background(), 8)
	require.NoError(t, err)

	s := waitPhase(t, c, PhaseAwaitingPlayer)
	assert.Equal(t, 1, countMarks(s.Board, o))
}
