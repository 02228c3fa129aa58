package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/host"
	"github.com/dshills/spellmark/internal/overlay"
	"github.com/dshills/spellmark/internal/spell"
	"github.com/dshills/spellmark/internal/store"
)

type schedFixture struct {
	host     *fakeHost
	ids      []string
	checker  *wordChecker
	store    *store.Store
	overlays *overlay.Manager
	notices  *recordNotices
	settings *config.Store
	sched    *Scheduler
	sess     *Session
}

func newSchedFixture(t *testing.T, mutate func(*config.Config), markups ...string) *schedFixture {
	t.Helper()
	f := &schedFixture{
		checker:  newWordChecker(),
		store:    store.New(),
		overlays: overlay.NewManager(overlay.DefaultConfig()),
		notices:  &recordNotices{},
		settings: testSettings(mutate),
	}
	f.host, f.ids = newFakeHost("doc", markups...)
	f.sched = NewScheduler(SchedulerOptions{
		Host:     f.host,
		Store:    f.store,
		Checker:  f.checker,
		Renderer: f.overlays,
		Settings: f.settings,
		Notifier: f.notices,
	})
	t.Cleanup(f.sched.Close)
	f.sess = NewSession("doc", nil, f.settings.Get())
	return f
}

func manyBlocks(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Block %d is fine", i)
	}
	return out
}

func TestScheduler_Discover(t *testing.T) {
	h, _ := newFakeHost("doc")
	h.children["doc"] = []host.Block{{ID: "p1"}, {ID: "list", Container: true}, {ID: "p4"}}
	h.children["list"] = []host.Block{{ID: "item", Container: true}, {ID: "p3"}}
	h.children["item"] = []host.Block{{ID: "p2"}}
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		h.markup[id] = id
	}

	st := store.New()
	m := overlay.NewManager(overlay.DefaultConfig())
	s := NewScheduler(SchedulerOptions{Host: h, Store: st, Checker: newWordChecker(), Renderer: m, Settings: testSettings(nil)})
	defer s.Close()

	sess := NewSession("doc", nil, config.Default())
	ids, err := s.Discover(context.Background(), sess, "doc")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, ids)
	assert.Equal(t, 4, st.Len())
	assert.Equal(t, 4, m.Count())

	rec, ok := st.Get("p2")
	require.True(t, ok)
	assert.Equal(t, spell.StateUnchecked, rec.State)
	assert.Equal(t, "doc", rec.DocumentID)

	// Rediscovery keeps existing records.
	_, err = s.Discover(context.Background(), sess, "doc")
	require.NoError(t, err)
	assert.Equal(t, 4, m.Count())
}

func TestScheduler_ConcurrencyBound(t *testing.T) {
	f := newSchedFixture(t, func(c *config.Config) {
		c.Scheduler.OnlineConcurrency = 4
	}, manyBlocks(25)...)
	f.checker.delay = 5 * time.Millisecond

	err := f.sched.FullPass(context.Background(), f.sess, PassOptions{Suggest: true, Render: true})
	require.NoError(t, err)

	snap := f.sched.Metrics().Snapshot()
	assert.Equal(t, uint64(25), snap.ChecksStarted)
	assert.LessOrEqual(t, snap.PeakInFlight, int64(4))
	assert.LessOrEqual(t, f.checker.peak.Load(), int64(4))
	assert.Equal(t, uint64(7), snap.Batches)
	assert.Equal(t, int64(0), snap.InFlight)
	assert.Equal(t, 25, f.store.Counts()[spell.StateChecked])
}

func TestScheduler_OfflineUnbounded(t *testing.T) {
	f := newSchedFixture(t, func(c *config.Config) {
		c.General.Offline = true
		c.Scheduler.OfflineConcurrency = 0
	}, manyBlocks(12)...)

	require.NoError(t, f.sched.FullPass(context.Background(), f.sess, PassOptions{Suggest: true}))
	assert.Equal(t, uint64(1), f.sched.Metrics().Snapshot().Batches)
}

func TestScheduler_ExplicitLimit(t *testing.T) {
	f := newSchedFixture(t, nil, manyBlocks(5)...)

	var yields int
	f.sched.yielder = YielderFunc(func(ctx context.Context) error {
		yields++
		return nil
	})
	require.NoError(t, f.sched.FullPass(context.Background(), f.sess, PassOptions{Suggest: true, Limit: 2}))
	assert.Equal(t, uint64(3), f.sched.Metrics().Snapshot().Batches)
	assert.Equal(t, 2, yields)
}

func TestScheduler_YielderErrorStopsPass(t *testing.T) {
	f := newSchedFixture(t, nil, manyBlocks(4)...)
	ctx, cancel := context.WithCancel(context.Background())
	f.sched.yielder = YielderFunc(func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})

	err := f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Limit: 2})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(2), f.checker.calls.Load())
}

func TestScheduler_PendingSkipped(t *testing.T) {
	f := newSchedFixture(t, nil, manyBlocks(3)...)
	ctx := context.Background()

	_, err := f.sched.Discover(ctx, f.sess, "doc")
	require.NoError(t, err)
	require.True(t, f.store.BeginCheck(f.ids[1], f.sess.Language, false))

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Force: true}))
	assert.Equal(t, int64(2), f.checker.calls.Load())

	rec, _ := f.store.Get(f.ids[1])
	assert.Equal(t, spell.StatePending, rec.State)
}

func TestScheduler_CheckedNotRecheckedWithoutForce(t *testing.T) {
	f := newSchedFixture(t, nil, manyBlocks(3)...)
	ctx := context.Background()

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true}))
	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true}))
	assert.Equal(t, int64(3), f.checker.calls.Load())

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Force: true}))
	assert.Equal(t, int64(6), f.checker.calls.Load())
}

func TestScheduler_BackendFailure(t *testing.T) {
	f := newSchedFixture(t, nil, manyBlocks(3)...)
	f.checker.err = &spell.BackendError{Backend: "languagetool", Status: 503, Err: spell.ErrBackendUnavailable}
	ctx := context.Background()

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true}))
	assert.Equal(t, 3, f.store.Counts()[spell.StateFailed])
	assert.Len(t, f.notices.all(), 3)
	assert.Equal(t, uint64(3), f.sched.Metrics().Snapshot().ChecksFailed)

	// No automatic retry.
	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true}))
	assert.Equal(t, int64(3), f.checker.calls.Load())
	assert.Len(t, f.notices.all(), 3)
}

func TestScheduler_DictionaryMissingNoticedOnce(t *testing.T) {
	f := newSchedFixture(t, nil, manyBlocks(3)...)
	f.checker.err = fmt.Errorf("%w: en", spell.ErrDictionaryMissing)
	ctx := context.Background()

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true}))
	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Force: true}))

	assert.Equal(t, 3, f.store.Counts()[spell.StateFailed])
	notices := f.notices.all()
	require.Len(t, notices, 1)
	assert.ErrorIs(t, notices[0].Err, spell.ErrDictionaryMissing)
}

func TestScheduler_DetachedBlockPruned(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths one", "fine", "testt")
	ctx := context.Background()

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true}))
	require.Equal(t, 3, f.overlays.Count())

	f.host.detach(f.ids[0])
	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Render: true}))

	_, ok := f.store.Get(f.ids[0])
	assert.False(t, ok)
	assert.Equal(t, 2, f.overlays.Count())
	assert.Nil(t, f.overlays.Marks(f.ids[0]))
}

func TestScheduler_DetachedBlockOnRender(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths one", "fine")
	ctx := context.Background()

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true}))
	f.host.ghost(f.ids[0])

	f.sched.render(ctx, f.sess, f.ids[0])
	_, ok := f.store.Get(f.ids[0])
	assert.False(t, ok)
	assert.Equal(t, 1, f.overlays.Count())
}

func TestScheduler_StaleResultDiscarded(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths")
	f.checker.delay = 20 * time.Millisecond
	ctx := context.Background()

	_, err := f.sched.Discover(ctx, f.sess, "doc")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		f.sched.check(ctx, f.sess, f.ids[0], false)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	f.store.Remove(f.ids[0])
	<-done

	assert.Equal(t, 0, f.store.Len())
}

func TestScheduler_RenderIdempotent(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths is a testt.")
	ctx := context.Background()

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true}))
	first := f.overlays.Marks(f.ids[0])
	require.Len(t, first, 2)

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Render: true}))
	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Render: true}))
	assert.Equal(t, first, f.overlays.Marks(f.ids[0]))
}

func TestScheduler_CustomDictionaryExcluded(t *testing.T) {
	f := newSchedFixture(t, func(c *config.Config) {
		c.General.CustomDictionary = []string{"testt"}
	}, "Ths is a testt.")
	ctx := context.Background()

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true}))

	marks := f.overlays.Marks(f.ids[0])
	require.Len(t, marks, 1)
	assert.Equal(t, 0, marks[0].Suggestion)
	assert.Len(t, f.store.Suggestions(f.ids[0]), 2)
}

func TestScheduler_ExcludedElements(t *testing.T) {
	f := newSchedFixture(t, nil, `Ths <code>testt</code> <span data-type="inline-math">xyz</span>`)
	ctx := context.Background()

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true}))

	assert.Len(t, f.store.Suggestions(f.ids[0]), 3)
	marks := f.overlays.Marks(f.ids[0])
	require.Len(t, marks, 1)
	assert.Equal(t, 0, marks[0].Suggestion)
}

func TestScheduler_DisabledSessionClears(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths")
	ctx := context.Background()

	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true}))
	require.Len(t, f.overlays.Marks(f.ids[0]), 1)

	off := *f.sess
	off.Enabled = false
	require.NoError(t, f.sched.FullPass(ctx, &off, PassOptions{Suggest: true, Render: true, Force: true}))
	assert.Empty(t, f.overlays.Marks(f.ids[0]))
	assert.Equal(t, int64(1), f.checker.calls.Load())
}

func TestScheduler_StaleSessionIgnored(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths")
	f.sched.Activate(NewSession("doc", nil, f.settings.Get()))

	require.NoError(t, f.sched.FullPass(context.Background(), f.sess, PassOptions{Suggest: true}))
	assert.Equal(t, int64(0), f.checker.calls.Load())
	assert.Equal(t, 0, f.store.Len())
}

func TestScheduler_CheckAndRender(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths", "testt")
	ctx := context.Background()

	require.NoError(t, f.sched.CheckAndRender(ctx, f.sess, f.ids[0]))
	f.sched.Wait()

	assert.Equal(t, int64(1), f.checker.calls.Load())
	assert.Len(t, f.overlays.Marks(f.ids[0]), 1)

	// The background pass renders but never checks.
	rec, ok := f.store.Get(f.ids[1])
	require.True(t, ok)
	assert.Equal(t, spell.StateUnchecked, rec.State)
}

func TestYielders(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, GoschedYielder{}.Yield(ctx))
	assert.NoError(t, DelayYielder{Delay: time.Millisecond}.Yield(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, GoschedYielder{}.Yield(cancelled), context.Canceled)
	assert.ErrorIs(t, DelayYielder{Delay: time.Hour}.Yield(cancelled), context.Canceled)
}

func TestScheduler_EditDuringCheck(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths is fine.")
	held, release := f.checker.holdWhen(func(text string) bool {
		return strings.HasPrefix(text, "Ths")
	})
	defer release()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true})
	}()
	waitHeld(t, held)

	require.NoError(t, f.host.ReplaceBlockContent(f.ids[0], "This is fine."))
	require.NoError(t, f.sched.CheckAndRender(ctx, f.sess, f.ids[0]))
	release()
	require.NoError(t, <-done)
	f.sched.Wait()

	rec, ok := f.store.Get(f.ids[0])
	require.True(t, ok)
	assert.Equal(t, spell.StateChecked, rec.State)
	assert.Empty(t, rec.Suggestions, "result for the old text is dropped")
	assert.Empty(t, f.overlays.Marks(f.ids[0]))
	assert.Equal(t, int64(2), f.checker.calls.Load())
	assert.Equal(t, []string{"Ths is fine.", "This is fine."}, f.checker.texts)
}

func TestScheduler_EditDuringFailingCheck(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths")
	held, release := f.checker.holdWhen(func(string) bool { return true })
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.sched.Discover(context.Background(), f.sess, "doc")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		f.sched.check(ctx, f.sess, f.ids[0], false)
		close(done)
	}()
	waitHeld(t, held)

	f.sched.check(context.Background(), f.sess, f.ids[0], true)
	cancel()
	<-done
	release()

	rec, _ := f.store.Get(f.ids[0])
	assert.Equal(t, spell.StateFailed, rec.State, "a cancelled check does not loop")
	assert.Equal(t, int64(1), f.checker.calls.Load())
}

func TestScheduler_StalePassAfterSwitch(t *testing.T) {
	f := newSchedFixture(t, nil, "Ths", "testt")
	other := f.host.addDoc("other", "fine")
	ctx := context.Background()
	require.NoError(t, f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true}))

	entered, release := f.host.holdChildren("doc")
	defer release()
	done := make(chan error, 1)
	go func() {
		done <- f.sched.FullPass(ctx, f.sess, PassOptions{Suggest: true, Render: true, Force: true})
	}()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("pass never reached discovery")
	}

	next := NewSession("other", nil, f.settings.Get())
	f.sched.Activate(next)
	f.store.Activate("other")
	require.NoError(t, f.sched.FullPass(ctx, next, PassOptions{Suggest: true, Render: true}))
	release()
	require.NoError(t, <-done)

	assert.Equal(t, other, f.store.IDs())
	assert.Equal(t, 1, f.overlays.Count())
}
