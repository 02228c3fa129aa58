package store

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/spellmark/internal/overlay"
	"github.com/dshills/spellmark/internal/spell"
)

var en = spell.Language{Name: "English", Code: "en"}

func attachTo(m *overlay.Manager, block string) func() (overlay.Handle, error) {
	return func() (overlay.Handle, error) { return m.Attach("doc", block) }
}

func TestStore_EnsureCreatesOnce(t *testing.T) {
	s := New()
	m := overlay.NewManager(overlay.DefaultConfig())

	r, created, err := s.Ensure("b1", "doc", en, attachTo(m, "b1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, spell.StateUnchecked, r.State)
	require.NotNil(t, r.Handle)

	r2, created, err := s.Ensure("b1", "doc", en, attachTo(m, "b1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, r.Handle.ID(), r2.Handle.ID())
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, 1, s.Len())
}

func TestStore_EnsureAttachError(t *testing.T) {
	s := New()
	boom := errors.New("boom")

	_, _, err := s.Ensure("b1", "doc", en, func() (overlay.Handle, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())
}

func TestStore_StateMachine(t *testing.T) {
	s := New()
	_, _, err := s.Ensure("b1", "doc", en, nil)
	require.NoError(t, err)

	require.True(t, s.BeginCheck("b1", en, false))
	assert.False(t, s.BeginCheck("b1", en, false), "pending records are never claimed twice")

	sugg := []spell.Suggestion{{Offset: 0, Length: 3, Replacements: []string{"This"}}}
	require.NoError(t, s.Complete("b1", sugg))

	r, ok := s.Get("b1")
	require.True(t, ok)
	assert.Equal(t, spell.StateChecked, r.State)
	assert.Equal(t, sugg, r.Suggestions)
	assert.False(t, r.CheckedAt.IsZero())

	assert.False(t, s.BeginCheck("b1", en, false))
	require.True(t, s.BeginCheck("b1", en, true))
	require.NoError(t, s.Fail("b1"))

	r, _ = s.Get("b1")
	assert.Equal(t, spell.StateFailed, r.State)
	assert.Equal(t, sugg, r.Suggestions, "failed checks keep earlier suggestions")
	assert.False(t, s.BeginCheck("b1", en, false))
}

func TestStore_CompleteAfterRemove(t *testing.T) {
	s := New()
	m := overlay.NewManager(overlay.DefaultConfig())
	_, _, err := s.Ensure("b1", "doc", en, attachTo(m, "b1"))
	require.NoError(t, err)
	require.True(t, s.BeginCheck("b1", en, false))

	assert.True(t, s.Remove("b1"))
	assert.False(t, s.Remove("b1"))
	assert.Equal(t, 0, m.Count(), "handle destroyed with its record")

	assert.ErrorIs(t, s.Complete("b1", nil), spell.ErrDetachedBlock)
	assert.ErrorIs(t, s.Fail("b1"), spell.ErrDetachedBlock)
	assert.False(t, s.BeginCheck("b1", en, true))
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	_, _, _ = s.Ensure("b1", "doc", en, nil)
	s.BeginCheck("b1", en, false)
	_ = s.Complete("b1", []spell.Suggestion{{Replacements: []string{"a"}}})

	got := s.Suggestions("b1")
	got[0].Replacements[0] = "mutated"
	assert.Equal(t, "a", s.Suggestions("b1")[0].Replacements[0])
}

func TestStore_ClearAndOrder(t *testing.T) {
	s := New()
	m := overlay.NewManager(overlay.DefaultConfig())
	for _, id := range []string{"b3", "b1", "b2"} {
		_, _, err := s.Ensure(id, "doc", en, attachTo(m, id))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"b3", "b1", "b2"}, s.IDs())

	s.Remove("b1")
	assert.Equal(t, []string{"b3", "b2"}, s.IDs())

	s.BeginCheck("b2", en, false)
	counts := s.Counts()
	assert.Equal(t, 1, counts[spell.StateUnchecked])
	assert.Equal(t, 1, counts[spell.StatePending])

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.IDs())
	assert.Equal(t, 0, m.Count())
}

func TestStore_ConcurrentBeginCheck(t *testing.T) {
	s := New()
	_, _, _ = s.Ensure("b1", "doc", en, nil)

	var claimed atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginCheck("b1", en, true) {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), claimed.Load())
}

func TestStore_ForcedClaimWhilePending(t *testing.T) {
	s := New()
	_, _, err := s.Ensure("b1", "doc", en, nil)
	require.NoError(t, err)
	de := spell.Language{Name: "German", Code: "de"}

	require.True(t, s.BeginCheck("b1", en, false))
	assert.False(t, s.BeginCheck("b1", de, true), "the running check keeps ownership")

	stale := []spell.Suggestion{{Offset: 0, Length: 3}}
	assert.ErrorIs(t, s.Complete("b1", stale), ErrSuperseded)
	r, _ := s.Get("b1")
	assert.Equal(t, spell.StatePending, r.State)
	assert.Empty(t, r.Suggestions, "superseded results are dropped")
	assert.Equal(t, "de", r.Language.Code)

	require.NoError(t, s.Complete("b1", nil))
	r, _ = s.Get("b1")
	assert.Equal(t, spell.StateChecked, r.State)
}

func TestStore_UnforcedClaimWhilePending(t *testing.T) {
	s := New()
	_, _, _ = s.Ensure("b1", "doc", en, nil)

	require.True(t, s.BeginCheck("b1", en, false))
	assert.False(t, s.BeginCheck("b1", en, false))
	require.NoError(t, s.Complete("b1", nil))
}

func TestStore_FailSuperseded(t *testing.T) {
	s := New()
	_, _, _ = s.Ensure("b1", "doc", en, nil)

	require.True(t, s.BeginCheck("b1", en, false))
	s.BeginCheck("b1", en, true)
	assert.ErrorIs(t, s.Fail("b1"), ErrSuperseded)
	require.NoError(t, s.Fail("b1"))
	r, _ := s.Get("b1")
	assert.Equal(t, spell.StateFailed, r.State)
}

func TestStore_Activate(t *testing.T) {
	s := New()
	m := overlay.NewManager(overlay.DefaultConfig())
	_, _, err := s.Ensure("a1", "docA", en, attachTo(m, "a1"))
	require.NoError(t, err)

	s.Activate("docB")
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, m.Count(), "handles of the old document destroyed")

	attached := false
	_, _, err = s.Ensure("a2", "docA", en, func() (overlay.Handle, error) {
		attached = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrInactiveDocument)
	assert.False(t, attached, "no overlay for an inactive document")

	_, created, err := s.Ensure("b1", "docB", en, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"b1"}, s.IDs())
}
