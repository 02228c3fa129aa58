package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/spell"
)

type stubChecker struct {
	name  string
	calls int
}

func (s *stubChecker) Check(ctx context.Context, text string, languages []string) ([]spell.Suggestion, error) {
	s.calls++
	return []spell.Suggestion{{Offset: 0, Length: len(text), Message: s.name}}, nil
}

func (s *stubChecker) Languages(ctx context.Context) ([]spell.Language, error) {
	return []spell.Language{{Name: s.name, Code: s.name}}, nil
}

func TestAdapter_SelectsPerCall(t *testing.T) {
	store := config.NewStore(nil)
	online := &stubChecker{name: "online"}
	offline := &stubChecker{name: "offline"}
	a := NewAdapter(store, online, offline)

	ctx := context.Background()
	got, err := a.Check(ctx, "abc", nil)
	require.NoError(t, err)
	assert.Equal(t, "online", got[0].Message)
	assert.Equal(t, VariantOnline, a.Variant().Kind)

	store.Update(func(c *config.Config) { c.General.Offline = true })

	got, err = a.Check(ctx, "abc", nil)
	require.NoError(t, err)
	assert.Equal(t, "offline", got[0].Message)
	assert.Equal(t, 1, online.calls)
	assert.Equal(t, 1, offline.calls)

	langs, err := a.Languages(ctx)
	require.NoError(t, err)
	assert.Equal(t, "offline", langs[0].Code)
}

func TestAdapter_MissingArm(t *testing.T) {
	store := config.NewStore(nil)
	a := NewAdapter(store, nil, nil)

	_, err := a.Check(context.Background(), "abc", nil)
	assert.ErrorIs(t, err, spell.ErrBackendUnavailable)
	var be *spell.BackendError
	assert.True(t, errors.As(err, &be))

	store.Update(func(c *config.Config) { c.General.Offline = true })
	_, err = a.Check(context.Background(), "abc", nil)
	assert.ErrorIs(t, err, spell.ErrDictionaryMissing)
	assert.Equal(t, "offline", VariantOffline.String())
}
