package languagetool

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/spellmark/internal/spell"
)

type fakeServer struct {
	mu    sync.Mutex
	forms []url.Values
	reply string
	code  int
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/check", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.forms = append(f.forms, r.PostForm)
		code, reply := f.code, f.reply
		f.mu.Unlock()
		if code != 0 {
			http.Error(w, "quota exceeded", code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	})
	mux.HandleFunc("/v2/languages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`[{"name":"English (US)","code":"en","longCode":"en-US"},{"name":"German","code":"de","longCode":"de"}]`))
	})
	return mux
}

func newClient(t *testing.T, f *fakeServer, mutate func(*Settings)) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	s := Settings{
		Server:            srv.URL + "/",
		MotherTongue:      "en-US",
		PreferredVariants: []string{"en-US", "de-DE"},
		Timeout:           5 * time.Second,
	}
	if mutate != nil {
		mutate(&s)
	}
	return New(func() Settings { return s }, WithHTTPClient(srv.Client()))
}

const thsReply = `{"matches":[
 {"message":"Possible spelling mistake found.","shortMessage":"Spelling mistake",
  "replacements":[{"value":"This"},{"value":"The"}],"offset":0,"length":3,
  "type":{"typeName":"UnknownWord"},"rule":{"id":"MORFOLOGIK_RULE_EN_US"}}
]}`

func TestClient_Check(t *testing.T) {
	f := &fakeServer{reply: thsReply}
	c := newClient(t, f, func(s *Settings) {
		s.Username = "me"
		s.APIKey = "secret"
	})

	got, err := c.Check(context.Background(), "Ths is a testt.", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, spell.Suggestion{
		Offset:       0,
		Length:       3,
		Message:      "Possible spelling mistake found.",
		ShortMessage: "Spelling mistake",
		Replacements: []string{"This", "The"},
		Category:     spell.CategoryUnknownWord,
		Type:         "UnknownWord",
		Rule:         "MORFOLOGIK_RULE_EN_US",
	}, got[0])

	require.Len(t, f.forms, 1)
	form := f.forms[0]
	assert.Equal(t, "Ths is a testt.", form.Get("text"))
	assert.Equal(t, "auto", form.Get("language"))
	assert.Equal(t, "default", form.Get("level"))
	assert.Equal(t, "en-US", form.Get("motherTongue"))
	assert.Equal(t, "me", form.Get("username"))
	assert.Equal(t, "secret", form.Get("apiKey"))
	assert.Equal(t, "en-US,de-DE", form.Get("preferredVariants"))
}

func TestClient_CheckExplicitLanguage(t *testing.T) {
	f := &fakeServer{reply: `{"matches":[]}`}
	c := newClient(t, f, func(s *Settings) { s.Picky = true })

	got, err := c.Check(context.Background(), "Hallo", []string{"de-DE"})
	require.NoError(t, err)
	assert.Empty(t, got)

	form := f.forms[0]
	assert.Equal(t, "de-DE", form.Get("language"))
	assert.Equal(t, "picky", form.Get("level"))
	assert.False(t, form.Has("preferredVariants"))
	assert.False(t, form.Has("username"))
	assert.False(t, form.Has("apiKey"))
}

func TestClient_CheckConvertsUTF16Offsets(t *testing.T) {
	f := &fakeServer{reply: `{"matches":[
	 {"message":"m","offset":3,"length":3,"replacements":[],"type":{"typeName":"Other"},"rule":{"id":"R"}}
	]}`}
	c := newClient(t, f, nil)

	got, err := c.Check(context.Background(), "😀 Ths", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Offset)
	assert.Equal(t, 3, got[0].Length)
	assert.Equal(t, spell.CategoryOther, got[0].Category)
	assert.Equal(t, "Ths", got[0].FlaggedText("😀 Ths"))
}

func TestClient_CheckHTTPError(t *testing.T) {
	f := &fakeServer{code: http.StatusTooManyRequests}
	c := newClient(t, f, nil)

	_, err := c.Check(context.Background(), "text", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, spell.ErrBackendUnavailable)

	var be *spell.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusTooManyRequests, be.Status)
	assert.Equal(t, BackendName, be.Backend)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestClient_CheckUnreachable(t *testing.T) {
	c := New(func() Settings {
		return Settings{Server: "http://127.0.0.1:1/", Timeout: time.Second}
	})

	_, err := c.Check(context.Background(), "text", nil)
	assert.ErrorIs(t, err, spell.ErrBackendUnavailable)
}

func TestClient_Languages(t *testing.T) {
	c := newClient(t, &fakeServer{}, nil)

	langs, err := c.Languages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []spell.Language{
		{Name: "English (US)", Code: "en", LongCode: "en-US"},
		{Name: "German", Code: "de", LongCode: "de"},
	}, langs)
}

func TestClient_Pacing(t *testing.T) {
	f := &fakeServer{reply: `{"matches":[]}`}
	c := newClient(t, f, func(s *Settings) { s.RequestsPerMinute = 1 })

	_, err := c.Check(context.Background(), "one", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Check(ctx, "two", nil)
	assert.ErrorIs(t, err, spell.ErrBackendUnavailable)
	assert.Len(t, f.forms, 1, "second request is held back by the limiter")
}

func TestClient_CheckMalformedReply(t *testing.T) {
	f := &fakeServer{reply: `{"matches":[`}
	c := newClient(t, f, nil)

	_, err := c.Check(context.Background(), "text", nil)
	assert.ErrorIs(t, err, spell.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "invalid JSON")
}
