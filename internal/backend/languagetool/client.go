// Package languagetool is a client for the LanguageTool HTTP API.
package languagetool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/dshills/spellmark/internal/reconcile"
	"github.com/dshills/spellmark/internal/spell"
)

// BackendName identifies this backend in errors.
const BackendName = "languagetool"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Settings configure one request. They are read again for every call.
type Settings struct {
	// Server is the base URL, ending in a slash.
	Server            string
	Username          string
	APIKey            string
	Picky             bool
	MotherTongue      string
	PreferredVariants []string

	// RequestsPerMinute paces requests; 0 disables pacing.
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client talks to a LanguageTool server.
type Client struct {
	settings   func() Settings
	httpClient *http.Client

	mu      sync.Mutex
	limiter *rate.Limiter
	rpm     int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client. settings is called once per request.
func New(settings func() Settings, opts ...Option) *Client {
	c := &Client{
		settings:   settings,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check implements backend.Checker. Offsets reported by the server are
// UTF-16 code units and are converted to runes.
func (c *Client) Check(ctx context.Context, text string, languages []string) ([]spell.Suggestion, error) {
	s := c.settings()

	lang := spell.AutoLanguage
	if len(languages) > 0 && languages[0] != "" {
		lang = languages[0]
	}

	form := url.Values{}
	form.Set("text", text)
	form.Set("language", lang)
	if s.Picky {
		form.Set("level", "picky")
	} else {
		form.Set("level", "default")
	}
	if s.MotherTongue != "" {
		form.Set("motherTongue", s.MotherTongue)
	}
	if s.Username != "" {
		form.Set("username", s.Username)
	}
	if s.APIKey != "" {
		form.Set("apiKey", s.APIKey)
	}
	if lang == spell.AutoLanguage && len(s.PreferredVariants) > 0 {
		form.Set("preferredVariants", strings.Join(s.PreferredVariants, ","))
	}

	body, err := c.do(ctx, s, http.MethodPost, "v2/check", form)
	if err != nil {
		return nil, err
	}

	matches := gjson.GetBytes(body, "matches").Array()
	out := make([]spell.Suggestion, 0, len(matches))
	for _, m := range matches {
		offset, length := reconcile.UTF16SpanToRunes(text, int(m.Get("offset").Int()), int(m.Get("length").Int()))
		if length <= 0 {
			continue
		}
		values := m.Get("replacements.#.value").Array()
		reps := make([]string, 0, len(values))
		for _, v := range values {
			reps = append(reps, v.String())
		}
		typeName := m.Get("type.typeName").String()
		out = append(out, spell.Suggestion{
			Offset:       offset,
			Length:       length,
			Message:      m.Get("message").String(),
			ShortMessage: m.Get("shortMessage").String(),
			Replacements: reps,
			Category:     spell.ParseCategory(typeName),
			Type:         typeName,
			Rule:         m.Get("rule.id").String(),
		})
	}
	return out, nil
}

// Languages implements backend.Checker.
func (c *Client) Languages(ctx context.Context) ([]spell.Language, error) {
	body, err := c.do(ctx, c.settings(), http.MethodGet, "v2/languages", nil)
	if err != nil {
		return nil, err
	}
	var langs []spell.Language
	gjson.ParseBytes(body).ForEach(func(_, l gjson.Result) bool {
		langs = append(langs, spell.Language{
			Name:     l.Get("name").String(),
			Code:     l.Get("code").String(),
			LongCode: l.Get("longCode").String(),
		})
		return true
	})
	return langs, nil
}

// do sends one request and returns the JSON body of a successful reply.
func (c *Client) do(ctx context.Context, s Settings, method, path string, form url.Values) ([]byte, error) {
	if err := c.wait(ctx, s.RequestsPerMinute); err != nil {
		return nil, unavailable(0, err)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	endpoint := s.Server + path
	var payload io.Reader
	if form != nil {
		payload = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return nil, unavailable(0, err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(0, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, unavailable(res.StatusCode, fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(msg))))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, unavailable(res.StatusCode, fmt.Errorf("read %s response: %w", path, err))
	}
	if !gjson.ValidBytes(body) {
		return nil, unavailable(res.StatusCode, fmt.Errorf("decode %s response: invalid JSON", path))
	}
	return body, nil
}

// wait blocks until the pacing limiter admits one request. The limiter is
// rebuilt when the configured rate changes.
func (c *Client) wait(ctx context.Context, rpm int) error {
	c.mu.Lock()
	if rpm != c.rpm {
		c.rpm = rpm
		if rpm > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
		} else {
			c.limiter = nil
		}
	}
	lim := c.limiter
	c.mu.Unlock()

	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

func unavailable(status int, cause error) error {
	return &spell.BackendError{
		Backend: BackendName,
		Status:  status,
		Err:     fmt.Errorf("%w: %w", spell.ErrBackendUnavailable, cause),
	}
}
