package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/spellmark/internal/app"
	"github.com/dshills/spellmark/internal/engine"
	"github.com/dshills/spellmark/internal/overlay/term"
)

// redrawInterval paces repaints while checks complete in the background.
const redrawInterval = 100 * time.Millisecond

const viewHelp = "click a word | 1-9 apply | w add word | r recheck | q quit"

// viewer is the interactive terminal view of one document.
type viewer struct {
	app      *app.Application
	screen   tcell.Screen
	renderer *term.Renderer

	documentID string

	// selection is the suggestion last clicked.
	blockID    string
	suggestion int
}

func viewCmd(ctx context.Context, opts app.Options, args []string) error {
	path, err := oneFile(args)
	if err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to create terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	defer screen.Fini()
	screen.EnableMouse()

	r := term.New(screen)
	r.SetStatus(viewHelp)
	opts.Renderer = r
	opts.Notifier = engine.NotifierFunc(func(n engine.Notice) {
		msg := n.Message
		if n.Err != nil {
			msg += ": " + n.Err.Error()
		}
		r.SetStatus(msg)
	})

	a, err := app.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	id, err := a.Open(path)
	if err != nil {
		return err
	}
	v := &viewer{app: a, screen: screen, renderer: r, documentID: id, suggestion: -1}
	if err := v.loop(ctx); err != nil {
		return err
	}
	cancel()
	return <-done
}

func (v *viewer) loop(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(redrawInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v.renderer.Draw()
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				v.screen.Sync()
				v.renderer.Draw()
			case *tcell.EventMouse:
				if ev.Buttons()&tcell.Button1 != 0 {
					x, y := ev.Position()
					v.selectAt(x, y)
				}
			case *tcell.EventKey:
				if v.key(ctx, ev) {
					return nil
				}
			}
		}
	}
}

// key handles a key press and reports whether the view should close.
func (v *viewer) key(ctx context.Context, ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
	default:
		return false
	}
	switch ch := ev.Rune(); {
	case ch == 'q':
		return true
	case ch == 'r':
		v.clearSelection()
		if err := v.app.Engine().Refresh(ctx); err != nil {
			v.renderer.SetStatus(err.Error())
		}
	case ch == 'w':
		v.addWord(ctx)
	case ch >= '1' && ch <= '9':
		v.apply(ctx, int(ch-'1'))
	}
	return false
}

func (v *viewer) selectAt(x, y int) {
	blockID, p, ok := v.renderer.Hit(x, y)
	if !ok {
		v.clearSelection()
		return
	}
	i := v.app.Engine().SuggestionAt(blockID, p)
	if i < 0 {
		v.clearSelection()
		return
	}
	v.blockID, v.suggestion = blockID, i

	suggestions := v.app.Engine().ListSuggestions(blockID)
	if i >= len(suggestions) {
		v.clearSelection()
		return
	}
	s := suggestions[i]
	var b strings.Builder
	b.WriteString(s.ShortMessage)
	if s.Message != "" && s.Message != s.ShortMessage {
		b.WriteString(": " + s.Message)
	}
	for n, r := range s.Replacements[:min(len(s.Replacements), 9)] {
		fmt.Fprintf(&b, "  %d) %s", n+1, r)
	}
	v.renderer.SetStatus(b.String())
	v.renderer.Draw()
}

func (v *viewer) clearSelection() {
	v.blockID, v.suggestion = "", -1
	v.renderer.SetStatus(viewHelp)
}

func (v *viewer) apply(ctx context.Context, replacement int) {
	if v.suggestion < 0 {
		return
	}
	err := v.app.Engine().ApplyCorrection(ctx, v.blockID, v.suggestion, replacement)
	v.clearSelection()
	if err != nil {
		v.renderer.SetStatus(err.Error())
		return
	}
	if err := v.app.Save(v.documentID); err != nil {
		v.renderer.SetStatus(err.Error())
	}
}

func (v *viewer) addWord(ctx context.Context) {
	if v.suggestion < 0 {
		return
	}
	text, err := v.app.Host().BlockText(v.blockID)
	if err != nil {
		v.clearSelection()
		return
	}
	suggestions := v.app.Engine().ListSuggestions(v.blockID)
	if v.suggestion >= len(suggestions) {
		v.clearSelection()
		return
	}
	s := suggestions[v.suggestion]
	runes := []rune(text)
	word := string(runes[s.Offset:min(s.End(), len(runes))])
	v.clearSelection()
	if err := v.app.AddWord(ctx, word); err != nil {
		v.renderer.SetStatus(err.Error())
		return
	}
	v.renderer.SetStatus(fmt.Sprintf("added %q", word))
}
