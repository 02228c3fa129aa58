package lua

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/spellmark/internal/spell"
)

// FilterFunc is the global each script defines.
const FilterFunc = "filter"

// Filter runs a chain of filter scripts. A suggestion is kept only when
// every script keeps it.
type Filter struct {
	scripts []*script
}

type script struct {
	name  string
	state *State
}

// LoadFilters loads each script file. Scripts are loaded in order and all
// must define filter.
func LoadFilters(ctx context.Context, paths []string, opts ...StateOption) (*Filter, error) {
	f := &Filter{}
	for _, path := range paths {
		code, err := os.ReadFile(path)
		if err != nil {
			f.Close()
			return nil, &ScriptError{Script: path, Err: err}
		}
		if err := f.Add(ctx, filepath.Base(path), string(code), opts...); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// Add compiles and runs a script, then appends it to the chain.
func (f *Filter) Add(ctx context.Context, name, code string, opts ...StateOption) error {
	st := NewState(opts...)
	if err := st.DoString(ctx, name, code); err != nil {
		st.Close()
		return &ScriptError{Script: name, Err: err}
	}
	if !st.HasFunction(FilterFunc) {
		st.Close()
		return &ScriptError{Script: name, Err: ErrNoFilter}
	}
	f.scripts = append(f.scripts, &script{name: name, state: st})
	return nil
}

// Len returns the number of loaded scripts.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.scripts)
}

// Keep reports whether s survives every script. text is the flagged text.
// A script that fails keeps the suggestion; its error is returned joined
// with any others.
func (f *Filter) Keep(ctx context.Context, s spell.Suggestion, text string) (bool, error) {
	if f == nil {
		return true, nil
	}
	var errs []error
	for _, sc := range f.scripts {
		ret, err := sc.state.Invoke(ctx, FilterFunc, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{suggestionTable(L, s, text)}
		})
		if err != nil {
			errs = append(errs, &ScriptError{Script: sc.name, Err: err})
			continue
		}
		if ret == lua.LFalse {
			return false, errors.Join(errs...)
		}
	}
	return true, errors.Join(errs...)
}

// Close releases every script state.
func (f *Filter) Close() {
	if f == nil {
		return
	}
	for _, sc := range f.scripts {
		sc.state.Close()
	}
	f.scripts = nil
}

// suggestionTable builds the table passed to filter. Offsets are rune
// offsets, as in Go.
func suggestionTable(L *lua.LState, s spell.Suggestion, text string) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("offset", lua.LNumber(s.Offset))
	t.RawSetString("length", lua.LNumber(s.Length))
	t.RawSetString("text", lua.LString(text))
	t.RawSetString("message", lua.LString(s.Message))
	t.RawSetString("short_message", lua.LString(s.ShortMessage))
	t.RawSetString("category", lua.LString(s.Category.String()))
	t.RawSetString("type", lua.LString(s.Type))
	t.RawSetString("rule", lua.LString(s.Rule))

	reps := L.NewTable()
	for _, r := range s.Replacements {
		reps.Append(lua.LString(r))
	}
	t.RawSetString("replacements", reps)
	return t
}

// String lists the loaded script names.
func (f *Filter) String() string {
	names := make([]string, 0, f.Len())
	if f != nil {
		for _, sc := range f.scripts {
			names = append(names, sc.name)
		}
	}
	return fmt.Sprint(names)
}
