package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultExecutionTimeout bounds every call into Lua.
const DefaultExecutionTimeout = 2 * time.Second

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe; the mutex serialises all
// access from Go.
type State struct {
	L *lua.LState

	mu      sync.Mutex
	timeout time.Duration
	closed  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithExecutionTimeout sets the deadline applied to each call.
func WithExecutionTimeout(d time.Duration) StateOption {
	return func(s *State) {
		s.timeout = d
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) *State {
	state := &State{timeout: DefaultExecutionTimeout}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	installSandbox(L)
	state.L = L
	return state
}

// openSafeLibraries opens only safe Lua standard libraries. io, os, debug
// and package stay closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// DoString executes a Lua chunk.
func (s *State) DoString(ctx context.Context, name, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	fn, err := s.L.Load(stringReader(code), name)
	if err != nil {
		return err
	}
	return s.run(ctx, func() error {
		s.L.Push(fn)
		return s.L.PCall(0, 0, nil)
	})
}

// Call calls a global Lua function and returns its first result, or LNil
// when it returns nothing.
func (s *State) Call(ctx context.Context, fn string, args ...lua.LValue) (lua.LValue, error) {
	return s.Invoke(ctx, fn, func(*lua.LState) []lua.LValue { return args })
}

// Invoke is Call with arguments built under the state's lock, for values
// such as tables that must be allocated on the state.
func (s *State) Invoke(ctx context.Context, fn string, build func(L *lua.LState) []lua.LValue) (lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil, ErrStateClosed
	}

	fnVal := s.L.GetGlobal(fn)
	if fnVal.Type() != lua.LTFunction {
		return lua.LNil, fmt.Errorf("%q is not a function (got %s)", fn, fnVal.Type())
	}

	args := build(s.L)
	err := s.run(ctx, func() error {
		return s.L.CallByParam(lua.P{Fn: fnVal, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		return lua.LNil, err
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	return ret, nil
}

// HasFunction reports whether a global function is defined.
func (s *State) HasFunction(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.L.GetGlobal(name).Type() == lua.LTFunction
}

// run executes fn under the state's deadline with panic recovery. Must be
// called with mu held.
func (s *State) run(ctx context.Context, fn func() error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	top := s.L.GetTop()
	err = fn()
	if err != nil {
		s.L.SetTop(top)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrExecutionTimeout
		}
	}
	return err
}

// Close releases the Lua state.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
