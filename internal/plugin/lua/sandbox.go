package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// installSandbox removes loaders that reach the file system or compile
// arbitrary strings, and replaces print so scripts cannot write to stdout.
func installSandbox(L *lua.LState) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int { return 0 }))
}

func stringReader(code string) *strings.Reader {
	return strings.NewReader(code)
}
