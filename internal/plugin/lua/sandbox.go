package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// removedGlobals are base functions that can load code from outside the script.
var removedGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"require",
	"module",
}

// Sandbox restricts Lua execution to safe operations.
type Sandbox struct {
	L      *lua.LState
	output func(string)
}

// NewSandbox creates a new sandbox for the Lua state.
func NewSandbox(L *lua.LState, output func(string)) *Sandbox {
	return &Sandbox{L: L, output: output}
}

// Install removes code-loading functions and redirects print.
func (s *Sandbox) Install() {
	for _, name := range removedGlobals {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installPrint()
}

// installPrint replaces print with a version that hands the line to output.
func (s *Sandbox) installPrint() {
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		s.output(strings.Join(parts, "\t"))
		return 0
	}))
}
