package extract

import (
	"fmt"
	"os"
	"path/filepath"

	luajson "github.com/layeh/gopher-json"
	lua "github.com/yuin/gopher-lua"

	"github.com/jonesrussell/domaincrawl/internal/urls"
)

// LuaExtractor binds a domain to its script at
// <script_dir>/<registrable_domain>/init.lua. The script must define a
// global process(content, url) returning a table; the table is converted to
// the JSON object the engine consumes. One extractor is owned by one
// worker; the Lua state is not safe for concurrent use.
type LuaExtractor struct {
	domain  urls.URL
	state   *lua.LState
	process lua.LValue
}

// NewLuaExtractor loads the domain's script. A missing script is not an
// error: the extractor reports HasScript() == false and the domain is
// skipped by its worker.
func NewLuaExtractor(scriptDir string, domain urls.URL) (*LuaExtractor, error) {
	e := &LuaExtractor{domain: domain}

	path := filepath.Join(scriptDir, domain.Canonical(), "init.lua")
	if _, err := os.Stat(path); err != nil {
		return e, nil
	}

	state := lua.NewState()
	luajson.Preload(state)
	registerPageModule(state)

	if err := state.DoFile(path); err != nil {
		state.Close()
		return nil, fmt.Errorf("extract: load %s: %w", path, err)
	}

	process := state.GetGlobal("process")
	if process.Type() != lua.LTFunction {
		state.Close()
		return e, nil // script defines no process(); treated as absent
	}

	e.state = state
	e.process = process

	return e, nil
}

// HasScript reports whether a process() function is bound.
func (e *LuaExtractor) HasScript() bool {
	return e.process != nil
}

// Process invokes process(content, url) and decodes the returned table.
func (e *LuaExtractor) Process(u urls.URL, body []byte) (*Result, error) {
	if e.process == nil {
		return nil, fmt.Errorf("extract: no script for %s", e.domain.Canonical())
	}

	err := e.state.CallByParam(lua.P{
		Fn:      e.process,
		NRet:    1,
		Protect: true,
	}, lua.LString(body), lua.LString(u.Canonical()))
	if err != nil {
		return nil, fmt.Errorf("extract: process(%s): %w", u.Canonical(), err)
	}

	ret := e.state.Get(-1)
	e.state.Pop(1)

	table, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("extract: process(%s) returned %s, want table",
			u.Canonical(), ret.Type())
	}

	raw, err := luajson.Encode(table)
	if err != nil {
		return nil, fmt.Errorf("extract: encode result for %s: %w", u.Canonical(), err)
	}

	return decodeResult(raw)
}

// Close releases the Lua state.
func (e *LuaExtractor) Close() {
	if e.state != nil {
		e.state.Close()
	}
}

// registerPageModule installs the goquery-backed HTML helpers as the global
// `page` table.
func registerPageModule(state *lua.LState) {
	page := state.NewTable()

	state.SetField(page, "title", state.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(PageTitle([]byte(L.CheckString(1)))))
		return 1
	}))

	state.SetField(page, "links", state.NewFunction(func(L *lua.LState) int {
		links := PageLinks([]byte(L.CheckString(1)))
		table := L.NewTable()
		for _, link := range links {
			table.Append(lua.LString(link))
		}
		L.Push(table)
		return 1
	}))

	state.SetField(page, "base", state.NewFunction(func(L *lua.LState) int {
		base := PageBase([]byte(L.CheckString(1)))
		if base == "" {
			L.Push(lua.LNil)
		} else {
			L.Push(lua.LString(base))
		}
		return 1
	}))

	state.SetField(page, "meta_refresh", state.NewFunction(func(L *lua.LState) int {
		delay, target, ok := PageMetaRefresh([]byte(L.CheckString(1)))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(delay))
		L.Push(lua.LString(target))
		return 2
	}))

	state.SetField(page, "js_redirect", state.NewFunction(func(L *lua.LState) int {
		target, ok := PageJSRedirect([]byte(L.CheckString(1)))
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(target))
		return 1
	}))

	state.SetGlobal("page", page)
}
