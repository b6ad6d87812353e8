// Package lua runs extensions written in Lua.
//
// Every extension gets its own gopher-lua state owned by a single
// goroutine, its Loop. Module execution, the init hook, timer callbacks
// and deferred callbacks all run on that goroutine, so extension code
// never observes concurrency.
//
// Extension code sees these additions to the standard Lua environment:
//
//	require(id)                -- resolves through requirejs-config.json
//	ext.name, ext.baseUrl      -- identity of the running extension
//	ext.deferred()             -- pending value for asynchronous init
//	ext.fail([reason])         -- explicit init failure
//	ext.setTimeout(fn, ms)     -- run fn later on the loop
//	ext.clearTimeout(id)
//	ext.config([path])         -- values from the manifest's "config" object
//	ext.log(...), ext.warn(...), ext.error(...)
//
// print writes to the host logger.
package lua
