// Package extension loads extensions into a host process.
//
// An extension is a directory of Lua modules. Loading one runs three
// stages, each tracked on a LoadRequest:
//
//   - merge the optional requirejs-config.json manifest into the shared
//     module-resolution registry
//   - fetch and execute the main module and everything it requires
//   - call the exported initExtension hook and wait for it under a budget
//
// # Quick Start
//
//	loader := extension.NewLoader(lua.NewRuntime(), extension.WithLogger(logger))
//	defer loader.Close()
//
//	fut := loader.LoadExtension(ctx, "my-ext", extension.Config{BaseURL: dir}, "")
//	if err := fut.Wait(ctx); err != nil {
//	    // err is an *extension.Error; a diagnostic was already reported
//	}
//
// # Directory Layout
//
//	my-ext/
//	├── package.json            # Metadata (optional)
//	├── requirejs-config.json   # Module configuration (optional)
//	├── main.lua                # Main module
//	└── lib/
//	    └── helper.lua
//
// # Init Hook
//
// The main module may return a table with an initExtension function. The
// hook completes in one of three ways:
//
//	return { initExtension = function() end }                  -- success
//	return { initExtension = function() return ext.fail("x") end }  -- failure
//	return { initExtension = function()
//	    local d = ext.deferred()
//	    ext.setTimeout(function() d:resolve() end, 100)
//	    return d:promise()                                       -- async
//	end }
//
// Raising an error is a thrown failure. Whatever happens, the hook has
// InitTimeout (10s by default) to finish, and every failed load produces
// exactly one diagnostic line starting with "[Extension]".
//
// # Concurrency
//
// Loads of different extensions run independently. A failure, hang or
// timeout in one never affects another.
package extension
