// Package modconfig merges extension-local module configuration into the
// host's module-resolution table.
//
// An extension may ship a requirejs-config.json file next to its main module.
// The file declares path aliases for bundled third-party libraries, shims for
// scripts that publish a global instead of returning a value, and free-form
// configuration readable by the extension:
//
//	{
//	  "paths":  { "bar": "thirdparty/bar" },
//	  "shim":   { "legacy": { "deps": ["bar"], "exports": "Legacy" } },
//	  "config": { "greeting": "hello" }
//	}
//
// # Namespacing
//
// The Registry keeps host-level aliases plus one namespace per extension
// name. Merging is additive: an extension can never overwrite a host alias or
// an alias already present in its own namespace. Rejected declarations are
// returned as Conflicts so the caller can report them.
//
// Each successful Merge yields an immutable Context, which the module fetcher
// uses to turn module ids into file paths.
package modconfig
