// Package internal drives expansion of whole files.
//
// Engine: expands source files, each in a session of its own. Sessions share
// the engine's importer, so a library module is expanded only once no matter
// how many files import it.
//
// Cache: keeps expansions on disk, keyed by file. An entry stays valid while
// the file content, the content of the modules on the import search path and
// the entry's age all check out. Engines that execute modules bypass it.
//
// Watching: StartWatching re-expands files in the watch directories when they
// are written and hands the outcome to the result handler.
//
// Usage:
//
//	engine, err := internal.NewEngine(
//	    internal.WithImporter(importer.New([]string{"lib"})),
//	    internal.WithCache(cache))
//	if err != nil {
//	    // handle error
//	}
//	exp, err := engine.Run("main.mpy")
package internal
