// Package macro provides the macro model and run orchestration for Gray
// Macro Core.
//
// A macro is a flat, ordered list of items. Some items are bracket
// markers (loop/end_loop, if_image/if_variable/end_if) that delimit a
// nested body. The list is the only thing users edit and the only thing
// that is stored; a command tree is derived from it for every run.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Runner (runner.go)                    │
//	│  Loads, builds and executes macros, records runs       │
//	│  ┌──────────────┐    ┌──────────────┐                │
//	│  │   Library    │───▶│  Repository  │                │
//	│  │ (library.go) │    │(repository.go)│               │
//	│  └──────────────┘    └──────────────┘                │
//	│        │                                              │
//	│        ▼                                              │
//	│  ┌──────────────────────────────────────────────┐    │
//	│  │  Run Pipeline                                 │    │
//	│  │  1. Restore List (nesting + pairing)          │    │
//	│  │  2. Build tree (builder.go, TypeRegistry)     │    │
//	│  │  3. Execute (engine.RunContext)               │    │
//	│  │  4. Persist MacroRun record                   │    │
//	│  │  5. Write run metrics                         │    │
//	│  │  6. Broadcast WebSocket event                 │    │
//	│  └──────────────────────────────────────────────┘    │
//	└───────────────────────────────────────────────────────┘
//
// # Nesting and Pairing
//
// Every structural edit on a List re-runs two passes. The depth pass walks
// left to right: a bracket-end decrements before its depth is recorded, a
// bracket-start records and then increments. The pairing pass links each
// bracket-start to the first unclaimed bracket-end of the same family at
// the same depth further down the list. Items that cannot be paired stay
// unpaired; the Builder rejects them before anything runs.
//
// # Key Types
//
//   - FlatItem: One list entry (type tag, position, depth, pair, settings)
//   - List: Editable item arena that keeps depth and pairing current
//   - TypeRegistry: Tag to defaults, validator and node factory
//   - Builder: Turns a paired list into an engine.Sequence
//   - Macro / MacroRun: Stored definition and run record
//   - Library: Thread-safe cache wrapping Repository
//   - Runner: Orchestrates runs
//
// # Thread Safety
//
// TypeRegistry, Library and Runner are safe for concurrent use. A List is
// owned by one editor at a time; Library.EditItems serialises edits.
//
// # Usage
//
//	types := macro.NewBuiltinRegistry(macro.DefaultLimits())
//	repo := macro.NewSQLiteRepository(db)
//	library := macro.NewLibrary(repo, types)
//	if err := library.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	runner := macro.NewRunner(library, types, repo, delegates, hub, log)
//	run, err := runner.Run(ctx, macroID, macro.TriggerManual, "cli")
package macro
