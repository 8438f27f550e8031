// Package variables provides the named string variables shared by macro
// runs.
//
// Steps read and write variables through the engine.VariableStore
// interface: set_variable and run_command assign them, if_variable tests
// them, and ${name} references in step settings expand to their values.
//
// Two stores are provided:
//
//   - SQLiteStore: persistent, survives restarts (the service default)
//   - MemoryStore: per-process, used for one-shot CLI runs and tests
//
// # Thread Safety
//
// Both stores are safe for concurrent use. Runs that share a store are not
// isolated from each other; the last write wins.
package variables
