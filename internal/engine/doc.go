// Package engine executes macro command trees for Gray Macro Core.
//
// A command tree is built per run from a macro's flat item list (see the
// macro package). Every node reports exactly one terminal Outcome:
//
//	Succeeded | Failed | Cancelled | Broken
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│                 RunContext (context.go)                   │
//	│  Exec(node): started event → Execute → finished event     │
//	│              stats aggregate, error notification          │
//	│  ┌──────────────┐   ┌──────────────┐   ┌──────────────┐  │
//	│  │  Sequence    │   │    Loop      │   │     If       │  │
//	│  │ forwards all │   │ absorbs      │   │ Condition    │  │
//	│  │ non-success  │   │ Broken       │   │ (polling)    │  │
//	│  └──────────────┘   └──────────────┘   └──────────────┘  │
//	│        │                                                  │
//	│        ▼                                                  │
//	│  Leaves (actions.go): click, key_press, wait, wait_image, │
//	│  set_variable, run_command, capture, break                │
//	│        │                                                  │
//	│        ▼                                                  │
//	│  Delegates (delegates.go): ImageLocator, InputInjector,   │
//	│  VariableStore, ScreenCapturer, CommandRunner             │
//	└──────────────────────────────────────────────────────────┘
//
// # Control Flow
//
// Composites run their children strictly one at a time, in order. Failed
// and Cancelled stop the enclosing composite and travel to the root
// unchanged. Broken is produced by a Break leaf, passes through every
// Sequence and If untouched, and is absorbed by the nearest Loop, which
// then reports Succeeded. A Broken outcome that reaches the root is turned
// into Failed with ErrBreakOutsideLoop.
//
// # Cancellation
//
// A single context.Context is passed unchanged to every node. Cancellation
// is cooperative: RunContext.Exec refuses to start a node once the context
// is done, and wait/poll loops select on ctx.Done(). A delegate call that is
// already in flight is not interrupted by the engine.
//
// # Thread Safety
//
// A RunContext belongs to one run and one goroutine. Stats may be read
// from other goroutines while the run is in progress.
package engine
