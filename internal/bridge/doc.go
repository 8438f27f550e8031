// Package bridge connects the macro engine to input and vision bridges
// over MQTT.
//
// The engine's effect delegates (engine.InputInjector, engine.ImageLocator,
// engine.ScreenCapturer) are implemented here as request/response
// exchanges with external bridge processes that own the keyboard, mouse
// and screen of the target machine:
//
//	┌────────────┐  graymacro/request/{protocol}/{id}   ┌──────────────┐
//	│  Client    │ ───────────────────────────────────▶ │ input/vision │
//	│ (pending)  │ ◀─────────────────────────────────── │    bridge    │
//	└────────────┘  graymacro/response/{protocol}/{id}  └──────────────┘
//
// Each request carries a fresh UUID. The client subscribes once to the
// protocol's response wildcard and routes answers to the waiting caller
// by that ID. Late answers for abandoned requests are dropped.
//
// EventPublisher mirrors node events and run notices onto the broker so
// that bridges and dashboards can follow a run.
//
// # Wire format
//
//	request:  {"id": "...", "op": "click", "params": {...}, "sent_at": "..."}
//	response: {"id": "...", "ok": true, "result": {...}}
//	          {"id": "...", "ok": false, "error": "window not focused"}
//
// Operations: click, key_press (input); find_image, capture (vision).
package bridge
