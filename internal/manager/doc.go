// Package manager coordinates the chat session: it owns the session store,
// acquires the selected model (local, hub or conversion), opens it through a
// pipeline backend and forwards prompts to it. It is structured into small
// files by concern:
//
//   - manager.go: core Manager type, constructor, getters.
//   - config.go: Config and package defaults; New applies defaults.
//   - types.go: State and Snapshot.
//   - errors.go: error types and helpers (IsBusy, IsNotLoaded, IsNoDevice).
//   - load.go: Acquire and Load, the loading -> ready | error lifecycle.
//   - chat.go: single in-flight generation and token streaming.
//   - session.go: settings updates.
//   - status_report.go: Status/Snapshot reporting.
//   - sanity.go: converter and device checks.
//   - unload.go: pipeline release.
//
// Front ends (CLI, HTTP) should use public methods only.
package manager
