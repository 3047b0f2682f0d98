// Package sessions implements the gateway core: the registry that owns all
// live sessions and the per-session connection lifecycle controller.
//
// Layers & Roles
//
//	Registry     -> single source of truth for which sessions exist;
//	                serializes create/lookup/delete on one mutex
//	controller   -> one goroutine per session; sole writer of the session's
//	                status and pairing artifact; drives dial, reconnect
//	                delay, and the terminal-logout branch
//	Session      -> the record callers read (snapshots) and send through
//
// A session moves Initializing -> Connecting -> Connected, drops to
// Disconnected on any connection loss, and from there re-enters Connecting
// after a fixed delay. When the remote service reports the credentials
// permanently invalid, the session leaves the registry for good. Every
// transition is republished to the configured webhook consumer; delivery is
// fire-and-forget and never blocks the event loop.
package sessions
