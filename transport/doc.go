// Package transport defines the contract between the gateway core and a
// concrete messaging-protocol implementation. The gateway never speaks the
// wire protocol itself: it dials a Transport through a Dialer, consumes the
// Transport's tagged event stream, and issues sends, pairing requests, and
// logouts through the handle.
//
// Layers & Roles
//
//	sessions.Registry / controller -> drives Dial, owns exactly one live
//	                                  Transport per session at a time
//	Transport implementation       -> handshake, encryption, framing
//	transporttest                  -> scripted in-memory fake for tests
//
// Protocol drivers register a named Dialer via Register so binaries can
// select one by configuration, mirroring database/sql driver registration.
package transport
