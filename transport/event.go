package transport

import "strconv"

// EventKind discriminates the variants of Event. Exactly one of the
// kind-specific fields of Event is meaningful for a given kind.
type EventKind string

const (
	// EventQR carries a freshly issued QR pairing string.
	EventQR EventKind = "qr"

	// EventPairingCode carries a numeric phone-pairing code.
	EventPairingCode EventKind = "pairing_code"

	// EventConnectionUp signals a completed connect handshake.
	EventConnectionUp EventKind = "connection_up"

	// EventConnectionDown signals connection loss; Reason classifies it.
	EventConnectionDown EventKind = "connection_down"

	// EventCredsChanged carries updated credential material to persist.
	EventCredsChanged EventKind = "creds_changed"

	// EventMessages carries a batch of inbound messages.
	EventMessages EventKind = "messages"

	// EventStatusUpdates carries a batch of delivery-state changes.
	EventStatusUpdates EventKind = "status_updates"
)

// Event is the tagged variant consumed from Transport.Events.
type Event struct {
	Kind EventKind

	QR          string         // EventQR
	PairingCode string         // EventPairingCode
	Reason      CloseReason    // EventConnectionDown
	Creds       []byte         // EventCredsChanged
	Messages    []Message      // EventMessages
	Updates     []StatusUpdate // EventStatusUpdates
}

// CloseReason is the protocol status code attached to a connection-down
// event. Codes follow the upstream service's HTTP-ish numbering.
type CloseReason int

const (
	// ReasonUnknown is used when the driver closed the event stream without
	// reporting a reason. Treated as recoverable.
	ReasonUnknown CloseReason = 0

	// ReasonLoggedOut means the remote service invalidated the session's
	// credentials. Terminal: reconnecting with the same credentials can
	// never succeed.
	ReasonLoggedOut CloseReason = 401

	// ReasonConnectionLost is a transport-level network failure.
	ReasonConnectionLost CloseReason = 408

	// ReasonConnectionClosed is a server-initiated transient close.
	ReasonConnectionClosed CloseReason = 428

	// ReasonRestartRequired asks the client to reconnect, typically after
	// the initial pairing completes.
	ReasonRestartRequired CloseReason = 515
)

// Terminal reports whether the reason precludes reconnection. This is the
// single classification point for the controller's terminal branch.
func (r CloseReason) Terminal() bool {
	return r == ReasonLoggedOut
}

func (r CloseReason) String() string {
	switch r {
	case ReasonUnknown:
		return "unknown"
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonConnectionClosed:
		return "connection_closed"
	case ReasonRestartRequired:
		return "restart_required"
	default:
		return "code_" + strconv.Itoa(int(r))
	}
}
