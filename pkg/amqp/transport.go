package amqp

import "github.com/google/uuid"

// Transport carries the per-connection state that spans the layer pipeline:
// the error condition, trace flags, whether the SASL exchange authenticated
// the peer, and bookkeeping the header sniffer and SASL machine both touch.
// It is the Go analogue of proton's pn_transport_t as seen from this core's
// narrow slice of it.
type Transport struct {
	// ID is an opaque per-connection identifier used to correlate log
	// lines across dispatch calls; the Go-idiomatic stand-in for a
	// pointer identity, generated once at Driver construction.
	ID uuid.UUID

	// Server is set when the Driver is built: true for Accept, false for
	// Connect.
	Server bool

	// Condition is the transport-level error condition (spec.md §7). The
	// zero value is unset.
	Condition ErrorCondition

	// Authenticated mirrors transport->authenticated: true once a SASL
	// OUTCOME with code OK has been received (client) or posted (server
	// reflects sasl.outcome directly). A client that takes the ANONYMOUS
	// short-circuit sets it as soon as the short-circuit succeeds, before
	// any OUTCOME arrives.
	Authenticated bool

	// ExternalSSF and ExternalAuthID are populated by the host when a TLS
	// layer beneath this core is active; the header sniffer copies them
	// into the SASL context when it detects an AMQP-SASL header
	// (spec.md §4.3).
	ExternalSSF    int
	ExternalAuthID string

	// TraceFrames gates the Debug-level "-> SASL"/"<- SASL" log lines,
	// the Go analogue of transport->trace & PN_TRACE_FRM.
	TraceFrames bool

	// CloseSent mirrors transport->close_sent: set once the driver has
	// committed to ending output, e.g. after a framing error, or once a
	// non-OK SASL outcome has finished draining (saslOutput).
	CloseSent bool
}

func newTransport() *Transport {
	return &Transport{ID: uuid.New()}
}

// setCondition sets the condition if and only if one is not already set,
// matching every call site in the source that guards
// pn_condition_is_set before writing (spec.md §7: "sets the transport
// condition if unset").
func (t *Transport) setCondition(name, description string) {
	if t.Condition.IsSet() {
		return
	}
	t.Condition = ErrorCondition{Name: name, Description: description}
}
