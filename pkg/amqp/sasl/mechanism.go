// Package sasl defines the pluggable SASL mechanism backend the connection
// driver calls into while negotiating authentication, plus a small set of
// reference mechanisms (ANONYMOUS, PLAIN, SCRAM-SHA-256) that let the driver
// run end to end without an external Cyrus-style binding.
package sasl

// Mechanism is the capability set the connection driver's SASL state machine
// calls into. It is the Go rendition of proton's mechanism backend
// interface: list_mechs, init_server, init_client, process_init,
// process_response, process_challenge, process_mechanisms, and impl_free.
//
// impl_free has no Go equivalent: mechanisms are plain values collected by
// the garbage collector, and there is no teardown call.
type Mechanism interface {
	// Name returns the mechanism's IANA-registered name, e.g. "PLAIN".
	Name() string

	// InitServer prepares the mechanism for use on the server (accepting)
	// side. It returns false if the mechanism cannot be used, e.g. missing
	// configuration.
	InitServer() bool

	// InitClient prepares the mechanism for use on the client (connecting)
	// side. It returns false if the mechanism cannot be used.
	InitClient() bool

	// ProcessInit handles a client's SASL_INIT on the server side: the
	// negotiated mechanism name and the initial response bytes (which may
	// be empty). An error fails the exchange with PN_SASL_AUTH-equivalent
	// outcome.
	ProcessInit(mech string, initialResponse []byte) error

	// ProcessResponse handles a client's SASL_RESPONSE on the server side.
	ProcessResponse(response []byte) error

	// ProcessChallenge handles a server's SASL_CHALLENGE on the client
	// side.
	ProcessChallenge(challenge []byte) error

	// ProcessMechanisms handles a server's SASL_MECHANISMS on the client
	// side: a space-separated, allow-list-filtered list of mechanism names
	// the server offered. Returns false if none is acceptable.
	ProcessMechanisms(list string) bool

	// BytesOut returns the payload the mechanism wants the driver to post
	// in the next outgoing frame (SASL_INIT's initial-response,
	// SASL_RESPONSE, or SASL_CHALLENGE). The slice is only valid until the
	// next call into the mechanism; the driver must not retain it across
	// calls.
	BytesOut() []byte

	// Done reports whether the mechanism considers the exchange complete
	// from its own point of view (used by multi-round mechanisms such as
	// SCRAM to know when to stop requesting another challenge/response).
	Done() bool
}

// ConfigAware is an optional capability a Mechanism may implement to consult
// external configuration (e.g. a Cyrus-style config file) before InitServer
// or InitClient runs. The driver calls SetConfig on every candidate that
// implements it, passing along whatever SASLConfigName/SASLConfigPath (or
// their PN_SASL_CONFIG_PATH-seeded defaults) currently hold.
type ConfigAware interface {
	SetConfig(name, dir string)
}

// ExternalSecurityAware is an optional capability a Mechanism may implement
// to fold a security layer's reported strength (e.g. TLS) into its own
// behavior, such as advertising channel-binding support in its first message.
type ExternalSecurityAware interface {
	SetExternalSecurity(ssf int, authID string)
}

// CredentialAware is an optional capability a Mechanism may implement to
// receive client credentials set through SASLUserPassword/WithUserPassword
// rather than its own struct fields. The driver calls SetCredentials on
// every candidate that implements it, before InitClient runs.
type CredentialAware interface {
	SetCredentials(user, pass string)
}

// Outcome mirrors proton's pn_sasl_outcome_t: the terminal SASL result
// posted in a SASL_OUTCOME frame or recorded locally after one is received.
type Outcome int8

const (
	OutcomeNone Outcome = iota
	OutcomeOK
	OutcomeAuth
	OutcomeSys
	OutcomePerm
	OutcomeTemp
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "OK"
	case OutcomeAuth:
		return "AUTH"
	case OutcomeSys:
		return "SYS"
	case OutcomePerm:
		return "PERM"
	case OutcomeTemp:
		return "TEMP"
	default:
		return "NONE"
	}
}
