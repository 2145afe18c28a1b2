package sasl

// Anonymous implements the ANONYMOUS mechanism (RFC 4505): the client sends
// an optional trace string as its initial response and the server accepts
// unconditionally. This is the mechanism the driver's anonymous short-circuit
// (spec'd allowed_mechs("ANONYMOUS")) is built to skip a round trip for.
type Anonymous struct {
	// Trace is the optional identity string sent as the initial response.
	// Typically an email address or other trace token; may be empty.
	Trace string

	done bool
}

var _ Mechanism = (*Anonymous)(nil)

func (a *Anonymous) Name() string { return "ANONYMOUS" }

func (a *Anonymous) InitServer() bool { return true }

func (a *Anonymous) InitClient() bool { return true }

func (a *Anonymous) ProcessInit(mech string, initialResponse []byte) error {
	a.done = true
	return nil
}

func (a *Anonymous) ProcessResponse(response []byte) error {
	a.done = true
	return nil
}

func (a *Anonymous) ProcessChallenge(challenge []byte) error {
	a.done = true
	return nil
}

func (a *Anonymous) ProcessMechanisms(list string) bool {
	return containsMech(list, "ANONYMOUS")
}

func (a *Anonymous) BytesOut() []byte {
	return []byte(a.Trace)
}

func (a *Anonymous) Done() bool { return true }
