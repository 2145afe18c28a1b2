package sasl

import (
	"bytes"
	"fmt"
	"strings"
)

// Plain implements the PLAIN mechanism (RFC 4616): a single
// authzid\0authcid\0password response, no cryptography involved (spec.md's
// Non-goal of implementing SASL mechanism cryptography does not apply here,
// since PLAIN has none).
type Plain struct {
	Authzid string
	User    string
	Pass    string

	// Server side: Authenticate is called with the parsed identity and
	// password; a non-nil error fails the exchange.
	Authenticate func(authzid, user, pass string) error

	out  []byte
	done bool
}

var _ Mechanism = (*Plain)(nil)
var _ CredentialAware = (*Plain)(nil)

func (p *Plain) Name() string { return "PLAIN" }

// SetCredentials lets the driver feed credentials configured through
// SASLUserPassword/WithUserPassword rather than the User/Pass fields
// directly.
func (p *Plain) SetCredentials(user, pass string) {
	p.User, p.Pass = user, pass
}

func (p *Plain) InitServer() bool { return p.Authenticate != nil }

func (p *Plain) InitClient() bool {
	p.out = []byte(p.Authzid + "\x00" + p.User + "\x00" + p.Pass)
	return true
}

func (p *Plain) ProcessInit(mech string, initialResponse []byte) error {
	parts := bytes.SplitN(initialResponse, []byte{0}, 3)
	if len(parts) != 3 {
		return fmt.Errorf("sasl: malformed PLAIN initial response")
	}
	p.done = true
	if p.Authenticate == nil {
		return fmt.Errorf("sasl: PLAIN mechanism not configured to authenticate")
	}
	return p.Authenticate(string(parts[0]), string(parts[1]), string(parts[2]))
}

func (p *Plain) ProcessResponse(response []byte) error {
	return p.ProcessInit(p.Name(), response)
}

func (p *Plain) ProcessChallenge(challenge []byte) error {
	p.done = true
	return nil
}

func (p *Plain) ProcessMechanisms(list string) bool {
	return containsMech(list, "PLAIN")
}

func (p *Plain) BytesOut() []byte { return p.out }

func (p *Plain) Done() bool { return p.done }

func containsMech(list, name string) bool {
	for _, tok := range strings.Fields(list) {
		if strings.EqualFold(tok, name) {
			return true
		}
	}
	return false
}
