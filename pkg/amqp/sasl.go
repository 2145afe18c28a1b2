package amqp

import (
	"os"
	"strings"

	"github.com/amqp10/conndriver/pkg/amqp/sasl"
)

// traceFrame logs a single SASL frame crossing the wire at Debug level,
// gated on Transport.TraceFrames the way transport->trace & PN_TRACE_FRM
// gates sasl.c's "-> SASL"/"<- SASL" lines.
func (sc *saslContext) traceFrame(dir, performative string) {
	if !sc.d.transport.TraceFrames {
		return
	}
	sc.d.logger().Log(LogLevelDebug, dir+" SASL", "performative", performative)
}

// Role is fixed for the lifetime of a SASL context: a context created for a
// server-role driver never becomes a client, and vice versa (spec.md §3
// invariant 2).
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// saslState enumerates last_state/desired_state (spec.md §3). Values are
// ordered so that the prerequisite checks in postSaslFrame ("last_state >=
// POSTED_MECHANISMS", "last_state < POSTED_INIT", ...) hold as simple
// integer comparisons.
type saslState uint8

const (
	stateNone saslState = iota
	statePostedInit
	statePostedMechanisms
	statePostedResponse
	statePostedChallenge
	statePostedOutcome
	stateRecvedOutcome
	statePretendOutcome
)

func (s saslState) String() string {
	switch s {
	case statePostedInit:
		return "POSTED_INIT"
	case statePostedMechanisms:
		return "POSTED_MECHANISMS"
	case statePostedResponse:
		return "POSTED_RESPONSE"
	case statePostedChallenge:
		return "POSTED_CHALLENGE"
	case statePostedOutcome:
		return "POSTED_OUTCOME"
	case stateRecvedOutcome:
		return "RECVED_OUTCOME"
	case statePretendOutcome:
		return "PRETEND_OUTCOME"
	default:
		return "NONE"
	}
}

func isClientState(s saslState) bool {
	switch s {
	case stateNone, statePostedInit, statePostedResponse, statePretendOutcome, stateRecvedOutcome:
		return true
	}
	return false
}

func isServerState(s saslState) bool {
	switch s {
	case stateNone, statePostedMechanisms, statePostedChallenge, statePostedOutcome:
		return true
	}
	return false
}

// saslContext is the per-connection SASL machine (spec.md §3,
// "SaslContext"). It holds a back-reference to its Driver the way proton's
// pni_sasl_t hangs off pn_transport_t.
type saslContext struct {
	d *Driver

	role                     Role
	lastState, desiredState  saslState
	selectedMechanism        string
	includedMechanisms       []string // nil means "every mechanism is allowed"
	username, password       string
	remoteFQDN               string
	configName, configDir    string
	externalAuth             string
	externalSSF              int
	outcome                  sasl.Outcome
	outcomeSet               bool
	autoOutcome              bool
	mechanism                sasl.Mechanism
	candidates               []sasl.Mechanism
	anonymousForced          bool
	inputBypass, outputBypass bool
}

func newSaslContext(d *Driver) *saslContext {
	role := RoleClient
	name := "amqp-client"
	if d.transport.Server {
		role = RoleServer
		name = "amqp-server"
	}
	return &saslContext{
		d:           d,
		role:        role,
		configName:  name,
		configDir:   os.Getenv("PN_SASL_CONFIG_PATH"),
		autoOutcome: true,
	}
}

func (d *Driver) sasl() *saslContext {
	if d.saslCtx == nil {
		d.saslCtx = newSaslContext(d)
	}
	return d.saslCtx
}

// AllowedMechs sets or replaces the SASL allow-list (spec.md §6). Passing
// nil clears the list without triggering the ANONYMOUS short-circuit, even
// though the list now also happens to be empty — an explicit decision
// recorded in DESIGN.md for spec.md §9's open question about a null
// argument.
func (d *Driver) AllowedMechs(mechs []string) {
	sc := d.sasl()
	sc.includedMechanisms = mechs
	if len(mechs) == 1 && mechs[0] == "ANONYMOUS" {
		sc.forceAnonymous()
	}
}

func (d *Driver) SASLConfigName(name string) { d.sasl().configName = name }
func (d *Driver) SASLConfigPath(dir string)  { d.sasl().configDir = dir }

func (d *Driver) SASLUserPassword(user, pass string) {
	sc := d.sasl()
	sc.username, sc.password = user, pass
}

func (d *Driver) SASLRemoteHostname(fqdn string) { d.sasl().remoteFQDN = fqdn }

// SASLDone is the server-side API that sets the outcome to be posted
// (spec.md §6, "done(outcome)").
func (d *Driver) SASLDone(outcome sasl.Outcome) { d.sasl().done(outcome) }

func (d *Driver) SASLUser() string {
	if d.saslCtx == nil {
		return ""
	}
	return d.saslCtx.username
}

func (d *Driver) SASLMech() string {
	if d.saslCtx == nil {
		return ""
	}
	return d.saslCtx.selectedMechanism
}

func (d *Driver) SASLOutcome() sasl.Outcome {
	if d.saslCtx == nil {
		return sasl.OutcomeNone
	}
	return d.saslCtx.outcome
}

func (sc *saslContext) done(outcome sasl.Outcome) {
	sc.outcome = outcome
	sc.outcomeSet = true
	sc.d.transport.Authenticated = outcome == sasl.OutcomeOK
	sc.setDesiredState(statePostedOutcome)
}

func (sc *saslContext) setExternalSecurity(ssf int, authID string) {
	sc.externalSSF = ssf
	sc.externalAuth = authID
}

func (sc *saslContext) mechAllowed(name string) bool {
	if sc.includedMechanisms == nil {
		return true
	}
	for _, m := range sc.includedMechanisms {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

func containsMechName(list []string, name string) bool {
	for _, n := range list {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func (sc *saslContext) bytesOut() []byte {
	if sc.mechanism == nil {
		return nil
	}
	return sc.mechanism.BytesOut()
}

// setDesiredState is pni_sasl_set_desired_state (spec.md §4.4): the only
// mutator of desiredState. Unlike the source, which emits unconditionally
// on the success path, this emits only when lastState or desiredState
// actually changes — the REDESIGN this core's design notes call for
// (spec.md §9, "Event emission coupling").
func (sc *saslContext) setDesiredState(s saslState) {
	if sc.lastState > s {
		sc.d.logger().Log(LogLevelWarn, "illegal SASL state request: already in a later state",
			"requested", s, "last_state", sc.lastState)
		return
	}
	if sc.role == RoleClient && !isClientState(s) {
		sc.d.logger().Log(LogLevelWarn, "illegal SASL state request: server state requested on a client", "state", s)
		return
	}
	if sc.role == RoleServer && !isServerState(s) {
		sc.d.logger().Log(LogLevelWarn, "illegal SASL state request: client state requested on a server", "state", s)
		return
	}

	changed := sc.desiredState != s
	if sc.lastState == s && s == statePostedResponse {
		sc.lastState = statePostedInit
		changed = true
	}
	if sc.lastState == s && s == statePostedChallenge {
		sc.lastState = statePostedMechanisms
		changed = true
	}
	sc.desiredState = s
	if changed {
		sc.d.emit()
	}
}

// postSaslFrame drains lastState toward desiredState one step at a time,
// posting the frame each target state implies (spec.md §4.4, "Frame
// posting"). It mirrors pni_post_sasl_frame's loop exactly, including the
// distinction between the real desiredState (the loop condition) and the
// local target (which prerequisite bumps may raise mid-iteration).
func (sc *saslContext) postSaslFrame() {
	target := sc.desiredState
	for sc.desiredState > sc.lastState {
		switch target {
		case statePostedInit:
			sc.d.postFrame(encodeSASLInit(sc.selectedMechanism, sc.bytesOut()))
			sc.traceFrame("->", "SASL_INIT")
			sc.d.emit()
		case statePretendOutcome:
			if sc.lastState < statePostedInit {
				target = statePostedInit
				continue
			}
		case statePostedMechanisms:
			sc.d.postFrame(encodeSASLMechanisms(sc.listMechs()))
			sc.traceFrame("->", "SASL_MECHANISMS")
			sc.d.emit()
		case statePostedResponse:
			sc.d.postFrame(encodeSASLResponse(sc.bytesOut()))
			sc.traceFrame("->", "SASL_RESPONSE")
			sc.d.emit()
		case statePostedChallenge:
			if sc.lastState < statePostedMechanisms {
				target = statePostedMechanisms
				continue
			}
			sc.d.postFrame(encodeSASLChallenge(sc.bytesOut()))
			sc.traceFrame("->", "SASL_CHALLENGE")
			sc.d.emit()
		case statePostedOutcome:
			if sc.lastState < statePostedMechanisms {
				target = statePostedMechanisms
				continue
			}
			sc.d.postFrame(encodeSASLOutcome(sc.outcome))
			sc.traceFrame("->", "SASL_OUTCOME")
			sc.d.emit()
		case stateRecvedOutcome:
			if sc.lastState < statePostedInit && sc.outcome == sasl.OutcomeOK {
				target = statePostedInit
				continue
			}
		case stateNone:
			return
		}
		sc.lastState = target
		target = sc.desiredState
	}
}

// listMechs collects the candidate mechanisms' names, filters them through
// the allow-list, and bounds the result to 16 entries (spec.md §4.6).
func (sc *saslContext) listMechs() []string {
	var out []string
	for _, m := range sc.candidates {
		if len(out) >= 16 {
			break
		}
		if name := m.Name(); sc.mechAllowed(name) {
			out = append(out, name)
		}
	}
	return out
}

// process is pn_sasl_process: on the server, advance to POSTED_MECHANISMS
// the first time the SASL layer is touched.
func (sc *saslContext) process() {
	if sc.role == RoleServer && sc.desiredState < statePostedMechanisms {
		sc.serverInit()
	}
}

func (sc *saslContext) serverInit() {
	for _, m := range sc.candidates {
		sc.applyMechanismConfig(m)
		m.InitServer()
	}
	sc.setDesiredState(statePostedMechanisms)
}

// applyMechanismConfig feeds a candidate whatever configuration it declares
// itself able to use, via the optional sasl.ConfigAware/ExternalSecurityAware
// capabilities. Most mechanisms (ANONYMOUS, PLAIN) need neither; SCRAM uses
// external security strength to pick its channel-binding flag.
func (sc *saslContext) applyMechanismConfig(m sasl.Mechanism) {
	if ca, ok := m.(sasl.ConfigAware); ok {
		ca.SetConfig(sc.configName, sc.configDir)
	}
	if es, ok := m.(sasl.ExternalSecurityAware); ok {
		es.SetExternalSecurity(sc.externalSSF, sc.externalAuth)
	}
}

// applyClientCredentials feeds sc.username/sc.password (set via
// SASLUserPassword/WithUserPassword) to a candidate that wants them, via the
// optional sasl.CredentialAware capability. Client-only: username/password
// are client credentials (spec.md §6), never relevant to a server-role
// mechanism, which authenticates through its own Authenticate/Lookup
// callback instead.
func (sc *saslContext) applyClientCredentials(m sasl.Mechanism) {
	if ca, ok := m.(sasl.CredentialAware); ok {
		ca.SetCredentials(sc.username, sc.password)
	}
}

// forceAnonymous is pni_sasl_force_anonymous: the client-only short-circuit
// that skips a round trip when the application has restricted itself to
// ANONYMOUS (spec.md §4.4).
func (sc *saslContext) forceAnonymous() {
	if sc.role != RoleClient {
		return
	}
	anon := &sasl.Anonymous{}
	sc.anonymousForced = true
	if anon.InitClient() && anon.ProcessMechanisms("ANONYMOUS") {
		sc.mechanism = anon
		sc.selectedMechanism = anon.Name()
		sc.outcome = sasl.OutcomeOK
		sc.d.transport.Authenticated = true
		sc.setDesiredState(statePretendOutcome)
	} else {
		sc.outcome = sasl.OutcomePerm
		sc.setDesiredState(stateRecvedOutcome)
	}
}

func (sc *saslContext) isFinalInputState() bool {
	return sc.lastState == stateRecvedOutcome || sc.lastState == statePretendOutcome || sc.desiredState == statePostedOutcome
}

func (sc *saslContext) isFinalOutputState() bool {
	switch sc.lastState {
	case statePretendOutcome, stateRecvedOutcome, statePostedOutcome:
		return true
	}
	return false
}

// handleFrame dispatches a decoded SASL performative to the role-
// appropriate received-frame handler (spec.md §4.4, "Received-frame
// handlers").
func (sc *saslContext) handleFrame(f decodedSASLFrame) {
	switch f.Descriptor {
	case DescrSASLInit:
		sc.traceFrame("<-", "SASL_INIT")
		sc.onInit(f.Mechanism, f.InitialResponse)
	case DescrSASLMechanisms:
		sc.traceFrame("<-", "SASL_MECHANISMS")
		sc.onMechanisms(f.Mechanisms)
	case DescrSASLChallenge:
		sc.traceFrame("<-", "SASL_CHALLENGE")
		sc.onChallenge(f.Bytes)
	case DescrSASLResponse:
		sc.traceFrame("<-", "SASL_RESPONSE")
		sc.onResponse(f.Bytes)
	case DescrSASLOutcome:
		sc.traceFrame("<-", "SASL_OUTCOME")
		sc.onOutcome(f.Outcome)
	}
}

// onInit: server side, INIT{mechanism, initial-response}.
func (sc *saslContext) onInit(mech string, initialResponse []byte) {
	sc.selectedMechanism = mech
	var chosen sasl.Mechanism
	for _, c := range sc.candidates {
		if strings.EqualFold(c.Name(), mech) {
			chosen = c
			break
		}
	}
	if chosen == nil {
		sc.d.logger().Log(LogLevelWarn, "client selected unsupported SASL mechanism", "mechanism", mech)
		sc.done(sasl.OutcomeAuth)
		return
	}
	sc.mechanism = chosen
	if err := chosen.ProcessInit(mech, initialResponse); err != nil {
		sc.d.logger().Log(LogLevelWarn, "SASL process_init failed", "mechanism", mech, "err", err)
		sc.done(sasl.OutcomeAuth)
		return
	}
	sc.continueExchange()
}

// onMechanisms: client side, MECHANISMS{symbols}.
func (sc *saslContext) onMechanisms(names []string) {
	if sc.anonymousForced {
		return
	}
	var filtered []string
	for _, n := range names {
		if sc.mechAllowed(n) {
			filtered = append(filtered, n)
		}
	}
	joined := strings.Join(filtered, " ")

	// Try each offered-and-allowed candidate in the order the host
	// configured them, the way cxn.sasl() falls through cl.cfg.sasls when
	// an earlier mechanism can't be initiated against what the peer
	// offered (SPEC_FULL.md's mechanism-retry supplement).
	for _, cand := range sc.candidates {
		if !containsMechName(filtered, cand.Name()) {
			continue
		}
		sc.applyMechanismConfig(cand)
		sc.applyClientCredentials(cand)
		if cand.InitClient() && cand.ProcessMechanisms(joined) {
			sc.mechanism = cand
			sc.selectedMechanism = cand.Name()
			sc.setDesiredState(statePostedInit)
			return
		}
	}
	sc.outcome = sasl.OutcomePerm
	sc.setDesiredState(stateRecvedOutcome)
}

// onChallenge: client side, CHALLENGE{bytes}.
func (sc *saslContext) onChallenge(b []byte) {
	if sc.mechanism == nil {
		return
	}
	if err := sc.mechanism.ProcessChallenge(b); err != nil {
		sc.d.logger().Log(LogLevelWarn, "SASL process_challenge failed", "err", err)
		sc.outcome = sasl.OutcomeAuth
		sc.setDesiredState(stateRecvedOutcome)
		return
	}
	if sc.mechanism.Done() {
		return
	}
	sc.setDesiredState(statePostedResponse)
}

// onResponse: server side, RESPONSE{bytes}.
func (sc *saslContext) onResponse(b []byte) {
	if sc.mechanism == nil {
		return
	}
	if err := sc.mechanism.ProcessResponse(b); err != nil {
		sc.d.logger().Log(LogLevelWarn, "SASL process_response failed", "err", err)
		sc.done(sasl.OutcomeAuth)
		return
	}
	sc.continueExchange()
}

// continueExchange is the engine-side policy that keeps a multi-round
// mechanism (e.g. SCRAM) going: another CHALLENGE if the mechanism is not
// done, or — by default, unless the host already called SASLDone itself —
// a successful OUTCOME once it is.
func (sc *saslContext) continueExchange() {
	if sc.mechanism.Done() {
		if sc.autoOutcome && !sc.outcomeSet {
			sc.done(sasl.OutcomeOK)
		}
		return
	}
	sc.setDesiredState(statePostedChallenge)
}

// onOutcome: client side, OUTCOME{code}.
func (sc *saslContext) onOutcome(code sasl.Outcome) {
	sc.outcome = code
	sc.d.transport.Authenticated = code == sasl.OutcomeOK
	sc.setDesiredState(stateRecvedOutcome)
}

// saslInput is pn_sasl_input: drives pn_sasl_process then parses as many
// complete SASL frames as available holds, dispatching each. It returns
// (consumed, true) once there is nothing further to consume and the
// exchange has reached a terminal input state, signaling bypass.
func (d *Driver) saslInput(available []byte) (int, bool) {
	sc := d.sasl()
	sc.process()

	total := 0
	buf := available
	for {
		size, bodyOff, frameType, _, ok := DecodeFrameHeader(buf)
		if !ok || int(size) > len(buf) {
			break
		}
		if size < 8 {
			d.transport.CloseSent = true
			d.doError(CondFramingError, "%s", ErrFrameTooSmall)
			return total, true
		}
		if frameType != SASLFrameType {
			d.transport.CloseSent = true
			d.doError(CondFramingError, "unexpected frame type %d during SASL negotiation", frameType)
			return total, true
		}
		if bodyOff > int(size) {
			d.transport.CloseSent = true
			d.doError(CondFramingError, "frame data offset exceeds frame size")
			return total, true
		}
		body := buf[bodyOff:size]
		frame, err := decodeSASLPerformative(body)
		if err != nil {
			d.transport.CloseSent = true
			d.doError(CondFramingError, "invalid SASL frame: %v", err)
			return total, true
		}
		sc.handleFrame(frame)
		total += int(size)
		buf = buf[size:]
	}

	if total == 0 && sc.isFinalInputState() {
		return total, true
	}
	return total, false
}

// saslOutput is pn_sasl_output: drives pn_sasl_process and
// pni_post_sasl_frame, then drains whatever is now queued.
func (d *Driver) saslOutput(buf []byte) (int, bool) {
	sc := d.sasl()
	sc.process()
	sc.postSaslFrame()

	if len(d.pending) == 0 && sc.isFinalOutputState() {
		if sc.outcome != sasl.OutcomeOK && sc.isFinalInputState() {
			d.transport.CloseSent = true
		}
		return 0, true
	}
	return d.drainPending(buf), false
}

// readSASL is pn_input_read_sasl.
func (d *Driver) readSASL(slot *layerSlot, available []byte) (int, bool) {
	if d.readEOS {
		d.transport.CloseSent = true
		d.doError(CondFramingError, "connection aborted")
		return 0, true
	}
	sc := d.sasl()
	if !sc.inputBypass {
		n, eos := d.saslInput(available)
		if !eos {
			return n, false
		}
		sc.inputBypass = true
		if sc.outputBypass {
			slot.rewireTo(layerPassthru)
		}
	}
	return d.amqp.ProcessInput(available)
}

// writeSASL is pn_output_write_sasl.
func (d *Driver) writeSASL(slot *layerSlot, buf []byte) (int, bool) {
	sc := d.sasl()
	if !sc.outputBypass {
		var n int
		var eos bool
		if d.transport.CloseSent {
			n, eos = 0, true
		} else {
			n, eos = d.saslOutput(buf)
		}
		if !eos {
			return n, false
		}
		sc.outputBypass = true
		if sc.inputBypass {
			slot.rewireTo(layerPassthru)
		}
	}
	return d.amqp.ProcessOutput(buf)
}
