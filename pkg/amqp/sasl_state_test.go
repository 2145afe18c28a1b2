package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amqp10/conndriver/pkg/amqp/sasl"
)

func newTestSaslContext(server bool) *saslContext {
	d := newDriver(server)
	return d.sasl()
}

func TestSetDesiredStateRejectsDowngrade(t *testing.T) {
	sc := newTestSaslContext(false)
	sc.setDesiredState(statePostedResponse)
	require.Equal(t, statePostedResponse, sc.desiredState)

	sc.lastState = statePostedResponse
	sc.setDesiredState(statePostedInit)
	assert.Equal(t, statePostedResponse, sc.desiredState, "downgrade request must be dropped, not applied")
}

func TestSetDesiredStateRejectsWrongRole(t *testing.T) {
	client := newTestSaslContext(false)
	client.setDesiredState(statePostedMechanisms) // server-only state
	assert.Equal(t, stateNone, client.desiredState)

	server := newTestSaslContext(true)
	server.setDesiredState(statePostedInit) // client-only state
	assert.Equal(t, stateNone, server.desiredState)
}

func TestSetDesiredStateRewindsOnRepeatedResponse(t *testing.T) {
	sc := newTestSaslContext(false)
	sc.lastState = statePostedResponse
	sc.setDesiredState(statePostedResponse)
	assert.Equal(t, statePostedInit, sc.lastState, "a repeated RESPONSE target rewinds last_state to POSTED_INIT")
	assert.Equal(t, statePostedResponse, sc.desiredState)
}

func TestSetDesiredStateRewindsOnRepeatedChallenge(t *testing.T) {
	sc := newTestSaslContext(true)
	sc.lastState = statePostedChallenge
	sc.setDesiredState(statePostedChallenge)
	assert.Equal(t, statePostedMechanisms, sc.lastState, "a repeated CHALLENGE target rewinds last_state to POSTED_MECHANISMS")
	assert.Equal(t, statePostedChallenge, sc.desiredState)
}

func TestSetDesiredStateOnlyEmitsOnActualTransition(t *testing.T) {
	sc := newTestSaslContext(false)
	sc.setDesiredState(statePostedInit)
	before := len(sc.d.events)
	assert.Equal(t, 1, before)

	sc.setDesiredState(statePostedInit) // no change: not a later/different state
	assert.Len(t, sc.d.events, before, "no new event when desired_state does not actually change")
}

func TestForceAnonymousSetsPretendOutcomeAndOK(t *testing.T) {
	sc := newTestSaslContext(false)
	sc.forceAnonymous()
	assert.True(t, sc.anonymousForced)
	assert.Equal(t, sasl.OutcomeOK, sc.outcome)
	assert.True(t, sc.d.transport.Authenticated)
	assert.Equal(t, statePretendOutcome, sc.desiredState)
}

func TestForceAnonymousNoopOnServer(t *testing.T) {
	sc := newTestSaslContext(true)
	sc.forceAnonymous()
	assert.False(t, sc.anonymousForced)
	assert.Equal(t, stateNone, sc.desiredState)
}

func TestIsFinalInputStateCoversPretendOutcome(t *testing.T) {
	sc := newTestSaslContext(false)
	sc.lastState = statePretendOutcome
	assert.True(t, sc.isFinalInputState())
}

func TestIsFinalInputStateCoversRecvedOutcome(t *testing.T) {
	sc := newTestSaslContext(false)
	sc.lastState = stateRecvedOutcome
	assert.True(t, sc.isFinalInputState())
}

func TestIsFinalInputStateFalseMidExchange(t *testing.T) {
	sc := newTestSaslContext(false)
	sc.lastState = statePostedInit
	assert.False(t, sc.isFinalInputState())
}

func TestIsFinalOutputStateCoversTerminalStates(t *testing.T) {
	for _, s := range []saslState{statePretendOutcome, stateRecvedOutcome, statePostedOutcome} {
		sc := newTestSaslContext(false)
		sc.lastState = s
		assert.True(t, sc.isFinalOutputState(), "state %s should be terminal for output", s)
	}
	sc := newTestSaslContext(false)
	sc.lastState = statePostedInit
	assert.False(t, sc.isFinalOutputState())
}

func TestListMechsFiltersAndBounds(t *testing.T) {
	sc := newTestSaslContext(true)
	sc.includedMechanisms = []string{"PLAIN"}
	sc.candidates = []sasl.Mechanism{&sasl.Plain{}, &sasl.Anonymous{}}
	assert.Equal(t, []string{"PLAIN"}, sc.listMechs())

	sc.includedMechanisms = nil
	for i := 0; i < 20; i++ {
		sc.candidates = append(sc.candidates, &sasl.Anonymous{})
	}
	assert.Len(t, sc.listMechs(), 16)
}

type capturingLogger struct {
	level LogLevel
	lines []string
}

func (c *capturingLogger) Level() LogLevel { return c.level }
func (c *capturingLogger) Log(level LogLevel, msg string, keyvals ...any) {
	if level > c.level {
		return
	}
	c.lines = append(c.lines, msg)
}

func TestTraceFrameGatedByTransportTraceFrames(t *testing.T) {
	sc := newTestSaslContext(false)
	log := &capturingLogger{level: LogLevelDebug}
	sc.d.logger_ = log

	sc.traceFrame("->", "SASL_INIT")
	assert.Empty(t, log.lines, "no trace line without TraceFrames set")

	sc.d.transport.TraceFrames = true
	sc.traceFrame("->", "SASL_INIT")
	require.Len(t, log.lines, 1)
	assert.Equal(t, "-> SASL", log.lines[0])
}

type configCapturingMechanism struct {
	sasl.Anonymous
	gotName, gotDir  string
	gotSSF           int
	gotAuthID        string
	gotUser, gotPass string
}

func (m *configCapturingMechanism) SetConfig(name, dir string) {
	m.gotName, m.gotDir = name, dir
}

func (m *configCapturingMechanism) SetExternalSecurity(ssf int, authID string) {
	m.gotSSF, m.gotAuthID = ssf, authID
}

func (m *configCapturingMechanism) SetCredentials(user, pass string) {
	m.gotUser, m.gotPass = user, pass
}

func TestServerInitFeedsConfigAwareCandidates(t *testing.T) {
	sc := newTestSaslContext(true)
	sc.configName, sc.configDir = "custom-name", "/etc/sasl2"
	sc.externalSSF, sc.externalAuth = 256, "client@example.com"
	m := &configCapturingMechanism{}
	sc.candidates = []sasl.Mechanism{m}

	sc.serverInit()

	assert.Equal(t, "custom-name", m.gotName)
	assert.Equal(t, "/etc/sasl2", m.gotDir)
	assert.Equal(t, 256, m.gotSSF)
	assert.Equal(t, "client@example.com", m.gotAuthID)
}

func TestOnMechanismsFeedsCredentialAwareCandidates(t *testing.T) {
	sc := newTestSaslContext(false)
	sc.username, sc.password = "alice", "secret"
	m := &configCapturingMechanism{}
	sc.candidates = []sasl.Mechanism{m}

	sc.onMechanisms([]string{"ANONYMOUS"})

	assert.Equal(t, "alice", m.gotUser)
	assert.Equal(t, "secret", m.gotPass)
	assert.Equal(t, statePostedInit, sc.desiredState)
}

func TestAllowedMechsNilClearsWithoutShortCircuit(t *testing.T) {
	d := newDriver(false)
	d.AllowedMechs([]string{"ANONYMOUS"})
	require.True(t, d.sasl().anonymousForced)

	d2 := newDriver(false)
	d2.AllowedMechs(nil)
	assert.False(t, d2.sasl().anonymousForced)
	assert.Nil(t, d2.sasl().includedMechanisms)
}
