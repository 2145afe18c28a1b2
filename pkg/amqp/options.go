package amqp

import "github.com/amqp10/conndriver/pkg/amqp/sasl"

// Opt configures a Driver at construction or connect/accept time. This is
// the Go idiom for the teacher's variadic functional-options constructors
// (kgo.NewClient(opts ...Opt)) standing in for proton's
// connection_options::apply_unbound/apply_bound split.
type Opt func(*ConnectionOptions)

// ConnectionOptions bundles everything configure/connect/accept need: a
// handler, SASL configuration, and the unbound/bound option callbacks the
// original connection_driver::configure applies around transport binding
// (spec.md §4.1).
type ConnectionOptions struct {
	Handler Handler
	SASL    SASLConfig
	Logger  Logger
	AMQP    AMQPLayer

	// unbound runs before the SASL configuration is applied; bound runs
	// after. The transport's server/client mode is already set when either
	// runs. This mirrors the opts.apply_unbound(c)/opts.apply_bound(c) split
	// in connection_driver::configure.
	unbound []func(*Driver)
	bound   []func(*Driver)
}

// SASLConfig is the external configuration surface for the SASL layer
// (spec.md §6, "Configuration surface exposed outward by the core").
type SASLConfig struct {
	// AllowedMechs, when non-nil, restricts SASL_MECHANISMS
	// advertisement/selection to this allow-list. A single-entry list of
	// exactly "ANONYMOUS" triggers the client-side short-circuit
	// (spec.md §4.4).
	AllowedMechs []string

	// Mechanisms are the candidate backends consulted in order, the
	// client moving on to the next one if an earlier one cannot be
	// initiated against the server's offered list; a non-OK OUTCOME from
	// the server does not trigger a retry (SPEC_FULL.md's mechanism-retry
	// supplement, grounded on the teacher's cxn.sasl() fallback loop).
	Mechanisms []sasl.Mechanism

	ConfigName string
	ConfigDir  string

	Username string
	Password string

	RemoteHostname string

	ExternalAuth string
	ExternalSSF  int

	// Outcome is the server-side result configure() passes to done
	// (pn_sasl_done's argument). A non-zero value is posted right after
	// SASL_MECHANISMS, without waiting for the client's SASL_INIT.
	Outcome sasl.Outcome
}

// WithHandler records the host's messaging handler in
// ConnectionOptions.Handler. configure does not store it on the Driver;
// Dispatch delivers events only to the Handler passed to it.
func WithHandler(h Handler) Opt {
	return func(o *ConnectionOptions) { o.Handler = h }
}

// WithLogger installs a Logger; the default is a no-op logger.
func WithLogger(l Logger) Opt {
	return func(o *ConnectionOptions) { o.Logger = l }
}

// WithAMQPLayer overrides the passthrough AMQP layer beneath SASL. The
// default is a minimal stand-in (nullAMQPLayer) since the real session/link
// state machine is out of scope for this core (spec.md §1).
func WithAMQPLayer(layer AMQPLayer) Opt {
	return func(o *ConnectionOptions) { o.AMQP = layer }
}

// WithAllowedMechs sets the SASL allow-list.
func WithAllowedMechs(mechs ...string) Opt {
	return func(o *ConnectionOptions) { o.SASL.AllowedMechs = mechs }
}

// WithMechanisms sets the candidate mechanism backends.
func WithMechanisms(mechs ...sasl.Mechanism) Opt {
	return func(o *ConnectionOptions) { o.SASL.Mechanisms = mechs }
}

// WithUserPassword sets client credentials.
func WithUserPassword(user, pass string) Opt {
	return func(o *ConnectionOptions) { o.SASL.Username, o.SASL.Password = user, pass }
}

// WithRemoteHostname sets the SNI-like target fqdn.
func WithRemoteHostname(fqdn string) Opt {
	return func(o *ConnectionOptions) { o.SASL.RemoteHostname = fqdn }
}

// WithServerOutcome sets the outcome a server-role driver posts right after
// its SASL_MECHANISMS frame, without waiting for the client's SASL_INIT.
func WithServerOutcome(outcome sasl.Outcome) Opt {
	return func(o *ConnectionOptions) { o.SASL.Outcome = outcome }
}

// WithUnboundDriverOpt registers a callback run against the raw Driver
// before SASL configuration is applied, mirroring
// connection_options::apply_unbound (e.g. setting Transport.TraceFrames
// before the header sniffer runs).
func WithUnboundDriverOpt(f func(*Driver)) Opt {
	return func(o *ConnectionOptions) { o.unbound = append(o.unbound, f) }
}

// WithBoundDriverOpt registers a callback run against the raw Driver after
// SASL configuration is applied, mirroring connection_options::apply_bound.
func WithBoundDriverOpt(f func(*Driver)) Opt {
	return func(o *ConnectionOptions) { o.bound = append(o.bound, f) }
}

// Container holds defaults merged into every connect()/accept() call, the
// Go analogue of proton::container's client_connection_options/
// server_connection_options.
type Container struct {
	ID                   string
	ClientConnectionOpts []Opt
	ServerConnectionOpts []Opt
}

func mergeOptions(base []Opt, extra []Opt) ConnectionOptions {
	var merged ConnectionOptions
	for _, o := range base {
		o(&merged)
	}
	for _, o := range extra {
		o(&merged)
	}
	return merged
}
