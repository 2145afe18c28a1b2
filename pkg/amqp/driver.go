package amqp

import "fmt"

// defaultBufferSize is the initial capacity for the driver's read/write
// buffers, matching the teacher's modest default dial/read buffer sizing
// rather than proton's page-aligned growth (pkg/kgo/broker.go's brokerCxn
// buffering).
const defaultBufferSize = 4096

// Driver is the connection driver (spec.md §3, "Driver"): it owns a byte
// buffer pair, a fixed-depth layer stack, a Transport, a pending-frame
// queue, and an event collector, and exposes the read/write/dispatch API a
// host event loop drives.
type Driver struct {
	transport  *Transport
	connection *Connection
	logger_    Logger

	amqp    AMQPLayer
	saslCtx *saslContext

	layers []layerSlot

	readBuf   []byte
	readTail  int // bytes at the front of readBuf already consumed by the layers in the current pump
	readEOS   bool
	inputDone bool // top layer returned EOS on input; stop calling it

	writeBuf   []byte
	writeHead  int // bytes at the front of writeBuf already released by write_done
	writeLen   int // bytes currently valid in writeBuf, starting at writeHead
	outputDone bool // top layer returned EOS on output; stop calling it

	pending [][]byte // queued, fully-encoded SASL frames awaiting drain

	events []Event

	closed bool
}

// newDriver builds an unconfigured Driver for the given role; configure
// fills in the rest.
func newDriver(server bool) *Driver {
	d := &Driver{
		transport:  newTransport(),
		connection: newConnection(),
		amqp:       nullAMQPLayer{},
		readBuf:    make([]byte, 0, defaultBufferSize),
		writeBuf:   make([]byte, defaultBufferSize),
	}
	d.transport.Server = server
	d.layers = []layerSlot{{kind: layerHeaderSniff}}
	return d
}

func (d *Driver) logger() Logger {
	if d.logger_ == nil {
		return nopLogger{}
	}
	return d.logger_
}

// doError is pn_transport_logf + the error condition setter rolled
// together: it records the first CondFramingError/CondException on the
// transport and logs it, the way pn_do_error does (spec.md §7.1).
func (d *Driver) doError(name, format string, args ...any) {
	desc := fmt.Sprintf(format, args...)
	d.transport.setCondition(name, desc)
	d.logger().Log(LogLevelError, "transport error", "condition", name, "description", desc)
	d.emit()
}

func (d *Driver) drainPending(buf []byte) int {
	written := 0
	for len(d.pending) > 0 {
		next := d.pending[0]
		if len(next) > len(buf)-written {
			break
		}
		copy(buf[written:], next)
		written += len(next)
		d.pending = d.pending[1:]
	}
	return written
}

// connect builds a client-role driver and applies opts (spec.md §4.1,
// "connection_driver::connect").
func connect(opts ...Opt) *Driver {
	return newAndConfigure(false, opts)
}

// accept builds a server-role driver and applies opts
// ("connection_driver::accept").
func accept(opts ...Opt) *Driver {
	return newAndConfigure(true, opts)
}

func newAndConfigure(server bool, opts []Opt) *Driver {
	d := newDriver(server)
	cfg := mergeOptions(nil, opts)
	d.configure(cfg)
	if !server {
		d.connection.Hostname = cfg.SASL.RemoteHostname
		d.connection.Open()
	}
	return d
}

// configure applies a merged ConnectionOptions the way
// connection_driver::configure applies connection_options: unbound
// callbacks first, then the logger, AMQP layer and SASL configuration, then
// bound callbacks (spec.md §4.1). The transport's server/client role is set
// by newDriver before configure runs, so unbound callbacks already see it;
// there is no separate bind step. cfg.Handler is not stored.
func (d *Driver) configure(cfg ConnectionOptions) {
	for _, f := range cfg.unbound {
		f(d)
	}

	if cfg.Logger != nil {
		d.logger_ = cfg.Logger
	}
	if cfg.AMQP != nil {
		d.amqp = cfg.AMQP
	}
	d.applySASLConfig(cfg.SASL)

	for _, f := range cfg.bound {
		f(d)
	}
}

func (d *Driver) applySASLConfig(cfg SASLConfig) {
	sc := d.sasl()
	sc.candidates = cfg.Mechanisms
	sc.username = cfg.Username
	sc.password = cfg.Password
	sc.remoteFQDN = cfg.RemoteHostname
	if cfg.ConfigName != "" {
		sc.configName = cfg.ConfigName
	}
	if cfg.ConfigDir != "" {
		sc.configDir = cfg.ConfigDir
	}
	sc.externalAuth = cfg.ExternalAuth
	sc.externalSSF = cfg.ExternalSSF
	if cfg.AllowedMechs != nil {
		d.AllowedMechs(cfg.AllowedMechs)
	}
	if cfg.Outcome != 0 {
		sc.done(cfg.Outcome)
	}
}

// ReadBuffer returns the region of the read buffer the host should fill
// with bytes received from the wire (spec.md §4.1, "read_buffer").
func (d *Driver) ReadBuffer() []byte {
	if d.readEOS || d.closed {
		return nil
	}
	free := d.readBuf[len(d.readBuf):cap(d.readBuf)]
	if len(free) == 0 {
		grown := make([]byte, len(d.readBuf), cap(d.readBuf)*2+defaultBufferSize)
		copy(grown, d.readBuf)
		d.readBuf = grown
		free = d.readBuf[len(d.readBuf):cap(d.readBuf)]
	}
	return free
}

// ReadDone commits n bytes written into the slice ReadBuffer returned and
// immediately drives them through the layer pipeline ("read_done(n):
// commits n bytes; triggers input processing by the top layer", spec.md
// §4.1).
func (d *Driver) ReadDone(n int) {
	d.readBuf = d.readBuf[:len(d.readBuf)+n]
	d.pumpInput()
}

// ReadClose signals EOS on the input side ("read_close"): no further bytes
// will ever arrive. This may itself let the top layer reach a conclusion
// (a framing error, or SASL's terminal input state), so it pumps too.
func (d *Driver) ReadClose() {
	d.readEOS = true
	d.pumpInput()
}

// pumpInput feeds committed-but-unconsumed read bytes through the layer
// stack until a layer can't make progress, sliding the consumed prefix out
// of readBuf (spec.md §4.2).
func (d *Driver) pumpInput() {
	for !d.inputDone {
		slot := &d.layers[len(d.layers)-1]
		available := d.readBuf[d.readTail:]
		n, eos := slot.processInput(d, available)
		if n > 0 {
			d.readTail += n
		}
		if eos {
			d.inputDone = true
			break
		}
		if n == 0 {
			break
		}
	}
	if d.readTail > 0 {
		remaining := copy(d.readBuf, d.readBuf[d.readTail:])
		d.readBuf = d.readBuf[:remaining]
		d.readTail = 0
	}
}

// WriteBuffer returns the next chunk of bytes the host should write to the
// wire ("write_buffer"). It pumps the output side of the pipeline lazily,
// the way pn_connection_driver_write_buffer does.
func (d *Driver) WriteBuffer() []byte {
	if d.writeLen == 0 && !d.outputDone {
		d.pumpOutput()
	}
	return d.writeBuf[d.writeHead : d.writeHead+d.writeLen]
}

func (d *Driver) pumpOutput() {
	slot := &d.layers[len(d.layers)-1]
	free := d.writeBuf[d.writeHead+d.writeLen:]
	if len(free) == 0 {
		d.writeHead, d.writeLen = 0, 0
		free = d.writeBuf
	}
	n, eos := slot.processOutput(d, free)
	d.writeLen += n
	if eos {
		d.outputDone = true
	}
}

// WriteDone releases n bytes as having been written to the wire
// ("write_done").
func (d *Driver) WriteDone(n int) {
	d.writeHead += n
	d.writeLen -= n
	if d.writeLen == 0 {
		d.writeHead = 0
	}
}

// WriteClose marks the output side closed ("write_close").
func (d *Driver) WriteClose() {
	d.transport.CloseSent = true
}

// Dispatch hands every queued event to h in order, draining the queue
// (spec.md §4.1, "dispatch"). A panic from h is caught and, if the
// transport condition is unset, converted into a transport-level
// "exception" condition (spec.md §7.3) rather than propagated to the host.
func (d *Driver) Dispatch(h Handler) bool {
	for len(d.events) > 0 {
		e := d.events[0]
		d.events = d.events[1:]
		if h != nil {
			d.dispatchOne(h, e)
		}
	}
	if d.writeLen == 0 && !d.outputDone {
		d.pumpOutput()
	}
	if d.inputDone && d.outputDone && len(d.pending) == 0 && d.writeLen == 0 {
		d.closed = true
	}
	return !d.closed
}

func (d *Driver) dispatchOne(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.transport.setCondition(CondException, fmt.Sprintf("%v", r))
			d.logger().Log(LogLevelError, "handler panicked", "condition", CondException, "value", r)
		}
	}()
	h.HandleTransport(e)
}

// Disconnected reports a transport-level failure the host observed
// directly (a socket error, say) rather than one the driver itself
// detected from the byte stream.
func (d *Driver) Disconnected(cond ErrorCondition) {
	if cond.IsSet() {
		d.transport.setCondition(cond.Name, cond.Description)
	}
	d.readEOS = true
	d.transport.CloseSent = true
	d.closed = true
	d.emit()
}

// Transport exposes the driver's Transport for inspection.
func (d *Driver) Transport() *Transport { return d.transport }

// Connection exposes the driver's Connection for inspection.
func (d *Driver) Connection() *Connection { return d.connection }

// Connect builds a client-role Driver and applies opts, opening the
// connection immediately (spec.md §4.1, "connect(options)").
func Connect(opts ...Opt) *Driver { return connect(opts...) }

// Accept builds a server-role Driver and applies opts
// ("accept(options)").
func Accept(opts ...Opt) *Driver { return accept(opts...) }

// Connect merges c's client defaults with opts and builds a client-role
// Driver (spec.md §4.1: "connect(options): merge container defaults with
// the supplied options").
func (c *Container) Connect(opts ...Opt) *Driver {
	cfg := mergeOptions(c.ClientConnectionOpts, opts)
	d := newDriver(false)
	d.configure(cfg)
	d.connection.Hostname = cfg.SASL.RemoteHostname
	d.connection.Open()
	return d
}

// Accept merges c's server defaults with opts and builds a server-role
// Driver.
func (c *Container) Accept(opts ...Opt) *Driver {
	cfg := mergeOptions(c.ServerConnectionOpts, opts)
	d := newDriver(true)
	d.configure(cfg)
	return d
}
