package amqp

// AMQPLayer is the interface the layered I/O pipeline delegates to beneath
// SASL, once negotiation completes (or immediately, on a connection that
// never uses SASL). The real session/link/delivery state machine that
// would satisfy this in a full client is out of scope for this core
// (spec.md §1); a minimal passthrough default is supplied so the pipeline
// can be driven end to end.
type AMQPLayer interface {
	// ProcessInput consumes from bytes, returning the number of bytes
	// consumed and whether the layer is now at EOS.
	ProcessInput(bytes []byte) (n int, eos bool)

	// ProcessOutput writes into buf, returning the number of bytes
	// produced and whether the layer is now at EOS.
	ProcessOutput(buf []byte) (n int, eos bool)
}

// nullAMQPLayer consumes all given input immediately and never produces
// output on its own; it exists purely so the pipeline has something to hand
// off to once SASL negotiation ends.
type nullAMQPLayer struct{}

func (nullAMQPLayer) ProcessInput(bytes []byte) (int, bool) { return len(bytes), false }
func (nullAMQPLayer) ProcessOutput(buf []byte) (int, bool)  { return 0, false }

// layerKind tags which processor currently occupies a pipeline slot. Rather
// than the source's function-pointer swap, a slot is a small tagged variant
// the driver dispatches through with a switch — the "rewrite in place" the
// design notes call for, expressed without pointer punning (spec.md §9).
type layerKind uint8

const (
	layerHeaderSniff layerKind = iota
	layerSASLWriteHeader
	layerSASLReadHeader
	layerSASL
	layerPassthru
)

// layerSlot is one entry of the driver's layer stack (spec.md §3,
// "LayerSlot"). It is never reallocated: rewireTo only changes kind in
// place, so buffered bytes already associated with the slot are never
// lost mid-switch.
type layerSlot struct {
	kind layerKind
}

func (s *layerSlot) rewireTo(k layerKind) { s.kind = k }

// processInput dispatches to the processor currently installed at this
// slot. eos reports that the slot no longer wants to be called; the driver
// never calls a slot again once it has returned eos on that side (spec.md
// §4.2).
func (s *layerSlot) processInput(d *Driver, bytes []byte) (n int, eos bool) {
	switch s.kind {
	case layerHeaderSniff, layerSASLReadHeader:
		return d.readSASLHeader(s, bytes)
	case layerSASLWriteHeader, layerSASL:
		return d.readSASL(s, bytes)
	case layerPassthru:
		return d.amqp.ProcessInput(bytes)
	default:
		return 0, true
	}
}

func (s *layerSlot) processOutput(d *Driver, buf []byte) (n int, eos bool) {
	switch s.kind {
	case layerHeaderSniff, layerSASLWriteHeader:
		return d.writeSASLHeader(s, buf)
	case layerSASLReadHeader, layerSASL:
		return d.writeSASL(s, buf)
	case layerPassthru:
		return d.amqp.ProcessOutput(buf)
	default:
		return 0, true
	}
}
