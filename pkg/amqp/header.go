package amqp

import "bytes"

// protocolKind is the classification pn_sniff_header returns.
type protocolKind uint8

const (
	protocolInsufficient protocolKind = iota
	protocolAMQP
	protocolAMQPSASL
	protocolAMQPTLS
	protocolOther
)

func (p protocolKind) String() string {
	switch p {
	case protocolAMQP:
		return "AMQP"
	case protocolAMQPSASL:
		return "SASL"
	case protocolAMQPTLS:
		return "TLS"
	case protocolInsufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

const saslHeaderLen = 8

var saslHeaderBytes = []byte("AMQP\x03\x01\x00\x00")

// sniffHeader classifies the first up-to-8 bytes of a candidate protocol
// header (spec.md §4.3).
func sniffHeader(b []byte) protocolKind {
	n := len(b)
	if n > saslHeaderLen {
		n = saslHeaderLen
	}
	prefixLen := n
	if prefixLen > 4 {
		prefixLen = 4
	}
	if !bytes.Equal(b[:prefixLen], []byte("AMQP")[:prefixLen]) {
		return protocolOther
	}
	if n < saslHeaderLen {
		return protocolInsufficient
	}
	if b[5] != 1 || b[6] != 0 || b[7] != 0 {
		return protocolOther
	}
	switch b[4] {
	case 0:
		return protocolAMQP
	case 2:
		return protocolAMQPTLS
	case 3:
		return protocolAMQPSASL
	default:
		return protocolOther
	}
}

// readSASLHeader is pn_input_read_sasl_header: it reads exactly 8 bytes and
// either installs the next layer or closes the tail with a framing error.
func (d *Driver) readSASLHeader(slot *layerSlot, available []byte) (int, bool) {
	eos := d.readEOS
	kind := sniffHeader(available)
	switch kind {
	case protocolAMQPSASL:
		if slot.kind == layerSASLReadHeader {
			slot.rewireTo(layerSASL)
		} else {
			slot.rewireTo(layerSASLWriteHeader)
		}
		d.logger().Log(LogLevelDebug, "read protocol header", "protocol", "SASL")
		if d.transport.ExternalSSF != 0 || d.transport.ExternalAuthID != "" {
			d.sasl().setExternalSecurity(d.transport.ExternalSSF, d.transport.ExternalAuthID)
		}
		return saslHeaderLen, false
	case protocolInsufficient:
		if !eos {
			return 0, false
		}
		fallthrough
	default:
		d.transport.CloseSent = true
		quoted := quoteBytes(available)
		suffix := ""
		if eos {
			suffix = " (connection aborted)"
		}
		d.doError(CondFramingError, "%s header mismatch: %s ['%s']%s", "SASL", kind.protocolName(), quoted, suffix)
		return 0, true
	}
}

// protocolName renders the detected kind the way pni_protocol_name does:
// a human name for matching protocols, "unknown" otherwise.
func (p protocolKind) protocolName() string {
	switch p {
	case protocolAMQP, protocolAMQPSASL, protocolAMQPTLS:
		return p.String()
	default:
		return "unknown"
	}
}

// writeSASLHeader is pn_output_write_sasl_header: emits the literal 8-byte
// SASL header and advances the slot.
func (d *Driver) writeSASLHeader(slot *layerSlot, buf []byte) (int, bool) {
	if d.transport.CloseSent {
		return 0, true
	}
	if len(buf) < saslHeaderLen {
		return 0, false
	}
	copy(buf, saslHeaderBytes)
	d.logger().Log(LogLevelDebug, "wrote protocol header", "protocol", "SASL")
	if slot.kind == layerSASLWriteHeader {
		slot.rewireTo(layerSASL)
	} else {
		slot.rewireTo(layerSASLReadHeader)
	}
	return saslHeaderLen, false
}
