package amqp

import (
	"fmt"

	"github.com/amqp10/conndriver/pkg/amqp/sasl"
)

// postFrame wraps a SASL performative body in a frame header and appends it
// to the driver's pending-output queue. SASL frames always travel on
// channel 0 (spec.md §6).
func (d *Driver) postFrame(body []byte) {
	d.pending = append(d.pending, encodeFrameHeader(SASLFrameType, 0, body))
}

func encodeSASLInit(mechanism string, initialResponse []byte) []byte {
	var resp any
	if initialResponse != nil {
		resp = Binary(initialResponse)
	}
	return encodeDescribedList(DescrSASLInit, Symbol(mechanism), resp)
}

func encodeSASLMechanisms(mechs []string) []byte {
	syms := make([]Symbol, len(mechs))
	for i, m := range mechs {
		syms[i] = Symbol(m)
	}
	return encodeDescribedList(DescrSASLMechanisms, syms)
}

func encodeSASLChallenge(b []byte) []byte {
	return encodeDescribedList(DescrSASLChallenge, Binary(b))
}

func encodeSASLResponse(b []byte) []byte {
	return encodeDescribedList(DescrSASLResponse, Binary(b))
}

func encodeSASLOutcome(code sasl.Outcome) []byte {
	return encodeDescribedList(DescrSASLOutcome, uint8(code))
}

// decodedSASLFrame is the parsed form of any one of the five SASL
// performatives.
type decodedSASLFrame struct {
	Descriptor      uint64
	Mechanism       string
	Mechanisms      []string
	InitialResponse []byte
	Bytes           []byte
	Outcome         sasl.Outcome
}

// decodeSASLPerformative parses a single SASL performative from body (the
// frame payload, past the 8-byte frame header).
func decodeSASLPerformative(body []byte) (decodedSASLFrame, error) {
	v, _, err := DecodeValue(body)
	if err != nil {
		return decodedSASLFrame{}, err
	}
	dv, ok := v.(DescribedValue)
	if !ok {
		return decodedSASLFrame{}, fmt.Errorf("amqp: SASL frame body is not a described type")
	}
	fields, ok := dv.Value.([]any)
	if !ok {
		return decodedSASLFrame{}, fmt.Errorf("amqp: SASL performative is not a list")
	}
	out := decodedSASLFrame{Descriptor: dv.Descriptor}
	switch dv.Descriptor {
	case DescrSASLInit:
		if len(fields) < 1 {
			return out, fmt.Errorf("amqp: sasl-init missing mechanism")
		}
		if sym, ok := fields[0].(Symbol); ok {
			out.Mechanism = string(sym)
		}
		if len(fields) > 1 {
			if b, ok := fields[1].(Binary); ok {
				out.InitialResponse = []byte(b)
			}
		}
	case DescrSASLMechanisms:
		if len(fields) < 1 {
			return out, fmt.Errorf("amqp: sasl-mechanisms missing list")
		}
		syms, ok := fields[0].([]Symbol)
		if !ok {
			return out, fmt.Errorf("amqp: sasl-mechanisms field is not a symbol array")
		}
		out.Mechanisms = make([]string, len(syms))
		for i, s := range syms {
			out.Mechanisms[i] = string(s)
		}
	case DescrSASLChallenge, DescrSASLResponse:
		if len(fields) < 1 {
			return out, fmt.Errorf("amqp: sasl-challenge/response missing bytes")
		}
		if b, ok := fields[0].(Binary); ok {
			out.Bytes = []byte(b)
		}
	case DescrSASLOutcome:
		if len(fields) < 1 {
			return out, fmt.Errorf("amqp: sasl-outcome missing code")
		}
		if code, ok := fields[0].(uint8); ok {
			out.Outcome = sasl.Outcome(code)
		}
	default:
		return out, fmt.Errorf("amqp: unknown SASL performative descriptor 0x%x", dv.Descriptor)
	}
	return out, nil
}
