package amqp

import (
	"encoding/binary"
	"fmt"
)

// FrameType distinguishes an AMQP frame from a SASL frame on the wire
// (spec.md §6: "Frame type byte = SASL_FRAME_TYPE").
type FrameType uint8

const (
	AMQPFrameType FrameType = 0
	SASLFrameType FrameType = 1
)

// Performative descriptor codes for the five SASL performatives (AMQP 1.0
// §5.3). These are the well-known numeric domain 0x00000000:0000004X
// descriptors; only the low byte varies here.
const (
	DescrSASLMechanisms uint64 = 0x40
	DescrSASLInit       uint64 = 0x41
	DescrSASLChallenge  uint64 = 0x42
	DescrSASLResponse   uint64 = 0x43
	DescrSASLOutcome    uint64 = 0x44
)

const minDoff = 2 // smallest legal data offset, in 4-byte words

// encodeFrameHeader prepends an AMQP frame header (size, doff, type,
// channel) to body and returns the full frame.
func encodeFrameHeader(frameType FrameType, channel uint16, body []byte) []byte {
	size := uint32(minDoff*4 + len(body))
	out := make([]byte, 0, size)
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], size)
	out = append(out, sizeBuf[:]...)
	out = append(out, minDoff, byte(frameType))
	var chBuf [2]byte
	binary.BigEndian.PutUint16(chBuf[:], channel)
	out = append(out, chBuf[:]...)
	out = append(out, body...)
	return out
}

// DecodeFrameHeader parses the fixed 8-byte AMQP frame header from the front
// of buf. It returns the declared total frame size, the byte offset of the
// frame body (doff*4), the frame type, and the channel/type-specific field.
// If buf does not yet contain a full header, ok is false and no bytes are
// consumed.
func DecodeFrameHeader(buf []byte) (size uint32, bodyOffset int, frameType FrameType, channel uint16, ok bool) {
	if len(buf) < 8 {
		return 0, 0, 0, 0, false
	}
	size = binary.BigEndian.Uint32(buf[0:4])
	doff := buf[4]
	frameType = FrameType(buf[5])
	channel = binary.BigEndian.Uint16(buf[6:8])
	bodyOffset = int(doff) * 4
	return size, bodyOffset, frameType, channel, true
}

// AMQP primitive constructors used by the SASL frame codec. Only the subset
// needed to round-trip SASL performatives is implemented; the AMQP layer
// beneath SASL is treated as an opaque byte stream by this core (spec.md
// §1, "the higher AMQP session/link/delivery state machine" is out of
// scope).
const (
	ctorNull    = 0x40
	ctorBoolT   = 0x41
	ctorBoolF   = 0x42
	ctorUByte   = 0x50
	ctorSmall   = 0x53 // smallulong
	ctorULong8  = 0x80
	ctorStr8    = 0xa1
	ctorSym8    = 0xa3
	ctorBin8    = 0xa0
	ctorStr32   = 0xb1
	ctorSym32   = 0xb3
	ctorBin32   = 0xb0
	ctorList0   = 0x45
	ctorList8   = 0xc0
	ctorList32  = 0xd0
	ctorArray8  = 0xe0
	ctorArray32 = 0xf0
	ctorDescribed = 0x00
)

// Symbol and Binary distinguish AMQP's symbol and binary types from an
// ordinary Go string/[]byte when round-tripping through encode/decode.
type Symbol string
type Binary []byte

// encodeValue appends the AMQP encoding of v to dst and returns the
// extended slice. Supported Go types: nil, bool, uint8, Symbol, Binary,
// string, []Symbol (encoded as an array of symbols), []any (as a list).
func encodeValue(dst []byte, v any) []byte {
	switch t := v.(type) {
	case nil:
		return append(dst, ctorNull)
	case bool:
		if t {
			return append(dst, ctorBoolT)
		}
		return append(dst, ctorBoolF)
	case uint8:
		return append(dst, ctorUByte, t)
	case Symbol:
		return encodeSized(dst, ctorSym8, ctorSym32, []byte(t))
	case Binary:
		return encodeSized(dst, ctorBin8, ctorBin32, []byte(t))
	case string:
		return encodeSized(dst, ctorStr8, ctorStr32, []byte(t))
	case []Symbol:
		return encodeSymbolArray(dst, t)
	case []any:
		return encodeList(dst, t)
	default:
		panic(fmt.Sprintf("amqp: encodeValue: unsupported type %T", v))
	}
}

func encodeSized(dst []byte, small, large byte, data []byte) []byte {
	if len(data) <= 255 {
		dst = append(dst, small, byte(len(data)))
		return append(dst, data...)
	}
	dst = append(dst, large)
	var sz [4]byte
	binary.BigEndian.PutUint32(sz[:], uint32(len(data)))
	dst = append(dst, sz[:]...)
	return append(dst, data...)
}

func encodeSymbolArray(dst []byte, syms []Symbol) []byte {
	var elems []byte
	for _, s := range syms {
		elems = encodeSizedNoCtor(elems, []byte(s))
	}
	count := len(syms)
	// size field covers constructor-of-element(1) + count(4 for array32,
	// 1 for array8) ... kept simple: always use array32 so the single
	// element constructor byte plus count prefix size computation stays
	// uniform regardless of element sizes.
	body := append([]byte{ctorSym32}, elems...)
	size := uint32(4 + len(body)) // count field + body
	dst = append(dst, ctorArray32)
	var szBuf, cntBuf [4]byte
	binary.BigEndian.PutUint32(szBuf[:], size)
	binary.BigEndian.PutUint32(cntBuf[:], uint32(count))
	dst = append(dst, szBuf[:]...)
	dst = append(dst, cntBuf[:]...)
	dst = append(dst, body...)
	return dst
}

// encodeSizedNoCtor appends a sym32-encoded element (4-byte length prefix,
// no constructor byte — array elements share one constructor for the whole
// array).
func encodeSizedNoCtor(dst []byte, data []byte) []byte {
	var sz [4]byte
	binary.BigEndian.PutUint32(sz[:], uint32(len(data)))
	dst = append(dst, sz[:]...)
	return append(dst, data...)
}

func encodeList(dst []byte, items []any) []byte {
	var body []byte
	for _, it := range items {
		body = encodeValue(body, it)
	}
	if len(items) == 0 {
		return append(dst, ctorList0)
	}
	size := uint32(4 + len(body)) // count field + body
	dst = append(dst, ctorList32)
	var szBuf, cntBuf [4]byte
	binary.BigEndian.PutUint32(szBuf[:], size)
	binary.BigEndian.PutUint32(cntBuf[:], uint32(len(items)))
	dst = append(dst, szBuf[:]...)
	dst = append(dst, cntBuf[:]...)
	dst = append(dst, body...)
	return dst
}

// encodeDescribedList encodes a DL[...] performative: the 0x00 described
// constructor, a smallulong descriptor, then a list of fields.
func encodeDescribedList(descriptor uint64, fields ...any) []byte {
	var out []byte
	out = append(out, ctorDescribed, ctorSmall, byte(descriptor))
	out = encodeList(out, fields)
	return out
}

// DescribedValue is the decoded form of an AMQP described type: a numeric
// descriptor and its value (typically a []any for a performative's field
// list).
type DescribedValue struct {
	Descriptor uint64
	Value      any
}

// DecodeValue decodes a single AMQP value from the front of buf, returning
// the Go-native representation (nil, bool, uint8, Symbol, Binary, string,
// []any for lists, []Symbol for symbol arrays, DescribedValue for 0x00) and
// the number of bytes consumed.
func DecodeValue(buf []byte) (value any, consumed int, err error) {
	if len(buf) == 0 {
		return nil, 0, ErrShortFrame
	}
	ctor := buf[0]
	switch ctor {
	case ctorNull:
		return nil, 1, nil
	case ctorBoolT:
		return true, 1, nil
	case ctorBoolF:
		return false, 1, nil
	case ctorUByte:
		if len(buf) < 2 {
			return nil, 0, ErrShortFrame
		}
		return buf[1], 2, nil
	case ctorSmall:
		if len(buf) < 2 {
			return nil, 0, ErrShortFrame
		}
		return uint64(buf[1]), 2, nil
	case ctorULong8:
		if len(buf) < 9 {
			return nil, 0, ErrShortFrame
		}
		return binary.BigEndian.Uint64(buf[1:9]), 9, nil
	case ctorStr8, ctorSym8, ctorBin8:
		if len(buf) < 2 {
			return nil, 0, ErrShortFrame
		}
		n := int(buf[1])
		if len(buf) < 2+n {
			return nil, 0, ErrShortFrame
		}
		data := buf[2 : 2+n]
		return wrapSized(ctor, data), 2 + n, nil
	case ctorStr32, ctorSym32, ctorBin32:
		if len(buf) < 5 {
			return nil, 0, ErrShortFrame
		}
		n := int(binary.BigEndian.Uint32(buf[1:5]))
		if len(buf) < 5+n {
			return nil, 0, ErrShortFrame
		}
		data := buf[5 : 5+n]
		return wrapSized(ctor, data), 5 + n, nil
	case ctorList0:
		return []any{}, 1, nil
	case ctorList8:
		if len(buf) < 3 {
			return nil, 0, ErrShortFrame
		}
		size := int(buf[1])
		count := int(buf[2])
		return decodeListBody(buf, 3, size-1, count)
	case ctorList32:
		if len(buf) < 9 {
			return nil, 0, ErrShortFrame
		}
		size := int(binary.BigEndian.Uint32(buf[1:5]))
		count := int(binary.BigEndian.Uint32(buf[5:9]))
		return decodeListBody(buf, 9, size-4, count)
	case ctorArray8:
		if len(buf) < 3 {
			return nil, 0, ErrShortFrame
		}
		size := int(buf[1])
		count := int(buf[2])
		return decodeArrayBody(buf, 3, size-1, count)
	case ctorArray32:
		if len(buf) < 9 {
			return nil, 0, ErrShortFrame
		}
		size := int(binary.BigEndian.Uint32(buf[1:5]))
		count := int(binary.BigEndian.Uint32(buf[5:9]))
		return decodeArrayBody(buf, 9, size-4, count)
	case ctorDescribed:
		descVal, n, err := DecodeValue(buf[1:])
		if err != nil {
			return nil, 0, err
		}
		var descriptor uint64
		switch d := descVal.(type) {
		case uint64:
			descriptor = d
		default:
			return nil, 0, fmt.Errorf("amqp: unsupported descriptor type %T", descVal)
		}
		val, n2, err := DecodeValue(buf[1+n:])
		if err != nil {
			return nil, 0, err
		}
		return DescribedValue{Descriptor: descriptor, Value: val}, 1 + n + n2, nil
	default:
		return nil, 0, fmt.Errorf("amqp: unsupported constructor 0x%02x", ctor)
	}
}

func wrapSized(ctor byte, data []byte) any {
	switch ctor {
	case ctorSym8, ctorSym32:
		return Symbol(data)
	case ctorBin8, ctorBin32:
		return Binary(append([]byte(nil), data...))
	default:
		return string(data)
	}
}

func decodeListBody(buf []byte, offset, bodyLen, count int) (any, int, error) {
	if bodyLen < 0 || offset+bodyLen > len(buf) {
		return nil, 0, ErrShortFrame
	}
	body := buf[offset : offset+bodyLen]
	items := make([]any, 0, count)
	pos := 0
	for i := 0; i < count; i++ {
		v, n, err := DecodeValue(body[pos:])
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
		pos += n
	}
	return items, offset + bodyLen, nil
}

func decodeArrayBody(buf []byte, offset, bodyLen, count int) (any, int, error) {
	if bodyLen < 1 || offset+bodyLen > len(buf) {
		return nil, 0, ErrShortFrame
	}
	elemCtor := buf[offset]
	pos := offset + 1
	end := offset + bodyLen
	syms := make([]Symbol, 0, count)
	for i := 0; i < count; i++ {
		switch elemCtor {
		case ctorSym8:
			if pos >= end {
				return nil, 0, ErrShortFrame
			}
			n := int(buf[pos])
			pos++
			if pos+n > end {
				return nil, 0, ErrShortFrame
			}
			syms = append(syms, Symbol(buf[pos:pos+n]))
			pos += n
		case ctorSym32:
			if pos+4 > end {
				return nil, 0, ErrShortFrame
			}
			n := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
			pos += 4
			if pos+n > end {
				return nil, 0, ErrShortFrame
			}
			syms = append(syms, Symbol(buf[pos:pos+n]))
			pos += n
		default:
			return nil, 0, fmt.Errorf("amqp: unsupported array element constructor 0x%02x", elemCtor)
		}
	}
	return syms, offset + bodyLen, nil
}
