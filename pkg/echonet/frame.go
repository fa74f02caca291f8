package echonet

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Header bytes of an ECHONET Lite frame using the specified message format.
const (
	EHD1 byte = 0x10
	EHD2 byte = 0x81
)

// Service codes (ESV) used by the power reader.
const (
	ESVGet    byte = 0x62
	ESVGetRes byte = 0x72
	ESVGetSNA byte = 0x52
)

// EPCInstantaneousPower is the property code of the instantaneous electric
// power measured by a low-voltage smart electric energy meter, in watts.
const EPCInstantaneousPower byte = 0xE7

// DefaultTID is the transaction id stamped on every power request.
const DefaultTID uint16 = 0x0001

// headerLen covers EHD, TID, SEOJ, DEOJ, ESV and OPC.
const headerLen = 12

var (
	// ControllerObject is the controller class instance the reader speaks as.
	ControllerObject = Object{0x05, 0xFF, 0x01}

	// SmartMeterObject is the low-voltage smart electric energy meter class instance.
	SmartMeterObject = Object{0x02, 0x88, 0x01}
)

var (
	ErrShortFrame = errors.New("echonet: frame too short")
	ErrBadHeader  = errors.New("echonet: not an ECHONET Lite frame")
)

// Object is an ECHONET object code: class group, class and instance.
type Object [3]byte

func (o Object) String() string {
	return fmt.Sprintf("%02X%02X%02X", o[0], o[1], o[2])
}

// Property is a single EPC/EDT pair. PDC is derived from len(EDT).
type Property struct {
	EPC byte
	EDT []byte
}

// Frame is a decoded ECHONET Lite message.
type Frame struct {
	TID        uint16
	SEOJ       Object
	DEOJ       Object
	ESV        byte
	Properties []Property
}

// NewPowerRequest returns a Get request for the meter's instantaneous power.
func NewPowerRequest(tid uint16) Frame {
	return Frame{
		TID:        tid,
		SEOJ:       ControllerObject,
		DEOJ:       SmartMeterObject,
		ESV:        ESVGet,
		Properties: []Property{{EPC: EPCInstantaneousPower}},
	}
}

// EncodePowerRequest returns the wire bytes of the fixed power request:
// 10 81 00 01 05 FF 01 02 88 01 62 01 E7 00.
func EncodePowerRequest() []byte {
	b, _ := Encode(NewPowerRequest(DefaultTID))
	return b
}

// Encode serializes f to its wire form.
func Encode(f Frame) ([]byte, error) {
	if len(f.Properties) > 0xFF {
		return nil, fmt.Errorf("echonet: too many properties: %d", len(f.Properties))
	}

	buf := make([]byte, headerLen, headerLen+2*len(f.Properties))
	buf[0], buf[1] = EHD1, EHD2
	binary.BigEndian.PutUint16(buf[2:4], f.TID)
	copy(buf[4:7], f.SEOJ[:])
	copy(buf[7:10], f.DEOJ[:])
	buf[10] = f.ESV
	buf[11] = byte(len(f.Properties))

	for _, p := range f.Properties {
		if len(p.EDT) > 0xFF {
			return nil, fmt.Errorf("echonet: property %02X data too long: %d", p.EPC, len(p.EDT))
		}
		buf = append(buf, p.EPC, byte(len(p.EDT)))
		buf = append(buf, p.EDT...)
	}

	return buf, nil
}

// Decode parses b into a Frame. Truncated input yields ErrShortFrame.
func Decode(b []byte) (*Frame, error) {
	if len(b) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}
	if b[0] != EHD1 || b[1] != EHD2 {
		return nil, fmt.Errorf("%w: header %02X%02X", ErrBadHeader, b[0], b[1])
	}

	f := &Frame{
		TID: binary.BigEndian.Uint16(b[2:4]),
		ESV: b[10],
	}
	copy(f.SEOJ[:], b[4:7])
	copy(f.DEOJ[:], b[7:10])

	opc := int(b[11])
	rest := b[headerLen:]
	f.Properties = make([]Property, 0, opc)
	for i := 0; i < opc; i++ {
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: property %d header", ErrShortFrame, i)
		}
		epc, pdc := rest[0], int(rest[1])
		rest = rest[2:]
		if len(rest) < pdc {
			return nil, fmt.Errorf("%w: property %02X wants %d bytes, have %d", ErrShortFrame, epc, pdc, len(rest))
		}
		f.Properties = append(f.Properties, Property{EPC: epc, EDT: append([]byte(nil), rest[:pdc]...)})
		rest = rest[pdc:]
	}

	return f, nil
}

// DecodeHex parses the hexadecimal payload column of a datagram event.
func DecodeHex(s string) (*Frame, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("echonet: invalid hex payload: %w", err)
	}
	return Decode(b)
}

// ExtractPower returns the instantaneous power carried by a Get_Res frame from
// the smart meter. ok is false for any other frame.
func ExtractPower(f *Frame) (watts uint32, ok bool) {
	if f == nil || f.SEOJ != SmartMeterObject || f.ESV != ESVGetRes {
		return 0, false
	}
	if len(f.Properties) != 1 {
		return 0, false
	}

	p := f.Properties[0]
	if p.EPC != EPCInstantaneousPower || len(p.EDT) != 4 {
		return 0, false
	}

	return binary.BigEndian.Uint32(p.EDT), true
}
