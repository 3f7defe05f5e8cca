// Package pdu implements the SNMP protocol data unit model: the variable
// binding and data type definitions shared by every request and response,
// and the BER encoding used to move a PDU on and off the wire.
//
// The command-generator core never touches these bytes directly - it only
// ever sees the typed PDU and Varbind values defined here. Encoding lives
// here so that the dispatcher (package dispatch) and the core can share a
// single, tested representation of "what a GetRequest/GetResponse looks
// like", rather than each growing its own.
package pdu

import (
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/geoffgarside/ber"
)

// tagMask filters a data type out of a raw BER tag, excluding the class bits
// asn1.RawValue has already separated out.
const tagMask = 0x1f

// SNMP application- and context-class data type tags, as laid out in RFC
// 1155/2578 and RFC 3416 s.3. The resolved* constants are what actually
// shows up in asn1.RawValue.Tag once the class bits are stripped.
const (
	ipTag                = 0x40
	resolvedIPTag        = ipTag & tagMask
	counter32Tag         = 0x41
	resolvedCounter32Tag = counter32Tag & tagMask
	gauge32Tag           = 0x42
	resolvedGauge32Tag   = gauge32Tag & tagMask
	timeTag              = 0x43
	resolvedTimeTag      = timeTag & tagMask
	opaqueTag            = 0x44
	resolvedOpaqueTag    = opaqueTag & tagMask
	counter64Tag         = 0x46
	resolvedCounter64Tag = counter64Tag & tagMask

	endOfMibTag               = 0x82
	resolvedEndOfMibTag       = endOfMibTag & tagMask
	noSuchObjectTag           = 0x80
	resolvedNoSuchObjectTag   = noSuchObjectTag & tagMask
	noSuchInstanceTag         = 0x81
	resolvedNoSuchInstanceTag = noSuchInstanceTag & tagMask
)

// DataType identifies the golang representation used for a variable's value.
type DataType int

const (
	Integer DataType = iota
	OctetString
	OID

	IPAddress
	Time
	Counter32
	Counter64
	Gauge32
	Opaque

	// Null is used for the placeholder value of a variable binding in a
	// request PDU - the agent is expected to replace it.
	Null

	// EndOfMib, NoSuchObject and NoSuchInstance are the three "exception"
	// values an agent can return in place of an actual value (RFC 3416 s.3).
	EndOfMib
	NoSuchObject
	NoSuchInstance
)

var dataTypeNames = map[DataType]string{
	Integer:        "Integer",
	OctetString:    "OctetString",
	OID:            "OID",
	IPAddress:      "IPAddress",
	Time:           "Time",
	Counter32:      "Counter32",
	Counter64:      "Counter64",
	Gauge32:        "Gauge32",
	Opaque:         "Opaque",
	Null:           "Null",
	EndOfMib:       "EndOfMib",
	NoSuchObject:   "NoSuchObject",
	NoSuchInstance: "NoSuchInstance",
}

// String implements fmt.Stringer for DataType, chiefly for diagnostics and
// trace hook output.
func (dt DataType) String() string {
	if name, ok := dataTypeNames[dt]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}

// TypedValue encapsulates the data type and golang value of a variable
// received in - or destined for - a variable binding.
type TypedValue struct {
	Type  DataType
	Value interface{}
}

// NullValue is the placeholder value used for the variable bindings of an
// outgoing request; an agent is required to ignore it.
func NullValue() *TypedValue { return &TypedValue{Type: Null} }

// IsEndOfMib reports whether v is the endOfMibView exception value.
func (tv *TypedValue) IsEndOfMib() bool { return tv != nil && tv.Type == EndOfMib }

// IsNoSuchObject reports whether v is the noSuchObject exception value.
func (tv *TypedValue) IsNoSuchObject() bool { return tv != nil && tv.Type == NoSuchObject }

// IsNoSuchInstance reports whether v is the noSuchInstance exception value.
func (tv *TypedValue) IsNoSuchInstance() bool { return tv != nil && tv.Type == NoSuchInstance }

// IsException reports whether v is any of the three exception values.
func (tv *TypedValue) IsException() bool {
	return tv.IsEndOfMib() || tv.IsNoSuchObject() || tv.IsNoSuchInstance()
}

var stringFormatters = map[DataType]func(*TypedValue) string{
	Integer: func(tv *TypedValue) string { return strconv.FormatInt(tv.Value.(int64), 10) },
	OctetString: func(tv *TypedValue) string {
		return string(tv.Value.([]uint8))
	},
	OID: func(tv *TypedValue) string { return tv.Value.(asn1.ObjectIdentifier).String() },
	Time: func(tv *TypedValue) string {
		return time.Duration(int64(tv.Value.(uint32)) * 10000).String()
	},
	Counter32: func(tv *TypedValue) string { return strconv.FormatInt(int64(tv.Value.(uint32)), 10) },
	Gauge32:   func(tv *TypedValue) string { return strconv.FormatInt(int64(tv.Value.(uint32)), 10) },
	Counter64: func(tv *TypedValue) string { return strconv.FormatInt(int64(tv.Value.(uint64)), 10) },
	IPAddress: func(tv *TypedValue) string {
		address := tv.Value.([]uint8)
		octets := make([]string, len(address))
		for i, octet := range address {
			octets[i] = strconv.Itoa(int(octet))
		}
		return strings.Join(octets, ".")
	},
	Opaque:         func(tv *TypedValue) string { return hex.EncodeToString(tv.Value.([]uint8)) },
	Null:           func(*TypedValue) string { return "" },
	EndOfMib:       func(*TypedValue) string { return "End of Mib" },
	NoSuchObject:   func(*TypedValue) string { return "No such Object" },
	NoSuchInstance: func(*TypedValue) string { return "No such Instance" },
}

// String renders the value in a human-readable form.
func (tv *TypedValue) String() string {
	if format, ok := stringFormatters[tv.Type]; ok {
		return format(tv)
	}
	return fmt.Sprintf("unrecognised data type %d", tv.Type)
}

// OID returns the value as an ObjectIdentifier. Value type must be OID.
func (tv *TypedValue) OID() asn1.ObjectIdentifier {
	return tv.Value.(asn1.ObjectIdentifier)
}

// Int returns the value as an int. Value type must be integer-based.
func (tv *TypedValue) Int() int {
	switch tv.Type { //nolint:exhaustive
	case Integer:
		return int(tv.Value.(int64))
	case Counter64:
		return int(tv.Value.(uint64))
	case Counter32, Gauge32, Time:
		return int(tv.Value.(uint32))
	}
	panic(fmt.Errorf("non-integer data type %d", tv.Type))
}

// tagKey identifies a decoder by the class/tag pair a BER-encoded variable
// carries on the wire, once the class bits have been stripped out of Tag.
type tagKey struct {
	class int
	tag   int
}

// variableDecoders maps every application- and context-class tag this
// package understands to the function that turns its raw bytes into a
// TypedValue. A table here rather than a nested switch keeps the set of
// supported wire types visible as data, and lets unmarshalVariable itself
// stay a single lookup.
var variableDecoders = map[tagKey]func(*asn1.RawValue) (*TypedValue, error){
	{int(asn1.ClassUniversal), asn1.TagInteger}:     func(r *asn1.RawValue) (*TypedValue, error) { return unmarshalInteger(r, Integer) },
	{int(asn1.ClassUniversal), asn1.TagOctetString}: func(r *asn1.RawValue) (*TypedValue, error) { return unmarshalOctetString(r, OctetString) },
	{int(asn1.ClassUniversal), asn1.TagOID}:         unmarshalOID,
	{int(asn1.ClassUniversal), asn1.TagNull}:        func(*asn1.RawValue) (*TypedValue, error) { return NullValue(), nil },

	{int(asn1.ClassApplication), resolvedIPTag}:        func(r *asn1.RawValue) (*TypedValue, error) { return unmarshalOctetString(r, IPAddress) },
	{int(asn1.ClassApplication), resolvedCounter32Tag}:  func(r *asn1.RawValue) (*TypedValue, error) { return unmarshalInteger(r, Counter32) },
	{int(asn1.ClassApplication), resolvedCounter64Tag}:  func(r *asn1.RawValue) (*TypedValue, error) { return unmarshalInteger(r, Counter64) },
	{int(asn1.ClassApplication), resolvedGauge32Tag}:    func(r *asn1.RawValue) (*TypedValue, error) { return unmarshalInteger(r, Gauge32) },
	{int(asn1.ClassApplication), resolvedTimeTag}:       func(r *asn1.RawValue) (*TypedValue, error) { return unmarshalInteger(r, Time) },
	{int(asn1.ClassApplication), resolvedOpaqueTag}:     func(r *asn1.RawValue) (*TypedValue, error) { return unmarshalOctetString(r, Opaque) },

	{int(asn1.ClassContextSpecific), resolvedEndOfMibTag}:       func(*asn1.RawValue) (*TypedValue, error) { return &TypedValue{Type: EndOfMib}, nil },
	{int(asn1.ClassContextSpecific), resolvedNoSuchInstanceTag}: func(*asn1.RawValue) (*TypedValue, error) { return &TypedValue{Type: NoSuchInstance}, nil },
	{int(asn1.ClassContextSpecific), resolvedNoSuchObjectTag}:   func(*asn1.RawValue) (*TypedValue, error) { return &TypedValue{Type: NoSuchObject}, nil },
}

// unmarshalVariable unmarshals an asn1 RawValue containing a single variable
// into a TypedValue that captures both its type and its golang value.
func unmarshalVariable(raw *asn1.RawValue) (*TypedValue, error) {
	decode, ok := variableDecoders[tagKey{class: int(raw.Class), tag: raw.Tag}]
	if !ok {
		return nil, fmt.Errorf("pdu: unsupported class %d tag %d", raw.Class, raw.Tag)
	}
	return decode(raw)
}

func unmarshalInteger(raw *asn1.RawValue, dataType DataType) (*TypedValue, error) {
	var value int64
	// Replace the SNMP application tag with the generic Integer tag so the
	// BER unmarshaler (which only knows ASN1 universal types) accepts it.
	raw.FullBytes[0] = asn1.TagInteger
	if _, err := ber.Unmarshal(raw.FullBytes, &value); err != nil {
		return nil, err
	}
	return &TypedValue{Type: dataType, Value: integerValue(value, dataType)}, nil
}

func integerValue(v int64, dataType DataType) interface{} {
	switch dataType { //nolint:exhaustive
	case Counter32, Gauge32, Time:
		return uint32(v)
	case Counter64:
		return uint64(v)
	}
	return v
}

func unmarshalOctetString(raw *asn1.RawValue, dataType DataType) (*TypedValue, error) {
	value := &TypedValue{Type: dataType, Value: []byte{}}
	raw.FullBytes[0] = asn1.TagOctetString
	if _, err := ber.Unmarshal(raw.FullBytes, &value.Value); err != nil {
		return nil, err
	}
	return value, nil
}

func unmarshalOID(raw *asn1.RawValue) (*TypedValue, error) {
	var value interface{}
	if _, err := ber.Unmarshal(raw.FullBytes, &value); err != nil {
		return nil, err
	}
	return &TypedValue{Type: OID, Value: asn1.ObjectIdentifier(value.([]int))}, nil
}

// marshalVariable renders a TypedValue back to wire bytes. The Null type has
// no application tag of its own - it is encoded as the plain ASN1 NULL, and
// the three exception types have no payload at all.
func marshalVariable(tv *TypedValue) (asn1.RawValue, error) {
	if tv == nil || tv.Type == Null {
		return asn1.NullRawValue, nil
	}

	switch tv.Type { //nolint:exhaustive
	case Integer, OctetString, OID:
		b, err := ber.Marshal(tv.Value)
		return asn1.RawValue{FullBytes: b}, err
	case IPAddress, Counter32, Gauge32, Time, Opaque, Counter64:
		v := tv.Value
		switch n := v.(type) {
		case uint32:
			v = int64(n)
		case uint64:
			v = int64(n)
		}
		b, err := ber.Marshal(v)
		if err != nil {
			return asn1.RawValue{}, err
		}
		// Swap the universal INTEGER/OCTET STRING tag for the SNMP application tag.
		b[0] = map[DataType]byte{IPAddress: ipTag, Counter32: counter32Tag, Gauge32: gauge32Tag, Time: timeTag, Opaque: opaqueTag, Counter64: counter64Tag}[tv.Type]
		return asn1.RawValue{FullBytes: b}, nil
	case EndOfMib:
		return asn1.RawValue{FullBytes: []byte{endOfMibTag, 0x00}}, nil
	case NoSuchObject:
		return asn1.RawValue{FullBytes: []byte{noSuchObjectTag, 0x00}}, nil
	case NoSuchInstance:
		return asn1.RawValue{FullBytes: []byte{noSuchInstanceTag, 0x00}}, nil
	}

	return asn1.RawValue{}, fmt.Errorf("pdu: cannot encode data type %d in a request", tv.Type)
}
