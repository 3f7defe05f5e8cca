package pdu

import (
	"encoding/asn1"

	"github.com/geoffgarside/ber"
)

// Envelope carries the framing around a PDU that differs by SNMP version:
// the community string for v1/v2c, or the USM security parameters and
// scoped-PDU context for v3. MPModel selects which framing applies.
//
// MPModel mirrors the message processing model values used throughout the
// command-generator core: 0 for SNMPv1, 1 for SNMPv2c, 3 for SNMPv3.
type Envelope struct {
	MPModel         int
	Community       string // v1/v2c
	SecurityModel   int    // v3; on v1/v2c decode, 1 or 2
	SecurityName    string // v3 (USM user name); on v1/v2c decode, the community
	SecurityLevel   int    // v3 - see usm.SecurityLevel
	ContextEngineID []byte // v3
	ContextName     string // v3
}

// rawPDU/rawVarbind mirror the wire layout of a PDU: values arrive as raw
// ASN1 values so their application-specific tag can be inspected before
// decoding (see unmarshalVariable).
type rawPDU struct {
	RequestID      int32
	ErrorStatus    int
	ErrorIndex     int
	VarBindList    []rawVarbind
}

type rawVarbind struct {
	OID   asn1.ObjectIdentifier
	Value asn1.RawValue
}

// v1v2cPacket is the wire envelope for SNMPv1/v2c: version, community, PDU.
type v1v2cPacket struct {
	Version   int
	Community []byte
	RawPdu    asn1.RawValue
}

// v3Packet is a deliberately simplified stand-in for the RFC 3412
// message wrapper and RFC 3414 USM security parameters. It carries enough of
// the real structure (security name, context engine ID/name, scoped PDU) for
// the command generator's identity checks to be exercised end-to-end, but it
// does not implement USM authentication or privacy on the wire - see
// usm.LocalizeKey and DESIGN.md for the reasoning behind that boundary.
type v3Packet struct {
	Version             int
	MsgSecurityModel    int
	MsgSecurityName     []byte
	ContextEngineID     []byte
	ContextName         []byte
	RawPdu              asn1.RawValue
}

const maxWireSize = 65535

// Encode renders pdu as wire bytes, framed per env.MPModel.
func Encode(env Envelope, p *PDU) ([]byte, error) {
	raw := toRawPDU(p)

	b, err := ber.Marshal(raw)
	if err != nil {
		return nil, err
	}
	// Overwrite the generic ASN1 SEQUENCE tag ber.Marshal produced with the
	// SNMP message type tag for this PDU.
	b[0] = byte(p.Type)

	if env.MPModel == 3 {
		pkt := v3Packet{
			Version:          3,
			MsgSecurityModel: env.SecurityModel,
			MsgSecurityName:  []byte(env.SecurityName),
			ContextEngineID:  env.ContextEngineID,
			ContextName:      []byte(env.ContextName),
			RawPdu:           asn1.RawValue{FullBytes: b},
		}
		return ber.Marshal(pkt)
	}

	pkt := v1v2cPacket{
		Version:   env.MPModel,
		Community: []byte(env.Community),
		RawPdu:    asn1.RawValue{FullBytes: b},
	}
	return ber.Marshal(pkt)
}

// Decode parses wire bytes into an Envelope and PDU. mpModel selects which
// framing to expect, matching whatever version the original request used.
func Decode(mpModel int, input []byte) (Envelope, *PDU, error) {
	if mpModel == 3 {
		return decodeV3(input)
	}
	return decodeV1V2c(input)
}

func decodeV1V2c(input []byte) (Envelope, *PDU, error) {
	pkt := &v1v2cPacket{}
	if _, err := ber.Unmarshal(input, pkt); err != nil {
		return Envelope{}, nil, err
	}

	pduType := Type(pkt.RawPdu.FullBytes[0])
	pkt.RawPdu.FullBytes[0] = 0x30 // ASN1 SEQUENCE tag, so BER can unmarshal it generically.

	raw := &rawPDU{}
	if _, err := ber.Unmarshal(pkt.RawPdu.FullBytes, raw); err != nil {
		return Envelope{}, nil, err
	}

	p, err := fromRawPDU(pduType, raw)
	if err != nil {
		return Envelope{}, nil, err
	}

	// Community-based security: model 1 for SNMPv1, 2 for SNMPv2c, with the
	// community string standing in as the security name.
	env := Envelope{
		MPModel:       pkt.Version,
		Community:     string(pkt.Community),
		SecurityModel: pkt.Version + 1,
		SecurityName:  string(pkt.Community),
	}
	return env, p, nil
}

func decodeV3(input []byte) (Envelope, *PDU, error) {
	pkt := &v3Packet{}
	if _, err := ber.Unmarshal(input, pkt); err != nil {
		return Envelope{}, nil, err
	}

	pduType := Type(pkt.RawPdu.FullBytes[0])
	pkt.RawPdu.FullBytes[0] = 0x30

	raw := &rawPDU{}
	if _, err := ber.Unmarshal(pkt.RawPdu.FullBytes, raw); err != nil {
		return Envelope{}, nil, err
	}

	p, err := fromRawPDU(pduType, raw)
	if err != nil {
		return Envelope{}, nil, err
	}

	env := Envelope{
		MPModel:         3,
		SecurityModel:   pkt.MsgSecurityModel,
		SecurityName:    string(pkt.MsgSecurityName),
		ContextEngineID: pkt.ContextEngineID,
		ContextName:     string(pkt.ContextName),
	}
	return env, p, nil
}

func toRawPDU(p *PDU) *rawPDU {
	raw := &rawPDU{
		RequestID:   p.RequestID,
		ErrorStatus: p.ErrorStatus,
		ErrorIndex:  p.ErrorIndex,
		VarBindList: make([]rawVarbind, len(p.VarBinds)),
	}
	if p.Type == GetBulkRequestType {
		raw.ErrorStatus = p.NonRepeaters
		raw.ErrorIndex = p.MaxRepetitions
	}
	for i, vb := range p.VarBinds {
		rv, err := marshalVariable(vb.Value)
		if err != nil {
			// A caller handing us a value we cannot encode is a programming
			// error in request construction, not a runtime condition.
			panic(err)
		}
		raw.VarBindList[i] = rawVarbind{OID: vb.OID, Value: rv}
	}
	return raw
}

func fromRawPDU(t Type, raw *rawPDU) (*PDU, error) {
	p := &PDU{
		Type:        t,
		RequestID:   raw.RequestID,
		ErrorStatus: raw.ErrorStatus,
		ErrorIndex:  raw.ErrorIndex,
		VarBinds:    make([]Varbind, len(raw.VarBindList)),
	}
	if t == GetBulkRequestType {
		p.NonRepeaters = raw.ErrorStatus
		p.MaxRepetitions = raw.ErrorIndex
		p.ErrorStatus, p.ErrorIndex = 0, 0
	}
	for i := range raw.VarBindList {
		tv, err := unmarshalVariable(&raw.VarBindList[i].Value)
		if err != nil {
			return nil, err
		}
		p.VarBinds[i] = Varbind{OID: raw.VarBindList[i].OID, Value: tv}
	}
	return p, nil
}
