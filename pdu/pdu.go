package pdu

import (
	"encoding/asn1"
	"strconv"
	"strings"
)

// Type identifies the SNMP message type carried by a PDU. These values are
// the BER application tags used on the wire (RFC 1157 s.4, RFC 1905 s.3).
type Type byte

const (
	GetRequestType      Type = 0xA0
	GetNextRequestType  Type = 0xA1
	GetResponseType     Type = 0xA2
	SetRequestType      Type = 0xA3
	TrapV1Type          Type = 0xA4
	GetBulkRequestType  Type = 0xA5
	InformRequestType   Type = 0xA6
	TrapV2Type          Type = 0xA7
	ReportType          Type = 0xA8
)

// Varbind is a single name/value pair carried in a PDU. Value is the Null
// placeholder (see NullValue) for the variable bindings of an outgoing
// Get/GetNext/GetBulk request - the value is only meaningful once a response
// has been decoded, or for a Set request where the caller supplies it
// explicitly.
type Varbind struct {
	OID   asn1.ObjectIdentifier
	Value *TypedValue
}

// PDU is the protocol-independent representation of an SNMP PDU used
// throughout the command-generator core. It is deliberately version-agnostic:
// the same PDU is used to build requests for v1, v2c and v3, with the
// wrapping message envelope (Envelope, in codec.go) carrying the
// version-specific framing.
type PDU struct {
	Type           Type
	RequestID      int32
	ErrorStatus    int
	ErrorIndex     int
	NonRepeaters   int
	MaxRepetitions int
	VarBinds       []Varbind
}

// NewGetRequest builds a GetRequest PDU for the supplied OIDs. The request ID
// is left unset - the caller (the command-generator core) assigns it.
func NewGetRequest(oids []string) *PDU {
	return &PDU{Type: GetRequestType, VarBinds: buildVarBinds(oids)}
}

// NewGetNextRequest builds a GetNextRequest PDU for the supplied OIDs.
func NewGetNextRequest(oids []string) *PDU {
	return &PDU{Type: GetNextRequestType, VarBinds: buildVarBinds(oids)}
}

// NewGetBulkRequest builds a GetBulkRequest PDU. Per RFC 1905 s.4.2.3, the
// error-status/error-index fields are repurposed to carry non-repeaters and
// max-repetitions - SetNonRepeaters/SetMaxRepetitions exist precisely so a
// caller sets these before anything else touches the PDU.
func NewGetBulkRequest(oids []string, nonRepeaters, maxRepetitions int) *PDU {
	p := &PDU{Type: GetBulkRequestType, VarBinds: buildVarBinds(oids)}
	p.NonRepeaters = nonRepeaters
	p.MaxRepetitions = maxRepetitions
	return p
}

// NewSetRequest builds a SetRequest PDU carrying the supplied variable
// bindings, each of which must have a non-nil Value.
func NewSetRequest(varBinds []Varbind) *PDU {
	return &PDU{Type: SetRequestType, VarBinds: varBinds}
}

// NewGetResponse builds a GetResponse PDU - used by the dispatcher/tests to
// construct a synthetic agent reply.
func NewGetResponse(requestID int32, errorStatus, errorIndex int, varBinds []Varbind) *PDU {
	return &PDU{
		Type:        GetResponseType,
		RequestID:   requestID,
		ErrorStatus: errorStatus,
		ErrorIndex:  errorIndex,
		VarBinds:    varBinds,
	}
}

// Clone returns a deep-enough copy of p suitable for mutating a walk's
// continuation request without disturbing anything a caller retained.
func (p *PDU) Clone() *PDU {
	c := *p
	c.VarBinds = make([]Varbind, len(p.VarBinds))
	copy(c.VarBinds, p.VarBinds)
	return &c
}

// SetVarBinds replaces the PDU's variable bindings outright.
func (p *PDU) SetVarBinds(vbs []Varbind) { p.VarBinds = vbs }

// GetVarBinds returns the PDU's variable bindings.
func (p *PDU) GetVarBinds() []Varbind { return p.VarBinds }

// GetVarBindTable aligns a GetNext/GetBulk response's flat variable bindings
// into rows of reqPDU's column count: reqPDU's own variable-binding count (K)
// is the width of one repetition, so a GetNext response (exactly one
// repetition) yields a single K-wide row, and a GetBulk response (up to
// max-repetitions repetitions) yields one row per repetition, each K wide,
// in the same column order as the request. A response whose binding count is
// not an exact multiple of K has its final, incomplete row dropped rather
// than returned misaligned.
func GetVarBindTable(reqPDU, rspPDU *PDU) [][]Varbind {
	width := len(reqPDU.VarBinds)
	if width == 0 || len(rspPDU.VarBinds) < width {
		return nil
	}

	rows := len(rspPDU.VarBinds) / width
	table := make([][]Varbind, rows)
	for i := 0; i < rows; i++ {
		table[i] = rspPDU.VarBinds[i*width : (i+1)*width]
	}
	return table
}

// SetVarBindsToNull replaces the PDU's variable bindings with one binding per
// supplied OID, each carrying the Null placeholder value, so the PDU can be
// re-sent in place as the next GetNext/GetBulk request of a walk. The walk
// drivers in cmdgen build a new request per round instead of calling this.
func (p *PDU) SetVarBindsToNull(oids []string) { p.VarBinds = buildVarBinds(oids) }

// SetRequestID sets the PDU's request-id field.
func (p *PDU) SetRequestID(id int32) { p.RequestID = id }

// GetRequestID returns the PDU's request-id field.
func (p *PDU) GetRequestID() int32 { return p.RequestID }

// GetErrorStatus returns the PDU's error-status field.
func (p *PDU) GetErrorStatus() int { return p.ErrorStatus }

// GetErrorIndex returns the PDU's error-index field.
func (p *PDU) GetErrorIndex() int { return p.ErrorIndex }

// SetNonRepeaters sets the non-repeaters count of a GetBulkRequest. Must be
// called before the PDU is handed to the dispatcher.
func (p *PDU) SetNonRepeaters(n int) { p.NonRepeaters = n }

// SetMaxRepetitions sets the max-repetitions count of a GetBulkRequest.
func (p *PDU) SetMaxRepetitions(n int) { p.MaxRepetitions = n }

func buildVarBinds(oids []string) []Varbind {
	vbs := make([]Varbind, len(oids))
	for i, o := range oids {
		vbs[i] = Varbind{OID: ParseOID(o), Value: NullValue()}
	}
	return vbs
}

// ParseOID converts a dotted-decimal OID string into an ObjectIdentifier.
// Panics on malformed input - callers are expected to validate OIDs supplied
// by an application before they reach the command generator.
func ParseOID(s string) asn1.ObjectIdentifier {
	parts := strings.Split(strings.Trim(s, "."), ".")
	ints := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			panic(err)
		}
		ints[i] = v
	}
	return ints
}

// IsDescendantOf reports whether oid is a strict descendant of rootOID.
func IsDescendantOf(oid asn1.ObjectIdentifier, rootOID string) bool {
	return strings.HasPrefix(oid.String(), strings.TrimSuffix(rootOID, ".")+".")
}
