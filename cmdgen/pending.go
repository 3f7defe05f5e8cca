package cmdgen

import (
	"time"

	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

// RequestHandleSource hands out monotonically increasing application
// handles, one per driver instance, wrapping to 1 (never 0) on int32
// overflow rather than reusing a handle within the process's lifetime.
type RequestHandleSource struct {
	counter int32
}

// Next returns the next application handle.
func (s *RequestHandleSource) Next() int32 {
	s.counter++
	if s.counter <= 0 {
		s.counter = 1
	}
	return s.counter
}

// pendingRequest records everything needed to validate and dispatch a
// response, or to retry/expire the request that produced it.
//
// It is keyed in CmdBase.pending by the dispatcher-assigned send handle, not
// the application handle the caller was given, since a response only ever
// carries the former.
type pendingRequest struct {
	appHandle int32

	tgt        target.Info
	pduVersion int

	// orig* capture the identity of the request at send time, to be compared
	// against the response's reported identity before it is trusted - see
	// CmdBase.processResponsePdu.
	origMPModel         int
	origSecurityModel   int
	origSecurityName    string
	origSecurityLevel   string
	origContextEngineID []byte
	origContextName     string
	origPduVersion      int

	requestPDU *pdu.PDU

	deadline time.Time

	// retryLimit is the maximum number of retransmissions allowed (not
	// counting the initial send). retriesUsed counts attempts issued so
	// far, including the initial send - so exhaustion is
	// retriesUsed > retryLimit, not retriesUsed == retryLimit.
	retryLimit  int
	retriesUsed int

	// appCallback and cbCtx are opaque to CmdBase - each driver type-asserts
	// appCallback to its own callback signature (GetCallback, WalkCallback,
	// ...) in its onResponse/onFailure methods. Keeping a single
	// pendingRequest shape for every driver avoids a parallel type per
	// driver for what is otherwise identical bookkeeping.
	appCallback interface{}
	cbCtx       interface{}
}
