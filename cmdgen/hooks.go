package cmdgen

import (
	"log"

	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

// Hooks defines trace callbacks a driver invokes around request processing.
// Any field left nil by a caller is filled in with a no-op via mergo when
// the driver is constructed.
type Hooks struct {
	// RequestSent is called once a request has been handed to the
	// dispatcher, before any response is known.
	RequestSent func(appHandle int32, tgt target.Info, reqPDU *pdu.PDU)

	// Retry is called when a request is about to be resent after a
	// dispatcher error, with the attempt number about to be made (starting
	// at 2 - the first retransmission).
	Retry func(appHandle int32, tgt target.Info, attempt int, cause error)

	// Dropped is called when a response is discarded: either it does not
	// correlate to any pending request, or it fails the identity/request-id
	// checks in CmdBase.processResponsePdu.
	Dropped func(sendHandle int32, reason string)

	// Completed is called once a request reaches a terminal outcome -
	// delivered to the application callback, successfully or not.
	Completed func(appHandle int32, tgt target.Info, err error)
}

// DefaultHooks logs retries and drops - useful during development, noisy for
// a well-behaved production target.
var DefaultHooks = &Hooks{
	Retry: func(appHandle int32, tgt target.Info, attempt int, cause error) {
		log.Printf("cmdgen: handle:%d target:%s retry:%d cause:%v\n", appHandle, tgt.Name, attempt, cause)
	},
	Dropped: func(sendHandle int32, reason string) {
		log.Printf("cmdgen: dropping response for handle:%d reason:%s\n", sendHandle, reason)
	},
}

// NoOpHooks does nothing for every event.
var NoOpHooks = &Hooks{
	RequestSent: func(int32, target.Info, *pdu.PDU) {},
	Retry:       func(int32, target.Info, int, error) {},
	Dropped:     func(int32, string) {},
	Completed:   func(int32, target.Info, error) {},
}
