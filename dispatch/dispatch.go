// Package dispatch implements the message-and-PDU dispatcher: the
// command-generator core's one collaborator that actually touches the
// network. It owns the transport, the wire encoding (via package pdu), and
// the correlation of an inbound datagram back to the outstanding request
// that caused it.
//
// The core never calls net.Conn itself - per-try retry counting and
// exhaustion live in cmdgen, but the send/receive/timeout mechanics live
// here, mirroring the dispatcher collaborator the command-generator core is
// specified against.
package dispatch

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"

	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

// StatusInformation reports a dispatcher-level failure to send or receive a
// PDU - a transport error or a response timeout. A nil StatusInformation (or
// one with a nil ErrorIndication) indicates the send completed normally.
type StatusInformation struct {
	ErrorIndication error
}

// ResponseHandler is invoked by the dispatcher when either a response to a
// previously-sent PDU arrives, or that request's deadline expires. sendHandle
// identifies the original SendPdu call. A non-nil statusInfo means no usable
// response PDU is available and responsePDU/env should be ignored.
type ResponseHandler func(sendHandle int32, env pdu.Envelope, pduVersion int, responsePDU *pdu.PDU, statusInfo *StatusInformation, cbCtx interface{})

// Dispatcher sends a PDU to a target and arranges for handler to be called
// exactly once with the outcome - success, protocol error, or timeout.
type Dispatcher interface {
	// SendPdu transmits requestPDU to target and returns the handle the
	// eventual response (or timeout) will be reported against. cbCtx is
	// opaque to the dispatcher and is passed back to handler unchanged.
	SendPdu(tgt target.Info, pduVersion int, requestPDU *pdu.PDU, handler ResponseHandler, cbCtx interface{}) (sendHandle int32, err error)
}

// Hooks defines trace callbacks a Dispatcher invokes around the lifecycle of
// a send. Any unset field is filled in with a no-op by mergo when the
// dispatcher is constructed - see NoOpHooks.
type Hooks struct {
	// SendStart is called before a request is written to the network.
	SendStart func(id uuid.UUID, tgt target.Info, requestPDU *pdu.PDU)

	// SendDone is called once the datagram for a request has been written.
	SendDone func(id uuid.UUID, tgt target.Info, n int, err error)

	// ResponseReceived is called when a datagram is read off the wire,
	// before it has been correlated to a pending send.
	ResponseReceived func(from net.Addr, data []byte)

	// Timeout is called when a request's deadline expires with no response.
	Timeout func(id uuid.UUID, tgt target.Info)
}

// DefaultHooks logs nothing but timeouts - a reasonable default for a
// library that otherwise stays quiet.
var DefaultHooks = &Hooks{
	Timeout: func(id uuid.UUID, tgt target.Info) {
		fmt.Printf("snmpgen: request %s to %s timed out\n", id, tgt.TransportAddress)
	},
}

// NoOpHooks does nothing for every event; used to fill in any hook a caller
// did not set.
var NoOpHooks = &Hooks{
	SendStart:        func(uuid.UUID, target.Info, *pdu.PDU) {},
	SendDone:         func(uuid.UUID, target.Info, int, error) {},
	ResponseReceived: func(net.Addr, []byte) {},
	Timeout:          func(uuid.UUID, target.Info) {},
}

type pendingSend struct {
	id        uuid.UUID
	tgt       target.Info
	mpModel   int
	pduVersion int
	requestID int32
	handler   ResponseHandler
	cbCtx     interface{}
	timer     *time.Timer
}

// UDPDispatcher is a concrete Dispatcher that addresses targets over UDP, the
// transport SNMP is conventionally run over. Requests for different targets
// share one local socket; replies are correlated to a pending send by
// request-id, since UDP delivers no application handle of its own.
type UDPDispatcher struct {
	conn  net.PacketConn
	hooks *Hooks

	mu         sync.Mutex
	nextHandle int32
	pending    map[int32]*pendingSend

	closed chan struct{}
}

// NewUDPDispatcher opens a UDP socket and starts the background read loop
// that delivers responses to pending sends.
func NewUDPDispatcher(hooks *Hooks) (*UDPDispatcher, error) {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, errors.Wrap(err, "dispatch: failed to open transport")
	}

	resolved := &Hooks{}
	if hooks != nil {
		*resolved = *hooks
	}
	_ = mergo.Merge(resolved, NoOpHooks)

	d := &UDPDispatcher{
		conn:    conn,
		hooks:   resolved,
		pending: make(map[int32]*pendingSend),
		closed:  make(chan struct{}),
	}
	go d.readLoop()
	return d, nil
}

// Close releases the underlying socket, failing any still-pending sends is
// the caller's responsibility - Close itself just stops the read loop.
func (d *UDPDispatcher) Close() error {
	close(d.closed)
	return d.conn.Close()
}

// SendPdu implements Dispatcher.
func (d *UDPDispatcher) SendPdu(tgt target.Info, pduVersion int, requestPDU *pdu.PDU, handler ResponseHandler, cbCtx interface{}) (int32, error) {
	id := uuid.New()
	d.hooks.SendStart(id, tgt, requestPDU)

	addr, err := net.ResolveUDPAddr("udp", tgt.TransportAddress)
	if err != nil {
		return 0, errors.Wrap(err, "dispatch: invalid target address")
	}

	env := pdu.Envelope{
		MPModel:         tgt.MPModel,
		Community:       tgt.SecurityName,
		SecurityModel:   tgt.SecurityModel,
		SecurityName:    tgt.SecurityName,
		ContextEngineID: tgt.ContextEngineID,
		ContextName:     tgt.ContextName,
	}

	wire, err := pdu.Encode(env, requestPDU)
	if err != nil {
		return 0, errors.Wrap(err, "dispatch: failed to encode request")
	}

	d.mu.Lock()
	d.nextHandle++
	if d.nextHandle <= 0 {
		d.nextHandle = 1
	}
	handle := d.nextHandle

	ps := &pendingSend{
		id: id, tgt: tgt, mpModel: tgt.MPModel, pduVersion: pduVersion,
		requestID: requestPDU.GetRequestID(), handler: handler, cbCtx: cbCtx,
	}
	ps.timer = time.AfterFunc(tgt.Timeout(), func() { d.onTimeout(handle) })
	d.pending[handle] = ps
	d.mu.Unlock()

	n, err := d.conn.WriteTo(wire, addr)
	d.hooks.SendDone(id, tgt, n, err)
	if err != nil {
		d.mu.Lock()
		delete(d.pending, handle)
		d.mu.Unlock()
		ps.timer.Stop()
		return 0, errors.Wrap(err, "dispatch: failed to write request")
	}

	return handle, nil
}

func (d *UDPDispatcher) onTimeout(handle int32) {
	d.mu.Lock()
	ps, ok := d.pending[handle]
	if ok {
		delete(d.pending, handle)
	}
	d.mu.Unlock()
	if !ok {
		return
	}
	d.hooks.Timeout(ps.id, ps.tgt)
	ps.handler(handle, pdu.Envelope{}, ps.pduVersion, nil, &StatusInformation{ErrorIndication: ErrTimeout}, ps.cbCtx)
}

// ErrTimeout is the ErrorIndication reported when a request's deadline
// expires with no response.
var ErrTimeout = errors.New("dispatch: request timed out")

func (d *UDPDispatcher) readLoop() {
	buf := make([]byte, 65535)
	for {
		n, from, err := d.conn.ReadFrom(buf)
		select {
		case <-d.closed:
			return
		default:
		}
		if err != nil {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		d.hooks.ResponseReceived(from, data)
		d.handleDatagram(data)
	}
}

func (d *UDPDispatcher) handleDatagram(data []byte) {
	// A response's own request-id is all we have to correlate it against a
	// pending send - scan the envelope generically first (v1/v2c framing and
	// v3 framing agree on mpModel's position well enough for this lookup: try
	// v1/v2c then fall back to v3).
	env, respPDU, err := pdu.Decode(0, data)
	if err != nil || !matchesAnyPending(d, respPDU) {
		env, respPDU, err = pdu.Decode(3, data)
		if err != nil {
			return
		}
	}

	d.mu.Lock()
	var handle int32
	var ps *pendingSend
	for h, p := range d.pending {
		if p.requestID == respPDU.GetRequestID() {
			handle, ps = h, p
			break
		}
	}
	if ps != nil {
		delete(d.pending, handle)
	}
	d.mu.Unlock()

	if ps == nil {
		return // No outstanding send matches this response; drop it.
	}
	ps.timer.Stop()
	ps.handler(handle, env, ps.pduVersion, respPDU, nil, ps.cbCtx)
}

func matchesAnyPending(d *UDPDispatcher, respPDU *pdu.PDU) bool {
	if respPDU == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pending {
		if p.requestID == respPDU.GetRequestID() {
			return true
		}
	}
	return false
}
