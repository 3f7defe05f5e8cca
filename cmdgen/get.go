package cmdgen

import (
	"github.com/coriolisnet/snmpgen/dispatch"
	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

// GetCallback is invoked at most once with the outcome of a Get request; a
// response dropped by CmdBase's identity or request-id checks ends the
// request without invoking it. errorIndication is non-nil only for a dispatcher/transport failure
// (including exhausted retries); a responder-reported error is instead
// surfaced via errorStatus/errorIndex, per RFC 1905 s.4.2.1 - both arrive
// through this one callback rather than two.
type GetCallback func(appHandle int32, errorIndication error, errorStatus, errorIndex int, varBinds []pdu.Varbind, cbCtx interface{})

// GetDriver issues single-shot GetRequest PDUs.
type GetDriver struct {
	*CmdBase
}

// NewGetDriver constructs a GetDriver over the supplied dispatcher and
// target store.
func NewGetDriver(dispatcher dispatch.Dispatcher, store target.Store, opts ...Option) *GetDriver {
	g := &GetDriver{CmdBase: newCmdBase(dispatcher, store, opts...)}
	g.onResponse = g.handleResponse
	g.onFailure = g.handleFailure
	return g
}

// SendReq issues a GetRequest for varBindNames against targetName. ctxEngineID
// and ctxName override the target's resolved context for this request only;
// pass nil and "" to use the target's own defaults. SendReq returns an error
// synchronously only on a configuration error (unknown target, unsupported
// message processing model) or when the dispatcher rejects the initial send;
// everything else - success, responder error, or dispatcher failure after
// retries - is delivered to cb.
func (g *GetDriver) SendReq(targetName string, varBindNames []string, cb GetCallback, cbCtx interface{}, ctxEngineID []byte, ctxName string) (appHandle int32, err error) {
	tgt, pduVersion, err := g.resolveTarget(targetName)
	if err != nil {
		return 0, err
	}
	tgt = resolveContext(tgt, ctxEngineID, ctxName)

	appHandle = g.handles.Next()
	reqPDU := pdu.NewGetRequest(varBindNames)
	reqPDU.SetRequestID(appHandle)

	if err := g.dispatchRequest(appHandle, tgt, pduVersion, reqPDU, 1, cb, cbCtx); err != nil {
		return 0, err
	}
	return appHandle, nil
}

func (g *GetDriver) handleResponse(pr *pendingRequest, respPDU *pdu.PDU) {
	cb := pr.appCallback.(GetCallback)
	cb(pr.appHandle, nil, respPDU.GetErrorStatus(), respPDU.GetErrorIndex(), respPDU.GetVarBinds(), pr.cbCtx)
}

func (g *GetDriver) handleFailure(pr *pendingRequest, err error) {
	cb := pr.appCallback.(GetCallback)
	cb(pr.appHandle, err, 0, 0, nil, pr.cbCtx)
}
