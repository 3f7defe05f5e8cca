package cmdgen

import (
	"github.com/coriolisnet/snmpgen/dispatch"
	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

// SetCallback is invoked at most once with the outcome of a Set request. See
// GetCallback for how dropped responses, dispatcher failures and responder
// errors are reported.
type SetCallback func(appHandle int32, errorIndication error, errorStatus, errorIndex int, varBinds []pdu.Varbind, cbCtx interface{})

// SetDriver issues single-shot SetRequest PDUs.
type SetDriver struct {
	*CmdBase
}

// NewSetDriver constructs a SetDriver over the supplied dispatcher and
// target store.
func NewSetDriver(dispatcher dispatch.Dispatcher, store target.Store, opts ...Option) *SetDriver {
	s := &SetDriver{CmdBase: newCmdBase(dispatcher, store, opts...)}
	s.onResponse = s.handleResponse
	s.onFailure = s.handleFailure
	return s
}

// SendReq issues a SetRequest carrying varBinds (each of which must have a
// non-nil Value) against targetName. ctxEngineID and ctxName override the
// target's resolved context for this request only; pass nil and "" to use
// the target's own defaults.
func (s *SetDriver) SendReq(targetName string, varBinds []pdu.Varbind, cb SetCallback, cbCtx interface{}, ctxEngineID []byte, ctxName string) (appHandle int32, err error) {
	tgt, pduVersion, err := s.resolveTarget(targetName)
	if err != nil {
		return 0, err
	}
	tgt = resolveContext(tgt, ctxEngineID, ctxName)

	appHandle = s.handles.Next()
	reqPDU := pdu.NewSetRequest(varBinds)
	reqPDU.SetRequestID(appHandle)

	if err := s.dispatchRequest(appHandle, tgt, pduVersion, reqPDU, 1, cb, cbCtx); err != nil {
		return 0, err
	}
	return appHandle, nil
}

func (s *SetDriver) handleResponse(pr *pendingRequest, respPDU *pdu.PDU) {
	cb := pr.appCallback.(SetCallback)
	cb(pr.appHandle, nil, respPDU.GetErrorStatus(), respPDU.GetErrorIndex(), respPDU.GetVarBinds(), pr.cbCtx)
}

func (s *SetDriver) handleFailure(pr *pendingRequest, err error) {
	cb := pr.appCallback.(SetCallback)
	cb(pr.appHandle, err, 0, 0, nil, pr.cbCtx)
}
