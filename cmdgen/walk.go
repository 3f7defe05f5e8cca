package cmdgen

import (
	"github.com/coriolisnet/snmpgen/dispatch"
	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

// WalkCallback is invoked once per round of a walk, with the variable
// bindings an agent returned for that GetNextRequest. Returning false stops
// the walk early; the walk also stops on its own once every column's last
// returned OID falls outside its requested subtree or reports endOfMibView.
type WalkCallback func(appHandle int32, errorIndication error, errorStatus, errorIndex int, varBinds []pdu.Varbind, cbCtx interface{}) (cont bool)

// WalkDriver issues a chain of GetNextRequest PDUs to enumerate every
// variable below one or more root OIDs. Each round's continuation is a newly
// built GetNextRequest seeded with the OIDs of the prior round's final row
// and sent under a fresh application handle.
type WalkDriver struct {
	*CmdBase
}

// walkState threads the information a walk's continuation needs between
// rounds - the root OID of each requested column and the application's
// callback - alongside the generic pendingRequest bookkeeping CmdBase
// already provides.
type walkState struct {
	columns []string
	cb      WalkCallback
	cbCtx   interface{}

	// maxRepetitions is non-zero only for a BulkWalkDriver chain, where each
	// round's continuation request needs to restate it, along with
	// nonRepeaters.
	nonRepeaters   int
	maxRepetitions int
}

// NewWalkDriver constructs a WalkDriver over the supplied dispatcher and
// target store.
func NewWalkDriver(dispatcher dispatch.Dispatcher, store target.Store, opts ...Option) *WalkDriver {
	w := &WalkDriver{CmdBase: newCmdBase(dispatcher, store, opts...)}
	w.onResponse = w.handleResponse
	w.onFailure = w.handleFailure
	return w
}

// SendReq starts a walk over varBinds's columns against targetName.
// ctxEngineID and ctxName override the target's resolved context for this
// request only; pass nil and "" to use the target's own defaults.
func (w *WalkDriver) SendReq(targetName string, varBinds []string, cb WalkCallback, cbCtx interface{}, ctxEngineID []byte, ctxName string) (appHandle int32, err error) {
	tgt, pduVersion, err := w.resolveTarget(targetName)
	if err != nil {
		return 0, err
	}
	tgt = resolveContext(tgt, ctxEngineID, ctxName)

	appHandle = w.handles.Next()
	reqPDU := pdu.NewGetNextRequest(varBinds)
	reqPDU.SetRequestID(appHandle)

	columns := make([]string, len(varBinds))
	copy(columns, varBinds)
	state := &walkState{columns: columns, cb: cb, cbCtx: cbCtx}
	if err := w.dispatchRequest(appHandle, tgt, pduVersion, reqPDU, 1, state, nil); err != nil {
		return 0, err
	}
	return appHandle, nil
}

func (w *WalkDriver) handleResponse(pr *pendingRequest, respPDU *pdu.PDU) {
	state := pr.appCallback.(*walkState)
	table := pdu.GetVarBindTable(pr.requestPDU, respPDU)
	varBinds := flattenLastRow(table)

	cont := state.cb(pr.appHandle, nil, respPDU.GetErrorStatus(), respPDU.GetErrorIndex(), varBinds, state.cbCtx)
	if !cont || len(table) == 0 {
		return
	}

	last := table[len(table)-1]
	if allColumnsDone(last, state.columns) {
		return
	}

	nextHandle := w.handles.Next()
	nextPDU := pdu.NewGetNextRequest(rowOIDs(last))
	nextPDU.SetRequestID(nextHandle)

	if err := w.dispatchRequest(nextHandle, pr.tgt, pr.pduVersion, nextPDU, 1, state, nil); err != nil {
		state.cb(nextHandle, err, 0, 0, nil, state.cbCtx)
	}
}

func (w *WalkDriver) handleFailure(pr *pendingRequest, err error) {
	state := pr.appCallback.(*walkState)
	state.cb(pr.appHandle, err, 0, 0, nil, state.cbCtx)
}

// flattenLastRow returns the single row of a GetNextRequest's table (the only
// row it ever has) as the flat varbind slice the application callback
// expects, or nil if the response carried no aligned row at all.
func flattenLastRow(table [][]pdu.Varbind) []pdu.Varbind {
	if len(table) == 0 {
		return nil
	}
	return table[len(table)-1]
}

// allColumnsDone reports whether every OID in row has left its corresponding
// requested subtree (columns, in the same order) or reports end-of-MIB -
// the condition under which a walk stops advancing entirely.
func allColumnsDone(row []pdu.Varbind, columns []string) bool {
	for i, vb := range row {
		root := ""
		if i < len(columns) {
			root = columns[i]
		}
		if !vb.Value.IsEndOfMib() && pdu.IsDescendantOf(vb.OID, root) {
			return false
		}
	}
	return true
}

// rowOIDs extracts the dotted-decimal OID of each varbind in row, in column
// order, to seed the next round's continuation request.
func rowOIDs(row []pdu.Varbind) []string {
	oids := make([]string, len(row))
	for i, vb := range row {
		oids[i] = vb.OID.String()
	}
	return oids
}
