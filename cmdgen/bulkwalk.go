package cmdgen

import (
	"github.com/coriolisnet/snmpgen/dispatch"
	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

// BulkWalkDriver issues a chain of GetBulkRequest PDUs to enumerate every
// variable below one or more root OIDs in larger batches than WalkDriver's
// one-row-at-a-time GetNextRequest.
type BulkWalkDriver struct {
	*CmdBase
}

// NewBulkWalkDriver constructs a BulkWalkDriver over the supplied dispatcher
// and target store.
func NewBulkWalkDriver(dispatcher dispatch.Dispatcher, store target.Store, opts ...Option) *BulkWalkDriver {
	b := &BulkWalkDriver{CmdBase: newCmdBase(dispatcher, store, opts...)}
	b.onResponse = b.handleResponse
	b.onFailure = b.handleFailure
	return b
}

// SendReq starts a bulk walk over varBinds's columns against targetName,
// asking for up to nonRepeaters non-repeating columns followed by
// maxRepetitions repeating rows per round. ctxEngineID and ctxName override
// the target's resolved context for this request only; pass nil and "" to
// use the target's own defaults.
//
// GetBulkRequest is not defined for SNMPv1 (RFC 1905 s.4.2.3 is a v2c/v3
// addition); against a v1 target this returns ErrUnsupportedOperation
// synchronously rather than attempting a request an SNMPv1 agent cannot
// parse.
func (d *BulkWalkDriver) SendReq(targetName string, nonRepeaters, maxRepetitions int, varBinds []string, cb WalkCallback, cbCtx interface{}, ctxEngineID []byte, ctxName string) (appHandle int32, err error) {
	tgt, pduVersion, err := d.resolveTarget(targetName)
	if err != nil {
		return 0, err
	}
	if tgt.MPModel == 0 {
		return 0, ErrUnsupportedOperation
	}
	tgt = resolveContext(tgt, ctxEngineID, ctxName)

	appHandle = d.handles.Next()
	// Non-repeaters and max-repetitions are set as part of construction,
	// ahead of anything else touching the PDU - see pdu.NewGetBulkRequest.
	reqPDU := pdu.NewGetBulkRequest(varBinds, nonRepeaters, maxRepetitions)
	reqPDU.SetRequestID(appHandle)

	columns := make([]string, len(varBinds))
	copy(columns, varBinds)
	state := &walkState{columns: columns, cb: cb, cbCtx: cbCtx, nonRepeaters: nonRepeaters, maxRepetitions: maxRepetitions}
	if err := d.dispatchRequest(appHandle, tgt, pduVersion, reqPDU, 1, state, nil); err != nil {
		return 0, err
	}
	return appHandle, nil
}

func (d *BulkWalkDriver) handleResponse(pr *pendingRequest, respPDU *pdu.PDU) {
	state := pr.appCallback.(*walkState)
	table := pdu.GetVarBindTable(pr.requestPDU, respPDU)

	trimmed := make([][]pdu.Varbind, 0, len(table))
	stop := false
	for _, row := range table {
		if allColumnsDone(row, state.columns) {
			stop = true
			break
		}
		trimmed = append(trimmed, row)
	}

	cont := true
	flat := flattenRows(trimmed)
	if len(trimmed) > 0 {
		cont = state.cb(pr.appHandle, nil, respPDU.GetErrorStatus(), respPDU.GetErrorIndex(), flat, state.cbCtx)
	}

	if stop || !cont || len(trimmed) == 0 {
		return
	}

	last := trimmed[len(trimmed)-1]
	nextHandle := d.handles.Next()
	nextPDU := pdu.NewGetBulkRequest(rowOIDs(last), state.nonRepeaters, state.maxRepetitions)
	nextPDU.SetRequestID(nextHandle)

	if err := d.dispatchRequest(nextHandle, pr.tgt, pr.pduVersion, nextPDU, 1, state, nil); err != nil {
		state.cb(nextHandle, err, 0, 0, nil, state.cbCtx)
	}
}

func (d *BulkWalkDriver) handleFailure(pr *pendingRequest, err error) {
	state := pr.appCallback.(*walkState)
	state.cb(pr.appHandle, err, 0, 0, nil, state.cbCtx)
}

// flattenRows concatenates a table's rows into the flat varbind slice handed
// to the application callback, preserving row-major, then column, order.
func flattenRows(table [][]pdu.Varbind) []pdu.Varbind {
	flat := make([]pdu.Varbind, 0, len(table))
	for _, row := range table {
		flat = append(flat, row...)
	}
	return flat
}
