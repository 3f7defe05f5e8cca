package cmdgen_test

import (
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coriolisnet/snmpgen/cmdgen"
	"github.com/coriolisnet/snmpgen/dispatch"
	"github.com/coriolisnet/snmpgen/cmdgen/mocks"
	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

func testTarget(retryLimit int) target.Info {
	return target.Info{
		Name:             "device1",
		TransportAddress: "198.51.100.1:161",
		TimeoutCentisec:  500,
		RetryLimit:       retryLimit,
		MPModel:          1,
		SecurityModel:    2,
		SecurityName:     "public",
		SecurityLevel:    "noAuthNoPriv",
	}
}

func storeWith(info target.Info) *target.Registry {
	r := target.NewRegistry()
	r.Add(info)
	return r
}

// TestGetSuccess covers the Get-success scenario: a single request, a
// well-formed response, and an empty pending table afterwards.
func TestGetSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	disp := mocks.NewMockDispatcher(ctrl)
	store := storeWith(testTarget(2))

	var handler dispatch.ResponseHandler
	disp.EXPECT().SendPdu(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(tgt target.Info, pduVersion int, req *pdu.PDU, h dispatch.ResponseHandler, cbCtx interface{}) (int32, error) {
			handler = h
			return 1, nil
		})

	g := cmdgen.NewGetDriver(disp, store)

	var gotErrorIndication error
	var gotVarBinds []pdu.Varbind
	called := false
	appHandle, err := g.SendReq("device1", []string{"1.3.6.1.2.1.1.1.0"}, func(h int32, ei error, es, eidx int, vbs []pdu.Varbind, ctx interface{}) {
		called = true
		gotErrorIndication = ei
		gotVarBinds = vbs
	}, nil, nil, "")
	require.NoError(t, err)

	respPDU := pdu.NewGetResponse(appHandle, 0, 0, []pdu.Varbind{{OID: pdu.ParseOID("1.3.6.1.2.1.1.1.0"), Value: &pdu.TypedValue{Type: pdu.OctetString, Value: []byte("sysDescr")}}})
	handler(1, pdu.Envelope{MPModel: 1, SecurityModel: 2, SecurityName: "public"}, 1, respPDU, nil, nil)

	assert.True(t, called)
	assert.NoError(t, gotErrorIndication)
	assert.Len(t, gotVarBinds, 1)
	assert.Equal(t, 0, g.PendingCount())
}

// TestGetRetryThenSuccess covers a timeout followed by a successful retry -
// the request-id on the retried PDU matches the original.
func TestGetRetryThenSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	disp := mocks.NewMockDispatcher(ctrl)
	store := storeWith(testTarget(2))

	var handlers []dispatch.ResponseHandler
	var requestIDs []int32
	call := disp.EXPECT().SendPdu(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(tgt target.Info, pduVersion int, req *pdu.PDU, h dispatch.ResponseHandler, cbCtx interface{}) (int32, error) {
			handlers = append(handlers, h)
			requestIDs = append(requestIDs, req.GetRequestID())
			return int32(len(handlers)), nil
		}).Times(2)
	_ = call

	g := cmdgen.NewGetDriver(disp, store)

	var gotErrorIndication error
	appHandle, err := g.SendReq("device1", []string{"1.3.6.1.2.1.1.1.0"}, func(h int32, ei error, es, eidx int, vbs []pdu.Varbind, ctx interface{}) {
		gotErrorIndication = ei
	}, nil, nil, "")
	require.NoError(t, err)
	require.Len(t, handlers, 1)

	// First attempt times out.
	handlers[0](1, pdu.Envelope{}, 1, nil, &dispatch.StatusInformation{ErrorIndication: dispatch.ErrTimeout}, nil)
	require.Len(t, handlers, 2, "a retry must have been issued")
	assert.Equal(t, requestIDs[0], requestIDs[1], "a retry reuses the original request-id")

	// Retry succeeds.
	respPDU := pdu.NewGetResponse(appHandle, 0, 0, nil)
	handlers[1](2, pdu.Envelope{MPModel: 1, SecurityModel: 2, SecurityName: "public"}, 1, respPDU, nil, nil)

	assert.NoError(t, gotErrorIndication)
	assert.Equal(t, 0, g.PendingCount())
}

// TestGetRetryExhaustion covers retries being exhausted: with retryLimit 1,
// exactly two sends occur (the original plus one retry) before the
// dispatcher error is delivered to the application.
func TestGetRetryExhaustion(t *testing.T) {
	ctrl := gomock.NewController(t)
	disp := mocks.NewMockDispatcher(ctrl)
	store := storeWith(testTarget(1))

	var handlers []dispatch.ResponseHandler
	disp.EXPECT().SendPdu(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(tgt target.Info, pduVersion int, req *pdu.PDU, h dispatch.ResponseHandler, cbCtx interface{}) (int32, error) {
			handlers = append(handlers, h)
			return int32(len(handlers)), nil
		}).Times(2)

	g := cmdgen.NewGetDriver(disp, store)

	var gotErrorIndication error
	_, err := g.SendReq("device1", []string{"1.3.6.1.2.1.1.1.0"}, func(h int32, ei error, es, eidx int, vbs []pdu.Varbind, ctx interface{}) {
		gotErrorIndication = ei
	}, nil, nil, "")
	require.NoError(t, err)

	handlers[0](1, pdu.Envelope{}, 1, nil, &dispatch.StatusInformation{ErrorIndication: dispatch.ErrTimeout}, nil)
	require.Len(t, handlers, 2)
	handlers[1](2, pdu.Envelope{}, 1, nil, &dispatch.StatusInformation{ErrorIndication: dispatch.ErrTimeout}, nil)

	assert.Error(t, gotErrorIndication)
	assert.ErrorIs(t, gotErrorIndication, cmdgen.ErrRetriesExhausted)
	assert.Equal(t, 0, g.PendingCount())
}

// TestIdentityMismatchDropsResponse covers a response whose reported
// identity does not match the request: it must be dropped silently, not
// delivered to the application callback.
func TestIdentityMismatchDropsResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	disp := mocks.NewMockDispatcher(ctrl)
	store := storeWith(testTarget(2))

	var handler dispatch.ResponseHandler
	disp.EXPECT().SendPdu(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(tgt target.Info, pduVersion int, req *pdu.PDU, h dispatch.ResponseHandler, cbCtx interface{}) (int32, error) {
			handler = h
			return 1, nil
		})

	g := cmdgen.NewGetDriver(disp, store)

	called := false
	appHandle, err := g.SendReq("device1", []string{"1.3.6.1.2.1.1.1.0"}, func(h int32, ei error, es, eidx int, vbs []pdu.Varbind, ctx interface{}) {
		called = true
	}, nil, nil, "")
	require.NoError(t, err)

	respPDU := pdu.NewGetResponse(appHandle, 0, 0, nil)
	// securityName differs from the request's ("public" vs "other") - the
	// response must be dropped, not delivered.
	handler(1, pdu.Envelope{MPModel: 1, SecurityModel: 2, SecurityName: "other"}, 1, respPDU, nil, nil)

	assert.False(t, called, "a response with a mismatched identity must be dropped")
	assert.Equal(t, 0, g.PendingCount(), "the pending entry is still removed even though the response is dropped")
}

// TestRequestIDMismatchDropsResponse covers a response that correlates to a
// pending send handle but carries the wrong request-id: also dropped.
func TestRequestIDMismatchDropsResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	disp := mocks.NewMockDispatcher(ctrl)
	store := storeWith(testTarget(2))

	var handler dispatch.ResponseHandler
	disp.EXPECT().SendPdu(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(tgt target.Info, pduVersion int, req *pdu.PDU, h dispatch.ResponseHandler, cbCtx interface{}) (int32, error) {
			handler = h
			return 1, nil
		})

	g := cmdgen.NewGetDriver(disp, store)

	called := false
	_, err := g.SendReq("device1", []string{"1.3.6.1.2.1.1.1.0"}, func(h int32, ei error, es, eidx int, vbs []pdu.Varbind, ctx interface{}) {
		called = true
	}, nil, nil, "")
	require.NoError(t, err)

	respPDU := pdu.NewGetResponse(999999, 0, 0, nil)
	handler(1, pdu.Envelope{MPModel: 1, SecurityModel: 2, SecurityName: "public"}, 1, respPDU, nil, nil)

	assert.False(t, called)
	assert.Equal(t, 0, g.PendingCount())
}

// TestWalkTwoRounds covers a walk that takes two rounds to run off the end
// of the requested subtree, with a fresh application handle issued for the
// continuation request.
func TestWalkTwoRounds(t *testing.T) {
	ctrl := gomock.NewController(t)
	disp := mocks.NewMockDispatcher(ctrl)
	store := storeWith(testTarget(2))

	var handlers []dispatch.ResponseHandler
	disp.EXPECT().SendPdu(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(tgt target.Info, pduVersion int, req *pdu.PDU, h dispatch.ResponseHandler, cbCtx interface{}) (int32, error) {
			handlers = append(handlers, h)
			return int32(len(handlers)), nil
		}).Times(2)

	w := cmdgen.NewWalkDriver(disp, store)

	var rounds [][]pdu.Varbind
	var appHandles []int32
	firstHandle, err := w.SendReq("device1", []string{"1.3.6.1.2.1.1"}, func(h int32, ei error, es, eidx int, vbs []pdu.Varbind, ctx interface{}) bool {
		rounds = append(rounds, vbs)
		appHandles = append(appHandles, h)
		return true
	}, nil, nil, "")
	require.NoError(t, err)
	require.Len(t, handlers, 1)

	round1 := pdu.NewGetResponse(firstHandle, 0, 0, []pdu.Varbind{
		{OID: pdu.ParseOID("1.3.6.1.2.1.1.1.0"), Value: &pdu.TypedValue{Type: pdu.OctetString, Value: []byte("sysDescr")}},
	})
	handlers[0](1, pdu.Envelope{MPModel: 1, SecurityModel: 2, SecurityName: "public"}, 1, round1, nil, nil)

	require.Len(t, handlers, 2, "an in-subtree result must trigger a continuation request")

	// Second round returns an OID outside the root - the walk must stop. The
	// continuation request carries the fresh handle 2 as its request-id.
	round2 := pdu.NewGetResponse(2, 0, 0, []pdu.Varbind{
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.1.0"), Value: &pdu.TypedValue{Type: pdu.Integer, Value: int64(1)}},
	})
	handlers[1](2, pdu.Envelope{MPModel: 1, SecurityModel: 2, SecurityName: "public"}, 1, round2, nil, nil)

	assert.Len(t, rounds, 2)
	assert.NotEqual(t, appHandles[0], appHandles[1], "the continuation request must use a fresh application handle")
	assert.Equal(t, 0, w.PendingCount())
}

// TestWalkMultiColumnContinuesUntilEveryColumnIsDone covers a two-column walk
// where one column runs off its subtree before the other: the walk must keep
// advancing (re-querying the finished column) until both columns are done.
func TestWalkMultiColumnContinuesUntilEveryColumnIsDone(t *testing.T) {
	ctrl := gomock.NewController(t)
	disp := mocks.NewMockDispatcher(ctrl)
	store := storeWith(testTarget(2))

	var handlers []dispatch.ResponseHandler
	disp.EXPECT().SendPdu(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(tgt target.Info, pduVersion int, req *pdu.PDU, h dispatch.ResponseHandler, cbCtx interface{}) (int32, error) {
			handlers = append(handlers, h)
			return int32(len(handlers)), nil
		}).Times(2)

	w := cmdgen.NewWalkDriver(disp, store)

	var rounds [][]pdu.Varbind
	firstHandle, err := w.SendReq("device1", []string{"1.3.6.1.2.1.2.2.1.1", "1.3.6.1.2.1.2.2.1.2"}, func(h int32, ei error, es, eidx int, vbs []pdu.Varbind, ctx interface{}) bool {
		rounds = append(rounds, vbs)
		return true
	}, nil, nil, "")
	require.NoError(t, err)
	require.Len(t, handlers, 1)

	// Round one: ifIndex.1 still in its column, ifDescr already past its
	// column - only one of the two columns is done.
	round1 := pdu.NewGetResponse(firstHandle, 0, 0, []pdu.Varbind{
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.2.1.1.1"), Value: &pdu.TypedValue{Type: pdu.Integer, Value: int64(1)}},
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.2.1.3.1"), Value: &pdu.TypedValue{Type: pdu.Integer, Value: int64(6)}},
	})
	handlers[0](1, pdu.Envelope{MPModel: 1, SecurityModel: 2, SecurityName: "public"}, 1, round1, nil, nil)

	require.Len(t, handlers, 2, "the walk continues while at least one column is still in its subtree")

	// Round two: both columns have left their subtrees.
	round2 := pdu.NewGetResponse(2, 0, 0, []pdu.Varbind{
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.3.1.1.1"), Value: &pdu.TypedValue{Type: pdu.Integer, Value: int64(1)}},
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.3.1.1.1"), Value: &pdu.TypedValue{Type: pdu.Integer, Value: int64(1)}},
	})
	handlers[1](2, pdu.Envelope{MPModel: 1, SecurityModel: 2, SecurityName: "public"}, 1, round2, nil, nil)

	require.Len(t, rounds, 2)
	assert.Len(t, rounds[0], 2, "each round's callback sees one row of both columns")
	assert.Len(t, handlers, 2, "no third request is issued once every column is done")
	assert.Equal(t, 0, w.PendingCount())
}

// TestBulkWalkMultiColumnDropsTrailingDoneRow covers a two-column bulk walk
// whose response carries three rows, the last of which has already left
// both columns' subtrees - that row must be excluded from the callback and
// from the continuation request, and the walk must not issue a further
// round.
func TestBulkWalkMultiColumnDropsTrailingDoneRow(t *testing.T) {
	ctrl := gomock.NewController(t)
	disp := mocks.NewMockDispatcher(ctrl)
	store := storeWith(testTarget(2))

	var handler dispatch.ResponseHandler
	var gotNonRepeaters int
	var gotMaxRepetitions int
	// A single expectation: if the trailing done row wrongly seeds a
	// continuation request, the second SendPdu call has no matching
	// expectation and gomock fails the test.
	disp.EXPECT().SendPdu(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(tgt target.Info, pduVersion int, req *pdu.PDU, h dispatch.ResponseHandler, cbCtx interface{}) (int32, error) {
			handler = h
			gotNonRepeaters = req.NonRepeaters
			gotMaxRepetitions = req.MaxRepetitions
			return 1, nil
		})

	d := cmdgen.NewBulkWalkDriver(disp, store)

	var gotVarBinds []pdu.Varbind
	firstHandle, err := d.SendReq("device1", 0, 2, []string{"1.3.6.1.2.1.2.2.1.1", "1.3.6.1.2.1.2.2.1.2"}, func(h int32, ei error, es, eidx int, vbs []pdu.Varbind, ctx interface{}) bool {
		gotVarBinds = vbs
		return true
	}, nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, gotNonRepeaters)
	assert.Equal(t, 2, gotMaxRepetitions)

	respPDU := pdu.NewGetResponse(firstHandle, 0, 0, []pdu.Varbind{
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.2.1.1.1"), Value: &pdu.TypedValue{Type: pdu.Integer, Value: int64(1)}},
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.2.1.2.1"), Value: &pdu.TypedValue{Type: pdu.OctetString, Value: []byte("lo")}},
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.2.1.1.2"), Value: &pdu.TypedValue{Type: pdu.Integer, Value: int64(2)}},
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.2.1.2.2"), Value: &pdu.TypedValue{Type: pdu.OctetString, Value: []byte("eth0")}},
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.3.1.1.1"), Value: &pdu.TypedValue{Type: pdu.Integer, Value: int64(1)}},
		{OID: pdu.ParseOID("1.3.6.1.2.1.2.3.1.1.1"), Value: &pdu.TypedValue{Type: pdu.Integer, Value: int64(1)}},
	})
	handler(1, pdu.Envelope{MPModel: 1, SecurityModel: 2, SecurityName: "public"}, 1, respPDU, nil, nil)

	require.Len(t, gotVarBinds, 4, "only the two complete, not-yet-done rows are delivered")
	assert.Equal(t, "1.3.6.1.2.1.2.2.1.1.1", gotVarBinds[0].OID.String())
	assert.Equal(t, "1.3.6.1.2.1.2.2.1.1.2", gotVarBinds[2].OID.String())
	assert.Equal(t, 0, d.PendingCount())
}

// TestBulkWalkUnsupportedOnV1 covers GetBulk being rejected synchronously
// against an SNMPv1 target, without ever reaching the dispatcher.
func TestBulkWalkUnsupportedOnV1(t *testing.T) {
	ctrl := gomock.NewController(t)
	disp := mocks.NewMockDispatcher(ctrl) // no SendPdu expectation set: any call fails the test.
	tgt := testTarget(2)
	tgt.MPModel = 0
	store := storeWith(tgt)

	d := cmdgen.NewBulkWalkDriver(disp, store)
	_, err := d.SendReq("device1", 0, 10, []string{"1.3.6.1.2.1.1"}, func(int32, error, int, int, []pdu.Varbind, interface{}) bool { return true }, nil, nil, "")
	assert.ErrorIs(t, err, cmdgen.ErrUnsupportedOperation)
}

// TestRequestHandleSourceStartsAtOneAndIncrements covers a fresh
// application-handle counter handing out 1, 2, 3, ... (never 0).
func TestRequestHandleSourceStartsAtOneAndIncrements(t *testing.T) {
	src := &cmdgen.RequestHandleSource{}
	for i := 0; i < 5; i++ {
		assert.Equal(t, int32(i+1), src.Next())
	}
}
