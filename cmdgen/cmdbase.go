// Package cmdgen implements the SNMP command-generator core: an
// asynchronous client-side state machine that issues Get/Set/GetNext/GetBulk
// requests, correlates responses back to the request that caused them,
// retries on dispatcher failure, and delivers results to an application
// callback.
//
// It sits above two collaborators it never reaches behind: a
// message-and-PDU dispatcher (package dispatch) that owns the network, and a
// target-configuration store (package target) that resolves a symbolic
// target name into transport/security parameters. Neither the PDU encoders
// nor the transport are this package's concern - see pdu and dispatch.
//
// CmdBase's pending table is guarded by a mutex: a response can arrive on
// the dispatcher's own goroutine concurrently with an application calling
// SendReq.
package cmdgen

import (
	"fmt"
	"sync"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"

	"github.com/coriolisnet/snmpgen/dispatch"
	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

// Option configures a CmdBase-derived driver at construction time.
type Option func(*config)

type config struct {
	hooks *Hooks
}

// WithHooks installs trace hooks on a driver. Unset fields are merged with
// NoOpHooks, so a caller only has to supply the events they care about.
func WithHooks(hooks *Hooks) Option {
	return func(c *config) { c.hooks = hooks }
}

// CmdBase is embedded by every concrete driver (GetDriver, SetDriver,
// WalkDriver, BulkWalkDriver). It owns the pending-request table, the
// dispatcher interaction, the retry policy and the response identity
// checks common to all of them; a driver supplies only the request it
// builds and how it interprets a validated response.
type CmdBase struct {
	dispatcher dispatch.Dispatcher
	store      target.Store
	hooks      *Hooks

	handles RequestHandleSource

	mu      sync.Mutex
	pending map[int32]*pendingRequest

	// onResponse and onFailure are set by the embedding driver's constructor
	// to its own methods, standing in for per-driver virtual dispatch.
	// onResponse handles a validated response; onFailure handles a terminal
	// (retries-exhausted) dispatcher error.
	onResponse func(pr *pendingRequest, respPDU *pdu.PDU)
	onFailure  func(pr *pendingRequest, err error)
}

func newCmdBase(dispatcher dispatch.Dispatcher, store target.Store, opts ...Option) *CmdBase {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.hooks == nil {
		cfg.hooks = &Hooks{}
	}
	_ = mergo.Merge(cfg.hooks, NoOpHooks)

	return &CmdBase{
		dispatcher: dispatcher,
		store:      store,
		hooks:      cfg.hooks,
		pending:    make(map[int32]*pendingRequest),
	}
}

// resolveTarget looks up a target by name and derives its PDU version - the
// one piece of synchronous, configuration-error-producing work every driver
// performs before it can build a request.
func (b *CmdBase) resolveTarget(name string) (target.Info, int, error) {
	tgt, err := b.store.GetTargetInfo(name)
	if err != nil {
		return target.Info{}, 0, errors.Wrap(err, "cmdgen: failed to resolve target")
	}
	pduVersion, err := versionSpecifics(tgt.MPModel)
	if err != nil {
		return target.Info{}, 0, err
	}
	return tgt, pduVersion, nil
}

// resolveContext returns tgt with its context engine ID/name overridden by
// ctxEngineID/ctxName when the caller supplied one, otherwise tgt unchanged -
// the per-call override every driver's SendReq accepts alongside the
// target's own resolved defaults.
func resolveContext(tgt target.Info, ctxEngineID []byte, ctxName string) target.Info {
	if ctxEngineID != nil {
		tgt.ContextEngineID = ctxEngineID
	}
	if ctxName != "" {
		tgt.ContextName = ctxName
	}
	return tgt
}

// dispatchRequest registers a pending request and hands reqPDU to the
// dispatcher. It is called both for a request's initial send and for each
// retry - retriesUsed already reflects this attempt, including the first.
func (b *CmdBase) dispatchRequest(appHandle int32, tgt target.Info, pduVersion int, reqPDU *pdu.PDU, retriesUsed int, appCallback, cbCtx interface{}) error {
	pr := &pendingRequest{
		appHandle:           appHandle,
		tgt:                 tgt,
		pduVersion:          pduVersion,
		origMPModel:         tgt.MPModel,
		origSecurityModel:   tgt.SecurityModel,
		origSecurityName:    tgt.SecurityName,
		origSecurityLevel:   tgt.SecurityLevel,
		origContextEngineID: tgt.ContextEngineID,
		origContextName:     tgt.ContextName,
		origPduVersion:      pduVersion,
		requestPDU:          reqPDU,
		retryLimit:          tgt.RetryLimit,
		retriesUsed:         retriesUsed,
		appCallback:         appCallback,
		cbCtx:               cbCtx,
	}

	sendHandle, err := b.dispatcher.SendPdu(tgt, pduVersion, reqPDU, b.processResponsePdu, nil)
	if err != nil {
		return errors.Wrap(err, "cmdgen: dispatcher rejected request")
	}

	b.mu.Lock()
	b.pending[sendHandle] = pr
	b.mu.Unlock()

	b.hooks.RequestSent(appHandle, tgt, reqPDU)
	return nil
}

// processResponsePdu is the dispatcher callback every driver shares. It
// looks up and removes the pending entry for sendHandle, handles dispatcher
// errors by retrying (or giving up), validates the response's identity and
// request-id, and - only once all of that passes - hands off to the owning
// driver's onResponse.
func (b *CmdBase) processResponsePdu(sendHandle int32, env pdu.Envelope, pduVersion int, respPDU *pdu.PDU, statusInfo *dispatch.StatusInformation, _ interface{}) {
	b.mu.Lock()
	pr, ok := b.pending[sendHandle]
	if ok {
		delete(b.pending, sendHandle)
	}
	b.mu.Unlock()

	if !ok {
		// A response (or timeout) for a handle we no longer recognise - it
		// was already completed, most likely a late response arriving after
		// this request's retries were exhausted. Dropped silently, per the
		// error taxonomy's "late response after exhaustion" case.
		b.hooks.Dropped(sendHandle, "unknown send handle")
		return
	}

	if statusInfo != nil && statusInfo.ErrorIndication != nil {
		b.handleDispatchError(sendHandle, pr, statusInfo.ErrorIndication)
		return
	}

	if !b.identityMatches(pr, env, pduVersion) {
		b.hooks.Dropped(sendHandle, "identity mismatch")
		return
	}

	if respPDU.GetRequestID() != pr.requestPDU.GetRequestID() {
		b.hooks.Dropped(sendHandle, "request-id mismatch")
		return
	}

	b.hooks.Completed(pr.appHandle, pr.tgt, nil)
	b.onResponse(pr, respPDU)
}

// identityMatches checks that a response's reported identity matches the
// request that supposedly caused it: mpModel, security model, security
// name, pdu version, and - conditionally - context engine ID/name.
//
// The security-name check compares pr.origSecurityName against the
// response's actual env.SecurityName, so a mismatched security name is
// caught rather than silently accepted.
//
// The context checks are intentionally asymmetric: a request issued against
// the default (empty) context accepts any response context, since an agent
// is free to answer from its default context however it likes; only a
// request that explicitly named a context engine ID or context name demands
// the response echo it back.
func (b *CmdBase) identityMatches(pr *pendingRequest, env pdu.Envelope, pduVersion int) bool {
	if pr.origMPModel != env.MPModel {
		return false
	}
	if pr.origSecurityModel != env.SecurityModel {
		return false
	}
	if pr.origSecurityName != env.SecurityName {
		return false
	}
	if len(pr.origContextEngineID) > 0 && string(pr.origContextEngineID) != string(env.ContextEngineID) {
		return false
	}
	if pr.origContextName != "" && pr.origContextName != env.ContextName {
		return false
	}
	if pr.origPduVersion != pduVersion {
		return false
	}
	return true
}

// handleDispatchError implements the retry policy: a request is resent, with
// the same pending-table bookkeeping as its initial send, until retriesUsed
// exceeds retryLimit - not until it equals it, since retriesUsed already
// counts the attempt that just failed (including the very first send). Once
// exhausted, the dispatcher's error is delivered to the application via
// onFailure.
func (b *CmdBase) handleDispatchError(sendHandle int32, pr *pendingRequest, cause error) {
	if pr.retriesUsed > pr.retryLimit {
		// Both errors must be reachable via errors.Is, so cause (often a
		// sentinel of its own, e.g. dispatch.ErrTimeout) is chained alongside
		// ErrRetriesExhausted rather than folded into its message text.
		wrapped := fmt.Errorf("%w: %w", ErrRetriesExhausted, cause)
		b.hooks.Completed(pr.appHandle, pr.tgt, wrapped)
		b.onFailure(pr, wrapped)
		return
	}

	b.hooks.Retry(pr.appHandle, pr.tgt, pr.retriesUsed+1, cause)

	err := b.dispatchRequest(pr.appHandle, pr.tgt, pr.pduVersion, pr.requestPDU, pr.retriesUsed+1, pr.appCallback, pr.cbCtx)
	if err != nil {
		b.hooks.Completed(pr.appHandle, pr.tgt, err)
		b.onFailure(pr, err)
	}
}

// PendingCount returns the number of requests currently awaiting a response
// or retry. Exposed chiefly for tests asserting the pending table drains
// back to empty once every request has completed.
func (b *CmdBase) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
