package cmdgen

import "github.com/pkg/errors"

// Sentinel errors matching the error taxonomy: configuration errors are
// returned synchronously from SendReq, as is a dispatcher rejection of a
// request's initial send; later dispatcher errors (including timeouts) are
// reported asynchronously to the application callback after retries are
// exhausted; unsupported-operation errors are synchronous.
var (
	// ErrUnsupportedOperation is returned synchronously when a driver is
	// asked to perform an operation its target's protocol version does not
	// support - GetBulk against an SNMPv1 target, for example.
	ErrUnsupportedOperation = errors.New("cmdgen: operation not supported for target's SNMP version")

	// ErrRetriesExhausted wraps the dispatcher's last-reported error once a
	// request has been retried retryLimit times with no success.
	ErrRetriesExhausted = errors.New("cmdgen: retries exhausted")
)

// versionSpecifics resolves a target's message processing model to the PDU
// syntax version used to build requests for it: SNMPv1 gets its own PDU
// version (0); both v2c and v3 share PDU version 1, since v3 only changes
// the message wrapper, not the PDU contents.
func versionSpecifics(mpModel int) (pduVersion int, err error) {
	switch mpModel {
	case 0:
		return 0, nil
	case 1, 3:
		return 1, nil
	default:
		return 0, errors.Errorf("cmdgen: unsupported message processing model %d", mpModel)
	}
}
