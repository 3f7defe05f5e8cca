// Package usm implements the key-derivation half of the User-based Security
// Model (RFC 3414) used by SNMPv3: turning a user's passphrase into the
// localized authentication/privacy keys a v3 target expects.
//
// None of the repositories this module is grounded on carry an RFC 3414
// implementation, and no suitable third-party library for it surfaced either
// - this is the one package in the module built directly on the standard
// library's crypto primitives rather than an imported dependency; see
// DESIGN.md for the justification. Wire-level authentication/privacy
// (HMAC-signing and encrypting an outgoing message) is intentionally out of
// scope, matching the pdu package's v3Packet, which frames a simplified v3
// envelope rather than a wire-compatible one.
package usm

import (
	"crypto/hmac"
	"crypto/md5"  //nolint:gosec // RFC 3414 mandates MD5/SHA1 for key localization, not used for security here.
	"crypto/sha1" //nolint:gosec
	"fmt"
	"hash"
)

// AuthProtocol identifies the hash algorithm used for authentication key
// localization, per RFC 3414 s.2.6.
type AuthProtocol int

const (
	NoAuth AuthProtocol = iota
	MD5
	SHA1
)

// SecurityLevel is the v3 msgSecurityLevel, combining authentication and
// privacy requirements (RFC 3414 s.1.4).
type SecurityLevel int

const (
	NoAuthNoPriv SecurityLevel = iota
	AuthNoPriv
	AuthPriv
)

// String renders the security level the way target.Info.SecurityLevel
// expects to compare it.
func (l SecurityLevel) String() string {
	switch l {
	case AuthNoPriv:
		return "authNoPriv"
	case AuthPriv:
		return "authPriv"
	default:
		return "noAuthNoPriv"
	}
}

const passwordExpansionRounds = 1 << 20 // RFC 3414 Appendix A.1: expand to 2^20 bytes.

// PasswordToKey implements the RFC 3414 Appendix A.1 Password to Key
// Algorithm: the passphrase is repeated to fill 2^20 bytes and hashed.
func PasswordToKey(proto AuthProtocol, passphrase string) ([]byte, error) {
	h, err := newHash(proto)
	if err != nil {
		return nil, err
	}

	pwBytes := []byte(passphrase)
	if len(pwBytes) == 0 {
		return nil, fmt.Errorf("usm: empty passphrase")
	}

	count := 0
	buf := make([]byte, 64)
	for count < passwordExpansionRounds {
		for i := range buf {
			buf[i] = pwBytes[count%len(pwBytes)]
			count++
		}
		h.Write(buf)
	}
	return h.Sum(nil), nil
}

// LocalizeKey implements the RFC 3414 Appendix A.2 localization algorithm,
// binding a password-derived key to a specific authoritative snmpEngineID.
func LocalizeKey(proto AuthProtocol, key, engineID []byte) ([]byte, error) {
	h, err := newHash(proto)
	if err != nil {
		return nil, err
	}
	h.Write(key)
	h.Write(engineID)
	h.Write(key)
	return h.Sum(nil), nil
}

// Digest computes the RFC 3414 HMAC authentication digest (truncated to 96
// bits) for msg under the localized key authKey.
func Digest(proto AuthProtocol, authKey, msg []byte) ([]byte, error) {
	newH, err := hmacFactory(proto)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newH, authKey)
	mac.Write(msg)
	sum := mac.Sum(nil)
	const authParamLen = 12
	return sum[:authParamLen], nil
}

func newHash(proto AuthProtocol) (hash.Hash, error) {
	switch proto {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	default:
		return nil, fmt.Errorf("usm: unsupported authentication protocol %d", proto)
	}
}

func hmacFactory(proto AuthProtocol) (func() hash.Hash, error) {
	switch proto {
	case MD5:
		return md5.New, nil
	case SHA1:
		return sha1.New, nil
	default:
		return nil, fmt.Errorf("usm: unsupported authentication protocol %d", proto)
	}
}
